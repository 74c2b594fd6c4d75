// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"go-hep.org/x/hep/lcio"

	"github.com/robertu94/lcls2/xtc"
)

func TestContrib2LCIORoundTrip(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "run0063.lcio")
	msg := log.New(os.Stdout, "", 0)

	want := []*xtc.EbDgram{
		{
			Timing: xtc.TimingHeader{Timestamp: xtc.NewTimestamp(1000, 42), PulseID: 7, Service: xtc.L1Accept, EvtCounter: 3},
			SrcID:  2,
			XTC:    []byte{1, 2, 3, 4, 5},
		},
		{
			Timing: xtc.TimingHeader{Timestamp: xtc.NewTimestamp(1000, 43), PulseID: 8, Service: xtc.L1Accept, EvtCounter: 4},
			SrcID:  2,
			Damage: xtc.MissingData,
			XTC:    []byte{9, 9},
		},
	}

	lw, err := lcio.Create(fname)
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}

	in := make(chan *xtc.EbDgram, len(want))
	for _, d := range want {
		in <- d
	}
	close(in)

	if err := Contrib2LCIO(lw, in, 63, msg); err != nil {
		t.Fatalf("could not convert to LCIO: %+v", err)
	}
	if err := lw.Close(); err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}

	lr, err := lcio.Open(fname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer lr.Close()

	out := make(chan *xtc.EbDgram)
	errc := make(chan error, 1)
	go func() { errc <- LCIO2Contrib(lr, out, msg) }()

	var got []*xtc.EbDgram
	for d := range out {
		got = append(got, d)
	}
	if err := <-errc; err != nil {
		t.Fatalf("could not convert from LCIO: %+v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("event count: got=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i].Timing.Timestamp != want[i].Timing.Timestamp {
			t.Fatalf("event %d timestamp: got=%v want=%v", i, got[i].Timing.Timestamp, want[i].Timing.Timestamp)
		}
		if got[i].Timing.PulseID != want[i].Timing.PulseID {
			t.Fatalf("event %d pulseId: got=%d want=%d", i, got[i].Timing.PulseID, want[i].Timing.PulseID)
		}
		if got[i].Damage != want[i].Damage {
			t.Fatalf("event %d damage: got=%v want=%v", i, got[i].Damage, want[i].Damage)
		}
		if string(got[i].XTC) != string(want[i].XTC) {
			t.Fatalf("event %d xtc payload: got=%v want=%v", i, got[i].XTC, want[i].XTC)
		}
	}
}
