// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package udpenc

import (
	"encoding/binary"
	"testing"

	"github.com/robertu94/lcls2/xtc"
)

// fakeSocket drives a Receiver from a canned sequence of datagrams
// without touching any real file descriptor.
type fakeSocket struct {
	pkts    [][]byte
	drained int
}

func buildFrame(count uint16) []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint16(buf[0:2], count)
	binary.BigEndian.PutUint16(buf[2:4], 1)
	buf[4], buf[5] = 0, 0
	buf[22] = 0 // no channels set
	return buf
}

func (f *fakeSocket) PeekFrameCount() (uint16, bool, error) {
	if len(f.pkts) == 0 {
		return 0, false, nil
	}
	fc, err := PeekFrameCount(f.pkts[0])
	return fc, true, err
}

func (f *fakeSocket) Consume() ([]byte, error) {
	p := f.pkts[0]
	f.pkts = f.pkts[1:]
	return p, nil
}

func (f *fakeSocket) Drain() {
	f.drained += len(f.pkts)
	f.pkts = nil
}

func (f *fakeSocket) Close() error { return nil }

var _ Socket = (*fakeSocket)(nil)

func TestNextAcceptsInOrderFrames(t *testing.T) {
	sock := &fakeSocket{pkts: [][]byte{buildFrame(5), buildFrame(6), buildFrame(7)}}
	r := New(sock)

	for _, want := range []uint16{5, 6, 7} {
		res, ok, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %+v", err)
		}
		if !ok {
			t.Fatalf("expected a frame")
		}
		if res.Frame.FrameCount != want {
			t.Fatalf("frameCount: got=%d want=%d", res.Frame.FrameCount, want)
		}
		if res.Damage != 0 {
			t.Fatalf("expected no damage, got %v", res.Damage)
		}
	}
}

// TestNextFlagsStuckCounter covers S5: 5,6,6,7 yields exactly one
// latched OutOfOrder notification and the repeated 6 carries the
// OutOfOrder bit while 5, 7 (and beyond) stay clean.
func TestNextFlagsStuckCounter(t *testing.T) {
	sock := &fakeSocket{pkts: [][]byte{buildFrame(5), buildFrame(6), buildFrame(6), buildFrame(7)}}
	errc := make(chan string, 4)
	r := New(sock, WithErrChan(errc))

	wantDamage := []xtc.Damage{0, 0, xtc.OutOfOrder, 0}
	for i, want := range wantDamage {
		res, ok, err := r.Next()
		if err != nil || !ok {
			t.Fatalf("Next[%d]: ok=%v err=%v", i, ok, err)
		}
		if res.Damage != want {
			t.Fatalf("Next[%d] damage: got=%v want=%v", i, res.Damage, want)
		}
	}

	if got, _ := r.Stats(); got != 1 {
		t.Fatalf("expected exactly one out-of-order event, got %d", got)
	}
	if len(errc) != 1 {
		t.Fatalf("expected exactly one latched async notification, got %d", len(errc))
	}
}

// TestNextSynthesizesOnGap covers a dropped frame: 5 then 7 (6
// missing) synthesizes a zeroed frameCount-6 placeholder carrying
// MissingData|OutOfOrder, without consuming the real frame 7.
func TestNextSynthesizesOnGap(t *testing.T) {
	sock := &fakeSocket{pkts: [][]byte{buildFrame(5), buildFrame(7)}}
	r := New(sock)

	first, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("Next[0]: ok=%v err=%v", ok, err)
	}
	if first.Frame.FrameCount != 5 {
		t.Fatalf("expected frame 5, got %d", first.Frame.FrameCount)
	}

	gap, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("Next[1]: ok=%v err=%v", ok, err)
	}
	if !gap.Frame.Synthetic {
		t.Fatalf("expected a synthetic placeholder")
	}
	if gap.Frame.FrameCount != 6 {
		t.Fatalf("synthetic frameCount: got=%d want=6", gap.Frame.FrameCount)
	}
	if !gap.Damage.Has(xtc.MissingData) || !gap.Damage.Has(xtc.OutOfOrder) {
		t.Fatalf("expected MissingData|OutOfOrder, got %v", gap.Damage)
	}
	if len(sock.pkts) != 1 {
		t.Fatalf("frame 7 should not have been consumed by the gap detection")
	}

	real, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("Next[2]: ok=%v err=%v", ok, err)
	}
	if real.Frame.FrameCount != 7 {
		t.Fatalf("expected frame 7 after the gap, got %d", real.Frame.FrameCount)
	}
}

func TestNextReturnsNotOKWhenIdle(t *testing.T) {
	sock := &fakeSocket{}
	r := New(sock)

	_, ok, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %+v", err)
	}
	if ok {
		t.Fatalf("expected no frame available")
	}
}

func TestResetRearmsAndDrains(t *testing.T) {
	sock := &fakeSocket{pkts: [][]byte{buildFrame(5), buildFrame(6), buildFrame(99)}}
	r := New(sock)

	if _, _, err := r.Next(); err != nil {
		t.Fatalf("Next: %+v", err)
	}

	r.Reset()
	if sock.drained != 2 {
		t.Fatalf("expected Reset to drain the remaining 2 datagrams, drained %d", sock.drained)
	}

	sock.pkts = [][]byte{buildFrame(42)}
	res, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("Next after reset: ok=%v err=%v", ok, err)
	}
	if res.Damage != 0 {
		t.Fatalf("first frame after reset should be accepted cleanly, got damage %v", res.Damage)
	}
}
