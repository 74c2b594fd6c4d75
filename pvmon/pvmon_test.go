// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pvmon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robertu94/lcls2/xtc"
)

type fakeSub struct {
	schema    Schema
	schemaErr error
	updates   chan Update
}

func (f *fakeSub) Schema(ctx context.Context) (Schema, error) { return f.schema, f.schemaErr }
func (f *fakeSub) Updates() <-chan Update                     { return f.updates }
func (f *fakeSub) Close() error                               { close(f.updates); return nil }

type fakeClient struct {
	sub *fakeSub
	err error
}

func (f *fakeClient) Connect(ctx context.Context, provider Provider, name, field string) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

func TestConnectAndRunDeliversUpdates(t *testing.T) {
	sub := &fakeSub{
		schema:  Schema{ScalarType: "float64", NElem: 1, Rank: 0},
		updates: make(chan Update, 1),
	}
	cl := &fakeClient{sub: sub}

	m := New(cl, PVA, "XPP:R1:PV", "VAL", 4, 8)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("could not connect: %+v", err)
	}

	sub.updates <- Update{Timestamp: xtc.NewTimestamp(1000, 0), Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	close(sub.updates)

	var got []byte
	var gotTs xtc.Timestamp
	m.Run(context.Background(), func(ts xtc.Timestamp, payload []byte) {
		gotTs = ts
		got = append([]byte{}, payload...)
	})

	if gotTs != xtc.NewTimestamp(1000, 0) {
		t.Fatalf("unexpected timestamp: %v", gotTs)
	}
	if len(got) != 8 {
		t.Fatalf("unexpected payload length: %d", len(got))
	}
}

func TestConnectFailsOnSchemaError(t *testing.T) {
	sub := &fakeSub{schemaErr: errors.New("boom"), updates: make(chan Update)}
	cl := &fakeClient{sub: sub}

	m := New(cl, CA, "XPP:R1:PV", "VAL", 2, 8)
	if err := m.Connect(context.Background()); err == nil {
		t.Fatalf("expected a schema resolution error")
	}
}

func TestFreelistExhaustionCountsMissed(t *testing.T) {
	sub := &fakeSub{
		schema:  Schema{ScalarType: "float64"},
		updates: make(chan Update, 2),
	}
	cl := &fakeClient{sub: sub}

	m := New(cl, PVA, "XPP:R1:PV", "VAL", 1, 8)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("could not connect: %+v", err)
	}

	sub.updates <- Update{Data: make([]byte, 8)}
	sub.updates <- Update{Data: make([]byte, 8)}
	close(sub.updates)

	n := 0
	m.Run(context.Background(), func(ts xtc.Timestamp, payload []byte) {
		n++
		// deliberately never Release, to exhaust the one-deep freelist
	})

	if n != 1 {
		t.Fatalf("expected exactly one delivered update, got %d", n)
	}
	if got, want := m.NMissed(), uint64(1); got != want {
		t.Fatalf("NMissed: got=%d want=%d", got, want)
	}
}

func TestReportAsyncOnDisconnect(t *testing.T) {
	sub := &fakeSub{schema: Schema{}, updates: make(chan Update)}
	cl := &fakeClient{sub: sub}
	errc := make(chan string, 1)

	m := New(cl, PVA, "XPP:R1:PV", "VAL", 1, 8, WithErrChan(errc))
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("could not connect: %+v", err)
	}
	close(sub.updates)

	done := make(chan struct{})
	go func() {
		m.Run(context.Background(), func(xtc.Timestamp, []byte) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after disconnect")
	}

	select {
	case msg := <-errc:
		if msg == "" {
			t.Fatalf("expected a non-empty disconnect message")
		}
	default:
		t.Fatalf("expected an async disconnect notification")
	}
}
