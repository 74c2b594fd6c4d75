// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trans

import (
	"context"
	"errors"
	"testing"
)

var errBoom = errors.New("boom")

type fakeDevice struct {
	calls []string
	fail  map[string]bool
}

func newFakeDevice() *fakeDevice { return &fakeDevice{fail: map[string]bool{}} }

func (d *fakeDevice) record(name string) error {
	d.calls = append(d.calls, name)
	if d.fail[name] {
		return errBoom
	}
	return nil
}

func (d *fakeDevice) Connect(ctx context.Context, cfg Configuration) error      { return d.record("connect") }
func (d *fakeDevice) Configure(ctx context.Context, cfg Configuration) error    { return d.record("configure") }
func (d *fakeDevice) Enable(ctx context.Context, chunked bool) error            { return d.record("enable") }
func (d *fakeDevice) Disable(ctx context.Context) error                        { return d.record("disable") }
func (d *fakeDevice) Unconfigure(ctx context.Context) error                    { return d.record("unconfigure") }
func (d *fakeDevice) Disconnect(ctx context.Context) error                     { return d.record("disconnect") }
func (d *fakeDevice) BeginRun(ctx context.Context, runNum uint32) error        { return d.record("beginrun") }
func (d *fakeDevice) EndRun(ctx context.Context) error                        { return d.record("endrun") }

func TestFSMHappyPathLifecycle(t *testing.T) {
	dev := newFakeDevice()
	f := NewFSM(dev)
	ctx := context.Background()

	steps := []func() error{
		func() error { return f.Connect(ctx, nil) },
		func() error { return f.Configure(ctx, nil) },
		func() error { return f.Enable(ctx, false) },
		func() error { return f.BeginRun(ctx, 1) },
		func() error { return f.EndRun(ctx) },
		func() error { return f.Disable(ctx) },
		func() error { return f.Enable(ctx, false) }, // Disable -> Enable loop-back
		func() error { return f.Disable(ctx) },
		func() error { return f.Unconfigure(ctx) },
		func() error { return f.Disconnect(ctx) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %+v", i, err)
		}
	}
	if got, want := f.State(), StateDisconnected; got != want {
		t.Fatalf("final state: got=%v want=%v", got, want)
	}
}

func TestFSMRejectsIllegalTransition(t *testing.T) {
	dev := newFakeDevice()
	f := NewFSM(dev)
	ctx := context.Background()

	if err := f.Configure(ctx, nil); err == nil {
		t.Fatalf("expected Configure to be illegal before Connect")
	}
	if got, want := f.State(), StateReset; got != want {
		t.Fatalf("state should be unchanged after a rejected transition: got=%v want=%v", got, want)
	}
}

func TestFSMBeginRunRequiresEnabled(t *testing.T) {
	dev := newFakeDevice()
	f := NewFSM(dev)
	ctx := context.Background()

	if err := f.BeginRun(ctx, 1); err == nil {
		t.Fatalf("expected BeginRun to fail outside Enabled")
	}
}

func TestFSMDisconnectDuringConfiguredQueuesUnconfigure(t *testing.T) {
	dev := newFakeDevice()
	f := NewFSM(dev)
	ctx := context.Background()

	if err := f.Connect(ctx, nil); err != nil {
		t.Fatalf("Connect: %+v", err)
	}
	if err := f.Configure(ctx, nil); err != nil {
		t.Fatalf("Configure: %+v", err)
	}
	if err := f.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %+v", err)
	}
	if got, want := f.State(), StateDisconnected; got != want {
		t.Fatalf("final state: got=%v want=%v", got, want)
	}

	var sawUnconfigure bool
	for _, c := range dev.calls {
		if c == "unconfigure" {
			sawUnconfigure = true
		}
	}
	if !sawUnconfigure {
		t.Fatalf("expected Disconnect from Configured to have run Unconfigure first")
	}
}

func TestFSMResetForcesCleanup(t *testing.T) {
	dev := newFakeDevice()
	f := NewFSM(dev)
	ctx := context.Background()

	if err := f.Connect(ctx, nil); err != nil {
		t.Fatalf("Connect: %+v", err)
	}
	if err := f.Configure(ctx, nil); err != nil {
		t.Fatalf("Configure: %+v", err)
	}
	if err := f.Enable(ctx, false); err != nil {
		t.Fatalf("Enable: %+v", err)
	}

	if err := f.Reset(ctx); err != nil {
		t.Fatalf("Reset: %+v", err)
	}
	if got, want := f.State(), StateReset; got != want {
		t.Fatalf("final state: got=%v want=%v", got, want)
	}
}
