// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/robertu94/lcls2/trans"
)

// stubDevice implements trans.Device by printing every transition it
// is asked to perform, for console rehearsal only. It always
// succeeds, mirroring how a dry run should never block the operator
// on hardware that is not present.
type stubDevice struct {
	w io.Writer
}

func newStubDevice(w io.Writer) *stubDevice { return &stubDevice{w: w} }

func (d *stubDevice) Connect(ctx context.Context, cfg trans.Configuration) error {
	fmt.Fprintf(d.w, "  [device] Connect config=%v\n", cfg)
	return nil
}

func (d *stubDevice) Configure(ctx context.Context, cfg trans.Configuration) error {
	fmt.Fprintf(d.w, "  [device] Configure config=%v\n", cfg)
	return nil
}

func (d *stubDevice) Enable(ctx context.Context, chunked bool) error {
	fmt.Fprintf(d.w, "  [device] Enable chunked=%v\n", chunked)
	return nil
}

func (d *stubDevice) Disable(ctx context.Context) error {
	fmt.Fprintf(d.w, "  [device] Disable\n")
	return nil
}

func (d *stubDevice) Unconfigure(ctx context.Context) error {
	fmt.Fprintf(d.w, "  [device] Unconfigure\n")
	return nil
}

func (d *stubDevice) Disconnect(ctx context.Context) error {
	fmt.Fprintf(d.w, "  [device] Disconnect\n")
	return nil
}

func (d *stubDevice) BeginRun(ctx context.Context, runNum uint32) error {
	fmt.Fprintf(d.w, "  [device] BeginRun run=%d\n", runNum)
	return nil
}

func (d *stubDevice) EndRun(ctx context.Context) error {
	fmt.Fprintf(d.w, "  [device] EndRun\n")
	return nil
}
