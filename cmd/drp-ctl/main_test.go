// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/robertu94/lcls2/trans"
)

func TestDispatchLifecycle(t *testing.T) {
	var buf bytes.Buffer
	fsm := trans.NewFSM(newStubDevice(&buf))
	ctx := context.Background()

	for _, cmd := range []string{
		"connect",
		"configure timebase=119M",
		"enable",
		"beginrun 7",
		"endrun",
		"disable",
		"unconfigure",
		"disconnect",
	} {
		if quit := dispatch(&buf, ctx, fsm, cmd); quit {
			t.Fatalf("command %q unexpectedly requested quit", cmd)
		}
	}

	if fsm.State() != trans.StateDisconnected {
		t.Fatalf("final state: got=%s want=%s", fsm.State(), trans.StateDisconnected)
	}
	if !strings.Contains(buf.String(), "BeginRun run=7") {
		t.Fatalf("expected BeginRun log line, got:\n%s", buf.String())
	}
}

func TestDispatchIllegalTransition(t *testing.T) {
	var buf bytes.Buffer
	fsm := trans.NewFSM(newStubDevice(&buf))
	ctx := context.Background()

	// Enable before Connect/Configure is illegal.
	dispatch(&buf, ctx, fsm, "enable")
	if !strings.Contains(buf.String(), "error:") {
		t.Fatalf("expected an error for an illegal transition, got:\n%s", buf.String())
	}
	if fsm.State() != trans.StateReset {
		t.Fatalf("state should not have moved: got=%s", fsm.State())
	}
}

func TestDispatchQuit(t *testing.T) {
	var buf bytes.Buffer
	fsm := trans.NewFSM(newStubDevice(&buf))
	ctx := context.Background()

	if quit := dispatch(&buf, ctx, fsm, "quit"); !quit {
		t.Fatalf("expected quit to request exit")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	fsm := trans.NewFSM(newStubDevice(&buf))
	ctx := context.Background()

	dispatch(&buf, ctx, fsm, "frobnicate")
	if !strings.Contains(buf.String(), "unknown command") {
		t.Fatalf("expected unknown-command message, got:\n%s", buf.String())
	}
}
