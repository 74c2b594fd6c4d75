// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trans

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
)

// State is one node of the transition lifecycle of spec §4.H.
type State int

const (
	StateReset State = iota
	StateConnected
	StateConfigured
	StateEnabled
	StateDisabled
	StateUnconfigured
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "Reset"
	case StateConnected:
		return "Connected"
	case StateConfigured:
		return "Configured"
	case StateEnabled:
		return "Enabled"
	case StateDisabled:
		return "Disabled"
	case StateUnconfigured:
		return "Unconfigured"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Device is the collaborator an FSM drives through each transition's
// contract (spec §4.H). RunInfo/ChunkInfo bookkeeping, matching-thread
// lifecycle and metrics registration live behind these calls.
type Device interface {
	Connect(ctx context.Context, cfg Configuration) error
	Configure(ctx context.Context, cfg Configuration) error
	Enable(ctx context.Context, chunked bool) error
	Disable(ctx context.Context) error
	Unconfigure(ctx context.Context) error
	Disconnect(ctx context.Context) error
	BeginRun(ctx context.Context, runNum uint32) error
	EndRun(ctx context.Context) error
}

// FSM drives a Device through the lifecycle, rejecting any transition
// request not legal from the current state.
type FSM struct {
	msg *log.Logger
	dev Device

	mu    sync.Mutex
	state State

	// queuedUnconfigure records that Disconnect was requested while
	// still Configured or Disabled, so Unconfigure runs before it.
	queuedUnconfigure bool
}

// NewFSM builds an FSM in the Reset state.
func NewFSM(dev Device) *FSM {
	return &FSM{
		msg:   log.New(os.Stdout, "trans: ", 0),
		dev:   dev,
		state: StateReset,
	}
}

// State reports the current lifecycle state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// legal reports whether `to` may be entered from `from`.
func legal(from, to State) bool {
	switch from {
	case StateReset:
		return to == StateConnected
	case StateConnected:
		return to == StateConfigured || to == StateDisconnected
	case StateConfigured:
		return to == StateEnabled || to == StateUnconfigured
	case StateEnabled:
		return to == StateDisabled
	case StateDisabled:
		return to == StateEnabled || to == StateUnconfigured
	case StateUnconfigured:
		return to == StateConnected || to == StateDisconnected
	case StateDisconnected:
		return to == StateReset
	default:
		return false
	}
}

func (f *FSM) move(to State) error {
	if !legal(f.state, to) {
		return fmt.Errorf("trans: illegal transition %s -> %s", f.state, to)
	}
	f.msg.Printf("%s -> %s", f.state, to)
	f.state = to
	return nil
}

// Connect requires and validates cfg, then publishes interface/buffer
// info via the Device.
func (f *FSM) Connect(ctx context.Context, cfg Configuration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := f.move(StateConnected); err != nil {
		return err
	}
	if err := f.dev.Connect(ctx, cfg); err != nil {
		f.state = StateReset
		return fmt.Errorf("trans: connect failed: %w", err)
	}
	return nil
}

// Configure spawns the matching thread, registers metrics and builds
// the NameIndex XTCs via the Device.
func (f *FSM) Configure(ctx context.Context, cfg Configuration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return err
	}
	prev := f.state
	if err := f.move(StateConfigured); err != nil {
		return err
	}
	if err := f.dev.Configure(ctx, cfg); err != nil {
		f.state = prev
		return fmt.Errorf("trans: configure failed: %w", err)
	}
	return nil
}

// Enable sets m_running true and optionally attaches a ChunkInfo on
// chunk-rotation request.
func (f *FSM) Enable(ctx context.Context, chunked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.state
	if err := f.move(StateEnabled); err != nil {
		return err
	}
	if err := f.dev.Enable(ctx, chunked); err != nil {
		f.state = prev
		return fmt.Errorf("trans: enable failed: %w", err)
	}
	return nil
}

// Disable sets m_running false; the Device sweeps any pending
// L1Accepts with TimedOut damage in UDP mode.
func (f *FSM) Disable(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.move(StateDisabled); err != nil {
		return err
	}
	if err := f.dev.Disable(ctx); err != nil {
		f.state = StateEnabled
		return fmt.Errorf("trans: disable failed: %w", err)
	}
	return nil
}

// Unconfigure stops the matching thread, drains queues and clears the
// NameIndex. Disconnect calls it first when requested from Configured
// or Disabled; a direct call is checked against the current state like
// any other transition.
func (f *FSM) Unconfigure(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.move(StateUnconfigured); err != nil {
		return err
	}
	if err := f.dev.Unconfigure(ctx); err != nil {
		return fmt.Errorf("trans: unconfigure failed: %w", err)
	}
	f.queuedUnconfigure = false
	return nil
}

// Disconnect tears the connection down. From Configured or Disabled it
// queues and runs Unconfigure first.
func (f *FSM) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateConfigured || f.state == StateDisabled {
		// Disconnect is only legal from Connected or Unconfigured; queue
		// the implied Unconfigure first.
		f.queuedUnconfigure = true
	}
	if f.queuedUnconfigure {
		f.mu.Unlock()
		if err := f.Unconfigure(ctx); err != nil {
			f.mu.Lock()
			return err
		}
		f.mu.Lock()
	}

	if err := f.move(StateDisconnected); err != nil {
		return err
	}
	if err := f.dev.Disconnect(ctx); err != nil {
		return fmt.Errorf("trans: disconnect failed: %w", err)
	}
	return nil
}

// Reset forces Unconfigure+Disconnect regardless of the current
// state, bypassing the normal legality check legal() enforces on
// every other transition, then returns to Reset. It is idempotent.
func (f *FSM) Reset(ctx context.Context) error {
	f.mu.Lock()
	state := f.state
	f.mu.Unlock()

	if state == StateConfigured || state == StateEnabled || state == StateDisabled {
		if err := f.dev.Unconfigure(ctx); err != nil {
			f.msg.Printf("reset: could not unconfigure cleanly: %+v", err)
		}
		state = StateUnconfigured
	}
	if state != StateReset {
		if err := f.dev.Disconnect(ctx); err != nil {
			f.msg.Printf("reset: could not disconnect cleanly: %+v", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateReset
	f.queuedUnconfigure = false
	return nil
}

// BeginRun and EndRun are only legal while Enabled; they do not move
// the FSM itself.
func (f *FSM) BeginRun(ctx context.Context, runNum uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateEnabled {
		return fmt.Errorf("trans: beginrun requires Enabled, got %s", f.state)
	}
	return f.dev.BeginRun(ctx, runNum)
}

func (f *FSM) EndRun(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateEnabled {
		return fmt.Errorf("trans: endrun requires Enabled, got %s", f.state)
	}
	return f.dev.EndRun(ctx)
}
