// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robertu94/lcls2/internal/queue"
	"github.com/robertu94/lcls2/xtc"
)

// SideEntry is one side-channel value parked in the PV/UDP side queue.
type SideEntry struct {
	Timestamp xtc.Timestamp
	Payload   []byte
}

// needsMatch reports whether a pebble queue head participates in
// matching (L1Accept and SlowUpdate) rather than passing straight
// through (every other transition).
func needsMatch(s xtc.Service) bool { return s == xtc.L1Accept || s == xtc.SlowUpdate }

// TwoQueueEngine runs the PV/UDP two-queue matching loop of spec §4.G.
type TwoQueueEngine struct {
	msg    *log.Logger
	degree Degree
	tmo    time.Duration
	sink   Sink
	idle   idleTimer

	nTimedOut   uint64
	nDropped    uint64
	pollBackoff time.Duration
}

// TwoQueueOption configures a TwoQueueEngine at construction time.
type TwoQueueOption func(*TwoQueueEngine)

// WithTwoQueueLogger overrides the default stdout logger.
func WithTwoQueueLogger(msg *log.Logger) TwoQueueOption {
	return func(e *TwoQueueEngine) { e.msg = msg }
}

// WithTwoQueueFlushTimeout arms the secondary idle timer of spec
// §4.G; zero (the default) disables it.
func WithTwoQueueFlushTimeout(d time.Duration) TwoQueueOption {
	return func(e *TwoQueueEngine) { e.idle = newIdleTimer(d) }
}

// NewTwoQueueEngine builds an Engine comparing pebble and side-channel
// timestamps at the given match degree, timing pebbles out after tmo.
func NewTwoQueueEngine(degree Degree, tmo time.Duration, sink Sink, opts ...TwoQueueOption) *TwoQueueEngine {
	e := &TwoQueueEngine{
		msg:         log.New(os.Stdout, "match: ", 0),
		degree:      degree,
		tmo:         tmo,
		sink:        sink,
		pollBackoff: time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunTwoQueue drives the loop until ctx is cancelled: pop the head of
// both queues, _compare, and dispatch to _handleMatch / _handleYounger
// / _handleOlder.
func (e *TwoQueueEngine) RunTwoQueue(ctx context.Context, pebbleQ *queue.Queue[xtc.EbDgram], sideQ *queue.Queue[SideEntry]) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		var pebble xtc.EbDgram
		if !pebbleQ.Peek(&pebble) {
			if err := e.idle.idle(ctx, e.sink); err != nil {
				return fmt.Errorf("match: could not emit timeout signal: %w", err)
			}
			time.Sleep(e.pollBackoff)
			continue
		}
		e.idle.progress()

		if !needsMatch(pebble.Timing.Service) {
			pebbleQ.TryPop(&pebble)
			if err := e.sink.Emit(ctx, pebble); err != nil {
				return fmt.Errorf("match: could not emit transition: %w", err)
			}
			continue
		}

		var side SideEntry
		if !sideQ.Peek(&side) {
			if err := e.sweepTimedOut(ctx, pebbleQ); err != nil {
				return err
			}
			time.Sleep(e.pollBackoff)
			continue
		}

		switch compare(pebble.Timing.Timestamp, side.Timestamp, e.degree) {
		case 0:
			pebbleQ.TryPop(&pebble)
			sideQ.TryPop(&side)
			pebble.XTC = append(pebble.XTC, side.Payload...)
			if err := e.sink.Emit(ctx, pebble); err != nil {
				return fmt.Errorf("match: could not emit match: %w", err)
			}

		case -1:
			// handleYounger: pebble is older than the side-channel head;
			// the pebble has no data of its own.
			pebbleQ.TryPop(&pebble)
			pebble.SetDamage(xtc.MissingData)
			if err := e.sink.Emit(ctx, pebble); err != nil {
				return fmt.Errorf("match: could not emit missing-data: %w", err)
			}

		case 1:
			// handleOlder: the side-channel head is stale, drop it and retry.
			sideQ.TryPop(&side)
			e.nDropped++
		}
	}
}

// sweepTimedOut emits every pebble older than now-tmo with TimedOut
// damage, leaving the first pebble still within the window at the
// head of the queue.
func (e *TwoQueueEngine) sweepTimedOut(ctx context.Context, pebbleQ *queue.Queue[xtc.EbDgram]) error {
	now := time.Now()
	for {
		var d xtc.EbDgram
		if !pebbleQ.Peek(&d) {
			return nil
		}
		if now.Sub(d.Timing.Timestamp.Time()) < e.tmo {
			return nil
		}
		pebbleQ.TryPop(&d)
		d.SetDamage(xtc.TimedOut)
		e.nTimedOut++
		if err := e.sink.Emit(ctx, d); err != nil {
			return fmt.Errorf("match: could not emit timed-out: %w", err)
		}
	}
}

// Flush drains pebbleQ entirely, setting TimedOut damage on every
// pending L1Accept and forwarding every pending SlowUpdate undamaged,
// mirroring UdpEncoder.cc's _timeout(TimeMax) call on the Disable
// transition (spec §4.H: "for UDP, sweep pending L1Accepts with
// TimedOut damage").
func (e *TwoQueueEngine) Flush(ctx context.Context, pebbleQ *queue.Queue[xtc.EbDgram]) error {
	for {
		var d xtc.EbDgram
		if !pebbleQ.TryPop(&d) {
			return nil
		}
		if d.Timing.Service == xtc.L1Accept {
			d.SetDamage(xtc.TimedOut)
			e.nTimedOut++
		}
		if err := e.sink.Emit(ctx, d); err != nil {
			return fmt.Errorf("match: could not emit flushed dgram: %w", err)
		}
	}
}

// Stats reports the running timed-out and stale-drop counters.
func (e *TwoQueueEngine) Stats() (timedOut, dropped uint64) {
	return e.nTimedOut, e.nDropped
}
