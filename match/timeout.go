// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"context"
	"time"
)

// FlushTimeout computes the secondary idle-timer duration of spec
// §4.G: without any matching progress for 1.1*maxEntries*14/13
// microseconds, the matching loop signals its sink to flush the
// event-builder batch rather than let it stall indefinitely, mirroring
// PGPDetector.cc's m_flushTmo and UdpEncoder.cc's tmo.
func FlushTimeout(maxEntries int) time.Duration {
	return time.Duration(float64(maxEntries)*1.1*14.0/13.0) * time.Microsecond
}

// idleState mirrors UdpEncoder.cc's TmoState: None while progress is
// being made, Started once an idle episode begins, Finished once the
// signal has latched so it fires exactly once per episode.
type idleState int

const (
	idleNone idleState = iota
	idleStarted
	idleFinished
)

// idleTimer tracks how long a matching loop has gone without
// delivering anything and fires a single Sink.Timeout per idle
// episode once tmo elapses, exactly as UdpEncoder.cc's _worker() does
// around m_drp.tebContributor().timeout().
type idleTimer struct {
	tmo   time.Duration
	state idleState
	start time.Time
}

func newIdleTimer(tmo time.Duration) idleTimer {
	return idleTimer{tmo: tmo}
}

// progress resets the timer; call it whenever the loop delivers
// something (a match, a transition, a dropped/stale entry).
func (t *idleTimer) progress() {
	t.state = idleNone
}

// idle is called whenever a poll finds nothing to do. It latches
// state across calls and signals sink.Timeout exactly once, when the
// idle episode first crosses tmo.
func (t *idleTimer) idle(ctx context.Context, sink Sink) error {
	if t.tmo <= 0 {
		return nil
	}
	switch t.state {
	case idleNone:
		t.state = idleStarted
		t.start = time.Now()
	case idleStarted:
		if time.Since(t.start) >= t.tmo {
			t.state = idleFinished
			return sink.Timeout(ctx)
		}
	case idleFinished:
	}
	return nil
}
