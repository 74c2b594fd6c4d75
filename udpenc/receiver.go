// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package udpenc

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/robertu94/lcls2/xtc"
)

// Result is one frame a Receiver hands to the matching engine: either
// a genuine decoded frame, or a synthetic placeholder fabricated for
// a detected gap.
type Result struct {
	Frame  Frame
	Damage xtc.Damage
}

// Receiver tracks frameCount ordering on one UDP encoder socket per
// spec §4.F: expected = (1 + count + countOffset) mod 2^16, with
// countOffset armed from the first frame ever seen. A duplicate of
// the previous frameCount is a "stuck counter"; any other mismatch is
// a gap, which synthesizes a zeroed placeholder carrying
// xtc.MissingData damage without consuming the datagram that
// triggered it.
type Receiver struct {
	msg  *log.Logger
	sock Socket

	mu       sync.Mutex
	armed    bool
	expected uint16
	prev     uint16
	havePrev bool
	oooLatch bool

	nOutOfOrder uint64
	nMissing    uint64

	errc chan<- string
}

// Option configures a Receiver at construction time.
type Option func(*Receiver)

// WithLogger overrides the default stdout logger.
func WithLogger(msg *log.Logger) Option {
	return func(r *Receiver) { r.msg = msg }
}

// WithErrChan wires the async error/warning publication channel (spec §6).
func WithErrChan(errc chan<- string) Option {
	return func(r *Receiver) { r.errc = errc }
}

// New creates a Receiver reading frames from sock.
func New(sock Socket, opts ...Option) *Receiver {
	r := &Receiver{
		msg:  log.New(os.Stdout, "udpenc: ", 0),
		sock: sock,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next waits up to WakeInterval for a frame (real or synthetic). ok is
// false only when the wake interval elapsed with nothing queued.
func (r *Receiver) Next() (res Result, ok bool, err error) {
	peek, available, err := r.sock.PeekFrameCount()
	if err != nil {
		return Result{}, false, fmt.Errorf("udpenc: peek failed: %w", err)
	}
	if !available {
		return Result{}, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case !r.armed || peek == r.expected:
		raw, err := r.sock.Consume()
		if err != nil {
			return Result{}, false, fmt.Errorf("udpenc: consume failed: %w", err)
		}
		f, err := Decode(raw)
		if err != nil {
			return Result{}, false, fmt.Errorf("udpenc: decode failed: %w", err)
		}
		r.armed = true
		r.prev, r.havePrev = peek, true
		r.expected = peek + 1
		return Result{Frame: f}, true, nil

	case r.havePrev && peek == r.prev:
		raw, err := r.sock.Consume()
		if err != nil {
			return Result{}, false, fmt.Errorf("udpenc: consume failed: %w", err)
		}
		f, err := Decode(raw)
		if err != nil {
			return Result{}, false, fmt.Errorf("udpenc: decode failed: %w", err)
		}
		r.nOutOfOrder++
		r.latchOutOfOrder("udpenc: stuck frame counter detected")
		return Result{Frame: f, Damage: xtc.OutOfOrder}, true, nil

	default:
		synth := Frame{FrameCount: r.expected, Synthetic: true}
		r.prev, r.havePrev = r.expected, true
		r.expected++
		r.nMissing++
		r.latchOutOfOrder("udpenc: frame counter gap detected")
		d := xtc.MissingData.Set(xtc.OutOfOrder)
		return Result{Frame: synth, Damage: d}, true, nil
	}
}

// latchOutOfOrder reports s at most once per reset() cycle.
func (r *Receiver) latchOutOfOrder(s string) {
	r.msg.Print(s)
	if r.oooLatch {
		return
	}
	r.oooLatch = true
	if r.errc == nil {
		return
	}
	select {
	case r.errc <- s:
	default:
	}
}

// Reset drains every queued datagram and re-arms countOffset from the
// next frame received (spec §4.F reset()).
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sock.Drain()
	r.armed = false
	r.havePrev = false
	r.oooLatch = false
}

// Stats reports the running out-of-order and missing-frame counters.
func (r *Receiver) Stats() (outOfOrder, missing uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nOutOfOrder, r.nMissing
}
