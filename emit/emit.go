// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package emit implements the Contribution Emitter of spec §4.I: it
// size-checks a finished contribution, attaches a trigger primitive
// when configured, and hands ownership to the event-builder sink.
package emit // import "github.com/robertu94/lcls2/emit"

import (
	"fmt"
	"log"
	"os"

	"github.com/robertu94/lcls2/xtc"
)

// Sink is the EB-facing collaborator: fetch reserves an input slot by
// index, process transfers a finished dgram's ownership to it.
type Sink interface {
	Fetch(index int) (*xtc.EbDgram, error)
	Process(dgram *xtc.EbDgram) error

	// Timeout signals the sink to flush any pending batch without a
	// complete contribution, per spec §4.G's idle-timer path.
	Timeout() error
}

// TriggerPrimitive appends primitive XTC bytes to an L1Accept dgram
// ahead of emission (e.g. a BLD/PV-derived feature vector for the
// level-1 trigger logic). It is optional.
type TriggerPrimitive interface {
	Produce(dgram *xtc.EbDgram) error
}

// Emitter drives sendToTeb for one contributor.
type Emitter struct {
	msg *log.Logger

	pebbleBufSize int
	maxTrSize     int

	sink Sink
	trig TriggerPrimitive

	nOverflow uint64
	nEmitted  uint64
}

// Option configures an Emitter at construction time.
type Option func(*Emitter)

// WithLogger overrides the default stdout logger.
func WithLogger(msg *log.Logger) Option {
	return func(e *Emitter) { e.msg = msg }
}

// WithTriggerPrimitive wires an optional trigger-primitive producer.
func WithTriggerPrimitive(trig TriggerPrimitive) Option {
	return func(e *Emitter) { e.trig = trig }
}

// New builds an Emitter bound to sink, enforcing the pebble/transition
// buffer size invariant of spec §3.
func New(sink Sink, pebbleBufSize, maxTrSize int, opts ...Option) *Emitter {
	e := &Emitter{
		msg:           log.New(os.Stdout, "emit: ", 0),
		pebbleBufSize: pebbleBufSize,
		maxTrSize:     maxTrSize,
		sink:          sink,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendToTeb implements sendToTeb(dgram, index): validate size, fetch
// the matching input slot, optionally attach a trigger primitive, and
// hand the finished dgram to the sink. An overflow is fatal — it is
// an invariant violation, not a runtime condition the contributor can
// recover from — so SendToTeb panics rather than returning an error.
func (e *Emitter) SendToTeb(built *xtc.EbDgram, index int) error {
	if err := built.Validate(e.pebbleBufSize, e.maxTrSize); err != nil {
		e.nOverflow++
		panic(fmt.Sprintf("emit: fatal: %v", err))
	}

	slot, err := e.sink.Fetch(index)
	if err != nil {
		return fmt.Errorf("emit: could not fetch eb slot %d: %w", index, err)
	}
	*slot = *built

	if built.Timing.Service == xtc.L1Accept && e.trig != nil {
		if err := e.trig.Produce(slot); err != nil {
			return fmt.Errorf("emit: could not produce trigger primitive: %w", err)
		}
	}

	if err := e.sink.Process(slot); err != nil {
		return fmt.Errorf("emit: could not process dgram at slot %d: %w", index, err)
	}
	e.nEmitted++
	return nil
}

// Timeout forwards the idle-timer flush signal to the sink.
func (e *Emitter) Timeout() error {
	return e.sink.Timeout()
}

// Stats reports the running overflow and emitted-contribution counts.
func (e *Emitter) Stats() (overflow, emitted uint64) {
	return e.nOverflow, e.nEmitted
}
