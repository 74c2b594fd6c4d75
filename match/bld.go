// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robertu94/lcls2/xtc"
)

// Source is the shape every BLD-mode side channel presents to the
// Engine: advance to the next dated event, read its current payload,
// and drop everything older than a given timestamp. bld.Receiver
// satisfies this directly.
type Source interface {
	Next() xtc.Timestamp
	CurrentPayload() []byte
	Clear(ts xtc.Timestamp)
}

// TimingSource hands the Engine the next accepted trigger, or ok=false
// if none arrived within its own internal wait.
type TimingSource interface {
	Next(ctx context.Context) (xtc.TimingHeader, bool, error)
}

// Sink is the EB-facing collaborator a finished contribution is handed
// to (spec §4.I fetch/process), plus the idle-timer flush signal of
// spec §4.G's Timeout paragraph.
type Sink interface {
	Emit(ctx context.Context, dgram xtc.EbDgram) error

	// Timeout is called at most once per idle episode once the
	// matching loop has gone FlushTimeout without delivering anything,
	// mirroring UdpEncoder.cc's m_drp.tebContributor().timeout() call.
	Timeout(ctx context.Context) error
}

// Engine runs the BLD-mode matching loop of spec §4.G.
type Engine struct {
	msg     *log.Logger
	timing  TimingSource
	names   []string
	sources []Source
	sink    Sink
	idle    idleTimer

	nDropped     []uint64
	nMissingData uint64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the default stdout logger.
func WithLogger(msg *log.Logger) Option {
	return func(e *Engine) { e.msg = msg }
}

// WithFlushTimeout arms the secondary idle timer of spec §4.G; zero
// (the default) disables it.
func WithFlushTimeout(d time.Duration) Option {
	return func(e *Engine) { e.idle = newIdleTimer(d) }
}

// NewEngine builds a BLD-mode Engine correlating timing against the
// named sources, in the same order.
func NewEngine(timing TimingSource, names []string, sources []Source, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		msg:      log.New(os.Stdout, "match: ", 0),
		timing:   timing,
		names:    names,
		sources:  sources,
		sink:     sink,
		nDropped: make([]uint64, len(sources)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunBLD drives the matching loop until ctx is cancelled.
func (e *Engine) RunBLD(ctx context.Context) error {
	ts := make([]xtc.Timestamp, len(e.sources))
	for i, src := range e.sources {
		ts[i] = src.Next()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		trig, ok, err := e.timing.Next(ctx)
		if err != nil {
			return fmt.Errorf("match: timing reader failed: %w", err)
		}
		if !ok {
			if err := e.idle.idle(ctx, e.sink); err != nil {
				return fmt.Errorf("match: could not emit timeout signal: %w", err)
			}
			continue
		}
		e.idle.progress()

		if trig.Service.IsTransition() {
			if err := e.sink.Emit(ctx, xtc.EbDgram{Timing: trig}); err != nil {
				return fmt.Errorf("match: could not emit transition: %w", err)
			}
			continue
		}

		// Resolve this one trigger against the side channels, advancing
		// every source past a stale head until the trigger either
		// matches or arrives ahead of everything (spec §4.G steps 2-4).
		for {
			nextID, haveNext := minReady(ts)

			if haveNext && trig.Timestamp.Compare(nextID) > 0 {
				for i, src := range e.sources {
					src.Clear(trig.Timestamp)
					ts[i] = src.Next()
				}
				continue
			}

			if !haveNext || trig.Timestamp.Compare(nextID) < 0 {
				dgram := xtc.EbDgram{Timing: trig}
				dgram.SetDamage(xtc.MissingData)
				e.nMissingData++
				if err := e.sink.Emit(ctx, dgram); err != nil {
					return fmt.Errorf("match: could not emit: %w", err)
				}
				break
			}

			if _, err := e.matchAndEmit(ctx, trig, nextID, ts); err != nil {
				return err
			}
			break
		}
	}
}

// matchAndEmit fans out the per-source copy-or-drop decision
// concurrently (spec §4.G step 2), then emits the assembled dgram.
func (e *Engine) matchAndEmit(ctx context.Context, trig xtc.TimingHeader, nextID xtc.Timestamp, ts []xtc.Timestamp) (xtc.EbDgram, error) {
	payloads := make([][]byte, len(e.sources))
	var mu sync.Mutex
	var damage xtc.Damage

	g, _ := errgroup.WithContext(ctx)
	for i := range e.sources {
		i := i
		g.Go(func() error {
			if ts[i] == nextID {
				payloads[i] = append([]byte{}, e.sources[i].CurrentPayload()...)
				e.sources[i].Clear(nextID)
				next := e.sources[i].Next()
				mu.Lock()
				ts[i] = next
				mu.Unlock()
			} else {
				atomic.AddUint64(&e.nDropped[i], 1)
				mu.Lock()
				damage = damage.Set(xtc.DroppedContribution)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return xtc.EbDgram{}, err
	}

	dgram := xtc.EbDgram{Timing: trig, Damage: damage}
	for _, p := range payloads {
		dgram.XTC = append(dgram.XTC, p...)
	}
	if err := e.sink.Emit(ctx, dgram); err != nil {
		return xtc.EbDgram{}, fmt.Errorf("match: could not emit: %w", err)
	}
	return dgram, nil
}

// minReady returns the smallest non-zero timestamp in ts, and whether
// any source had one ready at all.
func minReady(ts []xtc.Timestamp) (xtc.Timestamp, bool) {
	var (
		min   xtc.Timestamp
		found bool
	)
	for _, t := range ts {
		if t == 0 {
			continue
		}
		if !found || t.Less(min) {
			min, found = t, true
		}
	}
	return min, found
}

// Stats reports per-source dropped-contribution counts and the
// running MissingData tally.
func (e *Engine) Stats() (dropped []uint64, missingData uint64) {
	out := make([]uint64, len(e.nDropped))
	for i := range out {
		out[i] = atomic.LoadUint64(&e.nDropped[i])
	}
	return out, e.nMissingData
}

// ReaderFeed adapts a pull-one-at-a-time TimingSource over a reader
// that returns batches, buffering any extra headers between calls.
type ReaderFeed struct {
	msg *log.Logger

	read func(ctx context.Context) ([]xtc.TimingHeader, error)
	wait time.Duration

	buf []xtc.TimingHeader
}

// NewReaderFeed wraps read (typically timing.Reader.Read) as a
// TimingSource, waiting up to wait for each underlying batch.
func NewReaderFeed(read func(ctx context.Context) ([]xtc.TimingHeader, error), wait time.Duration) *ReaderFeed {
	return &ReaderFeed{msg: log.New(os.Stdout, "match: ", 0), read: read, wait: wait}
}

// Next returns the next buffered header, pulling a fresh batch (under
// a bounded sub-context) if the buffer is empty.
func (f *ReaderFeed) Next(ctx context.Context) (xtc.TimingHeader, bool, error) {
	if len(f.buf) > 0 {
		h := f.buf[0]
		f.buf = f.buf[1:]
		return h, true, nil
	}

	sctx, cancel := context.WithTimeout(ctx, f.wait)
	defer cancel()

	hs, err := f.read(sctx)
	if err != nil {
		if sctx.Err() != nil {
			return xtc.TimingHeader{}, false, nil
		}
		return xtc.TimingHeader{}, false, err
	}
	if len(hs) == 0 {
		return xtc.TimingHeader{}, false, nil
	}

	f.buf = hs[1:]
	return hs[0], true, nil
}

var _ TimingSource = (*ReaderFeed)(nil)
