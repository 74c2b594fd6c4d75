// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package timing implements the Timing Reader (PgpReader) of spec
// §4.C: it drains DMA blocks, validates timing headers, and produces
// an ordered stream of accepted triggers.
package timing // import "github.com/robertu94/lcls2/timing"

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/robertu94/lcls2/internal/dma"
	"github.com/robertu94/lcls2/internal/pool"
	"github.com/robertu94/lcls2/xtc"
)

// Reader wraps a DMA driver and turns its completed blocks into an
// ordered stream of TimingHeaders. A contributor supports exactly one
// hardware lane (spec Non-goals), so laneMask is expected to carry a
// single bit.
type Reader struct {
	msg *log.Logger

	drv         dma.BlockReader
	pool        *pool.MemPool
	laneMask    uint32
	nDmaBuffers int

	events []xtc.PGPEvent

	haveLast       bool
	lastEvtCounter uint32

	nTmgHdrError uint64
	nPgpJumps    uint64
}

// Option configures a Reader at construction time.
type Option func(*Reader)

// WithLogger overrides the default stdout logger.
func WithLogger(msg *log.Logger) Option {
	return func(r *Reader) { r.msg = msg }
}

// New creates a Reader draining drv, indexing PGPEvents into a ring of
// nDmaBuffers slots, expecting lanes named by laneMask.
func New(drv dma.BlockReader, mp *pool.MemPool, laneMask uint32, nDmaBuffers int, opts ...Option) *Reader {
	r := &Reader{
		msg:         log.New(os.Stdout, "timing: ", 0),
		drv:         drv,
		pool:        mp,
		laneMask:    laneMask,
		nDmaBuffers: nDmaBuffers,
		events:      make([]xtc.PGPEvent, nDmaBuffers),
	}
	for i := range r.events {
		r.events[i].Reset()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// laneOf returns the lane number selected by a single-bit mask.
func laneOf(mask uint32) int {
	for i := 0; i < 32; i++ {
		if mask&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 0
}

// Read drains one batch of fresh DMA blocks (up to dma.MaxRetCnt) and
// returns the TimingHeaders of every trigger that became ready, in
// evtCounter order.
func (r *Reader) Read(ctx context.Context) ([]xtc.TimingHeader, error) {
	indices, err := r.drv.Read(ctx)
	if err != nil {
		return nil, err
	}
	r.pool.AllocDma(len(indices))

	lane := laneOf(r.laneMask)
	out := make([]xtc.TimingHeader, 0, len(indices))

	for _, idx := range indices {
		raw := r.drv.Block(idx)
		h, perr := ParseTimingHeader(raw)
		if perr != nil {
			atomic.AddUint64(&r.nTmgHdrError, 1)
			r.msg.Printf("could not parse timing header (dma idx=%d): %+v", idx, perr)
			r.drv.Release([]int32{idx})
			r.pool.FreeDma([]int32{idx})
			continue
		}

		r.checkJump(h.EvtCounter)

		slot := int(h.EvtCounter) % r.nDmaBuffers
		ev := &r.events[slot]
		ev.AddLane(lane, idx)

		if ev.Ready(r.laneMask) {
			out = append(out, h)
			r.drv.Release(ev.DmaIndices())
			r.pool.FreeDma(ev.DmaIndices())
			ev.Reset()
		}
	}

	return out, nil
}

func (r *Reader) checkJump(evtCounter uint32) {
	if !r.haveLast {
		r.haveLast = true
		r.lastEvtCounter = evtCounter
		return
	}

	want := r.lastEvtCounter + 1
	if evtCounter != want {
		atomic.AddUint64(&r.nPgpJumps, 1)
		r.msg.Printf("evtCounter jump: got=%d want=%d", evtCounter, want)
	}
	r.lastEvtCounter = evtCounter
}

// Latency returns now minus the header's timestamp.
func (r *Reader) Latency(now time.Time, h xtc.TimingHeader) time.Duration {
	return now.Sub(time.Unix(0, h.Timestamp.ToNS()))
}

// Stats returns the error/jump counters.
func (r *Reader) Stats() (tmgHdrErrors, pgpJumps uint64) {
	return atomic.LoadUint64(&r.nTmgHdrError), atomic.LoadUint64(&r.nPgpJumps)
}
