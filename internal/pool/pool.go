// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pool implements the fixed-capacity MemPool+Pebble of spec
// §4.A: a contiguous slab of contribution buffers (the pebble), a
// freelist of transition buffers guarded by a condition variable, and
// the DMA-index bookkeeping shared between the timing reader and the
// matching engine.
package pool // import "github.com/robertu94/lcls2/internal/pool"

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robertu94/lcls2/internal/mmap"
)

// Config describes the fixed shape of a MemPool, set once at startup.
type Config struct {
	NBuffers    int // pebble slab depth
	BufSize     int // bytes per pebble buffer (bufferSize(L1Accept))
	NTrBuffers  int // transition buffer freelist depth
	TrBufSize   int // bytes per transition buffer (maxTrSize)
	NDmaBuffers int // DMA index ring depth
}

// MemPool is the fixed-capacity owner of the pebble slab, the
// transition-buffer freelist, and the DMA index accounting. It is
// created once per contributor and torn down at Unconfigure.
type MemPool struct {
	cfg Config

	pebble *mmap.Handle // contiguous slab of NBuffers*BufSize bytes

	mu       sync.Mutex
	free     []int // free pebble indices
	trCond   *sync.Cond
	trFree   [][]byte // free transition buffers
	dmaFree  int      // number of DMA indices currently available to allocate
	maskSet  bool     // setMaskBytes is one-shot
	isDown   bool

	allocs, frees         uint64
	dmaAllocs, dmaFrees    uint64
}

// ErrShutdown is returned by allocators once the pool has been shut down.
var ErrShutdown = fmt.Errorf("pool: shut down")

// New allocates the pebble slab and transition freelist described by cfg.
func New(cfg Config) (*MemPool, error) {
	if cfg.NBuffers <= 0 || cfg.BufSize <= 0 {
		return nil, fmt.Errorf("pool: invalid pebble shape %+v", cfg)
	}
	if cfg.NTrBuffers <= 0 || cfg.TrBufSize <= 0 {
		return nil, fmt.Errorf("pool: invalid transition buffer shape %+v", cfg)
	}

	slab := make([]byte, cfg.NBuffers*cfg.BufSize)
	p := &MemPool{
		cfg:    cfg,
		pebble: mmap.HandleFrom(slab),
		free:   make([]int, cfg.NBuffers),
	}
	p.trCond = sync.NewCond(&p.mu)
	for i := 0; i < cfg.NBuffers; i++ {
		p.free[i] = i
	}
	for i := 0; i < cfg.NTrBuffers; i++ {
		p.trFree = append(p.trFree, make([]byte, cfg.TrBufSize))
	}
	p.dmaFree = cfg.NDmaBuffers

	return p, nil
}

// Allocate reserves a pebble index for a new L1Accept contribution.
// Exhaustion is an invariant violation (the pebble is sized to the
// configured DMA ring) and is fatal, per spec §7.
func (p *MemPool) Allocate() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		panic("pool: pebble exhausted")
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	atomic.AddUint64(&p.allocs, 1)
	return idx
}

// FreePebble returns a pebble index to the free list.
func (p *MemPool) FreePebble(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = append(p.free, idx)
	atomic.AddUint64(&p.frees, 1)
}

// Buffer returns a copy of the bytes held at pebble index idx; writing
// to the returned slice does not change the pebble (see WriteBuffer).
func (p *MemPool) Buffer(idx int) []byte {
	off := idx * p.cfg.BufSize
	buf := make([]byte, p.cfg.BufSize)
	_, _ = p.pebble.ReadAt(buf, int64(off))
	return buf
}

// WriteBuffer copies data into pebble index idx.
func (p *MemPool) WriteBuffer(idx int, data []byte) error {
	if len(data) > p.cfg.BufSize {
		return fmt.Errorf("pool: write %d bytes overflows buffer of size %d", len(data), p.cfg.BufSize)
	}
	off := idx * p.cfg.BufSize
	_, err := p.pebble.WriteAt(data, int64(off))
	return err
}

// AllocateTr draws a transition buffer from the freelist, blocking
// while it is empty. It returns ErrShutdown (the sentinel of spec
// §4.A) once Shutdown has been called.
func (p *MemPool) AllocateTr() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.trFree) == 0 && !p.isDown {
		p.trCond.Wait()
	}
	if p.isDown {
		return nil, ErrShutdown
	}
	buf := p.trFree[len(p.trFree)-1]
	p.trFree = p.trFree[:len(p.trFree)-1]
	return buf, nil
}

// FreeTr returns a transition buffer to the freelist and wakes one
// waiter blocked in AllocateTr.
func (p *MemPool) FreeTr(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trFree = append(p.trFree, buf[:cap(buf)])
	p.trCond.Signal()
}

// CountDma returns the number of DMA indices currently outstanding
// (allocated but not yet freed).
func (p *MemPool) CountDma() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.NDmaBuffers - p.dmaFree
}

// AllocDma records that n fresh DMA blocks have been handed to the
// timing reader.
func (p *MemPool) AllocDma(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dmaFree -= n
	atomic.AddUint64(&p.dmaAllocs, uint64(n))
}

// FreeDma releases the given DMA indices, called once a PGPEvent that
// held them has been fully consumed.
func (p *MemPool) FreeDma(indices []int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dmaFree += len(indices)
	atomic.AddUint64(&p.dmaFrees, uint64(len(indices)))
}

// SetMaskBytes performs the one-shot driver handshake that enables DMA
// on a lane; repeat calls are no-ops.
func (p *MemPool) SetMaskBytes(laneMask uint32, vc int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.maskSet {
		return false
	}
	p.maskSet = true
	return true
}

// InUse returns the current pebble allocation depth.
func (p *MemPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.NBuffers - len(p.free)
}

// Stats returns the allocation counters.
func (p *MemPool) Stats() (allocs, frees, dmaAllocs, dmaFrees uint64) {
	return atomic.LoadUint64(&p.allocs), atomic.LoadUint64(&p.frees),
		atomic.LoadUint64(&p.dmaAllocs), atomic.LoadUint64(&p.dmaFrees)
}

// Shutdown wakes every AllocateTr waiter with ErrShutdown and makes
// every later AllocateTr call return ErrShutdown. Allocate (pebble
// indices) does not check the shutdown flag and keeps handing out
// indices.
func (p *MemPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isDown = true
	p.trCond.Broadcast()
}

// Close releases the pebble slab's backing memory.
func (p *MemPool) Close() error {
	return p.pebble.Close()
}
