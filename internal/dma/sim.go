// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dma

import (
	"context"
	"fmt"
	"sync"
)

// Sim is a deterministic in-memory BlockReader for tests: Push queues
// a raw block and assigns it the next index; Read drains whatever is
// queued (up to MaxRetCnt), blocking until ctx is done if nothing is
// available.
type Sim struct {
	mu     sync.Mutex
	blocks map[int32][]byte
	ready  chan int32
	next   int32
}

// NewSim creates an empty simulated DMA ring of the given depth.
func NewSim(depth int) *Sim {
	return &Sim{
		blocks: make(map[int32][]byte, depth),
		ready:  make(chan int32, depth),
	}
}

// Push enqueues a fresh raw block and returns the index it was assigned.
func (s *Sim) Push(raw []byte) int32 {
	s.mu.Lock()
	idx := s.next
	s.next++
	s.blocks[idx] = raw
	s.mu.Unlock()

	s.ready <- idx
	return idx
}

func (s *Sim) Read(ctx context.Context) ([]int32, error) {
	select {
	case idx := <-s.ready:
		out := []int32{idx}
		for len(out) < MaxRetCnt {
			select {
			case idx := <-s.ready:
				out = append(out, idx)
			default:
				return out, nil
			}
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Sim) Block(idx int32) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[idx]
	if !ok {
		panic(fmt.Sprintf("dma: sim: unknown block index %d", idx))
	}
	return b
}

func (s *Sim) Release(indices []int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range indices {
		delete(s.blocks, idx)
	}
}

var _ BlockReader = (*Sim)(nil)
