// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xtc

// PGPMaxLanes is the maximum number of DMA lanes a single PGPEvent can
// hold an index for (spec §3, PGP_MAX_LANES).
const PGPMaxLanes = 4

// PGPEvent is the per-trigger mailbox indexed by evtCounter mod
// nDmaBuffers: it accumulates one DMA index per lane until every lane
// named in the configured lane mask has arrived. It is created when
// the first lane's DMA completes and destroyed (via MemPool.freeDma)
// once every index it holds has been released.
type PGPEvent struct {
	Lanes     [PGPMaxLanes]int32 // DMA block index per lane, -1 if not yet arrived
	Mask      uint32             // bit set per lane that has arrived
	PebbleIdx int32              // index into the pebble slab, -1 until allocated
}

// Reset clears the event back to its empty state.
func (e *PGPEvent) Reset() {
	for i := range e.Lanes {
		e.Lanes[i] = -1
	}
	e.Mask = 0
	e.PebbleIdx = -1
}

// AddLane records that lane's DMA block arrived at index dmaIdx.
func (e *PGPEvent) AddLane(lane int, dmaIdx int32) {
	e.Lanes[lane] = dmaIdx
	e.Mask |= 1 << uint(lane)
}

// Ready reports whether every lane named in laneMask has arrived.
func (e *PGPEvent) Ready(laneMask uint32) bool {
	return e.Mask&laneMask == laneMask
}

// DmaIndices returns the arrived DMA indices, in lane order.
func (e *PGPEvent) DmaIndices() []int32 {
	out := make([]int32, 0, PGPMaxLanes)
	for lane := 0; lane < PGPMaxLanes; lane++ {
		if e.Mask&(1<<uint(lane)) != 0 {
			out = append(out, e.Lanes[lane])
		}
	}
	return out
}
