// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dma declares the opaque DMA block reader interface the
// timing reader (spec §4.C) is built on. The actual driver is an
// external collaborator (spec §1, out of scope); this package only
// fixes the shape the timing reader needs, plus a deterministic
// simulator for tests.
package dma // import "github.com/robertu94/lcls2/internal/dma"

import "context"

// MaxRetCnt bounds how many fresh block indices a single Read can
// return (spec §4.C, MAX_RET_CNT).
const MaxRetCnt = 32

// BlockReader is the opaque DMA block source a Timing Reader drains.
type BlockReader interface {
	// Read blocks (subject to the driver's own internal timeout) and
	// returns up to MaxRetCnt indices of freshly completed DMA blocks.
	Read(ctx context.Context) ([]int32, error)

	// Block returns the raw bytes of the block at idx. The slice is
	// only valid until the index is released.
	Block(idx int32) []byte

	// Release returns the given block indices to the driver's free ring.
	Release(indices []int32)
}
