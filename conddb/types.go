// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import "time"

// RunInfo is the bookkeeping record for one run: its number, the
// experiment it belongs to, and its start/end time. A zero End means
// the run is still open.
type RunInfo struct {
	RunNum  uint32
	ExpName string
	Start   time.Time
	End     time.Time
}

// ChunkInfo records one data chunk (file rotation) written during a run.
type ChunkInfo struct {
	RunNum   uint32
	ChunkID  uint32
	Filename string
}

// VarDef describes one field of a BLD detector payload whose layout
// is resolved from the database rather than hard-coded (spec §4.D,
// the PVA-introspected path for an unknown detector name).
type VarDef struct {
	Name   string
	Type   string
	Offset uint32
	Size   uint32
}
