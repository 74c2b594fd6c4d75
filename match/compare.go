// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"time"

	"github.com/robertu94/lcls2/xtc"
)

// Degree selects how _compare judges two timestamps equal (spec §4.G).
type Degree int

const (
	// DegreeAlwaysEqual treats every pair as a match, pairing queue
	// heads unconditionally with no timestamp comparison at all. UDP
	// mode uses this: the encoder side channel carries no timestamp
	// comparable to the pebble's EPICS-epoch timing timestamp.
	DegreeAlwaysEqual Degree = 0
	// DegreeTolerance compares timestamps with their low fiducial bits
	// masked off, within a 10ms tolerance.
	DegreeTolerance Degree = 1
	// DegreeStrict requires bit-exact equality.
	DegreeStrict Degree = 2
)

// fiducialMask clears the low 17 bits shared with a 360Hz fiducial
// counter embedded in the raw timestamp, per spec §4.G.
const fiducialMask = 0x1ffff

// tolerance is the PV/UDP match window under DegreeTolerance.
const tolerance = 10 * time.Millisecond

// compare implements _compare(pebble.time, pv.time): -1 if a is
// older, 0 if they match under degree, +1 if a is newer.
func compare(a, b xtc.Timestamp, degree Degree) int {
	switch degree {
	case DegreeAlwaysEqual:
		return 0
	case DegreeTolerance:
		am := xtc.Timestamp(uint64(a) &^ fiducialMask)
		bm := xtc.Timestamp(uint64(b) &^ fiducialMask)
		d := am.ToNS() - bm.ToNS()
		switch {
		case d > tolerance.Nanoseconds():
			return 1
		case d < -tolerance.Nanoseconds():
			return -1
		default:
			return 0
		}
	default:
		return a.Compare(b)
	}
}
