// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xtc

// Damage is a monotone bitset attached to every emitted contribution:
// bits are only ever set, never cleared, for the lifetime of a dgram.
type Damage uint32

const (
	MissingData Damage = 1 << iota
	DroppedContribution
	Truncated
	TimedOut
	OutOfOrder
	UserDefined
)

// Set ORs bit into d and returns the result; it never clears a bit.
func (d Damage) Set(bit Damage) Damage { return d | bit }

// Has reports whether bit is set in d.
func (d Damage) Has(bit Damage) bool { return d&bit != 0 }

func (d Damage) String() string {
	if d == 0 {
		return "none"
	}
	var (
		names = []struct {
			bit  Damage
			name string
		}{
			{MissingData, "MissingData"},
			{DroppedContribution, "DroppedContribution"},
			{Truncated, "Truncated"},
			{TimedOut, "TimedOut"},
			{OutOfOrder, "OutOfOrder"},
			{UserDefined, "UserDefined"},
		}
		s string
	)
	for _, n := range names {
		if d.Has(n.bit) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}
