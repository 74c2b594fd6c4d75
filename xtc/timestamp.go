// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xtc

import "time"

// posixAtEPICSEpoch is the compile-time constant used to convert an
// EPICS-epoch timestamp (seconds since 1990-01-01) to a POSIX one.
const posixAtEPICSEpoch = 631152000

// Timestamp is a 64-bit composite: the high 32 bits are seconds since
// the EPICS epoch, the low 32 bits are nanoseconds. Ordering and delta
// use the full 64-bit value as an unsigned integer.
type Timestamp uint64

// NewTimestamp packs a (seconds, nanoseconds) pair into a Timestamp.
func NewTimestamp(sec, nsec uint32) Timestamp {
	return Timestamp(uint64(sec)<<32 | uint64(nsec))
}

// Seconds returns the EPICS-epoch seconds component.
func (t Timestamp) Seconds() uint32 { return uint32(t >> 32) }

// Nanoseconds returns the nanoseconds component.
func (t Timestamp) Nanoseconds() uint32 { return uint32(t) }

// ToNS returns the timestamp converted to a POSIX nanosecond count
// since the Unix epoch.
func (t Timestamp) ToNS() int64 {
	sec := int64(t.Seconds()) + posixAtEPICSEpoch
	return sec*1e9 + int64(t.Nanoseconds())
}

// Time converts the timestamp to a wall-clock time.Time, for latency
// and timeout computations against time.Now.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, t.ToNS())
}

// Less reports whether t orders strictly before u.
func (t Timestamp) Less(u Timestamp) bool { return uint64(t) < uint64(u) }

// Compare returns -1, 0 or +1 as t is less than, equal to, or greater than u.
func (t Timestamp) Compare(u Timestamp) int {
	switch {
	case t < u:
		return -1
	case t > u:
		return 1
	default:
		return 0
	}
}

// Delta returns t-u as a signed nanosecond-ish delta expressed in the
// same 64-bit integer space (callers that need a true duration should
// go through ToNS instead; Delta is for the fiducial-masked comparisons
// of the matching engine).
func (t Timestamp) Delta(u Timestamp) int64 {
	return int64(uint64(t) - uint64(u))
}
