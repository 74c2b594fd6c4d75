// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xtc

import "testing"

func TestTimestampOrdering(t *testing.T) {
	t1 := NewTimestamp(1000, 500)
	t2 := NewTimestamp(1000, 600)
	t3 := NewTimestamp(1001, 0)

	if !t1.Less(t2) {
		t.Fatalf("expected %v < %v", t1, t2)
	}
	if !t2.Less(t3) {
		t.Fatalf("expected %v < %v", t2, t3)
	}
	if got, want := t1.Compare(t1), 0; got != want {
		t.Fatalf("Compare(self): got=%d want=%d", got, want)
	}
	if got, want := t3.Compare(t1), 1; got != want {
		t.Fatalf("Compare(t3,t1): got=%d want=%d", got, want)
	}
}

func TestTimestampComponents(t *testing.T) {
	ts := NewTimestamp(42, 123456)
	if got, want := ts.Seconds(), uint32(42); got != want {
		t.Fatalf("Seconds: got=%d want=%d", got, want)
	}
	if got, want := ts.Nanoseconds(), uint32(123456); got != want {
		t.Fatalf("Nanoseconds: got=%d want=%d", got, want)
	}
}

func TestTimestampToNS(t *testing.T) {
	ts := NewTimestamp(0, 0)
	if got, want := ts.ToNS(), int64(posixAtEPICSEpoch)*1e9; got != want {
		t.Fatalf("ToNS: got=%d want=%d", got, want)
	}
}
