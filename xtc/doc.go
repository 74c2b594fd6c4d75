// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xtc holds the wire-level data model shared by every
// component of a DRP contributor: timestamps, timing headers, the
// damage bitset, and the contribution datagram (EbDgram) that gets
// handed to the event builder.
package xtc // import "github.com/robertu94/lcls2/xtc"
