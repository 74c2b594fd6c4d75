// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package match implements the Matching Engine of spec §4.G: it
// correlates timing triggers against one or more side-channel sources
// and emits one contribution per trigger, carrying whatever damage the
// correlation could not resolve cleanly.
//
// Two independent loops cover the two side-channel shapes: RunBLD
// drives the timestamp-ordered, multi-source BLD mode; RunTwoQueue
// drives the PV/UDP two-queue mode.
package match // import "github.com/robertu94/lcls2/match"
