// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trans implements the Transition State Machine of spec §4.H
// and the control-plane server of spec §6: a tdaq-backed command
// server that drives a Device through
// Reset→Connect→Configure→Enable→Disable→Unconfigure→Disconnect→Reset,
// with Disable→Enable as a legal loop-back and Unconfigure run first
// when Disconnect is requested from Configured or Disabled.
package trans // import "github.com/robertu94/lcls2/trans"
