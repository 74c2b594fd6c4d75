// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv converts contributions (xtc.EbDgram) to and from LCIO
// files, the opaque serializer format spec §3 leaves unspecified.
// Each contribution is packed into a single lcio.GenericObject, the
// same way the DAQ's C++ side parks an opaque byte blob inside an
// LCIO event.
package xcnv // import "github.com/robertu94/lcls2/internal/xcnv"
