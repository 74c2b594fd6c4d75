// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/robertu94/lcls2/internal/dma"
)

// openDriver resolves the -d device flag into a dma.BlockReader. The
// real PGP/DMA kernel driver is an external collaborator (spec §1,
// out of scope); the only device this build can open directly is the
// in-memory simulator, named "sim" or "sim:<depth>", used for
// development and the UDP/PV self-test loopback paths.
func openDriver(device string) (dma.BlockReader, error) {
	name, depthStr, _ := strings.Cut(device, ":")
	if name != "sim" {
		return nil, fmt.Errorf("drp-contrib: unsupported device %q (only the \"sim\" simulator ships in this build; a real PGP driver binding is an external collaborator)", device)
	}
	depth := dma.MaxRetCnt * 4
	if depthStr != "" {
		n, err := fmt.Sscanf(depthStr, "%d", &depth)
		if err != nil || n != 1 {
			return nil, fmt.Errorf("drp-contrib: invalid sim depth in device %q", device)
		}
	}
	return dma.NewSim(depth), nil
}
