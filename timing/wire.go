// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timing

import (
	"encoding/binary"
	"fmt"

	"github.com/robertu94/lcls2/xtc"
)

// headerSize is the fixed size, in bytes, of a TimingHeader as laid
// out at the front of a DMA block.
const headerSize = 8 + 8 + 1 + 4 + 4

// ParseTimingHeader decodes the TimingHeader at the front of a raw DMA
// block (spec §4.C: "each block is parsed as a TimingHeader").
func ParseTimingHeader(raw []byte) (xtc.TimingHeader, error) {
	var h xtc.TimingHeader
	if len(raw) < headerSize {
		return h, fmt.Errorf("timing: short block: %d bytes, want at least %d", len(raw), headerSize)
	}

	h.Timestamp = xtc.Timestamp(binary.BigEndian.Uint64(raw[0:8]))
	h.PulseID = binary.BigEndian.Uint64(raw[8:16])
	h.Service = xtc.Service(raw[16])
	h.EvtCounter = binary.BigEndian.Uint32(raw[17:21])
	h.RogMask = binary.BigEndian.Uint32(raw[21:25])
	return h, nil
}

// EncodeTimingHeader is the inverse of ParseTimingHeader; it is used
// by tests and the DMA simulator to build synthetic blocks.
func EncodeTimingHeader(h xtc.TimingHeader) []byte {
	raw := make([]byte, headerSize)
	binary.BigEndian.PutUint64(raw[0:8], uint64(h.Timestamp))
	binary.BigEndian.PutUint64(raw[8:16], h.PulseID)
	raw[16] = byte(h.Service)
	binary.BigEndian.PutUint32(raw[17:21], h.EvtCounter)
	binary.BigEndian.PutUint32(raw[21:25], h.RogMask)
	return raw
}
