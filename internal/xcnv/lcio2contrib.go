// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"encoding/binary"
	"fmt"
	"log"
	"unsafe"

	"go-hep.org/x/hep/lcio"

	"github.com/robertu94/lcls2/xtc"
)

// LCIO2Contrib replays an LCIO dump as a stream of contributions on
// out, closing it once r is exhausted.
func LCIO2Contrib(r *lcio.Reader, out chan<- *xtc.EbDgram, msg *log.Logger) error {
	defer close(out)

	i := 0
	for r.Next() {
		if i%100 == 0 {
			msg.Printf("replaying contribution %d...", i)
		}

		evt := r.Event()
		obj, ok := evt.Get("DRP_CONTRIB").(*lcio.GenericObject)
		if !ok {
			return fmt.Errorf("xcnv: event %d has no DRP_CONTRIB generic object", i)
		}
		raw := bytesFromI32s(obj.Data[0].I32s)
		if len(raw) < 4 {
			return fmt.Errorf("xcnv: event %d has a truncated contribution", i)
		}

		n := binary.LittleEndian.Uint32(raw[0:4])
		body := raw[4:]
		if uint32(len(body)) < n {
			return fmt.Errorf("xcnv: event %d: packed length %d exceeds %d available bytes", i, n, len(body))
		}

		var d xtc.EbDgram
		if err := d.UnmarshalBinary(body[:n]); err != nil {
			return fmt.Errorf("xcnv: could not unmarshal contribution %d: %w", i, err)
		}
		out <- &d
		i++
	}

	return nil
}

func bytesFromI32s(raw []int32) []byte {
	n := len(raw)
	if n == 0 {
		return nil
	}
	const i32sz = 4
	ptr := (*byte)(unsafe.Pointer(&raw[0]))
	return unsafe.Slice(ptr, i32sz*n)
}
