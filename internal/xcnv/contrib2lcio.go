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

// Contrib2LCIO drains dgrams, writing one LCIO event per contribution
// until the channel is closed.
func Contrib2LCIO(w *lcio.Writer, dgrams <-chan *xtc.EbDgram, run int32, msg *log.Logger) error {
	var (
		i   = 0
		raw = &lcio.GenericObject{Data: []lcio.GenericObjectData{{I32s: nil}}}
	)

	for d := range dgrams {
		if i%100 == 0 {
			msg.Printf("processing contribution %d...", i)
		}

		if i == 0 {
			err := w.WriteRunHeader(&lcio.RunHeader{
				RunNumber: run,
				Detector:  "DRP",
				Descr:     "side-channel contributor dump",
			})
			if err != nil {
				return fmt.Errorf("xcnv: could not write run header: %w", err)
			}
		}

		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: int32(i),
			TimeStamp:   d.Timing.Timestamp.ToNS(),
			Detector:    "DRP",
		}

		bin, err := d.MarshalBinary()
		if err != nil {
			return fmt.Errorf("xcnv: could not marshal contribution %d: %w", i, err)
		}
		raw.Data[0].I32s = i32sFrom(bin)
		evt.Add("DRP_CONTRIB", raw)

		if err := w.WriteEvent(&evt); err != nil {
			return fmt.Errorf("xcnv: could not write event %d: %w", i, err)
		}
		i++
	}

	return nil
}

// i32sFrom repacks a byte slice as a slice of int32s, padding to a
// 4-byte boundary and prefixing the packed length so LCIO2Contrib can
// trim the padding back off on the way out. It uses the same
// unsafe-pointer reinterpretation trick as the rest of this package's
// lineage rather than an element-by-element copy.
func i32sFrom(raw []byte) []int32 {
	const i32sz = 4

	hdr := make([]byte, i32sz)
	binary.LittleEndian.PutUint32(hdr, uint32(len(raw)))

	buf := append(hdr, raw...)
	if mod := i32sz - (len(buf) % i32sz); mod != i32sz {
		buf = append(buf, make([]byte, mod)...)
	}

	ptr := (*int32)(unsafe.Pointer(&buf[0]))
	return unsafe.Slice(ptr, len(buf)/i32sz)
}
