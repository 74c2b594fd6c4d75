// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xtc

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed on-wire size, in bytes, of an EbDgram's
// header: TimingHeader + source id + rogMask + damage bitset.
const HeaderSize = 8 /*Timestamp*/ + 8 /*PulseID*/ + 4 /*Service+pad*/ +
	4 /*EvtCounter*/ + 4 /*RogMask(timing)*/ + 4 /*SrcID*/ + 4 /*RogMask*/ + 4 /*Damage*/

// EbDgram is a contribution: a fixed header followed by an XTC tree
// whose internal layout is opaque to this package (spec §3).
type EbDgram struct {
	Timing  TimingHeader
	SrcID   uint32
	RogMask uint32
	Damage  Damage
	XTC     []byte
}

// Size returns sizeof(header) + the payload size of the XTC tree.
func (d *EbDgram) Size() int { return HeaderSize + len(d.XTC) }

// BufferSize returns the maximum allowed size for a dgram of the
// given service, per spec §3: L1Accept uses the pebble buffer size,
// every other service uses the (smaller) transition buffer size.
func BufferSize(service Service, pebbleBufSize, maxTrSize int) int {
	if service == L1Accept {
		return pebbleBufSize
	}
	return maxTrSize
}

// Validate enforces the invariant sizeof(header) + xtc.payloadSize <=
// bufferSize(service).
func (d *EbDgram) Validate(pebbleBufSize, maxTrSize int) error {
	max := BufferSize(d.Timing.Service, pebbleBufSize, maxTrSize)
	if size := d.Size(); size > max {
		return fmt.Errorf("xtc: dgram overflow: size=%d > bufferSize(%s)=%d", size, d.Timing.Service, max)
	}
	return nil
}

// SetDamage ORs bit into the dgram's damage bitset (monotone: never clears).
func (d *EbDgram) SetDamage(bit Damage) { d.Damage = d.Damage.Set(bit) }

// MarshalBinary packs the fixed header followed by the opaque XTC
// payload, for storage in a serializer's generic object slot.
func (d *EbDgram) MarshalBinary() ([]byte, error) {
	raw := make([]byte, HeaderSize+len(d.XTC))
	binary.BigEndian.PutUint64(raw[0:8], uint64(d.Timing.Timestamp))
	binary.BigEndian.PutUint64(raw[8:16], d.Timing.PulseID)
	binary.BigEndian.PutUint32(raw[16:20], uint32(d.Timing.Service))
	binary.BigEndian.PutUint32(raw[20:24], d.Timing.EvtCounter)
	binary.BigEndian.PutUint32(raw[24:28], d.Timing.RogMask)
	binary.BigEndian.PutUint32(raw[28:32], d.SrcID)
	binary.BigEndian.PutUint32(raw[32:36], d.RogMask)
	binary.BigEndian.PutUint32(raw[36:40], uint32(d.Damage))
	copy(raw[HeaderSize:], d.XTC)
	return raw, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (d *EbDgram) UnmarshalBinary(raw []byte) error {
	if len(raw) < HeaderSize {
		return fmt.Errorf("xtc: short dgram: %d bytes, want at least %d", len(raw), HeaderSize)
	}
	d.Timing.Timestamp = Timestamp(binary.BigEndian.Uint64(raw[0:8]))
	d.Timing.PulseID = binary.BigEndian.Uint64(raw[8:16])
	d.Timing.Service = Service(binary.BigEndian.Uint32(raw[16:20]))
	d.Timing.EvtCounter = binary.BigEndian.Uint32(raw[20:24])
	d.Timing.RogMask = binary.BigEndian.Uint32(raw[24:28])
	d.SrcID = binary.BigEndian.Uint32(raw[28:32])
	d.RogMask = binary.BigEndian.Uint32(raw[32:36])
	d.Damage = Damage(binary.BigEndian.Uint32(raw[36:40]))
	d.XTC = append([]byte{}, raw[HeaderSize:]...)
	return nil
}
