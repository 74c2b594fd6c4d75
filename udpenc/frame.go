// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package udpenc implements the UDP Encoder Receiver of spec §4.F: a
// point-to-point frame decoder that tracks frameCount ordering and
// synthesizes a damaged placeholder frame on a detected gap.
package udpenc // import "github.com/robertu94/lcls2/udpenc"

import (
	"encoding/binary"
	"fmt"
)

const (
	headerSize  = 2 + 2 + 1 + 1 + 16 + 1
	channelSize = 4 + 4 + 2 + 2 + 1 + 1
)

// Channel is one encoder channel's sample.
type Channel struct {
	EncoderValue uint32
	Timing       uint32
	Scale        uint16
	ScaleDenom   uint16
	Mode         uint8
	Error        uint8
}

// Frame is one decoded UDP encoder frame (spec §6).
type Frame struct {
	FrameCount   uint16
	MajorVersion uint16
	MinorVersion uint8
	MicroVersion uint8
	HardwareID   [16]byte
	ChannelMask  uint8
	Channels     []Channel

	// Synthetic marks a frame that was fabricated locally (a detected
	// gap) rather than received over the wire.
	Synthetic bool
}

// PeekFrameCount reads just the first two bytes of a raw frame.
func PeekFrameCount(raw []byte) (uint16, error) {
	if len(raw) < 2 {
		return 0, fmt.Errorf("udpenc: short peek: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint16(raw[0:2]), nil
}

// Decode parses a full raw UDP encoder frame.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if len(raw) < headerSize {
		return f, fmt.Errorf("udpenc: short frame: %d bytes, want at least %d", len(raw), headerSize)
	}

	f.FrameCount = binary.BigEndian.Uint16(raw[0:2])
	f.MajorVersion = binary.BigEndian.Uint16(raw[2:4])
	f.MinorVersion = raw[4]
	f.MicroVersion = raw[5]
	copy(f.HardwareID[:], raw[6:22])
	f.ChannelMask = raw[22]

	off := headerSize
	for bit := 0; bit < 8; bit++ {
		if f.ChannelMask&(1<<uint(bit)) == 0 {
			continue
		}
		if off+channelSize > len(raw) {
			return f, fmt.Errorf("udpenc: truncated channel %d", bit)
		}
		var c Channel
		c.EncoderValue = binary.BigEndian.Uint32(raw[off : off+4])
		c.Timing = binary.BigEndian.Uint32(raw[off+4 : off+8])
		c.Scale = binary.BigEndian.Uint16(raw[off+8 : off+10])
		c.ScaleDenom = binary.BigEndian.Uint16(raw[off+10 : off+12])
		c.Mode = raw[off+12]
		c.Error = raw[off+13]
		f.Channels = append(f.Channels, c)
		off += channelSize
	}

	return f, nil
}
