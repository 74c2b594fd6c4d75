// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package udpenc

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// LoopbackInterval is the self-test send period of LoopbackSender.
const LoopbackInterval = 1 * time.Second

// Encode serializes f into a raw UDP encoder frame, the inverse of
// Decode.
func Encode(f Frame) []byte {
	raw := make([]byte, headerSize+channelSize*len(f.Channels))
	binary.BigEndian.PutUint16(raw[0:2], f.FrameCount)
	binary.BigEndian.PutUint16(raw[2:4], f.MajorVersion)
	raw[4] = f.MinorVersion
	raw[5] = f.MicroVersion
	copy(raw[6:22], f.HardwareID[:])
	raw[22] = f.ChannelMask

	off := headerSize
	for _, c := range f.Channels {
		binary.BigEndian.PutUint32(raw[off:off+4], c.EncoderValue)
		binary.BigEndian.PutUint32(raw[off+4:off+8], c.Timing)
		binary.BigEndian.PutUint16(raw[off+8:off+10], c.Scale)
		binary.BigEndian.PutUint16(raw[off+10:off+12], c.ScaleDenom)
		raw[off+12] = c.Mode
		raw[off+13] = c.Error
		off += channelSize
	}
	return raw
}

// LoopbackSender is a self-test source that periodically sends itself
// a synthetic frame, grounded on UdpEncoder.cc's loopbackSend() and
// its _loopbackInit()/_loopbackFini() pair: an operator-facing way to
// exercise the receive/decode path with no real encoder attached.
type LoopbackSender struct {
	conn  *net.UDPConn
	count uint16
}

// NewLoopbackSender dials the loopback interface on port, the same
// port the contributor's own Receiver is bound to.
func NewLoopbackSender(port int) (*LoopbackSender, error) {
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return nil, fmt.Errorf("udpenc: could not dial loopback port %d: %w", port, err)
	}
	return &LoopbackSender{conn: conn}, nil
}

// Send transmits one synthetic frame and advances the frame counter.
func (l *LoopbackSender) Send() error {
	f := Frame{FrameCount: l.count, MajorVersion: 1, ChannelMask: 0x1, Channels: []Channel{{}}}
	l.count++
	_, err := l.conn.Write(Encode(f))
	return err
}

// Run sends a synthetic frame every LoopbackInterval until ctx is
// done.
func (l *LoopbackSender) Run(ctx context.Context) {
	t := time.NewTicker(LoopbackInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = l.Send()
		}
	}
}

// Close releases the loopback socket.
func (l *LoopbackSender) Close() error { return l.conn.Close() }
