// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package udpenc

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// WakeInterval is the select() wake period of spec §4.F.
const WakeInterval = 10 * time.Second

// Socket is the non-blocking, peek-capable datagram source a Receiver
// drives. The production implementation binds a UDP port and uses
// select(2)+MSG_PEEK directly on the file descriptor; tests inject a
// synthetic one.
type Socket interface {
	// PeekFrameCount waits up to WakeInterval for a datagram, then
	// inspects (without consuming) its first two bytes. available is
	// false if nothing arrived within the wake interval.
	PeekFrameCount() (frameCount uint16, available bool, err error)

	// Consume reads and removes the currently-peeked datagram.
	Consume() ([]byte, error)

	// Drain removes every currently-queued datagram without
	// processing it (spec §4.F reset()).
	Drain()

	// Close releases the underlying socket resources.
	Close() error
}

// udpSocket is the real Socket, built on golang.org/x/sys/unix so the
// select+MSG_PEEK sequence operates on the raw file descriptor.
type udpSocket struct {
	conn *net.UDPConn
	fd   int
}

// Bind opens a UDP socket on port.
func Bind(port int) (Socket, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("udpenc: could not bind port %d: %w", port, err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("udpenc: could not get raw conn: %w", err)
	}

	var fd int
	err = raw.Control(func(f uintptr) { fd = int(f) })
	if err != nil {
		return nil, fmt.Errorf("udpenc: could not read fd: %w", err)
	}

	return &udpSocket{conn: conn, fd: fd}, nil
}

func (s *udpSocket) waitReadable() (bool, error) {
	var rfds unix.FdSet
	rfds.Set(s.fd)

	tv := unix.NsecToTimeval(WakeInterval.Nanoseconds())
	n, err := unix.Select(s.fd+1, &rfds, nil, nil, &tv)
	if err != nil {
		return false, fmt.Errorf("udpenc: select error: %w", err)
	}
	return n > 0, nil
}

func (s *udpSocket) PeekFrameCount() (uint16, bool, error) {
	ok, err := s.waitReadable()
	if err != nil || !ok {
		return 0, false, err
	}

	buf := make([]byte, 2)
	n, _, err := unix.Recvfrom(s.fd, buf, unix.MSG_PEEK)
	if err != nil {
		return 0, false, fmt.Errorf("udpenc: peek error: %w", err)
	}
	if n < 2 {
		return 0, false, fmt.Errorf("udpenc: short peek: %d bytes", n)
	}

	fc, err := PeekFrameCount(buf)
	return fc, true, err
}

func (s *udpSocket) Consume() ([]byte, error) {
	buf := make([]byte, 1500)
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return nil, fmt.Errorf("udpenc: consume error: %w", err)
	}
	return buf[:n], nil
}

func (s *udpSocket) Drain() {
	buf := make([]byte, 1500)
	for {
		_ = s.conn.SetReadDeadline(time.Now())
		_, err := s.conn.Read(buf)
		if err != nil {
			return
		}
	}
}

func (s *udpSocket) Close() error { return s.conn.Close() }

var _ Socket = (*udpSocket)(nil)
