// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bld

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPort is the default BLD multicast port (spec §6).
const DefaultPort = 10148

const rcvBufSize = 16 << 20 // 16 MiB, spec §4.D

// udpPacketReader adapts a multicast *net.UDPConn to the non-blocking
// PacketReader seam: a short read deadline stands in for recv(MSG_DONTWAIT).
type udpPacketReader struct {
	conn *net.UDPConn
}

// Listen opens a UDP socket with a 16 MiB receive buffer, binds to
// mcaddr:port and joins the multicast group on iface.
func Listen(mcaddr string, port int, iface net.IP) (PacketReader, error) {
	group := net.UDPAddr{IP: net.ParseIP(mcaddr), Port: port}

	var laddr *net.Interface
	if iface != nil {
		ifaces, err := net.Interfaces()
		if err != nil {
			return nil, fmt.Errorf("bld: could not list interfaces: %w", err)
		}
		for i := range ifaces {
			addrs, err := ifaces[i].Addrs()
			if err != nil {
				continue
			}
			for _, a := range addrs {
				ipn, ok := a.(*net.IPNet)
				if ok && ipn.IP.Equal(iface) {
					laddr = &ifaces[i]
				}
			}
		}
	}

	conn, err := net.ListenMulticastUDP("udp", laddr, &group)
	if err != nil {
		return nil, fmt.Errorf("bld: could not join multicast group %s:%d: %w", mcaddr, port, err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("bld: could not get raw conn: %w", err)
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufSize)
	})
	if err != nil {
		return nil, fmt.Errorf("bld: could not reach raw fd: %w", err)
	}
	if sockErr != nil {
		return nil, fmt.Errorf("bld: could not set SO_RCVBUF: %w", sockErr)
	}

	return &udpPacketReader{conn: conn}, nil
}

func (u *udpPacketReader) ReadPacket() ([]byte, bool, error) {
	buf := make([]byte, MTU)

	if err := u.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return nil, false, fmt.Errorf("bld: could not set read deadline: %w", err)
	}

	n, err := u.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("bld: read error: %w", err)
	}
	return buf[:n], true, nil
}

// Close closes the underlying socket.
func (u *udpPacketReader) Close() error { return u.conn.Close() }

var _ PacketReader = (*udpPacketReader)(nil)
