// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/robertu94/lcls2/xtc"
)

// tebSink implements emit.Sink over a plain TCP connection to a
// trigger event builder node: each contribution is written as a
// 4-byte big-endian length prefix followed by EbDgram.MarshalBinary.
type tebSink struct {
	msg  *log.Logger
	mu   sync.Mutex
	conn net.Conn
}

func dialTeb(addr string, msg *log.Logger) (*tebSink, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("drp-contrib: could not dial teb at %q: %w", addr, err)
	}
	return &tebSink{msg: msg, conn: conn}, nil
}

// Fetch satisfies emit.Sink; this sink has no pool-backed EB slots of
// its own, so every contribution gets a freshly allocated dgram.
func (s *tebSink) Fetch(index int) (*xtc.EbDgram, error) {
	return &xtc.EbDgram{}, nil
}

// Process writes dgram to the teb connection, framed by its length.
func (s *tebSink) Process(dgram *xtc.EbDgram) error {
	raw, err := dgram.MarshalBinary()
	if err != nil {
		return fmt.Errorf("drp-contrib: could not marshal dgram for teb: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(raw)))
	if _, err := s.conn.Write(hdr[:]); err != nil {
		return fmt.Errorf("drp-contrib: could not write teb frame header: %w", err)
	}
	if _, err := s.conn.Write(raw); err != nil {
		return fmt.Errorf("drp-contrib: could not write teb frame body: %w", err)
	}
	return nil
}

// Timeout writes a zero-length length-prefix frame, the teb-side
// sentinel for "flush your pending batch, no contribution follows",
// mirroring EbAppBase.cc's tebContributor().timeout() signal.
func (s *tebSink) Timeout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hdr [4]byte
	if _, err := s.conn.Write(hdr[:]); err != nil {
		return fmt.Errorf("drp-contrib: could not write teb timeout sentinel: %w", err)
	}
	return nil
}

func (s *tebSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
