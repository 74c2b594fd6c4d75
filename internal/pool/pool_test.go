// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pool

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{NBuffers: 4, BufSize: 64, NTrBuffers: 2, TrBufSize: 16, NDmaBuffers: 4}
}

func TestAllocateFreePebble(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	defer p.Close()

	idx := p.Allocate()
	if got, want := p.InUse(), 1; got != want {
		t.Fatalf("InUse: got=%d want=%d", got, want)
	}
	p.FreePebble(idx)
	if got, want := p.InUse(), 0; got != want {
		t.Fatalf("InUse after free: got=%d want=%d", got, want)
	}

	allocs, frees, _, _ := p.Stats()
	if allocs != 1 || frees != 1 {
		t.Fatalf("unexpected stats: allocs=%d frees=%d", allocs, frees)
	}
}

func TestAllocatePebbleExhaustedPanics(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	defer p.Close()

	for i := 0; i < 4; i++ {
		p.Allocate()
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic on pebble exhaustion")
		}
	}()
	p.Allocate()
}

func TestAllocateTrBlocksThenShutdown(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	defer p.Close()

	bufs := make([][]byte, 0, 2)
	for i := 0; i < 2; i++ {
		b, err := p.AllocateTr()
		if err != nil {
			t.Fatalf("could not allocate tr buf: %+v", err)
		}
		bufs = append(bufs, b)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.AllocateTr()
		done <- err
	}()

	select {
	case <-done:
		t.Fatalf("AllocateTr should have blocked with an empty freelist")
	case <-time.After(50 * time.Millisecond):
	}

	p.Shutdown()

	select {
	case err := <-done:
		if err != ErrShutdown {
			t.Fatalf("expected ErrShutdown, got %+v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("AllocateTr did not wake up after Shutdown")
	}

	_ = bufs
}

func TestWriteBufferOverflow(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	defer p.Close()

	idx := p.Allocate()
	err = p.WriteBuffer(idx, make([]byte, 1000))
	if err == nil {
		t.Fatalf("expected an overflow error")
	}
}

func TestDmaAccounting(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	defer p.Close()

	p.AllocDma(2)
	if got, want := p.CountDma(), 2; got != want {
		t.Fatalf("CountDma: got=%d want=%d", got, want)
	}
	p.FreeDma([]int32{0, 1})
	if got, want := p.CountDma(), 0; got != want {
		t.Fatalf("CountDma after free: got=%d want=%d", got, want)
	}
}

func TestSetMaskBytesOneShot(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("could not create pool: %+v", err)
	}
	defer p.Close()

	if !p.SetMaskBytes(0x1, 0) {
		t.Fatalf("first SetMaskBytes call should succeed")
	}
	if p.SetMaskBytes(0x1, 0) {
		t.Fatalf("second SetMaskBytes call should be a no-op")
	}
}
