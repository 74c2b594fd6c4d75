// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"errors"
	"testing"

	"github.com/robertu94/lcls2/xtc"
)

type fakeSink struct {
	slots     map[int]*xtc.EbDgram
	processed []*xtc.EbDgram
	fetchErr  error
	procErr   error
	timeouts  int
}

func newFakeSink() *fakeSink {
	return &fakeSink{slots: map[int]*xtc.EbDgram{}}
}

func (s *fakeSink) Fetch(index int) (*xtc.EbDgram, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	d, ok := s.slots[index]
	if !ok {
		d = &xtc.EbDgram{}
		s.slots[index] = d
	}
	return d, nil
}

func (s *fakeSink) Process(dgram *xtc.EbDgram) error {
	if s.procErr != nil {
		return s.procErr
	}
	s.processed = append(s.processed, dgram)
	return nil
}

func (s *fakeSink) Timeout() error {
	s.timeouts++
	return nil
}

type fakeTrigger struct {
	called bool
	err    error
	xtc    []byte
}

func (t *fakeTrigger) Produce(dgram *xtc.EbDgram) error {
	t.called = true
	if t.err != nil {
		return t.err
	}
	dgram.XTC = append(dgram.XTC, t.xtc...)
	return nil
}

func TestSendToTebEmitsToSink(t *testing.T) {
	sink := newFakeSink()
	e := New(sink, 1024, 256)

	dgram := &xtc.EbDgram{Timing: xtc.TimingHeader{Service: xtc.SlowUpdate}, XTC: []byte{1, 2, 3}}
	if err := e.SendToTeb(dgram, 0); err != nil {
		t.Fatalf("SendToTeb: %+v", err)
	}
	if len(sink.processed) != 1 {
		t.Fatalf("expected one processed dgram, got %d", len(sink.processed))
	}
	if got, want := sink.processed[0].XTC, []byte{1, 2, 3}; string(got) != string(want) {
		t.Fatalf("XTC payload: got=%v want=%v", got, want)
	}
	if _, emitted := e.Stats(); emitted != 1 {
		t.Fatalf("expected emitted=1, got %d", emitted)
	}
}

func TestSendToTebOverflowPanics(t *testing.T) {
	sink := newFakeSink()
	e := New(sink, 4, 4)

	dgram := &xtc.EbDgram{
		Timing: xtc.TimingHeader{Service: xtc.L1Accept},
		XTC:    make([]byte, 1024),
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected SendToTeb to panic on overflow")
		}
		if overflow, _ := e.Stats(); overflow != 1 {
			t.Fatalf("expected overflow=1, got %d", overflow)
		}
	}()
	_ = e.SendToTeb(dgram, 0)
}

func TestSendToTebFetchErrorPropagates(t *testing.T) {
	sink := newFakeSink()
	sink.fetchErr = errors.New("no free slot")
	e := New(sink, 1024, 256)

	dgram := &xtc.EbDgram{Timing: xtc.TimingHeader{Service: xtc.SlowUpdate}}
	if err := e.SendToTeb(dgram, 0); err == nil {
		t.Fatalf("expected an error when Fetch fails")
	}
}

func TestSendToTebAttachesTriggerPrimitiveOnL1AcceptOnly(t *testing.T) {
	sink := newFakeSink()
	trig := &fakeTrigger{xtc: []byte{0xAA}}
	e := New(sink, 1024, 256, WithTriggerPrimitive(trig))

	l1 := &xtc.EbDgram{Timing: xtc.TimingHeader{Service: xtc.L1Accept}}
	if err := e.SendToTeb(l1, 0); err != nil {
		t.Fatalf("SendToTeb: %+v", err)
	}
	if !trig.called {
		t.Fatalf("expected the trigger primitive to run for an L1Accept")
	}
	if got, want := sink.processed[0].XTC, []byte{0xAA}; string(got) != string(want) {
		t.Fatalf("XTC payload: got=%v want=%v", got, want)
	}

	trig.called = false
	tr := &xtc.EbDgram{Timing: xtc.TimingHeader{Service: xtc.SlowUpdate}}
	if err := e.SendToTeb(tr, 1); err != nil {
		t.Fatalf("SendToTeb: %+v", err)
	}
	if trig.called {
		t.Fatalf("did not expect the trigger primitive to run for a non-L1Accept service")
	}
}

func TestSendToTebProcessErrorPropagates(t *testing.T) {
	sink := newFakeSink()
	sink.procErr = errors.New("eb sink closed")
	e := New(sink, 1024, 256)

	dgram := &xtc.EbDgram{Timing: xtc.TimingHeader{Service: xtc.SlowUpdate}}
	if err := e.SendToTeb(dgram, 0); err == nil {
		t.Fatalf("expected an error when Process fails")
	}
}

func TestEmitterTimeoutForwardsToSink(t *testing.T) {
	sink := newFakeSink()
	e := New(sink, 1024, 256)

	if err := e.Timeout(); err != nil {
		t.Fatalf("Timeout: %+v", err)
	}
	if sink.timeouts != 1 {
		t.Fatalf("expected the sink to observe one timeout signal, got %d", sink.timeouts)
	}
}
