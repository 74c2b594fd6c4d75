// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robertu94/lcls2/xtc"
)

// errDone signals a scripted fakeTiming ran out of headers, used by
// tests to stop RunBLD deterministically instead of racing a timeout.
var errDone = errors.New("fakeTiming: exhausted")

// fakeSource is a scripted Source: a queue of (timestamp, payload)
// events, with Clear simply discarding entries older than a cutoff.
// fakeSource mimics bld.Receiver's consuming cursor: each Next()
// advances past the previously-delivered event and returns the new
// one (0 once exhausted); Clear skips ahead without delivering.
type fakeSource struct {
	events []xtc.Timestamp
	data   map[xtc.Timestamp][]byte
	idx    int
}

func newFakeSource(evs ...xtc.Timestamp) *fakeSource {
	data := make(map[xtc.Timestamp][]byte, len(evs))
	for _, e := range evs {
		data[e] = []byte{byte(e)}
	}
	return &fakeSource{events: evs, data: data, idx: -1}
}

func (f *fakeSource) Next() xtc.Timestamp {
	f.idx++
	if f.idx >= len(f.events) {
		f.idx = len(f.events)
		return 0
	}
	return f.events[f.idx]
}

func (f *fakeSource) CurrentPayload() []byte {
	if f.idx < 0 || f.idx >= len(f.events) {
		return nil
	}
	return f.data[f.events[f.idx]]
}

func (f *fakeSource) Clear(ts xtc.Timestamp) {
	for f.idx+1 < len(f.events) && f.events[f.idx+1].Compare(ts) < 0 {
		f.idx++
	}
}

type fakeTiming struct {
	headers []xtc.TimingHeader
	pos     int

	// idle is the number of (false, nil) returns to deliver before
	// consuming headers, simulating a matching loop that has gone
	// quiet without erroring out.
	idle int
}

func (f *fakeTiming) Next(ctx context.Context) (xtc.TimingHeader, bool, error) {
	if f.idle > 0 {
		f.idle--
		return xtc.TimingHeader{}, false, nil
	}
	if f.pos >= len(f.headers) {
		return xtc.TimingHeader{}, false, errDone
	}
	h := f.headers[f.pos]
	f.pos++
	return h, true, nil
}

type fakeSink struct {
	dgrams   []xtc.EbDgram
	timeouts int
}

func (f *fakeSink) Emit(ctx context.Context, dgram xtc.EbDgram) error {
	f.dgrams = append(f.dgrams, dgram)
	return nil
}

func (f *fakeSink) Timeout(ctx context.Context) error {
	f.timeouts++
	return nil
}

func TestRunBLDExactMatchCopiesPayload(t *testing.T) {
	src := newFakeSource(xtc.Timestamp(100))
	timing := &fakeTiming{headers: []xtc.TimingHeader{
		{Timestamp: 100, Service: xtc.L1Accept},
	}}
	sink := &fakeSink{}
	e := NewEngine(timing, []string{"ebeam"}, []Source{src}, sink)

	if err := e.RunBLD(context.Background()); err != nil && !errors.Is(err, errDone) {
		t.Fatalf("RunBLD: %+v", err)
	}
	if len(sink.dgrams) != 1 {
		t.Fatalf("expected exactly one emitted dgram, got %d", len(sink.dgrams))
	}
	if sink.dgrams[0].Damage != 0 {
		t.Fatalf("expected no damage on an exact match, got %v", sink.dgrams[0].Damage)
	}
}

func TestRunBLDTriggerBeforeDataIsMissingData(t *testing.T) {
	src := newFakeSource(xtc.Timestamp(200))
	timing := &fakeTiming{headers: []xtc.TimingHeader{
		{Timestamp: 100, Service: xtc.L1Accept},
	}}
	sink := &fakeSink{}
	e := NewEngine(timing, []string{"ebeam"}, []Source{src}, sink)

	if err := e.RunBLD(context.Background()); err != nil && !errors.Is(err, errDone) {
		t.Fatalf("RunBLD: %+v", err)
	}
	if len(sink.dgrams) != 1 {
		t.Fatalf("expected one dgram, got %d", len(sink.dgrams))
	}
	if !sink.dgrams[0].Damage.Has(xtc.MissingData) {
		t.Fatalf("expected MissingData damage, got %v", sink.dgrams[0].Damage)
	}
}

func TestRunBLDStaleSideChannelAdvancesWithoutEmit(t *testing.T) {
	// Side channel's first sample (50) is stale relative to the
	// trigger at 300; it should be discarded via Clear rather than
	// emitted, then the real match at 300 proceeds cleanly.
	src := newFakeSource(xtc.Timestamp(50), xtc.Timestamp(300))
	timing := &fakeTiming{headers: []xtc.TimingHeader{
		{Timestamp: 300, Service: xtc.L1Accept},
	}}
	sink := &fakeSink{}
	e := NewEngine(timing, []string{"ebeam"}, []Source{src}, sink)

	if err := e.RunBLD(context.Background()); err != nil && !errors.Is(err, errDone) {
		t.Fatalf("RunBLD: %+v", err)
	}
	if len(sink.dgrams) != 1 {
		t.Fatalf("expected one dgram, got %d", len(sink.dgrams))
	}
	if sink.dgrams[0].Damage != 0 {
		t.Fatalf("expected the eventual match to be clean, got %v", sink.dgrams[0].Damage)
	}
}

func TestRunBLDDroppedSourceMarksDamage(t *testing.T) {
	matched := newFakeSource(xtc.Timestamp(100))
	missing := newFakeSource() // never produces anything
	timing := &fakeTiming{headers: []xtc.TimingHeader{
		{Timestamp: 100, Service: xtc.L1Accept},
	}}
	sink := &fakeSink{}
	e := NewEngine(timing, []string{"ebeam", "pcav"}, []Source{matched, missing}, sink)

	if err := e.RunBLD(context.Background()); err != nil && !errors.Is(err, errDone) {
		t.Fatalf("RunBLD: %+v", err)
	}
	if len(sink.dgrams) != 1 {
		t.Fatalf("expected one dgram, got %d", len(sink.dgrams))
	}
	if !sink.dgrams[0].Damage.Has(xtc.DroppedContribution) {
		t.Fatalf("expected DroppedContribution damage, got %v", sink.dgrams[0].Damage)
	}
	dropped, _ := e.Stats()
	if dropped[1] != 1 {
		t.Fatalf("expected source 1 to have one dropped contribution, got %d", dropped[1])
	}
}

func TestRunBLDTransitionPassesThrough(t *testing.T) {
	src := newFakeSource(xtc.Timestamp(100))
	timing := &fakeTiming{headers: []xtc.TimingHeader{
		{Service: xtc.Configure},
		{Timestamp: 100, Service: xtc.L1Accept},
	}}
	sink := &fakeSink{}
	e := NewEngine(timing, []string{"ebeam"}, []Source{src}, sink)

	if err := e.RunBLD(context.Background()); err != nil && !errors.Is(err, errDone) {
		t.Fatalf("RunBLD: %+v", err)
	}
	if len(sink.dgrams) != 2 {
		t.Fatalf("expected two dgrams (transition + match), got %d", len(sink.dgrams))
	}
	if sink.dgrams[0].Timing.Service != xtc.Configure {
		t.Fatalf("expected the transition to pass through first")
	}
}

func TestRunBLDIdleTimerSignalsTimeout(t *testing.T) {
	src := newFakeSource(xtc.Timestamp(100))
	timing := &fakeTiming{
		idle: 5,
		headers: []xtc.TimingHeader{
			{Timestamp: 100, Service: xtc.L1Accept},
		},
	}
	sink := &fakeSink{}
	e := NewEngine(timing, []string{"ebeam"}, []Source{src}, sink, WithFlushTimeout(time.Nanosecond))

	if err := e.RunBLD(context.Background()); err != nil && !errors.Is(err, errDone) {
		t.Fatalf("RunBLD: %+v", err)
	}
	if sink.timeouts == 0 {
		t.Fatalf("expected at least one idle timeout signal, got 0")
	}
}
