// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robertu94/lcls2/bld"
	"github.com/robertu94/lcls2/conddb"
	"github.com/robertu94/lcls2/emit"
	"github.com/robertu94/lcls2/internal/dma"
	"github.com/robertu94/lcls2/internal/pool"
	"github.com/robertu94/lcls2/internal/queue"
	"github.com/robertu94/lcls2/match"
	"github.com/robertu94/lcls2/pvmon"
	"github.com/robertu94/lcls2/timing"
	"github.com/robertu94/lcls2/trans"
	"github.com/robertu94/lcls2/udpenc"
	"github.com/robertu94/lcls2/xtc"
)

// emitSink adapts an emit.Emitter to match.Sink: it numbers every
// emitted dgram with the next value of a running counter and passes
// that as the index to SendToTeb. No pool pebble is drawn or released
// here.
type emitSink struct {
	em      *emit.Emitter
	running *atomic.Bool
	idx     atomic.Int64
}

func (s *emitSink) Emit(ctx context.Context, dgram xtc.EbDgram) error {
	if dgram.Timing.Service == xtc.L1Accept && !s.running.Load() {
		// Not yet Enabled: triggers are silently dropped, per spec §4.H.
		return nil
	}
	index := int(s.idx.Add(1))
	return s.em.SendToTeb(&dgram, index)
}

// Timeout forwards the idle-timer flush signal (spec §4.G) to the
// underlying Emitter/teb sink.
func (s *emitSink) Timeout(ctx context.Context) error {
	return s.em.Timeout()
}

// contributor wires the mode-specific side channel, the matching
// engine and the teb sink behind the transition lifecycle of spec
// §4.H. One contributor exists per drp-contrib process.
type contributor struct {
	msg *log.Logger
	opt options

	db  *conddb.DB
	mp  *pool.MemPool
	drv dma.BlockReader
	rd  *timing.Reader
	teb *tebSink

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runNum uint32

	udpEng     *match.TwoQueueEngine     // set by runUDP; swept by Disable
	udpPebbleQ *queue.Queue[xtc.EbDgram] // set by runUDP; swept by Disable
}

func newContributor(opt options, db *conddb.DB, teb *tebSink, msg *log.Logger) *contributor {
	return &contributor{opt: opt, db: db, teb: teb, msg: msg}
}

var _ trans.Device = (*contributor)(nil)

func (c *contributor) Connect(ctx context.Context, cfg trans.Configuration) error {
	drv, err := openDriver(c.opt.device)
	if err != nil {
		return err
	}
	c.drv = drv
	return nil
}

func (c *contributor) Configure(ctx context.Context, cfg trans.Configuration) error {
	nBuffers := intConfig(cfg, "pebbleBufCount", 512)
	bufSize := intConfig(cfg, "pebbleBufSize", 1<<20)
	nTrBuffers := intConfig(cfg, "batching", 64)
	trBufSize := bufSize
	nDma := intConfig(cfg, "pebbleBufCount", 512)

	mp, err := pool.New(pool.Config{
		NBuffers:    nBuffers,
		BufSize:     bufSize,
		NTrBuffers:  nTrBuffers,
		TrBufSize:   trBufSize,
		NDmaBuffers: nDma,
	})
	if err != nil {
		return fmt.Errorf("drp-contrib: could not allocate mempool: %w", err)
	}
	c.mp = mp
	mp.SetMaskBytes(c.opt.laneMask, laneOf(c.opt.laneMask))

	c.rd = timing.New(c.drv, mp, c.opt.laneMask, nDma, timing.WithLogger(c.msg))

	tmo := time.Duration(intConfig(cfg, "match_tmo_ms", 1000)) * time.Millisecond
	flushTmo := match.FlushTimeout(nTrBuffers)

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	sink := &emitSink{em: emit.New(c.teb, bufSize, trBufSize), running: &c.running}

	c.wg.Add(1)
	switch c.opt.modeHint {
	case modeBLD:
		go func() { defer c.wg.Done(); c.runBLD(ctx, sink, flushTmo) }()
	case modePV:
		go func() { defer c.wg.Done(); c.runPV(ctx, sink, tmo, flushTmo) }()
	case modeUDP:
		go func() { defer c.wg.Done(); c.runUDP(ctx, sink, tmo, flushTmo) }()
	default:
		c.wg.Done()
		return fmt.Errorf("drp-contrib: unknown mode %q", c.opt.modeHint)
	}

	if c.db != nil {
		_ = c.db.RecordConfig(ctx, c.opt.alias, cfg)
	}
	return nil
}

func (c *contributor) Enable(ctx context.Context, chunked bool) error {
	c.running.Store(true)
	return nil
}

func (c *contributor) Disable(ctx context.Context) error {
	c.running.Store(false)

	if c.opt.modeHint == modeUDP {
		c.mu.Lock()
		eng, pebbleQ := c.udpEng, c.udpPebbleQ
		c.mu.Unlock()
		if eng != nil && pebbleQ != nil {
			if err := eng.Flush(ctx, pebbleQ); err != nil {
				c.msg.Printf("disable: could not sweep udp pebble queue: %+v", err)
			}
		}
	}
	return nil
}

func (c *contributor) Unconfigure(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	if c.mp != nil {
		c.mp.Shutdown()
		if err := c.mp.Close(); err != nil {
			c.msg.Printf("unconfigure: could not close mempool: %+v", err)
		}
		c.mp = nil
	}
	return nil
}

func (c *contributor) Disconnect(ctx context.Context) error {
	if c.teb != nil {
		if err := c.teb.Close(); err != nil {
			c.msg.Printf("disconnect: could not close teb connection: %+v", err)
		}
	}
	return nil
}

func (c *contributor) BeginRun(ctx context.Context, runNum uint32) error {
	c.runNum = runNum
	if c.db == nil {
		return nil
	}
	_, err := c.db.BeginRun(ctx, c.opt.instrument, time.Now())
	return err
}

func (c *contributor) EndRun(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.EndRun(ctx, c.runNum, time.Now())
}

// runBLD drives the multi-source timestamp-ordered matching engine of
// spec §4.G against the configured BLD detector list.
func (c *contributor) runBLD(ctx context.Context, sink match.Sink, flushTmo time.Duration) {
	var names []string
	var sources []match.Source
	for _, spec := range c.opt.detectors {
		def, ok := bld.LookupVarDef(spec)
		if !ok {
			c.msg.Printf("bld: skipping unresolved detector spec %q (dynamic PV-driven discovery is an external collaborator)", spec)
			continue
		}
		pr, err := bld.Listen("239.255.0.1", bldPort(def.Detector), nil)
		if err != nil {
			c.msg.Printf("bld: could not listen for %q: %+v", spec, err)
			continue
		}
		names = append(names, def.Detector)
		sources = append(sources, bld.New(pr, def))
	}
	if len(sources) == 0 {
		c.msg.Printf("bld: no detectors resolved, matching loop idle")
		return
	}

	feed := match.NewReaderFeed(c.rd.Read, 10*time.Millisecond)
	eng := match.NewEngine(feed, names, sources, sink, match.WithLogger(c.msg), match.WithFlushTimeout(flushTmo))
	if err := eng.RunBLD(ctx); err != nil && ctx.Err() == nil {
		c.msg.Printf("bld: matching loop exited: %+v", err)
	}
}

// runPV drives the two-queue matcher of spec §4.G against a single
// process variable's updates.
func (c *contributor) runPV(ctx context.Context, sink match.Sink, tmo, flushTmo time.Duration) {
	degree := match.DegreeStrict
	switch {
	case c.opt.degreeZero:
		degree = match.DegreeAlwaysEqual
	case c.opt.degreeOne:
		degree = match.DegreeTolerance
	}

	provider, name, field := parsePVDescriptor(c.opt.pvDescriptor)
	mon := pvmon.New(unboundPVClient{}, provider, name, field, 64, 4096, pvmon.WithLogger(c.msg))
	if err := mon.Connect(ctx); err != nil {
		c.msg.Printf("pv: could not connect: %+v", err)
		return
	}
	defer mon.Close()

	pebbleQ := queue.New[xtc.EbDgram](1024)
	sideQ := queue.New[match.SideEntry](256)
	pebbleQ.Startup()
	sideQ.Startup()
	defer pebbleQ.Shutdown()
	defer sideQ.Shutdown()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.feedPebble(ctx, pebbleQ)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		mon.Run(ctx, func(ts xtc.Timestamp, payload []byte) {
			buf := append([]byte{}, payload...)
			sideQ.Push(match.SideEntry{Timestamp: ts, Payload: buf})
			mon.Release(payload)
		})
	}()

	eng := match.NewTwoQueueEngine(degree, tmo, sink, match.WithTwoQueueLogger(c.msg), match.WithTwoQueueFlushTimeout(flushTmo))
	if err := eng.RunTwoQueue(ctx, pebbleQ, sideQ); err != nil && ctx.Err() == nil {
		c.msg.Printf("pv: matching loop exited: %+v", err)
	}
}

// runUDP drives the two-queue matcher against the UDP Encoder
// Receiver of spec §4.F.
func (c *contributor) runUDP(ctx context.Context, sink match.Sink, tmo, flushTmo time.Duration) {
	sock, err := udpenc.Bind(c.opt.loopbackPort)
	if err != nil {
		c.msg.Printf("udp: could not bind loopback port %d: %+v", c.opt.loopbackPort, err)
		return
	}
	defer sock.Close()

	if sender, err := udpenc.NewLoopbackSender(c.opt.loopbackPort); err != nil {
		c.msg.Printf("udp: could not start loopback self-test: %+v", err)
	} else {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer sender.Close()
			sender.Run(ctx)
		}()
	}

	errc := make(chan string, 16)
	recv := udpenc.New(sock, udpenc.WithLogger(c.msg), udpenc.WithErrChan(errc))

	pebbleQ := queue.New[xtc.EbDgram](1024)
	sideQ := queue.New[match.SideEntry](256)
	pebbleQ.Startup()
	sideQ.Startup()
	defer pebbleQ.Shutdown()
	defer sideQ.Shutdown()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.feedPebble(ctx, pebbleQ)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if ctx.Err() != nil {
				return
			}
			res, ok, err := recv.Next()
			if err != nil {
				c.msg.Printf("udp: receiver failed: %+v", err)
				return
			}
			if !ok {
				continue
			}
			// The frameCount carried in SideEntry.Timestamp has no
			// relation to the pebble's EPICS-epoch timing timestamp
			// (see the DegreeAlwaysEqual wiring below); it is kept
			// only for bookkeeping/debugging.
			sideQ.Push(match.SideEntry{Timestamp: xtc.Timestamp(uint64(res.Frame.FrameCount)), Payload: encodeChannels(res.Frame)})
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-errc:
				c.msg.Print(s)
			}
		}
	}()

	// UDP mode pairs queue heads unconditionally once both have an
	// entry, exactly as UdpEncoder.cc's _matchUp() does no timestamp
	// comparison at all — DegreeAlwaysEqual is the matching degree
	// that models that, not a real compare of magnitudes that could
	// never be equal.
	eng := match.NewTwoQueueEngine(match.DegreeAlwaysEqual, tmo, sink, match.WithTwoQueueLogger(c.msg), match.WithTwoQueueFlushTimeout(flushTmo))

	c.mu.Lock()
	c.udpEng = eng
	c.udpPebbleQ = pebbleQ
	c.mu.Unlock()

	if err := eng.RunTwoQueue(ctx, pebbleQ, sideQ); err != nil && ctx.Err() == nil {
		c.msg.Printf("udp: matching loop exited: %+v", err)
	}
}

// feedPebble reads accepted triggers off the timing reader and pushes
// one pebble-bound EbDgram per trigger for the two-queue matcher.
func (c *contributor) feedPebble(ctx context.Context, pebbleQ *queue.Queue[xtc.EbDgram]) {
	for {
		headers, err := c.rd.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.msg.Printf("timing: read failed: %+v", err)
			}
			return
		}
		for _, h := range headers {
			pebbleQ.Push(xtc.EbDgram{Timing: h})
		}
	}
}

// encodeChannels packs a decoded UDP encoder frame's channels into a
// flat byte payload for the matching engine's side-channel queue.
func encodeChannels(f udpenc.Frame) []byte {
	raw := make([]byte, 12*len(f.Channels))
	for i, ch := range f.Channels {
		off := i * 12
		binary.BigEndian.PutUint32(raw[off:off+4], ch.EncoderValue)
		binary.BigEndian.PutUint32(raw[off+4:off+8], ch.Timing)
		binary.BigEndian.PutUint16(raw[off+8:off+10], ch.Scale)
		binary.BigEndian.PutUint16(raw[off+10:off+12], ch.ScaleDenom)
	}
	return raw
}

// bldPort maps a hard-coded detector name onto its multicast port.
// The facility's name-to-port registry is external (spec §1); this
// build derives a stable port deterministically from the name so the
// BLD mode's wiring is exercisable standalone.
func bldPort(name string) int {
	base := bld.DefaultPort
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h*31 + uint32(name[i])
	}
	return base + int(h%1000)
}

func laneOf(mask uint32) int {
	for i := 0; i < 32; i++ {
		if mask&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 0
}
