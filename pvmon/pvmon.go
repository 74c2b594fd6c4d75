// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pvmon implements the PV Monitor of spec §4.E: it subscribes
// to a named process variable, introspects its payload schema on
// connect, and normalizes each update into a (timestamp, payload)
// pair for the matching engine. The PV access protocol itself (pva or
// ca) is an external collaborator (spec §1, out of scope); this
// package only fixes the interface a real client plugs into.
package pvmon // import "github.com/robertu94/lcls2/pvmon"

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robertu94/lcls2/xtc"
)

// Provider is either "pva" (newer) or "ca" (legacy).
type Provider string

const (
	PVA Provider = "pva"
	CA  Provider = "ca"
)

// Schema is the introspected payload shape of a PV.
type Schema struct {
	ScalarType string
	NElem      int
	Rank       int
}

// Update is one value change delivered by the PV client.
type Update struct {
	Timestamp xtc.Timestamp // EPICS timestamp of the update
	Data      []byte
}

// Subscription is the live handle a Client hands back from Connect.
type Subscription interface {
	Schema(ctx context.Context) (Schema, error)
	Updates() <-chan Update
	Close() error
}

// Client is the seam a real pva/ca library plugs into.
type Client interface {
	Connect(ctx context.Context, provider Provider, name, field string) (Subscription, error)
}

// schemaTimeout bounds how long schema introspection may take before
// Connect fails (spec §4.E).
const schemaTimeout = 3 * time.Second

// Monitor normalizes one PV's updates into timestamped payload
// buffers drawn from a small freelist.
type Monitor struct {
	msg *log.Logger

	provider Provider
	name     string
	field    string

	client Client
	sub    Subscription
	schema Schema

	mu       sync.Mutex
	freelist [][]byte

	nMissed uint64

	errc chan<- string // async error/warning channel
}

// Option configures a Monitor at construction time.
type Option func(*Monitor)

// WithLogger overrides the default stdout logger.
func WithLogger(msg *log.Logger) Option {
	return func(m *Monitor) { m.msg = msg }
}

// WithErrChan wires the async error/warning publication channel (spec §6).
func WithErrChan(errc chan<- string) Option {
	return func(m *Monitor) { m.errc = errc }
}

// New creates a Monitor for <provider>/<name>.<field>, drawing value
// buffers from a freelist of the given depth and bufSize.
func New(client Client, provider Provider, name, field string, freelistDepth, bufSize int, opts ...Option) *Monitor {
	m := &Monitor{
		msg:      log.New(os.Stdout, "pvmon: ", 0),
		provider: provider,
		name:     name,
		field:    field,
		client:   client,
		freelist: make([][]byte, freelistDepth),
	}
	for i := range m.freelist {
		m.freelist[i] = make([]byte, bufSize)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect subscribes and introspects the payload schema, failing if
// the schema cannot be resolved within 3s.
func (m *Monitor) Connect(ctx context.Context) error {
	sub, err := m.client.Connect(ctx, m.provider, m.name, m.field)
	if err != nil {
		m.reportAsync(fmt.Sprintf("pvmon: could not connect to %s/%s.%s: %v", m.provider, m.name, m.field, err))
		return fmt.Errorf("pvmon: could not connect to %s/%s.%s: %w", m.provider, m.name, m.field, err)
	}

	sctx, cancel := context.WithTimeout(ctx, schemaTimeout)
	defer cancel()

	schema, err := sub.Schema(sctx)
	if err != nil {
		m.reportAsync(fmt.Sprintf("pvmon: could not resolve schema for %s/%s.%s: %v", m.provider, m.name, m.field, err))
		_ = sub.Close()
		return fmt.Errorf("pvmon: could not resolve schema for %s/%s.%s: %w", m.provider, m.name, m.field, err)
	}

	m.sub = sub
	m.schema = schema
	return nil
}

// Schema returns the introspected payload schema, valid after Connect.
func (m *Monitor) Schema() Schema { return m.schema }

// Run drains updates until ctx is done or the subscription closes,
// calling process for each one that was successfully copied into a
// freelist buffer.
func (m *Monitor) Run(ctx context.Context, process func(ts xtc.Timestamp, payload []byte)) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-m.sub.Updates():
			if !ok {
				m.reportAsync(fmt.Sprintf("pvmon: %s/%s.%s disconnected", m.provider, m.name, m.field))
				return
			}
			buf := m.draw(len(upd.Data))
			if buf == nil {
				atomic.AddUint64(&m.nMissed, 1)
				continue
			}
			copy(buf, upd.Data)
			process(upd.Timestamp, buf)
		}
	}
}

// draw pulls a buffer from the freelist, returning nil if empty.
func (m *Monitor) draw(n int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.freelist) == 0 {
		return nil
	}
	buf := m.freelist[len(m.freelist)-1]
	m.freelist = m.freelist[:len(m.freelist)-1]
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	return buf[:n]
}

// Release returns a buffer obtained from process back to the freelist.
func (m *Monitor) Release(buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freelist = append(m.freelist, buf[:cap(buf)])
}

// NMissed returns the count of updates dropped because the freelist
// was empty.
func (m *Monitor) NMissed() uint64 { return atomic.LoadUint64(&m.nMissed) }

// Close tears down the subscription.
func (m *Monitor) Close() error {
	if m.sub == nil {
		return nil
	}
	return m.sub.Close()
}

func (m *Monitor) reportAsync(s string) {
	m.msg.Print(s)
	if m.errc == nil {
		return
	}
	select {
	case m.errc <- s:
	default:
	}
}
