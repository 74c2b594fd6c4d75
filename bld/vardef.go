// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bld

import (
	"context"
	"fmt"
	"time"
)

// Field describes one named, typed member of a BLD payload.
type Field struct {
	Name string
	Type string // e.g. "float64", "uint32"
}

// VarDef is the field-name-to-type schema of a BLD detector's
// payload (spec §4.D). It is either one of a handful of hard-coded
// definitions, or resolved lazily from three PVs.
type VarDef struct {
	Detector    string
	PayloadSize int // S, bytes
	Fields      []Field
}

// knownVarDefs are the four hard-coded beam-line detector schemas.
var knownVarDefs = map[string]VarDef{
	"ebeam": {
		Detector:    "ebeam",
		PayloadSize: 8 * 21,
		Fields:      []Field{{"EbeamCharge", "float64"}, {"EbeamL3Energy", "float64"}},
	},
	"pcav": {
		Detector:    "pcav",
		PayloadSize: 8 * 4,
		Fields:      []Field{{"FitTime1", "float64"}, {"Charge1", "float64"}},
	},
	"gmd": {
		Detector:    "gmd",
		PayloadSize: 8 * 6,
		Fields:      []Field{{"MilliJoulesPerPulse", "float64"}},
	},
	"xgmd": {
		Detector:    "xgmd",
		PayloadSize: 8 * 6,
		Fields:      []Field{{"MilliJoulesPerPulse", "float64"}},
	},
}

// LookupVarDef returns the hard-coded VarDef for name, if name is one
// of the four known beam-line detectors.
func LookupVarDef(name string) (VarDef, bool) {
	v, ok := knownVarDefs[name]
	return v, ok
}

// PVResolver answers a scalar string-valued PV get, used only to
// resolve the ADDR/PORT/PAYLOAD triple of a dynamically-described
// detector. The actual PV access protocol is an external collaborator
// (spec §1, out of scope); this is the seam a real implementation
// plugs a pva/ca client into.
type PVResolver interface {
	Get(pv string) (string, bool)
}

// ResolveVarDef polls <id>:ADDR, <id>:PORT and <id>:PAYLOAD every
// 10ms until all three are available or ctx is done (spec §4.D).
func ResolveVarDef(ctx context.Context, id string, pv PVResolver) (addr, port string, payloadSize int, err error) {
	const poll = 10 * time.Millisecond

	get := func(suffix string) (string, bool) {
		return pv.Get(fmt.Sprintf("%s:%s", id, suffix))
	}

	var sizeStr string
	for {
		var okA, okP, okS bool
		addr, okA = get("ADDR")
		port, okP = get("PORT")
		sizeStr, okS = get("PAYLOAD")
		if okA && okP && okS {
			break
		}
		select {
		case <-ctx.Done():
			return "", "", 0, fmt.Errorf("bld: timed out resolving VarDef for %q: %w", id, ctx.Err())
		case <-time.After(poll):
		}
	}

	_, err = fmt.Sscanf(sizeStr, "%d", &payloadSize)
	if err != nil {
		return "", "", 0, fmt.Errorf("bld: invalid PAYLOAD size %q for %q: %w", sizeStr, id, err)
	}
	return addr, port, payloadSize, nil
}
