// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trans

import "fmt"

// Configuration is the key/value map carried by a configure request.
// Spec §3 fixes a closed set of recognized keys; any other key is
// fatal at startup.
type Configuration map[string]string

// recognizedKeys is the closed set of spec §3. Interface is a BLD-only
// key, Firstdim is PV-only, MatchTmoMs is PV/UDP-only; Validate does
// not distinguish modes, leaving mode-appropriateness to the caller.
var recognizedKeys = map[string]bool{
	"forceEnet":      true,
	"ep_fabric":      true,
	"ep_domain":      true,
	"ep_provider":    true,
	"sim_length":     true,
	"timebase":       true,
	"pebbleBufSize":  true,
	"pebbleBufCount": true,
	"batching":       true,
	"directIO":       true,
	"interface":      true, // BLD only
	"firstdim":       true, // PV only
	"match_tmo_ms":   true, // PV/UDP only
}

// Validate rejects any key outside the closed set.
func (c Configuration) Validate() error {
	for k := range c {
		if !recognizedKeys[k] {
			return fmt.Errorf("trans: unrecognized configuration key %q", k)
		}
	}
	return nil
}
