// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trans

import "testing"

func TestConfigurationValidateAcceptsKnownKeys(t *testing.T) {
	cfg := Configuration{"pebbleBufSize": "1024", "match_tmo_ms": "1500"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %+v", err)
	}
}

func TestConfigurationValidateRejectsUnknownKey(t *testing.T) {
	cfg := Configuration{"not_a_real_key": "1"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for an unrecognized key")
	}
}
