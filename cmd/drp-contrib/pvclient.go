// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/robertu94/lcls2/pvmon"
)

// unboundPVClient is the seam pvmon.Client describes for a real pva/ca
// binding (spec §1, out of scope for this build). It lets PV mode wire
// end to end without vendoring an EPICS client; Connect always fails,
// naming the gap explicitly rather than silently stalling.
type unboundPVClient struct{}

func (unboundPVClient) Connect(ctx context.Context, provider pvmon.Provider, name, field string) (pvmon.Subscription, error) {
	return nil, fmt.Errorf("drp-contrib: no %s client is bound into this build; PV mode needs a pva/ca binding", provider)
}
