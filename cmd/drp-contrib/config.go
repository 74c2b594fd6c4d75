// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"math/bits"
	"regexp"
	"strconv"
	"strings"

	"github.com/robertu94/lcls2/pvmon"
	"github.com/robertu94/lcls2/trans"
)

// mode names the side channel this contributor instance drains.
type mode string

const (
	modeBLD mode = "bld"
	modePV  mode = "pv"
	modeUDP mode = "udp"
)

// options is the parsed shape of the CLI surface of spec §6.
type options struct {
	partition int
	laneMask  uint32
	device    string
	alias     string
	modeHint  mode

	collectionHost string
	instrument     string
	prometheusDir  string
	cfg            trans.Configuration
	verbosity      int

	detectors []string // BLD: -D spec list

	pvDescriptor string // PV: positional [<provider>/]<name>[.<field>]
	serNo        string // PV: -S
	degreeZero   bool   // PV: -0
	degreeOne    bool   // PV: -1

	loopbackPort int // UDP: -L

	pmon     bool
	alertTo  string
	smtpHost string
	smtpPort int
	smtpUser string
	smtpPass string
}

var aliasRe = regexp.MustCompile(`_[0-9]+$`)

// parseOptions parses argv (the drp-contrib-specific flags, i.e. the
// positional leftovers of the tdaq flags.Config) into an options.
func parseOptions(argv []string) (options, error) {
	fs := flag.NewFlagSet("drp-contrib", flag.ContinueOnError)

	var (
		opt    options
		kv     string
		lane   uint
		degree0, degree1 bool
	)
	fs.IntVar(&opt.partition, "p", -1, "partition number")
	fs.UintVar(&lane, "l", 0, "lane mask (exactly one bit)")
	fs.StringVar(&opt.device, "d", "", "DMA device")
	fs.StringVar(&opt.alias, "u", "", "contributor alias, must end in _<digits>")
	fs.StringVar(&opt.collectionHost, "C", "", "collection manager host")
	fs.StringVar(&opt.instrument, "P", "", "instrument name")
	fs.StringVar(&opt.prometheusDir, "M", "", "prometheus textfile directory")
	fs.StringVar(&kv, "k", "", "comma-separated key=value configuration overrides")
	fs.IntVar(&opt.verbosity, "v", 0, "verbosity level (integer; repeated -v flags do not accumulate)")

	detectors := fs.String("D", "", "comma-separated BLD detector spec list")
	fs.StringVar(&opt.serNo, "S", "", "PV mode serial number")
	fs.BoolVar(&degree0, "0", false, "PV mode: DegreeAlwaysEqual match")
	fs.BoolVar(&degree1, "1", false, "PV mode: DegreeTolerance match")
	fs.IntVar(&opt.loopbackPort, "L", 0, "UDP mode loopback port for self-test")

	fs.BoolVar(&opt.pmon, "pmon", false, "enable pmon self-monitoring")
	fs.StringVar(&opt.alertTo, "alert-to", "", "email address to alert on a fatal error")
	fs.StringVar(&opt.smtpHost, "smtp-host", "", "SMTP relay host for -alert-to")
	fs.IntVar(&opt.smtpPort, "smtp-port", 25, "SMTP relay port for -alert-to")
	fs.StringVar(&opt.smtpUser, "smtp-user", "", "SMTP auth user for -alert-to")
	fs.StringVar(&opt.smtpPass, "smtp-pass", "", "SMTP auth password for -alert-to")

	if err := fs.Parse(argv); err != nil {
		return options{}, err
	}

	opt.degreeZero = degree0
	opt.degreeOne = degree1
	opt.laneMask = uint32(lane)

	if opt.partition < 0 {
		return options{}, fmt.Errorf("drp-contrib: -p partition is required")
	}
	if bits.OnesCount32(opt.laneMask) != 1 {
		return options{}, fmt.Errorf("drp-contrib: -l laneMask must set exactly one bit, got %#x", opt.laneMask)
	}
	if opt.device == "" {
		return options{}, fmt.Errorf("drp-contrib: -d device is required")
	}
	if opt.alias == "" || !aliasRe.MatchString(opt.alias) {
		return options{}, fmt.Errorf("drp-contrib: -u alias is required and must end in _<digits>, got %q", opt.alias)
	}

	cfg, err := parseKV(kv)
	if err != nil {
		return options{}, err
	}
	opt.cfg = cfg

	if *detectors != "" {
		for _, d := range strings.Split(*detectors, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				opt.detectors = append(opt.detectors, d)
			}
		}
	}

	switch {
	case len(opt.detectors) > 0:
		opt.modeHint = modeBLD
	case opt.loopbackPort != 0:
		opt.modeHint = modeUDP
	default:
		opt.modeHint = modePV
		if fs.NArg() == 0 {
			return options{}, fmt.Errorf("drp-contrib: PV mode requires a positional [<provider>/]<name>[.<field>] descriptor")
		}
		opt.pvDescriptor = fs.Arg(0)
	}

	return opt, nil
}

// parseKV parses a "-k key=value,key2=value2" list into a
// trans.Configuration, per spec §6.
func parseKV(s string) (trans.Configuration, error) {
	cfg := trans.Configuration{}
	if s == "" {
		return cfg, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("drp-contrib: malformed -k entry %q, want key=value", pair)
		}
		cfg[k] = v
	}
	return cfg, nil
}

// parsePVDescriptor splits a "[<provider>/]<name>[.<field>]" PV
// descriptor, defaulting to the pva provider.
func parsePVDescriptor(desc string) (provider pvmon.Provider, name, field string) {
	provider = pvmon.PVA
	if p, rest, ok := strings.Cut(desc, "/"); ok {
		provider = pvmon.Provider(p)
		desc = rest
	}
	if n, f, ok := strings.Cut(desc, "."); ok {
		return provider, n, f
	}
	return provider, desc, ""
}

// intConfig reads an integer key from cfg, falling back to def if
// absent or unparseable.
func intConfig(cfg trans.Configuration, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
