// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command drp-ctl is an interactive, line-edited console for
// rehearsing the transition lifecycle of spec §4.H: connect, configure,
// enable, disable, beginrun, endrun, unconfigure, disconnect, reset.
//
// The real control-plane transport (spec §1's "cluster control-plane
// messaging") is an opaque external collaborator this repository does
// not implement, so drp-ctl drives a trans.FSM in-process against a
// logging stub Device rather than dialing a remote drp-contrib. That
// makes it useful for operator training and for rehearsing a
// configuration's key/value set against the legal-transition graph
// before running it against real hardware.
package main // import "github.com/robertu94/lcls2/cmd/drp-ctl"

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/robertu94/lcls2/trans"
)

const historyFile = ".drp-ctl_history"

var msg = log.New(os.Stdout, "drp-ctl: ", 0)

func main() {
	fsm := trans.NewFSM(newStubDevice(os.Stdout))

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("drp-ctl: interactive transition-lifecycle console. Type 'help' for commands.")
	runREPL(os.Stdout, line, fsm)
}

// runREPL drives the prompt loop; split out of main for testability.
func runREPL(w io.Writer, line *liner.State, fsm *trans.FSM) {
	ctx := context.Background()
	for {
		prompt := fmt.Sprintf("drp-ctl[%s]> ", fsm.State())
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return
			}
			fmt.Fprintf(w, "error: %+v\n", err)
			return
		}
		line.AppendHistory(input)

		if quit := dispatch(w, ctx, fsm, input); quit {
			return
		}
	}
}

// dispatch executes one REPL line and reports whether the console
// should exit.
func dispatch(w io.Writer, ctx context.Context, fsm *trans.FSM, input string) (quit bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	var err error
	switch strings.ToLower(cmd) {
	case "help", "?":
		printHelp(w)
	case "state":
		fmt.Fprintf(w, "%s\n", fsm.State())
	case "connect":
		err = fsm.Connect(ctx, parseArgsKV(args))
	case "configure":
		err = fsm.Configure(ctx, parseArgsKV(args))
	case "enable":
		err = fsm.Enable(ctx, containsFlag(args, "chunked"))
	case "disable":
		err = fsm.Disable(ctx)
	case "beginrun":
		var run uint64
		if len(args) > 0 {
			run, _ = strconv.ParseUint(args[0], 10, 32)
		}
		err = fsm.BeginRun(ctx, uint32(run))
	case "endrun":
		err = fsm.EndRun(ctx)
	case "unconfigure":
		err = fsm.Unconfigure(ctx)
	case "disconnect":
		err = fsm.Disconnect(ctx)
	case "reset":
		err = fsm.Reset(ctx)
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(w, "unknown command %q; type 'help'\n", cmd)
		return false
	}
	if err != nil {
		fmt.Fprintf(w, "error: %+v\n", err)
	}
	return false
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `commands:
  connect [key=value ...]     move Reset -> Connected
  configure [key=value ...]   move Connected -> Configured
  enable [chunked]            move Configured/Disabled -> Enabled
  disable                     move Enabled -> Disabled
  beginrun [runNum]           mark a run boundary (requires Enabled)
  endrun                      end the current run (requires Enabled)
  unconfigure                 move Configured/Disabled -> Unconfigured
  disconnect                  move Connected/Unconfigured -> Disconnected
  reset                       force Unconfigure+Disconnect -> Reset
  state                       print the current lifecycle state
  quit                        leave the console
`)
}

// parseArgsKV parses a list of "key=value" tokens into a
// trans.Configuration, mirroring cmd/drp-contrib's "-k" flag grammar.
func parseArgsKV(args []string) trans.Configuration {
	cfg := trans.Configuration{}
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			cfg[k] = v
		}
	}
	return cfg
}

func containsFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}
