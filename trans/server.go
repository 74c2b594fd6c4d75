// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trans

import (
	"context"
	"encoding/json"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/config"
)

// errInfo is the JSON reply body spec §6 defines for a failed request.
type errInfo struct {
	ErrInfo string `json:"err_info,omitempty"`
}

// connectArgs/configureArgs/enableArgs/runArgs are the JSON request
// bodies for the control-plane keys that carry a payload.
type connectArgs struct {
	Config Configuration `json:"config"`
}

type configureArgs struct {
	Config Configuration `json:"config"`
}

type enableArgs struct {
	Chunked bool `json:"chunked"`
}

type runArgs struct {
	RunNum uint32 `json:"run_num"`
}

// Server wraps an FSM in a tdaq command server, registering the 8
// control-plane request keys of spec §6, plus /disable, as arbitrary
// CmdHandle paths
// (tdaq's 6 canonical hooks do not cover Configure/Enable/etc., so
// this binds its own names instead).
type Server struct {
	fsm  *FSM
	srv  *tdaq.Server
	note *Notifier
}

// NewServer builds a tdaq.Server bound to cmd's collection-bus config,
// wiring every transition onto the FSM driving dev.
func NewServer(cmd config.Process, dev Device, note *Notifier) *Server {
	s := &Server{
		fsm:  NewFSM(dev),
		note: note,
	}
	s.srv = tdaq.New(cmd, os.Stdout)

	s.srv.CmdHandle("/connect", s.onConnect)
	s.srv.CmdHandle("/disconnect", s.onDisconnect)
	s.srv.CmdHandle("/configure", s.onConfigure)
	s.srv.CmdHandle("/unconfigure", s.onUnconfigure)
	s.srv.CmdHandle("/enable", s.onEnable)
	s.srv.CmdHandle("/disable", s.onDisable)
	s.srv.CmdHandle("/beginrun", s.onBeginRun)
	s.srv.CmdHandle("/endrun", s.onEndRun)
	s.srv.CmdHandle("/reset", s.onReset)

	return s
}

// Run blocks serving control-plane requests until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx)
}

func (s *Server) reply(resp *tdaq.Frame, err error) error {
	body := errInfo{}
	if err != nil {
		body.ErrInfo = err.Error()
		if s.note != nil {
			s.note.Publish("error: " + err.Error())
		}
	}
	raw, encErr := json.Marshal(body)
	if encErr != nil {
		return encErr
	}
	resp.Body = raw
	return nil
}

func (s *Server) onConnect(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	var args connectArgs
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &args); err != nil {
			return s.reply(resp, err)
		}
	}
	return s.reply(resp, s.fsm.Connect(ctx.Ctx, args.Config))
}

func (s *Server) onDisconnect(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	return s.reply(resp, s.fsm.Disconnect(ctx.Ctx))
}

func (s *Server) onConfigure(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	var args configureArgs
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &args); err != nil {
			return s.reply(resp, err)
		}
	}
	return s.reply(resp, s.fsm.Configure(ctx.Ctx, args.Config))
}

func (s *Server) onUnconfigure(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	return s.reply(resp, s.fsm.Unconfigure(ctx.Ctx))
}

func (s *Server) onEnable(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	var args enableArgs
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &args); err != nil {
			return s.reply(resp, err)
		}
	}
	return s.reply(resp, s.fsm.Enable(ctx.Ctx, args.Chunked))
}

func (s *Server) onDisable(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	return s.reply(resp, s.fsm.Disable(ctx.Ctx))
}

func (s *Server) onBeginRun(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	var args runArgs
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &args); err != nil {
			return s.reply(resp, err)
		}
	}
	return s.reply(resp, s.fsm.BeginRun(ctx.Ctx, args.RunNum))
}

func (s *Server) onEndRun(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	return s.reply(resp, s.fsm.EndRun(ctx.Ctx))
}

func (s *Server) onReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	return s.reply(resp, s.fsm.Reset(ctx.Ctx))
}
