// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trans

import (
	"fmt"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/push"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

// notifyBasePort is the base port of spec §6; the bound port is
// notifyBasePort + partition.
const notifyBasePort = 29980

// Notifier publishes async error/warning messages on a PUSH socket at
// tcp://<host>:<29980+partition>, the collection-bus analog of the
// ZMQ PUSH channel spec §6 describes.
type Notifier struct {
	sock mangos.Socket
}

// NewNotifier binds a PUSH socket at host:29980+partition.
func NewNotifier(host string, partition int) (*Notifier, error) {
	sock, err := push.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("trans: could not create push socket: %w", err)
	}

	addr := fmt.Sprintf("tcp://%s:%d", host, notifyBasePort+partition)
	if err := sock.Listen(addr); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("trans: could not listen on %q: %w", addr, err)
	}

	return &Notifier{sock: sock}, nil
}

// Publish sends msg, dropping it if the socket cannot accept it
// immediately (async error/warning channel is best-effort).
func (n *Notifier) Publish(msg string) {
	_ = n.sock.Send([]byte(msg))
}

// Close tears down the underlying socket.
func (n *Notifier) Close() error {
	return n.sock.Close()
}
