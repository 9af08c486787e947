// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"errors"
	"io"
	"net"

	"github.com/bitmark-inc/logger"

	"github.com/stockvault/certissuer/background"
	"github.com/stockvault/certissuer/counter"
	"github.com/stockvault/certissuer/fault"
	"github.com/stockvault/certissuer/wire"
)

// Listener accepts TCP connections and serves grant requests from each:
// Accept in a loop, a counter.Counter enforcing a configured connection
// limit, one goroutine per connection.
type Listener struct {
	engine         *Engine
	log            *logger.L
	maxConnections uint64
	count          counter.Counter
	listener       net.Listener
}

// NewListener binds addr and returns a Listener ready to Serve. maxConns of
// 0 means unlimited.
func NewListener(addr string, e *Engine, maxConns uint64, log *logger.L) (*Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		engine:         e,
		log:            log,
		maxConnections: maxConns,
		listener:       l,
	}, nil
}

// Addr returns the bound local address, useful for tests that bind to
// ":0".
func (ls *Listener) Addr() net.Addr {
	return ls.listener.Addr()
}

// Serve accepts connections until the listener is closed. Each connection
// is served by its own goroutine; within one connection, requests are read
// and replies written strictly in order, so a caller never sees its own
// requests reordered.
func (ls *Listener) Serve() error {
	for {
		conn, err := ls.listener.Accept()
		if err != nil {
			if ls.log != nil {
				ls.log.Infof("listener accept terminated: %s", err)
			}
			return err
		}

		if ls.maxConnections > 0 && ls.count.Increment() > ls.maxConnections {
			ls.count.Decrement()
			conn.Close()
			continue
		}

		go ls.serveConnection(conn)
	}
}

// Close stops accepting new connections.
func (ls *Listener) Close() error {
	return ls.listener.Close()
}

// This assertion documents that Background satisfies background.Process,
// so the daemon can hand it straight to background.Start.
var _ background.Process = (*Listener)(nil).Background

// Background runs Serve as a background.Process: it blocks in Serve until
// either the listener is closed from elsewhere or shutdown fires, in which
// case it closes the listener itself, then signals done once Serve has
// actually returned. That lets a caller managing several background.T
// processes wait for the accept loop to fully drain before closing
// anything the engine still depends on, such as the journal.
func (ls *Listener) Background(args interface{}, shutdown <-chan struct{}, done chan<- struct{}) {
	go func() {
		<-shutdown
		ls.Close()
	}()

	if err := ls.Serve(); err != nil && ls.log != nil {
		ls.log.Infof("listener background process stopped: %s", err)
	}
	close(done)
}

func (ls *Listener) serveConnection(conn net.Conn) {
	defer conn.Close()
	defer ls.count.Decrement()

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ls.log != nil {
				ls.log.Debugf("connection %s closed: %s", conn.RemoteAddr(), err)
			}
			return
		}

		req, err := wire.DecodeRequest(payload)
		if err != nil {
			// malformed framing is fatal to the connection: there is no
			// reliable way to resynchronize on the byte stream after it.
			ls.writeReply(conn, &wire.Reply{Reason: fault.ReasonMalformed})
			return
		}

		reply := ls.decide(req)
		if err := ls.writeReply(conn, reply); err != nil {
			if ls.log != nil {
				ls.log.Debugf("connection %s write failed: %s", conn.RemoteAddr(), err)
			}
			return
		}
	}
}

func (ls *Listener) decide(req *wire.Request) *wire.Reply {
	result, grantErr := ls.engine.Grant(req.ClassTag, req.HolderName, uint64(req.Amount))
	if grantErr != nil {
		return &wire.Reply{Reason: grantErr.Reason}
	}
	return &wire.Reply{Reason: fault.ReasonOK, CertificateNumber: result.CertificateNumber}
}

func (ls *Listener) writeReply(conn net.Conn, reply *wire.Reply) error {
	return wire.WriteFrame(conn, wire.EncodeReply(reply))
}
