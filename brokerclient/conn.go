// Package brokerclient is the application-facing library: connect/
// server_init/server_accept/read/write/close/get_buf over either a direct
// TCP socket to a registered backend or a UNIX socket framed through the
// local Broker Socket, matching the connectivity-broker design's client
// library contract. No error ever crosses this package's boundary as a
// panic or exception; every operation returns (value, error).
//
// Grounded on the teacher's client/client.go (ClientConfig-style options,
// idempotent Close via atomic.Bool, buffer-pool-backed I/O) for overall
// shape, adapted from a reconnecting WebSocket client to this domain's
// single-dial, two-transport-mode connection.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package brokerclient

import (
	"net"
	"sync/atomic"

	"github.com/momentics/connbroker/backend"
	"github.com/momentics/connbroker/bcerr"
	"github.com/momentics/connbroker/bufpool"
	"github.com/momentics/connbroker/frame"
)

// CompressionCutoff is the minimum payload length, in bytes, at which a
// direct-TCP write to a compression-enabled backend is LZ4-compressed
// rather than sent raw.
const CompressionCutoff = 250_000

// Mode selects which wire representation a Conn speaks.
type Mode int

const (
	// ModePreamble dials the backend directly; reads/writes are framed with the
	// 9-byte compression preamble.
	ModePreamble Mode = iota
	// ModeControlFrame goes through the local Broker Socket; reads/writes are
	// framed with 12-byte control frames (WRITE carries a length, DATA
	// payload follows raw).
	ModeControlFrame
)

// Conn is an opaque, non-exception-propagating connection handle.
type Conn struct {
	conn        net.Conn
	mode        Mode
	compression bool

	buf *bufpool.Buffer

	closed atomic.Bool
}

// Connect opens a stream to backend-id id: a direct TCP dial when the
// backend's use_tcp flag is set, otherwise a Broker Socket CONNECT/CONFIRM
// handshake over brokerSocketPath.
func Connect(reg *backend.Registry, id uint32, brokerSocketPath string) (*Conn, error) {
	rec, err := reg.MustGet(id)
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeBackendUnreachable, "connect: unknown backend", err)
	}

	if rec.UseTCP() {
		c, err := net.Dial("tcp", rec.HostPort())
		if err != nil {
			return nil, bcerr.Wrap(bcerr.CodeBackendUnreachable, "connect: dial backend", err)
		}
		if tc, ok := c.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		return &Conn{conn: c, mode: ModePreamble, compression: rec.Compression()}, nil
	}

	c, err := net.Dial("unix", brokerSocketPath)
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "connect: dial broker socket", err)
	}

	if err := writeControl(c, frame.Control{Kind: frame.CONNECT, Arg1: id}); err != nil {
		c.Close()
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "connect: send CONNECT", err)
	}
	ctrl, err := readControl(c)
	if err != nil {
		c.Close()
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "connect: await CONFIRM", err)
	}
	if ctrl.Kind != frame.CONFIRM {
		c.Close()
		return nil, bcerr.New(bcerr.CodeMalformedFrame, "connect: expected CONFIRM")
	}

	return &Conn{conn: c, mode: ModeControlFrame, compression: rec.Compression()}, nil
}

// RegisterBackend dials the broker's backend-acceptor socket at
// backendSocketPath and hands it a spare connection for backend-id id,
// ahead of any inbound CONNECT naming that id (§5 "backend acceptor"): the
// broker parks the connection until a matching CONNECT arrives, then
// splices it to the new stream immediately, avoiding the dial latency
// DialRetry would otherwise incur. The returned Conn speaks
// ModeControlFrame, matching every connection the broker itself relays.
func RegisterBackend(reg *backend.Registry, id uint32, backendSocketPath string) (*Conn, error) {
	if _, err := reg.MustGet(id); err != nil {
		return nil, bcerr.Wrap(bcerr.CodeBackendUnreachable, "register_backend: unknown backend", err)
	}

	c, err := net.Dial("unix", backendSocketPath)
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "register_backend: dial backend socket", err)
	}

	if err := writeControl(c, frame.Control{Kind: frame.CONNECT, Arg1: id}); err != nil {
		c.Close()
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "register_backend: send CONNECT", err)
	}
	ctrl, err := readControl(c)
	if err != nil {
		c.Close()
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "register_backend: await CONFIRM", err)
	}
	if ctrl.Kind != frame.CONFIRM {
		c.Close()
		return nil, bcerr.New(bcerr.CodeMalformedFrame, "register_backend: expected CONFIRM")
	}

	return &Conn{conn: c, mode: ModeControlFrame}, nil
}

// Listener is a backend-side listening handle created by ServerInit. Every
// connection it accepts speaks the same wire format as this backend's
// use_tcp setting dictates: direct clients (use_tcp=true) always use the
// preamble framing, and the broker's own relayed connections (use_tcp=false)
// always use control-frame framing, so a single backend record never has to
// straddle both on the same listener.
type Listener struct {
	ln          net.Listener
	mode        Mode
	compression bool
}

// ServerInit opens a TCP listener on backend id's configured address/port,
// for an application registering itself as that backend's implementation.
func ServerInit(reg *backend.Registry, id uint32) (*Listener, error) {
	rec, err := reg.MustGet(id)
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeBackendUnreachable, "server_init: unknown backend", err)
	}
	ln, err := net.Listen("tcp", rec.HostPort())
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "server_init: listen", err)
	}
	mode := ModeControlFrame
	if rec.UseTCP() {
		mode = ModePreamble
	}
	return &Listener{ln: ln, mode: mode, compression: rec.Compression()}, nil
}

// ServerAccept blocks for the next inbound connection and sets TCP_NODELAY
// on it.
func (l *Listener) ServerAccept() (*Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "server_accept", err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &Conn{conn: c, mode: l.mode, compression: l.compression}, nil
}

// Close closes the listener. Already-accepted Conns are unaffected.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// GetBuf returns an owned, resizable buffer of at least size bytes that the
// caller may fill before Write. The same backing buffer is reused across
// calls on this Conn.
func (c *Conn) GetBuf(size int) []byte {
	if c.buf == nil {
		c.buf = bufpool.Get(size)
	} else {
		c.buf.Grow(size)
	}
	return c.buf.Bytes()
}

// Close closes the underlying socket and releases the owned buffer.
// Idempotent.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.buf != nil {
		c.buf.Release()
	}
	return c.conn.Close()
}
