// Package backend implements the host-side registry mapping a small integer
// backend-id to the connection metadata needed to reach it: address, port,
// transport mode (direct TCP vs. Broker Socket) and whether payloads should
// be LZ4-compressed. Each record resolves lazily, on first use, merging a
// static default with environment overrides, matching the connectivity-
// broker design's backend registry.
//
// Grounded on the reference implementation's getEnv(key, default) helper
// (original_source/util.cpp) for override resolution, and on the teacher's
// control/config.go for the shape of a registry guarded by a lock (adapted
// here to a per-record mutex rather than one store-wide lock, since the
// spec calls for independent lazy resolution per backend-id rather than a
// single config snapshot).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package backend

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/momentics/connbroker/bcerr"
)

// Record holds one backend's connection metadata. The zero value is not
// usable directly; construct via Registry.Get, which returns an already (or
// about to be) resolved record.
type Record struct {
	ID     uint32
	Prefix string

	mu          sync.Mutex
	resolved    bool
	address     string
	port        int
	useTCP      bool
	compression bool
}

func defaultRecord(id uint32, prefix, address string, port int, useTCP, compression bool) *Record {
	return &Record{
		ID:          id,
		Prefix:      prefix,
		address:     address,
		port:        port,
		useTCP:      useTCP,
		compression: compression,
	}
}

// resolve merges environment overrides into the record on first use. The
// global, prefix-less variables (CONN_ADDRESS, CONN_PORT, CONN_USE_TCP) take
// precedence over the per-backend CONN_<PREFIX>_* variables, per the
// connectivity-broker environment-variable precedence rule.
func (r *Record) resolve() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return
	}

	r.address = getEnvString("CONN_"+r.Prefix+"_ADDRESS", r.address)
	r.port = getEnvInt("CONN_"+r.Prefix+"_PORT", r.port)
	r.useTCP = getEnvBool("CONN_"+r.Prefix+"_USE_TCP", r.useTCP)
	r.compression = getEnvBool("CONN_"+r.Prefix+"_COMPRESSION", r.compression)

	r.address = getEnvString("CONN_ADDRESS", r.address)
	r.port = getEnvInt("CONN_PORT", r.port)
	r.useTCP = getEnvBool("CONN_USE_TCP", r.useTCP)

	r.resolved = true
}

// Address returns the resolved host address.
func (r *Record) Address() string {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address
}

// Port returns the resolved TCP port.
func (r *Record) Port() int {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port
}

// UseTCP reports whether clients of this backend should use direct TCP
// rather than being framed through the local Broker Socket.
func (r *Record) UseTCP() bool {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.useTCP
}

// Compression reports whether large writes to this backend should be
// LZ4-compressed (direct-TCP mode only).
func (r *Record) Compression() bool {
	r.resolve()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compression
}

// HostPort returns the resolved "address:port" dial/listen string.
func (r *Record) HostPort() string {
	return net.JoinHostPort(r.Address(), strconv.Itoa(r.Port()))
}

// DialRetry resolves addr/port and retries an indefinite, no-backoff TCP
// dial against this backend until it succeeds or ctx-equivalent stop is
// requested via stop (a closed channel aborts the retry loop and returns
// bcerr with CodeBackendUnreachable). The intra-machine link is assumed
// reliable enough that no exponential backoff is warranted; the reference
// design retries forever with no delay between attempts.
func (r *Record) DialRetry(stop <-chan struct{}) (net.Conn, error) {
	addr := r.HostPort()
	for {
		select {
		case <-stop:
			return nil, bcerr.New(bcerr.CodeBackendUnreachable, fmt.Sprintf("dial %s aborted", addr))
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			if tc, ok := conn.(*net.TCPConn); ok {
				_ = tc.SetNoDelay(true)
			}
			return conn, nil
		}
	}
}

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
