// Package broker implements the connectivity broker's event loops and
// dispatch: the frontend acceptor on the local Broker Socket, the per-local-
// socket outbound handler, the inbound ring.Dispatcher, and the Broker
// context object threading the ring pair, stream table, and backend
// registry together.
//
// Grounded on the teacher's server.HioloadWS facade (a Config-driven
// constructor plus explicit Start/Shutdown) and on examples/stest/server's
// shutdown pattern (a stop channel plus a per-goroutine WaitGroup with a
// forced-return timeout) for overall shape; the WS-specific subsystems
// (poller, scheduler, affinity, DPDK transport) have no equivalent here and
// are replaced outright by the ring producer/consumer pair, stream table,
// and backend registry this domain needs.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package broker

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/connbroker/backend"
	"github.com/momentics/connbroker/bcerr"
	"github.com/momentics/connbroker/ring"
	"github.com/momentics/connbroker/streamtable"
)

// shutdownTimeout bounds how long Shutdown waits for in-flight handler
// goroutines before giving up and returning anyway, mirroring the teacher's
// forced-exit-after-timeout shutdown discipline.
const shutdownTimeout = 15 * time.Second

// Broker is the explicitly-initialized context passed to every broker
// component in place of the implicit process globals the reference design
// assumes (§9 "Global mutable state"): the outbound/inbound ring halves,
// the stream table, and the backend registry.
type Broker struct {
	out *ring.Producer
	in  *ring.Consumer

	streams  *streamtable.Table
	backends *backend.Registry
	logger   *log.Logger
	metrics  *Metrics

	socketPath        string
	backendSocketPath string

	nextStreamID atomic.Uint32

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}

	ln        net.Listener
	backendLn net.Listener
}

// New constructs a Broker. out is this peer's outbound ring direction (H2G
// for the host, G2H for the guest); in is the inbound direction (G2H for the
// host, H2G for the guest). backendSocketPath is the separate UNIX-domain
// rendezvous point backend processes dial to pre-register a connection for
// their backend-id (§5 "backend acceptor"); it must differ from socketPath,
// since each is bound by its own listener. A nil logger falls back to
// log.Default().
func New(out *ring.Producer, in *ring.Consumer, backends *backend.Registry, socketPath, backendSocketPath string, logger *log.Logger) *Broker {
	if logger == nil {
		logger = log.Default()
	}
	return &Broker{
		out:               out,
		in:                in,
		streams:           streamtable.New(),
		backends:          backends,
		logger:            logger,
		metrics:           NewMetrics(),
		socketPath:        socketPath,
		backendSocketPath: backendSocketPath,
		stop:              make(chan struct{}),
	}
}

// Metrics returns the broker's runtime counter registry (streams opened/
// closed, malformed ring frames seen, backend dial failures), suitable for
// a debug endpoint or a periodic log line.
func (b *Broker) Metrics() *Metrics {
	return b.metrics
}

// Run removes any stale Broker Socket and backend-acceptor socket files,
// starts listening on both, and spawns the frontend acceptor, the backend
// acceptor, and the inbound ring pump (§5: the broker's four thread roles,
// minus the per-stream outbound handlers, which the frontend acceptor and
// the inbound CONNECT handler spawn as streams arrive). It returns once all three are running; call Shutdown to stop
// them.
func (b *Broker) Run() error {
	if err := removeStaleSocket(b.socketPath); err != nil {
		return bcerr.Wrap(bcerr.CodeTransientIO, "broker: remove stale socket", err)
	}
	ln, err := net.Listen("unix", b.socketPath)
	if err != nil {
		return bcerr.Wrap(bcerr.CodeTransientIO, "broker: listen broker socket", err)
	}
	b.ln = ln

	if err := removeStaleSocket(b.backendSocketPath); err != nil {
		return bcerr.Wrap(bcerr.CodeTransientIO, "broker: remove stale backend socket", err)
	}
	backendLn, err := net.Listen("unix", b.backendSocketPath)
	if err != nil {
		return bcerr.Wrap(bcerr.CodeTransientIO, "broker: listen backend socket", err)
	}
	b.backendLn = backendLn

	b.wg.Add(3)
	go b.runFrontendAcceptor()
	go b.runBackendAcceptor()
	go func() {
		defer b.wg.Done()
		b.in.Pump(b)
	}()
	return nil
}

// Shutdown closes both listeners (stopping the two acceptors), closes the
// stop channel (aborting any DialRetry in progress), stops the inbound pump,
// and waits up to shutdownTimeout for every tracked goroutine to unwind
// before returning anyway. It does not close the local sockets of live
// streams: their outbound handlers exit only once those sockets close.
// Safe to call more than once; calls after the first are no-ops.
func (b *Broker) Shutdown() {
	b.stopOnce.Do(func() {
		close(b.stop)
		if b.ln != nil {
			_ = b.ln.Close()
		}
		if b.backendLn != nil {
			_ = b.backendLn.Close()
		}
		b.in.Stop()

		done := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			b.logger.Printf("broker: shutdown forced after %v", shutdownTimeout)
		}
	})
}

// StreamCount reports the number of live streams, for debug/metrics probes.
func (b *Broker) StreamCount() int {
	return b.streams.Len()
}

// connectBackend resolves a local connection to backend-id id: a connection
// a backend has already parked via EnqueuePending is preferred (it answers
// immediately, with no dial latency), falling back to the registry's
// infinite-retry dial otherwise (§4.4 "connect_to_backend").
func (b *Broker) connectBackend(id uint32) (net.Conn, error) {
	if conn, ok := b.backends.DequeuePending(id); ok {
		return conn, nil
	}
	rec, err := b.backends.MustGet(id)
	if err != nil {
		return nil, err
	}
	return rec.DialRetry(b.stop)
}
