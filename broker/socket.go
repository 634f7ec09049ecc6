package broker

import (
	"net"
	"os"
	"time"

	"github.com/momentics/connbroker/frame"
	"github.com/momentics/connbroker/streamtable"
)

// staleSocketProbeTimeout bounds how long removeStaleSocket waits for a
// live listener to answer before concluding path's socket file is stale.
const staleSocketProbeTimeout = 200 * time.Millisecond

// removeStaleSocket deletes a prior instance's Broker Socket file at path,
// but only once a probe connect confirms no live listener answers it (§6
// "a prior instance's stale socket file is removed at startup after
// confirming no live listener answers a probe connect"). If a listener does
// answer, path names a running broker and is left alone; the subsequent
// net.Listen call will fail loudly rather than steal it.
func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	probe, err := net.DialTimeout("unix", path, staleSocketProbeTimeout)
	if err == nil {
		_ = probe.Close()
		return nil
	}
	return os.Remove(path)
}

// runFrontendAcceptor accepts application connections on the Broker Socket.
// Each accepted connection becomes a new stream record with a freshly
// minted stream-id, and gets its own outbound handler goroutine (§5: "one
// thread for the frontend acceptor ... one per accepted local socket").
func (b *Broker) runFrontendAcceptor() {
	defer b.wg.Done()
	for {
		c, err := b.ln.Accept()
		if err != nil {
			select {
			case <-b.stop:
				return
			default:
				b.logger.Printf("broker: frontend accept error: %v", err)
				return
			}
		}

		id := b.nextStreamID.Add(1)
		st := streamtable.New(id, c)
		b.streams.Insert(st)
		b.metrics.Incr("streams.opened", 1)

		b.wg.Add(1)
		go b.runOutboundHandler(st)
	}
}

// runBackendAcceptor accepts registration connections on the backend
// socket: a backend process dials in, sends CONNECT(backend_id) to name
// itself, and on a known id gets a CONFIRM reply and its raw connection
// parked in the registry's pending queue (§5 "backend acceptor"; grounded
// on original_source/Server.cpp's HandleBackend, which records an
// incoming backend socket under its announced id and wakes any code
// waiting on a CONNECT for that id — here, connectBackend's
// DequeuePending fast path plays that waking role). Each registration is
// handled inline rather than handed to its own goroutine: once parked,
// the connection does nothing until a later inbound CONNECT dequeues it,
// so there is no concurrent work to hand off.
func (b *Broker) runBackendAcceptor() {
	defer b.wg.Done()
	for {
		c, err := b.backendLn.Accept()
		if err != nil {
			select {
			case <-b.stop:
				return
			default:
				b.logger.Printf("broker: backend accept error: %v", err)
				return
			}
		}

		ctrl, err := readControl(c)
		if err != nil {
			b.logger.Printf("broker: backend registration: read CONNECT: %v", err)
			c.Close()
			continue
		}
		if ctrl.Kind != frame.CONNECT {
			b.logger.Printf("broker: backend registration: expected CONNECT, got %s", ctrl.Kind)
			c.Close()
			continue
		}
		if _, err := b.backends.MustGet(ctrl.Arg1); err != nil {
			b.logger.Printf("broker: backend registration: %v", err)
			c.Close()
			continue
		}
		if err := writeControl(c, frame.Control{Kind: frame.CONFIRM}); err != nil {
			b.logger.Printf("broker: backend registration: reply CONFIRM: %v", err)
			c.Close()
			continue
		}

		b.backends.EnqueuePending(ctrl.Arg1, c)
		b.metrics.Incr("backends.registered", 1)
	}
}
