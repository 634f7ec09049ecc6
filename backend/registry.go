package backend

import (
	"fmt"
	"net"
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/connbroker/bcerr"
)

// Registry is the static, process-lifetime table of backend records plus,
// per backend-id, a FIFO of local sockets that have registered as that
// backend's listener (via the broker's backend socket, see
// brokerclient.RegisterBackend) but have not yet been paired with
// an inbound CONNECT frame naming that backend-id.
//
// The pairing queue mirrors the reference design's
// backend_to_unconnected_clients map of std::queue<socket_ptr>: a locally
// accepted backend connection sits in the queue until the broker's inbound
// ring handler observes a CONNECT for that backend-id and dequeues it to
// splice the two together.
type Registry struct {
	mu      sync.RWMutex
	records map[uint32]*Record
	pending map[uint32]*queue.Queue
	pendMu  sync.Mutex
}

// New constructs a Registry pre-populated with the default table (backend id
// 0 prefix STREAM, id 1 prefix BULK), matching the out-of-the-box scenario
// used throughout the testable-properties scenarios.
func New() *Registry {
	r := &Registry{
		records: make(map[uint32]*Record),
		pending: make(map[uint32]*queue.Queue),
	}
	r.register(defaultRecord(0, "STREAM", "127.0.0.1", 9000, false, false))
	r.register(defaultRecord(1, "BULK", "127.0.0.1", 9001, false, true))
	return r
}

func (r *Registry) register(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
}

// Register adds or replaces a backend record outside the default table,
// letting an embedder extend the registry beyond STREAM/BULK.
func (r *Registry) Register(id uint32, prefix, address string, port int, useTCP, compression bool) {
	r.register(defaultRecord(id, prefix, address, port, useTCP, compression))
}

// Get returns the record for id, or (nil, false) if no such backend-id was
// ever registered.
func (r *Registry) Get(id uint32) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// MustGet returns the record for id or an error wrapping CodeBackendUnreachable
// if id was never registered.
func (r *Registry) MustGet(id uint32) (*Record, error) {
	rec, ok := r.Get(id)
	if !ok {
		return nil, bcerr.New(bcerr.CodeBackendUnreachable, fmt.Sprintf("unknown backend id %d", id))
	}
	return rec, nil
}

// EnqueuePending parks conn as a not-yet-paired local backend listener
// connection for backend-id id. The underlying queue.Queue is not itself
// safe for concurrent use, so all access goes through pendMu.
func (r *Registry) EnqueuePending(id uint32, conn net.Conn) {
	r.pendMu.Lock()
	defer r.pendMu.Unlock()
	q, ok := r.pending[id]
	if !ok {
		q = queue.New()
		r.pending[id] = q
	}
	q.Add(conn)
}

// DequeuePending removes and returns the oldest parked connection for
// backend-id id, or (nil, false) if none is waiting.
func (r *Registry) DequeuePending(id uint32) (net.Conn, bool) {
	r.pendMu.Lock()
	defer r.pendMu.Unlock()
	q, ok := r.pending[id]
	if !ok || q.Length() == 0 {
		return nil, false
	}
	v := q.Remove()
	conn, _ := v.(net.Conn)
	return conn, true
}
