package streamtable

import "sync"

// Table maps stream-id to its Stream record. Lookups take the shared (read)
// lock; insert and remove take the exclusive (write) lock. A condition
// variable tied to the same lock lets an inbound DISCONNECT handler block
// until a concurrently-initiated teardown has actually removed the record,
// preserving the ordering guarantee that a DISCONNECT is the last frame
// observed for its stream-id.
type Table struct {
	mu      sync.RWMutex
	cond    *sync.Cond
	streams map[uint32]*Stream
}

// New constructs an empty Table.
func New() *Table {
	t := &Table{streams: make(map[uint32]*Stream)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Insert adds s to the table, keyed by s.ID. Stream-ids are never reused
// while a record remains in the table (§ stream-id uniqueness); callers are
// responsible for not inserting a duplicate id.
func (t *Table) Insert(s *Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streams[s.ID] = s
}

// Get looks up id under the shared lock.
func (t *Table) Get(id uint32) (*Stream, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.streams[id]
	return s, ok
}

// Remove deletes id from the table if present and wakes any goroutine
// blocked in WaitRemoved(id). Returns whether an entry was actually removed.
func (t *Table) Remove(id uint32) bool {
	t.mu.Lock()
	_, ok := t.streams[id]
	delete(t.streams, id)
	t.mu.Unlock()
	if ok {
		t.cond.Broadcast()
	}
	return ok
}

// WaitRemoved blocks until id is no longer present in the table. Used by the
// inbound DISCONNECT handler, which must not process any later frame for the
// same stream-id until the concurrent teardown it triggered has completed.
func (t *Table) WaitRemoved(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		if _, ok := t.streams[id]; !ok {
			return
		}
		t.cond.Wait()
	}
}

// Len reports the number of live streams.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.streams)
}
