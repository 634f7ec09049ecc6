// Package streamtable implements the per-stream state machine the broker
// uses to correlate ring frames with local sockets: a Stream record per live
// stream-id, and a Table that owns those records under a reader/writer lock
// with a condition variable for removal-wait (the connectivity-broker
// design's stream table, guarding CONNECT/WRITE/DISCONNECT handling).
//
// Grounded on the teacher's internal/session package: contextStore's
// sync.RWMutex-guarded map shape for the table, and sessionImpl's
// once-closed done channel for one-shot signaling, adapted here to a single
// "connected" flag per stream instead of a general cancellation context —
// this domain has exactly one binary signal per stream (has CONFIRM arrived
// yet), not an arbitrary key/value propagation bag.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package streamtable

import (
	"context"
	"net"
	"sync"
)

// Stream is one entry in a Table: the local socket owning stream-id, its
// connected flag (set when a CONFIRM frame is observed for a CONNECT this
// side issued), and an optional backend binding recorded when this side
// accepted a CONNECT on behalf of a registered backend.
type Stream struct {
	ID        uint32
	Conn      net.Conn
	BackendID uint32

	connectedCh chan struct{}
	connectOnce sync.Once
	closeOnce   sync.Once
	closeErr    error
}

// New constructs a Stream record for id bound to conn. BackendID is 0 for
// streams the local peer initiated (it is filled in only on the accepting
// side, once the CONNECT frame's backend-id has been read).
func New(id uint32, conn net.Conn) *Stream {
	return &Stream{
		ID:          id,
		Conn:        conn,
		connectedCh: make(chan struct{}),
	}
}

// MarkConnected sets the connected flag and wakes anyone in WaitConnected.
// Idempotent: a second call is a no-op (CONFIRM is only ever expected once
// per stream, but spurious duplicates must not panic on a closed channel).
func (s *Stream) MarkConnected() {
	s.connectOnce.Do(func() { close(s.connectedCh) })
}

// WaitConnected blocks until MarkConnected has been called or ctx is done.
func (s *Stream) WaitConnected(ctx context.Context) error {
	select {
	case <-s.connectedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether MarkConnected has already been called, without
// blocking.
func (s *Stream) Connected() bool {
	select {
	case <-s.connectedCh:
		return true
	default:
		return false
	}
}

// CloseLocal closes the stream's local socket exactly once, returning
// whatever the first close attempt returned. Both the outbound handler's
// I/O-error path and an inbound DISCONNECT may race to close the same
// stream; only the first close takes effect.
func (s *Stream) CloseLocal() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}
