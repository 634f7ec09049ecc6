package broker

import (
	"github.com/momentics/connbroker/frame"
	"github.com/momentics/connbroker/ring"
	"github.com/momentics/connbroker/streamtable"
)

var _ ring.Dispatcher = (*Broker)(nil)

// Dispatch handles one decoded ring frame (§4.3 "Inbound handler"). It is
// called from the single goroutine running ring.Consumer.Pump, so it never
// needs its own locking beyond what the stream table and backend registry
// already provide.
func (b *Broker) Dispatch(h frame.RingHeader, payload []byte) {
	switch h.Kind {
	case frame.CONNECT:
		b.handleInboundConnect(h.StreamID, h.Arg1)
	case frame.WRITE:
		b.handleInboundWrite(h.StreamID, h.Arg1)
	case frame.DATA:
		b.handleInboundData(h.StreamID, payload)
	case frame.DISCONNECT:
		b.handleInboundDisconnect(h.StreamID)
	case frame.CONFIRM:
		b.handleInboundConfirm(h.StreamID)
	default:
		b.logger.Printf("broker: ignoring ring frame of unknown kind %v for stream %d", h.Kind, h.StreamID)
	}
}

// OnMalformed logs and ignores an undecodable ring frame; the shared medium
// is trusted, so a decode failure indicates a local bug rather than hostile
// input (§7).
func (b *Broker) OnMalformed(err error) {
	b.metrics.Incr("ring.malformed_frames", 1)
	b.logger.Printf("broker: malformed ring frame: %v", err)
}

// handleInboundConnect inserts a new stream record, dials (or claims a
// pending connection to) the named backend, replies CONFIRM on the ring,
// and spawns an outbound handler for the new local socket so traffic the
// backend sends back is forwarded toward the peer that issued CONNECT
// (§4.3: "insert a new stream record; open a TCP connection to
// get_backend(backend_id); push CONFIRM(stream_id) back; spawn an outbound
// handler for the new local socket").
func (b *Broker) handleInboundConnect(streamID, backendID uint32) {
	conn, err := b.connectBackend(backendID)
	if err != nil {
		b.metrics.Incr("backend.dial_failures", 1)
		b.logger.Printf("broker: stream %d: connect backend %d: %v", streamID, backendID, err)
		return
	}

	st := streamtable.New(streamID, conn)
	st.BackendID = backendID
	b.streams.Insert(st)
	b.metrics.Incr("streams.opened", 1)

	if err := b.out.Push(streamID, frame.CONFIRM, 0, nil, 0); err != nil {
		b.logger.Printf("broker: stream %d: push CONFIRM: %v", streamID, err)
	}
	// This side originated the CONFIRM rather than waiting on one, so its
	// own connected flag is set immediately rather than via MarkConnected
	// from a later inbound CONFIRM dispatch (that path is for the peer that
	// issued the CONNECT, §4.3 "handleInboundConfirm").
	st.MarkConnected()

	b.wg.Add(1)
	go b.runOutboundHandler(st)
}

// handleInboundWrite looks up the stream and forwards a WRITE(len)
// announcement on its local socket (§4.3). A WRITE for a stream whose
// CONFIRM has not yet been observed is a protocol violation (§8 scenario 4:
// "any DATA frame for that stream-id arriving before CONFIRM is a test
// failure") and is dropped rather than forwarded, since writing it to the
// local socket ahead of the outbound handler's own CONFIRM reply would
// corrupt that socket's framing.
func (b *Broker) handleInboundWrite(streamID, length uint32) {
	st, ok := b.streams.Get(streamID)
	if !ok {
		b.logger.Printf("broker: WRITE for unknown stream %d", streamID)
		return
	}
	if !st.Connected() {
		b.metrics.Incr("ring.premature_frames", 1)
		b.logger.Printf("broker: stream %d: dropping WRITE observed before CONFIRM", streamID)
		return
	}
	if err := writeControl(st.Conn, frame.Control{Kind: frame.WRITE, Arg1: length}); err != nil {
		b.logger.Printf("broker: stream %d: forward WRITE: %v", streamID, err)
	}
}

// handleInboundData writes a DATA frame's payload straight to the stream's
// local socket (§4.3), subject to the same pre-CONFIRM guard as
// handleInboundWrite.
func (b *Broker) handleInboundData(streamID uint32, payload []byte) {
	st, ok := b.streams.Get(streamID)
	if !ok {
		b.logger.Printf("broker: DATA for unknown stream %d", streamID)
		return
	}
	if !st.Connected() {
		b.metrics.Incr("ring.premature_frames", 1)
		b.logger.Printf("broker: stream %d: dropping DATA observed before CONFIRM", streamID)
		return
	}
	if _, err := st.Conn.Write(payload); err != nil {
		b.logger.Printf("broker: stream %d: forward DATA: %v", streamID, err)
	}
}

// handleInboundDisconnect removes the stream from the table and closes its
// local socket (which ends its outbound handler), then waits until the id is
// gone from the table before the inbound pump processes any later frame for
// this stream-id (§4.3: "wait on the stream-table condition until the stream
// is removed before processing further frames for that id"). Because the
// removal happens here, the outbound handler's own teardown finds the id
// already gone and does not push a DISCONNECT back to the peer. If the
// stream was already removed locally (its own teardown raced ahead of this
// DISCONNECT arriving), every step is a no-op.
func (b *Broker) handleInboundDisconnect(streamID uint32) {
	st, ok := b.streams.Get(streamID)
	if b.streams.Remove(streamID) {
		b.metrics.Incr("streams.closed", 1)
	}
	if ok {
		_ = st.CloseLocal()
	}
	b.streams.WaitRemoved(streamID)
}

// handleInboundConfirm sets the named stream's connected flag, waking the
// outbound handler blocked in handleOutboundConnect's WaitConnected (§4.3).
func (b *Broker) handleInboundConfirm(streamID uint32) {
	st, ok := b.streams.Get(streamID)
	if !ok {
		b.logger.Printf("broker: CONFIRM for unknown stream %d", streamID)
		return
	}
	st.MarkConnected()
}
