package broker

import (
	"context"
	"io"

	"github.com/momentics/connbroker/frame"
	"github.com/momentics/connbroker/streamtable"
)

// runOutboundHandler owns one local socket — either a frontend application's
// Broker Socket connection, or a TCP connection this broker dialed out to a
// registered backend — and loops reading 12-byte control frames from it,
// translating each into a push onto the outbound ring (§4.3 "Outbound
// handler").
func (b *Broker) runOutboundHandler(st *streamtable.Stream) {
	defer b.wg.Done()

	for {
		ctrl, err := readControl(st.Conn)
		if err != nil {
			b.teardown(st)
			return
		}

		switch ctrl.Kind {
		case frame.CONNECT:
			if !b.handleOutboundConnect(st, ctrl.Arg1) {
				return
			}
		case frame.WRITE:
			if !b.handleOutboundWrite(st, int(ctrl.Arg1)) {
				return
			}
		default:
			b.logger.Printf("broker: stream %d: ignoring unexpected control frame %s", st.ID, ctrl.Kind)
		}
	}
}

// handleOutboundConnect pushes CONNECT(stream_id, backend_id) to the
// outbound ring, blocks until this stream's connected flag is set by the
// matching inbound CONFIRM, then replies CONFIRM on the local socket (§4.3:
// "push CONNECT(stream_id, backend_id) to the outbound ring, wait on the
// stream's connected flag, then write CONFIRM to the local socket"). There
// is no per-operation timeout (§5 "Cancellation and timeouts"), so the wait
// uses an un-timed context and returns only once CONFIRM has been observed;
// closing the local socket or shutting the broker down does not wake it.
func (b *Broker) handleOutboundConnect(st *streamtable.Stream, backendID uint32) bool {
	if err := b.out.Push(st.ID, frame.CONNECT, backendID, nil, 0); err != nil {
		b.logger.Printf("broker: stream %d: push CONNECT: %v", st.ID, err)
		b.teardown(st)
		return false
	}

	if err := st.WaitConnected(context.Background()); err != nil {
		b.logger.Printf("broker: stream %d: wait for CONFIRM: %v", st.ID, err)
		b.teardown(st)
		return false
	}

	if err := writeControl(st.Conn, frame.Control{Kind: frame.CONFIRM}); err != nil {
		b.teardown(st)
		return false
	}
	return true
}

// handleOutboundWrite pushes the bare WRITE(stream_id, len) announcement
// frame, then reads len payload bytes off the local socket and pushes them
// as one or more DATA frames (§4.3: "push WRITE(stream_id, len) then push a
// DATA-bearing frame sequence"; ring.Producer.Push splits payloads longer
// than one segment's capacity into consecutive DATA frames itself).
func (b *Broker) handleOutboundWrite(st *streamtable.Stream, length int) bool {
	if err := b.out.Push(st.ID, frame.WRITE, uint32(length), nil, 0); err != nil {
		b.logger.Printf("broker: stream %d: push WRITE: %v", st.ID, err)
		b.teardown(st)
		return false
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(st.Conn, payload); err != nil {
		b.teardown(st)
		return false
	}

	if err := b.out.Push(st.ID, frame.DATA, 0, payload, length); err != nil {
		b.logger.Printf("broker: stream %d: push DATA: %v", st.ID, err)
		b.teardown(st)
		return false
	}
	return true
}

// teardown closes st's local socket, removes it from the table, and — if
// this call is the one that actually performed the removal — pushes
// DISCONNECT on the outbound ring (§4.3: "remove the stream from the table
// (which destructor-side sends DISCONNECT to the peer)"). Both an I/O error
// here and a concurrent inbound DISCONNECT may race to close/remove the
// same stream; CloseLocal and Table.Remove are each idempotent, and the ring
// DISCONNECT is pushed only when this call wins that race.
func (b *Broker) teardown(st *streamtable.Stream) {
	_ = st.CloseLocal()
	if b.streams.Remove(st.ID) {
		b.metrics.Incr("streams.closed", 1)
		if err := b.out.Push(st.ID, frame.DISCONNECT, 0, nil, 0); err != nil {
			b.logger.Printf("broker: stream %d: push DISCONNECT: %v", st.ID, err)
		}
	}
}
