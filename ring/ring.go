// Package ring implements the single-producer/single-consumer transport
// protocol that runs over a region.SharedRegion: a producer pushes ring
// frames (stream_id, kind, arg1, optional payload) into successive segments
// and advances the tail cursor; a consumer dispatches occupied segments and
// advances the head cursor. See the connectivity-broker spec §4.1.
//
// Grounded on the teacher's core/concurrency/ring.go (padded atomic cursors,
// compile-time interface assertion) for structure, and on
// core/concurrency/eventloop.go's idle-backoff loop for the consumer's poll
// shape — but the protocol itself is a fixed single-byte mod-256 cursor pair
// over shared memory, not a generic lock-free MPMC ring, so the cell/CAS
// machinery of ring.go does not carry over: there is exactly one producer
// and one consumer per region, serialized by a plain mutex on the producer
// side per the spec, not by CAS.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ring

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/connbroker/bcerr"
	"github.com/momentics/connbroker/frame"
	"github.com/momentics/connbroker/region"
)

const (
	cursorHead = 0
	cursorTail = 1
)

// DefaultPollInterval is the busy-poll sleep used when a producer finds the
// ring full or a consumer finds it empty, absent an explicit
// Config.PollInterval (bconfig.Config.PollInterval, §6.1).
const DefaultPollInterval = 10 * time.Microsecond

// maxIdleBackoffMultiplier caps the exponential backoff applied while a Consumer waits
// for the ring to become non-empty, so a busy-poller yields the scheduler
// under sustained idleness instead of spinning at the base interval forever.
const maxIdleBackoffMultiplier = 32

// Producer serializes writers on one direction of the ring (§4.1: "A global
// mutex on the producer side serializes writers").
type Producer struct {
	region       region.SharedRegion
	mu           sync.Mutex
	pollInterval time.Duration
}

// NewProducer wraps r for pushing. pollInterval <= 0 uses DefaultPollInterval.
func NewProducer(r region.SharedRegion, pollInterval time.Duration) *Producer {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Producer{region: r, pollInterval: pollInterval}
}

// Push writes one logical frame (streamID, kind, arg1) to the ring, reading
// payload bytes from src if payloadLen > 0. A payload longer than one
// segment's capacity is split across consecutive DATA frames, each carrying
// up to SegmentSize()-frame.Size bytes (§4.1 step 2d-2h, §8 boundary
// behavior: a write of |B| bytes produces ceil(|B|/(SEG_SIZE-12)) DATA
// frames).
//
// When payloadLen == 0, the single segment written carries the caller's own
// kind/arg1 verbatim (e.g. CONNECT, CONFIRM, DISCONNECT, or a WRITE
// announcement). When payloadLen > 0, every segment emitted is a DATA frame
// whose arg1 is that segment's payload length, per §4.1 step 2d.
func (p *Producer) Push(streamID uint32, kind frame.Kind, arg1 uint32, src []byte, payloadLen int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	capPerSeg := p.region.SegmentSize() - frame.Size
	if capPerSeg <= 0 {
		return bcerr.New(bcerr.CodeMalformedFrame, "ring: segment too small to hold a frame header")
	}

	header := frame.RingHeader{StreamID: streamID, Kind: kind, Arg1: arg1}
	remaining := payloadLen
	offset := 0
	first := true

	for first || remaining > 0 {
		first = false

		written := remaining
		if written > capPerSeg {
			written = capPerSeg
		}

		segHeader := header
		if payloadLen > 0 {
			segHeader = frame.RingHeader{StreamID: streamID, Kind: frame.DATA, Arg1: uint32(written)}
		}

		slot := p.waitForSpace()

		buf := make([]byte, frame.Size+written)
		frame.EncodeRing(buf, segHeader)
		if written > 0 {
			copy(buf[frame.Size:], src[offset:offset+written])
		}
		p.region.WriteSegment(slot, buf)

		tail := p.region.ReadCursor(cursorTail)
		p.region.WriteCursor(cursorTail, tail+1)

		offset += written
		remaining -= written
	}

	return nil
}

// waitForSpace busy-polls until the ring has room for one more segment and
// returns the slot to write into (the current tail). Must be called with
// p.mu held.
func (p *Producer) waitForSpace() byte {
	for {
		head := p.region.ReadCursor(cursorHead)
		tail := p.region.ReadCursor(cursorTail)
		if tail+1 != head {
			return tail
		}
		time.Sleep(p.pollInterval)
	}
}

// Dispatcher receives decoded ring frames from a Consumer's pump loop. A
// payload frame's Payload slice is only valid for the duration of the
// Dispatch call. OnMalformed is called instead of Dispatch when a segment
// fails to decode (§7: log and ignore — the shared medium is trusted, so
// this indicates a local bug rather than hostile input); the consumer still
// advances head so one bad segment cannot wedge the ring.
type Dispatcher interface {
	Dispatch(h frame.RingHeader, payload []byte)
	OnMalformed(err error)
}

// Consumer owns the read side of one direction of the ring. Per the spec
// (§5 "Shared-resource policy" item 4) the consumer ring is owned by a
// single goroutine with no locking.
type Consumer struct {
	region       region.SharedRegion
	pollInterval time.Duration
	stop         chan struct{}
	stopped      chan struct{}
	running      atomic.Bool
}

// NewConsumer wraps r for pumping frames to a Dispatcher. pollInterval <= 0 uses
// DefaultPollInterval.
func NewConsumer(r region.SharedRegion, pollInterval time.Duration) *Consumer {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Consumer{
		region:       r,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Pump runs the consumer loop until Stop is called, dispatching every
// occupied segment to d in ring order (§4.1 "Consumer contract").
func (c *Consumer) Pump(d Dispatcher) {
	if !c.running.CompareAndSwap(false, true) {
		return // already running
	}
	defer close(c.stopped)

	backoff := c.pollInterval
	buf := make([]byte, c.region.SegmentSize())

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		head := c.region.ReadCursor(cursorHead)
		tail := c.region.ReadCursor(cursorTail)
		if head == tail {
			select {
			case <-c.stop:
				return
			case <-time.After(backoff):
			}
			if backoff < c.pollInterval*maxIdleBackoffMultiplier {
				backoff *= 2
			}
			continue
		}
		backoff = c.pollInterval

		n := c.region.ReadSegment(head, buf)
		h, err := frame.DecodeRing(buf[:frame.Size])
		if err != nil {
			d.OnMalformed(err)
			c.region.WriteCursor(cursorHead, head+1)
			continue
		}

		var payload []byte
		if h.Kind == frame.DATA {
			payload = buf[frame.Size:n]
		}
		d.Dispatch(h, payload)

		c.region.WriteCursor(cursorHead, head+1)
	}
}

// Stop signals Pump to return and waits for it to do so. Safe to call once.
func (c *Consumer) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	if c.running.Load() {
		<-c.stopped
	}
}
