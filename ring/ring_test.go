package ring_test

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/momentics/connbroker/frame"
	"github.com/momentics/connbroker/region"
	"github.com/momentics/connbroker/ring"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	headers   []frame.RingHeader
	payloads  [][]byte
	malformed int
}

func (r *recordingDispatcher) Dispatch(h frame.RingHeader, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = append(r.headers, h)
	cp := append([]byte(nil), payload...)
	r.payloads = append(r.payloads, cp)
}

func (r *recordingDispatcher) OnMalformed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.malformed++
}

func newTestRegion(t *testing.T, segSize int) region.SharedRegion {
	t.Helper()
	size := region.HeaderSize + region.NumSegments*segSize
	r, err := region.NewMemRegion(size)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSingleSmallWrite(t *testing.T) {
	r := newTestRegion(t, 128)
	p := ring.NewProducer(r, time.Microsecond)
	c := ring.NewConsumer(r, time.Microsecond)

	d := &recordingDispatcher{}
	go c.Pump(d)
	defer c.Stop()

	payload := []byte("hello")
	if err := p.Push(1, frame.WRITE, 5, payload, 5); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		d.mu.Lock()
		n := len(d.payloads)
		d.mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for dispatch")
		}
		time.Sleep(time.Millisecond)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !bytes.Equal(d.payloads[0], payload) {
		t.Errorf("got %q, want %q", d.payloads[0], payload)
	}
	if d.headers[0].Kind != frame.DATA {
		t.Errorf("expected DATA frame, got %v", d.headers[0].Kind)
	}
}

func TestSpanningSegmentBoundary(t *testing.T) {
	const segSize = 4096
	r := newTestRegion(t, segSize)
	p := ring.NewProducer(r, time.Microsecond)
	c := ring.NewConsumer(r, time.Microsecond)

	d := &recordingDispatcher{}
	go c.Pump(d)
	defer c.Stop()

	payload := make([]byte, 10000)
	rand.New(rand.NewSource(1)).Read(payload)

	if err := p.Push(7, frame.WRITE, uint32(len(payload)), payload, len(payload)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		n := len(d.payloads)
		d.mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for dispatch, got %d frames", n)
		}
		time.Sleep(time.Millisecond)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.payloads) != 3 {
		t.Fatalf("expected 3 DATA frames, got %d", len(d.payloads))
	}
	wantLens := []int{4084, 4084, 1832}
	var assembled []byte
	for i, p := range d.payloads {
		if len(p) != wantLens[i] {
			t.Errorf("frame %d: len=%d, want %d", i, len(p), wantLens[i])
		}
		assembled = append(assembled, p...)
	}
	if !bytes.Equal(assembled, payload) {
		t.Error("assembled payload does not match original")
	}
}

func TestRingSaturationBlocksThenDrains(t *testing.T) {
	const segSize = 32
	r := newTestRegion(t, segSize)
	p := ring.NewProducer(r, 200*time.Microsecond)

	// Fill the ring directly without a consumer running: 255 pushes should
	// all succeed without blocking since capacity is 255 segments.
	for i := 0; i < 255; i++ {
		if err := p.Push(uint32(i), frame.CONFIRM, 0, nil, 0); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	// The 256th push must block until a consumer drains at least one slot.
	pushed := make(chan struct{})
	go func() {
		if err := p.Push(255, frame.CONFIRM, 0, nil, 0); err != nil {
			t.Error(err)
		}
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("256th push should have blocked on a full ring")
	case <-time.After(50 * time.Millisecond):
	}

	c := ring.NewConsumer(r, time.Microsecond)
	d := &recordingDispatcher{}
	go c.Pump(d)
	defer c.Stop()

	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("256th push never unblocked after consumer started")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		n := len(d.headers)
		d.mu.Unlock()
		if n == 256 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 256 frames drained, got %d", n)
		}
		time.Sleep(time.Millisecond)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, h := range d.headers {
		if h.StreamID != uint32(i) {
			t.Errorf("frame %d: stream id %d, want %d (ordering broken)", i, h.StreamID, i)
		}
	}
}
