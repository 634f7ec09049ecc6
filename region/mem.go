package region

import "sync/atomic"

// MemRegion is an in-process SharedRegion backed by a plain byte slice. It is
// used to run both peers (host and guest) of a test or of a same-machine
// loopback deployment inside one process, with no file or mmap involved.
//
// The single-writer-per-cursor discipline from the ring transport contract
// (only the producer writes tail, only the consumer writes head) means the
// only cross-goroutine synchronization MemRegion needs is on the cursor
// bytes themselves; atomic.Uint32 gives that for free, and — per the Go
// memory model — an atomic store of the cursor "happens after" the plain
// slice writes that precede it in program order on the same goroutine, so a
// peer that atomically loads the cursor is guaranteed to see the segment
// bytes the producer wrote beforehand; WriteSegment needs no separate flush
// step, since the real flush is the cursor store in WriteCursor.
type MemRegion struct {
	size    int
	segSize int
	data    []byte
	head    atomic.Uint32
	tail    atomic.Uint32
}

var _ SharedRegion = (*MemRegion)(nil)

// NewMemRegion allocates a region of the given total size.
func NewMemRegion(size int) (*MemRegion, error) {
	segSize, err := segmentSizeFor(size)
	if err != nil {
		return nil, err
	}
	return &MemRegion{
		size:    size,
		segSize: segSize,
		data:    make([]byte, size-HeaderSize),
	}, nil
}

func (m *MemRegion) Size() int        { return m.size }
func (m *MemRegion) SegmentSize() int { return m.segSize }

func (m *MemRegion) ReadCursor(which int) byte {
	if which == cursorHead {
		return byte(m.head.Load())
	}
	return byte(m.tail.Load())
}

func (m *MemRegion) WriteCursor(which int, value byte) {
	if which == cursorHead {
		m.head.Store(uint32(value))
	} else {
		m.tail.Store(uint32(value))
	}
}

func (m *MemRegion) WriteSegment(i byte, data []byte) {
	off := int(i) * m.segSize
	copy(m.data[off:off+m.segSize], data)
}

func (m *MemRegion) ReadSegment(i byte, buf []byte) int {
	off := int(i) * m.segSize
	return copy(buf, m.data[off:off+m.segSize])
}

func (m *MemRegion) Close() error { return nil }
