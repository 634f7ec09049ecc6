// Package region implements the SharedRegion abstraction: a byte-addressable
// area used as one direction (H2G or G2H) of the ring transport. Real
// deployments back a region with a mapped PCI BAR or a virtio block device;
// enumerating and mmapping that device is explicitly out of scope for this
// repository (see the connectivity-broker spec, §1), so this package only
// defines the interface the ring consumes plus two concrete, portable
// backings: a plain file (region.FileRegion) and an in-process byte slice
// used for same-process loopback and tests (region.MemRegion).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package region

import "errors"

// HeaderSize is the fixed number of cursor bytes at the start of a region:
// byte 0 is head, byte 1 is tail.
const HeaderSize = 2

// NumSegments is the fixed ring depth. head/tail are single bytes interpreted
// modulo NumSegments, giving 255 usable slots (the ring is full when
// tail+1 == head).
const NumSegments = 256

// ErrTooSmall is returned when a requested region size cannot hold at least
// one segment.
var ErrTooSmall = errors.New("region: size too small for header and one segment")

// SharedRegion is the byte-addressable surface the ring transport runs over.
// Implementations need not be safe for concurrent Read/Write from multiple
// goroutines on the *same* side; the ring protocol guarantees a single
// producer and a single consumer per region, each on its own goroutine.
type SharedRegion interface {
	// Size returns the total region length in bytes, including the header.
	Size() int

	// SegmentSize returns the usable length of each of the NumSegments slots,
	// i.e. floor((Size()-HeaderSize)/NumSegments).
	SegmentSize() int

	// ReadCursor reads the head or tail byte. which is 0 for head, 1 for tail.
	ReadCursor(which int) byte

	// WriteCursor writes the head or tail byte and flushes it so the peer
	// observes the update no earlier than payload bytes written beforehand.
	WriteCursor(which int, value byte)

	// WriteSegment copies data (len(data) <= SegmentSize()) into segment i
	// and flushes it so the peer observes the write no later than the next
	// WriteCursor call. Copy-based rather than a slice-view API so both a
	// real mmap backing and a pread/pwrite fallback can implement it
	// uniformly.
	WriteSegment(i byte, data []byte)

	// ReadSegment copies segment i's storage into buf (which must have
	// length >= SegmentSize()) and returns the number of bytes copied.
	ReadSegment(i byte, buf []byte) int

	// Close releases any resources (file handles, mappings) held by the
	// region. Safe to call once; further use of the region is undefined.
	Close() error
}

const (
	cursorHead = 0
	cursorTail = 1
)

// segmentSizeFor computes the per-segment usable size for a region of total
// length size, per the "Shared region layout" wire contract (§6):
// SegmentSize = floor((size - HeaderSize) / NumSegments).
func segmentSizeFor(size int) (int, error) {
	if size < HeaderSize+NumSegments {
		return 0, ErrTooSmall
	}
	return (size - HeaderSize) / NumSegments, nil
}
