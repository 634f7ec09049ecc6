// Package bufpool backs the client library's get_buf operation: a
// resizable, owned buffer that grows by power-of-two and is reused across
// calls on the same connection instead of being reallocated from scratch
// every write.
//
// Grounded on the teacher's pool.baseBufferPool (a size-classed pool keyed
// by capacity, returned to the caller as an owned handle it must release)
// for the pool-of-size-classes shape, but built directly on
// github.com/cloudwego/gopkg's cache/mempool rather than reimplementing the
// size-class arithmetic: mempool.Malloc/Append/Free already give power-of-two
// growth, a Cap() ceiling check, and pool-backed reuse, which is exactly
// what the client library's buffer contract asks for.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package bufpool

import (
	"github.com/cloudwego/gopkg/cache/mempool"
)

// Buffer is an owned, growable byte buffer. It is not safe for concurrent
// use; each connection in the client library owns exactly one.
type Buffer struct {
	buf      []byte
	released bool
}

// Get returns a Buffer with at least size bytes of usable length, drawn from
// the shared pool. Call Release when the connection that owns it closes.
func Get(size int) *Buffer {
	return &Buffer{buf: mempool.Malloc(size)}
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Cap reports the largest length Grow can reach without reallocating.
func (b *Buffer) Cap() int {
	return mempool.Cap(b.buf)
}

// Grow resizes the buffer to exactly n bytes, reusing the existing
// allocation when it already has room and otherwise growing by
// power-of-two (replacing and freeing the old backing array). Existing
// contents up to min(len(b.buf), n) are preserved.
func (b *Buffer) Grow(n int) {
	if n <= len(b.buf) {
		b.buf = b.buf[:n]
		return
	}
	if n <= mempool.Cap(b.buf) {
		b.buf = b.buf[:n]
		return
	}
	grown := mempool.Malloc(n)
	copy(grown, b.buf)
	mempool.Free(b.buf)
	b.buf = grown
}

// Release returns the buffer's backing array to the shared pool. The
// Buffer must not be used afterward. Idempotent.
func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	mempool.Free(b.buf)
}
