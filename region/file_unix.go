//go:build unix

package region

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// FileRegion maps an os.File (a real PCI-BAR device node, a virtio block
// device, or a plain regular file for testing) into memory with mmap and
// exposes it as a SharedRegion. Enumerating/choosing the underlying device is
// the caller's job (bconfig resolves CONN_SERVER_H2G_FILE / _G2H_FILE); this
// type only needs an already-open, already-sized *os.File.
//
// Grounded on the reference implementation's platform split in Server.cpp:
// Linux PCI-BAR mappings only need a compiler/CPU fence between the segment
// write and the cursor write (the DMA path is coherent), while the macOS
// block-device mapping needs a full F_FULLFSYNC to push dirty pages out.
// golang.org/x/sys/unix exposes both primitives without shelling out to the
// platform ioctl/fsync call by hand.
type FileRegion struct {
	f       *os.File
	size    int
	segSize int
	data    []byte // mmap'd view starting after the 2-byte cursor header, length size-HeaderSize
	raw     []byte // full mmap'd view including the 2-byte cursor header
}

var _ SharedRegion = (*FileRegion)(nil)

// NewFileRegion mmaps f (which must already be at least size bytes long)
// read-write and returns a FileRegion over it.
func NewFileRegion(f *os.File, size int) (*FileRegion, error) {
	segSize, err := segmentSizeFor(size)
	if err != nil {
		return nil, err
	}
	raw, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("region: mmap %s: %w", f.Name(), err)
	}
	return &FileRegion{
		f:       f,
		size:    size,
		segSize: segSize,
		raw:     raw,
		data:    raw[HeaderSize:],
	}, nil
}

func (r *FileRegion) Size() int        { return r.size }
func (r *FileRegion) SegmentSize() int { return r.segSize }

func (r *FileRegion) ReadCursor(which int) byte {
	return r.raw[which]
}

func (r *FileRegion) WriteCursor(which int, value byte) {
	r.raw[which] = value
	r.flushRange(which, 1)
}

func (r *FileRegion) WriteSegment(i byte, data []byte) {
	off := int(i) * r.segSize
	copy(r.data[off:off+r.segSize], data)
	r.flushRange(off+HeaderSize, r.segSize)
}

func (r *FileRegion) ReadSegment(i byte, buf []byte) int {
	off := int(i) * r.segSize
	return copy(buf, r.data[off:off+r.segSize])
}

// flushRange makes writes to raw[off:off+n] visible to the peer mapping.
func (r *FileRegion) flushRange(off, n int) {
	if runtime.GOOS == "darwin" {
		// Block-device mmap on macOS is not guaranteed DMA-coherent; force a
		// full flush to the backing store.
		_, _, errno := unix.Syscall(unix.SYS_FCNTL, r.f.Fd(), unix.F_FULLFSYNC, 0)
		if errno != 0 {
			_ = r.f.Sync()
		}
		return
	}
	// Linux PCI-BAR / virtio-block mappings are DMA-coherent; a compiler
	// fence (no real syscall) is sufficient. Msync with MS_ASYNC is used here
	// as the portable stand-in for that fence since plain Go gives no direct
	// access to a bare compiler barrier across goroutines other than through
	// the sync/atomic package, which does not apply to raw mmap'd bytes.
	_ = unix.Msync(r.raw[off:off+n], unix.MS_ASYNC)
}

func (r *FileRegion) Close() error {
	err := unix.Munmap(r.raw)
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}
