//go:build !unix

package region

import (
	"os"
)

// FileRegion is the non-unix fallback backing: plain ReadAt/WriteAt against
// an *os.File plus an explicit Sync, mirroring the reference implementation's
// pread/pwrite-plus-fsync segment path (Server.cpp's WRITE_LOCAL handler)
// rather than a platform mmap API. Mmap-based shared regions are an
// OS-specific concern this repository treats as an external collaborator
// (see the connectivity-broker spec, §1); this fallback exists only so the
// repository builds and is testable on platforms other than the unix family
// golang.org/x/sys/unix targets.
type FileRegion struct {
	f       *os.File
	size    int
	segSize int
}

var _ SharedRegion = (*FileRegion)(nil)

// NewFileRegion wraps f (already sized to at least size bytes).
func NewFileRegion(f *os.File, size int) (*FileRegion, error) {
	segSize, err := segmentSizeFor(size)
	if err != nil {
		return nil, err
	}
	return &FileRegion{f: f, size: size, segSize: segSize}, nil
}

func (r *FileRegion) Size() int        { return r.size }
func (r *FileRegion) SegmentSize() int { return r.segSize }

func (r *FileRegion) ReadCursor(which int) byte {
	var b [1]byte
	_, _ = r.f.ReadAt(b[:], int64(which))
	return b[0]
}

func (r *FileRegion) WriteCursor(which int, value byte) {
	var b [1]byte
	b[0] = value
	_, _ = r.f.WriteAt(b[:], int64(which))
	_ = r.f.Sync()
}

func (r *FileRegion) WriteSegment(i byte, data []byte) {
	off := int64(i)*int64(r.segSize) + HeaderSize
	_, _ = r.f.WriteAt(data, off)
	_ = r.f.Sync()
}

func (r *FileRegion) ReadSegment(i byte, buf []byte) int {
	off := int64(i)*int64(r.segSize) + HeaderSize
	n, _ := r.f.ReadAt(buf[:r.segSize], off)
	return n
}

func (r *FileRegion) Close() error {
	return r.f.Close()
}
