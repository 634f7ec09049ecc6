// Package frame implements the wire codecs used by the connectivity broker:
// the fixed 12-byte control frame exchanged over the Broker Socket, and the
// ring frame exchanged over the shared-memory rings.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package frame

import (
	"encoding/binary"
	"errors"
)

// Size is the fixed header length shared by both control frames and ring
// frames: three little-endian uint32 fields.
const Size = 12

// Kind enumerates the control-frame / ring-frame message types.
type Kind uint32

const (
	CONFIRM Kind = iota
	CONNECT
	WRITE
	DISCONNECT
	DATA
)

func (k Kind) String() string {
	switch k {
	case CONFIRM:
		return "CONFIRM"
	case CONNECT:
		return "CONNECT"
	case WRITE:
		return "WRITE"
	case DISCONNECT:
		return "DISCONNECT"
	case DATA:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// ErrShortBuffer is returned by Decode when fewer than Size bytes are given.
var ErrShortBuffer = errors.New("frame: buffer shorter than header size")

// Control is the 12-byte (kind, arg1, arg2) frame spoken over the Broker
// Socket between an application/backend and the local broker.
type Control struct {
	Kind Kind
	Arg1 uint32
	Arg2 uint32
}

// Encode writes f into buf[:Size] using little-endian uint32 fields at
// offsets 0/4/8. buf must have length >= Size.
func Encode(buf []byte, f Control) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.Kind))
	binary.LittleEndian.PutUint32(buf[4:8], f.Arg1)
	binary.LittleEndian.PutUint32(buf[8:12], f.Arg2)
}

// Decode parses a Control header out of buf[:Size].
func Decode(buf []byte) (Control, error) {
	if len(buf) < Size {
		return Control{}, ErrShortBuffer
	}
	return Control{
		Kind: Kind(binary.LittleEndian.Uint32(buf[0:4])),
		Arg1: binary.LittleEndian.Uint32(buf[4:8]),
		Arg2: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// RingHeader is the 12-byte (stream_id, kind, arg1) header prefixing every
// occupied ring segment. Payload bytes (when Kind == DATA) follow directly
// after the header in the same segment.
type RingHeader struct {
	StreamID uint32
	Kind     Kind
	Arg1     uint32
}

// EncodeRing writes h into buf[:Size].
func EncodeRing(buf []byte, h RingHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.StreamID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Kind))
	binary.LittleEndian.PutUint32(buf[8:12], h.Arg1)
}

// DecodeRing parses a RingHeader out of buf[:Size].
func DecodeRing(buf []byte) (RingHeader, error) {
	if len(buf) < Size {
		return RingHeader{}, ErrShortBuffer
	}
	return RingHeader{
		StreamID: binary.LittleEndian.Uint32(buf[0:4]),
		Kind:     Kind(binary.LittleEndian.Uint32(buf[4:8])),
		Arg1:     binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// Preamble is the 9-byte header that precedes a payload in client-library
// direct-TCP mode: a compression flag, the on-wire (possibly compressed)
// length, and the original uncompressed length.
type Preamble struct {
	Compressed      bool
	CompressedLen   uint32
	UncompressedLen uint32
}

// PreambleSize is the fixed length of an encoded Preamble.
const PreambleSize = 9

// EncodePreamble writes p into buf[:PreambleSize].
func EncodePreamble(buf []byte, p Preamble) {
	if p.Compressed {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	binary.LittleEndian.PutUint32(buf[1:5], p.CompressedLen)
	binary.LittleEndian.PutUint32(buf[5:9], p.UncompressedLen)
}

// DecodePreamble parses a Preamble out of buf[:PreambleSize].
func DecodePreamble(buf []byte) (Preamble, error) {
	if len(buf) < PreambleSize {
		return Preamble{}, ErrShortBuffer
	}
	return Preamble{
		Compressed:      buf[0] != 0,
		CompressedLen:   binary.LittleEndian.Uint32(buf[1:5]),
		UncompressedLen: binary.LittleEndian.Uint32(buf[5:9]),
	}, nil
}
