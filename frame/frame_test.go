package frame_test

import (
	"testing"

	"github.com/momentics/connbroker/frame"
)

func TestControlRoundTrip(t *testing.T) {
	in := frame.Control{Kind: frame.CONNECT, Arg1: 7, Arg2: 0}
	buf := make([]byte, frame.Size)
	frame.Encode(buf, in)

	got, err := frame.Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := frame.Decode(make([]byte, 4))
	if err != frame.ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}

func TestRingHeaderRoundTrip(t *testing.T) {
	in := frame.RingHeader{StreamID: 42, Kind: frame.DATA, Arg1: 4084}
	buf := make([]byte, frame.Size)
	frame.EncodeRing(buf, in)

	got, err := frame.DecodeRing(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestPreambleRoundTrip(t *testing.T) {
	in := frame.Preamble{Compressed: true, CompressedLen: 123, UncompressedLen: 300000}
	buf := make([]byte, frame.PreambleSize)
	frame.EncodePreamble(buf, in)

	got, err := frame.DecodePreamble(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestKindString(t *testing.T) {
	cases := map[frame.Kind]string{
		frame.CONFIRM:    "CONFIRM",
		frame.CONNECT:    "CONNECT",
		frame.WRITE:      "WRITE",
		frame.DISCONNECT: "DISCONNECT",
		frame.DATA:       "DATA",
		frame.Kind(99):   "UNKNOWN",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
