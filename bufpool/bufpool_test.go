package bufpool_test

import (
	"bytes"
	"testing"

	"github.com/momentics/connbroker/bufpool"
)

func TestGetAndBytesLength(t *testing.T) {
	b := bufpool.Get(100)
	defer b.Release()

	if len(b.Bytes()) != 100 {
		t.Fatalf("len(Bytes()) = %d, want 100", len(b.Bytes()))
	}
	if b.Cap() < 100 {
		t.Fatalf("Cap() = %d, want >= 100", b.Cap())
	}
}

func TestGrowPreservesContents(t *testing.T) {
	b := bufpool.Get(10)
	defer b.Release()

	copy(b.Bytes(), []byte("0123456789"))

	b.Grow(20)
	if len(b.Bytes()) != 20 {
		t.Fatalf("len after grow = %d, want 20", len(b.Bytes()))
	}
	if !bytes.Equal(b.Bytes()[:10], []byte("0123456789")) {
		t.Fatalf("grow did not preserve existing contents: %q", b.Bytes()[:10])
	}

	b.Grow(5)
	if len(b.Bytes()) != 5 {
		t.Fatalf("len after shrink = %d, want 5", len(b.Bytes()))
	}
	if !bytes.Equal(b.Bytes(), []byte("01234")) {
		t.Fatalf("shrink should keep the prefix, got %q", b.Bytes())
	}
}

func TestReleaseIdempotent(t *testing.T) {
	b := bufpool.Get(16)
	b.Release()
	b.Release() // must not panic
}
