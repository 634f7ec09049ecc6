package backend_test

import (
	"net"
	"os"
	"testing"

	"github.com/momentics/connbroker/backend"
)

func TestDefaultRegistryHasStreamAndBulk(t *testing.T) {
	reg := backend.New()

	stream, ok := reg.Get(0)
	if !ok {
		t.Fatal("expected backend id 0 (STREAM) to be registered")
	}
	if stream.Address() != "127.0.0.1" || stream.Port() != 9000 {
		t.Errorf("STREAM defaults = %s:%d, want 127.0.0.1:9000", stream.Address(), stream.Port())
	}
	if stream.Compression() {
		t.Error("STREAM should default to compression=false")
	}

	bulk, ok := reg.Get(1)
	if !ok {
		t.Fatal("expected backend id 1 (BULK) to be registered")
	}
	if !bulk.Compression() {
		t.Error("BULK should default to compression=true")
	}

	if _, ok := reg.Get(99); ok {
		t.Fatal("unregistered backend id should not resolve")
	}
}

func TestGlobalOverrideTakesPrecedence(t *testing.T) {
	os.Setenv("CONN_STREAM_PORT", "7777")
	os.Setenv("CONN_PORT", "8888")
	defer os.Unsetenv("CONN_STREAM_PORT")
	defer os.Unsetenv("CONN_PORT")

	reg := backend.New()
	rec, _ := reg.Get(0)
	if got := rec.Port(); got != 8888 {
		t.Errorf("Port() = %d, want 8888 (global override must win over per-prefix)", got)
	}
}

func TestPerPrefixOverrideAppliesWithoutGlobal(t *testing.T) {
	os.Setenv("CONN_BULK_ADDRESS", "10.0.0.5")
	defer os.Unsetenv("CONN_BULK_ADDRESS")

	reg := backend.New()
	rec, _ := reg.Get(1)
	if got := rec.Address(); got != "10.0.0.5" {
		t.Errorf("Address() = %q, want 10.0.0.5", got)
	}
}

func TestPendingQueueFIFO(t *testing.T) {
	reg := backend.New()

	a, _ := net.Pipe()
	b, _ := net.Pipe()
	defer a.Close()
	defer b.Close()

	if _, ok := reg.DequeuePending(0); ok {
		t.Fatal("expected empty pending queue")
	}

	reg.EnqueuePending(0, a)
	reg.EnqueuePending(0, b)

	first, ok := reg.DequeuePending(0)
	if !ok || first != a {
		t.Fatal("expected FIFO order: a before b")
	}
	second, ok := reg.DequeuePending(0)
	if !ok || second != b {
		t.Fatal("expected FIFO order: b after a")
	}
	if _, ok := reg.DequeuePending(0); ok {
		t.Fatal("expected queue to be drained")
	}
}
