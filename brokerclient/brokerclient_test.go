package brokerclient_test

import (
	"bytes"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/connbroker/backend"
	"github.com/momentics/connbroker/brokerclient"
	"github.com/momentics/connbroker/frame"
	lz4 "github.com/pierrec/lz4/v3"
)

func TestConnectBrokerSocketHandshake(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "broker.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	reg := backend.New() // id 0 (STREAM) defaults to use_tcp=false

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		var buf [frame.Size]byte
		if _, err := c.Read(buf[:]); err != nil {
			return
		}
		ctrl, err := frame.Decode(buf[:])
		if err != nil || ctrl.Kind != frame.CONNECT || ctrl.Arg1 != 0 {
			t.Errorf("unexpected CONNECT frame: %+v err=%v", ctrl, err)
		}
		var out [frame.Size]byte
		frame.Encode(out[:], frame.Control{Kind: frame.CONFIRM})
		c.Write(out[:])
		accepted <- c
	}()

	conn, err := brokerclient.Connect(reg, 0, sockPath)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	select {
	case srv := <-accepted:
		defer srv.Close()
	case <-time.After(time.Second):
		t.Fatal("server never accepted")
	}
}

func TestBrokerSocketWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "broker.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	reg := backend.New()

	srvReady := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		var buf [frame.Size]byte
		c.Read(buf[:])
		var out [frame.Size]byte
		frame.Encode(out[:], frame.Control{Kind: frame.CONFIRM})
		c.Write(out[:])
		srvReady <- c
	}()

	conn, err := brokerclient.Connect(reg, 0, sockPath)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	var srv net.Conn
	select {
	case srv = <-srvReady:
		defer srv.Close()
	case <-time.After(time.Second):
		t.Fatal("server never accepted")
	}

	payload := []byte("hello broker")
	go func() {
		if err := conn.Write(payload); err != nil {
			t.Error(err)
		}
	}()

	var ctrlBuf [frame.Size]byte
	if _, err := srv.Read(ctrlBuf[:]); err != nil {
		t.Fatal(err)
	}
	ctrl, err := frame.Decode(ctrlBuf[:])
	if err != nil || ctrl.Kind != frame.WRITE || int(ctrl.Arg1) != len(payload) {
		t.Fatalf("unexpected WRITE control frame: %+v err=%v", ctrl, err)
	}
	got := make([]byte, len(payload))
	if _, err := srv.Read(got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}

	// Now drive a server->client WRITE+payload through conn.Read().
	respond := []byte("reply")
	var respCtrl [frame.Size]byte
	frame.Encode(respCtrl[:], frame.Control{Kind: frame.WRITE, Arg1: uint32(len(respond))})
	srv.Write(respCtrl[:])
	srv.Write(respond)

	read, err := conn.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(read, respond) {
		t.Fatalf("Read() = %q, want %q", read, respond)
	}
}

func TestDirectTCPRoundTripNoCompression(t *testing.T) {
	reg := backend.New()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	reg.Register(5, "DIRECT", "127.0.0.1", port, true, false)

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	conn, err := brokerclient.Connect(reg, 5, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	var srv net.Conn
	select {
	case srv = <-accepted:
		defer srv.Close()
	case <-time.After(time.Second):
		t.Fatal("server never accepted")
	}

	payload := []byte("hello")
	if err := conn.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var pbuf [frame.PreambleSize]byte
	if _, err := srv.Read(pbuf[:]); err != nil {
		t.Fatal(err)
	}
	pre, err := frame.DecodePreamble(pbuf[:])
	if err != nil {
		t.Fatal(err)
	}
	if pre.Compressed {
		t.Fatal("small write should not be compressed")
	}
	got := make([]byte, pre.CompressedLen)
	if _, err := srv.Read(got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestDirectTCPCompressionTrigger(t *testing.T) {
	reg := backend.New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	reg.Register(6, "COMP", "127.0.0.1", port, true, true)

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	conn, err := brokerclient.Connect(reg, 6, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	var srv net.Conn
	select {
	case srv = <-accepted:
		defer srv.Close()
	case <-time.After(time.Second):
		t.Fatal("server never accepted")
	}

	payload := bytes.Repeat([]byte{0x41}, 300_000)
	go func() {
		if err := conn.Write(payload); err != nil {
			t.Error(err)
		}
	}()

	var pbuf [frame.PreambleSize]byte
	if _, err := srv.Read(pbuf[:]); err != nil {
		t.Fatal(err)
	}
	pre, err := frame.DecodePreamble(pbuf[:])
	if err != nil {
		t.Fatal(err)
	}
	if !pre.Compressed {
		t.Fatal("300000-byte write to a compressing backend should be compressed")
	}
	if pre.CompressedLen >= pre.UncompressedLen {
		t.Fatalf("expected compressed length to shrink a run of 0x41 bytes, got clen=%d ulen=%d", pre.CompressedLen, pre.UncompressedLen)
	}

	got := make([]byte, pre.CompressedLen)
	n := 0
	for n < len(got) {
		m, err := srv.Read(got[n:])
		if err != nil {
			t.Fatal(err)
		}
		n += m
	}

	decompressed := make([]byte, pre.UncompressedLen)
	dn, err := lz4.UncompressBlock(got, decompressed)
	if err != nil {
		t.Fatalf("UncompressBlock: %v", err)
	}
	if !bytes.Equal(decompressed[:dn], payload) {
		t.Fatal("decompressed payload does not match the original 300000 bytes of 0x41")
	}
}
