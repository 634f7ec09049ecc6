// Command connbroker runs one peer (host or guest, selected by
// CONN_SERVER_IS_GUEST) of the virtual-machine connectivity broker: it opens
// the two shared-memory-backed regions, starts the ring producer/consumer
// pair and the Broker Socket event loops, and holds a blocking heartbeat
// read that restarts the process the moment the peer goes away.
//
// Grounded on examples/stest/server/main.go's shutdown discipline: a signal
// channel, an explicit Shutdown call, and log output on every phase
// transition, adapted from an echo-server accept loop to this domain's
// region/ring/broker bootstrap.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/momentics/connbroker/backend"
	"github.com/momentics/connbroker/bconfig"
	"github.com/momentics/connbroker/broker"
	"github.com/momentics/connbroker/heartbeat"
	"github.com/momentics/connbroker/region"
	"github.com/momentics/connbroker/ring"
)

func main() {
	cfg := bconfig.Load()
	logger := log.New(os.Stderr, "connbroker: ", log.LstdFlags)

	h2gFile, err := openSizedFile(cfg.H2GFile, cfg.RegionSize)
	if err != nil {
		logger.Fatalf("open H2G region %s: %v", cfg.H2GFile, err)
	}
	h2g, err := region.NewFileRegion(h2gFile, cfg.RegionSize)
	if err != nil {
		logger.Fatalf("map H2G region %s: %v", cfg.H2GFile, err)
	}
	defer h2g.Close()

	g2hFile, err := openSizedFile(cfg.G2HFile, cfg.RegionSize)
	if err != nil {
		logger.Fatalf("open G2H region %s: %v", cfg.G2HFile, err)
	}
	g2h, err := region.NewFileRegion(g2hFile, cfg.RegionSize)
	if err != nil {
		logger.Fatalf("map G2H region %s: %v", cfg.G2HFile, err)
	}
	defer g2h.Close()

	var out *ring.Producer
	var in *ring.Consumer
	if cfg.IsGuest {
		out = ring.NewProducer(g2h, cfg.PollInterval)
		in = ring.NewConsumer(h2g, cfg.PollInterval)
	} else {
		out = ring.NewProducer(h2g, cfg.PollInterval)
		in = ring.NewConsumer(g2h, cfg.PollInterval)
	}

	backends := backend.New()
	br := broker.New(out, in, backends, cfg.SocketPath, cfg.BackendSocketPath, logger)
	if err := br.Run(); err != nil {
		logger.Fatalf("broker.Run: %v", err)
	}
	logger.Printf("broker socket listening at %s, backend socket at %s (guest=%v)",
		cfg.SocketPath, cfg.BackendSocketPath, cfg.IsGuest)

	heartbeatAddr := net.JoinHostPort(cfg.ServerAddress, strconv.Itoa(cfg.ServerPort))
	go runHeartbeat(logger, cfg, heartbeatAddr)

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh
	logger.Println("shutdown signal received")

	br.Shutdown()
	logger.Println("broker shutdown complete")
}

// runHeartbeat holds the single blocking heartbeat connection required by
// §6: guests dial, hosts accept, and any read failure on either side
// escalates to a full process restart (heartbeat.Restart), since no
// in-flight ring frame is considered delivered once the peer is gone.
func runHeartbeat(logger *log.Logger, cfg *bconfig.Config, addr string) {
	var conn net.Conn
	var err error
	if cfg.IsGuest {
		conn, err = heartbeat.DialGuest(addr, cfg.PollInterval)
	} else {
		conn, err = heartbeat.AcceptHost(addr)
	}
	if err != nil {
		logger.Printf("heartbeat setup on %s: %v", addr, err)
		return
	}
	logger.Printf("heartbeat connected to %s", addr)
	heartbeat.NewMonitor(conn, func() {
		logger.Println("heartbeat lost peer; restarting process")
		heartbeat.Restart()
	}).Run()
}

// openSizedFile opens (creating if necessary) the region-backing file at
// path and ensures it is at least size bytes long, matching §6.1's note that
// a plain file-backed region on a developer machine has no block-device
// geometry to discover a size from.
func openSizedFile(path string, size int) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
