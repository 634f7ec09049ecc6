// Package bconfig loads the broker's process-level configuration from
// environment variables, with compiled-in defaults for everything not set.
//
// Grounded on the teacher's server.Config/DefaultConfig pair (a flat struct
// of tunables plus a constructor that fills in sane defaults) and on the
// reference implementation's getEnv(key, default) helper
// (original_source/util.cpp) for the override-or-default resolution shape.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package bconfig

import (
	"os"
	"strconv"
	"time"
)

// SegSize is fixed by the reference scenario used throughout the testable
// properties (§8 scenario 2: SEG_SIZE = 4096 yields a 4084-byte payload
// capacity per segment).
const SegSize = 4096

// DefaultRegionSize is the default RegionSize: a 2-byte cursor header plus
// 256 segments of SegSize bytes.
const DefaultRegionSize = 2 + 256*SegSize

// Config holds every environment-derived setting the broker process needs
// at startup.
type Config struct {
	// ServerAddress/ServerPort name the heartbeat TCP endpoint.
	ServerAddress string
	ServerPort    int

	// IsGuest selects this process's peer role. Guests dial the heartbeat
	// socket and the Broker Socket paths name the guest-side halves of the
	// shared regions; hosts accept and own the opposite halves.
	IsGuest bool

	// H2GFile/G2HFile are paths to the two shared-memory-backed regions:
	// host-to-guest and guest-to-host.
	H2GFile string
	G2HFile string

	// RegionSize is the byte length mapped for each region. A region file
	// shorter than this is created or extended to it at startup; an existing
	// file's own size is not used.
	RegionSize int

	// SocketPath is the local Broker Socket's UNIX-domain path.
	SocketPath string

	// BackendSocketPath is the UNIX-domain path backend processes dial to
	// pre-register a connection for their backend-id, ahead of any inbound
	// CONNECT naming it (§4.4/§5: the backend acceptor thread).
	BackendSocketPath string

	// PollInterval is the ring's busy-poll sleep, shared by every
	// ring.Producer/ring.Consumer this process creates.
	PollInterval time.Duration
}

// Load reads the broker's configuration from the process environment,
// falling back to defaults matched to the reference design. The global
// backend overrides (CONN_ADDRESS/CONN_PORT/CONN_USE_TCP/CONN_<PREFIX>_*)
// are read directly by the backend package's lazy per-record resolution,
// not staged through Config.
func Load() *Config {
	return &Config{
		ServerAddress:     getEnvString("CONN_SERVER_ADDRESS", "127.0.0.1"),
		ServerPort:        getEnvInt("CONN_SERVER_PORT", 7000),
		IsGuest:           getEnvBool("CONN_SERVER_IS_GUEST", false),
		H2GFile:           getEnvString("CONN_SERVER_H2G_FILE", "/tmp/conn_h2g.region"),
		G2HFile:           getEnvString("CONN_SERVER_G2H_FILE", "/tmp/conn_g2h.region"),
		RegionSize:        getEnvInt("CONN_SERVER_REGION_SIZE", DefaultRegionSize),
		SocketPath:        getEnvString("CONN_SERVER_SOCKET", "/tmp/conn_server.sock"),
		BackendSocketPath: getEnvString("CONN_SERVER_BACKEND_SOCKET", "/tmp/conn_server_backend.sock"),
		PollInterval:      time.Duration(getEnvInt("CONN_SERVER_POLL_INTERVAL_US", 10)) * time.Microsecond,
	}
}

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
