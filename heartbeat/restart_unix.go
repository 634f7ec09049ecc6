//go:build unix

package heartbeat

import (
	"os"

	"golang.org/x/sys/unix"
)

// Restart replaces the current process image with a fresh copy of argv[0]
// run with the same arguments and environment, matching the reference
// design's execv(argv[0], argv) peer-loss reaction. It does not return on
// success; on failure to exec (e.g. the binary was removed from disk since
// startup) it falls back to os.Exit(1) so the surrounding supervisor
// restarts the process instead.
func Restart() {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	_ = unix.Exec(exe, os.Args, os.Environ())
	os.Exit(1)
}
