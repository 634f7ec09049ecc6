//go:build !unix

package heartbeat

import "os"

// Restart has no execve equivalent off the unix family; it exits non-zero
// so an external supervisor (service manager, container restart policy) can
// relaunch the process, which is the closest portable approximation of
// self-exec on these platforms.
func Restart() {
	os.Exit(1)
}
