//go:build linux

package harness

import (
	"errors"

	"golang.org/x/sys/unix"
)

// waitExited blocks until pid has exited but leaves it unreaped, so its pid
// and process group id stay reserved. It reports false if the exit could not
// be observed this way.
func waitExited(pid int) bool {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == nil {
			return true
		}
		if !errors.Is(err, unix.EINTR) {
			return false
		}
	}
}
