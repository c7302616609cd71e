//go:build unix

package trigger

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitCode returns the conventional shell status for death by sig:
// 128 plus the signal number.
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 128 + int(unix.SIGINT)
}

// SignalName returns the upper-case signal name, e.g. "SIGINT".
func SignalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}
