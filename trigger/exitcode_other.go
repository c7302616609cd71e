//go:build !unix

package trigger

import "os"

// sigint is SIGINT's conventional number on platforms without x/sys/unix.
const sigint = 2

// ExitCode returns 128 plus the SIGINT number.
func ExitCode(os.Signal) int { return 128 + sigint }

// SignalName returns "SIGINT" for os.Interrupt.
func SignalName(sig os.Signal) string {
	if sig == os.Interrupt {
		return "SIGINT"
	}
	return sig.String()
}
