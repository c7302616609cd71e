//go:build unix

package trigger_test

import (
	"os"
	"os/signal"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/firasghr/GoPoolServer/trigger"
)

func TestRegister_DeliveredInterruptShutsDown(t *testing.T) {
	if signal.Ignored(os.Interrupt) {
		t.Skip("SIGINT is ignored in this environment")
	}

	target := &countingShutdowner{}
	rec := newExitRecorder()
	tr := trigger.New(target, trigger.WithExit(rec.exit))
	require.NoError(t, tr.Register())
	defer tr.Stop()

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGINT))

	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt was not handled")
	}
	assert.EqualValues(t, 1, target.calls.Load())
	assert.Equal(t, []int{128 + int(unix.SIGINT)}, rec.Codes())
}
