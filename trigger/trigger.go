// Package trigger turns a process interrupt into exactly one pool shutdown
// followed by process exit.
//
// The trigger holds its target through the Shutdowner interface, so main and
// the signal goroutine share the same pool pointer; neither owns it
// exclusively.  The signal path only calls Shutdown, it never submits or runs
// a job, so it cannot deadlock against the pool's queue.
package trigger

import (
	"errors"
	"os"
	"os/signal"
	"sync"

	"github.com/firasghr/GoPoolServer/logger"
)

// ErrSignalIgnored is returned by Register when the process inherited SIGINT
// as ignored (for example when started under nohup).  The caller is expected
// to log it and carry on without interrupt-driven shutdown.
var ErrSignalIgnored = errors.New("trigger: SIGINT is ignored by this process")

// ErrAlreadyRegistered is returned by a second Register call.
var ErrAlreadyRegistered = errors.New("trigger: already registered")

// Shutdowner is anything that can be shut down once, synchronously.
type Shutdowner interface {
	Shutdown()
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithLogger routes trigger log lines to l.
func WithLogger(l *logger.Logger) Option {
	return func(t *Trigger) {
		if l != nil {
			t.log = l
		}
	}
}

// WithExit replaces os.Exit.  Tests use it to observe the exit status.
func WithExit(exit func(code int)) Option {
	return func(t *Trigger) { t.exit = exit }
}

// WithIgnoredCheck replaces signal.Ignored when deciding whether
// registration is possible.
func WithIgnoredCheck(ignored func(os.Signal) bool) Option {
	return func(t *Trigger) { t.ignored = ignored }
}

// Trigger arms a SIGINT handler that shuts target down and exits with
// 128+SIGINT.
type Trigger struct {
	target  Shutdowner
	log     *logger.Logger
	exit    func(int)
	ignored func(os.Signal) bool

	mu      sync.Mutex
	signals chan os.Signal
	stop    chan struct{}

	once sync.Once
}

// New creates an unarmed Trigger for target.
func New(target Shutdowner, opts ...Option) *Trigger {
	t := &Trigger{
		target:  target,
		log:     logger.Discard(),
		exit:    os.Exit,
		ignored: signal.Ignored,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register subscribes to SIGINT.  On failure nothing is armed and the
// process keeps its default interrupt behaviour.
func (t *Trigger) Register() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.signals != nil {
		return ErrAlreadyRegistered
	}
	if t.ignored(os.Interrupt) {
		t.log.Warnf("failed to register for SIGINT: %v", ErrSignalIgnored)
		return ErrSignalIgnored
	}

	t.signals = make(chan os.Signal, 1)
	t.stop = make(chan struct{})
	signal.Notify(t.signals, os.Interrupt)
	go t.wait(t.signals, t.stop)

	t.log.Info("registered for SIGINT")
	return nil
}

func (t *Trigger) wait(signals <-chan os.Signal, stop <-chan struct{}) {
	select {
	case sig := <-signals:
		t.Fire(sig)
	case <-stop:
	}
}

// Fire runs the interrupt path for sig: disarm, log, shut the target down,
// exit with ExitCode(sig).  Only the first call has any effect.  Disarming
// first restores the default SIGINT action, so a second interrupt during a
// slow drain terminates the process immediately.
func (t *Trigger) Fire(sig os.Signal) {
	t.once.Do(func() {
		t.Stop()
		t.log.Infof("%s caught - exiting", SignalName(sig))
		t.target.Shutdown()
		t.exit(ExitCode(sig))
	})
}

// Armed reports whether the SIGINT handler is currently registered.
func (t *Trigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signals != nil
}

// Stop disarms the handler.  It is safe to call on an unregistered Trigger
// and more than once.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.signals == nil {
		return
	}
	signal.Stop(t.signals)
	close(t.stop)
	t.signals = nil
	t.stop = nil
}
