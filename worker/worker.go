package worker

import (
	"runtime/debug"
	"time"

	"github.com/firasghr/GoPoolServer/logger"
	"github.com/firasghr/GoPoolServer/metrics"
)

// DeliveryHook observes every message a worker dequeues, before the worker
// acts on it.  It runs on the worker's goroutine.
type DeliveryHook func(workerID int, msg Message)

// Worker is one long-lived goroutine consuming from the pool's queue.
//
// A worker runs jobs strictly one at a time.  Each job executes behind its
// own recover boundary, so a panicking job is logged and counted and the
// worker goes straight back to receiving.  The pool's capacity therefore
// never shrinks because of a failing job.
type Worker struct {
	id    int
	queue *dispatchQueue
	log   *logger.Logger
	stats *metrics.Metrics
	hook  DeliveryHook
	done  chan struct{}
}

func newWorker(id int, q *dispatchQueue, log *logger.Logger, stats *metrics.Metrics, hook DeliveryHook) *Worker {
	w := &Worker{
		id:    id,
		queue: q,
		log:   log,
		stats: stats,
		hook:  hook,
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// ID returns the worker's index within its pool (0..N-1).
func (w *Worker) ID() int { return w.id }

// Join blocks until the worker goroutine has returned.
func (w *Worker) Join() { <-w.done }

// Done is closed when the worker goroutine has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// run drives the receive loop.  If a job ends its goroutine with
// runtime.Goexit the loop never returns normally; the deferred function then
// starts a replacement goroutine for the same worker, and done stays open
// until the loop really finishes.
func (w *Worker) run() {
	finished := false
	defer func() {
		if finished {
			close(w.done)
			return
		}
		go w.run()
	}()
	w.loop()
	finished = true
}

func (w *Worker) loop() {
	for {
		msg, ok := w.queue.receive()
		if !ok {
			w.log.Warnf("worker %d: dispatch queue closed; exiting", w.id)
			return
		}
		if w.hook != nil {
			w.hook(w.id, msg)
		}
		switch m := msg.(type) {
		case Work:
			w.execute(m)
		case Terminate:
			w.log.Infof("terminating worker %d", w.id)
			return
		}
	}
}

// execute runs a single job.  A panic inside the job is converted into a
// logged error; it never unwinds past this frame.  A job that calls
// runtime.Goexit is logged here and recovered from in run.
func (w *Worker) execute(m Work) {
	w.log.Debugf("executing job %s on worker %d", m.ID, w.id)
	w.stats.JobStarted()
	start := time.Now()
	panicked := true
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorf("worker %d: job %s panicked: %v\n%s", w.id, m.ID, r, debug.Stack())
		} else if panicked {
			w.log.Errorf("worker %d: job %s exited its goroutine; restarting worker", w.id, m.ID)
		}
		w.stats.JobFinished(time.Since(start), panicked)
	}()
	m.Job()
	panicked = false
}
