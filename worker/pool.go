// Package worker provides a fixed-size goroutine pool that dispatches
// arbitrary jobs through one shared FIFO queue and shuts down in a
// drain-then-stop fashion.
package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/firasghr/GoPoolServer/logger"
	"github.com/firasghr/GoPoolServer/metrics"
)

var (
	// ErrInvalidSize is returned by NewPool for a non-positive worker count.
	ErrInvalidSize = errors.New("worker: pool size must be positive")
	// ErrPoolClosed is returned by Submit once shutdown has begun.
	ErrPoolClosed = errors.New("worker: pool is shut down")
	// ErrNilJob is returned by Submit for a nil job.
	ErrNilJob = errors.New("worker: nil job")
)

// Option configures a Pool.
type Option func(*Pool)

// WithLogger routes pool and worker log lines to l.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records submissions and job outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) {
		if m != nil {
			p.stats = m
		}
	}
}

// WithDeliveryHook installs h on every worker.
func WithDeliveryHook(h DeliveryHook) Option {
	return func(p *Pool) { p.hook = h }
}

// Pool owns N workers and the producer side of their shared queue.
//
// Ordering between Submit and Shutdown:
//   - Submit holds a read lock while it checks the closed flag and enqueues.
//   - Shutdown takes the write lock to set the flag and enqueue one Terminate
//     per worker.
//
// So every Submit that returned nil is queued ahead of all Terminate
// messages and will run before the pool stops; every Submit that loses the
// race gets ErrPoolClosed.  Nothing is dropped silently.
type Pool struct {
	workers []*Worker
	queue   *dispatchQueue
	log     *logger.Logger
	stats   *metrics.Metrics
	hook    DeliveryHook

	mu     sync.RWMutex
	closed bool

	once sync.Once
	done chan struct{}
}

// NewPool starts a pool of n workers.  It returns ErrInvalidSize, without
// starting any goroutine, when n is not positive.
func NewPool(n int, opts ...Option) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, n)
	}
	p := &Pool{
		queue: newDispatchQueue(),
		log:   logger.Discard(),
		stats: metrics.NewMetrics(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = make([]*Worker, n)
	for id := range n {
		p.workers[id] = newWorker(id, p.queue, p.log, p.stats, p.hook)
	}
	p.log.Infof("worker pool started with %d workers", n)
	return p, nil
}

// Submit enqueues job and returns immediately.  It never waits for the job
// to run and never blocks on queue capacity.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.stats.IncrementRejected()
		return ErrPoolClosed
	}
	if err := p.queue.send(Work{ID: uuid.NewString(), Job: job}); err != nil {
		p.log.Errorf("submit: %v", err)
		p.stats.IncrementRejected()
		return fmt.Errorf("worker: submit: %w", err)
	}
	p.stats.IncrementSubmitted()
	return nil
}

// Shutdown sends exactly one Terminate per worker and waits for every worker
// to exit.  Jobs queued before the call run first.
//
// Only the first call does any work; later or concurrent calls block until
// that first call has completed.  Shutdown must not be called from inside a
// job: the calling worker would wait for itself.
func (p *Pool) Shutdown() {
	p.once.Do(p.shutdown)
	<-p.done
}

func (p *Pool) shutdown() {
	p.mu.Lock()
	p.closed = true
	p.log.Info("sending terminate message to all workers")
	for range p.workers {
		if err := p.queue.send(Terminate{}); err != nil {
			// The queue is only closed below, after every worker is joined.
			panic(fmt.Sprintf("worker: terminate on closed queue: %v", err))
		}
	}
	p.mu.Unlock()

	p.log.Info("joining all workers on shutdown")
	for _, w := range p.workers {
		w.Join()
	}
	p.queue.close()
	close(p.done)
	p.log.Info("worker pool stopped")
}

// Close is Shutdown in io.Closer form, meant for `defer pool.Close()` at the
// owner's scope exit.  It always returns nil.
func (p *Pool) Close() error {
	p.Shutdown()
	return nil
}

// Done is closed once Shutdown has joined every worker.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Pending returns the number of queued messages not yet picked up by a
// worker.
func (p *Pool) Pending() int { return p.queue.len() }
