package worker

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by send once the queue has been closed.  In
// correct pool use it never surfaces: the pool rejects submissions before the
// queue closes.
var ErrQueueClosed = errors.New("worker: dispatch queue closed")

// dispatchQueue is an unbounded FIFO shared by every worker.
//
// Design choices:
//   - A single mutex guards the buffer, so exactly one consumer dequeues any
//     given message and enqueue order is preserved.
//   - Consumers park on a sync.Cond instead of spinning; send wakes one
//     waiter, close wakes them all.
//   - send never blocks on capacity.  A buffered channel would impose a fixed
//     bound and make Submit block once it filled up.
type dispatchQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Message
	head   int
	closed bool
}

func newDispatchQueue() *dispatchQueue {
	q := &dispatchQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// send appends m to the tail of the queue.
func (q *dispatchQueue) send(m Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.buf = append(q.buf, m)
	q.cond.Signal()
	return nil
}

// receive blocks until a message is available and removes it from the head.
// ok is false once the queue is closed and fully drained.
func (q *dispatchQueue) receive() (m Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head == len(q.buf) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.buf) {
		return nil, false
	}
	m = q.buf[q.head]
	q.buf[q.head] = nil
	q.head++
	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	} else if q.head >= 64 && q.head*2 >= len(q.buf) {
		n := copy(q.buf, q.buf[q.head:])
		clear(q.buf[n:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	return m, true
}

// close rejects further sends and wakes every blocked receiver.  Messages
// already queued remain receivable.
func (q *dispatchQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// len returns the number of queued, not yet received messages.
func (q *dispatchQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}
