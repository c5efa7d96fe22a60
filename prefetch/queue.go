// Package prefetch implements the bounded page pipeline that overlaps a
// statement's next network round trip with consumption of the current
// page.
//
// A producer pushes one Future per page request and resolves it when the
// response arrives. The consumer pops futures in FIFO order and blocks
// until the oldest one is resolved. Reset discards everything queued and
// rejects further pushes until Reopen, so a late response for a cancelled
// statement is never delivered.
package prefetch

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Pop when the queue was reset.
	ErrClosed = errors.New("prefetch: queue closed")
	// ErrEmpty is returned by Pop when nothing is queued.
	ErrEmpty = errors.New("prefetch: queue empty")
)

// DefaultLimit is the number of resolved pages allowed to wait for the
// consumer before the producer holds back its next request.
const DefaultLimit = 1

// Future is the pending result of one page request.
type Future[T any] struct {
	value    T
	err      error
	resolved bool
	dropped  bool
	queuedAt time.Time
}

// Queue is a FIFO of page futures guarded by a caller supplied lock, so
// the owner can protect related state (such as the last query id) with
// the same mutex.
type Queue[T any] struct {
	mu     sync.Locker
	cond   *sync.Cond
	items  []*Future[T]
	closed bool
	limit  int
	parked func()
}

// NewQueue creates a queue guarded by locker. limit bounds the resolved
// pages buffered ahead of the consumer; values below 1 use DefaultLimit.
func NewQueue[T any](locker sync.Locker, limit int) *Queue[T] {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Queue[T]{
		mu:    locker,
		cond:  sync.NewCond(locker),
		limit: limit,
	}
}

func (q *Queue[T]) NewFuture() *Future[T] {
	return &Future[T]{queuedAt: time.Now()}
}

// Push appends f. It returns false, leaving f unqueued, when the queue is
// closed.
func (q *Queue[T]) Push(f *Future[T]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, f)
	return true
}

// Resolve stores the outcome of f and wakes the consumer. It returns false
// when the result was discarded because f was dropped by a Reset.
func (q *Queue[T]) Resolve(f *Future[T], v T, err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if f.dropped || q.closed {
		f.dropped = true
		pagesDiscarded.Inc()
		return false
	}
	f.value, f.err, f.resolved = v, err, true
	pageLatency.Observe(time.Since(f.queuedAt).Seconds())
	q.cond.Broadcast()
	return true
}

// Pop removes the oldest future once it is resolved and returns its
// outcome. It blocks while that future is pending, returns ErrEmpty when
// nothing is queued and ErrClosed when the queue is reset while waiting.
// A continuation parked by Continue is started before Pop returns.
func (q *Queue[T]) Pop() (T, error) {
	var zero T
	start := time.Now()

	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return zero, ErrEmpty
		}
		if q.items[0].resolved {
			break
		}
		q.cond.Wait()
	}
	f := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	var next func()
	if q.parked != nil && q.bufferedLocked() < q.limit {
		next, q.parked = q.parked, nil
	}
	q.mu.Unlock()

	popWait.Observe(time.Since(start).Seconds())
	pagesDelivered.Inc()
	if next != nil {
		next()
	}
	return f.value, f.err
}

// Continue runs fn, which issues the next page request, unless limit
// resolved pages already wait for the consumer. In that case fn is parked
// and started by the next Pop. It returns false without running fn when
// the queue is closed.
func (q *Queue[T]) Continue(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.bufferedLocked() >= q.limit {
		q.parked = fn
		q.mu.Unlock()
		continuationsParked.Inc()
		return true
	}
	q.mu.Unlock()
	fn()
	return true
}

func (q *Queue[T]) bufferedLocked() int {
	n := 0
	for _, f := range q.items {
		if f.resolved {
			n++
		}
	}
	return n
}

// Reset drops every queued future and parked continuation, closes the
// queue to further pushes and wakes blocked consumers.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, f := range q.items {
		f.dropped = true
		q.items[i] = nil
	}
	q.items = nil
	q.parked = nil
	q.closed = true
	queueResets.Inc()
	q.cond.Broadcast()
}

// Reopen accepts pushes again after a Reset.
func (q *Queue[T]) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}

// NotifyOne wakes one blocked consumer.
func (q *Queue[T]) NotifyOne() {
	q.cond.Signal()
}

// Closed reports whether the queue has been reset and not reopened.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued futures, resolved or not.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
