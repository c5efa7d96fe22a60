package prefetch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue() *Queue[int] {
	return NewQueue[int](&sync.Mutex{}, 1)
}

func TestQueue_FIFO(t *testing.T) {
	q := newQueue()
	f1, f2 := q.NewFuture(), q.NewFuture()
	require.True(t, q.Push(f1))
	require.True(t, q.Push(f2))

	// Resolving out of order must not reorder delivery.
	require.True(t, q.Resolve(f2, 2, nil))
	require.True(t, q.Resolve(f1, 1, nil))

	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueue_PopBlocksUntilResolved(t *testing.T) {
	q := newQueue()
	f := q.NewFuture()
	require.True(t, q.Push(f))

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Resolve(f, 42, nil)
	}()

	start := time.Now()
	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestQueue_PopReturnsError(t *testing.T) {
	q := newQueue()
	f := q.NewFuture()
	require.True(t, q.Push(f))
	boom := errors.New("boom")
	require.True(t, q.Resolve(f, 0, boom))

	_, err := q.Pop()
	assert.ErrorIs(t, err, boom)
}

func TestQueue_ResetDiscardsAndRejects(t *testing.T) {
	q := newQueue()
	stale := q.NewFuture()
	pending := q.NewFuture()
	require.True(t, q.Push(stale))
	require.True(t, q.Push(pending))
	require.True(t, q.Resolve(stale, 1, nil))

	q.Reset()
	assert.True(t, q.Closed())
	assert.Zero(t, q.Len())

	assert.False(t, q.Push(q.NewFuture()), "push after reset")
	assert.False(t, q.Resolve(pending, 2, nil), "late result is discarded")
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrClosed)

	q.Reopen()
	assert.False(t, q.Closed())
	fresh := q.NewFuture()
	require.True(t, q.Push(fresh))
	assert.False(t, q.Resolve(pending, 3, nil), "dropped future stays dropped after reopen")
	require.True(t, q.Resolve(fresh, 4, nil))

	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	_, err = q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueue_ResetWakesConsumer(t *testing.T) {
	q := newQueue()
	require.True(t, q.Push(q.NewFuture()))

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Reset()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer was not woken by Reset")
	}
}

func TestQueue_NotifyOneKeepsWaitingForPending(t *testing.T) {
	q := newQueue()
	f := q.NewFuture()
	require.True(t, q.Push(f))

	done := make(chan int, 1)
	go func() {
		v, _ := q.Pop()
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.NotifyOne()
	select {
	case <-done:
		t.Fatal("Pop returned before the future was resolved")
	case <-time.After(20 * time.Millisecond):
	}

	q.Resolve(f, 7, nil)
	assert.Equal(t, 7, <-done)
}

func TestQueue_ContinueRunsWhenBufferHasRoom(t *testing.T) {
	q := newQueue()
	ran := false
	assert.True(t, q.Continue(func() { ran = true }))
	assert.True(t, ran)
}

func TestQueue_ContinueParksUntilPop(t *testing.T) {
	q := newQueue()
	f := q.NewFuture()
	require.True(t, q.Push(f))
	require.True(t, q.Resolve(f, 1, nil))

	var calls int32
	assert.True(t, q.Continue(func() { atomic.AddInt32(&calls, 1) }))
	assert.Zero(t, atomic.LoadInt32(&calls), "parked while a resolved page waits")

	_, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "started by Pop")

	_, err = q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueue_ContinueAfterReset(t *testing.T) {
	q := newQueue()
	f := q.NewFuture()
	require.True(t, q.Push(f))
	require.True(t, q.Resolve(f, 1, nil))

	ran := false
	require.True(t, q.Continue(func() { ran = true }))
	q.Reset()
	q.Reopen()
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.False(t, ran, "parked continuation dropped by reset")

	q.Reset()
	assert.False(t, q.Continue(func() { ran = true }))
	assert.False(t, ran)
}

// pager simulates a paginated service: every page but the last carries a
// continuation, and the producer chains the next request from the
// completion callback.
type pager struct {
	q      *Queue[int]
	pages  int
	issued int32
}

func (p *pager) request(f *Future[int], page int) {
	atomic.AddInt32(&p.issued, 1)
	go func() {
		time.Sleep(time.Millisecond)
		if page+1 < p.pages {
			p.q.Continue(func() {
				next := p.q.NewFuture()
				if !p.q.Push(next) {
					return
				}
				p.request(next, page+1)
			})
		}
		p.q.Resolve(f, page, nil)
	}()
}

func TestQueue_PaginatedProducer(t *testing.T) {
	q := newQueue()
	p := &pager{q: q, pages: 6}

	first := q.NewFuture()
	require.True(t, q.Push(first))
	p.request(first, 0)

	var got []int
	for i := 0; i < p.pages; i++ {
		v, err := q.Pop()
		require.NoError(t, err)
		got = append(got, v)
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, got)
	assert.Equal(t, int32(p.pages), atomic.LoadInt32(&p.issued))

	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueue_CancelDuringProduction(t *testing.T) {
	q := newQueue()
	p := &pager{q: q, pages: 1000}

	first := q.NewFuture()
	require.True(t, q.Push(first))
	p.request(first, 0)

	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	q.Reset()
	issued := atomic.LoadInt32(&p.issued)

	_, err = q.Pop()
	assert.ErrorIs(t, err, ErrClosed)

	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&p.issued), issued+1, "no new requests after reset")
}
