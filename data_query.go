package tsodbc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/ethanyzhang/tsodbc/prefetch"
	"github.com/ethanyzhang/tsodbc/wire"
)

// dataQuery runs one statement and streams its pages through a prefetch
// queue. While the consumer reads page n, the request for page n+1 is
// already in flight.
type dataQuery struct {
	session *Session
	text    string

	// mu guards queryID and done, and is the lock of queue.
	mu      sync.Mutex
	queue   *prefetch.Queue[*QueryOutcome]
	queryID string
	done    bool

	cancelled atomic.Bool

	meta   []ColumnMeta
	cursor rowCursor
	last   bool
	warns  []Warning
}

func newDataQuery(s *Session, text string) *dataQuery {
	q := &dataQuery{session: s, text: text}
	q.queue = prefetch.NewQueue[*QueryOutcome](&q.mu, prefetch.DefaultLimit)
	return q
}

// execute sends the first page request and waits until the schema is known.
// Cancelling ctx while waiting cancels the query.
func (q *dataQuery) execute(ctx context.Context) error {
	stop := context.AfterFunc(ctx, q.cancel)
	defer stop()

	first := q.queue.NewFuture()
	if !q.queue.Push(first) {
		return ErrCancelled
	}
	// Pages outlive the call that started them; only cancel stops them.
	q.issue(context.WithoutCancel(ctx), NewQueryRequest(q.text, q.session.pageSize()), first)

	for {
		if err := q.advance(); err != nil {
			if errors.Is(err, ErrCancelled) && ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			}
			return err
		}
		if q.meta != nil || q.last || q.cursor.remaining() > 0 {
			return nil
		}
	}
}

// issue sends req and resolves f with its outcome. When the outcome has a
// next token, the follow-up request is chained before f is resolved, subject
// to the queue's prefetch limit.
func (q *dataQuery) issue(ctx context.Context, req *QueryRequest, f *prefetch.Future[*QueryOutcome]) {
	q.session.QueryAsync(ctx, req, func(_ *Session, req *QueryRequest, outcome *QueryOutcome, err error) {
		if err == nil {
			q.mu.Lock()
			q.queryID = outcome.QueryId
			q.done = !outcome.HasMorePages()
			q.mu.Unlock()

			if next := req.Next(outcome); next != nil {
				q.queue.Continue(func() {
					if q.cancelled.Load() {
						return
					}
					nf := q.queue.NewFuture()
					if !q.queue.Push(nf) {
						return
					}
					q.issue(ctx, next, nf)
				})
			}
		} else {
			q.mu.Lock()
			q.done = true
			q.mu.Unlock()
		}

		if !q.queue.Resolve(f, outcome, err) {
			log.Debug().Str("query_id", q.lastQueryID()).Msg("discarded page of cancelled query")
		}
	})
}

// advance pops the next page into the cursor.
func (q *dataQuery) advance() error {
	outcome, err := q.queue.Pop()
	switch {
	case errors.Is(err, prefetch.ErrClosed):
		return ErrCancelled
	case errors.Is(err, prefetch.ErrEmpty):
		q.last = true
		q.cursor.reset(nil)
		return nil
	case err != nil:
		q.last = true
		return fmt.Errorf("query %q failed: %w", q.lastQueryID(), err)
	}

	if q.meta == nil && outcome.ColumnInfo != nil {
		q.meta = DeriveColumnMeta(outcome.ColumnInfo)
	}
	q.warns = append(q.warns, outcome.Warnings...)
	q.cursor.reset(outcome.Rows)
	q.last = !outcome.HasMorePages()
	return nil
}

func (q *dataQuery) columns() []ColumnMeta { return q.meta }

func (q *dataQuery) next() (bool, error) {
	for {
		if q.cancelled.Load() {
			return false, ErrCancelled
		}
		if q.cursor.next() {
			return true, nil
		}
		if q.last {
			return false, nil
		}
		if err := q.advance(); err != nil {
			return false, err
		}
	}
}

func (q *dataQuery) row() *wire.Row { return q.cursor.row() }

func (q *dataQuery) affectedRows() int64 { return 0 }

func (q *dataQuery) nextResultSet(context.Context) (bool, error) { return false, nil }

func (q *dataQuery) warnings() []Warning { return q.warns }

func (q *dataQuery) lastQueryID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queryID
}

// cancel drops every pending page and asks the service to stop the query if
// it may still be running. A failed server-side cancel is only logged.
func (q *dataQuery) cancel() {
	if !q.cancelled.CompareAndSwap(false, true) {
		return
	}
	q.queue.Reset()

	q.mu.Lock()
	id, done := q.queryID, q.done
	q.mu.Unlock()
	if id == "" || done {
		return
	}

	if _, _, err := q.session.CancelQuery(context.Background(), id); err != nil {
		log.Debug().Err(err).Str("query_id", id).Msg("failed to cancel query")
		return
	}
	log.Debug().Str("query_id", id).Msg("cancelled query")
}

// close cancels the query if pages are still outstanding.
func (q *dataQuery) close() {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if !done || !q.last {
		q.cancel()
	}
	q.cursor.reset(nil)
}
