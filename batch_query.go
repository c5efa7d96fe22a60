package tsodbc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ethanyzhang/tsodbc/wire"
)

// batchQuery runs one statement per parameter set. Each set yields its own
// result set; nextResultSet moves to the following one.
type batchQuery struct {
	session *Session
	texts   []string
	idx     int

	mu  sync.Mutex
	cur *dataQuery

	cancelled atomic.Bool
}

func newBatchQuery(s *Session, texts []string) *batchQuery {
	return &batchQuery{session: s, texts: texts}
}

func (q *batchQuery) execute(ctx context.Context) error {
	q.idx = 0
	return q.start(ctx)
}

func (q *batchQuery) start(ctx context.Context) error {
	dq := newDataQuery(q.session, q.texts[q.idx])
	q.mu.Lock()
	q.cur = dq
	q.mu.Unlock()
	return dq.execute(ctx)
}

func (q *batchQuery) current() *dataQuery {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cur
}

func (q *batchQuery) columns() []ColumnMeta {
	if dq := q.current(); dq != nil {
		return dq.columns()
	}
	return nil
}

func (q *batchQuery) next() (bool, error) {
	dq := q.current()
	if dq == nil {
		return false, nil
	}
	return dq.next()
}

func (q *batchQuery) row() *wire.Row {
	if dq := q.current(); dq != nil {
		return dq.row()
	}
	return nil
}

func (q *batchQuery) affectedRows() int64 { return 0 }

func (q *batchQuery) nextResultSet(ctx context.Context) (bool, error) {
	if q.cancelled.Load() {
		return false, ErrCancelled
	}
	if dq := q.current(); dq != nil {
		dq.close()
	}
	if q.idx+1 >= len(q.texts) {
		q.mu.Lock()
		q.cur = nil
		q.mu.Unlock()
		return false, nil
	}
	q.idx++
	if err := q.start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (q *batchQuery) warnings() []Warning {
	if dq := q.current(); dq != nil {
		return dq.warnings()
	}
	return nil
}

func (q *batchQuery) cancel() {
	q.cancelled.Store(true)
	if dq := q.current(); dq != nil {
		dq.cancel()
	}
}

func (q *batchQuery) close() {
	if dq := q.current(); dq != nil {
		dq.close()
	}
}
