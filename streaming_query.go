package tsodbc

import (
	"context"

	"github.com/ethanyzhang/tsodbc/wire"
)

// streamingQuery hands statements to the connection's ingestion queue. A
// statement runs when the queue reaches its batch size, when streaming is
// switched off, or when the connection closes.
type streamingQuery struct {
	conn    *Connection
	texts   []string
	flushed int64
}

func (q *streamingQuery) execute(ctx context.Context) error {
	q.flushed = 0
	for _, text := range q.texts {
		n, err := q.conn.enqueue(ctx, text)
		q.flushed += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}

// affectedRows is the number of queued statements this call flushed.
func (q *streamingQuery) affectedRows() int64 { return q.flushed }

func (q *streamingQuery) columns() []ColumnMeta                       { return nil }
func (q *streamingQuery) next() (bool, error)                         { return false, nil }
func (q *streamingQuery) row() *wire.Row                              { return nil }
func (q *streamingQuery) nextResultSet(context.Context) (bool, error) { return false, nil }
func (q *streamingQuery) warnings() []Warning                         { return nil }
func (q *streamingQuery) cancel()                                     {}
func (q *streamingQuery) close()                                      {}
