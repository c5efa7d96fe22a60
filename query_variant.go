package tsodbc

import (
	"context"

	"github.com/ethanyzhang/tsodbc/wire"
)

// query is the closed set of statement variants: dataQuery, batchQuery,
// streamingQuery, internalQuery and metaQuery.
type query interface {
	// execute issues the query and positions the cursor before the first row.
	execute(ctx context.Context) error
	columns() []ColumnMeta
	// next advances the cursor. It returns false once the result set is
	// exhausted.
	next() (bool, error)
	// row is the current row, valid until the next call to next.
	row() *wire.Row
	affectedRows() int64
	// nextResultSet moves to the following result set and reports whether
	// there was one.
	nextResultSet(ctx context.Context) (bool, error)
	warnings() []Warning
	cancel()
	close()
}

var (
	_ query = (*dataQuery)(nil)
	_ query = (*batchQuery)(nil)
	_ query = (*streamingQuery)(nil)
	_ query = (*internalQuery)(nil)
	_ query = (*metaQuery)(nil)
)
