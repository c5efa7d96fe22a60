package tsodbc

import "github.com/ethanyzhang/tsodbc/wire"

// rowCursor walks the wire-encoded rows of one page. It starts positioned
// before the first row.
type rowCursor struct {
	rows [][]byte
	pos  int
	cur  *wire.Row
}

func newRowCursor(rows [][]byte) *rowCursor {
	c := &rowCursor{}
	c.reset(rows)
	return c
}

func (c *rowCursor) reset(rows [][]byte) {
	c.rows = rows
	c.pos = -1
	c.cur = nil
}

// next advances to the following row and reports whether one exists.
func (c *rowCursor) next() bool {
	if c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		c.cur = nil
		return false
	}
	c.pos++
	c.cur = wire.NewRow(c.rows[c.pos])
	return true
}

func (c *rowCursor) row() *wire.Row { return c.cur }

func (c *rowCursor) remaining() int {
	if c.pos >= len(c.rows) {
		return 0
	}
	return len(c.rows) - c.pos - 1
}
