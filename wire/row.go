package wire

import (
	"fmt"

	"github.com/ethanyzhang/tsodbc/appbuf"
	"github.com/ethanyzhang/tsodbc/value"
)

// Row gives indexed access to the fields of one encoded row. Columns are
// located lazily by skipping preceding fields, and their decoders are
// kept so partial reads of a column resume across calls.
type Row struct {
	stream   []byte
	decoders []*ColumnDecoder
	next     int
}

func NewRow(stream []byte) *Row {
	return &Row{stream: stream}
}

// Column returns the decoder of column i (zero based).
func (r *Row) Column(i int) (*ColumnDecoder, error) {
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchColumn, i)
	}
	for len(r.decoders) <= i {
		if r.next >= len(r.stream) {
			return nil, fmt.Errorf("%w: %d of %d", ErrNoSuchColumn, i, len(r.decoders))
		}
		d, err := NewColumnDecoder(r.stream, r.next)
		if err != nil {
			return nil, err
		}
		r.decoders = append(r.decoders, d)
		r.next = d.EndPosition()
	}
	return r.decoders[i], nil
}

// Len returns the number of columns in the row.
func (r *Row) Len() (int, error) {
	for r.next < len(r.stream) {
		if _, err := r.Column(len(r.decoders)); err != nil {
			return 0, err
		}
	}
	return len(r.decoders), nil
}

// Value decodes column i.
func (r *Row) Value(i int) (value.Value, error) {
	d, err := r.Column(i)
	if err != nil {
		return value.Null(), err
	}
	return d.Value(), nil
}

// ReadColumn copies the next part of column i into buf.
func (r *Row) ReadColumn(i int, buf *appbuf.Buffer) (appbuf.ConversionResult, error) {
	d, err := r.Column(i)
	if err != nil {
		return appbuf.ConvSuccess, err
	}
	return d.ReadToBuffer(buf)
}

// Rewind makes every column deliverable again, as before the first read.
func (r *Row) Rewind() {
	for _, d := range r.decoders {
		d.Rewind()
	}
}
