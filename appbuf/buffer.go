// Package appbuf converts values into and out of caller-owned output
// buffers following the ODBC C data type rules.
//
// A Buffer models one bound column or parameter: a data slice holding one
// or more elements of a single C type, and an optional indicator slice of
// 8-byte SQLLEN slots. Bulk binding moves the active element with
// SetByteOffset and SetElementOffset; every access is checked against the
// slice bounds.
package appbuf

import "fmt"

type Buffer struct {
	ctype      CType
	data       []byte
	capacity   int
	ind        []byte
	byteOffset int
	elemOffset int
}

// New allocates a buffer holding a single element. For fixed-size C types
// capacity is ignored.
func New(ctype CType, capacity int) *Buffer {
	return NewArray(ctype, capacity, 1)
}

// NewArray allocates a column-wise array of n elements with one indicator
// slot per element.
func NewArray(ctype CType, capacity, n int) *Buffer {
	if size := ctype.Size(); size > 0 {
		capacity = size
	}
	if n < 1 {
		n = 1
	}
	return &Buffer{
		ctype:    ctype,
		data:     make([]byte, capacity*n),
		capacity: capacity,
		ind:      make([]byte, IndicatorSize*n),
	}
}

// Wrap binds caller-owned memory. ind may be nil when the caller supplied
// no indicator; putting a null then fails with ErrIndicatorRequired.
func Wrap(ctype CType, data []byte, capacity int, ind []byte) *Buffer {
	if size := ctype.Size(); size > 0 {
		capacity = size
	}
	return &Buffer{ctype: ctype, data: data, capacity: capacity, ind: ind}
}

func (b *Buffer) CType() CType  { return b.ctype }
func (b *Buffer) Capacity() int { return b.capacity }

// SetCType changes the target type, e.g. once SQL_C_DEFAULT is resolved.
func (b *Buffer) SetCType(c CType) {
	b.ctype = c
	if size := c.Size(); size > 0 {
		b.capacity = size
	}
}

// ElementSize is the stride between consecutive column-wise elements.
func (b *Buffer) ElementSize() int {
	if size := b.ctype.Size(); size > 0 {
		return size
	}
	return b.capacity
}

// SetByteOffset shifts the data and indicator base addresses by n bytes.
func (b *Buffer) SetByteOffset(n int) { b.byteOffset = n }

// SetElementOffset selects element i of a column-wise array.
func (b *Buffer) SetElementOffset(i int) { b.elemOffset = i }

func (b *Buffer) ByteOffset() int    { return b.byteOffset }
func (b *Buffer) ElementOffset() int { return b.elemOffset }

func (b *Buffer) dataAddr() int {
	return b.byteOffset + b.elemOffset*b.ElementSize()
}

func (b *Buffer) indAddr() int {
	return b.byteOffset + b.elemOffset*IndicatorSize
}

// element returns the bytes of the active element.
func (b *Buffer) element() ([]byte, error) {
	start := b.dataAddr()
	end := start + b.ElementSize()
	if start < 0 || end > len(b.data) {
		return nil, fmt.Errorf("%w: data [%d:%d] of %d bytes", ErrOutOfBounds, start, end, len(b.data))
	}
	return b.data[start:end], nil
}

// Bytes returns a view of the active element.
func (b *Buffer) Bytes() ([]byte, error) {
	return b.element()
}

// HasIndicator reports whether an indicator slice is bound.
func (b *Buffer) HasIndicator() bool { return b.ind != nil }

// Indicator reads the active indicator slot.
func (b *Buffer) Indicator() (int64, error) {
	start := b.indAddr()
	if b.ind == nil || start < 0 || start+IndicatorSize > len(b.ind) {
		return 0, fmt.Errorf("%w: indicator at %d of %d bytes", ErrOutOfBounds, start, len(b.ind))
	}
	return int64(le.Uint64(b.ind[start:])), nil
}

// SetIndicator writes the active indicator slot. It is a no-op when no
// indicator is bound.
func (b *Buffer) SetIndicator(n int64) error {
	if b.ind == nil {
		return nil
	}
	start := b.indAddr()
	if start < 0 || start+IndicatorSize > len(b.ind) {
		return fmt.Errorf("%w: indicator at %d of %d bytes", ErrOutOfBounds, start, len(b.ind))
	}
	le.PutUint64(b.ind[start:], uint64(n))
	return nil
}

// IsNull reports whether the active indicator holds NullData.
func (b *Buffer) IsNull() bool {
	n, err := b.Indicator()
	return err == nil && n == NullData
}

// PutNull marks the active element as SQL NULL.
func (b *Buffer) PutNull() error {
	if b.ind == nil {
		return ErrIndicatorRequired
	}
	return b.SetIndicator(NullData)
}
