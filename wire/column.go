package wire

import (
	"github.com/ethanyzhang/tsodbc/appbuf"
	"github.com/ethanyzhang/tsodbc/value"
)

// ColumnDecoder delivers one field of a row into application buffers.
// String, binary and composite fields can be read in several calls; each
// call continues where the previous one stopped. Composite fields are
// delivered as their canonical text.
type ColumnDecoder struct {
	h      header
	val    value.Value
	text   string // string, interval and composite payloads
	bytes  []byte // binary payload
	varLen bool

	offset    int
	delivered bool
}

// NewColumnDecoder reads the header of the field at pos. Composite fields
// are decoded and rendered immediately; other payloads are decoded on
// demand.
func NewColumnDecoder(stream []byte, pos int) (*ColumnDecoder, error) {
	h, err := readHeader(stream, pos)
	if err != nil {
		return nil, err
	}
	d := &ColumnDecoder{h: h}
	switch {
	case h.tag == TagString, h.tag == TagInterval:
		d.text = string(stream[h.body:h.end])
		d.varLen = true
	case h.tag == TagBinary:
		d.bytes = stream[h.body:h.end]
		d.varLen = true
	case h.tag.IsComposite():
		v, err := decodeBody(stream, h)
		if err != nil {
			return nil, err
		}
		d.val = v
		d.text = value.Render(v)
		d.varLen = true
	default:
		v, err := decodeBody(stream, h)
		if err != nil {
			return nil, err
		}
		d.val = v
	}
	return d, nil
}

// Tag returns the field's type tag.
func (d *ColumnDecoder) Tag() Tag { return d.h.tag }

// Size returns the total length of the field's deliverable payload: the
// byte length of strings, binaries and rendered composites, or the wire
// width of fixed scalars. For arrays, rows and time series this is the
// length of the rendered text that GetColumn hands out, not the encoded
// field length on the wire; UnreadLen counts down from the same total.
func (d *ColumnDecoder) Size() int {
	switch {
	case d.h.tag == TagBinary:
		return len(d.bytes)
	case d.varLen:
		return len(d.text)
	}
	return d.h.end - d.h.body
}

// UnreadLen returns the number of payload bytes not yet delivered.
func (d *ColumnDecoder) UnreadLen() int {
	if !d.varLen {
		if d.delivered {
			return 0
		}
		return d.Size()
	}
	return d.Size() - d.offset
}

// EndPosition returns the stream position of the next sibling field.
func (d *ColumnDecoder) EndPosition() int { return d.h.end }

// Value returns the decoded field.
func (d *ColumnDecoder) Value() value.Value {
	switch d.h.tag {
	case TagString:
		return value.String(d.text)
	case TagInterval:
		return value.Interval(d.text)
	case TagBinary:
		return value.Binary(append([]byte(nil), d.bytes...))
	}
	return d.val
}

// Rewind makes the whole payload deliverable again.
func (d *ColumnDecoder) Rewind() {
	d.offset = 0
	d.delivered = false
}

// ReadToBuffer copies as much of the remaining payload as buf accepts.
// It returns ConvVarLenDataTruncated while data remains, ConvSuccess when
// the field has been delivered completely and ConvNoData on any call
// after that.
func (d *ColumnDecoder) ReadToBuffer(buf *appbuf.Buffer) (appbuf.ConversionResult, error) {
	if d.delivered && d.UnreadLen() == 0 {
		return appbuf.ConvNoData, nil
	}
	if !d.varLen || !buf.CType().IsVarLen() {
		res, err := buf.PutValue(d.Value())
		if err != nil {
			return res, err
		}
		d.delivered = true
		d.offset = d.Size()
		return res, nil
	}

	var (
		consumed int
		res      appbuf.ConversionResult
		err      error
	)
	switch {
	case d.h.tag == TagBinary:
		consumed, res, err = buf.PutBinaryPart(d.bytes[d.offset:])
	case buf.CType() == appbuf.CBinary:
		consumed, res, err = buf.PutBinaryPart([]byte(d.text[d.offset:]))
	default:
		consumed, res, err = buf.PutStringPart(d.text[d.offset:])
	}
	if err != nil {
		return res, err
	}
	d.offset += consumed
	d.delivered = true
	return res, nil
}
