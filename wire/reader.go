package wire

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ethanyzhang/tsodbc/value"
)

// header describes one field without its payload decoded.
type header struct {
	tag   Tag
	start int // position of the tag byte
	body  int // first payload byte after any length prefix
	end   int // position just past the field
	count int // children of a composite
	scale int32
}

// readHeader reads the tag and length prefix of the field at pos and
// checks that the whole field lies within stream.
func readHeader(stream []byte, pos int) (header, error) {
	if pos < 0 || pos >= len(stream) {
		return header{}, fmt.Errorf("%w: no field at %d", ErrTruncatedStream, pos)
	}
	h := header{tag: Tag(stream[pos]), start: pos, body: pos + 1}

	if size := h.tag.fixedSize(); size >= 0 {
		h.end = h.body + size
	} else {
		switch h.tag {
		case TagString, TagBinary, TagInterval:
			n, err := readLen(stream, h.body)
			if err != nil {
				return h, err
			}
			h.body += 4
			h.end = h.body + n
		case TagDecimal:
			if h.body+8 > len(stream) {
				return h, fmt.Errorf("%w: decimal header at %d", ErrTruncatedStream, pos)
			}
			h.scale = int32(le.Uint32(stream[h.body:]))
			n, err := readLen(stream, h.body+4)
			if err != nil {
				return h, err
			}
			h.body += 8
			h.end = h.body + n
		case TagArray, TagRow, TagTimeSeries:
			n, err := readLen(stream, h.body)
			if err != nil {
				return h, err
			}
			count, err := readLen(stream, h.body+4)
			if err != nil {
				return h, err
			}
			if n < 4 {
				return h, fmt.Errorf("%w: %s payload of %d bytes", ErrMalformedField, h.tag, n)
			}
			h.end = h.body + 4 + n
			h.body += 8
			h.count = count
		default:
			return h, fmt.Errorf("%w: %d at %d", ErrUnknownTypeTag, uint8(h.tag), pos)
		}
	}
	if h.end > len(stream) {
		return h, fmt.Errorf("%w: %s field at %d needs %d bytes, %d available",
			ErrTruncatedStream, h.tag, pos, h.end-pos, len(stream)-pos)
	}
	return h, nil
}

func readLen(stream []byte, pos int) (int, error) {
	if pos+4 > len(stream) {
		return 0, fmt.Errorf("%w: length prefix at %d", ErrTruncatedStream, pos)
	}
	n := int32(le.Uint32(stream[pos:]))
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d at %d", ErrMalformedField, n, pos)
	}
	return int(n), nil
}

// SkipField returns the position just past the field at pos.
func SkipField(stream []byte, pos int) (int, error) {
	h, err := readHeader(stream, pos)
	if err != nil {
		return 0, err
	}
	return h.end, nil
}

// Decode decodes the field at pos and returns it with the position of the
// next sibling field.
func Decode(stream []byte, pos int) (value.Value, int, error) {
	h, err := readHeader(stream, pos)
	if err != nil {
		return value.Null(), 0, err
	}
	v, err := decodeBody(stream, h)
	if err != nil {
		return value.Null(), 0, err
	}
	return v, h.end, nil
}

// DecodeRow decodes every field of a row.
func DecodeRow(stream []byte) ([]value.Value, error) {
	var vals []value.Value
	for pos := 0; pos < len(stream); {
		v, next, err := Decode(stream, pos)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		pos = next
	}
	return vals, nil
}

func decodeBody(stream []byte, h header) (value.Value, error) {
	p := stream[h.body:h.end]
	switch h.tag {
	case TagNull:
		return value.Null(), nil
	case TagBool:
		return value.Bool(p[0] != 0), nil
	case TagInt8:
		return value.Int8(int8(p[0])), nil
	case TagInt16:
		return value.Int16(int16(le.Uint16(p))), nil
	case TagInt32:
		return value.Int32(int32(le.Uint32(p))), nil
	case TagInt64:
		return value.Int64(int64(le.Uint64(p))), nil
	case TagUint8:
		return value.Uint8(p[0]), nil
	case TagUint16:
		return value.Uint16(le.Uint16(p)), nil
	case TagUint32:
		return value.Uint32(le.Uint32(p)), nil
	case TagUint64:
		return value.Uint64(le.Uint64(p)), nil
	case TagFloat32:
		return value.Float32(math.Float32frombits(le.Uint32(p))), nil
	case TagFloat64:
		return value.Float64(math.Float64frombits(le.Uint64(p))), nil
	case TagString:
		return value.String(string(p)), nil
	case TagInterval:
		return value.Interval(string(p)), nil
	case TagBinary:
		return value.Binary(append([]byte(nil), p...)), nil
	case TagGuid:
		g, err := uuid.FromBytes(p)
		if err != nil {
			return value.Null(), fmt.Errorf("%w: %v", ErrMalformedField, err)
		}
		return value.Guid(g), nil
	case TagDate:
		return value.Date(time.UnixMilli(int64(le.Uint64(p)))), nil
	case TagTime:
		ms := int64(le.Uint64(p))
		return value.Time(time.UnixMilli(ms)), nil
	case TagTimestamp:
		return value.Timestamp(timestampAt(p)), nil
	case TagDecimal:
		return decodeDecimal(p, h.scale), nil
	case TagArray, TagRow:
		elems, err := decodeChildren(stream, h)
		if err != nil {
			return value.Null(), err
		}
		if h.tag == TagRow {
			return value.Row(elems...), nil
		}
		return value.Array(elems...), nil
	case TagTimeSeries:
		return decodeTimeSeries(stream, h)
	}
	return value.Null(), fmt.Errorf("%w: %d", ErrUnknownTypeTag, uint8(h.tag))
}

func timestampAt(p []byte) time.Time {
	ms := int64(le.Uint64(p))
	sub := int64(le.Uint32(p[8:]))
	return time.UnixMilli(ms).Add(time.Duration(sub))
}

func decodeDecimal(p []byte, scale int32) value.Value {
	mag := append([]byte(nil), p...)
	sign := 1
	if len(mag) > 0 && mag[0]&0x80 != 0 {
		sign = -1
		mag[0] &^= 0x80
	}
	return value.DecimalFromParts(mag, scale, sign)
}

func decodeChildren(stream []byte, h header) ([]value.Value, error) {
	elems := make([]value.Value, 0, min(h.count, h.end-h.body))
	pos := h.body
	for i := 0; i < h.count; i++ {
		v, next, err := Decode(stream[:h.end], pos)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
		pos = next
	}
	if pos != h.end {
		return nil, fmt.Errorf("%w: %s at %d has %d trailing bytes", ErrMalformedField, h.tag, h.start, h.end-pos)
	}
	return elems, nil
}

func decodeTimeSeries(stream []byte, h header) (value.Value, error) {
	points := make([]value.Point, 0, min(h.count, h.end-h.body))
	pos := h.body
	bounded := stream[:h.end]
	for i := 0; i < h.count; i++ {
		th, err := readHeader(bounded, pos)
		if err != nil {
			return value.Null(), err
		}
		if th.tag != TagTimestamp {
			return value.Null(), fmt.Errorf("%w: time series point %d starts with %s", ErrMalformedField, i, th.tag)
		}
		v, next, err := Decode(bounded, th.end)
		if err != nil {
			return value.Null(), err
		}
		points = append(points, value.Point{Time: timestampAt(bounded[th.body:th.end]), Value: v})
		pos = next
	}
	if pos != h.end {
		return value.Null(), fmt.Errorf("%w: %s at %d has %d trailing bytes", ErrMalformedField, h.tag, h.start, h.end-pos)
	}
	return value.TimeSeries(points...), nil
}
