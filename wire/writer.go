package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ethanyzhang/tsodbc/value"
)

var le = binary.LittleEndian

// Writer appends encoded fields to an internal buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded stream. The slice is reused after Reset.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Reset() { w.buf = w.buf[:0] }

// EncodeRow encodes vals as consecutive fields of one row.
func EncodeRow(vals ...value.Value) ([]byte, error) {
	w := NewWriter()
	for _, v := range vals {
		if err := w.Write(v); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// Write appends v as one field.
func (w *Writer) Write(v value.Value) error {
	switch v.Kind() {
	case value.KindNull:
		w.tag(TagNull)
	case value.KindBool:
		w.tag(TagBool)
		if v.AsBool() {
			w.buf = append(w.buf, 1)
		} else {
			w.buf = append(w.buf, 0)
		}
	case value.KindInt8:
		w.tag(TagInt8)
		w.buf = append(w.buf, byte(v.AsInt64()))
	case value.KindInt16:
		w.tag(TagInt16)
		w.buf = le.AppendUint16(w.buf, uint16(v.AsInt64()))
	case value.KindInt32:
		w.tag(TagInt32)
		w.buf = le.AppendUint32(w.buf, uint32(v.AsInt64()))
	case value.KindInt64:
		w.tag(TagInt64)
		w.buf = le.AppendUint64(w.buf, uint64(v.AsInt64()))
	case value.KindUint8:
		w.tag(TagUint8)
		w.buf = append(w.buf, byte(v.AsUint64()))
	case value.KindUint16:
		w.tag(TagUint16)
		w.buf = le.AppendUint16(w.buf, uint16(v.AsUint64()))
	case value.KindUint32:
		w.tag(TagUint32)
		w.buf = le.AppendUint32(w.buf, uint32(v.AsUint64()))
	case value.KindUint64:
		w.tag(TagUint64)
		w.buf = le.AppendUint64(w.buf, v.AsUint64())
	case value.KindFloat32:
		w.tag(TagFloat32)
		w.buf = le.AppendUint32(w.buf, math.Float32bits(float32(v.AsFloat64())))
	case value.KindFloat64:
		w.tag(TagFloat64)
		w.buf = le.AppendUint64(w.buf, math.Float64bits(v.AsFloat64()))
	case value.KindDecimal:
		w.writeDecimal(v)
	case value.KindString:
		w.writeBytes(TagString, []byte(v.AsString()))
	case value.KindInterval:
		w.writeBytes(TagInterval, []byte(v.AsString()))
	case value.KindBinary:
		w.writeBytes(TagBinary, v.AsBytes())
	case value.KindGuid:
		w.tag(TagGuid)
		g := v.AsGuid()
		w.buf = append(w.buf, g[:]...)
	case value.KindDate:
		w.tag(TagDate)
		w.buf = le.AppendUint64(w.buf, uint64(v.AsTime().UnixMilli()))
	case value.KindTime:
		w.tag(TagTime)
		t := v.AsTime()
		sinceMidnight := time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second +
			time.Duration(t.Nanosecond())
		w.buf = le.AppendUint64(w.buf, uint64(sinceMidnight.Milliseconds()))
	case value.KindTimestamp:
		w.writeTimestamp(v.AsTime())
	case value.KindArray, value.KindRow:
		tag := TagArray
		if v.Kind() == value.KindRow {
			tag = TagRow
		}
		return w.composite(tag, len(v.Elems()), func() error {
			for _, e := range v.Elems() {
				if err := w.Write(e); err != nil {
					return err
				}
			}
			return nil
		})
	case value.KindTimeSeries:
		return w.composite(TagTimeSeries, len(v.Points()), func() error {
			for _, p := range v.Points() {
				w.writeTimestamp(p.Time)
				if err := w.Write(p.Value); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		return fmt.Errorf("%w: cannot encode %s", ErrUnknownTypeTag, v.Kind())
	}
	return nil
}

func (w *Writer) tag(t Tag) {
	w.buf = append(w.buf, byte(t))
}

func (w *Writer) writeBytes(t Tag, p []byte) {
	w.tag(t)
	w.buf = le.AppendUint32(w.buf, uint32(len(p)))
	w.buf = append(w.buf, p...)
}

func (w *Writer) writeTimestamp(t time.Time) {
	w.tag(TagTimestamp)
	w.buf = le.AppendUint64(w.buf, uint64(t.UnixMilli()))
	w.buf = le.AppendUint32(w.buf, uint32(t.Nanosecond()%int(time.Millisecond)))
}

// writeDecimal stores the unscaled magnitude big-endian with the sign in
// the high bit of the first byte.
func (w *Writer) writeDecimal(v value.Value) {
	d := v.AsDecimal()
	scale := value.DecimalScale(d)
	unscaled := d.Shift(scale).BigInt()

	mag := unscaled.Bytes()
	if len(mag) == 0 || mag[0]&0x80 != 0 {
		mag = append([]byte{0}, mag...)
	}
	if unscaled.Sign() < 0 {
		mag[0] |= 0x80
	}

	w.tag(TagDecimal)
	w.buf = le.AppendUint32(w.buf, uint32(scale))
	w.buf = le.AppendUint32(w.buf, uint32(len(mag)))
	w.buf = append(w.buf, mag...)
}

// composite writes the header of a composite field, then its children via
// body, then patches the payload length.
func (w *Writer) composite(t Tag, count int, body func() error) error {
	w.tag(t)
	lenAt := len(w.buf)
	w.buf = le.AppendUint32(w.buf, 0)
	w.buf = le.AppendUint32(w.buf, uint32(count))
	if err := body(); err != nil {
		return err
	}
	le.PutUint32(w.buf[lenAt:], uint32(len(w.buf)-lenAt-4))
	return nil
}
