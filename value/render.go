package value

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Canonical layouts for temporal values. Fractional seconds are never part
// of the text form.
const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
	TimestampLayout = "2006-01-02 15:04:05"
)

// EmptyArray is the rendering of an array without elements.
const EmptyArray = "-"

// Render returns the canonical text of v. Composite values are rendered
// recursively:
//
//	Array       [a, b]  (an empty array renders as "-")
//	Row         (a, b)
//	TimeSeries  [{time: T, value: V}, ...]
func Render(v Value) string {
	var b strings.Builder
	render(&b, v)
	return b.String()
}

func render(b *strings.Builder, v Value) {
	switch v.kind {
	case KindArray:
		if len(v.elems) == 0 {
			b.WriteString(EmptyArray)
			return
		}
		b.WriteByte('[')
		renderList(b, v.elems)
		b.WriteByte(']')
	case KindRow:
		b.WriteByte('(')
		renderList(b, v.elems)
		b.WriteByte(')')
	case KindTimeSeries:
		b.WriteByte('[')
		for i, p := range v.points {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("{time: ")
			b.WriteString(FormatTimestamp(p.Time))
			b.WriteString(", value: ")
			render(b, p.Value)
			b.WriteByte('}')
		}
		b.WriteByte(']')
	default:
		b.WriteString(scalarText(v))
	}
}

func renderList(b *strings.Builder, elems []Value) {
	for i, e := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		render(b, e)
	}
}

func scalarText(v Value) string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.AsBool())
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.AsInt64(), 10)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return strconv.FormatUint(v.AsUint64(), 10)
	case KindFloat32:
		return strconv.FormatFloat(v.AsFloat64(), 'f', -1, 32)
	case KindFloat64:
		return strconv.FormatFloat(v.AsFloat64(), 'f', -1, 64)
	case KindDecimal:
		return v.dec.StringFixed(DecimalScale(v.dec))
	case KindString, KindInterval:
		return v.str
	case KindBinary:
		return hex.EncodeToString(v.bytes)
	case KindDate:
		return v.t.Format(DateLayout)
	case KindTime:
		return v.t.Format(TimeLayout)
	case KindTimestamp:
		return v.t.Format(TimestampLayout)
	case KindGuid:
		return v.guid.String()
	}
	return ""
}

// FormatTimestamp renders t the way timestamps appear in result text.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
