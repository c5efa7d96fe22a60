package appbuf

import (
	"encoding/hex"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ethanyzhang/tsodbc/value"
)

// PutValue converts v to the buffer's C type and stores it in the active
// element. The indicator receives the full source length, in characters
// for wide targets, or NullData for a null value.
func (b *Buffer) PutValue(v value.Value) (ConversionResult, error) {
	if v.IsNull() {
		return ConvSuccess, b.PutNull()
	}
	switch b.ctype {
	case CChar, CWChar:
		_, res, err := b.PutStringPart(textOf(v))
		return res, err
	case CBinary:
		p, err := bytesOf(v)
		if err != nil {
			return ConvSuccess, err
		}
		_, res, err := b.PutBinaryPart(p)
		return res, err
	case CSTinyInt, CTinyInt, CUTinyInt:
		i, err := toInt64(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(func(e []byte) { e[0] = byte(i) })
	case CSShort, CShort, CUShort:
		i, err := toInt64(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(func(e []byte) { le.PutUint16(e, uint16(i)) })
	case CSLong, CLong, CULong:
		i, err := toInt64(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(func(e []byte) { le.PutUint32(e, uint32(i)) })
	case CSBigInt, CUBigInt:
		i, err := toInt64(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(func(e []byte) { le.PutUint64(e, uint64(i)) })
	case CFloat:
		f, err := toFloat64(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(func(e []byte) { le.PutUint32(e, math.Float32bits(float32(f))) })
	case CDouble:
		f, err := toFloat64(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(func(e []byte) { le.PutUint64(e, math.Float64bits(f)) })
	case CBit:
		ok, err := toBool(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(func(e []byte) {
			e[0] = 0
			if ok {
				e[0] = 1
			}
		})
	case CNumeric:
		d, err := toDecimal(v)
		if err != nil {
			return ConvSuccess, err
		}
		n, err := numericStruct(d)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(n.encode)
	case CDate:
		t, err := toTime(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(DateStruct{
			Year:  int16(t.Year()),
			Month: uint16(t.Month()),
			Day:   uint16(t.Day()),
		}.encode)
	case CTime:
		t, err := toTime(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(TimeStruct{
			Hour:   uint16(t.Hour()),
			Minute: uint16(t.Minute()),
			Second: uint16(t.Second()),
		}.encode)
	case CTimestamp:
		t, err := toTime(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(timestampStruct(t).encode)
	case CGuid:
		g, err := toGuid(v)
		if err != nil {
			return ConvSuccess, err
		}
		return b.putFixed(guidStruct(g).encode)
	}
	return ConvSuccess, ErrUnsupportedTargetType
}

func (b *Buffer) putFixed(write func([]byte)) (ConversionResult, error) {
	e, err := b.element()
	if err != nil {
		return ConvSuccess, err
	}
	write(e)
	return ConvSuccess, b.SetIndicator(int64(len(e)))
}

// PutStringPart copies as much of s as fits into a CHAR or WCHAR element,
// followed by a terminator. It returns the number of bytes of s consumed.
// The indicator receives the length of all of s.
func (b *Buffer) PutStringPart(s string) (int, ConversionResult, error) {
	switch b.ctype {
	case CChar:
		return b.putNarrow(s)
	case CWChar:
		return b.putWide(s)
	}
	return 0, ConvSuccess, ErrUnsupportedConversion
}

func (b *Buffer) putNarrow(s string) (int, ConversionResult, error) {
	e, err := b.element()
	if err != nil {
		return 0, ConvSuccess, err
	}
	if err := b.SetIndicator(int64(len(s))); err != nil {
		return 0, ConvSuccess, err
	}
	if len(e) == 0 {
		return 0, truncatedIf(len(s) > 0), nil
	}
	n := min(len(e)-1, len(s))
	copy(e, s[:n])
	e[n] = 0
	return n, truncatedIf(n < len(s)), nil
}

func (b *Buffer) putWide(s string) (int, ConversionResult, error) {
	e, err := b.element()
	if err != nil {
		return 0, ConvSuccess, err
	}
	if err := b.SetIndicator(int64(utf16Len(s))); err != nil {
		return 0, ConvSuccess, err
	}
	limit := len(e)/2 - 1
	if limit < 0 {
		return 0, truncatedIf(len(s) > 0), nil
	}
	units, consumed := 0, 0
	for consumed < len(s) {
		r, width := utf8.DecodeRuneInString(s[consumed:])
		n := 1
		if r >= 0x10000 {
			n = 2
		}
		if units+n > limit {
			break
		}
		if n == 2 {
			r -= 0x10000
			le.PutUint16(e[2*units:], uint16(0xD800+(r>>10)))
			le.PutUint16(e[2*units+2:], uint16(0xDC00+(r&0x3FF)))
		} else {
			le.PutUint16(e[2*units:], uint16(r))
		}
		units += n
		consumed += width
	}
	le.PutUint16(e[2*units:], 0)
	return consumed, truncatedIf(consumed < len(s)), nil
}

// PutBinaryPart copies as much of p as fits into the element without a
// terminator and returns the number of bytes consumed. Character targets
// receive the bytes as hex, two characters per consumed byte.
func (b *Buffer) PutBinaryPart(p []byte) (int, ConversionResult, error) {
	switch b.ctype {
	case CBinary:
		e, err := b.element()
		if err != nil {
			return 0, ConvSuccess, err
		}
		if err := b.SetIndicator(int64(len(p))); err != nil {
			return 0, ConvSuccess, err
		}
		n := copy(e, p)
		return n, truncatedIf(n < len(p)), nil
	case CChar, CWChar:
		room := b.capacity - 1
		if b.ctype == CWChar {
			room = b.capacity/2 - 1
		}
		n := min(max(room, 0)/2, len(p))
		if err := b.SetIndicator(int64(2 * len(p))); err != nil {
			return 0, ConvSuccess, err
		}
		if _, _, err := b.PutStringPart(hex.EncodeToString(p[:n])); err != nil {
			return 0, ConvSuccess, err
		}
		// The part written above reset the indicator to its own length.
		if err := b.SetIndicator(int64(2 * len(p))); err != nil {
			return 0, ConvSuccess, err
		}
		return n, truncatedIf(n < len(p)), nil
	}
	return 0, ConvSuccess, ErrUnsupportedConversion
}

func truncatedIf(cond bool) ConversionResult {
	if cond {
		return ConvVarLenDataTruncated
	}
	return ConvSuccess
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n++
		if r >= 0x10000 {
			n++
		}
	}
	return n
}

func (b *Buffer) PutBool(v bool) (ConversionResult, error)       { return b.PutValue(value.Bool(v)) }
func (b *Buffer) PutInt8(v int8) (ConversionResult, error)       { return b.PutValue(value.Int8(v)) }
func (b *Buffer) PutInt16(v int16) (ConversionResult, error)     { return b.PutValue(value.Int16(v)) }
func (b *Buffer) PutInt32(v int32) (ConversionResult, error)     { return b.PutValue(value.Int32(v)) }
func (b *Buffer) PutInt64(v int64) (ConversionResult, error)     { return b.PutValue(value.Int64(v)) }
func (b *Buffer) PutUint8(v uint8) (ConversionResult, error)     { return b.PutValue(value.Uint8(v)) }
func (b *Buffer) PutUint16(v uint16) (ConversionResult, error)   { return b.PutValue(value.Uint16(v)) }
func (b *Buffer) PutUint32(v uint32) (ConversionResult, error)   { return b.PutValue(value.Uint32(v)) }
func (b *Buffer) PutUint64(v uint64) (ConversionResult, error)   { return b.PutValue(value.Uint64(v)) }
func (b *Buffer) PutFloat32(v float32) (ConversionResult, error) { return b.PutValue(value.Float32(v)) }
func (b *Buffer) PutFloat64(v float64) (ConversionResult, error) { return b.PutValue(value.Float64(v)) }
func (b *Buffer) PutString(v string) (ConversionResult, error)   { return b.PutValue(value.String(v)) }
func (b *Buffer) PutBinary(v []byte) (ConversionResult, error)   { return b.PutValue(value.Binary(v)) }
func (b *Buffer) PutGuid(v uuid.UUID) (ConversionResult, error)  { return b.PutValue(value.Guid(v)) }

func (b *Buffer) PutDecimal(v decimal.Decimal) (ConversionResult, error) {
	return b.PutValue(value.Decimal(v))
}

func (b *Buffer) PutDate(v time.Time) (ConversionResult, error) { return b.PutValue(value.Date(v)) }
func (b *Buffer) PutTime(v time.Time) (ConversionResult, error) { return b.PutValue(value.Time(v)) }

func (b *Buffer) PutTimestamp(v time.Time) (ConversionResult, error) {
	return b.PutValue(value.Timestamp(v))
}
