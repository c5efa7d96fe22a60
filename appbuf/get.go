package appbuf

import (
	"bytes"
	"math"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ethanyzhang/tsodbc/value"
)

// GetValue reads the active element back as a Value of the kind matching
// the buffer's C type. Character data ends at the indicator length or the
// first terminator, whichever comes first.
func (b *Buffer) GetValue() (value.Value, error) {
	e, err := b.element()
	if err != nil {
		return value.Null(), err
	}
	ind := NTS
	if b.ind != nil {
		if ind, err = b.Indicator(); err != nil {
			return value.Null(), err
		}
	}
	if ind == NullData {
		return value.Null(), nil
	}

	switch b.ctype {
	case CChar:
		n := textLen(ind, len(e))
		if i := bytes.IndexByte(e[:n], 0); i >= 0 {
			n = i
		}
		return value.String(string(e[:n])), nil
	case CWChar:
		n := textLen(ind, len(e)/2)
		units := make([]uint16, 0, n)
		for i := 0; i < n; i++ {
			u := le.Uint16(e[2*i:])
			if u == 0 {
				break
			}
			units = append(units, u)
		}
		return value.String(string(utf16.Decode(units))), nil
	case CBinary:
		n := len(e)
		if ind >= 0 && int(ind) < n {
			n = int(ind)
		}
		return value.Binary(append([]byte(nil), e[:n]...)), nil
	case CSTinyInt, CTinyInt:
		return value.Int8(int8(e[0])), nil
	case CUTinyInt:
		return value.Uint8(e[0]), nil
	case CSShort, CShort:
		return value.Int16(int16(le.Uint16(e))), nil
	case CUShort:
		return value.Uint16(le.Uint16(e)), nil
	case CSLong, CLong:
		return value.Int32(int32(le.Uint32(e))), nil
	case CULong:
		return value.Uint32(le.Uint32(e)), nil
	case CSBigInt:
		return value.Int64(int64(le.Uint64(e))), nil
	case CUBigInt:
		return value.Uint64(le.Uint64(e)), nil
	case CFloat:
		return value.Float32(math.Float32frombits(le.Uint32(e))), nil
	case CDouble:
		return value.Float64(math.Float64frombits(le.Uint64(e))), nil
	case CBit:
		return value.Bool(e[0] != 0), nil
	case CNumeric:
		return numericValue(decodeNumeric(e)), nil
	case CDate:
		d := decodeDate(e)
		return value.Date(time.Date(int(d.Year), time.Month(d.Month), int(d.Day), 0, 0, 0, 0, time.UTC)), nil
	case CTime:
		t := decodeTime(e)
		return value.Time(time.Date(1970, 1, 1, int(t.Hour), int(t.Minute), int(t.Second), 0, time.UTC)), nil
	case CTimestamp:
		ts := decodeTimestamp(e)
		return value.Timestamp(time.Date(int(ts.Year), time.Month(ts.Month), int(ts.Day),
			int(ts.Hour), int(ts.Minute), int(ts.Second), int(ts.Fraction), time.UTC)), nil
	case CGuid:
		return value.Guid(decodeGuid(e).uuid()), nil
	}
	return value.Null(), ErrUnsupportedTargetType
}

// textLen bounds a character indicator by the terminated capacity, both
// counted in characters.
func textLen(ind int64, capacity int) int {
	limit := max(capacity-1, 0)
	if ind >= 0 && int(ind) < limit {
		return int(ind)
	}
	return limit
}

func (b *Buffer) GetBool() (bool, error) {
	v, err := b.GetValue()
	if err != nil {
		return false, err
	}
	return toBool(v)
}

func (b *Buffer) GetInt64() (int64, error) {
	v, err := b.GetValue()
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

func (b *Buffer) GetInt8() (int8, error) {
	i, err := b.GetInt64()
	return int8(i), err
}

func (b *Buffer) GetInt16() (int16, error) {
	i, err := b.GetInt64()
	return int16(i), err
}

func (b *Buffer) GetInt32() (int32, error) {
	i, err := b.GetInt64()
	return int32(i), err
}

func (b *Buffer) GetUint64() (uint64, error) {
	v, err := b.GetValue()
	if err != nil {
		return 0, err
	}
	return toUint64(v)
}

func (b *Buffer) GetUint8() (uint8, error) {
	u, err := b.GetUint64()
	return uint8(u), err
}

func (b *Buffer) GetUint16() (uint16, error) {
	u, err := b.GetUint64()
	return uint16(u), err
}

func (b *Buffer) GetUint32() (uint32, error) {
	u, err := b.GetUint64()
	return uint32(u), err
}

func (b *Buffer) GetFloat64() (float64, error) {
	v, err := b.GetValue()
	if err != nil {
		return 0, err
	}
	return toFloat64(v)
}

func (b *Buffer) GetFloat32() (float32, error) {
	f, err := b.GetFloat64()
	return float32(f), err
}

// GetString returns the canonical text of the active element.
func (b *Buffer) GetString() (string, error) {
	v, err := b.GetValue()
	if err != nil {
		return "", err
	}
	return textOf(v), nil
}

func (b *Buffer) GetBinary() ([]byte, error) {
	v, err := b.GetValue()
	if err != nil {
		return nil, err
	}
	return bytesOf(v)
}

func (b *Buffer) GetDecimal() (decimal.Decimal, error) {
	v, err := b.GetValue()
	if err != nil {
		return decimal.Zero, err
	}
	return toDecimal(v)
}

// GetTime serves date, time and timestamp elements.
func (b *Buffer) GetTime() (time.Time, error) {
	v, err := b.GetValue()
	if err != nil {
		return time.Time{}, err
	}
	return toTime(v)
}

func (b *Buffer) GetGuid() (uuid.UUID, error) {
	v, err := b.GetValue()
	if err != nil {
		return uuid.Nil, err
	}
	return toGuid(v)
}

// GetNumeric returns the raw SQL_NUMERIC_STRUCT of a NUMERIC element.
func (b *Buffer) GetNumeric() (NumericStruct, error) {
	if b.ctype != CNumeric {
		return NumericStruct{}, ErrUnsupportedConversion
	}
	e, err := b.element()
	if err != nil {
		return NumericStruct{}, err
	}
	return decodeNumeric(e), nil
}

// GetGuidStruct returns the raw SQLGUID of a GUID element.
func (b *Buffer) GetGuidStruct() (GuidStruct, error) {
	if b.ctype != CGuid {
		return GuidStruct{}, ErrUnsupportedConversion
	}
	e, err := b.element()
	if err != nil {
		return GuidStruct{}, err
	}
	return decodeGuid(e), nil
}

// GetTimestampStruct returns the raw SQL_TIMESTAMP_STRUCT of a TIMESTAMP element.
func (b *Buffer) GetTimestampStruct() (TimestampStruct, error) {
	if b.ctype != CTimestamp {
		return TimestampStruct{}, ErrUnsupportedConversion
	}
	e, err := b.element()
	if err != nil {
		return TimestampStruct{}, err
	}
	return decodeTimestamp(e), nil
}
