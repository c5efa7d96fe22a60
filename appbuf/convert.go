package appbuf

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ethanyzhang/tsodbc/value"
)

func textOf(v value.Value) string {
	return value.Render(v)
}

func bytesOf(v value.Value) ([]byte, error) {
	switch v.Kind() {
	case value.KindBinary:
		return v.AsBytes(), nil
	case value.KindGuid:
		g := v.AsGuid()
		return g[:], nil
	case value.KindString, value.KindInterval:
		return []byte(v.AsString()), nil
	}
	return nil, conversionError(v, "binary")
}

// toInt64 returns the integer value of v. Unsigned sources keep their bit
// pattern; callers narrow the result with a plain conversion.
func toInt64(v value.Value) (int64, error) {
	switch k := v.Kind(); {
	case k == value.KindBool:
		if v.AsBool() {
			return 1, nil
		}
		return 0, nil
	case k.IsSigned(), k.IsUnsigned():
		return v.AsInt64(), nil
	case k == value.KindFloat32, k == value.KindFloat64:
		f := v.AsFloat64()
		if f >= math.MaxInt64 {
			return int64(uint64(f)), nil
		}
		return int64(f), nil
	case k == value.KindDecimal:
		return decimalInt64(v.AsDecimal()), nil
	case k == value.KindString:
		d, err := parseLeadingNumber(v.AsString())
		if err != nil {
			return 0, err
		}
		return decimalInt64(d), nil
	}
	return 0, conversionError(v, "integer")
}

// decimalInt64 truncates d toward zero and keeps the low 64 bits.
func decimalInt64(d decimal.Decimal) int64 {
	bi := d.Truncate(0).BigInt()
	if bi.IsInt64() {
		return bi.Int64()
	}
	if bi.IsUint64() {
		return int64(bi.Uint64())
	}
	mask := new(big.Int).SetUint64(math.MaxUint64)
	low := new(big.Int).And(new(big.Int).Abs(bi), mask).Uint64()
	if bi.Sign() < 0 {
		low = -low
	}
	return int64(low)
}

func toUint64(v value.Value) (uint64, error) {
	i, err := toInt64(v)
	return uint64(i), err
}

func toFloat64(v value.Value) (float64, error) {
	switch k := v.Kind(); {
	case k == value.KindBool:
		if v.AsBool() {
			return 1, nil
		}
		return 0, nil
	case k.IsSigned():
		return float64(v.AsInt64()), nil
	case k.IsUnsigned():
		return float64(v.AsUint64()), nil
	case k == value.KindFloat32, k == value.KindFloat64:
		return v.AsFloat64(), nil
	case k == value.KindDecimal:
		return v.AsDecimal().InexactFloat64(), nil
	case k == value.KindString:
		d, err := parseLeadingNumber(v.AsString())
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	}
	return 0, conversionError(v, "floating point")
}

func toDecimal(v value.Value) (decimal.Decimal, error) {
	switch k := v.Kind(); {
	case k == value.KindBool:
		if v.AsBool() {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case k.IsSigned():
		return decimal.NewFromInt(v.AsInt64()), nil
	case k.IsUnsigned():
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v.AsUint64()), 0), nil
	case k == value.KindFloat32:
		return decimal.NewFromFloat32(float32(v.AsFloat64())), nil
	case k == value.KindFloat64:
		return decimal.NewFromFloat(v.AsFloat64()), nil
	case k == value.KindDecimal:
		return v.AsDecimal(), nil
	case k == value.KindString:
		return parseLeadingNumber(v.AsString())
	}
	return decimal.Zero, conversionError(v, "numeric")
}

func toBool(v value.Value) (bool, error) {
	if v.Kind() == value.KindString {
		if b, err := strconv.ParseBool(strings.TrimSpace(v.AsString())); err == nil {
			return b, nil
		}
	}
	i, err := toInt64(v)
	if err != nil {
		return false, err
	}
	return i != 0, nil
}

var temporalLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	value.DateLayout,
	"15:04:05.999999999",
}

func toTime(v value.Value) (time.Time, error) {
	switch v.Kind() {
	case value.KindDate, value.KindTime, value.KindTimestamp:
		return v.AsTime(), nil
	case value.KindString:
		s := strings.TrimSpace(v.AsString())
		for _, layout := range temporalLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q is not a date or time", ErrInvalidFormat, v.AsString())
	}
	return time.Time{}, conversionError(v, "date/time")
}

func toGuid(v value.Value) (uuid.UUID, error) {
	switch v.Kind() {
	case value.KindGuid:
		return v.AsGuid(), nil
	case value.KindString:
		g, err := uuid.Parse(strings.TrimSpace(v.AsString()))
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		return g, nil
	case value.KindBinary:
		if g, err := uuid.FromBytes(v.AsBytes()); err == nil {
			return g, nil
		}
	}
	return uuid.Nil, conversionError(v, "guid")
}

// parseLeadingNumber parses the longest numeric literal at the start of s,
// ignoring leading white space and anything after the literal.
func parseLeadingNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
			digits++
		}
		i = j
	}
	if digits == 0 {
		return decimal.Zero, fmt.Errorf("%w: %q is not numeric", ErrInvalidFormat, s)
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	lit := strings.TrimPrefix(s[:i], "+")
	if strings.HasPrefix(lit, ".") || strings.HasPrefix(lit, "-.") {
		lit = strings.Replace(lit, ".", "0.", 1)
	}
	lit = strings.NewReplacer(".e", "e", ".E", "E").Replace(strings.TrimSuffix(lit, "."))
	d, err := decimal.NewFromString(lit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return d, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// numericStruct encodes d with its scale forced to zero.
func numericStruct(d decimal.Decimal) (NumericStruct, error) {
	d = d.Truncate(0)
	n := NumericStruct{Sign: 1}
	if d.Sign() < 0 {
		n.Sign = 0
		d = d.Neg()
	}
	bi := d.BigInt()
	mag := bi.Bytes()
	if len(mag) > len(n.Val) {
		return n, fmt.Errorf("%w: %s does not fit SQL_NUMERIC_STRUCT", ErrNumericValueOutOfRange, d)
	}
	for i, c := range mag {
		n.Val[len(mag)-1-i] = c
	}
	n.Precision = uint8(len(bi.String()))
	return n, nil
}

func numericValue(n NumericStruct) value.Value {
	end := len(n.Val)
	for end > 0 && n.Val[end-1] == 0 {
		end--
	}
	mag := make([]byte, end)
	for i := 0; i < end; i++ {
		mag[end-1-i] = n.Val[i]
	}
	sign := 1
	if n.Sign == 0 {
		sign = -1
	}
	return value.DecimalFromParts(mag, int32(n.Scale), sign)
}

func timestampStruct(t time.Time) TimestampStruct {
	return TimestampStruct{
		Year:     int16(t.Year()),
		Month:    uint16(t.Month()),
		Day:      uint16(t.Day()),
		Hour:     uint16(t.Hour()),
		Minute:   uint16(t.Minute()),
		Second:   uint16(t.Second()),
		Fraction: uint32(t.Nanosecond()),
	}
}

// guidStruct splits an RFC 4122 GUID into the SQLGUID fields, which are
// stored in native (little-endian) order.
func guidStruct(g uuid.UUID) GuidStruct {
	s := GuidStruct{
		Data1: binary.BigEndian.Uint32(g[0:4]),
		Data2: binary.BigEndian.Uint16(g[4:6]),
		Data3: binary.BigEndian.Uint16(g[6:8]),
	}
	copy(s.Data4[:], g[8:16])
	return s
}

func (s GuidStruct) uuid() uuid.UUID {
	var g uuid.UUID
	binary.BigEndian.PutUint32(g[0:4], s.Data1)
	binary.BigEndian.PutUint16(g[4:6], s.Data2)
	binary.BigEndian.PutUint16(g[6:8], s.Data3)
	copy(g[8:16], s.Data4[:])
	return g
}

func conversionError(v value.Value, target string) error {
	return fmt.Errorf("%w: cannot convert %s to %s", ErrUnsupportedConversion, v.Kind(), target)
}
