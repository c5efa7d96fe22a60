// Package value defines the typed value model shared by the wire decoder,
// the application buffers and the result renderer.
//
// A Value is a tagged union: the Kind selects which payload field is
// meaningful. Composite kinds (Array, Row, TimeSeries) own their children
// directly, so arbitrarily deep trees are plain recursive values.
package value

import (
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindDecimal
	KindString
	KindBinary
	KindDate
	KindTime
	KindTimestamp
	KindGuid
	KindInterval
	KindArray
	KindRow
	KindTimeSeries
)

var kindNames = [...]string{
	KindNull:       "null",
	KindBool:       "bool",
	KindInt8:       "int8",
	KindInt16:      "int16",
	KindInt32:      "int32",
	KindInt64:      "int64",
	KindUint8:      "uint8",
	KindUint16:     "uint16",
	KindUint32:     "uint32",
	KindUint64:     "uint64",
	KindFloat32:    "float32",
	KindFloat64:    "float64",
	KindDecimal:    "decimal",
	KindString:     "string",
	KindBinary:     "binary",
	KindDate:       "date",
	KindTime:       "time",
	KindTimestamp:  "timestamp",
	KindGuid:       "guid",
	KindInterval:   "interval",
	KindArray:      "array",
	KindRow:        "row",
	KindTimeSeries: "timeseries",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsComposite reports whether k holds child values.
func (k Kind) IsComposite() bool {
	return k == KindArray || k == KindRow || k == KindTimeSeries
}

// IsSigned reports whether k is a signed integer kind.
func (k Kind) IsSigned() bool {
	return k >= KindInt8 && k <= KindInt64
}

// IsUnsigned reports whether k is an unsigned integer kind.
func (k Kind) IsUnsigned() bool {
	return k >= KindUint8 && k <= KindUint64
}

// IsNumeric reports whether k is an integer, floating point or decimal kind.
func (k Kind) IsNumeric() bool {
	return k >= KindInt8 && k <= KindDecimal
}

// Point is one sample of a time series.
type Point struct {
	Time  time.Time
	Value Value
}

// Value is a tagged union over all values the driver can carry.
// The zero Value is Null.
type Value struct {
	kind   Kind
	num    uint64 // bool, integers and float bits
	str    string // String and Interval
	bytes  []byte
	dec    decimal.Decimal
	t      time.Time
	guid   uuid.UUID
	elems  []Value
	points []Point
}

func Null() Value { return Value{} }

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

func Int8(i int8) Value   { return Value{kind: KindInt8, num: uint64(int64(i))} }
func Int16(i int16) Value { return Value{kind: KindInt16, num: uint64(int64(i))} }
func Int32(i int32) Value { return Value{kind: KindInt32, num: uint64(int64(i))} }
func Int64(i int64) Value { return Value{kind: KindInt64, num: uint64(i)} }

func Uint8(u uint8) Value   { return Value{kind: KindUint8, num: uint64(u)} }
func Uint16(u uint16) Value { return Value{kind: KindUint16, num: uint64(u)} }
func Uint32(u uint32) Value { return Value{kind: KindUint32, num: uint64(u)} }
func Uint64(u uint64) Value { return Value{kind: KindUint64, num: u} }

func Float32(f float32) Value {
	return Value{kind: KindFloat32, num: math.Float64bits(float64(f))}
}

func Float64(f float64) Value {
	return Value{kind: KindFloat64, num: math.Float64bits(f)}
}

// Decimal wraps d. The declared scale is the negated exponent of d.
func Decimal(d decimal.Decimal) Value {
	return Value{kind: KindDecimal, dec: d}
}

// DecimalFromParts builds a decimal from a big-endian magnitude, a scale
// and a sign (negative values have sign < 0).
func DecimalFromParts(magnitude []byte, scale int32, sign int) Value {
	unscaled := new(big.Int).SetBytes(magnitude)
	if sign < 0 {
		unscaled.Neg(unscaled)
	}
	return Decimal(decimal.NewFromBigInt(unscaled, -scale))
}

func String(s string) Value { return Value{kind: KindString, str: s} }

func Binary(b []byte) Value { return Value{kind: KindBinary, bytes: b} }

// Date keeps only the calendar day of t, in UTC.
func Date(t time.Time) Value {
	t = t.UTC()
	return Value{kind: KindDate, t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// Time keeps only the time of day of t, anchored on the Unix epoch day.
func Time(t time.Time) Value {
	t = t.UTC()
	return Value{kind: KindTime, t: time.Date(1970, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)}
}

func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t.UTC()} }

func Guid(g uuid.UUID) Value { return Value{kind: KindGuid, guid: g} }

// GuidFromParts builds a GUID from its most and least significant halves.
func GuidFromParts(msb, lsb uint64) Value {
	var g uuid.UUID
	for i := 0; i < 8; i++ {
		g[i] = byte(msb >> (56 - 8*i))
		g[8+i] = byte(lsb >> (56 - 8*i))
	}
	return Guid(g)
}

// Interval holds an interval literal as reported by the service.
func Interval(s string) Value { return Value{kind: KindInterval, str: s} }

func Array(elems ...Value) Value { return Value{kind: KindArray, elems: elems} }

func Row(elems ...Value) Value { return Value{kind: KindRow, elems: elems} }

func TimeSeries(points ...Point) Value { return Value{kind: KindTimeSeries, points: points} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() bool { return v.num != 0 }

// AsInt64 returns the integer payload, sign extended for signed kinds.
func (v Value) AsInt64() int64 { return int64(v.num) }

func (v Value) AsUint64() uint64 { return v.num }

// AsFloat64 returns the floating point payload of Float32 and Float64 values.
func (v Value) AsFloat64() float64 { return math.Float64frombits(v.num) }

func (v Value) AsDecimal() decimal.Decimal { return v.dec }
func (v Value) AsString() string           { return v.str }
func (v Value) AsBytes() []byte            { return v.bytes }
func (v Value) AsTime() time.Time          { return v.t }
func (v Value) AsGuid() uuid.UUID          { return v.guid }
func (v Value) Elems() []Value             { return v.elems }
func (v Value) Points() []Point            { return v.points }

// DecimalScale returns the declared scale of d, never negative.
func DecimalScale(d decimal.Decimal) int32 {
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// String renders v canonically.
func (v Value) String() string {
	return Render(v)
}
