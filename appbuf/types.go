package appbuf

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethanyzhang/tsodbc/utils"
)

// CType is the ODBC C data type of an application buffer.
type CType int16

const (
	CChar      CType = 1
	CWChar     CType = -8
	CSTinyInt  CType = -26
	CUTinyInt  CType = -28
	CTinyInt   CType = -6
	CSShort    CType = -15
	CUShort    CType = -17
	CShort     CType = 5
	CSLong     CType = -16
	CULong     CType = -18
	CLong      CType = 4
	CSBigInt   CType = -25
	CUBigInt   CType = -27
	CFloat     CType = 7
	CDouble    CType = 8
	CBit       CType = -7
	CBinary    CType = -2
	CNumeric   CType = 2
	CDate      CType = 91
	CTime      CType = 92
	CTimestamp CType = 93
	CGuid      CType = -11
	CDefault   CType = 99
)

var ctypeNames = utils.NewBiMap(map[CType]string{
	CChar:      "SQL_C_CHAR",
	CWChar:     "SQL_C_WCHAR",
	CSTinyInt:  "SQL_C_STINYINT",
	CUTinyInt:  "SQL_C_UTINYINT",
	CTinyInt:   "SQL_C_TINYINT",
	CSShort:    "SQL_C_SSHORT",
	CUShort:    "SQL_C_USHORT",
	CShort:     "SQL_C_SHORT",
	CSLong:     "SQL_C_SLONG",
	CULong:     "SQL_C_ULONG",
	CLong:      "SQL_C_LONG",
	CSBigInt:   "SQL_C_SBIGINT",
	CUBigInt:   "SQL_C_UBIGINT",
	CFloat:     "SQL_C_FLOAT",
	CDouble:    "SQL_C_DOUBLE",
	CBit:       "SQL_C_BIT",
	CBinary:    "SQL_C_BINARY",
	CNumeric:   "SQL_C_NUMERIC",
	CDate:      "SQL_C_TYPE_DATE",
	CTime:      "SQL_C_TYPE_TIME",
	CTimestamp: "SQL_C_TYPE_TIMESTAMP",
	CGuid:      "SQL_C_GUID",
	CDefault:   "SQL_C_DEFAULT",
})

func (c CType) String() string {
	if name, ok := ctypeNames.Lookup(c); ok {
		return name
	}
	return fmt.Sprintf("CType(%d)", int16(c))
}

// ParseCType returns the C type with the given ODBC name, e.g. "SQL_C_SLONG".
func ParseCType(name string) (CType, error) {
	if c, ok := ctypeNames.RLookup(name); ok {
		return c, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedTargetType, name)
}

// Size returns the fixed element size of c in bytes, or 0 for the
// variable-length kinds whose element size is the bound capacity.
func (c CType) Size() int {
	switch c {
	case CSTinyInt, CUTinyInt, CTinyInt, CBit:
		return 1
	case CSShort, CUShort, CShort:
		return 2
	case CSLong, CULong, CLong, CFloat:
		return 4
	case CSBigInt, CUBigInt, CDouble:
		return 8
	case CDate, CTime:
		return 6
	case CTimestamp, CGuid:
		return 16
	case CNumeric:
		return 19
	}
	return 0
}

// IsVarLen reports whether c is a character or binary kind.
func (c CType) IsVarLen() bool {
	return c == CChar || c == CWChar || c == CBinary
}

func (c CType) known() bool {
	_, ok := ctypeNames.Lookup(c)
	return ok && c != CDefault
}

// SQLType is an ODBC SQL data type id as reported by column descriptions.
type SQLType int16

const (
	SQLUnknown   SQLType = 0
	SQLChar      SQLType = 1
	SQLNumeric   SQLType = 2
	SQLDecimal   SQLType = 3
	SQLInteger   SQLType = 4
	SQLSmallInt  SQLType = 5
	SQLFloat     SQLType = 6
	SQLReal      SQLType = 7
	SQLDouble    SQLType = 8
	SQLVarChar   SQLType = 12
	SQLDate      SQLType = 91
	SQLTime      SQLType = 92
	SQLTimestamp SQLType = 93
	SQLWVarChar  SQLType = -9
	SQLBit       SQLType = -7
	SQLTinyInt   SQLType = -6
	SQLBigInt    SQLType = -5
	SQLVarBinary SQLType = -3
	SQLGuid      SQLType = -11
)

var sqlTypeNames = utils.NewBiMap(map[SQLType]string{
	SQLUnknown:   "SQL_UNKNOWN_TYPE",
	SQLChar:      "SQL_CHAR",
	SQLNumeric:   "SQL_NUMERIC",
	SQLDecimal:   "SQL_DECIMAL",
	SQLInteger:   "SQL_INTEGER",
	SQLSmallInt:  "SQL_SMALLINT",
	SQLFloat:     "SQL_FLOAT",
	SQLReal:      "SQL_REAL",
	SQLDouble:    "SQL_DOUBLE",
	SQLVarChar:   "SQL_VARCHAR",
	SQLDate:      "SQL_TYPE_DATE",
	SQLTime:      "SQL_TYPE_TIME",
	SQLTimestamp: "SQL_TYPE_TIMESTAMP",
	SQLWVarChar:  "SQL_WVARCHAR",
	SQLBit:       "SQL_BIT",
	SQLTinyInt:   "SQL_TINYINT",
	SQLBigInt:    "SQL_BIGINT",
	SQLVarBinary: "SQL_VARBINARY",
	SQLGuid:      "SQL_GUID",
})

func (t SQLType) String() string {
	if name, ok := sqlTypeNames.Lookup(t); ok {
		return name
	}
	return fmt.Sprintf("SQLType(%d)", int16(t))
}

// DefaultCType returns the C type SQL_C_DEFAULT resolves to for t.
func (t SQLType) DefaultCType() CType {
	switch t {
	case SQLBigInt:
		return CSBigInt
	case SQLInteger:
		return CSLong
	case SQLSmallInt:
		return CSShort
	case SQLTinyInt:
		return CSTinyInt
	case SQLBit:
		return CBit
	case SQLReal:
		return CFloat
	case SQLFloat, SQLDouble:
		return CDouble
	case SQLNumeric, SQLDecimal:
		return CNumeric
	case SQLDate:
		return CDate
	case SQLTime:
		return CTime
	case SQLTimestamp:
		return CTimestamp
	case SQLGuid:
		return CGuid
	case SQLVarBinary:
		return CBinary
	case SQLWVarChar:
		return CWChar
	}
	return CChar
}

// Length and indicator sentinels.
const (
	NullData int64 = -1
	NTS      int64 = -3
	NoTotal  int64 = -4
)

// Nullability of a result column.
const (
	NoNulls         int16 = 0
	Nullable        int16 = 1
	NullableUnknown int16 = 2
)

// IndicatorSize is the width of one SQLLEN indicator slot.
const IndicatorSize = 8

// ConversionResult is the outcome of copying a value into a buffer.
type ConversionResult int

const (
	ConvSuccess ConversionResult = iota
	ConvVarLenDataTruncated
	ConvNoData
)

func (r ConversionResult) String() string {
	switch r {
	case ConvSuccess:
		return "Success"
	case ConvVarLenDataTruncated:
		return "VarLenDataTruncated"
	case ConvNoData:
		return "NoData"
	}
	return "Unknown"
}

var (
	ErrInvalidFormat          = errors.New("appbuf: invalid character value for cast")
	ErrUnsupportedTargetType  = errors.New("appbuf: unsupported target type")
	ErrUnsupportedConversion  = errors.New("appbuf: restricted data type attribute violation")
	ErrOutOfBounds            = errors.New("appbuf: access out of buffer bounds")
	ErrIndicatorRequired      = errors.New("appbuf: indicator variable required but not supplied")
	ErrNumericValueOutOfRange = errors.New("appbuf: numeric value out of range")
)

// DateStruct mirrors SQL_DATE_STRUCT.
type DateStruct struct {
	Year  int16
	Month uint16
	Day   uint16
}

// TimeStruct mirrors SQL_TIME_STRUCT.
type TimeStruct struct {
	Hour   uint16
	Minute uint16
	Second uint16
}

// TimestampStruct mirrors SQL_TIMESTAMP_STRUCT. Fraction is in nanoseconds.
type TimestampStruct struct {
	Year     int16
	Month    uint16
	Day      uint16
	Hour     uint16
	Minute   uint16
	Second   uint16
	Fraction uint32
}

// NumericStruct mirrors SQL_NUMERIC_STRUCT. Val holds the unscaled
// magnitude least significant byte first; Sign is 1 for positive values.
type NumericStruct struct {
	Precision uint8
	Scale     int8
	Sign      uint8
	Val       [16]byte
}

// GuidStruct mirrors SQLGUID.
type GuidStruct struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

var le = binary.LittleEndian

func (d DateStruct) encode(b []byte) {
	le.PutUint16(b[0:], uint16(d.Year))
	le.PutUint16(b[2:], d.Month)
	le.PutUint16(b[4:], d.Day)
}

func decodeDate(b []byte) DateStruct {
	return DateStruct{
		Year:  int16(le.Uint16(b[0:])),
		Month: le.Uint16(b[2:]),
		Day:   le.Uint16(b[4:]),
	}
}

func (t TimeStruct) encode(b []byte) {
	le.PutUint16(b[0:], t.Hour)
	le.PutUint16(b[2:], t.Minute)
	le.PutUint16(b[4:], t.Second)
}

func decodeTime(b []byte) TimeStruct {
	return TimeStruct{
		Hour:   le.Uint16(b[0:]),
		Minute: le.Uint16(b[2:]),
		Second: le.Uint16(b[4:]),
	}
}

func (t TimestampStruct) encode(b []byte) {
	le.PutUint16(b[0:], uint16(t.Year))
	le.PutUint16(b[2:], t.Month)
	le.PutUint16(b[4:], t.Day)
	le.PutUint16(b[6:], t.Hour)
	le.PutUint16(b[8:], t.Minute)
	le.PutUint16(b[10:], t.Second)
	le.PutUint32(b[12:], t.Fraction)
}

func decodeTimestamp(b []byte) TimestampStruct {
	return TimestampStruct{
		Year:     int16(le.Uint16(b[0:])),
		Month:    le.Uint16(b[2:]),
		Day:      le.Uint16(b[4:]),
		Hour:     le.Uint16(b[6:]),
		Minute:   le.Uint16(b[8:]),
		Second:   le.Uint16(b[10:]),
		Fraction: le.Uint32(b[12:]),
	}
}

func (n NumericStruct) encode(b []byte) {
	b[0] = n.Precision
	b[1] = byte(n.Scale)
	b[2] = n.Sign
	copy(b[3:19], n.Val[:])
}

func decodeNumeric(b []byte) NumericStruct {
	n := NumericStruct{Precision: b[0], Scale: int8(b[1]), Sign: b[2]}
	copy(n.Val[:], b[3:19])
	return n
}

func (g GuidStruct) encode(b []byte) {
	le.PutUint32(b[0:], g.Data1)
	le.PutUint16(b[4:], g.Data2)
	le.PutUint16(b[6:], g.Data3)
	copy(b[8:16], g.Data4[:])
}

func decodeGuid(b []byte) GuidStruct {
	g := GuidStruct{
		Data1: le.Uint32(b[0:]),
		Data2: le.Uint16(b[4:]),
		Data3: le.Uint16(b[6:]),
	}
	copy(g.Data4[:], b[8:16])
	return g
}
