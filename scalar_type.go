package tsodbc

import (
	"fmt"
	"strconv"

	"github.com/ethanyzhang/tsodbc/utils"
)

// ScalarType names the primitive column types of the query service.
type ScalarType int8

const (
	ScalarUnknown ScalarType = iota
	ScalarVarchar
	ScalarBoolean
	ScalarTinyInt
	ScalarSmallInt
	ScalarInteger
	ScalarBigInt
	ScalarReal
	ScalarDouble
	ScalarDecimal
	ScalarDate
	ScalarTime
	ScalarTimestamp
	ScalarUUID
	ScalarVarbinary
	ScalarIntervalDayToSecond
	ScalarIntervalYearToMonth
)

var scalarTypeMap = utils.NewBiMap(map[ScalarType]string{
	ScalarUnknown:             "UNKNOWN",
	ScalarVarchar:             "VARCHAR",
	ScalarBoolean:             "BOOLEAN",
	ScalarTinyInt:             "TINYINT",
	ScalarSmallInt:            "SMALLINT",
	ScalarInteger:             "INTEGER",
	ScalarBigInt:              "BIGINT",
	ScalarReal:                "REAL",
	ScalarDouble:              "DOUBLE",
	ScalarDecimal:             "DECIMAL",
	ScalarDate:                "DATE",
	ScalarTime:                "TIME",
	ScalarTimestamp:           "TIMESTAMP",
	ScalarUUID:                "UUID",
	ScalarVarbinary:           "VARBINARY",
	ScalarIntervalDayToSecond: "INTERVAL_DAY_TO_SECOND",
	ScalarIntervalYearToMonth: "INTERVAL_YEAR_TO_MONTH",
})

func (t ScalarType) String() string {
	if name, ok := scalarTypeMap.Lookup(t); ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// ParseScalarType parses a service type name. Unknown names yield
// ScalarUnknown and an error.
func ParseScalarType(name string) (ScalarType, error) {
	if t, ok := scalarTypeMap.RLookup(name); ok {
		return t, nil
	}
	return ScalarUnknown, fmt.Errorf("unknown scalar type %q", name)
}

// MarshalText implements the encoding.TextMarshaler interface.
func (t ScalarType) MarshalText() ([]byte, error) {
	if name, ok := scalarTypeMap.Lookup(t); ok {
		return []byte(name), nil
	}
	return nil, fmt.Errorf("unknown scalar type %d", int(t))
}

// UnmarshalText implements the encoding.TextUnmarshaler interface. Names the
// driver does not know decode as ScalarUnknown so newer services stay
// readable.
func (t *ScalarType) UnmarshalText(text []byte) error {
	*t, _ = ParseScalarType(string(text))
	return nil
}
