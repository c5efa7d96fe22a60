package tsodbc

import (
	"strings"

	"github.com/ethanyzhang/tsodbc/appbuf"
)

// ColumnInfo describes one column of a result page.
type ColumnInfo struct {
	Name string `json:"name,omitempty"`
	Type Type   `json:"type"`
}

// Type is the service's column type. Exactly one field is set: a scalar,
// the element of an array, the fields of a row or the measure of a time
// series.
type Type struct {
	ScalarType                       ScalarType   `json:"scalarType,omitempty"`
	ArrayColumnInfo                  *ColumnInfo  `json:"arrayColumnInfo,omitempty"`
	RowColumnInfo                    []ColumnInfo `json:"rowColumnInfo,omitempty"`
	TimeSeriesMeasureValueColumnInfo *ColumnInfo  `json:"timeSeriesMeasureValueColumnInfo,omitempty"`
}

// Name renders the type the way the service spells it, e.g.
// "ARRAY<INTEGER>" or "ROW(a VARCHAR, b DOUBLE)".
func (t Type) Name() string {
	switch {
	case t.ArrayColumnInfo != nil:
		return "ARRAY<" + t.ArrayColumnInfo.Type.Name() + ">"
	case t.TimeSeriesMeasureValueColumnInfo != nil:
		return "TIMESERIES<" + t.TimeSeriesMeasureValueColumnInfo.Type.Name() + ">"
	case t.RowColumnInfo != nil:
		fields := make([]string, len(t.RowColumnInfo))
		for i, c := range t.RowColumnInfo {
			fields[i] = strings.TrimSpace(c.Name + " " + c.Type.Name())
		}
		return "ROW(" + strings.Join(fields, ", ") + ")"
	default:
		return t.ScalarType.String()
	}
}

// IsScalar reports whether t is a primitive type.
func (t Type) IsScalar() bool {
	return t.ArrayColumnInfo == nil && t.RowColumnInfo == nil && t.TimeSeriesMeasureValueColumnInfo == nil
}

// ColumnMeta is the ODBC description of a result column.
type ColumnMeta struct {
	Name     string
	TypeName string
	SQLType  appbuf.SQLType
	// Width is the display width in bytes, or appbuf.NoTotal for
	// unbounded types.
	Width    int64
	Nullable int16
}

type sqlMapping struct {
	sqlType appbuf.SQLType
	width   int64
}

var scalarSQLTypes = map[ScalarType]sqlMapping{
	ScalarBigInt:    {appbuf.SQLBigInt, 8},
	ScalarInteger:   {appbuf.SQLInteger, 4},
	ScalarSmallInt:  {appbuf.SQLSmallInt, 2},
	ScalarTinyInt:   {appbuf.SQLTinyInt, 1},
	ScalarBoolean:   {appbuf.SQLBit, 1},
	ScalarReal:      {appbuf.SQLReal, 4},
	ScalarDouble:    {appbuf.SQLDouble, 8},
	ScalarDecimal:   {appbuf.SQLDecimal, 19},
	ScalarDate:      {appbuf.SQLDate, 6},
	ScalarTime:      {appbuf.SQLTime, 6},
	ScalarTimestamp: {appbuf.SQLTimestamp, 16},
	ScalarUUID:      {appbuf.SQLGuid, 16},
	ScalarVarbinary: {appbuf.SQLVarBinary, appbuf.NoTotal},
	ScalarVarchar:   {appbuf.SQLVarChar, appbuf.NoTotal},
}

// DeriveColumnMeta maps a result schema to column descriptions. Composite,
// interval and unknown types are described as unbounded VARCHAR since they
// are delivered as rendered text.
func DeriveColumnMeta(columns []ColumnInfo) []ColumnMeta {
	meta := make([]ColumnMeta, len(columns))
	for i, c := range columns {
		m := sqlMapping{appbuf.SQLVarChar, appbuf.NoTotal}
		if c.Type.IsScalar() {
			if known, ok := scalarSQLTypes[c.Type.ScalarType]; ok {
				m = known
			}
		}
		meta[i] = ColumnMeta{
			Name:     c.Name,
			TypeName: c.Type.Name(),
			SQLType:  m.sqlType,
			Width:    m.width,
			Nullable: appbuf.Nullable,
		}
	}
	return meta
}
