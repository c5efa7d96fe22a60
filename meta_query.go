package tsodbc

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ethanyzhang/tsodbc/appbuf"
	"github.com/ethanyzhang/tsodbc/value"
	"github.com/ethanyzhang/tsodbc/wire"
)

// AllTypes selects every type in TypeInfo.
const AllTypes appbuf.SQLType = 0

// metaQuery is a catalog result built in full at execute time and then read
// through a forward-only cursor.
type metaQuery struct {
	meta   []ColumnMeta
	build  func(ctx context.Context) ([][]value.Value, error)
	cursor rowCursor
}

func newMetaQuery(columns []ColumnInfo, build func(ctx context.Context) ([][]value.Value, error)) *metaQuery {
	return &metaQuery{meta: DeriveColumnMeta(columns), build: build}
}

func (q *metaQuery) execute(ctx context.Context) error {
	rows, err := q.build(ctx)
	if err != nil {
		return err
	}
	encoded := make([][]byte, len(rows))
	for i, r := range rows {
		if encoded[i], err = wire.EncodeRow(r...); err != nil {
			return fmt.Errorf("failed to materialize catalog row %d: %w", i, err)
		}
	}
	q.cursor.reset(encoded)
	return nil
}

func (q *metaQuery) columns() []ColumnMeta                       { return q.meta }
func (q *metaQuery) next() (bool, error)                         { return q.cursor.next(), nil }
func (q *metaQuery) row() *wire.Row                              { return q.cursor.row() }
func (q *metaQuery) affectedRows() int64                         { return 0 }
func (q *metaQuery) nextResultSet(context.Context) (bool, error) { return false, nil }
func (q *metaQuery) warnings() []Warning                         { return nil }
func (q *metaQuery) cancel()                                     {}
func (q *metaQuery) close()                                      { q.cursor.reset(nil) }

// --- Result shapes ---

func varcharCol(name string) ColumnInfo {
	return ColumnInfo{Name: name, Type: Type{ScalarType: ScalarVarchar}}
}

func smallintCol(name string) ColumnInfo {
	return ColumnInfo{Name: name, Type: Type{ScalarType: ScalarSmallInt}}
}

func integerCol(name string) ColumnInfo {
	return ColumnInfo{Name: name, Type: Type{ScalarType: ScalarInteger}}
}

var (
	tablesColumns = []ColumnInfo{
		varcharCol("TABLE_CAT"), varcharCol("TABLE_SCHEM"), varcharCol("TABLE_NAME"),
		varcharCol("TABLE_TYPE"), varcharCol("REMARKS"),
	}
	columnsColumns = []ColumnInfo{
		varcharCol("TABLE_CAT"), varcharCol("TABLE_SCHEM"), varcharCol("TABLE_NAME"),
		varcharCol("COLUMN_NAME"), smallintCol("DATA_TYPE"), varcharCol("TYPE_NAME"),
		integerCol("COLUMN_SIZE"), integerCol("BUFFER_LENGTH"), smallintCol("DECIMAL_DIGITS"),
		smallintCol("NUM_PREC_RADIX"), smallintCol("NULLABLE"), varcharCol("REMARKS"),
		varcharCol("COLUMN_DEF"), smallintCol("SQL_DATA_TYPE"), smallintCol("SQL_DATETIME_SUB"),
		integerCol("CHAR_OCTET_LENGTH"), integerCol("ORDINAL_POSITION"), varcharCol("IS_NULLABLE"),
	}
	primaryKeysColumns = []ColumnInfo{
		varcharCol("TABLE_CAT"), varcharCol("TABLE_SCHEM"), varcharCol("TABLE_NAME"),
		varcharCol("COLUMN_NAME"), smallintCol("KEY_SEQ"), varcharCol("PK_NAME"),
	}
	foreignKeysColumns = []ColumnInfo{
		varcharCol("PKTABLE_CAT"), varcharCol("PKTABLE_SCHEM"), varcharCol("PKTABLE_NAME"),
		varcharCol("PKCOLUMN_NAME"), varcharCol("FKTABLE_CAT"), varcharCol("FKTABLE_SCHEM"),
		varcharCol("FKTABLE_NAME"), varcharCol("FKCOLUMN_NAME"), smallintCol("KEY_SEQ"),
		smallintCol("UPDATE_RULE"), smallintCol("DELETE_RULE"), varcharCol("FK_NAME"),
		varcharCol("PK_NAME"), smallintCol("DEFERRABILITY"),
	}
	typeInfoColumns = []ColumnInfo{
		varcharCol("TYPE_NAME"), smallintCol("DATA_TYPE"), integerCol("COLUMN_SIZE"),
		varcharCol("LITERAL_PREFIX"), varcharCol("LITERAL_SUFFIX"), varcharCol("CREATE_PARAMS"),
		smallintCol("NULLABLE"), smallintCol("CASE_SENSITIVE"), smallintCol("SEARCHABLE"),
		smallintCol("UNSIGNED_ATTRIBUTE"), smallintCol("FIXED_PREC_SCALE"), smallintCol("AUTO_UNIQUE_VALUE"),
		varcharCol("LOCAL_TYPE_NAME"), smallintCol("MINIMUM_SCALE"), smallintCol("MAXIMUM_SCALE"),
		smallintCol("SQL_DATA_TYPE"), smallintCol("SQL_DATETIME_SUB"), integerCol("NUM_PREC_RADIX"),
		integerCol("INTERVAL_PRECISION"),
	}
	specialColumnsColumns = []ColumnInfo{
		smallintCol("SCOPE"), varcharCol("COLUMN_NAME"), smallintCol("DATA_TYPE"),
		varcharCol("TYPE_NAME"), integerCol("COLUMN_SIZE"), integerCol("BUFFER_LENGTH"),
		smallintCol("DECIMAL_DIGITS"), smallintCol("PSEUDO_COLUMN"),
	}
)

// --- Catalog builders ---

const tableType = "TABLE"

func tablesQuery(s *Session, catalog, schema, table, types string) *metaQuery {
	return newMetaQuery(tablesColumns, func(ctx context.Context) ([][]value.Value, error) {
		switch {
		// The service has no catalogs.
		case catalog == "%" && schema == "" && table == "":
			return nil, nil
		case schema == "%" && catalog == "" && table == "":
			dbs, err := listDatabases(ctx, s, "%")
			if err != nil {
				return nil, err
			}
			rows := make([][]value.Value, len(dbs))
			for i, db := range dbs {
				rows[i] = []value.Value{value.Null(), value.String(db), value.Null(), value.Null(), value.Null()}
			}
			return rows, nil
		case types == "%" && catalog == "" && schema == "" && table == "":
			return [][]value.Value{{value.Null(), value.Null(), value.Null(), value.String(tableType), value.Null()}}, nil
		}

		if (catalog != "" && catalog != "%") || !acceptsTableType(types) {
			return nil, nil
		}
		tables, err := listTables(ctx, s, schema, table)
		if err != nil {
			return nil, err
		}
		rows := make([][]value.Value, len(tables))
		for i, t := range tables {
			rows[i] = []value.Value{value.Null(), value.String(t.database), value.String(t.name), value.String(tableType), value.Null()}
		}
		return rows, nil
	})
}

func columnsQuery(s *Session, schema, table, column string) *metaQuery {
	return newMetaQuery(columnsColumns, func(ctx context.Context) ([][]value.Value, error) {
		tables, err := listTables(ctx, s, schema, table)
		if err != nil {
			return nil, err
		}
		var rows [][]value.Value
		for _, t := range tables {
			described, err := collect(ctx, s, "DESCRIBE "+quoteIdent(t.database)+"."+quoteIdent(t.name))
			if err != nil {
				return nil, err
			}
			for i, d := range described {
				if len(d) < 2 {
					continue
				}
				name, typeName := value.Render(d[0]), value.Render(d[1])
				if !likeMatch(column, name) {
					continue
				}
				rows = append(rows, describeColumn(t, name, typeName, i+1))
			}
		}
		return rows, nil
	})
}

func describeColumn(t tableRef, name, typeName string, ordinal int) []value.Value {
	st, err := ParseScalarType(typeName)
	if err != nil {
		st = ScalarUnknown
	}
	m := DeriveColumnMeta([]ColumnInfo{{Name: name, Type: Type{ScalarType: st}}})[0]

	size, octets := value.Null(), value.Null()
	if m.Width != appbuf.NoTotal {
		size = value.Int32(int32(m.Width))
	}
	if m.SQLType == appbuf.SQLVarChar || m.SQLType == appbuf.SQLVarBinary {
		octets = value.Int32(int32(maxVarLen))
	}
	digits, radix := value.Null(), value.Null()
	switch m.SQLType {
	case appbuf.SQLBigInt, appbuf.SQLInteger, appbuf.SQLSmallInt, appbuf.SQLTinyInt, appbuf.SQLDecimal:
		digits, radix = value.Int16(0), value.Int16(10)
	case appbuf.SQLReal, appbuf.SQLDouble:
		radix = value.Int16(2)
	case appbuf.SQLTimestamp, appbuf.SQLTime:
		digits = value.Int16(9)
	}
	sqlDataType, datetimeSub := value.Int16(int16(m.SQLType)), value.Null()
	switch m.SQLType {
	case appbuf.SQLDate, appbuf.SQLTime, appbuf.SQLTimestamp:
		// SQL_DATETIME with the concise type's subcode
		sqlDataType = value.Int16(9)
		datetimeSub = value.Int16(int16(m.SQLType) - 90)
	}

	return []value.Value{
		value.Null(), value.String(t.database), value.String(t.name), value.String(name),
		value.Int16(int16(m.SQLType)), value.String(typeName), size, size,
		digits, radix, value.Int16(m.Nullable), value.Null(),
		value.Null(), sqlDataType, datetimeSub,
		octets, value.Int32(int32(ordinal)), value.String("YES"),
	}
}

// The service has no keys and no row identifiers, so these are always empty.

func primaryKeysQuery() *metaQuery {
	return newMetaQuery(primaryKeysColumns, func(context.Context) ([][]value.Value, error) { return nil, nil })
}

func foreignKeysQuery() *metaQuery {
	return newMetaQuery(foreignKeysColumns, func(context.Context) ([][]value.Value, error) { return nil, nil })
}

func specialColumnsQuery() *metaQuery {
	return newMetaQuery(specialColumnsColumns, func(context.Context) ([][]value.Value, error) { return nil, nil })
}

// maxVarLen is the COLUMN_SIZE reported for unbounded character and binary
// types.
const maxVarLen = 2147483647

var literalQuotes = map[ScalarType][2]string{
	ScalarVarchar:   {"'", "'"},
	ScalarDate:      {"DATE '", "'"},
	ScalarTime:      {"TIME '", "'"},
	ScalarTimestamp: {"TIMESTAMP '", "'"},
}

func typeInfoQuery(dataType appbuf.SQLType) *metaQuery {
	return newMetaQuery(typeInfoColumns, func(context.Context) ([][]value.Value, error) {
		types := make([]ScalarType, 0, len(scalarSQLTypes))
		for st, m := range scalarSQLTypes {
			if dataType == AllTypes || m.sqlType == dataType {
				types = append(types, st)
			}
		}
		slices.SortFunc(types, func(a, b ScalarType) int {
			return cmp.Or(cmp.Compare(scalarSQLTypes[a].sqlType, scalarSQLTypes[b].sqlType), cmp.Compare(a, b))
		})

		rows := make([][]value.Value, len(types))
		for i, st := range types {
			m := scalarSQLTypes[st]
			size := value.Int32(int32(m.width))
			if m.width == appbuf.NoTotal {
				size = value.Int32(maxVarLen)
			}
			prefix, suffix := value.Null(), value.Null()
			if q, ok := literalQuotes[st]; ok {
				prefix, suffix = value.String(q[0]), value.String(q[1])
			}
			caseSensitive := int16(0)
			if st == ScalarVarchar {
				caseSensitive = 1
			}
			rows[i] = []value.Value{
				value.String(st.String()), value.Int16(int16(m.sqlType)), size,
				prefix, suffix, value.Null(),
				value.Int16(appbuf.Nullable), value.Int16(caseSensitive), value.Int16(3),
				value.Null(), value.Int16(0), value.Null(),
				value.Null(), value.Null(), value.Null(),
				value.Int16(int16(m.sqlType)), value.Null(), value.Null(),
				value.Null(),
			}
		}
		return rows, nil
	})
}

// --- Service lookups ---

type tableRef struct {
	database string
	name     string
}

// collect runs text and decodes every row of every page.
func collect(ctx context.Context, s *Session, text string) ([][]value.Value, error) {
	outcome, _, err := s.Query(ctx, text)
	if err != nil {
		return nil, err
	}
	var rows [][]value.Value
	decode := func(qo *QueryOutcome) error {
		for _, raw := range qo.Rows {
			vals, err := wire.DecodeRow(raw)
			if err != nil {
				return err
			}
			rows = append(rows, vals)
		}
		return nil
	}
	if err := decode(outcome); err != nil {
		return nil, err
	}
	if err := outcome.Drain(ctx, decode); err != nil {
		return nil, err
	}
	return rows, nil
}

func listDatabases(ctx context.Context, s *Session, pattern string) ([]string, error) {
	rows, err := collect(ctx, s, "SHOW DATABASES")
	if err != nil {
		return nil, err
	}
	var dbs []string
	for _, r := range rows {
		if len(r) == 0 {
			continue
		}
		if db := value.Render(r[0]); likeMatch(pattern, db) {
			dbs = append(dbs, db)
		}
	}
	slices.Sort(dbs)
	return dbs, nil
}

func listTables(ctx context.Context, s *Session, schemaPattern, tablePattern string) ([]tableRef, error) {
	if schemaPattern == "" {
		schemaPattern = s.currentDatabase()
	}
	dbs, err := listDatabases(ctx, s, schemaPattern)
	if err != nil {
		return nil, err
	}
	var tables []tableRef
	for _, db := range dbs {
		rows, err := collect(ctx, s, "SHOW TABLES FROM "+quoteIdent(db))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if len(r) == 0 {
				continue
			}
			if name := value.Render(r[0]); likeMatch(tablePattern, name) {
				tables = append(tables, tableRef{database: db, name: name})
			}
		}
	}
	slices.SortFunc(tables, func(a, b tableRef) int {
		return cmp.Or(strings.Compare(a.database, b.database), strings.Compare(a.name, b.name))
	})
	return tables, nil
}

func acceptsTableType(types string) bool {
	if types == "" || types == "%" {
		return true
	}
	for _, t := range strings.Split(types, ",") {
		if strings.EqualFold(strings.Trim(strings.TrimSpace(t), "'"), tableType) {
			return true
		}
	}
	return false
}

// likeMatch reports whether s matches an ODBC search pattern: % matches any
// run of characters, _ matches one and a backslash escapes the next
// character. An empty pattern matches everything.
func likeMatch(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	p, r := []rune(pattern), []rune(s)
	// match[j] reports whether p[:i] matches r[:j] for the current i.
	match := make([]bool, len(r)+1)
	match[0] = true
	for i := 0; i < len(p); i++ {
		c, escaped := p[i], false
		if c == '\\' && i+1 < len(p) {
			i++
			c, escaped = p[i], true
		}
		next := make([]bool, len(r)+1)
		switch {
		case c == '%' && !escaped:
			next[0] = match[0]
			for j := 1; j <= len(r); j++ {
				next[j] = next[j-1] || match[j]
			}
		default:
			for j := 1; j <= len(r); j++ {
				next[j] = match[j-1] && ((c == '_' && !escaped) || r[j-1] == c)
			}
		}
		match = next
	}
	return match[len(r)]
}
