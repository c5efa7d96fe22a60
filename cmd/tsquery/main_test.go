package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanyzhang/tsodbc"
	"github.com/ethanyzhang/tsodbc/odbctest"
	"github.com/ethanyzhang/tsodbc/value"
)

func varchar(name string) tsodbc.ColumnInfo {
	return tsodbc.ColumnInfo{Name: name, Type: tsodbc.Type{ScalarType: tsodbc.ScalarVarchar}}
}

func newMock(t *testing.T) *odbctest.MockServer {
	t.Helper()
	mock := odbctest.NewMockServer()
	t.Cleanup(mock.Close)

	mock.AddQuery(&odbctest.QueryTemplate{
		SQL:     "SHOW DATABASES",
		Columns: []tsodbc.ColumnInfo{varchar("Database")},
		Rows:    [][]value.Value{{value.String("metrics")}},
	})
	mock.AddQuery(&odbctest.QueryTemplate{
		SQL:     `SHOW TABLES FROM "metrics"`,
		Columns: []tsodbc.ColumnInfo{varchar("Table")},
		Rows:    [][]value.Value{{value.String("cpu")}, {value.String("mem")}},
	})
	mock.AddQuery(&odbctest.QueryTemplate{
		SQL:     `DESCRIBE "metrics"."cpu"`,
		Columns: []tsodbc.ColumnInfo{varchar("Column"), varchar("Type")},
		Rows: [][]value.Value{
			{value.String("host"), value.String("VARCHAR")},
			{value.String("usage"), value.String("DOUBLE")},
		},
	})
	return mock
}

// run executes tsquery with args against mock and returns the printed rows
// split into fields.
func run(t *testing.T, mock *odbctest.MockServer, args ...string) ([][]string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	dsn := "tsodbc://" + strings.TrimPrefix(mock.URL(), "http://")
	root.SetArgs(append([]string{"--dsn", dsn, "--log-level", "warn"}, args...))

	err := root.Execute()
	var lines [][]string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line != "" {
			lines = append(lines, strings.Fields(line))
		}
	}
	return lines, err
}

func TestQueryCommand(t *testing.T) {
	mock := newMock(t)
	long := strings.Repeat("x", 150)
	mock.AddQuery(&odbctest.QueryTemplate{
		SQL: "SELECT host, n FROM cpu",
		Columns: []tsodbc.ColumnInfo{
			varchar("host"),
			{Name: "n", Type: tsodbc.Type{ScalarType: tsodbc.ScalarBigInt}},
		},
		Rows: [][]value.Value{
			{value.String("h1"), value.Int64(42)},
			{value.String(long), value.Null()},
		},
		Pages: 2,
	})

	lines, err := run(t, mock, "query", "SELECT host, n FROM cpu")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"host", "n"},
		{"h1", "42"},
		{long, "NULL"},
	}, lines)
}

func TestQueryCommand_Error(t *testing.T) {
	mock := newMock(t)
	mock.AddQuery(&odbctest.QueryTemplate{
		SQL: "SELECT nope",
		Error: &tsodbc.QueryError{
			ErrorName:     "VALIDATION_ERROR",
			ErrorType:     "USER_ERROR",
			Message:       "column nope does not exist",
			ErrorLocation: &tsodbc.ErrorLocation{LineNumber: 1, ColumnNumber: 8},
		},
	})

	_, err := run(t, mock, "query", "SELECT nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[42000]")
	assert.Contains(t, err.Error(), "column nope does not exist")

	_, err = run(t, mock, "query")
	assert.Error(t, err, "query requires an argument")
}

func TestTablesCommand(t *testing.T) {
	mock := newMock(t)

	lines, err := run(t, mock, "tables")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"TABLE_SCHEM", "TABLE_NAME", "TABLE_TYPE"},
		{"metrics", "cpu", "TABLE"},
		{"metrics", "mem", "TABLE"},
	}, lines)

	lines, err = run(t, mock, "tables", "m%")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"TABLE_SCHEM", "TABLE_NAME", "TABLE_TYPE"},
		{"metrics", "mem", "TABLE"},
	}, lines)
}

func TestColumnsCommand(t *testing.T) {
	mock := newMock(t)

	lines, err := run(t, mock, "columns", "cpu")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"TABLE_SCHEM", "TABLE_NAME", "COLUMN_NAME", "TYPE_NAME", "ORDINAL_POSITION"},
		{"metrics", "cpu", "host", "VARCHAR", "1"},
		{"metrics", "cpu", "usage", "DOUBLE", "2"},
	}, lines)

	lines, err = run(t, mock, "columns", "--database", "metrics", "cpu", "u%")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"TABLE_SCHEM", "TABLE_NAME", "COLUMN_NAME", "TYPE_NAME", "ORDINAL_POSITION"},
		{"metrics", "cpu", "usage", "DOUBLE", "2"},
	}, lines)
}

func TestRootCommand_Settings(t *testing.T) {
	mock := newMock(t)

	t.Run("invalid log level", func(t *testing.T) {
		_, err := run(t, mock, "--log-level", "loud", "tables")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid DSN", func(t *testing.T) {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"--dsn", "mysql://localhost", "tables"})
		assert.Error(t, root.Execute())
	})

	t.Run("metrics server", func(t *testing.T) {
		lines, err := run(t, mock, "--metrics-addr", "127.0.0.1:0", "tables")
		require.NoError(t, err)
		assert.Len(t, lines, 3)
	})

	t.Run("environment DSN", func(t *testing.T) {
		t.Setenv("TSODBC_DSN", "tsodbc://"+strings.TrimPrefix(mock.URL(), "http://"))
		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"tables"})
		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "mem")
	})
}
