package odbctest_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanyzhang/tsodbc"
	"github.com/ethanyzhang/tsodbc/odbctest"
	"github.com/ethanyzhang/tsodbc/value"
	"github.com/ethanyzhang/tsodbc/wire"
)

func newSession(t *testing.T, mockServer *odbctest.MockServer) *tsodbc.Session {
	t.Helper()
	client, err := tsodbc.NewClient(mockServer.URL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client.NewSession()
}

func intRows(n int) [][]value.Value {
	rows := make([][]value.Value, n)
	for i := range rows {
		rows[i] = []value.Value{value.Int64(int64(i + 1))}
	}
	return rows
}

var bigintColumns = []tsodbc.ColumnInfo{{Name: "n", Type: tsodbc.Type{ScalarType: tsodbc.ScalarBigInt}}}

// --- Mock Server Logic Tests ---

// TestMockServer_PageCapping verifies that AddQuery caps Pages at the row count.
func TestMockServer_PageCapping(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()

	tmpl := &odbctest.QueryTemplate{SQL: "SELECT * FROM sparse", Rows: intRows(3), Pages: 10}
	mockServer.AddQuery(tmpl)
	assert.Equal(t, 3, tmpl.Pages, "Pages should be capped at row count")

	tmplEmpty := &odbctest.QueryTemplate{SQL: "SELECT * FROM empty", Pages: 5}
	mockServer.AddQuery(tmplEmpty)
	assert.Equal(t, 0, tmplEmpty.Pages, "Pages should be 0 for empty data")
}

// TestMockServer_MaxRowsPaging verifies that the request's maxRows sizes pages
// when the template leaves Pages unset.
func TestMockServer_MaxRowsPaging(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()
	session := newSession(t, mockServer).MaxRows(2)

	mockServer.AddQuery(&odbctest.QueryTemplate{SQL: "SELECT n", Columns: bigintColumns, Rows: intRows(5)})

	results, _, err := session.Query(context.Background(), "SELECT n")
	require.NoError(t, err)

	sizes := []int{len(results.Rows)}
	err = results.Drain(context.Background(), func(qo *tsodbc.QueryOutcome) error {
		sizes = append(sizes, len(qo.Rows))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

// TestMockServer_DistributedLatency verifies that latency is spread evenly over pages.
func TestMockServer_DistributedLatency(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()
	session := newSession(t, mockServer)

	mockServer.AddQuery(&odbctest.QueryTemplate{
		SQL:     "SELECT 1",
		Columns: bigintColumns,
		Rows:    intRows(2),
		Pages:   2,
		Latency: 200 * time.Millisecond,
	})

	start := time.Now()
	results, _, err := session.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.True(t, time.Since(start) >= 90*time.Millisecond, "first page should incur proportional latency")

	startPage := time.Now()
	require.NoError(t, results.FetchNextPage(context.Background()))
	assert.True(t, time.Since(startPage) >= 90*time.Millisecond, "second page should incur proportional latency")
}

// TestMockServer_RowsRoundTrip verifies that served rows decode to the template values.
func TestMockServer_RowsRoundTrip(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()
	session := newSession(t, mockServer)

	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	mockServer.AddQuery(&odbctest.QueryTemplate{
		SQL: "SELECT host, time",
		Columns: []tsodbc.ColumnInfo{
			{Name: "host", Type: tsodbc.Type{ScalarType: tsodbc.ScalarVarchar}},
			{Name: "time", Type: tsodbc.Type{ScalarType: tsodbc.ScalarTimestamp}},
		},
		Rows: [][]value.Value{{value.String("h1"), value.Timestamp(ts)}},
	})

	results, _, err := session.Query(context.Background(), "SELECT host, time")
	require.NoError(t, err)
	require.Len(t, results.Rows, 1)
	assert.Equal(t, "TIMESTAMP", results.ColumnInfo[1].Type.Name())

	vals, err := wire.DecodeRow(results.Rows[0])
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, "h1", vals[0].AsString())
	assert.True(t, ts.Equal(vals[1].AsTime()))
}

// TestMockServer_DefaultTemplate verifies the fallback result for unknown queries.
func TestMockServer_DefaultTemplate(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()
	session := newSession(t, mockServer)

	results, _, err := session.Query(context.Background(), "SELECT whatever")
	require.NoError(t, err)
	assert.NotEmpty(t, results.QueryId)
	assert.False(t, results.HasMorePages())
	require.Len(t, results.Rows, 1)
	assert.Equal(t, []string{"SELECT whatever"}, mockServer.Received())
}

// --- QueryOutcome Logic Tests ---

// TestQueryOutcome_DrainHandlerError verifies Drain stops and returns error when handler fails.
func TestQueryOutcome_DrainHandlerError(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()
	session := newSession(t, mockServer)

	mockServer.AddQuery(&odbctest.QueryTemplate{SQL: "SELECT * FROM fail_drain", Rows: intRows(3), Pages: 3})

	results, _, err := session.Query(context.Background(), "SELECT * FROM fail_drain")
	require.NoError(t, err)

	handlerErr := errors.New("handler failed")
	err = results.Drain(context.Background(), func(*tsodbc.QueryOutcome) error {
		return handlerErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, handlerErr)
	assert.Contains(t, err.Error(), "page handler returned error")
	assert.Nil(t, results.Rows, "Rows should be cleared on handler error")
}

// TestQueryOutcome_ContextCancellation verifies server-side cleanup on client timeout.
func TestQueryOutcome_ContextCancellation(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	mockServer.SetDefaultLatency(400 * time.Millisecond)
	defer mockServer.Close()
	session := newSession(t, mockServer)

	mockServer.AddQuery(&odbctest.QueryTemplate{SQL: "SELECT * FROM slow", Rows: intRows(5), Pages: 2})

	results, _, err := session.Query(context.Background(), "SELECT * FROM slow")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = results.FetchNextPage(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.Contains(t, mockServer.Cancelled(), results.QueryId)
}

// TestQueryOutcome_EmptyPages verifies that FetchNextPage skips pages without rows.
func TestQueryOutcome_EmptyPages(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()
	session := newSession(t, mockServer)

	mockServer.AddQuery(&odbctest.QueryTemplate{
		SQL:        "SELECT * FROM skip",
		Columns:    bigintColumns,
		Rows:       intRows(1),
		EmptyPages: 2,
	})

	results, _, err := session.Query(context.Background(), "SELECT * FROM skip")
	require.NoError(t, err)
	assert.True(t, results.HasMorePages())
	assert.Empty(t, results.Rows)
	assert.NotEmpty(t, results.ColumnInfo, "schema arrives with the first page")

	require.NoError(t, results.FetchNextPage(context.Background()))
	assert.Len(t, results.Rows, 1)
	assert.False(t, results.HasMorePages())
	assert.Equal(t, 3, mockServer.Requests())
}

// TestCancelQuery verifies that a cancelled query rejects further page requests.
func TestCancelQuery(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()
	session := newSession(t, mockServer)

	mockServer.AddQuery(&odbctest.QueryTemplate{SQL: "SELECT n", Rows: intRows(4), Pages: 4})

	results, _, err := session.Query(context.Background(), "SELECT n")
	require.NoError(t, err)

	out, _, err := session.CancelQuery(context.Background(), results.QueryId)
	require.NoError(t, err)
	assert.Contains(t, out.CancellationMessage, results.QueryId)

	err = results.FetchNextPage(context.Background())
	var er *tsodbc.ErrorResponse
	require.ErrorAs(t, err, &er)
	assert.Equal(t, http.StatusBadRequest, er.StatusCode())

	// Cancelling a finished query is not an error.
	_, _, err = session.CancelQuery(context.Background(), "no-such-query")
	assert.NoError(t, err)
}

// TestQuery_ConcurrentAccess verifies session mutex protection.
func TestQuery_ConcurrentAccess(t *testing.T) {
	mockServer := odbctest.NewMockServer()
	defer mockServer.Close()
	session := newSession(t, mockServer)

	mockServer.AddQuery(&odbctest.QueryTemplate{SQL: "SELECT 1", Rows: intRows(1)})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = session.Query(context.Background(), "SELECT 1")
		}()
	}
	wg.Wait()
	assert.Len(t, mockServer.Received(), 10)
}
