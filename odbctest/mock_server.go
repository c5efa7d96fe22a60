// Package odbctest provides an in-process stand-in for the query service,
// for tests of the driver and of applications built on it.
package odbctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ethanyzhang/tsodbc"
	"github.com/ethanyzhang/tsodbc/value"
	"github.com/ethanyzhang/tsodbc/wire"
)

// --- Data Models ---

// QueryState is the service-side life-cycle stage of a query.
type QueryState string

const (
	QueryStateRunning   QueryState = "RUNNING"
	QueryStateCancelled QueryState = "CANCELLED"
	QueryStateFinished  QueryState = "FINISHED"
	QueryStateFailed    QueryState = "FAILED"
)

func (qs QueryState) String() string {
	return string(qs)
}

// QueryTemplate defines the result served for one query text.
//
// Pagination: the server answers EmptyPages schema-only pages first, then
// spreads Rows over Pages data pages of ceil(len(Rows)/Pages) rows each.
// When Pages is zero the request's maxRows decides the page size, and a
// query without rows is served as a single empty page.
type QueryTemplate struct {
	SQL        string              // The query text used for template matching.
	Columns    []tsodbc.ColumnInfo // Result schema sent with every page.
	Rows       [][]value.Value     // The full result set.
	Pages      int                 // Number of data pages, capped by row count.
	EmptyPages int                 // Leading pages without rows.
	Error      *tsodbc.QueryError  // Optional error to simulate a query failure.
	Warnings   []tsodbc.Warning    // Warnings attached to the first page.
	Status     int                 // Optional HTTP status to fail the first request with.
	Latency    time.Duration       // Total latency, spread evenly over the pages.
	PageHook   func(page int)      // Optional callback run before serving each page.
	encoded    [][]byte            // Rows in wire format, filled by AddQuery.
}

// ActiveQuery is a live execution of a template.
type ActiveQuery struct {
	ID       string
	Template *QueryTemplate
	State    QueryState
	pages    int
	perPage  int
}

// --- Mock Server Implementation ---

// MockServer simulates the query service's v1/query endpoints.
type MockServer struct {
	server *httptest.Server

	templates map[string]*QueryTemplate
	active    map[string]*ActiveQuery
	mu        sync.RWMutex

	defaultLatency time.Duration

	requests  atomic.Int64
	received  []string
	cancelled []string
}

// NewMockServer starts a mock service on a local port.
func NewMockServer() *MockServer {
	mock := &MockServer{
		templates: make(map[string]*QueryTemplate),
		active:    make(map[string]*ActiveQuery),
	}

	mux := http.NewServeMux()

	// POST /v1/query: starts a query (no nextToken) or serves its next page.
	mux.HandleFunc("POST /v1/query", mock.handleQuery)

	// POST /v1/query/cancel: stops a running query.
	mux.HandleFunc("POST /v1/query/cancel", mock.handleCancel)

	mock.server = httptest.NewServer(mux)
	return mock
}

// AddQuery registers a template. It panics if a row cannot be encoded,
// since that is a bug in the test itself.
func (m *MockServer) AddQuery(tmpl *QueryTemplate) {
	encoded := make([][]byte, len(tmpl.Rows))
	for i, r := range tmpl.Rows {
		b, err := wire.EncodeRow(r...)
		if err != nil {
			panic(fmt.Sprintf("odbctest: row %d of %q: %v", i, tmpl.SQL, err))
		}
		encoded[i] = b
	}
	if tmpl.Pages > len(tmpl.Rows) {
		tmpl.Pages = len(tmpl.Rows)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tmpl.encoded = encoded
	m.templates[tmpl.SQL] = tmpl
}

// SetDefaultLatency configures the latency used by templates without one.
func (m *MockServer) SetDefaultLatency(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultLatency = latency
}

// Requests returns the number of page requests served.
func (m *MockServer) Requests() int { return int(m.requests.Load()) }

// Received returns the texts of the queries started, in arrival order.
func (m *MockServer) Received() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.received...)
}

// Cancelled returns the ids of the queries cancelled by clients.
func (m *MockServer) Cancelled() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.cancelled...)
}

// URL returns the base URL of the mock server.
func (m *MockServer) URL() string { return m.server.URL }

// Close shuts down the mock server.
func (m *MockServer) Close() { m.server.Close() }

// --- Request Handlers ---

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m *MockServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req tsodbc.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, serviceError{"ValidationException", err.Error()})
		return
	}
	m.requests.Add(1)

	if req.NextToken == nil {
		m.startQuery(w, &req)
		return
	}

	id, pageStr, ok := strings.Cut(*req.NextToken, ":")
	page, err := strconv.Atoi(pageStr)
	if !ok || err != nil {
		writeJSON(w, http.StatusBadRequest, serviceError{"ValidationException", "malformed next token"})
		return
	}
	m.sendPage(w, id, page)
}

func (m *MockServer) startQuery(w http.ResponseWriter, req *tsodbc.QueryRequest) {
	m.mu.Lock()
	m.received = append(m.received, req.QueryString)
	tmpl, exists := m.templates[req.QueryString]
	m.mu.Unlock()

	if !exists {
		tmpl = &QueryTemplate{
			SQL:     req.QueryString,
			Columns: []tsodbc.ColumnInfo{{Name: "result", Type: tsodbc.Type{ScalarType: tsodbc.ScalarVarchar}}},
			Rows:    [][]value.Value{{value.String("Query template not found; default success")}},
		}
		encoded, _ := wire.EncodeRow(tmpl.Rows[0]...)
		tmpl.encoded = [][]byte{encoded}
	}

	if tmpl.Status != 0 {
		writeJSON(w, tmpl.Status, serviceError{"ServiceError", http.StatusText(tmpl.Status)})
		return
	}

	pages := tmpl.Pages
	if pages == 0 {
		pages = 1
		if req.MaxRows > 0 && len(tmpl.Rows) > 0 {
			pages = (len(tmpl.Rows) + int(req.MaxRows) - 1) / int(req.MaxRows)
		}
	}
	perPage := 0
	if len(tmpl.Rows) > 0 {
		perPage = (len(tmpl.Rows) + pages - 1) / pages
	}

	q := &ActiveQuery{
		ID:       uuid.NewString(),
		Template: tmpl,
		State:    QueryStateRunning,
		pages:    tmpl.EmptyPages + pages,
		perPage:  perPage,
	}
	m.mu.Lock()
	m.active[q.ID] = q
	m.mu.Unlock()

	m.sendPage(w, q.ID, 0)
}

func (m *MockServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QueryId string `json:"queryId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, serviceError{"ValidationException", err.Error()})
		return
	}

	m.mu.Lock()
	m.cancelled = append(m.cancelled, body.QueryId)
	q, ok := m.active[body.QueryId]
	if ok {
		q.State = QueryStateCancelled
	}
	m.mu.Unlock()

	if !ok {
		// Finished or unknown queries cancel trivially.
		writeJSON(w, http.StatusOK, tsodbc.CancelOutcome{CancellationMessage: "query " + body.QueryId + " is not running"})
		return
	}
	writeJSON(w, http.StatusOK, tsodbc.CancelOutcome{CancellationMessage: "query " + body.QueryId + " cancelled"})
}

// --- Protocol Response Logic ---

// writeJSON encodes v as JSON and writes it to the response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// sendPage serves page of query id after the template's share of latency.
func (m *MockServer) sendPage(w http.ResponseWriter, id string, page int) {
	m.mu.RLock()
	q, exists := m.active[id]
	latency := m.defaultLatency
	m.mu.RUnlock()
	if !exists {
		writeJSON(w, http.StatusBadRequest, serviceError{"ValidationException", "query not found: " + id})
		return
	}

	if q.Template.Latency > 0 {
		latency = q.Template.Latency
	}
	if sleep := latency / time.Duration(q.pages); sleep > 0 {
		time.Sleep(sleep)
	}
	if q.Template.PageHook != nil {
		q.Template.PageHook(page)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if q.State == QueryStateCancelled {
		delete(m.active, id)
		writeJSON(w, http.StatusBadRequest, serviceError{"ValidationException", "query was cancelled: " + id})
		return
	}

	resp := tsodbc.QueryOutcome{
		QueryId:    id,
		ColumnInfo: q.Template.Columns,
		QueryStatus: &tsodbc.QueryStatus{
			ProgressPercentage: 100 * float64(page+1) / float64(q.pages),
		},
	}

	if q.Template.Error != nil {
		q.State = QueryStateFailed
		resp.Error = q.Template.Error
		delete(m.active, id)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if page == 0 {
		resp.Warnings = q.Template.Warnings
	}

	if data := page - q.Template.EmptyPages; data >= 0 && q.perPage > 0 {
		start := data * q.perPage
		if start < len(q.Template.encoded) {
			end := min(start+q.perPage, len(q.Template.encoded))
			resp.Rows = q.Template.encoded[start:end]
		}
	}

	if page+1 < q.pages {
		token := fmt.Sprintf("%s:%d", id, page+1)
		resp.NextToken = &token
	} else {
		q.State = QueryStateFinished
		delete(m.active, id)
	}

	writeJSON(w, http.StatusOK, resp)
}
