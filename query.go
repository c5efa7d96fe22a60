package tsodbc

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// QueryRequest is the body of a v1/query call. The first page of a query is
// requested with a nil NextToken; later pages repeat the query string and
// carry the token returned with the previous page.
type QueryRequest struct {
	QueryString string  `json:"queryString"`
	NextToken   *string `json:"nextToken,omitempty"`
	MaxRows     int32   `json:"maxRows,omitempty"`
	ClientToken string  `json:"clientToken,omitempty"`
}

// NewQueryRequest returns the first-page request for query with a fresh
// idempotency token.
func NewQueryRequest(query string, maxRows int32) *QueryRequest {
	return &QueryRequest{
		QueryString: query,
		MaxRows:     maxRows,
		ClientToken: uuid.NewString(),
	}
}

// Next returns the request for the page following outcome, or nil when
// outcome was the last page.
func (r *QueryRequest) Next(outcome *QueryOutcome) *QueryRequest {
	if !outcome.HasMorePages() {
		return nil
	}
	next := *r
	token := *outcome.NextToken
	next.NextToken = &token
	return &next
}

// CancelOutcome is the service's reply to a cancellation.
type CancelOutcome struct {
	CancellationMessage string `json:"cancellationMessage"`
}

// QueryCallback receives the outcome of an asynchronous page request. It runs
// on the shared runtime pool, never on the caller's goroutine.
type QueryCallback func(s *Session, req *QueryRequest, outcome *QueryOutcome, err error)

// requestQueryOutcome executes an HTTP request and processes the response as a QueryOutcome.
func (s *Session) requestQueryOutcome(ctx context.Context, req *http.Request, qreq *QueryRequest) (*QueryOutcome, *http.Response, error) {
	qo := new(QueryOutcome)
	resp, err := s.Do(ctx, req, qo)
	if err != nil {
		return nil, resp, err
	}
	// Keep the links needed to fetch further pages
	qo.session = s
	qo.request = qreq
	if qo.Error != nil {
		return qo, resp, qo.Error
	}
	return qo, resp, nil
}

// Query submits query and returns its first page. Use QueryOutcome.FetchNextPage
// or Drain to walk the rest.
//
// Example:
//
//	outcome, _, err := session.Query(ctx, "SELECT * FROM db.cpu LIMIT 100")
//	if err != nil {
//	    return err
//	}
func (s *Session) Query(ctx context.Context, query string, opts ...RequestOption) (*QueryOutcome, *http.Response, error) {
	return s.QueryPage(ctx, NewQueryRequest(query, s.pageSize()), opts...)
}

// QueryPage sends a single page request.
func (s *Session) QueryPage(ctx context.Context, qreq *QueryRequest, opts ...RequestOption) (*QueryOutcome, *http.Response, error) {
	req, err := s.NewRequest("POST", "v1/query", qreq, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s.requestQueryOutcome(ctx, req, qreq)
}

// QueryAsync sends qreq on the shared runtime and hands the outcome to
// callback. It returns immediately.
func (s *Session) QueryAsync(ctx context.Context, qreq *QueryRequest, callback QueryCallback, opts ...RequestOption) {
	s.client.runtime.Submit(func() {
		outcome, _, err := s.QueryPage(ctx, qreq, opts...)
		callback(s, qreq, outcome, err)
	})
}

// CancelQuery asks the service to stop queryId. Cancelling a query that has
// already finished is not an error on the service side.
func (s *Session) CancelQuery(ctx context.Context, queryId string, opts ...RequestOption) (*CancelOutcome, *http.Response, error) {
	body := struct {
		QueryId string `json:"queryId"`
	}{QueryId: queryId}
	req, err := s.NewRequest("POST", "v1/query/cancel", body, opts...)
	if err != nil {
		return nil, nil, err
	}

	co := new(CancelOutcome)
	resp, err := s.Do(ctx, req, co)
	if err != nil {
		return nil, resp, err
	}
	return co, resp, nil
}

func (s *Session) pageSize() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxRows
}

func (s *Session) currentDatabase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.database
}
