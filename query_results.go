package tsodbc

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// QueryStatus reports service-side progress of a query.
type QueryStatus struct {
	ProgressPercentage     float64 `json:"progressPercentage"`
	CumulativeBytesScanned int64   `json:"cumulativeBytesScanned"`
	CumulativeBytesMetered int64   `json:"cumulativeBytesMetered"`
}

// QueryOutcome is one page of a query result. Rows holds one wire-encoded row
// per element; JSON carries them base64 encoded.
type QueryOutcome struct {
	QueryId     string       `json:"queryId"`
	NextToken   *string      `json:"nextToken,omitempty"`
	ColumnInfo  []ColumnInfo `json:"columnInfo,omitempty"`
	Rows        [][]byte     `json:"rows,omitempty"`
	QueryStatus *QueryStatus `json:"queryStatus,omitempty"`
	Error       *QueryError  `json:"error,omitempty"`
	Warnings    []Warning    `json:"warnings,omitempty"`

	session *Session
	request *QueryRequest
}

// HasMorePages returns true if the service holds further pages.
func (qo *QueryOutcome) HasMorePages() bool {
	return qo != nil && qo.NextToken != nil
}

// FetchNextPage replaces qo with the next non-empty page, skipping pages
// that carry no rows. If the context is canceled while fetching, the query is
// cancelled on the service before the error is returned.
func (qo *QueryOutcome) FetchNextPage(ctx context.Context) error {
	if qo == nil {
		return errors.New("cannot fetch next page: nil QueryOutcome")
	}
	if qo.session == nil || qo.request == nil {
		return errors.New("cannot fetch next page: no session associated with outcome")
	}

	for qo.HasMorePages() {
		next := qo.request.Next(qo)
		newQo, _, err := qo.session.QueryPage(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				// Use background context for cleanup to ensure it executes despite cancellation
				_, _, cancelErr := qo.session.CancelQuery(context.Background(), qo.QueryId)
				if cancelErr != nil {
					log.Debug().Err(cancelErr).Str("query_id", qo.QueryId).Msg("failed to cancel query after context cancellation")
				} else {
					log.Debug().Str("query_id", qo.QueryId).Msg("successfully canceled query because the context was cancelled")
				}
				return fmt.Errorf("fetch next page failed due to context cancellation for query %s: %w", qo.QueryId, err)
			}
			return fmt.Errorf("fetch next page failed for query %s: %w", qo.QueryId, err)
		}

		*qo = *newQo
		if len(qo.Rows) > 0 {
			break
		}
	}
	return nil
}

// PageHandler processes one page during Drain.
type PageHandler func(qo *QueryOutcome) error

// Drain fetches every remaining page and hands it to handler. Rows are
// released after each page.
func (qo *QueryOutcome) Drain(ctx context.Context, handler PageHandler) error {
	if qo == nil {
		return errors.New("cannot drain results: nil QueryOutcome")
	}
	for qo.HasMorePages() {
		if err := qo.FetchNextPage(ctx); err != nil {
			return fmt.Errorf("drain operation failed: %w", err)
		}
		if handler != nil {
			if err := handler(qo); err != nil {
				qo.Rows = nil
				return fmt.Errorf("page handler returned error for query %s: %w", qo.QueryId, err)
			}
		}
		qo.Rows = nil
	}
	return nil
}
