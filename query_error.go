package tsodbc

import (
	"fmt"
)

// QueryError is the failure the service reports in place of a page.
type QueryError struct {
	Message   string `json:"message"`
	ErrorCode int    `json:"errorCode"`
	// ErrorName names the failure, such as VALIDATION_ERROR.
	ErrorName string `json:"errorName"`
	// ErrorType is the failure class: USER_ERROR, INSUFFICIENT_RESOURCES,
	// CANCELLED or INTERNAL_ERROR.
	ErrorType string `json:"errorType"`
	Retriable bool   `json:"retriable"`

	// ErrorLocation is set for errors tied to a spot in the query text.
	ErrorLocation *ErrorLocation `json:"errorLocation,omitempty"`
}

func (q *QueryError) Error() string {
	if q == nil {
		return "nil QueryError"
	}
	msg := q.ErrorName + ": " + q.Message
	if q.ErrorLocation != nil {
		msg += " at " + q.ErrorLocation.String()
	}
	return msg
}

func (q *QueryError) String() string { return q.Error() }

var sqlStates = map[string]string{
	"INSUFFICIENT_RESOURCES": "HY001",
	"CANCELLED":              "HY008",
}

// SQLState is the ODBC diagnostic code for the error. A user error with a
// location in the text is a syntax error (42000).
func (q *QueryError) SQLState() string {
	switch {
	case q == nil:
		return "00000"
	case q.ErrorType == "USER_ERROR" && q.ErrorLocation != nil:
		return "42000"
	}
	if state, ok := sqlStates[q.ErrorType]; ok {
		return state
	}
	return "HY000"
}

// ErrorLocation is a 1-based line and column in the query text.
type ErrorLocation struct {
	LineNumber   int `json:"lineNumber"`
	ColumnNumber int `json:"columnNumber"`
}

func (e *ErrorLocation) String() string {
	return fmt.Sprintf("line %d:%d", e.LineNumber, e.ColumnNumber)
}
