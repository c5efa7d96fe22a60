package tsodbc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryErrorMessage(t *testing.T) {
	var nilErr *QueryError
	tests := []struct {
		name string
		err  *QueryError
		want string
	}{
		{"nil", nilErr, "nil QueryError"},
		{"plain", &QueryError{ErrorName: "TABLE_NOT_FOUND", Message: "no table cpu"}, "TABLE_NOT_FOUND: no table cpu"},
		{
			"located",
			&QueryError{ErrorName: "SYNTAX_ERROR", Message: "unexpected FROM", ErrorLocation: &ErrorLocation{LineNumber: 2, ColumnNumber: 11}},
			"SYNTAX_ERROR: unexpected FROM at line 2:11",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.Equal(t, tt.want, tt.err.String())
		})
	}
}

func TestQueryErrorSQLState(t *testing.T) {
	at := &ErrorLocation{LineNumber: 1, ColumnNumber: 1}
	tests := []struct {
		name string
		err  *QueryError
		want string
	}{
		{"nil", nil, "00000"},
		{"syntax", &QueryError{ErrorType: "USER_ERROR", ErrorLocation: at}, "42000"},
		{"user", &QueryError{ErrorType: "USER_ERROR"}, "HY000"},
		{"memory", &QueryError{ErrorType: "INSUFFICIENT_RESOURCES"}, "HY001"},
		{"cancelled", &QueryError{ErrorType: "CANCELLED"}, "HY008"},
		{"located internal", &QueryError{ErrorType: "INTERNAL_ERROR", ErrorLocation: at}, "HY000"},
		{"unknown type", &QueryError{ErrorType: "SOMETHING_NEW"}, "HY000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.SQLState())
		})
	}
}

func TestQueryErrorJSON(t *testing.T) {
	var qe QueryError
	require.NoError(t, json.Unmarshal([]byte(`{
		"message": "scan limit exceeded",
		"errorCode": 131079,
		"errorName": "EXCEEDED_SCAN_LIMIT",
		"errorType": "INSUFFICIENT_RESOURCES",
		"retriable": true
	}`), &qe))

	assert.Equal(t, 131079, qe.ErrorCode)
	assert.True(t, qe.Retriable)
	assert.Nil(t, qe.ErrorLocation)
	assert.Equal(t, "HY001", qe.SQLState())
}

func TestWarningString(t *testing.T) {
	w := Warning{Code: 7, Name: "PARTIAL_RESULT", Message: "scan limit reached"}
	assert.Equal(t, "PARTIAL_RESULT(7): scan limit reached", w.String())
}
