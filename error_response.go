package tsodbc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrorResponse is a non-200 reply from the query service.
type ErrorResponse struct {
	// Response is the original HTTP response; its body is already consumed.
	Response *http.Response

	// Message is the service's message, or the raw body if it was not JSON.
	Message string

	// Code is the service error name when the body carried one.
	Code string
}

func (e *ErrorResponse) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status code: %d)", e.Code, e.Message, e.Response.StatusCode)
	}
	return fmt.Sprintf("%s (status code: %d)", e.Message, e.Response.StatusCode)
}

// StatusCode returns the HTTP status of the failed request.
func (e *ErrorResponse) StatusCode() int {
	return e.Response.StatusCode
}

// NewErrorResponse reads and closes resp.Body. A JSON body of the form
// {"code": ..., "message": ...} is unpacked; anything else becomes Message.
func NewErrorResponse(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	er := &ErrorResponse{Response: resp, Message: string(body)}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		er.Code = payload.Code
		er.Message = payload.Message
	}
	return er
}
