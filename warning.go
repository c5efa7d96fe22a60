package tsodbc

import "fmt"

// Warning is a non-fatal diagnostic attached to a page. The statement
// reports SuccessWithInfo when a page carries any.
type Warning struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s(%d): %s", w.Name, w.Code, w.Message)
}
