package httpapi

import "net/http"

// Result response envelope shared by every route
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

// Envelope types. Caller mistakes are warnings; everything else is an error.
const (
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeError   = "error"
)

// Page list payload; Items is never null on the wire
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: TypeSuccess, Message: "ok", Result: result}
}

func OkPage[T any](items []T) Result[Page[T]] {
	if items == nil {
		items = []T{}
	}
	return Ok(Page[T]{Items: items, Total: len(items)})
}

// Fail builds the error envelope for a response sent with status
func Fail(status int, message string) Result[any] {
	typ := TypeError
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		typ = TypeWarning
	}
	return Result[any]{Code: ResultError, Type: typ, Message: message}
}
