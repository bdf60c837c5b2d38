package response

// APIError is the caller-visible failure detail. The message may carry
// gateway issue codes and descriptions for operator diagnosis, never PII.
type APIError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Success: true, Data: data}
}

// ErrorT returns a failure response with message and HTTP status code.
func ErrorT[T any](statusCode int, message string) *APIResponse[T] {
	return &APIResponse[T]{Success: false, Error: &APIError{Message: message, StatusCode: statusCode}}
}
