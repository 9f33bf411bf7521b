// Package errors defines the JSON error envelope used by the HTTP API.
//
// Every non-2xx response carries the same shape:
//
//	{"error": {"code": "NOT_FOUND", "message": "...", "request_id": "..."}}
//
// Codes are stable strings intended for machine handling; messages are for
// humans and may change.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Stable error codes returned by the API.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// HTTPError is an error with an associated status code and stable code string.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NotFound returns a 404 HTTPError.
func NotFound(message string) *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// InvalidArgument returns a 400 HTTPError wrapping err.
func InvalidArgument(message string, err error) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Code: CodeInvalidArgument, Message: message, Err: err}
}

// PayloadTooLarge returns a 413 HTTPError.
func PayloadTooLarge(message string) *HTTPError {
	return &HTTPError{Status: http.StatusRequestEntityTooLarge, Code: CodePayloadTooLarge, Message: message}
}

// Internal returns a 500 HTTPError wrapping err.
func Internal(message string, err error) *HTTPError {
	return &HTTPError{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: message, Err: err}
}

// HTTPErrorResponse is the wire envelope for error responses.
type HTTPErrorResponse struct {
	Error HTTPErrorBody `json:"error"`
}

// HTTPErrorBody is the inner error object.
type HTTPErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RespondWithError writes err as a JSON error envelope.
//
// *HTTPError values keep their status and code; anything else becomes a 500
// INTERNAL_ERROR without leaking the underlying error text to the client.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		httpErr = &HTTPError{
			Status:  http.StatusInternalServerError,
			Code:    CodeInternalError,
			Message: "internal error",
		}
	}
	WriteError(w, r, httpErr.Status, httpErr.Code, httpErr.Message, nil)
}

// WriteError writes an error envelope with the given status, code, and message.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	resp := HTTPErrorResponse{
		Error: HTTPErrorBody{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(r),
			Details:   details,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func requestIDFrom(r *http.Request) string {
	if r == nil {
		return ""
	}
	if v, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

type requestIDKey struct{}

// WithRequestID stores a request id in the request context for error envelopes.
func WithRequestID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
}

// RequestIDFrom returns the request id previously stored by WithRequestID.
func RequestIDFrom(r *http.Request) string {
	return requestIDFrom(r)
}
