package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a non-2xx response from the backend. Detail carries the server's
// human-readable "detail" field when the body had one.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// newError builds an Error from a response body, tolerating non-JSON bodies.
func newError(status int, body []byte) *Error {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return &Error{Status: status, Detail: payload.Detail}
	}
	return &Error{Status: status}
}

// Detail extracts the server detail from err, or returns fallback when err is
// not an *Error or carries no detail. Callers use it to build user-facing
// failure messages.
func Detail(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// IsStatus reports whether err is an *Error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
