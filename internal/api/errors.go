// Package api provides an HTTP client for the Cloudo storage backend with
// error classification and response normalization.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, api.ErrNotFound) to check.
var (
	ErrAuth        = errors.New("api: not authorized")
	ErrNotFound    = errors.New("api: not found")
	ErrNetwork     = errors.New("api: network error")
	ErrBadRequest  = errors.New("api: bad request")
	ErrConflict    = errors.New("api: conflict")
	ErrTooLarge    = errors.New("api: payload too large")
	ErrThrottled   = errors.New("api: throttled")
	ErrServerError = errors.New("api: server error")
)

// ErrNotLoggedIn is returned before any request is sent when the client has
// no credential to attach. It matches ErrAuth.
var ErrNotLoggedIn = fmt.Errorf("%w: not logged in", ErrAuth)

// ErrUnexpectedResponse is returned when the backend answers with a success
// status but a body the client cannot read. The operation may have taken
// effect on the server.
var ErrUnexpectedResponse = errors.New("api: unexpected response body")

// ErrInvalidInput is returned when a request body fails local validation.
var ErrInvalidInput = errors.New("api: invalid input")

// APIError wraps a sentinel error with the HTTP status code and the response
// body the backend sent, for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: HTTP %d", e.StatusCode)
	}

	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NetworkError reports a request that never produced an HTTP response.
// It matches ErrNetwork and unwraps to the transport error.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("api: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNetwork) true for every NetworkError.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// maxErrorBody caps how much of an error response is kept in APIError.Message.
const maxErrorBody = 4 << 10

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes and unclassified statuses.
func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrBadRequest
	case http.StatusConflict:
		return ErrConflict
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// IsTransient reports whether err is worth retrying under a caller retry
// policy: connectivity failures, throttling, and 5xx responses.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrThrottled) ||
		errors.Is(err, ErrServerError)
}
