// Package gh defines the upstream GitHub surface for the report engine.
//
// This file defines sentinel errors and error wrappers for classifying
// upstream failures. These enable callers to use errors.Is/errors.As
// for typed assertions rather than string matching.
package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Class partitions upstream failures for retry decisions.
type Class int

const (
	// ClassTransient marks failures worth retrying (timeouts, resets, 429, 5xx).
	ClassTransient Class = iota
	// ClassFatal marks failures retrying cannot fix (404, 401, 403, 422).
	ClassFatal
)

func (c Class) String() string {
	if c == ClassFatal {
		return "fatal"
	}
	return "transient"
}

// Sentinel errors for upstream failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the user, repository, or PR does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates missing or rejected credentials (401, 403).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnprocessable indicates the upstream rejected the request shape (422).
	ErrUnprocessable = errors.New("unprocessable")

	// ErrRateLimited indicates upstream throttling (429, or 403 with an
	// exhausted rate-limit header).
	ErrRateLimited = errors.New("rate limited")

	// ErrServer indicates an upstream 5xx.
	ErrServer = errors.New("upstream server error")

	// ErrTimeout indicates a request deadline elapsed.
	ErrTimeout = errors.New("request timed out")

	// ErrNetwork indicates a connection-level failure.
	ErrNetwork = errors.New("network error")
)

// APIError wraps an upstream failure with its HTTP status and classification
// sentinel. It preserves the original error in the chain for errors.As.
type APIError struct {
	// Kind is the sentinel error for classification (e.g. ErrNotFound).
	Kind error
	// Op is the operation that failed (e.g. "search", "pr_files").
	Op string
	// StatusCode is the HTTP status, 0 for connection-level failures.
	StatusCode int
	// Err is the underlying error, if any.
	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *APIError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewStatusError classifies an HTTP status into an APIError.
func NewStatusError(op string, status int) *APIError {
	return &APIError{Kind: kindForStatus(status), Op: op, StatusCode: status}
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusUnprocessableEntity:
		return ErrUnprocessable
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrServer
	default:
		return ErrServer
	}
}

// WrapTransportError classifies a connection-level failure.
// Returns nil if err is nil.
func WrapTransportError(op string, err error) error {
	if err == nil {
		return nil
	}

	kind := ErrNetwork
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrTimeout
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrTimeout
	}
	return &APIError{Kind: kind, Op: op, Err: err}
}

// Classify maps an error onto a retry class. Fatal statuses are the ones a
// retry cannot fix; anything unrecognized defaults to transient, favoring
// completeness of collected data over fast failure.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrUnprocessable):
		return ClassFatal
	default:
		return ClassTransient
	}
}
