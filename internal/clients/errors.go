package clients

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an API failure for retry and reporting decisions.
type ErrorKind string

const (
	// ErrorKindValidation means the request payload was rejected. Never retried.
	ErrorKindValidation ErrorKind = "VALIDATION"
	// ErrorKindRateLimited means the platform throttled the request. Retried
	// honoring the advertised wait.
	ErrorKindRateLimited ErrorKind = "RATE_LIMITED"
	// ErrorKindTransient covers 5xx responses and network failures. Retried
	// with backoff.
	ErrorKindTransient ErrorKind = "TRANSIENT"
	// ErrorKindPermanent covers every other client error. Never retried.
	ErrorKindPermanent ErrorKind = "PERMANENT"
)

// APIError is the classified failure returned by the mutation client.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// Field-level messages extracted from the response body, when present.
	Fields map[string]string
	// Wrapped transport error, set for network-level failures.
	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (%s): %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retrier may attempt this request again.
func (e *APIError) Retryable() bool {
	return e.Kind == ErrorKindRateLimited || e.Kind == ErrorKindTransient
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorKindRateLimited
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return ErrorKindValidation
	case status >= 500:
		return ErrorKindTransient
	default:
		return ErrorKindPermanent
	}
}

// NewTransientError wraps a network-level failure.
func NewTransientError(err error) *APIError {
	return &APIError{
		Kind:    ErrorKindTransient,
		Message: err.Error(),
		Err:     err,
	}
}

// AsAPIError extracts an APIError from an error chain, or nil.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// IsRetryable reports whether an error chain contains a retryable APIError.
// Unclassified errors are treated as non-retryable.
func IsRetryable(err error) bool {
	if apiErr := AsAPIError(err); apiErr != nil {
		return apiErr.Retryable()
	}
	return false
}
