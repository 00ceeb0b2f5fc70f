package fetcher

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/always-cache/querycache/pkg/schema"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindHTTPStatus Kind = "http-status"
	KindDecode     Kind = "decode"
	KindValidation Kind = "validation"
	KindUnknown    Kind = "unknown"
)

// TransportError means no response was received.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("Could not reach %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError means the server answered with a non-success status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("Unexpected status from %s: %s", e.URL, status)
}

// DecodeError means the response body was not a single valid JSON document.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Could not decode body from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError means the body did not match the resource schema.
type ValidationError struct {
	URL string
	*schema.ValidationError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid body from %s: %v", e.URL, e.ValidationError)
}

func (e *ValidationError) Unwrap() error { return e.ValidationError }

// KindOf returns the kind of the first fetch error in err's chain.
func KindOf(err error) Kind {
	var (
		transport  *TransportError
		status     *HTTPStatusError
		decode     *DecodeError
		validation *ValidationError
		invalid    *schema.ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &transport):
		return KindTransport
	case errors.As(err, &status):
		return KindHTTPStatus
	case errors.As(err, &decode):
		return KindDecode
	case errors.As(err, &validation), errors.As(err, &invalid):
		return KindValidation
	}
	return KindUnknown
}

// Retryable reports whether repeating the request could succeed.
// Decode and validation failures are deterministic and never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport:
		return true
	case KindHTTPStatus:
		var status *HTTPStatusError
		errors.As(err, &status)
		return status.StatusCode >= 500 || status.StatusCode == http.StatusTooManyRequests
	}
	return false
}
