package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrMissingAPIKey  = errors.New("missing api key")
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrEmptyResponse  = errors.New("provider returned no content")
)

// TransientError is a failure that plausibly succeeds on retry: network
// failures, timeouts, rate limits and 5xx-equivalents.
type TransientError struct {
	StatusCode int
	// RetryAfter is the server-suggested wait, zero when absent.
	RetryAfter time.Duration
	Cause      error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient provider error (status %d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("transient provider error: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// PermanentError is a failure that will not succeed against the same provider
// without a different request: auth failures and malformed requests.
type PermanentError struct {
	StatusCode int
	Cause      error
}

func (e *PermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("permanent provider error (status %d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("permanent provider error: %v", e.Cause)
}

func (e *PermanentError) Unwrap() error { return e.Cause }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Cause: err}
}

// IsTransient reports whether err carries a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err carries a *PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// StatusError classifies an HTTP status into the transient/permanent taxonomy.
func StatusError(status int, retryAfter time.Duration, cause error) error {
	if retryableStatus(status) {
		return &TransientError{StatusCode: status, RetryAfter: retryAfter, Cause: cause}
	}
	return &PermanentError{StatusCode: status, Cause: cause}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// ErrorType returns a low-cardinality label suitable for the error.type
// telemetry attribute.
func ErrorType(err error) string {
	var (
		te *TransientError
		pe *PermanentError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &te):
		switch {
		case te.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case te.StatusCode == http.StatusRequestTimeout:
			return "timeout"
		case te.StatusCode >= 500:
			return "server_error"
		case te.StatusCode == 0:
			return "network_error"
		}
		return "transient_error"
	case errors.As(err, &pe):
		switch {
		case errors.Is(pe, ErrMissingAPIKey), pe.StatusCode == http.StatusUnauthorized, pe.StatusCode == http.StatusForbidden:
			return "auth_error"
		case pe.StatusCode == http.StatusBadRequest, pe.StatusCode == http.StatusNotFound,
			pe.StatusCode == http.StatusUnprocessableEntity, errors.Is(pe, ErrInvalidRequest), errors.Is(pe, ErrEmptyPrompt):
			return "invalid_request"
		case errors.Is(pe, ErrEmptyResponse):
			return "empty_response"
		}
		return "permanent_error"
	}
	return "unknown_error"
}
