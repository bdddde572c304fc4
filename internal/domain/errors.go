package domain

import (
	"errors"
	"fmt"
)

var (
	ErrHTTPStatus             = errors.New("upstream returned non-2xx status")
	ErrTransport              = errors.New("upstream transport failure")
	ErrInvalidResponse        = errors.New("upstream returned invalid json")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrInvalidPath            = errors.New("invalid resource path")
	ErrInvalidBody            = errors.New("invalid request body")
	ErrRevalidationFailed     = errors.New("revalidation failed")
)

type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error %d", e.StatusCode)
}

func (e *HTTPStatusError) Unwrap() error {
	return ErrHTTPStatus
}

// Rebuild an error captured on a cache entry by a failed revalidation
func StoredError(message string) error {
	if message == "" {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRevalidationFailed, message)
}
