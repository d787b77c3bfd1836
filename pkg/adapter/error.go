package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AdapterError carries the provider's HTTP status alongside the cause
// so callers can tell quota pressure from real failures.
type AdapterError struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	switch {
	case e == nil:
		return "adapter error"
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("adapter error (status=%d)", e.Status)
	}
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether a failed enrichment call is worth one
// retry. Cancellation is never transient; rate limits, provider 5xx
// responses and network timeouts are.
func IsTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var ae *AdapterError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Temporary || ae.Status == 429 || (ae.Status >= 500 && ae.Status < 600)
}
