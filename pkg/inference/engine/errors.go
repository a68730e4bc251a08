package engine

import (
	"fmt"
	"time"
)

// The collaborator error taxonomy. All three are recoverable by retry from
// the caller's point of view; none of them implies any mutation of
// conversation state.

// TransportError wraps network-level failures between us and the provider.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError signals the provider rejected the request for quota
// reasons. RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ModelError covers failures reported by the model itself: invalid request,
// content filtering, provider-side errors.
type ModelError struct {
	Code string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("model error (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("model error: %v", e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }
