package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sells-group/dinescout/internal/resilience"
	"github.com/sells-group/dinescout/pkg/google"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindUnreachable   ErrorKind = "unreachable"
	KindBadStatus     ErrorKind = "bad_status"
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	KindCircuitOpen   ErrorKind = "circuit_open"
)

// ProviderError is the typed failure surfaced by FetchLive. Callers decide whether
// to retry or fall back; the client itself never retries.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("live: provider %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("live: provider %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether a later attempt may succeed. Quota exhaustion and an
// open circuit are not transient on retry timescales.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case KindUnreachable:
		return true
	case KindBadStatus:
		return resilience.IsTransientHTTPStatus(e.StatusCode)
	default:
		return false
	}
}

// classify maps a raw provider or breaker error onto a ProviderError.
func classify(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &ProviderError{Kind: KindCircuitOpen, Err: err}
	}
	var apiErr *google.APIError
	if errors.As(err, &apiErr) {
		if apiErr.QuotaExceeded() {
			return &ProviderError{Kind: KindQuotaExceeded, StatusCode: apiErr.StatusCode, Err: err}
		}
		return &ProviderError{Kind: KindBadStatus, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &ProviderError{Kind: KindUnreachable, Err: err}
}

// shouldTrip counts failures that say the provider is unhealthy. Caller
// cancellation and client-side 4xx errors leave the breaker alone.
func shouldTrip(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *google.APIError
	if errors.As(err, &apiErr) {
		return apiErr.QuotaExceeded() || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
