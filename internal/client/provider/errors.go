package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the provider has no record for the id. It is never a
	// deletion signal for the local entry.
	ErrNotFound = errors.New("provider record not found")
	// ErrRateLimited is returned once the 429 retry budget is spent.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrValidation marks a malformed or partial payload; callers treat it as
	// "no new data".
	ErrValidation = errors.New("provider payload invalid")
)

type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.Status, body)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Classify maps an error onto the short labels used in logs and metrics.
func Classify(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "network"
	}
}
