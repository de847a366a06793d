// internal/github/errors.go
package github

import (
	"fmt"
	"time"
)

// NotFoundError means the repository does not exist at the source (or is not
// visible with the current credential). Not retryable with the same input.
type NotFoundError struct {
	FullName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("github: repository %q not found", e.FullName)
}

// RateLimitedError means the request quota is exhausted. Callers can retry
// after Reset; an automated scheduler should use Reset directly rather than
// guessing a backoff.
type RateLimitedError struct {
	Remaining int
	Reset     time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("github: rate limit exhausted (remaining=%d), resets at %s; set GITHUB_TOKEN to raise the quota",
		e.Remaining, e.Reset.UTC().Format(time.RFC3339))
}

// TransportError covers every other failed exchange with the API: a non-2xx
// status that is neither a 404 nor a rate limit, or a network-level failure
// (in which case StatusCode is 0).
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("github: request failed: %s", e.Body)
	}
	return fmt.Sprintf("github: request failed with status %d: %s", e.StatusCode, e.Body)
}
