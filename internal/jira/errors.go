package jira

import (
	"fmt"
	"time"
)

// RateLimitError indicates the upstream rejected the request with HTTP 429.
// RetryAfter is zero when Jira did not provide a Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("Jira rate limit exceeded (429), retry after %s", e.RetryAfter)
	}
	return "Jira rate limit exceeded (429)"
}

// AuthError indicates Jira rejected our credentials (401/403).
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("Jira authentication failed (%d), check your token or session cookies", e.Status)
}

// UpstreamError covers any other non-200 response from Jira.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Jira API returned status %d", e.Status)
}
