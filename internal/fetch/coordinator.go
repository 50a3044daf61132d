package fetch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog/log"

	"flowmetrics-mcp/internal/jira"
)

const (
	DefaultPageSize    = 100
	DefaultMaxAttempts = 4
	DefaultRetryBase   = 500 * time.Millisecond
	DefaultRetryMax    = 30 * time.Second
)

// Options tunes paging and retry behavior. Zero values fall back to the
// package defaults.
type Options struct {
	PageSize    int
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBase
	}
	if o.RetryMax <= 0 {
		o.RetryMax = DefaultRetryMax
	}
	return o
}

// Coordinator drives paginated Jira searches with bounded retries and
// exponential backoff, and maps raw search results into domain issues.
type Coordinator struct {
	client jira.Client
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewCoordinator creates a coordinator over the given client.
func NewCoordinator(client jira.Client, opts Options) *Coordinator {
	return &Coordinator{
		client: client,
		opts:   opts.withDefaults(),
		sleep:  sleepCtx,
	}
}

// Pages returns a lazy page sequence. Pages are fetched on demand as the
// consumer iterates; breaking out of the loop stops further requests. A
// non-nil error ends the sequence after it is yielded.
func (c *Coordinator) Pages(ctx context.Context, jql string) iter.Seq2[*jira.SearchResponse, error] {
	return func(yield func(*jira.SearchResponse, error) bool) {
		startAt := 0
		for {
			page, err := c.fetchPage(ctx, jql, startAt)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}

			startAt += len(page.Issues)
			if len(page.Issues) == 0 || startAt >= page.Total {
				return
			}
		}
	}
}

// FetchIssues drains all pages for the query and maps them into domain
// issues. When a page fails after earlier pages succeeded, the issues
// gathered so far are returned alongside the error so callers can serve a
// partial result instead of discarding completed work.
func (c *Coordinator) FetchIssues(ctx context.Context, jql string) ([]jira.Issue, error) {
	var issues []jira.Issue

	for page, err := range c.Pages(ctx, jql) {
		if err != nil {
			return issues, err
		}
		for _, dto := range page.Issues {
			issue, mapErr := jira.MapIssue(dto)
			if mapErr != nil {
				log.Warn().Str("key", dto.Key).Err(mapErr).Msg("Skipping unmappable issue")
				continue
			}
			issues = append(issues, issue)
		}
	}

	log.Debug().Str("jql", jql).Int("issues", len(issues)).Msg("Fetch complete")
	return issues, nil
}

// fetchPage performs one page request with bounded retries. Rate limits
// honor the server's Retry-After; other retryable failures back off
// exponentially from the base delay up to the cap. Authentication
// failures are terminal.
func (c *Coordinator) fetchPage(ctx context.Context, jql string, startAt int) (*jira.SearchResponse, error) {
	var lastErr error

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}

		page, err := c.client.FetchPage(ctx, jql, startAt, c.opts.PageSize)
		if err == nil {
			return page, nil
		}

		var authErr *jira.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}

		lastErr = err
		log.Warn().Str("jql", jql).Int("start_at", startAt).Int("attempt", attempt+1).Err(err).Msg("Page fetch failed")
	}

	return nil, fmt.Errorf("fetching page at %d after %d attempts: %w", startAt, c.opts.MaxAttempts, lastErr)
}

func (c *Coordinator) backoff(attempt int, err error) time.Duration {
	var rateLimit *jira.RateLimitError
	if errors.As(err, &rateLimit) && rateLimit.RetryAfter > 0 {
		return rateLimit.RetryAfter
	}

	delay := c.opts.RetryBase << attempt
	if delay > c.opts.RetryMax || delay <= 0 {
		delay = c.opts.RetryMax
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
