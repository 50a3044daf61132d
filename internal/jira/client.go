package jira

import (
	"context"
	"time"
)

// StatusChangeEvent is a single status transition in an issue's history.
// Events for an issue are sorted ascending by Date; identical timestamps
// keep their original changelog order.
type StatusChangeEvent struct {
	Date time.Time `json:"date"`
	From string    `json:"from,omitempty"` // empty for issue creation
	To   string    `json:"to"`
}

// Issue is the normalized domain representation produced at the fetch
// boundary. All downstream code operates on this type only, isolating
// Jira schema drift to the mapper.
type Issue struct {
	Key      string             `json:"key"`
	Type     string             `json:"type"`
	Status   string             `json:"status"`
	Created  time.Time          `json:"created"`
	Resolved *time.Time         `json:"resolved,omitempty"`
	Events   []StatusChangeEvent `json:"events"`
}

// Client is the interface for the upstream Jira collaborator. FetchPage
// returns one page of issues (with changelogs) matching the JQL, starting
// at the given offset.
type Client interface {
	FetchPage(ctx context.Context, jql string, startAt, pageSize int) (*SearchResponse, error)
}

// Config holds the authentication and connection settings for Jira.
type Config struct {
	BaseURL string
	Token   string // Personal Access Token, preferred over cookies

	// Data Center session cookies
	XsrfToken  string
	SessionID  string
	RememberMe string

	// Load balancer cookies
	GCILB string
	GCLB  string

	// Minimum spacing between consecutive search requests
	RequestDelay time.Duration
}

// NewClient creates a new Jira client based on the provided configuration.
func NewClient(cfg Config) Client {
	return NewDataCenterClient(cfg)
}
