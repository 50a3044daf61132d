package flow

import (
	"time"

	"flowmetrics-mcp/internal/jira"

	"github.com/rs/zerolog/log"
)

// StateInterval is one contiguous period an issue spent in a single state.
// A nil ExitedAt means the issue was still occupying the state at analysis
// time. Intervals are derived per request and never persisted.
type StateInterval struct {
	IssueKey  string     `json:"issueKey"`
	State     string     `json:"state"`
	EnteredAt time.Time  `json:"enteredAt"`
	ExitedAt  *time.Time `json:"exitedAt,omitempty"`
}

// Duration returns the interval length, using now for open intervals.
func (si StateInterval) Duration(now time.Time) time.Duration {
	end := now
	if si.ExitedAt != nil {
		end = *si.ExitedAt
	}
	if end.Before(si.EnteredAt) {
		return 0
	}
	return end.Sub(si.EnteredAt)
}

// Contains reports whether t falls inside [EnteredAt, ExitedAt). Open
// intervals contain every instant at or after EnteredAt.
func (si StateInterval) Contains(t time.Time) bool {
	if t.Before(si.EnteredAt) {
		return false
	}
	return si.ExitedAt == nil || t.Before(*si.ExitedAt)
}

// Normalize reconstructs the gap-free state occupancy timeline of one issue
// from its status-change events.
//
// Jira changelogs are not required to be internally consistent: an event
// whose From does not match the currently open state is accepted as
// authoritative (To is trusted as ground truth) and only noted at debug
// level. Events carry no guarantee of covering every transition; gaps are
// tolerated, not errors.
//
// The final interval is closed at the last event timestamp when the issue
// sits in the terminal state, and left open ("still in progress") otherwise.
func Normalize(issue jira.Issue, cfg WorkflowConfig) []StateInterval {
	birth := birthState(issue, cfg)

	intervals := []StateInterval{{
		IssueKey:  issue.Key,
		State:     birth,
		EnteredAt: issue.Created,
	}}

	for _, ev := range issue.Events {
		current := &intervals[len(intervals)-1]

		if ev.From != "" && ev.From != current.State {
			log.Debug().
				Str("issue", issue.Key).
				Str("expected", current.State).
				Str("recorded", ev.From).
				Msg("Changelog from-state mismatch, trusting to-state")
		}

		if ev.To == current.State {
			// No-op transition; keep the open interval contiguous.
			continue
		}

		// Events predating the interval start (clock skew, imported
		// history) close it as zero-width rather than going backwards.
		exit := ev.Date
		if exit.Before(current.EnteredAt) {
			exit = current.EnteredAt
		}
		current.ExitedAt = &exit

		intervals = append(intervals, StateInterval{
			IssueKey:  issue.Key,
			State:     ev.To,
			EnteredAt: exit,
		})
	}

	last := &intervals[len(intervals)-1]
	if cfg.Terminal() != "" && last.State == cfg.Terminal() && len(issue.Events) > 0 {
		exit := last.EnteredAt
		last.ExitedAt = &exit
	}

	return intervals
}

// birthState resolves the state occupied at creation: the earliest event's
// recorded from-state, then the configured initial state, then the issue's
// current status for issues with no history at all.
func birthState(issue jira.Issue, cfg WorkflowConfig) string {
	if len(issue.Events) > 0 && issue.Events[0].From != "" {
		return issue.Events[0].From
	}
	if len(issue.Events) > 0 {
		if len(cfg.States) > 0 {
			return cfg.States[0]
		}
		return issue.Events[0].To
	}
	if issue.Status != "" {
		return issue.Status
	}
	if len(cfg.States) > 0 {
		return cfg.States[0]
	}
	return ""
}
