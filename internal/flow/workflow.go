package flow

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// WorkflowConfig describes the canonical workflow for one metrics request.
// It is supplied by the configuration store and immutable during a
// computation.
type WorkflowConfig struct {
	// ID is the configuration identifier, used to namespace cached results
	// so that mutations of the owning configuration can invalidate them.
	ID string `json:"id"`

	// States is the canonical workflow order, first to last.
	States []string `json:"states"`

	// LeadStart/LeadEnd bound the lead-time clock. An empty LeadStart
	// means the clock starts at issue creation.
	LeadStart string `json:"lead_start,omitempty"`
	LeadEnd   string `json:"lead_end"`

	// CycleStart/CycleEnd bound the cycle-time clock (typically "work
	// started" to "done"). Empty values fall back to the lead-time bounds.
	CycleStart string `json:"cycle_start,omitempty"`
	CycleEnd   string `json:"cycle_end,omitempty"`

	// ActiveStates flags the states counted as work-in-process. When empty,
	// every non-initial, non-terminal state is considered active.
	ActiveStates []string `json:"active_states,omitempty"`
}

// Index returns the position of a state in the canonical order, or -1.
func (c WorkflowConfig) Index(state string) int {
	for i, s := range c.States {
		if s == state {
			return i
		}
	}
	return -1
}

// Terminal returns the state that stops all clocks.
func (c WorkflowConfig) Terminal() string {
	return c.LeadEnd
}

// CycleBounds resolves the cycle-time start/end states with lead-time
// fallbacks.
func (c WorkflowConfig) CycleBounds() (start, end string) {
	start, end = c.CycleStart, c.CycleEnd
	if start == "" {
		start = c.LeadStart
	}
	if end == "" {
		end = c.LeadEnd
	}
	return start, end
}

// IsActive reports whether a state counts as work-in-process.
func (c WorkflowConfig) IsActive(state string) bool {
	if len(c.ActiveStates) > 0 {
		for _, s := range c.ActiveStates {
			if s == state {
				return true
			}
		}
		return false
	}

	idx := c.Index(state)
	if idx <= 0 {
		return false // unknown or initial state
	}
	return state != c.Terminal()
}

// Fingerprint returns a stable short hash of the configuration, used as a
// cache key component so that two requests with different workflows never
// share a cached metric.
func (c WorkflowConfig) Fingerprint() string {
	h := fnv.New64a()
	fields := []string{
		c.ID,
		strings.Join(c.States, "\x1f"),
		c.LeadStart, c.LeadEnd,
		c.CycleStart, c.CycleEnd,
		strings.Join(c.ActiveStates, "\x1f"),
	}
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
