package stats

import (
	"slices"
	"time"

	"flowmetrics-mcp/internal/flow"
)

// IssueDuration is one issue's contribution to a lead/cycle time sample.
type IssueDuration struct {
	Key         string    `json:"key"`
	Days        float64   `json:"days"`
	CompletedAt time.Time `json:"completedAt"`
}

// LeadTimeResult summarizes the creation-to-done clock for a set of issues.
type LeadTimeResult struct {
	Summary
	Data    []IssueDuration `json:"data"`
	Partial bool            `json:"partial,omitempty"`
}

// CycleTimeResult summarizes the in-process clock between two configured
// states.
type CycleTimeResult struct {
	Summary
	StartState string          `json:"start_state"`
	EndState   string          `json:"end_state"`
	Data       []IssueDuration `json:"data"`
	Partial    bool            `json:"partial,omitempty"`
}

// CalculateLeadTime measures elapsed days from issue creation (or the
// configured lead start state) to the configured lead end state. Issues
// that never reach the end state are excluded from the sample, not treated
// as zero.
func CalculateLeadTime(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig) LeadTimeResult {
	data := collectDurations(timelines, cfg.LeadStart, cfg.LeadEnd)
	return LeadTimeResult{
		Summary: Summarize(durationDays(data)),
		Data:    data,
	}
}

// CalculateCycleTime measures elapsed days between the configured cycle
// start and end states, with the same exclusion rule as lead time.
func CalculateCycleTime(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig) CycleTimeResult {
	start, end := cfg.CycleBounds()
	data := collectDurations(timelines, start, end)
	return CycleTimeResult{
		Summary:    Summarize(durationDays(data)),
		StartState: start,
		EndState:   end,
		Data:       data,
	}
}

// collectDurations walks each issue timeline and emits one sample per issue
// that completed the clock. An empty startState anchors the clock at
// creation. Issues where the start entry postdates the completion (pure
// backflow histories) are excluded to keep every sample non-negative.
func collectDurations(timelines [][]flow.StateInterval, startState, endState string) []IssueDuration {
	data := make([]IssueDuration, 0, len(timelines))

	for _, intervals := range timelines {
		if len(intervals) == 0 {
			continue
		}

		end, ok := LastEntry(intervals, endState)
		if !ok {
			continue
		}

		start := intervals[0].EnteredAt // creation
		if startState != "" {
			start, ok = FirstEntry(intervals, startState)
			if !ok {
				continue
			}
		}

		if end.Before(start) {
			continue
		}

		data = append(data, IssueDuration{
			Key:         intervals[0].IssueKey,
			Days:        Round1(end.Sub(start).Hours() / 24.0),
			CompletedAt: end,
		})
	}

	slices.SortFunc(data, func(a, b IssueDuration) int {
		return a.CompletedAt.Compare(b.CompletedAt)
	})

	return data
}

// FirstEntry returns the first time the issue entered the given state.
func FirstEntry(intervals []flow.StateInterval, state string) (time.Time, bool) {
	for _, si := range intervals {
		if si.State == state {
			return si.EnteredAt, true
		}
	}
	return time.Time{}, false
}

// LastEntry returns the most recent time the issue entered the given state.
// Backflow out of a done state and back in moves the completion point.
func LastEntry(intervals []flow.StateInterval, state string) (time.Time, bool) {
	for i := len(intervals) - 1; i >= 0; i-- {
		if intervals[i].State == state {
			return intervals[i].EnteredAt, true
		}
	}
	return time.Time{}, false
}

func durationDays(data []IssueDuration) []float64 {
	days := make([]float64, len(data))
	for i, d := range data {
		days[i] = d.Days
	}
	return days
}
