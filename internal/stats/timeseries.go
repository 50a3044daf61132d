package stats

import (
	"sort"
	"time"

	"flowmetrics-mcp/internal/flow"
)

// StateAt determines the state an issue occupied at a specific instant via
// binary search over its (chronologically contiguous) intervals. Returns
// false when the instant predates creation or postdates a closed timeline.
func StateAt(intervals []flow.StateInterval, t time.Time) (string, bool) {
	if len(intervals) == 0 || t.Before(intervals[0].EnteredAt) {
		return "", false
	}

	// First interval entered after t; the candidate is the one before it.
	idx := sort.Search(len(intervals), func(i int) bool {
		return intervals[i].EnteredAt.After(t)
	})
	si := intervals[idx-1]

	if si.Contains(t) {
		return si.State, true
	}
	// Closed terminal interval: the issue left the system before t, but the
	// terminal state is still the answer for cumulative framings.
	if idx == len(intervals) && si.ExitedAt != nil {
		return si.State, true
	}
	return "", false
}

// SnapshotPoint is the per-state population at one instant.
type SnapshotPoint struct {
	Date   time.Time      `json:"date"`
	Counts map[string]int `json:"counts"`
}

// ReconstructSnapshots replays all issue timelines across the given
// sampling instants. O(issues x log(intervals)) per instant.
func ReconstructSnapshots(timelines [][]flow.StateInterval, instants []time.Time) []SnapshotPoint {
	points := make([]SnapshotPoint, len(instants))

	for i, at := range instants {
		counts := make(map[string]int)
		for _, intervals := range timelines {
			if state, ok := StateAt(intervals, at); ok {
				counts[state]++
			}
		}
		points[i] = SnapshotPoint{Date: at, Counts: counts}
	}

	return points
}

// CfdPoint is one CFD date with raw per-state counts.
type CfdPoint struct {
	Date   time.Time      `json:"date"`
	Label  string         `json:"label"`
	Counts map[string]int `json:"counts"`
}

// CFDResult holds the cumulative flow series. Counts are raw per-state
// populations sampled at end-of-bucket; CumulativeBands produces the
// classic band framing.
type CFDResult struct {
	Statuses []string   `json:"statuses"`
	Data     []CfdPoint `json:"data"`
	Partial  bool       `json:"partial,omitempty"`
}

// CalculateCFD reconstructs the per-state population for every bucket in
// the window, sampled at the end-of-bucket instant.
func CalculateCFD(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig, window AnalysisWindow) CFDResult {
	buckets := window.Subdivide()

	instants := make([]time.Time, len(buckets))
	for i, b := range buckets {
		instants[i] = SnapToEnd(b, window.Bucket)
	}

	snapshots := ReconstructSnapshots(timelines, instants)

	data := make([]CfdPoint, len(buckets))
	for i, b := range buckets {
		data[i] = CfdPoint{
			Date:   b,
			Label:  window.GenerateLabel(b),
			Counts: snapshots[i].Counts,
		}
	}

	return CFDResult{
		Statuses: cfg.States,
		Data:     data,
	}
}

// CumulativeBands converts a point's raw counts into the cumulative
// "this state or any later state" framing: band i sums the counts of
// state i and every state after it in the canonical order. Summing bands
// from the last state backwards is therefore non-decreasing.
func CumulativeBands(point CfdPoint, order []string) []int {
	bands := make([]int, len(order))
	running := 0
	for i := len(order) - 1; i >= 0; i-- {
		running += point.Counts[order[i]]
		bands[i] = running
	}
	return bands
}

// WipResult is the work-in-process snapshot: only states flagged active
// contribute, with a per-state breakdown plus the summed total.
type WipResult struct {
	Statuses []string `json:"status"`
	Counts   []int    `json:"counts"`
	Total    int      `json:"total"`
	Partial  bool     `json:"partial,omitempty"`
}

// CalculateWIP counts issues occupying active states at the given instant.
func CalculateWIP(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig, at time.Time) WipResult {
	byState := make(map[string]int)
	for _, intervals := range timelines {
		state, ok := StateAt(intervals, at)
		if !ok || !cfg.IsActive(state) {
			continue
		}
		// A closed terminal timeline is not WIP even though StateAt still
		// resolves it for CFD purposes.
		last := intervals[len(intervals)-1]
		if last.State == state && last.ExitedAt != nil && !last.Contains(at) {
			continue
		}
		byState[state]++
	}

	result := WipResult{}
	for _, state := range cfg.States {
		if !cfg.IsActive(state) {
			continue
		}
		result.Statuses = append(result.Statuses, state)
		result.Counts = append(result.Counts, byState[state])
		result.Total += byState[state]
	}

	return result
}

// WIPRunChartPoint is the active WIP total on a specific date.
type WIPRunChartPoint struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// CalculateWIPRunChart samples active WIP at the end of each day in the
// window, feeding the stability analysis.
func CalculateWIPRunChart(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig, window AnalysisWindow) []WIPRunChartPoint {
	days := AnalysisWindow{Start: SnapToStart(window.Start, "day"), End: SnapToEnd(window.End, "day"), Bucket: "day"}.Subdivide()

	chart := make([]WIPRunChartPoint, len(days))
	for i, d := range days {
		snapshot := CalculateWIP(timelines, cfg, SnapToEnd(d, "day"))
		chart[i] = WIPRunChartPoint{Date: d, Count: snapshot.Total}
	}
	return chart
}
