package stats

import (
	"time"

	"flowmetrics-mcp/internal/flow"
)

// ThroughputResult is the per-bucket delivery count series.
type ThroughputResult struct {
	Dates   []time.Time `json:"dates"`
	Labels  []string    `json:"labels"`
	Counts  []int       `json:"counts"`
	Average float64     `json:"average"`
	Bucket  string      `json:"bucket"`
	Partial bool        `json:"partial,omitempty"`
}

// CalculateThroughput counts issues whose entry into the configured end
// state falls within each bucket of the window. The average is total count
// over the number of buckets.
func CalculateThroughput(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig, window AnalysisWindow) ThroughputResult {
	buckets := window.Subdivide()

	result := ThroughputResult{
		Dates:  buckets,
		Labels: make([]string, len(buckets)),
		Counts: make([]int, len(buckets)),
		Bucket: window.Bucket,
	}
	for i, b := range buckets {
		result.Labels[i] = window.GenerateLabel(b)
	}

	total := 0
	for _, intervals := range timelines {
		done, ok := LastEntry(intervals, cfg.LeadEnd)
		if !ok {
			continue
		}
		if idx := window.FindBucketIndex(done); idx >= 0 && idx < len(result.Counts) {
			result.Counts[idx]++
			total++
		}
	}

	if len(buckets) > 0 {
		result.Average = Round2(float64(total) / float64(len(buckets)))
	}

	return result
}
