package stats

import (
	"slices"
	"strings"
	"time"

	"flowmetrics-mcp/internal/flow"
)

// DefaultBottleneckMultiplier flags a state as a bottleneck candidate when
// its average dwell exceeds this multiple of the overall per-state mean.
const DefaultBottleneckMultiplier = 1.5

// ComplianceResult reports how many issues followed the canonical workflow
// order without backward transitions.
type ComplianceResult struct {
	TotalIssues     int     `json:"total_issues"`
	CompliantIssues int     `json:"compliant_issues"`
	ComplianceRate  float64 `json:"compliance_rate"`
}

// StateDwell holds the per-state residency statistics feeding bottleneck
// scoring.
type StateDwell struct {
	State      string  `json:"state"`
	AvgDays    float64 `json:"avg_days"`
	StdDevDays float64 `json:"std_dev_days"`
	IssueCount int     `json:"issue_count"`
	Score      float64 `json:"bottleneck_score"`
	Candidate  bool    `json:"candidate"`
}

// BottleneckResult ranks states by bottleneck score, descending.
type BottleneckResult struct {
	States     []StateDwell     `json:"states"`
	Multiplier float64          `json:"multiplier"`
	Compliance ComplianceResult `json:"compliance"`
	Partial    bool             `json:"partial,omitempty"`
}

// CalculateCompliance checks, per issue, that the visited sequence of
// configured states never steps backward in the canonical order. States
// outside the configuration are ignored rather than counted as violations.
func CalculateCompliance(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig) ComplianceResult {
	result := ComplianceResult{TotalIssues: len(timelines)}

	for _, intervals := range timelines {
		if isCompliant(intervals, cfg) {
			result.CompliantIssues++
		}
	}

	if result.TotalIssues > 0 {
		result.ComplianceRate = Round2(float64(result.CompliantIssues) / float64(result.TotalIssues))
	}

	return result
}

func isCompliant(intervals []flow.StateInterval, cfg flow.WorkflowConfig) bool {
	lastIdx := -1
	for _, si := range intervals {
		idx := cfg.Index(si.State)
		if idx == -1 {
			continue
		}
		if idx < lastIdx {
			return false
		}
		lastIdx = idx
	}
	return true
}

// DetectBottlenecks computes average and standard deviation of time spent
// per state across issues, flags candidates against the overall mean, and
// ranks by score = avg dwell x issue volume through the state.
func DetectBottlenecks(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig, multiplier float64, now time.Time) BottleneckResult {
	if multiplier <= 0 {
		multiplier = DefaultBottleneckMultiplier
	}

	// 1. Per-issue dwell per state (an issue may revisit a state; dwell
	// accumulates across visits).
	dwells := make(map[string][]float64)
	for _, intervals := range timelines {
		perState := make(map[string]float64)
		for _, si := range intervals {
			perState[si.State] += si.Duration(now).Hours() / 24.0
		}
		for state, days := range perState {
			dwells[state] = append(dwells[state], days)
		}
	}

	// 2. Per-state statistics
	var states []StateDwell
	var avgSum float64
	for state, samples := range dwells {
		avg := Mean(samples)
		avgSum += avg
		states = append(states, StateDwell{
			State:      state,
			AvgDays:    Round1(avg),
			StdDevDays: Round1(StdDev(samples)),
			IssueCount: len(samples),
			Score:      Round1(avg * float64(len(samples))),
		})
	}

	// 3. Candidate flagging against the overall per-state mean
	overallMean := 0.0
	if len(states) > 0 {
		overallMean = avgSum / float64(len(states))
	}
	for i := range states {
		states[i].Candidate = states[i].AvgDays > multiplier*overallMean
	}

	slices.SortFunc(states, func(a, b StateDwell) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.State, b.State)
		}
	})

	return BottleneckResult{
		States:     states,
		Multiplier: multiplier,
		Compliance: CalculateCompliance(timelines, cfg),
	}
}
