package stats

import (
	"math"

	"flowmetrics-mcp/internal/flow"
)

// XmRResult represents the output of a Process Behavior Chart analysis.
type XmRResult struct {
	Average     float64   `json:"average"`
	AmR         float64   `json:"average_moving_range"`
	UNPL        float64   `json:"upper_natural_process_limit"`
	LNPL        float64   `json:"lower_natural_process_limit"`
	Values      []float64 `json:"values"`
	MovingRange []float64 `json:"moving_ranges"`
	Signals     []Signal  `json:"signals"`
}

// Signal represents a detected special cause variation.
type Signal struct {
	Index       int    `json:"index"`
	Key         string `json:"key"`
	Type        string `json:"type"` // "outlier", "shift"
	Description string `json:"description"`
}

// CalculateXmR performs the math for an Individuals and Moving Range chart.
func CalculateXmR(values []float64, keys []string) XmRResult {
	if len(values) == 0 {
		return XmRResult{}
	}

	result := XmRResult{
		Values:  values,
		Average: Mean(values),
	}

	if len(values) > 1 {
		mrSum := 0.0
		result.MovingRange = make([]float64, len(values)-1)
		for i := 0; i < len(values)-1; i++ {
			mr := math.Abs(values[i+1] - values[i])
			result.MovingRange[i] = mr
			mrSum += mr
		}
		result.AmR = mrSum / float64(len(values)-1)
	}

	// Wheeler's scaling constant for Individuals charts is 2.66
	result.UNPL = result.Average + (2.66 * result.AmR)
	result.LNPL = math.Max(0, result.Average-(2.66*result.AmR))

	result.Signals = detectSignals(values, result.Average, result.UNPL, result.LNPL, keys)

	return result
}

// WIPStabilityResult couples the daily WIP run chart with weekly-sampled
// XmR limits.
type WIPStabilityResult struct {
	RunChart []WIPRunChartPoint `json:"run_chart"`
	XmR      XmRResult          `json:"xmr"`
	Status   string             `json:"status"` // "stable", "unstable"
	Partial  bool               `json:"partial,omitempty"`
}

// AnalyzeWIPStability samples the daily run chart weekly (to avoid
// autocorrelation in the limits), computes XmR limits from the weekly
// samples, and then sweeps the full daily chart against those limits.
func AnalyzeWIPStability(timelines [][]flow.StateInterval, cfg flow.WorkflowConfig, window AnalysisWindow) WIPStabilityResult {
	runChart := CalculateWIPRunChart(timelines, cfg, window)
	if len(runChart) == 0 {
		return WIPStabilityResult{Status: "stable"}
	}

	// 1. Last point of each ISO week becomes a sample
	var weeklySamples []float64
	var weeklyKeys []string

	currentWeekEnd := SnapToEnd(runChart[0].Date, "week")
	for i, point := range runChart {
		isLastInWeek := i == len(runChart)-1
		if !isLastInWeek {
			nextWeekEnd := SnapToEnd(runChart[i+1].Date, "week")
			if !nextWeekEnd.Equal(currentWeekEnd) {
				isLastInWeek = true
				currentWeekEnd = nextWeekEnd
			}
		}
		if isLastInWeek {
			weeklySamples = append(weeklySamples, float64(point.Count))
			weeklyKeys = append(weeklyKeys, point.Date.Format("2006-01-02"))
		}
	}

	// 2. Limits from the weekly samples only
	xmr := CalculateXmR(weeklySamples, weeklyKeys)

	// 3. Sweep the daily points against the weekly-derived limits
	var dailySignals []Signal
	for i, point := range runChart {
		val := float64(point.Count)
		if val > xmr.UNPL {
			dailySignals = append(dailySignals, Signal{
				Index:       i,
				Key:         point.Date.Format("2006-01-02"),
				Type:        "outlier",
				Description: "WIP count above Upper Natural Process Limit (UNPL)",
			})
		} else if val < xmr.LNPL {
			dailySignals = append(dailySignals, Signal{
				Index:       i,
				Key:         point.Date.Format("2006-01-02"),
				Type:        "outlier",
				Description: "WIP count below Lower Natural Process Limit (LNPL)",
			})
		}
	}
	xmr.Signals = dailySignals

	status := "stable"
	if len(dailySignals) > 0 {
		status = "unstable"
	}

	return WIPStabilityResult{
		RunChart: runChart,
		XmR:      xmr,
		Status:   status,
	}
}

func detectSignals(values []float64, avg, unpl, lnpl float64, keys []string) []Signal {
	var signals []Signal

	for i, v := range values {
		key := ""
		if i < len(keys) {
			key = keys[i]
		}

		if v > unpl {
			signals = append(signals, Signal{
				Index:       i,
				Key:         key,
				Type:        "outlier",
				Description: "Point above Upper Natural Process Limit (UNPL)",
			})
		} else if v < lnpl {
			signals = append(signals, Signal{
				Index:       i,
				Key:         key,
				Type:        "outlier",
				Description: "Point below Lower Natural Process Limit (LNPL)",
			})
		}
	}

	if len(values) >= 8 {
		side := 0
		count := 0
		for i, v := range values {
			currentSide := 0
			if v > avg {
				currentSide = 1
			} else if v < avg {
				currentSide = -1
			}

			if currentSide == side && currentSide != 0 {
				count++
			} else {
				side = currentSide
				count = 1
			}

			if count == 8 {
				key := ""
				if i < len(keys) {
					key = keys[i]
				}
				signals = append(signals, Signal{
					Index:       i,
					Key:         key,
					Type:        "shift",
					Description: "8 consecutive points on one side of the average identified (Process Shift)",
				})
			}
		}
	}

	return signals
}
