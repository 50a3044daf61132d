package stats

import (
	"math"
	"slices"
)

// Summary holds the descriptive statistics for a sample of durations in
// days. An empty sample yields the zero Summary rather than an error.
type Summary struct {
	Mean   float64 `json:"average"`
	Median float64 `json:"median"`
	P85    float64 `json:"p85"`
	P95    float64 `json:"p95"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Summarize computes the full descriptive summary over a sample.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	slices.Sort(sorted)

	return Summary{
		Mean:   Round1(Mean(sorted)),
		Median: Round1(Median(sorted)),
		P85:    Round1(percentileSorted(sorted, 0.85)),
		P95:    Round1(percentileSorted(sorted, 0.95)),
		StdDev: Round1(StdDev(sorted)),
		Min:    Round1(sorted[0]),
		Max:    Round1(sorted[len(sorted)-1]),
		Count:  len(sorted),
	}
}

// Mean returns the arithmetic mean, 0 for an empty sample.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median finds the median value in a slice of floats.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	temp := make([]float64, len(values))
	copy(temp, values)
	slices.Sort(temp)

	n := len(temp)
	if n%2 == 1 {
		return temp[n/2]
	}
	return (temp[n/2-1] + temp[n/2]) / 2.0
}

// Percentile returns the p-quantile (0..1) of the sample.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// Round1 rounds to one decimal place for display.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds to two decimal places, used for rates and ratios.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
