package utils

import (
	"sort"
)

// Summary 一组样本的统计值，样本为空时都是-1
type Summary struct {
	Count  int
	Max    float64
	Min    float64
	Avg    float64
	Median float64
}

// Summarize 不修改samples
func Summarize(samples []float64) Summary {
	if len(samples) == 0 {
		return Summary{Max: -1, Min: -1, Avg: -1, Median: -1}
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	sum := 0.0
	for _, s := range sorted {
		sum += s
	}

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Summary{
		Count:  n,
		Max:    sorted[n-1],
		Min:    sorted[0],
		Avg:    sum / float64(n),
		Median: median,
	}
}
