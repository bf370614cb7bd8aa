package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	testCases := []struct {
		samples  []float64
		max, min float64
		avg      float64
		median   float64
	}{
		{nil, -1, -1, -1, -1},
		{[]float64{3}, 3, 3, 3, 3},
		{[]float64{4, 1, 3}, 4, 1, 8.0 / 3, 3},
		{[]float64{4, 1, 3, 2}, 4, 1, 2.5, 2.5},
	}

	for i, tc := range testCases {
		s := Summarize(tc.samples)
		assert.Equal(t, len(tc.samples), s.Count, "#%d", i)
		assert.Equal(t, tc.max, s.Max, "#%d", i)
		assert.Equal(t, tc.min, s.Min, "#%d", i)
		assert.InDelta(t, tc.avg, s.Avg, 1e-9, "#%d", i)
		assert.Equal(t, tc.median, s.Median, "#%d", i)
	}
}

func TestSummarizeKeepsOrder(t *testing.T) {
	samples := []float64{5, 1, 4}
	Summarize(samples)
	assert.Equal(t, []float64{5, 1, 4}, samples)
}
