package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folioscope/internal/analytics"
)

func TestBuildDistribution(t *testing.T) {
	t.Run("computes percentages over the combined total", func(t *testing.T) {
		entries := analytics.BuildDistribution([]analytics.MetricCountResult{
			{Name: "US", Count: 6},
			{Name: "DE", Count: 3},
			{Name: "IN", Count: 1},
		})

		require.Len(t, entries, 3)
		assert.Equal(t, "US", entries[0].Name)
		assert.InDelta(t, 60.0, entries[0].Percentage, 0.001)
		assert.Equal(t, "DE", entries[1].Name)
		assert.InDelta(t, 30.0, entries[1].Percentage, 0.001)
		assert.Equal(t, "IN", entries[2].Name)
		assert.InDelta(t, 10.0, entries[2].Percentage, 0.001)
	})

	t.Run("percentages always sum to 100", func(t *testing.T) {
		// 1/3 splits round awkwardly; largest remainder has to absorb it.
		entries := analytics.BuildDistribution([]analytics.MetricCountResult{
			{Name: "a", Count: 1},
			{Name: "b", Count: 1},
			{Name: "c", Count: 1},
		})

		sum := 0.0
		for _, entry := range entries {
			sum += entry.Percentage
		}
		assert.InDelta(t, 100.0, sum, 0.001)
	})

	t.Run("sorts by count descending then name ascending", func(t *testing.T) {
		entries := analytics.BuildDistribution([]analytics.MetricCountResult{
			{Name: "mobile", Count: 2},
			{Name: "desktop", Count: 2},
			{Name: "tablet", Count: 5},
		})

		require.Len(t, entries, 3)
		assert.Equal(t, "tablet", entries[0].Name)
		assert.Equal(t, "desktop", entries[1].Name)
		assert.Equal(t, "mobile", entries[2].Name)
	})

	t.Run("returns empty for zero totals", func(t *testing.T) {
		assert.Empty(t, analytics.BuildDistribution(nil))
		assert.Empty(t, analytics.BuildDistribution([]analytics.MetricCountResult{{Name: "x", Count: 0}}))
	})
}

func TestCalculateGrowth(t *testing.T) {
	assert.Equal(t, 0.0, analytics.CalculateGrowth(100, 0))
	assert.Equal(t, 0.0, analytics.CalculateGrowth(0, 0))
	assert.InDelta(t, 50.0, analytics.CalculateGrowth(150, 100), 0.001)
	assert.InDelta(t, -25.0, analytics.CalculateGrowth(75, 100), 0.001)
	assert.InDelta(t, 33.3, analytics.CalculateGrowth(4, 3), 0.001)
}

func TestParseDBTime(t *testing.T) {
	cases := []string{
		"2026-08-15 10:30:00.123456789+00:00",
		"2026-08-15T10:30:00Z",
		"2026-08-15 10:30:00",
	}
	for _, value := range cases {
		parsed, err := analytics.ParseDBTime(value)
		require.NoError(t, err, value)
		assert.Equal(t, 2026, parsed.Year())
		assert.Equal(t, time.August, parsed.Month())
	}

	_, err := analytics.ParseDBTime("yesterday")
	assert.Error(t, err)
}
