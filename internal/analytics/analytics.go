// Package analytics is the read side of the telemetry pipeline: pure,
// side-effect-free aggregate queries over the session and event stores,
// always scoped to a half-open window [From, To).
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// MetricCountResult is a generic name/count pair scanned from aggregate
// queries.
type MetricCountResult struct {
	Name  string
	Count int
}

// DistributionEntry is one row of a percentage distribution.
type DistributionEntry struct {
	Name       string
	Count      int
	Percentage float64
}

// BuildDistribution turns raw counts into a distribution sorted descending by
// count (name ascending on ties). Percentages are allocated in tenths by
// largest remainder so they always sum to exactly 100.0 over a non-empty
// input.
func BuildDistribution(results []MetricCountResult) []DistributionEntry {
	total := 0
	for _, result := range results {
		total += result.Count
	}
	if total == 0 {
		return []DistributionEntry{}
	}

	entries := make([]DistributionEntry, len(results))
	remainders := make([]float64, len(results))
	allocated := 0
	for i, result := range results {
		exact := float64(result.Count) / float64(total) * 1000
		tenths := int(math.Floor(exact))
		remainders[i] = exact - float64(tenths)
		allocated += tenths
		entries[i] = DistributionEntry{
			Name:       result.Name,
			Count:      result.Count,
			Percentage: float64(tenths) / 10,
		}
	}

	// Hand the leftover tenths to the rows with the largest remainders.
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := 0; i < 1000-allocated && i < len(order); i++ {
		entries[order[i]].Percentage += 0.1
	}
	for i := range entries {
		entries[i].Percentage = math.Round(entries[i].Percentage*10) / 10
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Count != entries[b].Count {
			return entries[a].Count > entries[b].Count
		}
		return entries[a].Name < entries[b].Name
	})
	return entries
}

// Round1 rounds to one decimal place.
func Round1(value float64) float64 {
	return math.Round(value*10) / 10
}

// dbTimeLayouts are the representations SQLite hands back for datetime
// aggregates in raw scans.
var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDBTime parses a datetime string coming out of a raw aggregate scan.
func ParseDBTime(value string) (time.Time, error) {
	for _, layout := range dbTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime value: %q", value)
}
