package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"folioscope/internal/timeframe"
)

// ContentStat is one ranked content item. AvgDwellSeconds is nil when no
// view in the window carried a dwell signal; callers omit it rather than
// fabricate one.
type ContentStat struct {
	Name            string
	Views           int
	AvgDwellSeconds *float64
}

// GetTopContent ranks content items of the given event types by view count
// descending, tie-broken by target id ascending. Dwell comes from the
// optional numeric value on view events; AVG skips NULLs.
func GetTopContent(db *gorm.DB, tf *timeframe.TimeFrame, limit int, eventTypes ...string) ([]ContentStat, error) {
	if len(eventTypes) == 0 {
		eventTypes = []string{"project_view", "blog_view"}
	}

	var results []struct {
		Name     string
		Views    int
		AvgDwell *float64
	}
	err := db.Raw(`
        SELECT target_id AS name,
               COUNT(*) AS views,
               AVG(value) AS avg_dwell
        FROM events
        WHERE event_type IN ?
          AND target_id != ''
          AND created_at >= ? AND created_at < ?
        GROUP BY target_id
        ORDER BY views DESC, target_id ASC
        LIMIT ?
    `, eventTypes, tf.From.UTC(), tf.To.UTC(), limit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top content: %w", err)
	}

	stats := make([]ContentStat, len(results))
	for i, result := range results {
		stats[i] = ContentStat{
			Name:            result.Name,
			Views:           result.Views,
			AvgDwellSeconds: result.AvgDwell,
		}
	}
	return stats, nil
}
