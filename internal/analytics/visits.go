package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"folioscope/internal/timeframe"
)

// VisitCounts holds the headline visit metrics for one window.
type VisitCounts struct {
	Total     int
	Unique    int
	Returning int
}

// GetVisitCounts computes total page views, unique sessions with at least one
// event in the window, and returning sessions (active in the window, first
// event before it).
func GetVisitCounts(db *gorm.DB, tf *timeframe.TimeFrame) (*VisitCounts, error) {
	counts := &VisitCounts{}

	err := db.Raw(`
        SELECT COUNT(*)
        FROM events
        WHERE event_type = 'page_view'
          AND created_at >= ? AND created_at < ?
    `, tf.From.UTC(), tf.To.UTC()).Scan(&counts.Total).Error
	if err != nil {
		return nil, fmt.Errorf("error counting page views: %w", err)
	}

	err = db.Raw(`
        SELECT COUNT(DISTINCT session_token)
        FROM events
        WHERE created_at >= ? AND created_at < ?
    `, tf.From.UTC(), tf.To.UTC()).Scan(&counts.Unique).Error
	if err != nil {
		return nil, fmt.Errorf("error counting unique sessions: %w", err)
	}

	err = db.Raw(`
        SELECT COUNT(*)
        FROM (
            SELECT session_token
            FROM events
            GROUP BY session_token
            HAVING SUM(CASE WHEN created_at >= ? AND created_at < ? THEN 1 ELSE 0 END) > 0
               AND MIN(created_at) < ?
        )
    `, tf.From.UTC(), tf.To.UTC(), tf.From.UTC()).Scan(&counts.Returning).Error
	if err != nil {
		return nil, fmt.Errorf("error counting returning sessions: %w", err)
	}

	return counts, nil
}

// GetPageViewTotal counts page_view events in a window. Used for the growth
// comparison against the previous window.
func GetPageViewTotal(db *gorm.DB, tf *timeframe.TimeFrame) (int, error) {
	var total int
	err := db.Raw(`
        SELECT COUNT(*)
        FROM events
        WHERE event_type = 'page_view'
          AND created_at >= ? AND created_at < ?
    `, tf.From.UTC(), tf.To.UTC()).Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("error counting page views: %w", err)
	}
	return total, nil
}

// CalculateGrowth returns the percentage change between two window totals,
// rounded to one decimal. A previous total of 0 yields 0, never a division
// error.
func CalculateGrowth(current, previous int) float64 {
	if previous == 0 {
		return 0
	}
	return Round1((float64(current) - float64(previous)) / float64(previous) * 100)
}
