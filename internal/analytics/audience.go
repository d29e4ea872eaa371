package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"folioscope/internal/timeframe"
)

// GetCountryDistribution groups the sessions active in the window by resolved
// country. The denominator is the same session set the unique-visitor count
// uses, so the dashboard's percentages share one base.
func GetCountryDistribution(db *gorm.DB, tf *timeframe.TimeFrame) ([]DistributionEntry, error) {
	return sessionDistribution(db, tf, "country")
}

// GetDeviceDistribution groups the sessions active in the window by device
// class.
func GetDeviceDistribution(db *gorm.DB, tf *timeframe.TimeFrame) ([]DistributionEntry, error) {
	return sessionDistribution(db, tf, "device_type")
}

func sessionDistribution(db *gorm.DB, tf *timeframe.TimeFrame, column string) ([]DistributionEntry, error) {
	query := fmt.Sprintf(`
        SELECT s.%s AS name,
               COUNT(*) AS count
        FROM sessions s
        WHERE EXISTS (
            SELECT 1 FROM events e
            WHERE e.session_token = s.token
              AND e.created_at >= ? AND e.created_at < ?
        )
        GROUP BY s.%s
        ORDER BY count DESC, name ASC
    `, column, column)

	var results []MetricCountResult
	err := db.Raw(query, tf.From.UTC(), tf.To.UTC()).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching %s distribution: %w", column, err)
	}

	return BuildDistribution(results), nil
}
