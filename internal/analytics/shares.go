package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"folioscope/internal/timeframe"
)

// PlatformShares counts share-intent clicks for one platform. A share intent
// is an explicit user-initiated click, not a guarantee the share completed.
type PlatformShares struct {
	Platform  string
	Shares    int
	LastShare time.Time
}

// GetShareCounts groups share-intent events by platform. A nil time frame
// covers all recorded history, which is what the social-analytics endpoint
// reports.
func GetShareCounts(db *gorm.DB, tf *timeframe.TimeFrame) ([]PlatformShares, error) {
	query := `
        SELECT label AS platform,
               COUNT(*) AS shares,
               MAX(created_at) AS last_share
        FROM events
        WHERE event_type = 'click'
          AND category = 'share'
          AND label != ''
    `
	args := []interface{}{}
	if tf != nil {
		query += " AND created_at >= ? AND created_at < ?"
		args = append(args, tf.From.UTC(), tf.To.UTC())
	}
	query += `
        GROUP BY label
        ORDER BY shares DESC, platform ASC
    `

	var rows []struct {
		Platform  string
		Shares    int
		LastShare string
	}
	if err := db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching share counts: %w", err)
	}

	stats := make([]PlatformShares, len(rows))
	for i, row := range rows {
		stats[i] = PlatformShares{Platform: row.Platform, Shares: row.Shares}
		if row.LastShare != "" {
			if lastShare, err := ParseDBTime(row.LastShare); err == nil {
				stats[i].LastShare = lastShare
			}
		}
	}
	return stats, nil
}

// TotalShares sums share counts across platforms.
func TotalShares(stats []PlatformShares) int {
	total := 0
	for _, stat := range stats {
		total += stat.Shares
	}
	return total
}
