package analytics

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"folioscope/internal/geo"
	"folioscope/internal/timeframe"
)

// OrganizationActivity aggregates the sessions of one resolved organization
// in a window.
type OrganizationActivity struct {
	Organization  string
	Visits        int
	DwellSeconds  int
	LastVisit     time.Time
	ContentViewed []string
}

// GetOrganizationActivity groups the window's sessions by their resolved
// organization. Sessions without a resolution land in the explicit unknown
// bucket rather than being dropped. Rows are sorted by visit count
// descending, organization ascending on ties.
func GetOrganizationActivity(db *gorm.DB, tf *timeframe.TimeFrame, limit int) ([]OrganizationActivity, error) {
	from, to := tf.From.UTC(), tf.To.UTC()

	var sessionRows []struct {
		Organization string
		Visits       int
		LastVisit    string
	}
	err := db.Raw(`
        SELECT s.organization AS organization,
               COUNT(*) AS visits,
               MAX(s.last_seen_at) AS last_visit
        FROM sessions s
        WHERE EXISTS (
            SELECT 1 FROM events e
            WHERE e.session_token = s.token
              AND e.created_at >= ? AND e.created_at < ?
        )
        GROUP BY s.organization
    `, from, to).Scan(&sessionRows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching organization sessions: %w", err)
	}

	var dwellRows []struct {
		Organization string
		Dwell        int
	}
	err = db.Raw(`
        SELECT s.organization AS organization,
               COALESCE(SUM(e.value), 0) AS dwell
        FROM events e
        JOIN sessions s ON s.token = e.session_token
        WHERE e.created_at >= ? AND e.created_at < ?
        GROUP BY s.organization
    `, from, to).Scan(&dwellRows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching organization dwell: %w", err)
	}

	var contentRows []struct {
		Organization string
		TargetID     string
	}
	err = db.Raw(`
        SELECT DISTINCT s.organization AS organization,
               e.target_id AS target_id
        FROM events e
        JOIN sessions s ON s.token = e.session_token
        WHERE e.event_type IN ('project_view', 'blog_view')
          AND e.target_id != ''
          AND e.created_at >= ? AND e.created_at < ?
        ORDER BY s.organization ASC, e.target_id ASC
    `, from, to).Scan(&contentRows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching organization content: %w", err)
	}

	dwellByOrg := make(map[string]int, len(dwellRows))
	for _, row := range dwellRows {
		dwellByOrg[normalizeOrg(row.Organization)] += row.Dwell
	}
	contentByOrg := make(map[string][]string, len(contentRows))
	for _, row := range contentRows {
		org := normalizeOrg(row.Organization)
		contentByOrg[org] = append(contentByOrg[org], row.TargetID)
	}

	merged := make(map[string]*OrganizationActivity, len(sessionRows))
	for _, row := range sessionRows {
		org := normalizeOrg(row.Organization)
		entry, exists := merged[org]
		if !exists {
			entry = &OrganizationActivity{Organization: org}
			merged[org] = entry
		}
		entry.Visits += row.Visits
		if row.LastVisit != "" {
			if lastVisit, err := ParseDBTime(row.LastVisit); err == nil && lastVisit.After(entry.LastVisit) {
				entry.LastVisit = lastVisit
			}
		}
	}
	for org, entry := range merged {
		entry.DwellSeconds = dwellByOrg[org]
		entry.ContentViewed = contentByOrg[org]
		if entry.ContentViewed == nil {
			entry.ContentViewed = []string{}
		}
	}

	activities := make([]OrganizationActivity, 0, len(merged))
	for _, entry := range merged {
		activities = append(activities, *entry)
	}
	sort.SliceStable(activities, func(a, b int) bool {
		if activities[a].Visits != activities[b].Visits {
			return activities[a].Visits > activities[b].Visits
		}
		return activities[a].Organization < activities[b].Organization
	})

	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}
	return activities, nil
}

// normalizeOrg folds unresolved organizations into the unknown bucket.
func normalizeOrg(organization string) string {
	if organization == "" {
		return geo.UnknownOrganization
	}
	return organization
}
