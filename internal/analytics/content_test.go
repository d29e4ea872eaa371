package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folioscope/internal/analytics"
	"folioscope/internal/events"
	"folioscope/internal/testsupport"
)

func TestGetTopContent(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	tf := weekWindow(now)
	at := now.Add(-time.Hour)

	testsupport.CreateTestSession(t, db, "content-viewer")

	withTarget := func(id string, dwell *int) func(*events.Event) {
		return func(e *events.Event) {
			e.TargetType = "project"
			e.TargetID = id
			e.Value = dwell
		}
	}
	dwell30, dwell60 := 30, 60

	// chess-engine: 3 views, dwell on two of them.
	testsupport.CreateTestEvent(t, db, "content-viewer", events.TypeProjectView, at, withTarget("chess-engine", &dwell30))
	testsupport.CreateTestEvent(t, db, "content-viewer", events.TypeProjectView, at, withTarget("chess-engine", &dwell60))
	testsupport.CreateTestEvent(t, db, "content-viewer", events.TypeProjectView, at, withTarget("chess-engine", nil))

	// rate-limiter and portfolio-site tie at 1 view each.
	testsupport.CreateTestEvent(t, db, "content-viewer", events.TypeProjectView, at, withTarget("rate-limiter", nil))
	testsupport.CreateTestEvent(t, db, "content-viewer", events.TypeProjectView, at, withTarget("portfolio-site", nil))

	// Outside the window: never counted.
	testsupport.CreateTestEvent(t, db, "content-viewer", events.TypeProjectView, now.Add(-30*24*time.Hour), withTarget("rate-limiter", nil))

	stats, err := analytics.GetTopContent(db, tf, 10, "project_view")
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, "chess-engine", stats[0].Name)
	assert.Equal(t, 3, stats[0].Views)
	// AVG skips the NULL dwell: (30+60)/2.
	require.NotNil(t, stats[0].AvgDwellSeconds)
	assert.InDelta(t, 45.0, *stats[0].AvgDwellSeconds, 0.001)

	// Tie broken by target id ascending.
	assert.Equal(t, "portfolio-site", stats[1].Name)
	assert.Equal(t, "rate-limiter", stats[2].Name)

	// No dwell signal at all leaves the average nil.
	assert.Nil(t, stats[1].AvgDwellSeconds)
}

func TestGetTopContentRespectsLimit(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	at := now.Add(-time.Hour)
	testsupport.CreateTestSession(t, db, "content-limit")

	for _, id := range []string{"a", "b", "c", "d"} {
		targetID := id
		testsupport.CreateTestEvent(t, db, "content-limit", events.TypeBlogView, at, func(e *events.Event) {
			e.TargetType = "blog_post"
			e.TargetID = targetID
		})
	}

	stats, err := analytics.GetTopContent(db, weekWindow(now), 2, "blog_view")
	require.NoError(t, err)
	assert.Len(t, stats, 2)
}
