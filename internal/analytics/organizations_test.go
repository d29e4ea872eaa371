package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folioscope/internal/analytics"
	"folioscope/internal/events"
	"folioscope/internal/geo"
	"folioscope/internal/sessions"
	"folioscope/internal/testsupport"
)

func TestGetOrganizationActivity(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	at := now.Add(-time.Hour)
	dwell120, dwell80 := 120, 80

	// Two sessions from the same recruiting firm.
	testsupport.CreateTestSession(t, db, "org-acme-1", func(s *sessions.Session) {
		s.Organization = "Acme Talent"
	})
	testsupport.CreateTestEvent(t, db, "org-acme-1", events.TypeProjectView, at, func(e *events.Event) {
		e.TargetID = "chess-engine"
		e.Value = &dwell120
	})
	testsupport.CreateTestSession(t, db, "org-acme-2", func(s *sessions.Session) {
		s.Organization = "Acme Talent"
	})
	testsupport.CreateTestEvent(t, db, "org-acme-2", events.TypeBlogView, at, func(e *events.Event) {
		e.TargetID = "profiling-sqlite-writes"
		e.Value = &dwell80
	})

	// Unresolved session lands in the unknown bucket.
	testsupport.CreateTestSession(t, db, "org-anon", func(s *sessions.Session) {
		s.Organization = ""
	})
	testsupport.CreateTestEvent(t, db, "org-anon", events.TypePageView, at)

	activities, err := analytics.GetOrganizationActivity(db, weekWindow(now), 10)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	acme := activities[0]
	assert.Equal(t, "Acme Talent", acme.Organization)
	assert.Equal(t, 2, acme.Visits)
	assert.Equal(t, 200, acme.DwellSeconds)
	assert.ElementsMatch(t, []string{"chess-engine", "profiling-sqlite-writes"}, acme.ContentViewed)
	assert.False(t, acme.LastVisit.IsZero())

	unknown := activities[1]
	assert.Equal(t, geo.UnknownOrganization, unknown.Organization)
	assert.Equal(t, 1, unknown.Visits)
	assert.Empty(t, unknown.ContentViewed)
}

func TestGetOrganizationActivityOrderingAndLimit(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	at := now.Add(-time.Hour)

	orgs := map[string]int{"Globex": 3, "Initech": 3, "Cloudbase": 1}
	i := 0
	for org, visits := range orgs {
		for v := 0; v < visits; v++ {
			token := org + "-" + string(rune('a'+i))
			i++
			orgName := org
			testsupport.CreateTestSession(t, db, token, func(s *sessions.Session) {
				s.Organization = orgName
			})
			testsupport.CreateTestEvent(t, db, token, events.TypePageView, at)
		}
	}

	activities, err := analytics.GetOrganizationActivity(db, weekWindow(now), 2)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	// Equal visit counts break ties alphabetically.
	assert.Equal(t, "Globex", activities[0].Organization)
	assert.Equal(t, "Initech", activities[1].Organization)
}
