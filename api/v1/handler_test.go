// Package v1_test contains tests for the public API handlers.
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folioscope/internal/events"
	"folioscope/internal/sessions"
	"folioscope/internal/testsupport"
)

func jsonRequest(t *testing.T, method, path string, payload interface{}) *http.Request {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Chrome/126.0")
	req.Header.Set("X-Forwarded-For", "203.0.113.55")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestCreateSessionHandler(t *testing.T) {
	t.Run("creates a session and returns its token", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		app := testsupport.CreateMinimalTestApp(t, db)

		req := jsonRequest(t, "POST", "/x/api/v1/session", map[string]interface{}{
			"landing_page": "/projects",
			"landing_mode": "developer",
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		token, ok := body["session_id"].(string)
		require.True(t, ok)
		require.NotEmpty(t, token)

		session, err := sessions.GetByToken(db, token)
		require.NoError(t, err)
		assert.Equal(t, "/projects", session.LandingPage)
		// Classification filled server-side from the User-Agent header.
		assert.Equal(t, "desktop", session.DeviceType)
		assert.Equal(t, "Chrome", session.Browser)
	})

	t.Run("reuses the client's token", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		app := testsupport.CreateMinimalTestApp(t, db)

		payload := map[string]interface{}{"session_id": "client-token-1"}

		for i := 0; i < 2; i++ {
			resp, err := app.Test(jsonRequest(t, "POST", "/x/api/v1/session", payload), 30000)
			require.NoError(t, err)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)

			body := decodeBody(t, resp)
			assert.Equal(t, "client-token-1", body["session_id"])
		}

		var count int64
		db.Raw("SELECT COUNT(*) FROM sessions WHERE token = ?", "client-token-1").Scan(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("acknowledges excluded IPs without storing", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.SeedExcludedIPs(t, db, "203.0.113.55")
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, err := app.Test(jsonRequest(t, "POST", "/x/api/v1/session", map[string]interface{}{}), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.NotEmpty(t, body["session_id"])

		var count int64
		db.Raw("SELECT COUNT(*) FROM sessions").Scan(&count)
		assert.Equal(t, int64(0), count)
	})
}

func TestPatchSessionHandler(t *testing.T) {
	t.Run("applies deltas and returns 204", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CreateTestSession(t, db, "patch-me")
		app := testsupport.CreateMinimalTestApp(t, db)

		req := jsonRequest(t, "PATCH", "/x/api/v1/session/patch-me", map[string]interface{}{
			"page_views":        2,
			"contact_submitted": true,
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		session, err := sessions.GetByToken(db, "patch-me")
		require.NoError(t, err)
		assert.Equal(t, 2, session.PageViews)
		assert.True(t, session.ContactSubmitted)
	})

	t.Run("returns 404 for unknown tokens", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

		req := jsonRequest(t, "PATCH", "/x/api/v1/session/ghost", map[string]interface{}{
			"page_views": 1,
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "SESSION_NOT_FOUND", body["code"])
	})

	t.Run("rejects negative deltas", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CreateTestSession(t, db, "patch-neg")
		app := testsupport.CreateMinimalTestApp(t, db)

		req := jsonRequest(t, "PATCH", "/x/api/v1/session/patch-neg", map[string]interface{}{
			"page_views": -5,
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCreateEventHandler(t *testing.T) {
	t.Run("records a valid event", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CreateTestSession(t, db, "event-session")
		app := testsupport.CreateMinimalTestApp(t, db)

		req := jsonRequest(t, "POST", "/x/api/v1/events", map[string]interface{}{
			"session_id": "event-session",
			"event_type": "project_view",
			"target_type": "project",
			"target_id":  "chess-engine",
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		session, err := sessions.GetByToken(db, "event-session")
		require.NoError(t, err)
		assert.Equal(t, 1, session.ProjectsViewed)

		var count int64
		db.Raw("SELECT COUNT(*) FROM events WHERE target_id = 'chess-engine'").Scan(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("rejects unknown event types with 400", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CreateTestSession(t, db, "event-badtype")
		app := testsupport.CreateMinimalTestApp(t, db)

		req := jsonRequest(t, "POST", "/x/api/v1/events", map[string]interface{}{
			"session_id": "event-badtype",
			"event_type": "hover",
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "INVALID_EVENT_TYPE", body["code"])

		var count int64
		db.Raw("SELECT COUNT(*) FROM events").Scan(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("returns 404 for unknown sessions", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

		req := jsonRequest(t, "POST", "/x/api/v1/events", map[string]interface{}{
			"session_id": "never-started",
			"event_type": "page_view",
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "SESSION_NOT_FOUND", body["code"])
	})
}

func TestCreateEventBeaconHandler(t *testing.T) {
	t.Run("records the event and returns 202", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CreateTestSession(t, db, "beacon-session")
		app := testsupport.CreateMinimalTestApp(t, db)

		req := jsonRequest(t, "POST", "/x/api/v1/events/beacon", map[string]interface{}{
			"session_id":  "beacon-session",
			"event_type":  "project_view",
			"event_value": 42,
			"target_id":   "rate-limiter",
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var stored events.Event
		require.NoError(t, db.Where("session_token = ?", "beacon-session").First(&stored).Error)
		require.NotNil(t, stored.Value)
		assert.Equal(t, 42, *stored.Value)
	})

	t.Run("still returns 202 when the event is invalid", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		app := testsupport.CreateMinimalTestApp(t, db)

		req := jsonRequest(t, "POST", "/x/api/v1/events/beacon", map[string]interface{}{
			"session_id": "no-such-session",
			"event_type": "bogus",
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var count int64
		db.Raw("SELECT COUNT(*) FROM events").Scan(&count)
		assert.Equal(t, int64(0), count)
	})
}

func TestGetSocialAnalyticsHandler(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CreateTestSession(t, db, "social-session")
	app := testsupport.CreateMinimalTestApp(t, db)

	share := func(platform string) {
		req := jsonRequest(t, "POST", "/x/api/v1/events", map[string]interface{}{
			"session_id":     "social-session",
			"event_type":     "click",
			"event_category": "share",
			"event_label":    platform,
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	share("linkedin")
	share("linkedin")
	share("twitter")

	resp, err := app.Test(jsonRequest(t, "GET", "/x/api/v1/social-analytics", nil), 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(3), body["total_shares"])

	stats, ok := body["platform_stats"].([]interface{})
	require.True(t, ok)
	require.Len(t, stats, 2)

	first := stats[0].(map[string]interface{})
	assert.Equal(t, "linkedin", first["platform"])
	assert.Equal(t, float64(2), first["shares"])
	assert.NotEmpty(t, first["last_share"])
}

func TestGetCollectorAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

	req := httptest.NewRequest("GET", "/y/api/v1/collector.js", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "folioscope")

	// A matching If-None-Match gets a 304 with no body.
	req = httptest.NewRequest("GET", "/y/api/v1/collector.js", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}
