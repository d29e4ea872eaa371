// Package seeder generates demo telemetry so a fresh install has a populated
// dashboard to look at. All data goes through the real ingestion path, never
// raw inserts.
package seeder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"

	"folioscope/internal/events"
	"folioscope/internal/sessions"
)

// Seeder drives the demo data generation.
type Seeder struct {
	DBManager    cartridge.DBManager
	Logger       *slog.Logger
	SessionCount int
}

func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, sessionCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionCount <= 0 {
		sessionCount = 200
	}
	return &Seeder{
		DBManager:    dbManager,
		Logger:       logger,
		SessionCount: sessionCount,
	}
}

type visitorProfile struct {
	userAgent  string
	deviceType string
	browser    string
	os         string
	country    string
	ip         string
}

var visitorProfiles = []visitorProfile{
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 Chrome/126.0 Safari/537.36", "desktop", "Chrome", "macOS", "US", "198.51.100.14"},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Edge/126.0", "desktop", "Edge", "Windows", "DE", "203.0.113.52"},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Safari/604.1", "mobile", "Safari", "iOS", "GB", "198.51.100.77"},
	{"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/126.0 Mobile Safari/537.36", "mobile", "Chrome", "Android", "IN", "203.0.113.101"},
	{"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0", "desktop", "Firefox", "Linux", "NL", "198.51.100.201"},
	{"Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Safari/604.1", "tablet", "Safari", "iOS", "FR", "203.0.113.33"},
}

var referrerSources = []string{"direct", "google", "linkedin", "twitter", "other"}

var organizations = []string{
	"", "", "", // most visitors resolve to nothing interesting
	"Acme Talent Partners",
	"Globex Recruiting",
	"Initech",
	"Cloudbase Systems",
}

var projectIDs = []string{
	"distributed-cache",
	"terminal-dashboard",
	"rate-limiter",
	"portfolio-site",
	"chess-engine",
}

var blogPostIDs = []string{
	"why-i-switched-to-go",
	"profiling-sqlite-writes",
	"side-projects-that-stuck",
}

var sharePlatforms = []string{"linkedin", "twitter", "hackernews"}

var modes = []string{"developer", "recruiter"}

// Seed creates demo sessions and events through the ingestion path. Sessions
// are spread over the trailing 90 days so every dashboard period has data.
func (s *Seeder) Seed(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Seeding demo telemetry...", slog.Int("sessions", s.SessionCount))

	for i := 0; i < s.SessionCount; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.seedSession(); err != nil {
			return fmt.Errorf("failed to seed session %d: %w", i, err)
		}
	}

	s.Logger.Info("Seeding completed",
		slog.Int("sessions", s.SessionCount),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Seeder) seedSession() error {
	profile := visitorProfiles[rand.IntN(len(visitorProfiles))]
	mode := modes[rand.IntN(len(modes))]

	session, err := sessions.StartOrResume(s.DBManager, s.Logger, &sessions.StartInput{
		LandingPage:     "/",
		LandingMode:     mode,
		ReferrerSource:  referrerSources[rand.IntN(len(referrerSources))],
		UserAgent:       profile.userAgent,
		DeviceType:      profile.deviceType,
		Browser:         profile.browser,
		OperatingSystem: profile.os,
		IPAddress:       profile.ip,
		Country:         profile.country,
		Organization:    organizations[rand.IntN(len(organizations))],
	})
	if err != nil {
		return err
	}

	// Backdate the session so the demo data covers the whole 90 day window.
	createdAt := time.Now().UTC().Add(-time.Duration(rand.IntN(90*24)) * time.Hour)
	db := s.DBManager.GetConnection()
	if err := db.Exec(
		"UPDATE sessions SET created_at = ?, last_seen_at = ? WHERE token = ?",
		createdAt, createdAt, session.Token,
	).Error; err != nil {
		return err
	}

	cursor := createdAt
	record := func(input *events.RecordInput) error {
		cursor = cursor.Add(time.Duration(10+rand.IntN(120)) * time.Second)
		event, err := events.Record(s.DBManager, s.Logger, input)
		if err != nil {
			return err
		}
		return db.Exec("UPDATE events SET created_at = ? WHERE id = ?", cursor, event.ID).Error
	}

	pageViews := 1 + rand.IntN(4)
	for i := 0; i < pageViews; i++ {
		if err := record(&events.RecordInput{
			SessionToken: session.Token,
			EventType:    events.TypePageView,
			Mode:         mode,
			PageURL:      "/",
		}); err != nil {
			return err
		}
	}

	projectViews := rand.IntN(3)
	for i := 0; i < projectViews; i++ {
		dwell := 20 + rand.IntN(300)
		if err := record(&events.RecordInput{
			SessionToken: session.Token,
			EventType:    events.TypeProjectView,
			Value:        &dwell,
			Mode:         mode,
			TargetType:   "project",
			TargetID:     projectIDs[rand.IntN(len(projectIDs))],
		}); err != nil {
			return err
		}
	}

	if rand.IntN(3) == 0 {
		dwell := 30 + rand.IntN(400)
		if err := record(&events.RecordInput{
			SessionToken: session.Token,
			EventType:    events.TypeBlogView,
			Value:        &dwell,
			Mode:         mode,
			TargetType:   "blog_post",
			TargetID:     blogPostIDs[rand.IntN(len(blogPostIDs))],
		}); err != nil {
			return err
		}
	}

	if rand.IntN(4) == 0 {
		if err := record(&events.RecordInput{
			SessionToken: session.Token,
			EventType:    events.TypeModeSwitch,
			Mode:         modes[rand.IntN(len(modes))],
		}); err != nil {
			return err
		}
	}

	if rand.IntN(8) == 0 {
		if err := record(&events.RecordInput{
			SessionToken: session.Token,
			EventType:    events.TypeCVDownload,
			Mode:         mode,
		}); err != nil {
			return err
		}
	}

	if rand.IntN(10) == 0 {
		if err := record(&events.RecordInput{
			SessionToken: session.Token,
			EventType:    events.TypeContact,
			Label:        "email",
			Mode:         mode,
		}); err != nil {
			return err
		}
	}

	if rand.IntN(6) == 0 {
		if err := record(&events.RecordInput{
			SessionToken: session.Token,
			EventType:    events.TypeClick,
			Category:     events.CategoryShare,
			Label:        sharePlatforms[rand.IntN(len(sharePlatforms))],
			Mode:         mode,
		}); err != nil {
			return err
		}
	}

	return nil
}
