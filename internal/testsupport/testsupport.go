package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"folioscope/internal"
	"folioscope/internal/config"
	"folioscope/internal/events"
	"folioscope/internal/geo"
	"folioscope/internal/sessions"
	"folioscope/internal/settings"
)

// testDBCache caches test databases by root test name so subtests and setup
// helpers sharing the outer *testing.T get the same database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with this module's interface.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns every model the pipeline migrates.
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&sessions.Session{},
		&events.Event{},
		&settings.Setting{},
	}
}

// SetupTestDB creates a migrated test database. It uses a named in-memory
// database with cache=shared so multiple connections within a test see the
// same data, and caches by root test name.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager and logger.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: refuse to run against anything but the test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set FOLIOSCOPE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database.
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}
	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a quiet test logger.
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestSession inserts a session with sensible defaults, applying any
// mutators before the insert.
func CreateTestSession(t *testing.T, db *gorm.DB, token string, mutators ...func(*sessions.Session)) *sessions.Session {
	t.Helper()

	now := time.Now().UTC()
	session := &sessions.Session{
		Token:           token,
		LandingPage:     "/",
		ReferrerSource:  "direct",
		UserAgent:       "Mozilla/5.0 Test Browser",
		DeviceType:      "desktop",
		Browser:         "Chrome",
		OperatingSystem: "macOS",
		IPAddress:       "203.0.113.10",
		Country:         "US",
		CreatedAt:       now,
		LastSeenAt:      now,
	}
	for _, mutate := range mutators {
		mutate(session)
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

// CreateTestEvent inserts an event row directly, bypassing counter updates.
// Use events.Record when the test needs the full ingestion path.
func CreateTestEvent(t *testing.T, db *gorm.DB, token string, eventType events.Type, createdAt time.Time, mutators ...func(*events.Event)) *events.Event {
	t.Helper()

	event := &events.Event{
		SessionToken: token,
		EventType:    eventType,
		PageURL:      "/",
		CreatedAt:    createdAt,
	}
	for _, mutate := range mutators {
		mutate(event)
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

// RecordTestEvent runs the full ingestion path for a minimal event.
func RecordTestEvent(t *testing.T, dbManager cartridge.DBManager, logger *slog.Logger, token string, eventType events.Type) *events.Event {
	t.Helper()

	event, err := events.Record(dbManager, logger, &events.RecordInput{
		SessionToken: token,
		EventType:    eventType,
	})
	require.NoError(t, err)
	return event
}

// CreateMinimalTestApp builds a Fiber app with all routes mounted against the
// given database and a null geo resolver.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv, geo.NullResolver{})
	return srv.App()
}

// SeedExcludedIPs sets the excluded IPs setting and primes its cache. The
// cache is process-global, so it is reset when the test finishes.
func SeedExcludedIPs(t *testing.T, db *gorm.DB, ips string) {
	t.Helper()
	require.NoError(t, settings.SetupDefaultSettings(db))
	require.NoError(t, settings.UpdateSetting(db, settings.KeyExcludedIPs, ips))
	t.Cleanup(settings.ResetCache)
}
