package jobs

import (
	"log/slog"
	"time"

	"folioscope/internal/config"
	"folioscope/internal/database"
	"folioscope/internal/events"
	"folioscope/internal/sessions"
)

// CleanupJob enforces the operator's retention policy. The telemetry
// pipeline itself never deletes rows; this job only runs when the operator
// sets a retention period.
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes sessions and events older than the retention period.
// Retention 0 (the default) disables deletion entirely.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.RetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Retention disabled, skipping cleanup")
		return nil
	}

	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting retention cleanup",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	// Delete in batches to avoid locking the database for too long
	batchSize := 1000

	deletedEvents, err := j.deleteInBatches(batchSize, func() (int64, error) {
		result := db.Where("created_at < ?", cutoffDate).
			Limit(batchSize).
			Delete(&events.Event{})
		return result.RowsAffected, result.Error
	})
	if err != nil {
		j.logger.Error("Failed to delete old events", slog.Any("error", err))
		return err
	}

	// A session goes once it is past retention and all its events are gone.
	deletedSessions, err := j.deleteInBatches(batchSize, func() (int64, error) {
		result := db.Where("last_seen_at < ? AND NOT EXISTS (SELECT 1 FROM events e WHERE e.session_token = sessions.token)", cutoffDate).
			Limit(batchSize).
			Delete(&sessions.Session{})
		return result.RowsAffected, result.Error
	})
	if err != nil {
		j.logger.Error("Failed to delete old sessions", slog.Any("error", err))
		return err
	}

	if deletedEvents > 0 || deletedSessions > 0 {
		j.logger.Info("Retention cleanup finished",
			slog.Int64("deleted_events", deletedEvents),
			slog.Int64("deleted_sessions", deletedSessions),
			slog.Int("retention_days", retentionDays))
	}

	return nil
}

func (j *CleanupJob) deleteInBatches(batchSize int, deleteBatch func() (int64, error)) (int64, error) {
	totalDeleted := int64(0)
	for {
		deleted, err := deleteBatch()
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += deleted
		if deleted < int64(batchSize) {
			break
		}
		// Small delay between batches to prevent database lock contention
		time.Sleep(100 * time.Millisecond)
	}
	return totalDeleted, nil
}
