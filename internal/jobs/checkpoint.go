package jobs

import (
	"log/slog"

	"folioscope/internal/database"
)

// CheckpointJob periodically folds the SQLite WAL back into the main
// database file so the WAL does not grow without bound under steady
// ingestion.
type CheckpointJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
}

func NewCheckpointJob(dbManager *database.DBManager, logger *slog.Logger) *CheckpointJob {
	return &CheckpointJob{
		dbManager: dbManager,
		logger:    logger,
	}
}

// Run performs a full WAL checkpoint.
func (j *CheckpointJob) Run() error {
	if err := j.dbManager.CheckpointWAL("FULL"); err != nil {
		j.logger.Warn("WAL checkpoint failed", slog.Any("error", err))
		return err
	}
	j.logger.Debug("WAL checkpoint completed")
	return nil
}
