// Package internal wires the telemetry pipeline together.
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"folioscope/internal/config"
	"folioscope/internal/database"
	"folioscope/internal/geo"
	"folioscope/internal/jobs"
)

// Application wraps cartridge.Application with the pipeline's own components.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Resolver  *geo.MaxMindResolver
}

// NewApp builds an application from the process environment.
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig builds an application from the provided config.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Missing MaxMind databases degrade lookups to unknown, never fail boot.
	resolver := geo.NewMaxMindResolver(cfg.GeoDBPath, cfg.ASNDBPath, logger)

	scheduler, err := jobs.NewScheduler(dbManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		RouteMountFunc: func(srv *cartridge.Server) {
			MountAppRoutes(srv, resolver)
		},
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Resolver:    resolver,
	}, nil
}
