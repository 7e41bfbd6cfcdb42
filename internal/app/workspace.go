// Package app opens a workspace: config, database, event log and engine.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"focusline/internal/config"
	"focusline/internal/db"
	"focusline/internal/engine"
	"focusline/internal/events"
	"focusline/internal/kv"
	"focusline/internal/migrate"
	"focusline/internal/notify"
	"focusline/internal/optimize"
)

type Options struct {
	Workspace string
	// OptimizerAPIKey overrides optimizer.api_key from the config file.
	OptimizerAPIKey string
	Logger          hclog.Logger
	// Notifiers receive every notification besides the log and the event table.
	Notifiers []notify.Notifier
}

// Workspace is an opened workspace. Close releases the database.
type Workspace struct {
	Conn   *sql.DB
	Config *config.Config
	Engine engine.Engine
	Events *events.Writer
	Logger hclog.Logger
}

// Open loads focusline.yml (defaults when missing), migrates the database and
// seeds the default lists on first use.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log := &events.Writer{DB: conn, Logger: logger.Named("events")}
	sinks := append([]notify.Notifier{notify.Logger(logger.Named("notify")), log}, opts.Notifiers...)
	e := engine.New(kv.SQLite{DB: conn}, notify.Multi(sinks...), Optimizer(cfg, opts.OptimizerAPIKey, logger), logger)
	if _, err := e.Store.Seed(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed lists: %w", err)
	}
	return &Workspace{Conn: conn, Config: cfg, Engine: e, Events: log, Logger: logger}, nil
}

func (w *Workspace) Close() error {
	return w.Conn.Close()
}

// Optimizer returns nil when the optimizer is disabled.
func Optimizer(cfg *config.Config, apiKey string, logger hclog.Logger) *optimize.Requestor {
	if !cfg.Optimizer.Enabled {
		return nil
	}
	client := optimize.NewClient(cfg.Optimizer.Endpoint)
	client.Timeout = cfg.Optimizer.Timeout
	client.HTTPClient.Timeout = cfg.Optimizer.Timeout
	client.APIKey = cfg.Optimizer.APIKey
	if apiKey != "" {
		client.APIKey = apiKey
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return optimize.NewRequestor(client, logger.Named("optimize"))
}

// Defaults is the optimization context from the session section.
func (w *Workspace) Defaults() optimize.Context {
	return optimize.Context{EnergyLevel: w.Config.Session.EnergyLevel, SessionLength: w.Config.Session.SessionLength}
}
