package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/diewo77/go-budgets/internal/config"
	"github.com/diewo77/go-budgets/internal/db"
	"github.com/diewo77/go-budgets/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// App holds the process wide dependencies shared by every command.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *gorm.DB
	registry *prometheus.Registry
	engine   *services.Engine
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.App.SlogLevel()}
	if cfg.App.Dev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// NewApp connects to the database, migrates it and wires the engine.
func NewApp(cfg *config.Config, log *slog.Logger) (*App, error) {
	conn, err := db.Connect(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(conn, *cfg, log); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := services.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	engine := services.New(conn, services.Options{
		Logger:          log,
		Metrics:         metrics,
		LegacyAvailable: cfg.App.LegacyAvailable(),
		AuditLimitMax:   cfg.App.AuditLimitMax,
	})
	return &App{cfg: cfg, log: log, db: conn, registry: registry, engine: engine}, nil
}

// backfill normalises stored line balances when enabled.
func (a *App) backfill(ctx context.Context) error {
	if !a.cfg.App.BackfillAvailable {
		a.log.Info("available backfill disabled, legacy balance formula in use")
		return nil
	}
	n, err := a.engine.Budgets.BackfillAvailable(ctx)
	if err != nil {
		return err
	}
	a.log.Info("available balances normalised", "lines", n)
	return nil
}

// Close releases the database pool.
func (a *App) Close() {
	sqlDB, err := a.db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		a.log.Warn("close database", "error", err)
	}
}
