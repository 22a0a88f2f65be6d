package db

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/diewo77/go-budgets/internal/config"
	"github.com/diewo77/go-budgets/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 10

var passwordRegex = regexp.MustCompile(`(password=)([^\s]+)`)

// coreTables must exist once the schema is in place.
var coreTables = []string{"entities", "annual_budgets", "budget_lines", "contracts", "purchase_orders", "audit_entries"}

// Connect opens the database selected by cfg, retrying PostgreSQL while it starts.
func Connect(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	if cfg.IsSQLite() {
		log.Info("opening sqlite database", "path", cfg.Path)
		db, err := gorm.Open(sqlite.Open(cfg.Path), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return db, nil
	}

	dsn := NormalizeDSN(cfg.DSN())
	if dsn == "" {
		return nil, errors.New("empty database DSN, check DATABASE_DSN or DB_* settings")
	}
	log.Info("connecting to postgres", "dsn", maskDSN(dsn))

	var db *gorm.DB
	var err error
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gcfg)
		if err == nil {
			break
		}
		log.Warn("database connection failed, retrying", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}
	return db, nil
}

// Migrate brings the schema up to date. SQL migrations are used for PostgreSQL
// when enabled; AutoMigrate is the fallback and the only path for SQLite.
func Migrate(db *gorm.DB, cfg config.Config, log *slog.Logger) error {
	if cfg.App.Migrations && !cfg.Database.IsSQLite() {
		log.Info("running sql migrations")
		if err := RunSQLMigrations(ToURLDSN(NormalizeDSN(cfg.Database.DSN()))); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
	} else if err := AutoMigrate(db); err != nil {
		return err
	}
	for _, table := range coreTables {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

// AutoMigrate applies gorm AutoMigrate on every model.
func AutoMigrate(db *gorm.DB) error {
	for _, m := range models.All() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

func maskDSN(dsn string) string {
	return passwordRegex.ReplaceAllString(dsn, `${1}***`)
}
