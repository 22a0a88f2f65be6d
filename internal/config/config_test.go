package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_DRIVER", "DATABASE_DSN", "BACKFILL_AVAILABLE", "AUDIT_LIMIT_MAX", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.False(t, cfg.Database.IsSQLite())
	assert.True(t, cfg.App.BackfillAvailable)
	assert.False(t, cfg.App.LegacyAvailable())
	assert.Equal(t, 1000, cfg.App.AuditLimitMax)
	assert.Equal(t, slog.LevelInfo, cfg.App.SlogLevel())
	assert.Equal(t, "host=localhost port=5432 user=budgets password=budgets123 dbname=budgets sslmode=disable", cfg.Database.DSN())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("BACKFILL_AVAILABLE", "no")
	t.Setenv("MIGRATIONS", "YES")
	t.Setenv("AUDIT_LIMIT_MAX", "50")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_DSN", `"postgres://u:p@db:5432/b"`)

	cfg := Load()

	assert.True(t, cfg.Database.IsSQLite())
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.True(t, cfg.App.LegacyAvailable())
	assert.True(t, cfg.App.Migrations)
	assert.Equal(t, 50, cfg.App.AuditLimitMax)
	assert.Equal(t, slog.LevelDebug, cfg.App.SlogLevel())
	assert.Equal(t, "postgres://u:p@db:5432/b", cfg.Database.DSN())
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SERVER_IDLE_TIMEOUT", "soon")
	assert.Equal(t, 60, Load().Server.IdleTimeout)
}
