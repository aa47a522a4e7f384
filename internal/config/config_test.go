package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "libradesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 14, cfg.Loans.GraceDays)
	assert.Equal(t, 1.0, cfg.Loans.FeePerDay)
	assert.Equal(t, config.BackendMemory, cfg.Backend.Kind)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":9000"
backend:
  kind: postgres
  database_url: postgres://localhost/library
  schema: branch_a
  breaker_failures: 3
  breaker_timeout: 10s
loans:
  grace_days: 21
  fee_per_day: 0.5
audit:
  interval: 30s
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, config.BackendPostgres, cfg.Backend.Kind)
	assert.Equal(t, "branch_a", cfg.Backend.Schema)
	assert.Equal(t, 3, cfg.Backend.BreakerFailures)
	assert.Equal(t, 10*time.Second, cfg.Backend.BreakerTimeout)
	assert.Equal(t, 21, cfg.Loans.GraceDays)
	assert.Equal(t, 0.5, cfg.Loans.FeePerDay)
	assert.Equal(t, 30*time.Second, cfg.Audit.Interval)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 120, cfg.RateLimit.PerMinute)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "loans:\n  grace_days: 21\n")
	t.Setenv("PORT", "7000")
	t.Setenv("LIBRADESK_GRACE_DAYS", "7")
	t.Setenv("LIBRADESK_FEE_PER_DAY", "2.5")
	t.Setenv("LIBRADESK_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://db/library")
	t.Setenv("LIBRADESK_AUDIT_INTERVAL", "0s")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, 7, cfg.Loans.GraceDays)
	assert.Equal(t, 2.5, cfg.Loans.FeePerDay)
	assert.Equal(t, "postgres://db/library", cfg.Backend.DatabaseURL)
	assert.Zero(t, cfg.Audit.Interval)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := config.Load(writeFile(t, "loans: [\n"))
		assert.Error(t, err)
	})

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("LIBRADESK_GRACE_DAYS", "two weeks")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "LIBRADESK_GRACE_DAYS")
	})

	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("LIBRADESK_BACKEND", "postgres")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "database_url")
	})
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Kind = "mongo"
	cfg.Loans.GraceDays = -1
	cfg.RateLimit.Burst = 0
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Backend.BreakerTimeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"backend.kind", "grace_days", "burst", "log.level", "log.format", "breaker_timeout"} {
		assert.ErrorContains(t, err, want)
	}
}
