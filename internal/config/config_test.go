package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KB_REDIS_PASSWORD", "s3cret")

	path := writeFile(t, dir, "config.yaml", `
server:
  address: ":9000"
  rate_limit_rps: 5
storage:
  driver: failover
  timeout_ms: 250
database:
  path: `+filepath.Join(dir, "db", "kinderbook.db")+`
redis:
  address: "localhost:6379"
  password: "${KB_REDIS_PASSWORD}"
booking:
  blocked_dates: ["2025-04-18"]
  closed_days: weekends
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, DriverFailover, cfg.Storage.Driver)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, 250*time.Millisecond, cfg.StorageTimeout())
	assert.Equal(t, []string{"2025-04-18"}, cfg.Booking.BlockedDates)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	assert.DirExists(t, filepath.Join(dir, "db"))

	rps, burst := cfg.RateLimit()
	assert.Equal(t, 5.0, rps)
	assert.Equal(t, 20, burst)
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "storage:\n  driver: memory\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "configs/venues.yaml", cfg.Booking.VenuesConfigPath)
	assert.Equal(t, "hours", cfg.Booking.ClosedDays)
	assert.Equal(t, 5*time.Second, cfg.StorageTimeout())
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, 30*time.Second, cfg.CatalogReloadInterval())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 14, cfg.BackupRetentionDays())
	assert.Equal(t, 8090, cfg.Monitoring.HealthCheckPort)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "storage:\n  driver: mongo\n", "unknown storage.driver"},
		{"redis without address", "storage:\n  driver: redis\n", "requires redis.address"},
		{"bad closed days", "storage:\n  driver: memory\nbooking:\n  closed_days: never\n", "booking.closed_days"},
		{"bad level", "storage:\n  driver: memory\nlogging:\n  level: loud\n", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "KB_TEST_DOTENV=from-file\n")
	t.Setenv("KB_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("KB_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("KB_TEST_DOTENV"))
}
