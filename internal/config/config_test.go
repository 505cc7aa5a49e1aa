package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

store:
  type: "dynamodb"
  dynamodb_table: "campaigner-test"
  aws_region: "us-west-2"

redis:
  addr: "redis:6379"

mailer:
  type: "ses"
  from_name: "Test Sender"
  from_email: "news@example.com"
  batch_size: 25

tracking:
  dedup_backend: "redis"
  dedup_window_minutes: 120
  consumer_workers: 8

import:
  progress_every_rows: 50
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "dynamodb", cfg.Store.Type)
	assert.Equal(t, "campaigner-test", cfg.Store.DynamoDBTable)
	assert.Equal(t, "us-west-2", cfg.Store.AWSRegion)

	assert.Equal(t, "redis:6379", cfg.Redis.Addr)

	assert.Equal(t, "ses", cfg.Mailer.Type)
	assert.Equal(t, 25, cfg.Mailer.BatchSize)

	assert.Equal(t, "redis", cfg.Tracking.DedupBackend)
	assert.Equal(t, 120, cfg.Tracking.DedupWindowMins)
	assert.Equal(t, 8, cfg.Tracking.ConsumerWorkers)
	assert.Equal(t, 50, cfg.Import.ProgressEveryRows)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "log", cfg.Mailer.Type)
	assert.Equal(t, 100, cfg.Mailer.BatchSize)
	assert.Equal(t, "memory", cfg.Tracking.DedupBackend)
	assert.Equal(t, 60, cfg.Tracking.DedupWindowMins)
	assert.Equal(t, 10000, cfg.Tracking.DedupCacheSize)
	assert.Equal(t, 3, cfg.Tracking.MaxUpdateAttempts)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 9000\n"), 0644))

	t.Setenv("PORT", "7777")
	t.Setenv("REDIS_ADDR", "override:6379")
	t.Setenv("DYNAMODB_TABLE", "override-table")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "override:6379", cfg.Redis.Addr)
	assert.Equal(t, "override-table", cfg.Store.DynamoDBTable)
}
