package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8086", cfg.Server.Port)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "database", cfg.MarketData.Source)
	assert.Equal(t, 1000, cfg.Engine.MaxCombinations)
	assert.Equal(t, time.Hour, cfg.Engine.ResultRetention)
	assert.Equal(t, "backtest-execution-events", cfg.Kafka.Topics["executionevents"])
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9000"
database:
  driver: sqlite
  path: /tmp/bt.db
engine:
  workers: 3
  executionTimeout: 5m
storage:
  type: s3
  s3:
    bucket: results
marketData:
  source: parquet
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("BACKTEST_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/bt.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Engine.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Engine.ExecutionTimeout)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "results", cfg.Storage.S3.Bucket)
	assert.Equal(t, "parquet", cfg.MarketData.Source)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
