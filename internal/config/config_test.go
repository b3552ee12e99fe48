package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "catalog.db", cfg.Storage.SQLitePath)
	assert.Equal(t, IDsStore, cfg.IDs.Driver)
	assert.Equal(t, 128, cfg.Directory.CacheSize)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: blob
  blob:
    driver: s3
    s3_bucket: catalog
    s3_path_style: true
ids:
  driver: redis
  redis_db: 2
logger:
  level: debug
  format: json
timeout: 5s
`)
	t.Setenv("CATALOG_IDS_REDIS_ADDR", "redis:6380")
	t.Setenv("CATALOG_LOGGER_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorageBlob, cfg.Storage.Driver)
	assert.Equal(t, "catalog", cfg.Storage.Blob.S3Bucket)
	assert.True(t, cfg.Storage.Blob.S3PathStyle)
	assert.Equal(t, IDsRedis, cfg.IDs.Driver)
	assert.Equal(t, 2, cfg.IDs.RedisDB)
	assert.Equal(t, "redis:6380", cfg.IDs.RedisAddr)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")

	for name, body := range map[string]string{
		"storage":  "storage:\n  driver: cassandra\n",
		"ids":      "ids:\n  driver: uuid\n",
		"file ids": "ids:\n  driver: file\n",
		"s3":       "storage:\n  driver: blob\n  blob:\n    driver: s3\n",
		"timeout":  "timeout: -1s\n",
	} {
		_, err := Load(writeConfig(t, body))
		require.Error(t, err, name)
	}
}
