package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vecserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 1000, cfg.LatencyWindow)
	assert.Equal(t, time.Minute, cfg.QPSWindow)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad(t *testing.T) {
	t.Setenv("VECSERVE_TEST_SECRET", "s3cr3t")

	path := writeConfig(t, `
listen: 127.0.0.1:9000
log:
  level: debug
  format: json
limits:
  memory_bytes: 1073741824
  query_rps: 500
qps_window: 30s
minio:
  endpoint: localhost:9000
  access_key: minioadmin
  secret_key: ${VECSERVE_TEST_SECRET}
preload:
  path: /data/vectors.bin
  ids_path: /data/ids.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, int64(1<<30), cfg.Limits.MemoryBytes)
	assert.Equal(t, int64(1), cfg.Limits.MaxConcurrentLoads, "defaults survive partial files")
	assert.Equal(t, 500.0, cfg.Limits.QueryRPS)
	assert.Equal(t, 30*time.Second, cfg.QPSWindow)
	assert.Equal(t, "s3cr3t", cfg.MinIO.SecretKey)
	assert.Equal(t, "/data/ids.json", cfg.Preload.IDsPath)

	lvl, err := ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "listen: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "log:\n  level: loud\n  format: xml\nlimits:\n  memory_bytes: -1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "memory_bytes")
}

func TestValidate_Preload(t *testing.T) {
	cfg := Default()
	cfg.Preload.IDsPath = "ids.json"
	assert.Error(t, cfg.Validate())
}
