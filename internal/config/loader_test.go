package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)

	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 64, cfg.Ingest.QueueDepth)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.Equal(t, 1000, cfg.Ingest.MaxJSONRecords)

	assert.Equal(t, "http://localhost:8001", cfg.Enrichment.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Enrichment.Timeout)
	assert.Equal(t, 2, cfg.Enrichment.MaxRetries)
	assert.Equal(t, 5000, cfg.Enrichment.MaxTextLen)

	assert.Equal(t, "data/goconflux.db", cfg.Stores.Relational.Path)
	assert.False(t, cfg.Stores.Analytics.Enabled)
	assert.False(t, cfg.Stores.Search.Enabled)
	assert.Equal(t, "tickets", cfg.Stores.Search.Index)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	body := `
server:
  port: 9191
ingest:
  workers: 2
  chunk_size: 50
stores:
  relational:
    path: /tmp/test.db
  search:
    enabled: true
    url: http://search:9200
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("GOCONFLUX_CONFIG", path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Ingest.Workers)
	assert.Equal(t, 50, cfg.Ingest.ChunkSize)
	assert.Equal(t, "/tmp/test.db", cfg.Stores.Relational.Path)
	assert.True(t, cfg.Stores.Search.Enabled)
	assert.Equal(t, "http://search:9200", cfg.Stores.Search.URL)

	// Untouched keys keep their defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOCONFLUX_PORT", "7070")
	t.Setenv("GOCONFLUX_LOG_LEVEL", "debug")
	t.Setenv("GOCONFLUX_ML_URL", "http://ml.internal:8001")
	t.Setenv("GOCONFLUX_DB_PATH", "/var/lib/goconflux.db")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://ml.internal:8001", cfg.Enrichment.BaseURL)
	assert.Equal(t, "/var/lib/goconflux.db", cfg.Stores.Relational.Path)
}

func TestLoadRuntimeOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(context.Background(), map[string]any{
		"server": map[string]any{"port": 1234},
		"ingest": map[string]any{"workers": 9},
	})
	require.NoError(t, err)

	assert.Equal(t, 1234, cfg.Server.Port)
	assert.Equal(t, 9, cfg.Ingest.Workers)
}

func TestGetConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Same(t, cfg, GetConfig())
}

func TestLoadBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))
	t.Setenv("GOCONFLUX_CONFIG", path)

	_, err := Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
