package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("DITTO_APP_ID", "app-123")
	t.Setenv("DITTO_PLAYGROUND_TOKEN", "token-abc")
	t.Setenv("DITTO_AUTH_URL", "https://auth.example.test")
	t.Setenv("DITTO_WEBSOCKET_URL", "wss://sync.example.test")
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("PICKSY_STORE__DATA_DIR", filepath.Join(dir, "data"))
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	setCredentials(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Address)
	assert.Equal(t, "app-123", cfg.Store.AppID)
	assert.Equal(t, 50, cfg.Pipeline.BatchSize)
	assert.Equal(t, 64, cfg.Pipeline.QueueCapacity)
	assert.Equal(t, "block", cfg.Pipeline.QueuePolicy)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, int64(2097152), cfg.Pipeline.MaxAttachmentSize)
	assert.Equal(t, 25, cfg.Import.EnqueueBatchSize)
	assert.True(t, filepath.IsAbs(cfg.Store.DataDir))
	assert.DirExists(t, cfg.Store.DataDir)
	assert.False(t, cfg.Store.UsePostgres())
}

func TestLoadMissingCredentials(t *testing.T) {
	isolate(t)
	for _, key := range []string{"DITTO_APP_ID", "DITTO_DATABASE_ID", "DITTO_PLAYGROUND_TOKEN", "DITTO_SHARED_TOKEN", "DITTO_AUTH_URL", "DITTO_WEBSOCKET_URL"} {
		t.Setenv(key, "")
	}

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ElementsMatch(t, []string{"DITTO_APP_ID", "DITTO_PLAYGROUND_TOKEN", "DITTO_AUTH_URL", "DITTO_WEBSOCKET_URL"}, cfgErr.Missing)
}

func TestLoadFallbackEnvNames(t *testing.T) {
	isolate(t)
	setCredentials(t)

	t.Run("fallback used when primary unset", func(t *testing.T) {
		t.Setenv("DITTO_APP_ID", "")
		t.Setenv("DITTO_DATABASE_ID", "db-id")
		t.Setenv("DITTO_PLAYGROUND_TOKEN", "")
		t.Setenv("DITTO_SHARED_TOKEN", "shared")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "db-id", cfg.Store.AppID)
		assert.Equal(t, "shared", cfg.Store.SharedToken)
	})

	t.Run("primary wins over fallback", func(t *testing.T) {
		t.Setenv("DITTO_DATABASE_ID", "db-id")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "app-123", cfg.Store.AppID)
	})
}

func TestLoadFileAndEnvLayers(t *testing.T) {
	dir := isolate(t)
	setCredentials(t)

	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  address: ":7000"
pipeline:
  batch_size: 10
  queue_policy: reject
  timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PICKSY_PIPELINE__BATCH_SIZE", "20")
	t.Setenv("PICKSY_SERVER__CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, 20, cfg.Pipeline.BatchSize, "env overrides file")
	assert.Equal(t, "reject", cfg.Pipeline.QueuePolicy)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.AppID = "a"
	cfg.Store.SharedToken = "b"
	cfg.Store.AuthURL = "c"
	cfg.Store.WebsocketURL = "d"
	cfg.Pipeline.QueuePolicy = "drop"

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "QueuePolicy")
	assert.NotErrorIs(t, err, ErrMissingCredentials)
}
