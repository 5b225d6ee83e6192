package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCWATCH_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api/v1", cfg.ServerURL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.PollBackgroundInterval)
	assert.Equal(t, 3, cfg.PollMaxFailures)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, ":8585", cfg.ListenAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.Persist)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DOCWATCH_CONFIG", "")
	t.Setenv("DOCWATCH_SERVER_URL", "https://api.example.com/v1")
	t.Setenv("DOCWATCH_POLL_INTERVAL", "2s")
	t.Setenv("DOCWATCH_POLL_MAX_FAILURES", "5")
	t.Setenv("DOCWATCH_POLL_RATE_LIMIT", "2.5")
	t.Setenv("DOCWATCH_KNOWN_OWNERS", "bot-1, bot-2,,")
	t.Setenv("DOCWATCH_LOG_LEVEL", "debug")
	t.Setenv("DOCWATCH_PERSIST", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", cfg.ServerURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.PollMaxFailures)
	assert.Equal(t, 2.5, cfg.PollRateLimit)
	assert.Equal(t, []string{"bot-1", "bot-2"}, cfg.KnownOwners)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.Persist)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: http://file.example/api
poll_interval: 10s
poll_background_interval: 1m
default_owner: bot-file
known_owners: [bot-file, bot-other]
`), 0o600))

	t.Setenv("DOCWATCH_CONFIG", path)
	t.Setenv("DOCWATCH_DEFAULT_OWNER", "bot-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://file.example/api", cfg.ServerURL)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.PollBackgroundInterval)
	assert.Equal(t, "bot-env", cfg.DefaultOwner, "env wins over file")
	assert.Equal(t, []string{"bot-file", "bot-other"}, cfg.KnownOwners)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("DOCWATCH_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("DOCWATCH_CONFIG", "")
		t.Setenv("DOCWATCH_POLL_INTERVAL", "soon")
		_, err := Load()
		assert.ErrorContains(t, err, "DOCWATCH_POLL_INTERVAL")
	})
	t.Run("background shorter than foreground", func(t *testing.T) {
		t.Setenv("DOCWATCH_CONFIG", "")
		t.Setenv("DOCWATCH_POLL_INTERVAL", "1m")
		t.Setenv("DOCWATCH_POLL_BACKGROUND_INTERVAL", "10s")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadPersistFlag(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "t"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("DOCWATCH_CONFIG", "")
			t.Setenv("DOCWATCH_PERSIST", v)
			cfg, err := Load()
			require.NoError(t, err)
			assert.True(t, cfg.Persist)
		})
	}

	t.Run("false overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docwatch.yaml")
		require.NoError(t, os.WriteFile(path, []byte("persist: true\n"), 0o600))
		t.Setenv("DOCWATCH_CONFIG", path)
		t.Setenv("DOCWATCH_PERSIST", "0")
		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.Persist)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("DOCWATCH_CONFIG", "")
		t.Setenv("DOCWATCH_PERSIST", "yes please")
		_, err := Load()
		assert.ErrorContains(t, err, "DOCWATCH_PERSIST")
	})
}

func TestAsyncUploadEnabledReadsEachCall(t *testing.T) {
	t.Setenv("DOCWATCH_ASYNC_UPLOAD", "")
	assert.True(t, AsyncUploadEnabled())

	t.Setenv("DOCWATCH_ASYNC_UPLOAD", "false")
	assert.False(t, AsyncUploadEnabled())

	t.Setenv("DOCWATCH_ASYNC_UPLOAD", "TRUE")
	assert.True(t, AsyncUploadEnabled())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("job completed", "job_id", "job-1")

	assert.Contains(t, stderr.String(), "job_id=job-1")
	assert.NotContains(t, stderr.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "job completed", entry["msg"])
	assert.Equal(t, "job-1", entry["job_id"])
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docwatch.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
