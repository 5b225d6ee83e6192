// Package config loads docwatch settings from the environment and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Ingestion API
	ServerURL      string        `yaml:"server_url"`
	APIToken       string        `yaml:"api_token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Polling
	PollInterval           time.Duration `yaml:"poll_interval"`
	PollBackgroundInterval time.Duration `yaml:"poll_background_interval"`
	PollMaxFailures        int           `yaml:"poll_max_failures"`
	PollMaxBackoff         time.Duration `yaml:"poll_max_backoff"`
	PollRateLimit          float64       `yaml:"poll_rate_limit"`
	ResyncInterval         time.Duration `yaml:"resync_interval"`

	// Owner selection
	DefaultOwner string   `yaml:"default_owner"`
	KnownOwners  []string `yaml:"known_owners"`

	// Host bridge
	ListenAddr string `yaml:"listen_addr"`

	// SurrealDB persistence (optional)
	Persist            bool   `yaml:"persist"`
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Logging
	LogFile     string     `yaml:"log_file"`
	LogLevelRaw string     `yaml:"log_level"`
	LogLevel    slog.Level `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ServerURL:              "http://localhost:8000/api/v1",
		RequestTimeout:         30 * time.Second,
		PollInterval:           5 * time.Second,
		PollBackgroundInterval: 30 * time.Second,
		PollMaxFailures:        3,
		PollMaxBackoff:         2 * time.Minute,
		ListenAddr:             ":8585",
		SurrealDBURL:           "ws://localhost:8000/rpc",
		SurrealDBNamespace:     "docwatch",
		SurrealDBDatabase:      "jobs",
		SurrealDBUser:          "root",
		SurrealDBPass:          "root",
		SurrealDBAuthLevel:     "root",
		LogFile:                "/tmp/docwatch.log",
		LogLevelRaw:            "INFO",
		LogLevel:               slog.LevelInfo,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// DOCWATCH_CONFIG (if set), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DOCWATCH_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	c.ServerURL = getEnv("DOCWATCH_SERVER_URL", c.ServerURL)
	c.APIToken = getEnv("DOCWATCH_API_TOKEN", c.APIToken)
	c.DefaultOwner = getEnv("DOCWATCH_DEFAULT_OWNER", c.DefaultOwner)
	c.ListenAddr = getEnv("DOCWATCH_LISTEN_ADDR", c.ListenAddr)
	c.LogFile = getEnv("DOCWATCH_LOG_FILE", c.LogFile)
	c.LogLevelRaw = getEnv("DOCWATCH_LOG_LEVEL", c.LogLevelRaw)

	if v := os.Getenv("DOCWATCH_KNOWN_OWNERS"); v != "" {
		c.KnownOwners = splitList(v)
	}

	c.SurrealDBURL = getEnv("SURREALDB_URL", c.SurrealDBURL)
	c.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", c.SurrealDBNamespace)
	c.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", c.SurrealDBDatabase)
	c.SurrealDBUser = getEnv("SURREALDB_USER", c.SurrealDBUser)
	c.SurrealDBPass = getEnv("SURREALDB_PASS", c.SurrealDBPass)
	c.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", c.SurrealDBAuthLevel)
	if v := os.Getenv("DOCWATCH_PERSIST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOCWATCH_PERSIST: %w", err)
		}
		c.Persist = b
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DOCWATCH_REQUEST_TIMEOUT", &c.RequestTimeout},
		{"DOCWATCH_POLL_INTERVAL", &c.PollInterval},
		{"DOCWATCH_POLL_BACKGROUND_INTERVAL", &c.PollBackgroundInterval},
		{"DOCWATCH_POLL_MAX_BACKOFF", &c.PollMaxBackoff},
		{"DOCWATCH_RESYNC_INTERVAL", &c.ResyncInterval},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("DOCWATCH_POLL_MAX_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCWATCH_POLL_MAX_FAILURES: %w", err)
		}
		c.PollMaxFailures = n
	}
	if v := os.Getenv("DOCWATCH_POLL_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DOCWATCH_POLL_RATE_LIMIT: %w", err)
		}
		c.PollRateLimit = f
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.ServerURL == "":
		return fmt.Errorf("server url is required")
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	case c.PollBackgroundInterval < c.PollInterval:
		return fmt.Errorf("background poll interval %s is shorter than foreground %s", c.PollBackgroundInterval, c.PollInterval)
	case c.PollMaxFailures < 1:
		return fmt.Errorf("poll max failures must be at least 1, got %d", c.PollMaxFailures)
	case c.PollRateLimit < 0:
		return fmt.Errorf("poll rate limit must not be negative")
	case c.ResyncInterval < 0:
		return fmt.Errorf("resync interval must not be negative")
	}
	return nil
}

// AsyncUploadEnabled reports whether uploads use the async pipeline.
// It reads DOCWATCH_ASYNC_UPLOAD on every call so the switch can change at runtime.
func AsyncUploadEnabled() bool {
	return !strings.EqualFold(getEnv("DOCWATCH_ASYNC_UPLOAD", "true"), "false")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
