package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reillywatson/flakewatch/internal/cache"
	"github.com/reillywatson/flakewatch/internal/flaky"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flakewatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceStore, cfg.Source)
	assert.Equal(t, flaky.DefaultOptions(), cfg.AnalysisOptions())
	assert.Equal(t, 4, cfg.Analysis.Parallelism)
	assert.Equal(t, cache.BackendNone, cfg.Cache.Backend)
	assert.NotEmpty(t, cfg.Store.Path)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	path := writeConfig(t, `
log_level: debug
log_format: json
source: github
analysis:
  min_runs: 10
  flakiness_threshold: 25
cache:
  backend: memory
  ttl: 30m
github:
  owner: acme
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, SourceGitHub, cfg.Source)
	assert.Equal(t, flaky.Options{MinRuns: 10, TimeRangeDays: 30, FlakinessThreshold: 25}, cfg.AnalysisOptions())
	assert.Equal(t, cache.BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 128, cfg.Cache.MemoryEntries)
	assert.Equal(t, "acme", cfg.GitHub.Owner)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
}

func TestLoad_CircleCI(t *testing.T) {
	t.Setenv("CIRCLECI_TOKEN", "circle_test")
	path := writeConfig(t, `
source: circleci
circleci:
  base_url: https://circleci.example.com/api/v2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SourceCircle, cfg.Source)
	assert.Equal(t, "https://circleci.example.com/api/v2", cfg.CircleCI.BaseURL)
	assert.Equal(t, "circle_test", cfg.CircleCI.Token)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load config")

	_, err = Load(writeConfig(t, "analysis: [1, 2"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"negative", func(c *Config) { c.Analysis.MinRuns = -1 }, "must not be negative"},
		{"threshold above max", func(c *Config) { c.Analysis.FlakinessThreshold = 101 }, "at most 100"},
		{"parallelism", func(c *Config) { c.Analysis.Parallelism = 0 }, "parallelism"},
		{"store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"in memory store", func(c *Config) { c.Store.Path = ""; c.Store.InMemory = true }, ""},
		{"cache backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"cache ttl", func(c *Config) { c.Cache.Backend = cache.BackendFile; c.Cache.TTL = 0 }, "cache.ttl"},
		{"source", func(c *Config) { c.Source = "jenkins" }, "unknown source"},
		{"deploy", func(c *Config) { c.Source = SourceDeploy }, "deploy.gcp_project"},
		{"influx", func(c *Config) { c.Source = SourceInflux; c.Influx.URL = "http://localhost:8086" }, "missing org, bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.errMsg)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Source = "jenkins"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
}
