// Package config loads flakewatch's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/reillywatson/flakewatch/internal/cache"
	"github.com/reillywatson/flakewatch/internal/flaky"
	"github.com/reillywatson/flakewatch/internal/influx"
	"github.com/reillywatson/flakewatch/internal/logging"
)

// History sources
const (
	SourceStore  = "store"
	SourceGitHub = "github"
	SourceDeploy = "deploy"
	SourceInflux = "influx"
	SourceCircle = "circleci"
)

// Config is the full flakewatch configuration
type Config struct {
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
	Source    string         `yaml:"source"`
	Analysis  AnalysisConfig `yaml:"analysis"`
	Store     StoreConfig    `yaml:"store"`
	Cache     CacheConfig    `yaml:"cache"`
	GitHub    GitHubConfig   `yaml:"github"`
	Deploy    DeployConfig   `yaml:"deploy"`
	Influx    InfluxConfig   `yaml:"influx"`
	CircleCI  CircleCIConfig `yaml:"circleci"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

type AnalysisConfig struct {
	MinRuns            int `yaml:"min_runs"`
	TimeRangeDays      int `yaml:"time_range_days"`
	FlakinessThreshold int `yaml:"flakiness_threshold"`
	Parallelism        int `yaml:"parallelism"`
}

type StoreConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	MemoryEntries int           `yaml:"memory_entries"`
	Dir           string        `yaml:"dir"`
}

type GitHubConfig struct {
	Owner   string `yaml:"owner"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"-"` // GITHUB_TOKEN
}

type DeployConfig struct {
	GCPProject string `yaml:"gcp_project"`
	Region     string `yaml:"region"`
}

type InfluxConfig struct {
	URL         string `yaml:"url"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
	Token       string `yaml:"-"` // INFLUXDB_TOKEN
}

type CircleCIConfig struct {
	// BaseURL overrides the API root for CircleCI server installations
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"-"` // CIRCLECI_TOKEN
}

type MetricsConfig struct {
	// Textfile is a node-exporter textfile collector path written after each command
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: logging.FormatConsole,
		Source:    SourceStore,
		Analysis: AnalysisConfig{
			MinRuns:            flaky.DefaultMinRuns,
			TimeRangeDays:      flaky.DefaultTimeRangeDays,
			FlakinessThreshold: flaky.DefaultFlakinessThreshold,
			Parallelism:        4,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Cache: CacheConfig{
			Backend:       cache.BackendNone,
			TTL:           time.Hour,
			MemoryEntries: 128,
		},
		Influx: InfluxConfig{
			Measurement: influx.DefaultMeasurement,
		},
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".flakewatch", "store")
	}
	return filepath.Join(dir, "flakewatch", "store")
}

// Load reads the YAML file at path over the defaults, adds secrets from the environment and
// validates the result. An empty path loads only the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
		}
	}

	cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	cfg.Influx.Token = os.Getenv("INFLUXDB_TOKEN")
	cfg.CircleCI.Token = os.Getenv("CIRCLECI_TOKEN")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every problem with the configuration at once
func (c *Config) Validate() error {
	var result *multierror.Error

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != logging.FormatConsole && c.LogFormat != logging.FormatJSON {
		result = multierror.Append(result, fmt.Errorf("log_format must be %q or %q", logging.FormatConsole, logging.FormatJSON))
	}

	if c.Analysis.MinRuns < 0 || c.Analysis.TimeRangeDays < 0 || c.Analysis.FlakinessThreshold < 0 {
		result = multierror.Append(result, errors.New("analysis values must not be negative"))
	}
	if c.Analysis.FlakinessThreshold > flaky.MaxScore {
		result = multierror.Append(result, fmt.Errorf("analysis.flakiness_threshold must be at most %d", flaky.MaxScore))
	}
	if c.Analysis.Parallelism < 1 {
		result = multierror.Append(result, errors.New("analysis.parallelism must be at least 1"))
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		result = multierror.Append(result, errors.New("store.path is required unless store.in_memory is set"))
	}

	switch c.Cache.Backend {
	case cache.BackendNone:
	case cache.BackendMemory, cache.BackendFile:
		if c.Cache.TTL <= 0 {
			result = multierror.Append(result, errors.New("cache.ttl must be positive"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}

	switch c.Source {
	case SourceStore, SourceGitHub, SourceCircle:
	case SourceDeploy:
		if c.Deploy.GCPProject == "" || c.Deploy.Region == "" {
			result = multierror.Append(result, errors.New("deploy.gcp_project and deploy.region are required for the deploy source"))
		}
	case SourceInflux:
		if err := c.InfluxClientConfig().Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown source %q", c.Source))
	}

	return result.ErrorOrNil()
}

// AnalysisOptions returns the analysis options for the core analyzer
func (c *Config) AnalysisOptions() flaky.Options {
	return flaky.Options{
		MinRuns:            c.Analysis.MinRuns,
		TimeRangeDays:      c.Analysis.TimeRangeDays,
		FlakinessThreshold: c.Analysis.FlakinessThreshold,
	}
}

// InfluxClientConfig returns the InfluxDB client settings
func (c *Config) InfluxClientConfig() influx.Config {
	return influx.Config{
		URL:         c.Influx.URL,
		Token:       c.Influx.Token,
		Org:         c.Influx.Org,
		Bucket:      c.Influx.Bucket,
		Measurement: c.Influx.Measurement,
	}
}
