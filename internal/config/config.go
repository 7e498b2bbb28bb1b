// Package config loads cohort's layered YAML configuration.
//
// Layers, lowest precedence first: built-in defaults, the global file
// (~/.cohort/config.yaml or $COHORT_HOME/config.yaml, or the file named by
// --config / COHORT_CONFIG), the project overlay ./.cohort/config.yaml, and
// COHORT_* environment variables. CLI flags are applied by the caller on top.
//
// The resolved Config is passed explicitly to the components that need it; the
// aggregation engine never reads configuration on its own.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rshade/cohort/internal/engine"
	"github.com/rshade/cohort/internal/engine/batch"
	"github.com/rshade/cohort/internal/logging"
	"github.com/rshade/cohort/internal/record"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// maxPrecision caps the number of decimals rendered for averages.
const maxPrecision = 10

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full cohort configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Source  SourceConfig  `yaml:"source"`
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
	Output  OutputConfig  `yaml:"output"`
	Cache   CacheConfig   `yaml:"cache"`
}

// EngineConfig controls how averages are computed.
type EngineConfig struct {
	BatchSize   int    `yaml:"batch_size"`
	Workers     int    `yaml:"workers"`
	MaxInFlight int    `yaml:"max_in_flight"`
	Mode        string `yaml:"mode"`
	Measure     string `yaml:"measure"`
}

// SourceConfig locates the records to aggregate.
type SourceConfig struct {
	URI            string        `yaml:"uri"`
	Table          string        `yaml:"table"`
	MaxConns       int32         `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
	Caller bool   `yaml:"caller"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// OutputConfig controls CLI rendering.
type OutputConfig struct {
	Format    string `yaml:"format"`
	Precision int    `yaml:"precision"`
}

// CacheConfig controls on-disk snapshots of database record sets.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Engine: EngineConfig{
			BatchSize:   batch.DefaultBatchSize,
			MaxInFlight: engine.DefaultMaxInFlight,
			Mode:        string(engine.ModeParallel),
			Measure:     record.DefaultMeasure,
		},
		Source: SourceConfig{
			Table:          "patients",
			MaxConns:       4,
			ConnectTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Output: OutputConfig{
			Format:    FormatTable,
			Precision: 2,
		},
		Cache: CacheConfig{
			TTL: time.Hour,
		},
	}
}

// Validate checks every section and returns an error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error

	if err := batch.ValidateSize(c.Engine.BatchSize); err != nil {
		errs = append(errs, fmt.Errorf("engine.batch_size: %w", err))
	}
	if c.Engine.Workers < 0 {
		errs = append(errs, fmt.Errorf("engine.workers must be >= 0, got %d", c.Engine.Workers))
	}
	if c.Engine.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("engine.max_in_flight must be >= 0, got %d", c.Engine.MaxInFlight))
	}
	if _, err := engine.ParseMode(c.Engine.Mode); err != nil {
		errs = append(errs, fmt.Errorf("engine.mode: %w", err))
	}
	if c.Engine.Measure == "" {
		errs = append(errs, errors.New("engine.measure cannot be empty"))
	}
	if c.Source.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("source.max_conns must be >= 0, got %d", c.Source.MaxConns))
	}
	if !slices.Contains([]string{logging.FormatConsole, logging.FormatJSON}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	if !slices.Contains([]string{FormatTable, FormatJSON, FormatYAML}, c.Output.Format) {
		errs = append(errs, fmt.Errorf("output.format must be table, json or yaml, got %q", c.Output.Format))
	}
	if c.Output.Precision < 0 || c.Output.Precision > maxPrecision {
		errs = append(errs, fmt.Errorf("output.precision must be between 0 and %d, got %d",
			maxPrecision, c.Output.Precision))
	}

	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be >= 0, got %s", c.Cache.TTL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Save writes c as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}
