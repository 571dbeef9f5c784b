// Package config loads condcore runtime settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nathoo/condcore/engine/eval"
)

// Config is the root configuration.
type Config struct {
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Loader     LoaderConfig     `yaml:"loader"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Watch      WatchConfig      `yaml:"watch"`
}

// EvaluationConfig tunes the evaluator.
type EvaluationConfig struct {
	RelativeEpsilon float64 `yaml:"relative_epsilon"`
	AbsoluteEpsilon float64 `yaml:"absolute_epsilon"`
	MaxDepth        int     `yaml:"max_depth"`
	// Parallelism bounds EvaluateAll; zero means unbounded.
	Parallelism int `yaml:"parallelism"`
}

// LoaderConfig controls definition loading.
type LoaderConfig struct {
	// Strict turns dangling references and cycles into load errors.
	Strict bool `yaml:"strict"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
	Listen    string `yaml:"listen"`
}

// WatchConfig configures hot reload and verdict polling.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Schedule string        `yaml:"schedule"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Evaluation: EvaluationConfig{
			RelativeEpsilon: eval.DefaultTolerance.Relative,
			AbsoluteEpsilon: eval.DefaultTolerance.Absolute,
			MaxDepth:        eval.DefaultMaxDepth,
			Parallelism:     8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Namespace: "condcore",
			Listen:    ":9090",
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
			Schedule: "@every 1s",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Evaluation.RelativeEpsilon < 0 {
		errs = append(errs, errors.New("evaluation.relative_epsilon must not be negative"))
	}
	if c.Evaluation.AbsoluteEpsilon < 0 {
		errs = append(errs, errors.New("evaluation.absolute_epsilon must not be negative"))
	}
	if c.Evaluation.MaxDepth < 0 {
		errs = append(errs, errors.New("evaluation.max_depth must not be negative"))
	}
	if c.Evaluation.Parallelism < 0 {
		errs = append(errs, errors.New("evaluation.parallelism must not be negative"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be console or json", c.Logging.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch.debounce must not be negative"))
	}
	return errors.Join(errs...)
}

// Options converts the evaluation settings to evaluator options.
func (e EvaluationConfig) Options() eval.Options {
	return eval.Options{
		Tolerance: &eval.Tolerance{Relative: e.RelativeEpsilon, Absolute: e.AbsoluteEpsilon},
		MaxDepth:  e.MaxDepth,
	}
}
