package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/orchestrator"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// Config is the conductor configuration file.
type Config struct {
	Orchestrator orchestrator.Config         `json:"orchestrator" yaml:"orchestrator"`
	Logging      logger.LoggingConfig        `json:"logging" yaml:"logging"`
	Metrics      observability.MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing      observability.TracingConfig `json:"tracing" yaml:"tracing"`
	Diagnostics  DiagnosticsConfig           `json:"diagnostics" yaml:"diagnostics"`
}

// DiagnosticsConfig configures the HTTP diagnostics server.
type DiagnosticsConfig struct {
	Address         string        `json:"address" yaml:"address"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Orchestrator: orchestrator.DefaultConfig(),
		Logging: logger.LoggingConfig{
			Level:       "info",
			Format:      "console",
			Environment: "development",
			Output:      "stderr",
		},
		Metrics: observability.MetricsConfig{
			Enabled:   true,
			Namespace: "conductor",
		},
		Tracing: observability.TracingConfig{
			ServiceName: "conductor",
			SampleRate:  1,
		},
		Diagnostics: DiagnosticsConfig{
			Address:         ":8085",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Config{}, errors.ErrConfiguration(fmt.Sprintf("failed to load config from %q", path), err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return Config{}, errors.ErrConfiguration(fmt.Sprintf("failed to parse config from %q", path), err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects values the orchestrator cannot run with.
func (c Config) Validate() error {
	o := c.Orchestrator

	switch {
	case o.MaxConcurrency < 0:
		return errors.ErrConfiguration("orchestrator.max_concurrency must not be negative", nil)
	case o.InitTimeout < 0, o.ShutdownTimeout < 0, o.HealthCheckTimeout < 0:
		return errors.ErrConfiguration("orchestrator timeouts must not be negative", nil)
	case o.EventBuffer < 0:
		return errors.ErrConfiguration("orchestrator.event_buffer must not be negative", nil)
	case c.Tracing.Enabled && c.Tracing.Endpoint == "":
		return errors.ErrConfiguration("tracing.endpoint is required when tracing is enabled", nil)
	case c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1:
		return errors.ErrConfiguration("tracing.sample_rate must be between 0 and 1", nil)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return errors.ErrConfiguration("unknown logging.level "+c.Logging.Level, nil)
	}

	return nil
}
