// Package config loads ouroboros settings: built-in defaults, then an
// optional YAML file, then OUROBOROS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/danielpatrickdp/ouroboros/internal/fractal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "OUROBOROS_"

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "ouroboros.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Ethics modes.
const (
	EthicsIdentity = "identity"
	EthicsProfile  = "profile"
	EthicsRemote   = "remote"
)

// Config contains all ouroboros settings.
type Config struct {
	// Engine controls projection and reporting.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Weights holds the historical and adaptive factor tables.
	Weights WeightsConfig `json:"weights" yaml:"weights"`

	// Initial is the attribute mapping a run starts from.
	Initial map[string]float64 `json:"initial" yaml:"initial"`

	Storage StorageConfig `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Ethics  EthicsConfig  `json:"ethics" yaml:"ethics" envPrefix:"ETHICS_"`
	Logging LoggingConfig `json:"logging" yaml:"logging" envPrefix:"LOG_"`
}

// EngineConfig configures the two stages and reporting.
type EngineConfig struct {
	Iterations    int     `json:"iterations" yaml:"iterations" env:"ITERATIONS"`
	ScalingFactor float64 `json:"scaling_factor" yaml:"scaling_factor" env:"SCALING_FACTOR"`

	// DisplayLimit bounds how many leading cycles are reported.
	DisplayLimit int `json:"display_limit" yaml:"display_limit" env:"DISPLAY_LIMIT"`

	// TuningSpread is the relative jitter bound; 0 disables tuning.
	TuningSpread float64 `json:"tuning_spread" yaml:"tuning_spread" env:"TUNING_SPREAD"`

	// Seed makes tuning reproducible when non-zero.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty" env:"SEED"`
}

// WeightsConfig holds the factor tables.
type WeightsConfig struct {
	Historical map[string]float64 `json:"historical" yaml:"historical"`
	Adaptive   map[string]float64 `json:"adaptive" yaml:"adaptive"`
}

// StorageConfig locates the persistence sinks.
type StorageConfig struct {
	// DBPath is the SQLite version store. Empty disables it.
	DBPath string `json:"db_path" yaml:"db_path" env:"DB_PATH"`

	// FailsafePath is the preferred fail-safe JSON file. When it does not
	// exist at startup DefaultFailsafePath is used instead.
	FailsafePath        string `json:"failsafe_path" yaml:"failsafe_path" env:"FAILSAFE_PATH"`
	DefaultFailsafePath string `json:"default_failsafe_path" yaml:"default_failsafe_path" env:"DEFAULT_FAILSAFE_PATH"`
}

// EthicsConfig selects the ethical-adjustment collaborator.
type EthicsConfig struct {
	// Mode is "identity", "profile" or "remote".
	Mode        string        `json:"mode" yaml:"mode" env:"MODE"`
	ProfilePath string        `json:"profile_path,omitempty" yaml:"profile_path,omitempty" env:"PROFILE"`
	Addr        string        `json:"addr,omitempty" yaml:"addr,omitempty" env:"ADDR"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LEVEL"`
	Format string `json:"format" yaml:"format" env:"FORMAT"`
}

// Default returns a Config carrying the stock empire sample.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Iterations:    5,
			ScalingFactor: 0.75,
			DisplayLimit:  5,
			TuningSpread:  fractal.DefaultSpread,
		},
		Weights: WeightsConfig{
			Historical: map[string]float64{
				"Corruption":           1.5,
				"Military Expansion":   1.2,
				"Economic Stability":   0.9,
				"Technological Growth": 1.3,
				"Moral Cohesion":       1.1,
			},
			Adaptive: map[string]float64{
				"Corruption":           0.8,
				"Military Expansion":   1.1,
				"Economic Stability":   1.0,
				"Technological Growth": 1.4,
				"Moral Cohesion":       1.2,
			},
		},
		Initial: map[string]float64{
			"Corruption":           0.4,
			"Military Expansion":   0.6,
			"Economic Stability":   0.8,
			"Technological Growth": 0.7,
			"Moral Cohesion":       0.9,
		},
		Storage: StorageConfig{
			DBPath:              "ouroboros.db",
			FailsafePath:        "failsafe_config.json",
			DefaultFailsafePath: "default_failsafe.json",
		},
		Ethics: EthicsConfig{
			Mode:    EthicsIdentity,
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the effective configuration. An explicit path must exist;
// with an empty path DefaultFile is read only if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	switch {
	case path != "":
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	default:
		if _, err := os.Stat(DefaultFile); err == nil {
			fileCfg, err := LoadFromFile(DefaultFile)
			if err != nil {
				return nil, err
			}
			cfg = fileCfg
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// yaml.v3 merges into non-nil maps, so tables start empty and only
	// fall back to the sample tables when the file leaves them out.
	defaults := Default()
	cfg := Default()
	cfg.Initial = nil
	cfg.Weights.Historical = nil
	cfg.Weights.Adaptive = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Initial == nil {
		cfg.Initial = defaults.Initial
	}
	if cfg.Weights.Historical == nil {
		cfg.Weights.Historical = defaults.Weights.Historical
	}
	if cfg.Weights.Adaptive == nil {
		cfg.Weights.Adaptive = defaults.Weights.Adaptive
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any OUROBOROS_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Engine.Iterations < 0 {
		return fmt.Errorf("%w: iterations must be non-negative, got %d", ErrInvalid, c.Engine.Iterations)
	}
	if math.IsNaN(c.Engine.ScalingFactor) || math.IsInf(c.Engine.ScalingFactor, 0) {
		return fmt.Errorf("%w: scaling_factor must be finite", ErrInvalid)
	}
	if c.Engine.DisplayLimit < 0 {
		return fmt.Errorf("%w: display_limit must be non-negative, got %d", ErrInvalid, c.Engine.DisplayLimit)
	}
	if c.Engine.TuningSpread < 0 || c.Engine.TuningSpread >= 1 {
		return fmt.Errorf("%w: tuning_spread must be in [0, 1), got %v", ErrInvalid, c.Engine.TuningSpread)
	}

	switch c.Ethics.Mode {
	case "", EthicsIdentity:
	case EthicsProfile:
		if c.Ethics.ProfilePath == "" {
			return fmt.Errorf("%w: ethics mode %q requires profile_path", ErrInvalid, c.Ethics.Mode)
		}
	case EthicsRemote:
		if c.Ethics.Addr == "" {
			return fmt.Errorf("%w: ethics mode %q requires addr", ErrInvalid, c.Ethics.Mode)
		}
	default:
		return fmt.Errorf("%w: invalid ethics mode %q (valid: identity, profile, remote)", ErrInvalid, c.Ethics.Mode)
	}
	if c.Ethics.Timeout < 0 {
		return fmt.Errorf("%w: ethics timeout must be non-negative, got %v", ErrInvalid, c.Ethics.Timeout)
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: invalid log level %q (valid: debug, info, warn, error)", ErrInvalid, c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "console": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("%w: invalid log format %q (valid: console, json)", ErrInvalid, c.Logging.Format)
	}
	return nil
}

// AdjustWeights returns the factor tables as adjustment weights.
func (c *Config) AdjustWeights() adjust.Weights {
	return adjust.Weights{
		Historical: attribute.WeightTable(c.Weights.Historical),
		Adaptive:   attribute.WeightTable(c.Weights.Adaptive),
	}
}

// FractalParams returns the projection parameters.
func (c *Config) FractalParams() fractal.Params {
	return fractal.Params{
		Iterations:    c.Engine.Iterations,
		ScalingFactor: c.Engine.ScalingFactor,
	}
}

// InitialState returns a copy of the configured starting mapping.
func (c *Config) InitialState() attribute.Mapping {
	return attribute.Mapping(c.Initial).Clone()
}

// ResolveFailsafe returns path when it exists, otherwise fallback. The
// second result reports whether the fallback was substituted.
func ResolveFailsafe(path, fallback string) (string, bool) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, false
		}
	}
	return fallback, true
}
