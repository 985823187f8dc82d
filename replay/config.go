package replay

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/windestimator/logging"
	"go.viam.com/windestimator/utils"
	"go.viam.com/windestimator/windestimator"
)

// Config configures a Runner.
type Config struct {
	windestimator.Config
	// RateHz paces samples to at most this many per second. Zero runs unthrottled.
	RateHz float64 `json:"rate_hz,omitempty"`
	// LogLevel is one of debug, info, warn or error. Defaults to info.
	LogLevel logging.Level `json:"log_level,omitempty"`
}

// NewConfig decodes and validates a replay Config from attributes.
func NewConfig(attrs utils.AttributeMap) (*Config, error) {
	var cfg Config
	if err := attrs.Decode(&cfg); err != nil {
		return nil, err
	}
	if !attrs.Has("epsilon") {
		cfg.Epsilon = windestimator.DefaultEpsilon
	}
	if err := cfg.Validate("replay"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg == nil {
		return utils.NewConfigValidationError(path, errors.New("no config found"))
	}
	errs := cfg.Config.Validate(path)
	if cfg.RateHz < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("rate_hz must be non-negative, got %v", cfg.RateHz)))
	}
	if cfg.LogLevel < logging.DEBUG || cfg.LogLevel > logging.ERROR {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("log_level out of range: %d", cfg.LogLevel)))
	}
	return errs
}
