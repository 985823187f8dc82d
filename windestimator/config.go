package windestimator

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/windestimator/utils"
)

// DefaultEpsilon is used when a config does not set one.
const DefaultEpsilon = 1e-3

// Config holds the measurement parameters of the airspeed update.
type Config struct {
	// MeasurementNoise is the airspeed sensor noise variance R, in (m/s)^2.
	MeasurementNoise float64 `json:"measurement_noise"`
	Epsilon          float64 `json:"epsilon,omitempty"`
	// InitialCovariance is a row-major 3x3 covariance used when a caller has none of its own.
	InitialCovariance []float64 `json:"initial_covariance,omitempty"`
}

// NewConfig decodes and validates a Config from attributes, filling in defaults.
func NewConfig(attrs utils.AttributeMap) (*Config, error) {
	var cfg Config
	if err := attrs.Decode(&cfg); err != nil {
		return nil, err
	}
	if !attrs.Has("epsilon") {
		cfg.Epsilon = DefaultEpsilon
	}
	if err := cfg.Validate("estimator"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures all parts of the config are valid. These are the caller-side contract checks
// FuseAirspeed itself never makes.
func (cfg *Config) Validate(path string) error {
	if cfg == nil {
		return utils.NewConfigValidationError(path, errors.New("no config found"))
	}
	var errs error
	if cfg.MeasurementNoise < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("measurement_noise must be non-negative, got %v", cfg.MeasurementNoise)))
	}
	if cfg.Epsilon <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("epsilon must be positive, got %v", cfg.Epsilon)))
	}
	if cfg.InitialCovariance != nil {
		if _, err := cfg.Covariance(); err != nil {
			errs = multierr.Append(errs, utils.NewConfigValidationError(path+".initial_covariance", err))
		}
	}
	return errs
}

// Covariance returns InitialCovariance as a matrix, or nil if unset.
func (cfg *Config) Covariance() (*mat.SymDense, error) {
	if cfg.InitialCovariance == nil {
		return nil, nil
	}
	return CovarianceFromRowMajor(cfg.InitialCovariance)
}

// Fuse runs FuseAirspeed with the configured noise and epsilon.
func (cfg *Config) Fuse(vLocal r3.Vector, state State, p mat.Symmetric, airspeed float64) *Fusion {
	return FuseAirspeed(vLocal, state, p, airspeed, cfg.MeasurementNoise, cfg.Epsilon)
}
