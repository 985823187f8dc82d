// Package cli contains the windest command line tool.
package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/windestimator/logging"
	"go.viam.com/windestimator/replay"
	"go.viam.com/windestimator/utils"
	"go.viam.com/windestimator/windestimator"
)

const (
	// Flags.
	generalFlagConfig   = "config"
	generalFlagDebug    = "debug"
	generalFlagLogLevel = "log-level"

	fuseFlagVelocity   = "velocity"
	fuseFlagState      = "state"
	fuseFlagCovariance = "covariance"
	fuseFlagAirspeed   = "airspeed"
	fuseFlagNoise      = "noise"
	fuseFlagEpsilon    = "epsilon"

	replayFlagInput  = "input"
	replayFlagOutput = "output"
	replayFlagRate   = "rate"

	schemaFlagRecord = "record"
)

var measurementFlags = []cli.Flag{
	&cli.Float64Flag{
		Name:  fuseFlagNoise,
		Usage: "airspeed measurement noise variance R, overrides measurement_noise from the config",
	},
	&cli.Float64Flag{
		Name:  fuseFlagEpsilon,
		Usage: "regularization epsilon, overrides epsilon from the config",
	},
}

var app = &cli.App{
	Name:            "windest",
	Usage:           "evaluate the airspeed wind estimator update",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging, same as --log-level debug",
		},
		&cli.StringFlag{
			Name:  generalFlagLogLevel,
			Usage: "one of debug, info, warn or error, overrides log_level from the config",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "fuse",
			Usage:     "compute one airspeed update and print it as JSON",
			UsageText: "windest fuse --velocity 15,0,0 --state 0,0,1 --covariance 1,1,0.1 --airspeed 15",
			Flags: append([]cli.Flag{
				&cli.Float64SliceFlag{
					Name:     fuseFlagVelocity,
					Required: true,
					Usage:    "ground velocity as north,east,down in m/s",
				},
				&cli.Float64SliceFlag{
					Name:     fuseFlagState,
					Required: true,
					Usage:    "state as wind_north,wind_east,scale_factor",
				},
				&cli.Float64SliceFlag{
					Name:  fuseFlagCovariance,
					Usage: "state covariance as 3 diagonal or 9 row-major values, defaults to initial_covariance from the config",
				},
				&cli.Float64Flag{
					Name:     fuseFlagAirspeed,
					Required: true,
					Usage:    "true airspeed reading in m/s",
				},
			}, measurementFlags...),
			Action: FuseAction,
		},
		{
			Name:  "replay",
			Usage: "fuse a JSON-lines sample stream, one record per line out",
			Flags: append([]cli.Flag{
				&cli.PathFlag{
					Name:  replayFlagInput,
					Usage: "samples `FILE`, defaults to stdin",
				},
				&cli.PathFlag{
					Name:  replayFlagOutput,
					Usage: "records `FILE`, defaults to stdout",
				},
				&cli.Float64Flag{
					Name:  replayFlagRate,
					Usage: "maximum samples per second, overrides rate_hz from the config",
				},
			}, measurementFlags...),
			Action: ReplayAction,
		},
		{
			Name:  "schema",
			Usage: "print the JSON schema of a replay input line, or of an output line with --record",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  schemaFlagRecord,
					Usage: "describe output records instead of input samples",
				},
			},
			Action: SchemaAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}

// newLogger logs to the app's ErrWriter so that stdout only carries results.
func newLogger(c *cli.Context, cfg *replay.Config) logging.Logger {
	logger := logging.NewBlankLogger("windest")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	logger.SetLevel(cfg.LogLevel)
	if c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	return logger
}

// loadConfig reads the --config file, if any, and applies command flag overrides.
func loadConfig(c *cli.Context) (*replay.Config, error) {
	attrs := utils.AttributeMap{}
	if path := c.String(generalFlagConfig); path != "" {
		var err error
		if attrs, err = utils.ReadAttributeMapFile(path); err != nil {
			return nil, err
		}
		if attrs == nil {
			attrs = utils.AttributeMap{}
		}
	}
	if c.IsSet(fuseFlagNoise) {
		attrs["measurement_noise"] = c.Float64(fuseFlagNoise)
	}
	if c.IsSet(fuseFlagEpsilon) {
		attrs["epsilon"] = c.Float64(fuseFlagEpsilon)
	}
	if c.IsSet(generalFlagLogLevel) {
		attrs["log_level"] = c.String(generalFlagLogLevel)
	}
	if c.IsSet(replayFlagRate) {
		attrs["rate_hz"] = c.Float64(replayFlagRate)
	}
	return replay.NewConfig(attrs)
}

// FuseAction is the corresponding action for 'fuse'.
func FuseAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	velocity := c.Float64Slice(fuseFlagVelocity)
	if len(velocity) != 3 {
		return errors.Errorf("--%s needs 3 values, got %d", fuseFlagVelocity, len(velocity))
	}
	state, err := windestimator.StateFromSlice(c.Float64Slice(fuseFlagState))
	if err != nil {
		return errors.Wrapf(err, "invalid --%s", fuseFlagState)
	}
	p, err := covarianceFromFlag(c.Float64Slice(fuseFlagCovariance), &cfg.Config)
	if err != nil {
		return errors.Wrapf(err, "invalid --%s", fuseFlagCovariance)
	}

	vLocal := r3.Vector{X: velocity[0], Y: velocity[1], Z: velocity[2]}
	fusion := cfg.Fuse(vLocal, state, p, c.Float64(fuseFlagAirspeed))
	newLogger(c, cfg).Debugw("fused", "relative_velocity", fusion.RelativeVelocity, "predicted_airspeed", fusion.PredictedAirspeed)

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(replay.NewRecord(nil, fusion))
}

func covarianceFromFlag(values []float64, cfg *windestimator.Config) (*mat.SymDense, error) {
	switch len(values) {
	case 0:
		p, err := cfg.Covariance()
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errors.New("no covariance given and no initial_covariance configured")
		}
		return p, nil
	case windestimator.StateDim:
		return windestimator.NewCovariance(values[0], values[1], values[2]), nil
	default:
		return windestimator.CovarianceFromRowMajor(values)
	}
}

// ReplayAction is the corresponding action for 'replay'.
func ReplayAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg)
	runner, err := replay.NewRunner(cfg, logger.Sublogger("replay"))
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if path := c.Path(replayFlagInput); path != "" {
		//nolint:gosec
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "error opening input")
		}
		defer utils.UncheckedErrorFunc(f.Close)
		in = f
	}

	var out io.Writer = c.App.Writer
	var outFile *os.File
	if path := c.Path(replayFlagOutput); path != "" {
		//nolint:gosec
		if outFile, err = os.Create(path); err != nil {
			return errors.Wrap(err, "error creating output")
		}
		out = outFile
	}

	summary, err := runner.Run(c.Context, in, out)
	if summary != nil {
		logger.Infow("replay finished",
			"samples", summary.Samples,
			"failures", summary.Failures,
			"innovation_mean", summary.InnovationMean,
			"innovation_std_dev", summary.InnovationStdDev,
			"mean_nis", summary.MeanNIS)
	}
	if outFile != nil {
		err = multierr.Combine(err, outFile.Close())
	}
	return err
}

// SchemaAction is the corresponding action for 'schema'.
func SchemaAction(c *cli.Context) error {
	schema := replay.SampleSchema()
	if c.Bool(schemaFlagRecord) {
		schema = replay.RecordSchema()
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(schema)
}
