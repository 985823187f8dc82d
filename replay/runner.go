// Package replay drives the airspeed update over a recorded stream of samples, one JSON object
// per line, and writes one JSON record per fused sample.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/windestimator/logging"
	"go.viam.com/windestimator/utils"
	"go.viam.com/windestimator/windestimator"
)

const maxLineBytes = 1 << 20

// Summary describes a finished replay.
type Summary struct {
	Samples  int `json:"samples"`
	Failures int `json:"failures"`

	InnovationMean   float64 `json:"innovation_mean"`
	InnovationStdDev float64 `json:"innovation_std_dev"`
	// MeanNIS is the mean normalized innovation squared, innovation^2 / innovation variance.
	MeanNIS float64 `json:"mean_nis"`
}

type fused struct {
	innovation float64
	variance   float64
}

// A Runner replays samples through windestimator.FuseAirspeed.
type Runner struct {
	cfg        *Config
	defaultCov *mat.SymDense
	limiter    *rate.Limiter
	clock      clock.Clock
	logger     logging.Logger
}

// NewRunner returns a Runner for a validated config.
func NewRunner(cfg *Config, logger logging.Logger) (*Runner, error) {
	if err := cfg.Validate("replay"); err != nil {
		return nil, err
	}
	defaultCov, err := cfg.Covariance()
	if err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, defaultCov: defaultCov, clock: clock.New(), logger: logger}
	if cfg.RateHz > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateHz), 1)
	}
	return r, nil
}

// Fuse runs a single sample. Samples whose update overflows are rejected.
func (r *Runner) Fuse(s *Sample) (*Record, error) {
	var p mat.Symmetric
	switch {
	case len(s.Covariance) > 0:
		cov, err := windestimator.CovarianceFromRowMajor(s.Covariance)
		if err != nil {
			return nil, err
		}
		p = cov
	case r.defaultCov != nil:
		p = r.defaultCov
	default:
		return nil, errors.New("sample has no covariance and no initial_covariance is configured")
	}
	fusion := r.cfg.Fuse(s.Velocity, s.State, p, s.Airspeed)
	rec := NewRecord(s.Time, fusion)
	if !rec.finite() {
		return nil, errors.New("sample produced a non-finite update")
	}
	return rec, nil
}

// Run reads samples from in until EOF or ctx is done, writing a Record for each to out. Malformed
// samples are counted and skipped; only read, write and context errors stop the replay.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (*Summary, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	enc := json.NewEncoder(out)

	var (
		results  []fused
		failures errorThrottle
		lineNum  int
	)
	done := func() *Summary {
		return summarize(results, failures.count)
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := r.pace(ctx); err != nil {
			return done(), err
		}

		rec, err := r.fuseLine(line)
		if err != nil {
			if n, ok := failures.record(); ok {
				r.logger.Errorw("skipping sample", "line", lineNum, "error", err, "failures", n)
			}
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return done(), errors.Wrap(err, "error writing record")
		}
		results = append(results, fused{rec.Innovation, rec.InnovationVariance})
		r.logger.Debugw("fused sample", "line", lineNum, "innovation", rec.Innovation,
			"innovation_variance", rec.InnovationVariance)
	}
	if err := scanner.Err(); err != nil {
		return done(), errors.Wrap(err, "error reading samples")
	}
	return done(), nil
}

// pace blocks until the limiter admits the next sample.
func (r *Runner) pace(ctx context.Context) error {
	if r.limiter == nil {
		return ctx.Err()
	}
	now := r.clock.Now()
	reservation := r.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := r.clock.Timer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		reservation.CancelAt(r.clock.Now())
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) fuseLine(line []byte) (*Record, error) {
	sample, err := ParseSample(line)
	if err != nil {
		return nil, err
	}
	return r.Fuse(sample)
}

func summarize(results []fused, failures int) *Summary {
	s := &Summary{Samples: len(results), Failures: failures}
	if len(results) == 0 {
		return s
	}
	innovations := stats.Float64Data(lo.Map(results, func(f fused, _ int) float64 { return f.innovation }))
	nis := stats.Float64Data(lo.FilterMap(results, func(f fused, _ int) (float64, bool) {
		return utils.Square(f.innovation) / f.variance, f.variance > 0
	}))

	// stats only errors on empty input, which is excluded above.
	s.InnovationMean, _ = innovations.Mean()
	s.InnovationStdDev, _ = innovations.StandardDeviation()
	if len(nis) > 0 {
		s.MeanNIS, _ = nis.Mean()
	}
	return s
}

// errorThrottle decides which failures get logged: the first ten, then every fiftieth.
type errorThrottle struct {
	count int
}

func (et *errorThrottle) record() (int, bool) {
	seen := et.count
	et.count++
	return et.count, seen < 10 || seen%50 == 0
}
