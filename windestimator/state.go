package windestimator

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// StateDim is the number of elements in the wind estimator state.
const StateDim = 3

// symmetryTolerance bounds |P[i][j] - P[j][i]| for covariances read from outside input.
const symmetryTolerance = 1e-9

// State is the wind estimator's state vector.
type State struct {
	WindNorth   float64 `json:"wind_north"`
	WindEast    float64 `json:"wind_east"`
	ScaleFactor float64 `json:"scale_factor"`
}

// Vector returns the state as a column vector ordered (wind north, wind east, scale factor),
// matching the columns of a Fusion's H.
func (s State) Vector() *mat.VecDense {
	return mat.NewVecDense(StateDim, []float64{s.WindNorth, s.WindEast, s.ScaleFactor})
}

// StateFromSlice builds a State from three values in Vector order.
func StateFromSlice(values []float64) (State, error) {
	if len(values) != StateDim {
		return State{}, errors.Errorf("state needs %d values, got %d", StateDim, len(values))
	}
	return State{WindNorth: values[0], WindEast: values[1], ScaleFactor: values[2]}, nil
}

// NewCovariance returns a diagonal covariance with the given variances.
func NewCovariance(windNorth, windEast, scale float64) *mat.SymDense {
	return mat.NewSymDense(StateDim, []float64{
		windNorth, 0, 0,
		0, windEast, 0,
		0, 0, scale,
	})
}

// CovarianceFromRowMajor builds a covariance from nine row-major values, rejecting input
// that is not symmetric. Positive semi-definiteness is not checked.
func CovarianceFromRowMajor(values []float64) (*mat.SymDense, error) {
	if len(values) != StateDim*StateDim {
		return nil, errors.Errorf("covariance needs %d values, got %d", StateDim*StateDim, len(values))
	}
	for i := 0; i < StateDim; i++ {
		for j := i + 1; j < StateDim; j++ {
			upper, lower := values[i*StateDim+j], values[j*StateDim+i]
			if !scalar.EqualWithinAbsOrRel(upper, lower, symmetryTolerance, symmetryTolerance) {
				return nil, errors.Errorf("covariance is not symmetric at (%d,%d): %v != %v", i, j, upper, lower)
			}
		}
	}
	data := make([]float64, len(values))
	copy(data, values)
	return mat.NewSymDense(StateDim, data), nil
}
