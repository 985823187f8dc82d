// Package windestimator computes the airspeed measurement update of an extended Kalman filter
// that estimates horizontal wind and an airspeed sensor scale factor.
//
// Every function in this package is pure: it reads its inputs, allocates fresh outputs and
// holds no state between calls. Applying the returned gain to the state and covariance is
// left to the caller's filter loop.
package windestimator

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/windestimator/spatialmath"
)

// Fusion holds the ingredients of one airspeed measurement update.
type Fusion struct {
	// H is the 1x3 measurement Jacobian with respect to (wind north, wind east, scale factor).
	H *mat.VecDense
	// K is the 3x1 Kalman gain.
	K                  *mat.VecDense
	InnovationVariance float64
	Innovation         float64

	RelativeVelocity  r3.Vector
	PredictedAirspeed float64
}

// FuseAirspeed runs one airspeed update against the ground-relative velocity vLocal (north,
// east, down), the current state, and its covariance p. r is the measurement noise variance
// and epsilon regularizes both the speed norm and the innovation variance denominator.
//
// Inputs are not validated; see Config.Validate.
func FuseAirspeed(
	vLocal r3.Vector,
	state State,
	p mat.Symmetric,
	airspeed, r, epsilon float64,
) *Fusion {
	vRel := RelativeVelocity(vLocal, state)
	predicted, _ := PredictAirspeed(vRel, state.ScaleFactor, epsilon)
	h := AirspeedJacobian(vRel, state.ScaleFactor, epsilon)
	k, innovVar := SolveGain(h, p, r, epsilon)

	return &Fusion{
		H:                  h,
		K:                  k,
		InnovationVariance: innovVar,
		Innovation:         airspeed - predicted,
		RelativeVelocity:   vRel,
		PredictedAirspeed:  predicted,
	}
}

// RelativeVelocity subtracts the horizontal wind estimate from the ground velocity. The down
// component is passed through.
func RelativeVelocity(vLocal r3.Vector, state State) r3.Vector {
	return r3.Vector{
		X: vLocal.X - state.WindNorth,
		Y: vLocal.Y - state.WindEast,
		Z: vLocal.Z,
	}
}

// PredictAirspeed returns the airspeed the sensor is expected to read for the relative velocity
// vRel, along with the regularized speed it was scaled from.
func PredictAirspeed(vRel r3.Vector, scaleFactor, epsilon float64) (predicted, speed float64) {
	speed = spatialmath.RegularizedNorm(vRel, epsilon)
	return speed * scaleFactor, speed
}

// AirspeedJacobian returns the partial derivatives of the predicted airspeed with respect to
// wind north, wind east and scale factor. Wind is subtracted from the ground velocity, so the
// wind partials are the negated norm gradient.
func AirspeedJacobian(vRel r3.Vector, scaleFactor, epsilon float64) *mat.VecDense {
	speed := spatialmath.RegularizedNorm(vRel, epsilon)
	grad := spatialmath.RegularizedNormGradient(vRel, epsilon)
	return mat.NewVecDense(StateDim, []float64{
		-scaleFactor * grad.X,
		-scaleFactor * grad.Y,
		speed,
	})
}

// SolveGain returns the Kalman gain P*H' / max(H*P*H' + r, epsilon) and the innovation
// variance H*P*H' + r.
func SolveGain(h mat.Vector, p mat.Symmetric, r, epsilon float64) (*mat.VecDense, float64) {
	innovVar := mat.Inner(h, p, h) + r

	var k mat.VecDense
	k.MulVec(p, h)
	k.ScaleVec(1/math.Max(innovVar, epsilon), &k)
	return &k, innovVar
}
