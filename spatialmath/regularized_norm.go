// Package spatialmath defines vector helpers used by the wind estimator.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// RegularizedNorm returns sqrt(|v|^2 + epsilon). For epsilon > 0 it is smooth everywhere,
// including at the zero vector, and approaches v.Norm() once |v|^2 is large relative to epsilon.
func RegularizedNorm(v r3.Vector, epsilon float64) float64 {
	return math.Sqrt(v.Norm2() + epsilon)
}

// RegularizedNormGradient returns the gradient of RegularizedNorm with respect to v,
// v / sqrt(|v|^2 + epsilon). Its magnitude is strictly below 1 for epsilon > 0.
func RegularizedNormGradient(v r3.Vector, epsilon float64) r3.Vector {
	return v.Mul(1 / RegularizedNorm(v, epsilon))
}
