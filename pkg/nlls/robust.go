// Package nlls implements nonlinear least-squares minimization with
// Gauss-Newton and Levenberg-Marquardt strategies over a generic residual
// problem, with robust M-estimator weights applied as IRLS.
package nlls

import "math"

// RobustWeight maps a residual to the IRLS weight applied to its row of
// the normal equations.
type RobustWeight func(r float64) float64

// UnitWeight weighs every residual equally.
func UnitWeight() RobustWeight {
	return func(float64) float64 { return 1 }
}

// CauchyWeight returns the Cauchy M-estimator weight with scale k.
func CauchyWeight(k float64) RobustWeight {
	inv := 1 / (k * k)
	return func(r float64) float64 {
		return 1 / (1 + r*r*inv)
	}
}

// TukeyWeight returns the Tukey biweight with cutoff k. Residuals beyond
// the cutoff get zero weight.
func TukeyWeight(k float64) RobustWeight {
	inv := 1 / (k * k)
	return func(r float64) float64 {
		if math.Abs(r) > k {
			return 0
		}
		t := 1 - r*r*inv
		return t * t
	}
}

// TStudentWeight returns the t-distribution weight with nu degrees of
// freedom.
func TStudentWeight(nu float64) RobustWeight {
	return func(r float64) float64 {
		return (nu + 1) / (nu + r*r)
	}
}
