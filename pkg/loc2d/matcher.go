// Package loc2d implements scan-matching localization against a distance
// field: odometry-gated prediction, NLLS alignment of range scans, and
// sampled global relocalization.
package loc2d

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/guorun198959/iris-lama/pkg/math/pose"
	"github.com/guorun198959/iris-lama/pkg/nlls"
	"github.com/guorun198959/iris-lama/pkg/pointcloud"
	"github.com/guorun198959/iris-lama/pkg/sdm"
)

// Matcher is the residual functor aligning a point cloud to the distance
// field. Each residual is the interpolated field distance at the
// transformed point; the Jacobian row chains the field gradient with the
// pose derivatives. The matcher borrows the field and cloud for the
// duration of a solve.
type Matcher struct {
	field *sdm.DistanceMap
	cloud *pointcloud.Cloud
	state [3]float64
}

var _ nlls.Problem = (*Matcher)(nil)

// NewMatcher creates a matcher starting from the given pose estimate.
func NewMatcher(field *sdm.DistanceMap, cloud *pointcloud.Cloud, initial pose.Pose2D) *Matcher {
	return &Matcher{
		field: field,
		cloud: cloud,
		state: [3]float64{initial.X, initial.Y, initial.Theta},
	}
}

// Dims returns the residual and parameter counts.
func (m *Matcher) Dims() (residuals, params int) {
	return m.cloud.Size(), 3
}

// State returns the current pose as a 3-vector.
func (m *Matcher) State() []float64 {
	return []float64{m.state[0], m.state[1], m.state[2]}
}

// SetState replaces the pose 3-vector.
func (m *Matcher) SetState(x []float64) {
	m.state[0], m.state[1] = x[0], x[1]
	m.state[2] = pose.NormalizeAngle(x[2])
}

// Update applies a step in the SE(2) tangent space.
func (m *Matcher) Update(delta []float64) {
	m.state[0] += delta[0]
	m.state[1] += delta[1]
	m.state[2] = pose.NormalizeAngle(m.state[2] + delta[2])
}

// Pose returns the current estimate as a pose.
func (m *Matcher) Pose() pose.Pose2D {
	return pose.New(m.state[0], m.state[1], m.state[2])
}

// Eval fills the residual vector and, when requested, the Jacobian.
// Points landing in unallocated space contribute the saturation distance
// with a zero gradient, leaving them to the robust weight.
func (m *Matcher) Eval(f *mat.VecDense, jac *mat.Dense, withJacobian bool) error {
	sin, cos := math.Sincos(m.state[2])
	tx, ty := m.state[0], m.state[1]

	for i, pt := range m.cloud.Points {
		q := m.cloud.SensorToBody.Apply(pt)
		wx := cos*q.X - sin*q.Y + tx
		wy := sin*q.X + cos*q.Y + ty
		w := r2.Point{X: wx, Y: wy}

		f.SetVec(i, m.field.Distance(w))

		if !withJacobian {
			continue
		}
		gx, gy := m.field.Gradient(w)
		jac.Set(i, 0, gx)
		jac.Set(i, 1, gy)
		jac.Set(i, 2, gx*(-sin*q.X-cos*q.Y)+gy*(cos*q.X-sin*q.Y))
	}
	return nil
}

// SumSquaredResiduals evaluates the cloud at the current state and
// returns the unweighted sum of squared residuals.
func (m *Matcher) SumSquaredResiduals() float64 {
	sin, cos := math.Sincos(m.state[2])
	var sum float64
	for _, pt := range m.cloud.Points {
		q := m.cloud.SensorToBody.Apply(pt)
		w := r2.Point{
			X: cos*q.X - sin*q.Y + m.state[0],
			Y: sin*q.X + cos*q.Y + m.state[1],
		}
		d := m.field.Distance(w)
		sum += d * d
	}
	return sum
}

// RMSE returns the root-mean-square residual at the current state.
func (m *Matcher) RMSE() float64 {
	if m.cloud.Size() == 0 {
		return 0
	}
	return math.Sqrt(m.SumSquaredResiduals() / float64(m.cloud.Size()))
}
