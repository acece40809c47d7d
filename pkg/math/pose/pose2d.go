// Package pose implements planar rigid transforms for odometry and
// localization state.
package pose

import (
	"math"

	"github.com/golang/geo/r2"
)

// Pose2D is a planar rigid transform (x, y, theta).
// Theta is kept in (-pi, pi].
type Pose2D struct {
	X     float64
	Y     float64
	Theta float64
}

// New creates a pose with the angle normalized to (-pi, pi].
func New(x, y, theta float64) Pose2D {
	return Pose2D{X: x, Y: y, Theta: NormalizeAngle(theta)}
}

// NormalizeAngle wraps an angle to (-pi, pi].
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// Compose returns p * q, the right composition of q onto p.
func (p Pose2D) Compose(q Pose2D) Pose2D {
	sin, cos := math.Sincos(p.Theta)
	return Pose2D{
		X:     p.X + cos*q.X - sin*q.Y,
		Y:     p.Y + sin*q.X + cos*q.Y,
		Theta: NormalizeAngle(p.Theta + q.Theta),
	}
}

// Inverse returns the pose q such that p * q is the identity.
func (p Pose2D) Inverse() Pose2D {
	sin, cos := math.Sincos(p.Theta)
	return Pose2D{
		X:     -(cos*p.X + sin*p.Y),
		Y:     -(-sin*p.X + cos*p.Y),
		Theta: NormalizeAngle(-p.Theta),
	}
}

// Ominus returns the relative transform taking p to q, expressed in the
// frame of p: p.Compose(p.Ominus(q)) == q.
func (p Pose2D) Ominus(q Pose2D) Pose2D {
	return p.Inverse().Compose(q)
}

// Transform maps a point from the frame of p into the world frame.
func (p Pose2D) Transform(pt r2.Point) r2.Point {
	sin, cos := math.Sincos(p.Theta)
	return r2.Point{
		X: p.X + cos*pt.X - sin*pt.Y,
		Y: p.Y + sin*pt.X + cos*pt.Y,
	}
}

// TranslationNorm returns the Euclidean length of the translation part.
func (p Pose2D) TranslationNorm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Vec exposes the pose as a 3-vector state [x, y, theta].
func (p Pose2D) Vec() []float64 {
	return []float64{p.X, p.Y, p.Theta}
}

// FromVec builds a pose from a 3-vector state [x, y, theta].
func FromVec(v []float64) Pose2D {
	return New(v[0], v[1], v[2])
}
