// Package pointcloud defines the range-sensor observation consumed by the
// scan matcher: an ordered sequence of 3D points together with the rigid
// sensor-to-body transform. Clouds are owned by the caller; the matcher
// borrows them for the duration of a solve.
package pointcloud

import "github.com/golang/geo/r3"

// Transform is a homogeneous 4x4 rigid transform.
// Layout is [row][col]; the bottom row is [0 0 0 1].
type Transform [4][4]float64

// Identity returns the identity transform.
func Identity() Transform {
	var t Transform
	t[0][0], t[1][1], t[2][2], t[3][3] = 1, 1, 1, 1
	return t
}

// Apply maps a point through the transform.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t[0][0]*p.X + t[0][1]*p.Y + t[0][2]*p.Z + t[0][3],
		Y: t[1][0]*p.X + t[1][1]*p.Y + t[1][2]*p.Z + t[1][3],
		Z: t[2][0]*p.X + t[2][1]*p.Y + t[2][2]*p.Z + t[2][3],
	}
}

// Cloud is an ordered sequence of sensor points. For planar use the Z
// component is ignored by consumers.
type Cloud struct {
	Points       []r3.Vector
	SensorToBody Transform
}

// New creates a cloud with an identity sensor-to-body transform.
func New(points ...r3.Vector) *Cloud {
	return &Cloud{Points: points, SensorToBody: Identity()}
}

// Size returns the number of points.
func (c *Cloud) Size() int {
	return len(c.Points)
}

// Empty reports whether the cloud carries no points.
func (c *Cloud) Empty() bool {
	return c == nil || len(c.Points) == 0
}
