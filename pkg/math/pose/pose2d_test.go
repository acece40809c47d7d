package pose

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"pi stays", math.Pi, math.Pi},
		{"minus pi wraps", -math.Pi, math.Pi},
		{"past pi", math.Pi + 0.5, -math.Pi + 0.5},
		{"two turns", 4*math.Pi + 0.25, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizeAngle(tt.in), 1e-12)
		})
	}
}

func TestComposeInverse(t *testing.T) {
	tests := []struct {
		name string
		p    Pose2D
	}{
		{"identity", New(0, 0, 0)},
		{"translation", New(1.5, -2.25, 0)},
		{"rotation", New(0, 0, 1.1)},
		{"general", New(-3, 0.7, -2.4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.p.Compose(tt.p.Inverse())
			assert.InDelta(t, 0, id.X, 1e-12)
			assert.InDelta(t, 0, id.Y, 1e-12)
			assert.InDelta(t, 0, id.Theta, 1e-12)
		})
	}
}

func TestOminus(t *testing.T) {
	a := New(1, 2, 0.3)
	b := New(-0.5, 4, -1.2)

	delta := a.Ominus(b)
	back := a.Compose(delta)

	assert.InDelta(t, b.X, back.X, 1e-12)
	assert.InDelta(t, b.Y, back.Y, 1e-12)
	assert.InDelta(t, b.Theta, back.Theta, 1e-12)
}

func TestTransform(t *testing.T) {
	p := New(1, 1, math.Pi/2)
	got := p.Transform(r2.Point{X: 1, Y: 0})

	assert.InDelta(t, 1, got.X, 1e-12)
	assert.InDelta(t, 2, got.Y, 1e-12)
}

func TestVecRoundTrip(t *testing.T) {
	p := New(0.25, -1.5, 2.0)
	assert.Equal(t, p, FromVec(p.Vec()))
}
