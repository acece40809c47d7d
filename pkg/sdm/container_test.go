package sdm

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainerValidation(t *testing.T) {
	tests := []struct {
		name       string
		resolution float64
		patchSize  int
		wantErr    bool
	}{
		{"ok", 0.05, 32, false},
		{"zero resolution", 0, 32, true},
		{"negative resolution", -1, 32, true},
		{"zero patch", 0.05, 0, true},
		{"negative patch", 0.05, -8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewContainer[int32](tt.resolution, tt.patchSize)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.resolution, c.Resolution())
			assert.Equal(t, tt.patchSize, c.PatchSize())
		})
	}
}

func TestAddressingBijection(t *testing.T) {
	c, err := NewContainer[int32](0.05, 32)
	require.NoError(t, err)

	for x := int32(-70); x <= 70; x += 7 {
		for y := int32(-70); y <= 70; y += 11 {
			ci := CellIndex{X: x, Y: y}
			assert.Equal(t, ci, c.WorldToCell(c.CellToWorld(ci)))
		}
	}
}

func TestLazyAllocation(t *testing.T) {
	c, err := NewContainer[int32](1.0, 8)
	require.NoError(t, err)

	assert.Equal(t, 0, c.PatchCount())
	assert.Equal(t, int32(0), c.Get(CellIndex{X: 3, Y: 5}))
	assert.Equal(t, 0, c.PatchCount(), "reads must not allocate")

	*c.GetMut(CellIndex{X: 3, Y: 5}) = 42
	assert.Equal(t, 1, c.PatchCount())
	assert.Equal(t, int32(42), c.Get(CellIndex{X: 3, Y: 5}))

	// Same patch, no new allocation.
	*c.GetMut(CellIndex{X: 0, Y: 0}) = 7
	assert.Equal(t, 1, c.PatchCount())

	// Negative quadrant lands in a different patch.
	*c.GetMut(CellIndex{X: -1, Y: -1}) = 9
	assert.Equal(t, 2, c.PatchCount())
	assert.Equal(t, int32(9), c.Get(CellIndex{X: -1, Y: -1}))
	assert.Equal(t, int32(42), c.Get(CellIndex{X: 3, Y: 5}))
}

func TestNegativeCellAddressing(t *testing.T) {
	c, err := NewContainer[int64](1.0, 4)
	require.NoError(t, err)

	// Neighbouring cells across the origin must not alias.
	cells := []CellIndex{{-1, -1}, {0, -1}, {-1, 0}, {0, 0}, {-4, -4}, {-5, -5}}
	for i, ci := range cells {
		*c.GetMut(ci) = int64(i + 1)
	}
	for i, ci := range cells {
		assert.Equal(t, int64(i+1), c.Get(ci), "cell %+v", ci)
	}
}

func TestVisitAndBounds(t *testing.T) {
	c, err := NewContainer[int32](0.5, 4)
	require.NoError(t, err)

	*c.GetMut(CellIndex{X: 0, Y: 0}) = 1
	*c.GetMut(CellIndex{X: 9, Y: 6}) = 2

	visited := 0
	c.Visit(func(pi PatchIndex, cells []int32) bool {
		visited++
		assert.Len(t, cells, 16)
		return true
	})
	assert.Equal(t, 2, visited)

	min, max := c.Bounds()
	// Patches cover cells [0,3] and [8,11]x[4,7].
	assert.Equal(t, r2.Point{X: 0, Y: 0}, min)
	assert.Equal(t, r2.Point{X: 11 * 0.5, Y: 7 * 0.5}, max)
}

func TestVisitEarlyStop(t *testing.T) {
	c, err := NewContainer[int32](1.0, 4)
	require.NoError(t, err)
	*c.GetMut(CellIndex{X: 0, Y: 0}) = 1
	*c.GetMut(CellIndex{X: 100, Y: 100}) = 2

	visited := 0
	c.Visit(func(PatchIndex, []int32) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestEmptyBounds(t *testing.T) {
	c, err := NewContainer[int32](1.0, 4)
	require.NoError(t, err)
	min, max := c.Bounds()
	assert.Equal(t, r2.Point{}, min)
	assert.Equal(t, r2.Point{}, max)
}
