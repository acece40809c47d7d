// Package sdm implements the sparse-dense map: a sparse set of dense
// fixed-size patches backing the occupancy and distance representations.
package sdm

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

var (
	// ErrBadConfiguration is returned when a map is constructed with an
	// invalid resolution or patch size.
	ErrBadConfiguration = errors.New("sdm: bad configuration")
)

// CellIndex addresses a single cell on the infinite cell grid.
type CellIndex struct {
	X int32
	Y int32
}

// PatchIndex addresses an allocated patch.
type PatchIndex struct {
	X int32
	Y int32
}

type patch[T any] struct {
	cells []T
}

// Container is a paged 2D grid. Cells live in contiguous per-patch buffers
// allocated lazily on first write; reads of unallocated cells return the
// zero value of T. A one-entry last-access cache serves the sequential
// access patterns of scan insertion and distance propagation.
type Container[T any] struct {
	resolution float64
	patchSize  int32
	patches    map[PatchIndex]*patch[T]

	lastIdx PatchIndex
	last    *patch[T]

	def T
}

// NewContainer creates an empty container.
func NewContainer[T any](resolution float64, patchSize int) (*Container[T], error) {
	if resolution <= 0 {
		return nil, errors.Wrap(ErrBadConfiguration, "resolution must be positive")
	}
	if patchSize <= 0 {
		return nil, errors.Wrap(ErrBadConfiguration, "patch size must be positive")
	}
	return &Container[T]{
		resolution: resolution,
		patchSize:  int32(patchSize),
		patches:    make(map[PatchIndex]*patch[T]),
	}, nil
}

// Resolution returns the cell size in world units.
func (c *Container[T]) Resolution() float64 {
	return c.resolution
}

// PatchSize returns the patch edge length in cells.
func (c *Container[T]) PatchSize() int {
	return int(c.patchSize)
}

// WorldToCell maps a world point to the cell whose center is nearest.
func (c *Container[T]) WorldToCell(p r2.Point) CellIndex {
	return CellIndex{
		X: int32(math.Floor(p.X/c.resolution + 0.5)),
		Y: int32(math.Floor(p.Y/c.resolution + 0.5)),
	}
}

// CellToWorld returns the world coordinates of the cell center.
func (c *Container[T]) CellToWorld(ci CellIndex) r2.Point {
	return r2.Point{
		X: float64(ci.X) * c.resolution,
		Y: float64(ci.Y) * c.resolution,
	}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func (c *Container[T]) split(ci CellIndex) (PatchIndex, int) {
	pi := PatchIndex{X: floorDiv(ci.X, c.patchSize), Y: floorDiv(ci.Y, c.patchSize)}
	lx := ci.X - pi.X*c.patchSize
	ly := ci.Y - pi.Y*c.patchSize
	return pi, int(ly*c.patchSize + lx)
}

func (c *Container[T]) lookup(pi PatchIndex) *patch[T] {
	if c.last != nil && c.lastIdx == pi {
		return c.last
	}
	p := c.patches[pi]
	if p != nil {
		c.lastIdx, c.last = pi, p
	}
	return p
}

// Get reads a cell. Unallocated cells read as the zero value of T.
func (c *Container[T]) Get(ci CellIndex) T {
	pi, off := c.split(ci)
	p := c.lookup(pi)
	if p == nil {
		return c.def
	}
	return p.cells[off]
}

// GetMut returns a mutable pointer to a cell, allocating its patch on
// demand.
func (c *Container[T]) GetMut(ci CellIndex) *T {
	pi, off := c.split(ci)
	p := c.lookup(pi)
	if p == nil {
		p = &patch[T]{cells: make([]T, c.patchSize*c.patchSize)}
		c.patches[pi] = p
		c.lastIdx, c.last = pi, p
	}
	return &p.cells[off]
}

// Allocated reports whether the patch holding the cell exists.
func (c *Container[T]) Allocated(ci CellIndex) bool {
	pi, _ := c.split(ci)
	return c.lookup(pi) != nil
}

// PatchCount returns the number of allocated patches.
func (c *Container[T]) PatchCount() int {
	return len(c.patches)
}

// Visit calls fn for every allocated patch with its index and the
// row-major cell buffer. Returning false stops the walk.
func (c *Container[T]) Visit(fn func(pi PatchIndex, cells []T) bool) {
	for pi, p := range c.patches {
		if !fn(pi, p.cells) {
			return
		}
	}
}

// Bounds returns the world coordinates of the minimal and maximal
// allocated cell centers. With no allocated patches both points are zero.
func (c *Container[T]) Bounds() (min, max r2.Point) {
	first := true
	var minX, minY, maxX, maxY int32
	for pi := range c.patches {
		x0, y0 := pi.X*c.patchSize, pi.Y*c.patchSize
		x1, y1 := x0+c.patchSize-1, y0+c.patchSize-1
		if first {
			minX, minY, maxX, maxY = x0, y0, x1, y1
			first = false
			continue
		}
		if x0 < minX {
			minX = x0
		}
		if y0 < minY {
			minY = y0
		}
		if x1 > maxX {
			maxX = x1
		}
		if y1 > maxY {
			maxY = y1
		}
	}
	if first {
		return r2.Point{}, r2.Point{}
	}
	min = c.CellToWorld(CellIndex{X: minX, Y: minY})
	max = c.CellToWorld(CellIndex{X: maxX, Y: maxY})
	return min, max
}
