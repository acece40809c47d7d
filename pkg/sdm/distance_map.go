package sdm

import (
	"container/heap"
	"math"

	"github.com/chewxy/math32"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

type distanceCell struct {
	DistSqr  float32
	SourceX  int32
	SourceY  int32
	Known    bool
	Obstacle bool
}

type heapEntry struct {
	key  float32
	seq  uint64
	cell CellIndex
}

// cellHeap orders propagation work by squared distance, ties broken by
// insertion order. Entries may be stale; consumers skip on key mismatch.
type cellHeap []heapEntry

func (h cellHeap) Len() int { return len(h) }
func (h cellHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	return h[i].seq < h[j].seq
}
func (h cellHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cellHeap) Push(x interface{}) { *h = append(*h, x.(heapEntry)) }
func (h *cellHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// DistanceMap is an incremental Euclidean distance transform over the
// paged grid. Each cell stores the squared distance in cell units to its
// nearest known obstacle and the coordinates of that obstacle. Propagation
// saturates at the configured maximum distance.
type DistanceMap struct {
	grid *Container[distanceCell]

	maxDist    float64 // world units
	maxDistSqr float32 // cell units, squared

	lower cellHeap
	raise cellHeap
	seq   uint64
}

// NewDistanceMap creates an empty distance map saturating at maxDistance
// world units.
func NewDistanceMap(maxDistance, resolution float64, patchSize int) (*DistanceMap, error) {
	if maxDistance <= 0 {
		return nil, errors.Wrap(ErrBadConfiguration, "max distance must be positive")
	}
	grid, err := NewContainer[distanceCell](resolution, patchSize)
	if err != nil {
		return nil, err
	}
	cells := maxDistance / resolution
	return &DistanceMap{
		grid:       grid,
		maxDist:    maxDistance,
		maxDistSqr: float32(cells * cells),
	}, nil
}

// Resolution returns the cell size in world units.
func (m *DistanceMap) Resolution() float64 {
	return m.grid.Resolution()
}

// MaxDistance returns the saturation distance in world units.
func (m *DistanceMap) MaxDistance() float64 {
	return m.maxDist
}

// WorldToCell maps a world point to its cell.
func (m *DistanceMap) WorldToCell(p r2.Point) CellIndex {
	return m.grid.WorldToCell(p)
}

func (m *DistanceMap) push(h *cellHeap, key float32, ci CellIndex) {
	m.seq++
	heap.Push(h, heapEntry{key: key, seq: m.seq, cell: ci})
}

// AddObstacle registers the cell as an obstacle. The change takes effect
// on the next Update. Arbitrary cells are tolerated; the patch is
// allocated on demand.
func (m *DistanceMap) AddObstacle(ci CellIndex) {
	c := m.grid.GetMut(ci)
	if c.Obstacle {
		return
	}
	c.Obstacle = true
	c.Known = true
	c.DistSqr = 0
	c.SourceX, c.SourceY = ci.X, ci.Y
	m.push(&m.lower, 0, ci)
}

// RemoveObstacle unregisters the cell as an obstacle. The change takes
// effect on the next Update.
func (m *DistanceMap) RemoveObstacle(ci CellIndex) {
	c := m.grid.GetMut(ci)
	if !c.Obstacle {
		return
	}
	c.Obstacle = false
	m.push(&m.raise, c.DistSqr, ci)
}

// IsObstacle reports whether the cell is a live obstacle.
func (m *DistanceMap) IsObstacle(ci CellIndex) bool {
	return m.grid.Get(ci).Obstacle
}

func (m *DistanceMap) sourceLive(c distanceCell) bool {
	if !c.Known {
		return false
	}
	src := m.grid.Get(CellIndex{X: c.SourceX, Y: c.SourceY})
	return src.Obstacle
}

var neighborOffsets = [8][2]int32{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Update drains the raise and lower queues to a fixed point. Afterwards
// every cell within the saturation radius of an obstacle reports the
// Euclidean distance to its nearest remaining obstacle.
func (m *DistanceMap) Update() {
	// Raised regions first: clear cells whose source obstacle is gone and
	// seed repairs from the surviving frontier.
	for m.raise.Len() > 0 {
		e := heap.Pop(&m.raise).(heapEntry)
		c := m.grid.GetMut(e.cell)
		if !c.Known {
			continue
		}
		if m.sourceLive(*c) {
			continue
		}
		for _, off := range neighborOffsets {
			ni := CellIndex{X: e.cell.X + off[0], Y: e.cell.Y + off[1]}
			nc := m.grid.Get(ni)
			if !nc.Known {
				continue
			}
			if m.sourceLive(nc) {
				m.push(&m.lower, nc.DistSqr, ni)
			} else {
				m.push(&m.raise, nc.DistSqr, ni)
			}
		}
		c.Known = false
		c.DistSqr = m.maxDistSqr
	}

	// Lower propagation: expand the wavefront in order of squared distance.
	for m.lower.Len() > 0 {
		e := heap.Pop(&m.lower).(heapEntry)
		c := m.grid.Get(e.cell)
		if !c.Known || c.DistSqr != e.key {
			continue
		}
		if !m.sourceLive(c) {
			continue
		}
		for _, off := range neighborOffsets {
			ni := CellIndex{X: e.cell.X + off[0], Y: e.cell.Y + off[1]}
			dx := float32(ni.X - c.SourceX)
			dy := float32(ni.Y - c.SourceY)
			cand := dx*dx + dy*dy
			if cand > m.maxDistSqr {
				continue
			}
			nc := m.grid.GetMut(ni)
			if nc.Known && cand >= nc.DistSqr {
				continue
			}
			nc.Known = true
			nc.DistSqr = cand
			nc.SourceX, nc.SourceY = c.SourceX, c.SourceY
			m.push(&m.lower, cand, ni)
		}
	}
}

// DistanceAtCell returns the settled distance at a cell center in world
// units, saturated at the maximum distance.
func (m *DistanceMap) DistanceAtCell(ci CellIndex) float64 {
	c := m.grid.Get(ci)
	if !c.Known {
		return m.maxDist
	}
	d := float64(math32.Sqrt(c.DistSqr)) * m.grid.Resolution()
	if d > m.maxDist {
		return m.maxDist
	}
	return d
}

// Distance returns the bilinearly interpolated distance at a world point.
// Queries falling in unallocated space return the maximum distance.
func (m *DistanceMap) Distance(p r2.Point) float64 {
	res := m.grid.Resolution()
	gx := p.X / res
	gy := p.Y / res
	x0 := int32(math.Floor(gx))
	y0 := int32(math.Floor(gy))
	fx := gx - float64(x0)
	fy := gy - float64(y0)

	v00 := m.DistanceAtCell(CellIndex{X: x0, Y: y0})
	v10 := m.DistanceAtCell(CellIndex{X: x0 + 1, Y: y0})
	v01 := m.DistanceAtCell(CellIndex{X: x0, Y: y0 + 1})
	v11 := m.DistanceAtCell(CellIndex{X: x0 + 1, Y: y0 + 1})

	return v00*(1-fx)*(1-fy) + v10*fx*(1-fy) + v01*(1-fx)*fy + v11*fx*fy
}

// Gradient returns the central-difference gradient of Distance at a world
// point.
func (m *DistanceMap) Gradient(p r2.Point) (dx, dy float64) {
	res := m.grid.Resolution()
	dx = (m.Distance(r2.Point{X: p.X + res, Y: p.Y}) - m.Distance(r2.Point{X: p.X - res, Y: p.Y})) / (2 * res)
	dy = (m.Distance(r2.Point{X: p.X, Y: p.Y + res}) - m.Distance(r2.Point{X: p.X, Y: p.Y - res})) / (2 * res)
	return dx, dy
}

// PatchCount returns the number of allocated patches.
func (m *DistanceMap) PatchCount() int {
	return m.grid.PatchCount()
}

// Bounds returns the world extent of the allocated cells.
func (m *DistanceMap) Bounds() (min, max r2.Point) {
	return m.grid.Bounds()
}
