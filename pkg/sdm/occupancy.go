package sdm

import (
	"github.com/chewxy/math32"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// OccupancyKind selects the per-cell update rule. The container and ray
// traversal are shared by all kinds.
type OccupancyKind int

const (
	// Simple keeps a bare tri-state per cell.
	Simple OccupancyKind = iota
	// Frequency counts hits and visits and classifies by hit ratio.
	Frequency
	// Probabilistic keeps log-odds updated with a fixed sensor model.
	Probabilistic
)

// Sensor model used by the probabilistic update rule.
const (
	probFree     = float32(0.3)
	probOccupied = float32(0.7)
	logOddsClamp = float32(50)
)

var (
	logOddsFree     = math32.Log(probFree / (1 - probFree))
	logOddsOccupied = math32.Log(probOccupied / (1 - probOccupied))
)

type occupancyCell struct {
	Hits     uint32
	Visits   uint32
	LogOdds  float32
	State    int8
	Observed bool
}

// OccupancyMap is a paged tri-state occupancy grid.
type OccupancyMap struct {
	grid *Container[occupancyCell]
	kind OccupancyKind
}

// NewOccupancyMap creates an empty occupancy map.
func NewOccupancyMap(kind OccupancyKind, resolution float64, patchSize int) (*OccupancyMap, error) {
	if kind < Simple || kind > Probabilistic {
		return nil, errors.Wrap(ErrBadConfiguration, "unknown occupancy kind")
	}
	grid, err := NewContainer[occupancyCell](resolution, patchSize)
	if err != nil {
		return nil, err
	}
	return &OccupancyMap{grid: grid, kind: kind}, nil
}

// Resolution returns the cell size in world units.
func (m *OccupancyMap) Resolution() float64 {
	return m.grid.Resolution()
}

// WorldToCell maps a world point to its cell.
func (m *OccupancyMap) WorldToCell(p r2.Point) CellIndex {
	return m.grid.WorldToCell(p)
}

// CellToWorld returns the world coordinates of a cell center.
func (m *OccupancyMap) CellToWorld(ci CellIndex) r2.Point {
	return m.grid.CellToWorld(ci)
}

// Bounds returns the world extent of the allocated cells.
func (m *OccupancyMap) Bounds() (min, max r2.Point) {
	return m.grid.Bounds()
}

// PatchCount returns the number of allocated patches.
func (m *OccupancyMap) PatchCount() int {
	return m.grid.PatchCount()
}

func (m *OccupancyMap) classify(c occupancyCell) int8 {
	if !c.Observed {
		return 0
	}
	switch m.kind {
	case Frequency:
		if c.Visits == 0 {
			return 0
		}
		if 2*c.Hits > c.Visits {
			return 1
		}
		return -1
	case Probabilistic:
		if c.LogOdds > 0 {
			return 1
		}
		if c.LogOdds < 0 {
			return -1
		}
		return 0
	default:
		return c.State
	}
}

// IsFree reports whether the cell under p is classified free.
func (m *OccupancyMap) IsFree(p r2.Point) bool {
	return m.IsFreeCell(m.grid.WorldToCell(p))
}

// IsOccupied reports whether the cell under p is classified occupied.
func (m *OccupancyMap) IsOccupied(p r2.Point) bool {
	return m.IsOccupiedCell(m.grid.WorldToCell(p))
}

// IsUnknown reports whether the cell under p has no classification.
func (m *OccupancyMap) IsUnknown(p r2.Point) bool {
	return m.IsUnknownCell(m.grid.WorldToCell(p))
}

// IsFreeCell reports whether the cell is classified free.
func (m *OccupancyMap) IsFreeCell(ci CellIndex) bool {
	return m.classify(m.grid.Get(ci)) < 0
}

// IsOccupiedCell reports whether the cell is classified occupied.
func (m *OccupancyMap) IsOccupiedCell(ci CellIndex) bool {
	return m.classify(m.grid.Get(ci)) > 0
}

// IsUnknownCell reports whether the cell has no classification.
func (m *OccupancyMap) IsUnknownCell(ci CellIndex) bool {
	return m.classify(m.grid.Get(ci)) == 0
}

// SetFree applies one free observation to the cell under p.
func (m *OccupancyMap) SetFree(p r2.Point) {
	m.SetFreeCell(m.grid.WorldToCell(p))
}

// SetOccupied applies one occupied observation to the cell under p.
func (m *OccupancyMap) SetOccupied(p r2.Point) {
	m.SetOccupiedCell(m.grid.WorldToCell(p))
}

// SetFreeCell applies one free observation to the cell.
func (m *OccupancyMap) SetFreeCell(ci CellIndex) {
	c := m.grid.GetMut(ci)
	c.Observed = true
	switch m.kind {
	case Frequency:
		c.Visits++
	case Probabilistic:
		c.LogOdds = clampLogOdds(c.LogOdds + logOddsFree)
	default:
		c.State = -1
	}
}

// SetOccupiedCell applies one occupied observation to the cell.
func (m *OccupancyMap) SetOccupiedCell(ci CellIndex) {
	c := m.grid.GetMut(ci)
	c.Observed = true
	switch m.kind {
	case Frequency:
		c.Hits++
		c.Visits++
	case Probabilistic:
		c.LogOdds = clampLogOdds(c.LogOdds + logOddsOccupied)
	default:
		c.State = 1
	}
}

func clampLogOdds(lo float32) float32 {
	if lo > logOddsClamp {
		return logOddsClamp
	}
	if lo < -logOddsClamp {
		return -logOddsClamp
	}
	return lo
}

// UpdateFreeLine traverses the ray from one world point to another,
// applying free observations to the intermediate cells and an occupied
// observation to the endpoint cell.
func (m *OccupancyMap) UpdateFreeLine(from, to r2.Point) {
	a := m.grid.WorldToCell(from)
	b := m.grid.WorldToCell(to)
	VisitLine(a, b, func(ci CellIndex) bool {
		if ci != b {
			m.SetFreeCell(ci)
		}
		return true
	})
	m.SetOccupiedCell(b)
}
