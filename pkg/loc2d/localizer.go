package loc2d

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/guorun198959/iris-lama/pkg/logger"
	"github.com/guorun198959/iris-lama/pkg/math/pose"
	"github.com/guorun198959/iris-lama/pkg/nlls"
	"github.com/guorun198959/iris-lama/pkg/options"
	"github.com/guorun198959/iris-lama/pkg/pointcloud"
	"github.com/guorun198959/iris-lama/pkg/sdm"
)

const (
	// globalSamples is the number of candidate poses drawn during global
	// relocalization.
	globalSamples = 3000
	// globalSampleRetries bounds redraws per candidate when free space is
	// sparse.
	globalSampleRetries = 1000
	// rmseLock is the residual RMSE below which global relocalization is
	// considered locked.
	rmseLock = 0.15
)

// Localizer tracks the robot pose in a persistent map by matching range
// scans against the distance field. It exclusively owns its occupancy and
// distance maps; all methods must be called from a single goroutine.
type Localizer struct {
	opts Options

	occ  *sdm.OccupancyMap
	dist *sdm.DistanceMap

	odom         pose.Pose2D
	pose         pose.Pose2D
	hasFirstScan bool
	doGlobalLoc  bool

	solverOpts nlls.Options
	rng        *rand.Rand
}

// New creates a localizer from the defaults adjusted by the given
// options.
func New(opts ...options.Option) (*Localizer, error) {
	o := DefaultOptions()
	options.Apply(&o, opts...)
	return NewWithOptions(o)
}

// NewWithOptions creates a localizer from a fully populated Options.
func NewWithOptions(o Options) (*Localizer, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	occ, err := sdm.NewOccupancyMap(o.Occupancy, o.Resolution, o.PatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "loc2d: occupancy map")
	}
	dist, err := sdm.NewDistanceMap(o.L2Max, o.Resolution, o.PatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "loc2d: distance map")
	}
	return &Localizer{
		opts: o,
		occ:  occ,
		dist: dist,
		solverOpts: nlls.Options{
			MaxIterations: o.MaxIter,
			Strategy:      o.strategy(),
			Weight:        nlls.UnitWeight(),
			// Converging far below the cell size buys nothing.
			StepTolerance: o.Resolution / 100,
		},
		rng: rand.New(rand.NewSource(o.Seed)),
	}, nil
}

// SetWeight replaces the robust weight used by the solver.
func (l *Localizer) SetWeight(w nlls.RobustWeight) {
	l.solverOpts.Weight = w
}

// Pose returns the current pose estimate.
func (l *Localizer) Pose() pose.Pose2D {
	return l.pose
}

// SetPose overrides the pose estimate.
func (l *Localizer) SetPose(p pose.Pose2D) {
	l.pose = p
}

// OccupancyMap returns the owned occupancy map. Readers that snapshot
// must copy.
func (l *Localizer) OccupancyMap() *sdm.OccupancyMap {
	return l.occ
}

// DistanceMap returns the owned distance map. Readers that snapshot must
// copy.
func (l *Localizer) DistanceMap() *sdm.DistanceMap {
	return l.dist
}

// TriggerGlobalLocalization schedules global relocalization for the next
// accepted update.
func (l *Localizer) TriggerGlobalLocalization() {
	l.doGlobalLoc = true
}

// GlobalLocalizationActive reports whether relocalization is still
// pending a lock.
func (l *Localizer) GlobalLocalizationActive() bool {
	return l.doGlobalLoc
}

// Update applies one observation. It returns false when the cloud is
// empty or the odometry increment stays below both gates; otherwise the
// pose is predicted from odometry, optionally re-acquired globally, and
// refined by scan matching.
func (l *Localizer) Update(cloud *pointcloud.Cloud, odom pose.Pose2D, timestamp float64) bool {
	if cloud.Empty() {
		return false
	}

	if !l.hasFirstScan {
		l.odom = odom
		l.hasFirstScan = true
		return true
	}

	delta := l.odom.Ominus(odom)
	if delta.TranslationNorm() <= l.opts.TransThresh && math.Abs(delta.Theta) <= l.opts.RotThresh {
		return false
	}

	l.pose = l.pose.Compose(delta)
	l.odom = odom

	if l.doGlobalLoc {
		l.GlobalLocalization(cloud)
	}

	m := NewMatcher(l.dist, cloud, l.pose)
	if _, err := nlls.Solve(m, l.solverOpts); errors.Is(err, nlls.ErrSingularHessian) {
		// Degenerate solve: keep the predicted pose and try again on the
		// next observation.
		logger.Component("loc2d").Warn().
			Float64("t", timestamp).
			Msg("degenerate solve, keeping predicted pose")
		return true
	}
	l.pose = m.Pose()

	if l.doGlobalLoc {
		if rmse := m.RMSE(); rmse < rmseLock {
			l.doGlobalLoc = false
			logger.Component("loc2d").Info().
				Float64("t", timestamp).
				Float64("rmse", rmse).
				Msg("global localization locked")
		}
	}
	return true
}

// GlobalLocalization draws candidate poses uniformly over the free cells
// of the occupancy map and keeps the one with the smallest sum of squared
// residuals against the distance field. The winning candidate replaces
// the pose estimate. Deterministic under the configured seed.
func (l *Localizer) GlobalLocalization(cloud *pointcloud.Cloud) pose.Pose2D {
	min, max := l.occ.Bounds()
	if l.occ.PatchCount() == 0 || cloud.Empty() {
		return l.pose
	}

	m := NewMatcher(l.dist, cloud, l.pose)
	best := l.pose
	bestScore := math.Inf(1)

	for i := 0; i < globalSamples; i++ {
		var x, y float64
		free := false
		for try := 0; try < globalSampleRetries; try++ {
			x = min.X + l.rng.Float64()*(max.X-min.X)
			y = min.Y + l.rng.Float64()*(max.Y-min.Y)
			if l.occ.IsFree(r2.Point{X: x, Y: y}) {
				free = true
				break
			}
		}
		if !free {
			logger.Component("loc2d").Warn().Msg("no free cell found for relocalization sample")
			break
		}
		theta := math.Pi - 2*math.Pi*l.rng.Float64()

		m.SetState([]float64{x, y, theta})
		if score := m.SumSquaredResiduals(); score < bestScore {
			bestScore = score
			best = pose.New(x, y, theta)
		}
	}

	l.pose = best
	return best
}

// UpdateMap integrates the cloud into the owned maps at the current pose:
// each ray frees the cells it traverses and marks its endpoint occupied,
// and the distance map is repropagated to reflect the occupancy changes.
func (l *Localizer) UpdateMap(cloud *pointcloud.Cloud) {
	if cloud.Empty() {
		return
	}

	sensorOrigin := cloud.SensorToBody.Apply(r3.Vector{})
	origin := l.pose.Transform(r2.Point{X: sensorOrigin.X, Y: sensorOrigin.Y})

	for _, pt := range cloud.Points {
		q := cloud.SensorToBody.Apply(pt)
		end := l.pose.Transform(r2.Point{X: q.X, Y: q.Y})
		l.applyRay(origin, end)
	}
	l.dist.Update()
}

func (l *Localizer) applyRay(from, to r2.Point) {
	a := l.occ.WorldToCell(from)
	b := l.occ.WorldToCell(to)

	sdm.VisitLine(a, b, func(ci sdm.CellIndex) bool {
		if ci == b {
			return true
		}
		wasOccupied := l.occ.IsOccupiedCell(ci)
		l.occ.SetFreeCell(ci)
		if wasOccupied && !l.occ.IsOccupiedCell(ci) {
			l.dist.RemoveObstacle(ci)
		}
		return true
	})

	wasOccupied := l.occ.IsOccupiedCell(b)
	l.occ.SetOccupiedCell(b)
	if !wasOccupied && l.occ.IsOccupiedCell(b) {
		l.dist.AddObstacle(b)
	}
}
