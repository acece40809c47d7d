package loc2d

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/guorun198959/iris-lama/pkg/nlls"
	"github.com/guorun198959/iris-lama/pkg/options"
	"github.com/guorun198959/iris-lama/pkg/sdm"
)

// ErrBadConfiguration is returned when localizer options fail validation.
var ErrBadConfiguration = errors.New("loc2d: bad configuration")

// Options configures a Localizer.
type Options struct {
	// TransThresh gates updates on translation, in meters.
	TransThresh float64 `yaml:"trans_thresh"`
	// RotThresh gates updates on rotation, in radians.
	RotThresh float64 `yaml:"rot_thresh"`
	// L2Max saturates the distance map, in meters.
	L2Max float64 `yaml:"l2_max"`
	// Resolution is the cell size in meters.
	Resolution float64 `yaml:"resolution"`
	// PatchSize is the patch edge length in cells.
	PatchSize int `yaml:"patch_size"`
	// MaxIter caps solver iterations.
	MaxIter int `yaml:"max_iter"`
	// Strategy is "gn" or "lm".
	Strategy string `yaml:"strategy"`
	// Seed seeds the global relocalization RNG.
	Seed int64 `yaml:"seed"`
	// Occupancy selects the occupancy cell update rule.
	Occupancy sdm.OccupancyKind `yaml:"occupancy"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		TransThresh: 0.5,
		RotThresh:   0.5,
		L2Max:       1.0,
		Resolution:  0.05,
		PatchSize:   32,
		MaxIter:     100,
		Strategy:    "gn",
		Seed:        0,
		Occupancy:   sdm.Simple,
	}
}

// Validate rejects configurations the engine cannot run with.
func (o Options) Validate() error {
	if o.Resolution <= 0 {
		return errors.Wrap(ErrBadConfiguration, "resolution must be positive")
	}
	if o.PatchSize <= 0 {
		return errors.Wrap(ErrBadConfiguration, "patch size must be positive")
	}
	if o.L2Max <= 0 {
		return errors.Wrap(ErrBadConfiguration, "l2_max must be positive")
	}
	if o.TransThresh < 0 || o.RotThresh < 0 {
		return errors.Wrap(ErrBadConfiguration, "thresholds must be non-negative")
	}
	if o.MaxIter <= 0 {
		return errors.Wrap(ErrBadConfiguration, "max_iter must be positive")
	}
	switch strings.ToLower(o.Strategy) {
	case "gn", "lm":
	default:
		return errors.Wrapf(ErrBadConfiguration, "unknown strategy %q", o.Strategy)
	}
	return nil
}

func (o Options) strategy() nlls.Strategy {
	if strings.EqualFold(o.Strategy, "lm") {
		return nlls.LevenbergMarquardt
	}
	return nlls.GaussNewton
}

// LoadOptions reads options from a YAML file, filling unset fields with
// defaults.
func LoadOptions(path string) (Options, error) {
	o := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return o, errors.Wrap(err, "loc2d: read options")
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, errors.Wrap(err, "loc2d: parse options")
	}
	if err := o.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

// WithThresholds sets the translation and rotation gates.
func WithThresholds(trans, rot float64) options.Option {
	return func(cfg interface{}) {
		if o, ok := cfg.(*Options); ok {
			o.TransThresh = trans
			o.RotThresh = rot
		}
	}
}

// WithResolution sets the cell size in meters.
func WithResolution(resolution float64) options.Option {
	return func(cfg interface{}) {
		if o, ok := cfg.(*Options); ok {
			o.Resolution = resolution
		}
	}
}

// WithMaxDistance sets the distance-map saturation in meters.
func WithMaxDistance(l2Max float64) options.Option {
	return func(cfg interface{}) {
		if o, ok := cfg.(*Options); ok {
			o.L2Max = l2Max
		}
	}
}

// WithStrategy selects the solver strategy, "gn" or "lm".
func WithStrategy(name string) options.Option {
	return func(cfg interface{}) {
		if o, ok := cfg.(*Options); ok {
			o.Strategy = name
		}
	}
}

// WithSeed seeds the global relocalization RNG.
func WithSeed(seed int64) options.Option {
	return func(cfg interface{}) {
		if o, ok := cfg.(*Options); ok {
			o.Seed = seed
		}
	}
}

// WithOccupancy selects the occupancy cell update rule.
func WithOccupancy(kind sdm.OccupancyKind) options.Option {
	return func(cfg interface{}) {
		if o, ok := cfg.(*Options); ok {
			o.Occupancy = kind
		}
	}
}

// WithPatchSize sets the patch edge length in cells.
func WithPatchSize(size int) options.Option {
	return func(cfg interface{}) {
		if o, ok := cfg.(*Options); ok {
			o.PatchSize = size
		}
	}
}
