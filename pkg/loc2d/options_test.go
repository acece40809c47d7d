package loc2d

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guorun198959/iris-lama/pkg/options"
	"github.com/guorun198959/iris-lama/pkg/sdm"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	require.NoError(t, o.Validate())

	assert.Equal(t, 0.5, o.TransThresh)
	assert.Equal(t, 0.5, o.RotThresh)
	assert.Equal(t, 1.0, o.L2Max)
	assert.Equal(t, 0.05, o.Resolution)
	assert.Equal(t, 32, o.PatchSize)
	assert.Equal(t, 100, o.MaxIter)
	assert.Equal(t, "gn", o.Strategy)
	assert.Equal(t, int64(0), o.Seed)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero resolution", func(o *Options) { o.Resolution = 0 }},
		{"negative patch", func(o *Options) { o.PatchSize = -1 }},
		{"zero l2max", func(o *Options) { o.L2Max = 0 }},
		{"negative threshold", func(o *Options) { o.TransThresh = -0.1 }},
		{"zero max iter", func(o *Options) { o.MaxIter = 0 }},
		{"bad strategy", func(o *Options) { o.Strategy = "newton" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			assert.ErrorIs(t, o.Validate(), ErrBadConfiguration)
		})
	}
}

func TestFunctionalOptions(t *testing.T) {
	o := DefaultOptions()
	options.Apply(&o,
		WithThresholds(0.2, 0.1),
		WithResolution(0.1),
		WithMaxDistance(2.5),
		WithStrategy("lm"),
		WithSeed(42),
		WithOccupancy(sdm.Probabilistic),
		WithPatchSize(64),
	)

	assert.Equal(t, 0.2, o.TransThresh)
	assert.Equal(t, 0.1, o.RotThresh)
	assert.Equal(t, 0.1, o.Resolution)
	assert.Equal(t, 2.5, o.L2Max)
	assert.Equal(t, "lm", o.Strategy)
	assert.Equal(t, int64(42), o.Seed)
	assert.Equal(t, sdm.Probabilistic, o.Occupancy)
	assert.Equal(t, 64, o.PatchSize)
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loc2d.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"trans_thresh: 0.25\nstrategy: lm\nseed: 9\n"), 0o644))

	o, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, 0.25, o.TransThresh)
	assert.Equal(t, "lm", o.Strategy)
	assert.Equal(t, int64(9), o.Seed)
	// Unset fields keep their defaults.
	assert.Equal(t, 0.05, o.Resolution)
}

func TestLoadOptionsRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loc2d.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolution: -1\n"), 0o644))

	_, err := LoadOptions(path)
	assert.ErrorIs(t, err, ErrBadConfiguration)
}

func TestLoadOptionsMissingFile(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(WithResolution(-1))
	assert.ErrorIs(t, err, ErrBadConfiguration)

	_, err = NewWithOptions(Options{})
	assert.ErrorIs(t, err, ErrBadConfiguration)
}
