package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/amrsync/hier"
)

func TestDefaultIsValid(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
dim: 3
max_levels: 3
ratio_to_coarser: [[2, 2, 2], [4, 4, 2]]
tag_buffer: [2, 1]
periodic: [16, 0, 0]
domain: [16, 8, 8]
box_size: [8, 8, 4]
backend: parallel
`))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Dim)
	assert.Equal(t, [][]int{{2, 2, 2}, {4, 4, 2}}, c.RatioToCoarser)
	assert.Equal(t, "parallel", c.Backend)
	assert.Equal(t, "info", c.LogLevel, "unset fields keep defaults")
	assert.Equal(t, `{"mode": "Serial"}`, c.DeviceProps)

	h, err := c.Hierarchy()
	require.NoError(t, err)
	assert.Equal(t, hier.IntVector{8, 8, 4}, h.RatioToLevelZero(2))
	assert.Equal(t, hier.IntVector{128, 0, 0}, h.PeriodicShift(2))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad dim", "dim: 4"},
		{"zero levels", "max_levels: 0\nratio_to_coarser: []"},
		{"ratio count", "max_levels: 3"},
		{"ratio length", "ratio_to_coarser: [[2]]"},
		{"zero ratio", "ratio_to_coarser: [[2, 0]]"},
		{"negative tag buffer", "tag_buffer: [1, -1]"},
		{"empty tag buffer", "tag_buffer: []"},
		{"domain length", "domain: [8]"},
		{"negative period", "periodic: [-1, 0]"},
		{"zero box size", "box_size: [0, 4]"},
		{"unknown backend", "backend: gpu"},
		{"bad log level", "log_level: loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, hier.ErrPrecondition), "got %v", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amrsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: device\nlog_level: debug\n"), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "device", c.Backend)
	assert.Equal(t, "debug", c.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("dim: [1"))
	assert.Error(t, err, "malformed yaml")
}

func TestLevelZeroBoxes(t *testing.T) {
	c := Default()
	c.Domain = []int{10, 4}
	boxes, err := c.LevelZeroBoxes(2)
	require.NoError(t, err)
	require.Len(t, boxes, 3)
	assert.Equal(t, hier.NewBox(hier.IntVector{0, 0}, hier.IntVector{3, 3}).Upper, boxes[0].Upper)
	assert.Equal(t, hier.IntVector{8, 0}, boxes[2].Lower)
	assert.Equal(t, hier.IntVector{9, 3}, boxes[2].Upper, "last box clipped to the domain")
	assert.Equal(t, []int{0, 0, 1}, []int{boxes[0].Owner, boxes[1].Owner, boxes[2].Owner})
	for i, b := range boxes {
		assert.Equal(t, hier.LocalID(i), b.LocalID)
	}
}
