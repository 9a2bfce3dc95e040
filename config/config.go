package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
)

// Config describes a hierarchy layout and how to run transfers on it
type Config struct {
	Dim            int     `yaml:"dim"`
	MaxLevels      int     `yaml:"max_levels"`
	RatioToCoarser [][]int `yaml:"ratio_to_coarser"` // MaxLevels-1 entries
	TagBuffer      []int   `yaml:"tag_buffer"`
	Periodic       []int   `yaml:"periodic"` // Level-0 period per axis, zero if not periodic

	// Level-0 domain cells per axis, cut into boxes of BoxSize cells
	Domain  []int `yaml:"domain"`
	BoxSize []int `yaml:"box_size"`

	Backend     string `yaml:"backend"` // sequential, parallel or device
	DeviceProps string `yaml:"device_props"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns a two-level 2-D layout of four boxes
func Default() Config {
	return Config{
		Dim:            2,
		MaxLevels:      2,
		RatioToCoarser: [][]int{{2, 2}},
		TagBuffer:      []int{1},
		Periodic:       []int{0, 0},
		Domain:         []int{8, 8},
		BoxSize:        []int{4, 4},
		Backend:        "sequential",
		DeviceProps:    `{"mode": "Serial"}`,
		LogLevel:       "info",
	}
}

// Load reads a YAML file over the defaults. An empty path gives the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		c := Default()
		return c, c.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func checkLen(name string, v []int, dim int) error {
	if len(v) != dim {
		return errors.Wrapf(hier.ErrPrecondition, "config: %s has %d entries for dimension %d", name, len(v), dim)
	}
	return nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Dim < 1 || c.Dim > pdat.MaxRefineDim {
		return errors.Wrapf(hier.ErrPrecondition, "config: dim must be 1..%d, got %d", pdat.MaxRefineDim, c.Dim)
	}
	if c.MaxLevels < 1 {
		return errors.Wrapf(hier.ErrPrecondition, "config: max_levels must be >= 1, got %d", c.MaxLevels)
	}
	if len(c.RatioToCoarser) != c.MaxLevels-1 {
		return errors.Wrapf(hier.ErrPrecondition, "config: %d ratios for %d levels", len(c.RatioToCoarser), c.MaxLevels)
	}
	for ln, r := range c.RatioToCoarser {
		if err := checkLen("ratio_to_coarser", r, c.Dim); err != nil {
			return err
		}
		for _, v := range r {
			if v < 1 {
				return errors.Wrapf(hier.ErrPrecondition, "config: ratio of level %d is %v", ln+1, r)
			}
		}
	}
	if len(c.TagBuffer) == 0 {
		return errors.Wrap(hier.ErrPrecondition, "config: tag_buffer is empty")
	}
	for ln, b := range c.TagBuffer {
		if b < 0 {
			return errors.Wrapf(hier.ErrPrecondition, "config: tag_buffer of level %d is %d", ln, b)
		}
	}
	for name, v := range map[string][]int{"periodic": c.Periodic, "domain": c.Domain, "box_size": c.BoxSize} {
		if err := checkLen(name, v, c.Dim); err != nil {
			return err
		}
	}
	for i := range c.Domain {
		if c.Domain[i] < 1 || c.BoxSize[i] < 1 || c.Periodic[i] < 0 {
			return errors.Wrapf(hier.ErrPrecondition, "config: axis %d has domain %d, box size %d, period %d",
				i, c.Domain[i], c.BoxSize[i], c.Periodic[i])
		}
	}
	switch c.Backend {
	case "sequential", "parallel", "device":
	default:
		return errors.Wrapf(hier.ErrPrecondition, "config: unknown backend %q", c.Backend)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(hier.ErrPrecondition, "config: %v", err)
	}
	return nil
}

// Hierarchy creates the empty hierarchy described by c
func (c Config) Hierarchy() (*hier.PatchHierarchy, error) {
	ratios := make([]hier.IntVector, len(c.RatioToCoarser))
	for i, r := range c.RatioToCoarser {
		ratios[i] = hier.IntVector(r).Clone()
	}
	h, err := hier.NewPatchHierarchy(c.Dim, c.MaxLevels, ratios)
	if err != nil {
		return nil, err
	}
	if err = h.SetPeriodic(hier.IntVector(c.Periodic)); err != nil {
		return nil, err
	}
	return h, nil
}

// LevelZeroBoxes cuts the domain into boxes, axis 0 fastest, and
// distributes them over nranks in consecutive runs
func (c Config) LevelZeroBoxes(nranks int) ([]hier.Box, error) {
	counts := make([]int, c.Dim)
	for i := range counts {
		counts[i] = (c.Domain[i] + c.BoxSize[i] - 1) / c.BoxSize[i]
	}
	grid := hier.NewBox(hier.Zero(c.Dim), hier.IntVector(counts).Clone())
	for i := range grid.Upper {
		grid.Upper[i]--
	}
	var boxes []hier.Box
	grid.Iterate(func(idx hier.IntVector) {
		lo := make(hier.IntVector, c.Dim)
		hi := make(hier.IntVector, c.Dim)
		for i := range idx {
			lo[i] = idx[i] * c.BoxSize[i]
			hi[i] = min(lo[i]+c.BoxSize[i], c.Domain[i]) - 1
		}
		boxes = append(boxes, hier.NewBox(lo, hi))
	})
	return hier.AssignOwners(boxes, nranks, hier.BlockOwners)
}
