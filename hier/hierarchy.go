package hier

import (
	"github.com/pkg/errors"
)

// PatchHierarchy is the stack of levels of one AMR run, together with the
// connector width requests of every algorithm that works on it
type PatchHierarchy struct {
	dim        int
	maxLevels  int
	ratios     []IntVector // ratios[ln] is the ratio of level ln to ln-1; ratios[0] is one
	period     IntVector   // Level-0 cells per period, zero on non-periodic axes
	levels     []*PatchLevel
	requestors []ConnectorWidthRequestor
}

// NewPatchHierarchy creates an empty hierarchy. ratioToCoarser[i] is the
// refinement ratio between level i+1 and level i.
func NewPatchHierarchy(dim, maxLevels int, ratioToCoarser []IntVector) (*PatchHierarchy, error) {
	if dim < 1 {
		return nil, errors.Wrapf(ErrPrecondition, "hierarchy: dimension %d", dim)
	}
	if maxLevels < 1 {
		return nil, errors.Wrapf(ErrPrecondition, "hierarchy: %d levels", maxLevels)
	}
	if len(ratioToCoarser) != maxLevels-1 {
		return nil, errors.Wrapf(ErrPrecondition, "hierarchy: %d ratios for %d levels", len(ratioToCoarser), maxLevels)
	}
	h := &PatchHierarchy{
		dim:       dim,
		maxLevels: maxLevels,
		ratios:    []IntVector{One(dim)},
		period:    Zero(dim),
		levels:    make([]*PatchLevel, maxLevels),
	}
	for i, r := range ratioToCoarser {
		if err := checkDims("hierarchy ratio", dim, r.Dim()); err != nil {
			return nil, err
		}
		if err := checkRatio("hierarchy", r); err != nil {
			return nil, errors.Wrapf(err, "level %d", i+1)
		}
		h.ratios = append(h.ratios, r.Clone())
	}
	return h, nil
}

func (h *PatchHierarchy) Dim() int { return h.dim }

func (h *PatchHierarchy) MaxLevels() int { return h.maxLevels }

// RatioToCoarser returns the ratio between level ln and level ln-1; level 0
// reports one
func (h *PatchHierarchy) RatioToCoarser(ln int) IntVector {
	return h.ratios[ln].Clone()
}

// RatioToLevelZero returns the product of ratios from level 0 to ln
func (h *PatchHierarchy) RatioToLevelZero(ln int) IntVector {
	r := One(h.dim)
	for i := 1; i <= ln; i++ {
		r, _ = r.Mul(h.ratios[i])
	}
	return r
}

// SetPeriodic makes the domain periodic. period holds the number of
// level-0 cells per period on each periodic axis and zero elsewhere.
func (h *PatchHierarchy) SetPeriodic(period IntVector) error {
	if err := checkDims("periodic", h.dim, period.Dim()); err != nil {
		return err
	}
	for i, p := range period {
		if p < 0 {
			return errors.Wrapf(ErrPrecondition, "periodic: axis %d period %d", i, p)
		}
	}
	h.period = period.Clone()
	return nil
}

// PeriodicShift returns the period in the index space of level ln
func (h *PatchHierarchy) PeriodicShift(ln int) IntVector {
	s, _ := h.period.Mul(h.RatioToLevelZero(ln))
	return s
}

// SetLevel installs a level. Its ratio must agree with the hierarchy.
func (h *PatchHierarchy) SetLevel(ln int, level *PatchLevel) error {
	if ln < 0 || ln >= h.maxLevels {
		return errors.Wrapf(ErrPrecondition, "set level %d of %d", ln, h.maxLevels)
	}
	if level == nil {
		return errors.Wrapf(ErrPrecondition, "set level %d: nil level", ln)
	}
	if !level.RatioToLevelZero.Equal(h.RatioToLevelZero(ln)) {
		return errors.Wrapf(ErrPrecondition, "set level %d: ratio %v, hierarchy expects %v",
			ln, level.RatioToLevelZero, h.RatioToLevelZero(ln))
	}
	level.Number = ln
	h.levels[ln] = level
	return nil
}

// Level returns level ln or nil if it has not been set
func (h *PatchHierarchy) Level(ln int) *PatchLevel {
	if ln < 0 || ln >= h.maxLevels {
		return nil
	}
	return h.levels[ln]
}

// NumLevels returns one more than the finest level that is set
func (h *PatchHierarchy) NumLevels() int {
	n := 0
	for i, l := range h.levels {
		if l != nil {
			n = i + 1
		}
	}
	return n
}

// RegisterConnectorWidthRequestor adds an algorithm's width request
func (h *PatchHierarchy) RegisterConnectorWidthRequestor(r ConnectorWidthRequestor) {
	h.requestors = append(h.requestors, r)
}

// ConnectorWidths aggregates the requests of every registered requestor
func (h *PatchHierarchy) ConnectorWidths() (self, fine []IntVector, err error) {
	return AggregateConnectorWidths(h, h.requestors...)
}

// ConnectorWidth returns the width for a connector from base to head, in
// the index space of base. Only same-level and adjacent-level pairs have
// a width.
func (h *PatchHierarchy) ConnectorWidth(base, head int) (IntVector, error) {
	if base < 0 || base >= h.maxLevels || head < 0 || head >= h.maxLevels {
		return nil, errors.Wrapf(ErrPrecondition, "connector width %d->%d out of range", base, head)
	}
	self, fine, err := h.ConnectorWidths()
	if err != nil {
		return nil, err
	}
	switch head - base {
	case 0:
		return self[base], nil
	case 1:
		return fine[base], nil
	case -1:
		return fine[head].Mul(h.ratios[base])
	default:
		return nil, errors.Wrapf(ErrPrecondition, "connector width %d->%d: levels not adjacent", base, head)
	}
}

// FindConnector builds the connector from level base to level head with
// the aggregated width
func (h *PatchHierarchy) FindConnector(base, head int) (*Connector, error) {
	w, err := h.ConnectorWidth(base, head)
	if err != nil {
		return nil, err
	}
	bl, hl := h.Level(base), h.Level(head)
	if bl == nil || hl == nil {
		return nil, errors.Wrapf(ErrPrecondition, "connector %d->%d: level not set", base, head)
	}
	return NewConnector(bl, hl, w, h.PeriodicShift(head))
}
