package xfer

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/utils"
)

// RefineOperator fills fine data from coarser data. pdat.ConstantRefine
// is the operator shipped with this module.
type RefineOperator interface {
	Name() string
	StencilWidth(dim int) hier.IntVector
	Refine(fine, coarse hier.PatchData, fineOverlap hier.BoxOverlap, ratio hier.IntVector) error
}

// RefineItem is one data item moved by a schedule: values are read from
// Src, written into Scratch, and copied from Scratch into Dst when the two
// differ. Operator is needed only when the source level is coarser.
type RefineItem struct {
	Dst, Src, Scratch int
	Operator          RefineOperator
}

// RefineClasses is the table of items a schedule moves. It also requests
// the connector widths its items need.
type RefineClasses struct {
	desc  *hier.PatchDescriptor
	items []RefineItem
}

func NewRefineClasses(desc *hier.PatchDescriptor) *RefineClasses {
	if desc == nil {
		panic("NewRefineClasses: nil descriptor")
	}
	return &RefineClasses{desc: desc}
}

// Register adds an item and returns its id. The three components must be
// registered with the descriptor and share a centring and depth.
func (rc *RefineClasses) Register(item RefineItem) (int, error) {
	var centring hier.Centring
	depth := -1
	for i, id := range []int{item.Dst, item.Src, item.Scratch} {
		f, err := rc.desc.Factory(id)
		if err != nil {
			return -1, errors.Wrap(err, "register refine item")
		}
		if i == 0 {
			centring, depth = f.Centring(), f.Depth()
			continue
		}
		if f.Centring() != centring || f.Depth() != depth {
			return -1, errors.Wrapf(hier.ErrPrecondition, "register refine item: component %s is %v depth %d, want %v depth %d",
				rc.desc.Name(id), f.Centring(), f.Depth(), centring, depth)
		}
	}
	rc.items = append(rc.items, item)
	return len(rc.items) - 1, nil
}

func (rc *RefineClasses) NumItems() int { return len(rc.items) }

func (rc *RefineClasses) Descriptor() *hier.PatchDescriptor { return rc.desc }

// Item returns item id
func (rc *RefineClasses) Item(id int) (RefineItem, error) {
	if id < 0 || id >= len(rc.items) {
		return RefineItem{}, errors.Wrapf(hier.ErrPrecondition, "refine item %d not registered (have %d)", id, len(rc.items))
	}
	return rc.items[id], nil
}

// ScratchSelector selects the scratch component of every item
func (rc *RefineClasses) ScratchSelector() *hier.ComponentSelector {
	cs := hier.NewComponentSelector()
	for _, it := range rc.items {
		cs.Set(it.Scratch)
	}
	return cs
}

// maxScratchWidth is the widest scratch ghost width, plus one for data
// that lives on box boundaries so that boxes sharing only a boundary are
// found as neighbours
func (rc *RefineClasses) maxScratchWidth(dim int) (hier.IntVector, error) {
	w := hier.Zero(dim)
	for _, it := range rc.items {
		f, err := rc.desc.Factory(it.Scratch)
		if err != nil {
			return nil, err
		}
		g := f.Ghosts()
		if f.Centring().OnBoundary() {
			g, err = g.Add(hier.One(dim))
			if err != nil {
				return nil, err
			}
		}
		if w, err = w.Max(g); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// ComputeRequiredConnectorWidths implements hier.ConnectorWidthRequestor
func (rc *RefineClasses) ComputeRequiredConnectorWidths(h *hier.PatchHierarchy) (self, fine []hier.IntVector, err error) {
	dim := h.Dim()
	w, err := rc.maxScratchWidth(dim)
	if err != nil {
		return nil, nil, err
	}
	self = make([]hier.IntVector, h.MaxLevels())
	fine = make([]hier.IntVector, h.MaxLevels()-1)
	for ln := range self {
		self[ln] = w.Clone()
	}
	for ln := range fine {
		r := h.RatioToCoarser(ln + 1)
		fw := make(hier.IntVector, dim)
		for i := range fw {
			fw[i] = (w[i] + r[i] - 1) / r[i]
		}
		fine[ln] = fw
	}
	utils.Logger().WithField("items", len(rc.items)).Debugf("refine classes request width %v", w)
	return self, fine, nil
}
