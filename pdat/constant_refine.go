package pdat

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
)

// MaxRefineDim is the largest dimension the refine operators handle
const MaxRefineDim = 3

// ConstantRefine fills fine data by replicating each coarse value onto
// every fine location it covers. It works on cell, face and node data;
// for faces the mapping runs per axis in that axis's face index space.
type ConstantRefine struct {
	Backend RefineBackend
}

func NewConstantRefine(b RefineBackend) *ConstantRefine {
	if b == nil {
		b = SequentialBackend{}
	}
	return &ConstantRefine{Backend: b}
}

func (c *ConstantRefine) Name() string { return "CONSTANT_REFINE" }

// StencilWidth is zero: no coarse neighbours are read
func (c *ConstantRefine) StencilWidth(dim int) hier.IntVector { return hier.Zero(dim) }

// refinePair is one fine array with the coarse array it reads from
type refinePair struct {
	fine, coarse *ArrayData
	regions      []hier.Box
	ratio        hier.IntVector
	offset       hier.IntVector
	axis         int // Face normal, or -1
}

// Refine fills the regions of fineOverlap in fine from coarse. The overlap
// is in fine index space; its source offset must be a multiple of ratio.
func (c *ConstantRefine) Refine(fine, coarse hier.PatchData, fineOverlap hier.BoxOverlap, ratio hier.IntVector) error {
	steps, err := c.Plan(fine, coarse, fineOverlap, ratio)
	if err != nil {
		return err
	}
	for _, st := range steps {
		if err := c.Backend.Gather(st.Plan, st.Fine.Data(), st.Coarse.Data()); err != nil {
			return errors.Wrapf(err, "%s backend", c.Backend.Name())
		}
	}
	return nil
}

// RefineStep is one verified plan with the arrays it runs on
type RefineStep struct {
	Plan         *TransferPlan
	Fine, Coarse *ArrayData
}

// Plan builds and verifies the transfer plans of a refine without running
// them
func (c *ConstantRefine) Plan(fine, coarse hier.PatchData, ov hier.BoxOverlap,
	ratio hier.IntVector) ([]RefineStep, error) {
	if fine == nil || coarse == nil || ov == nil {
		return nil, errors.Wrap(hier.ErrPrecondition, "refine: nil argument")
	}
	dim := fine.Box().Dim()
	if dim > MaxRefineDim {
		return nil, errors.Wrapf(hier.ErrUnsupportedDimension, "refine: dimension %d", dim)
	}
	if ratio.Dim() != dim || ov.Dim() != dim || coarse.Box().Dim() != dim {
		return nil, errors.Wrapf(hier.ErrPrecondition, "refine: ratio %v, overlap dimension %d, data dimension %d",
			ratio, ov.Dim(), dim)
	}
	if fine.Depth() != coarse.Depth() {
		return nil, errors.Wrapf(hier.ErrPrecondition, "refine: fine depth %d, coarse depth %d",
			fine.Depth(), coarse.Depth())
	}
	for i, r := range ratio {
		if r < 1 {
			return nil, errors.Wrapf(hier.ErrPrecondition, "refine: ratio component %d is %d", i, r)
		}
	}

	var pairs []refinePair
	off := ov.SourceOffset()
	switch f := fine.(type) {
	case *CellData:
		cd, ok := coarse.(*CellData)
		if !ok {
			return nil, errors.Wrapf(hier.ErrPrecondition, "refine: cell data from %T", coarse)
		}
		pairs = append(pairs, refinePair{f.arr, cd.arr, ov.DestinationRegions(0), ratio, off, -1})
	case *NodeData:
		nd, ok := coarse.(*NodeData)
		if !ok {
			return nil, errors.Wrapf(hier.ErrPrecondition, "refine: node data from %T", coarse)
		}
		pairs = append(pairs, refinePair{f.arr, nd.arr, ov.DestinationRegions(0), ratio, off, -1})
	case *FaceData:
		fd, ok := coarse.(*FaceData)
		if !ok {
			return nil, errors.Wrapf(hier.ErrPrecondition, "refine: face data from %T", coarse)
		}
		for k := 0; k < dim; k++ {
			pairs = append(pairs, refinePair{f.arrs[k], fd.arrs[k], ov.DestinationRegions(k),
				ratio.Permute(k), off.Permute(k), k})
		}
	default:
		return nil, errors.Wrapf(hier.ErrPrecondition, "refine: unsupported data %T", fine)
	}

	steps := make([]RefineStep, len(pairs))
	for i, p := range pairs {
		plan, err := buildRefinePlan(p)
		if err != nil {
			return nil, err
		}
		steps[i] = RefineStep{Plan: plan, Fine: p.fine, Coarse: p.coarse}
	}
	return steps, nil
}

func buildRefinePlan(p refinePair) (*TransferPlan, error) {
	plan := NewTransferPlan(len(p.coarse.Data()), len(p.fine.Data()))
	dim := p.ratio.Dim()
	ci := make(hier.IntVector, dim)
	for _, region := range p.regions {
		if region.IsEmpty() {
			continue
		}
		if !p.fine.Box().ContainsBox(region) {
			return nil, errors.Wrapf(hier.ErrPrecondition, "refine: region %v outside fine data %v", region, p.fine.Box())
		}
		plan.BeginRegion(region.NumCells() * p.fine.Depth())
		var err error
		for d := 0; d < p.fine.Depth(); d++ {
			region.Iterate(func(idx hier.IntVector) {
				if err != nil {
					return
				}
				for i := range idx {
					ci[i] = hier.CoarseIndex(idx[i]-p.offset[i], p.ratio[i])
				}
				if !p.coarse.Box().Contains(ci) {
					err = errors.Wrapf(hier.ErrPrecondition, "refine: coarse index %v outside coarse data %v (coarse range %v)",
						ci, p.coarse.Box(), coarseRange(region, p))
					return
				}
				plan.Add(p.coarse.Index(ci, d), p.fine.Index(idx, d))
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if err := plan.Verify(); err != nil {
		return nil, errors.Wrap(err, "refine plan")
	}
	return plan, nil
}

// coarseRange returns the coarse cells under a fine region: face regions
// are taken back to cell space, the normal upper bound dropped by one,
// then coarsened
func coarseRange(region hier.Box, p refinePair) hier.Box {
	cells := region
	cells.Lower = region.Lower.Clone()
	cells.Upper = region.Upper.Clone()
	ratio := p.ratio
	if p.axis >= 0 {
		cells.Lower = region.Lower.Unpermute(p.axis)
		cells.Upper = region.Upper.Unpermute(p.axis)
		cells.Upper[p.axis]--
		ratio = p.ratio.Unpermute(p.axis)
	}
	c, err := hier.Coarsen(cells, ratio)
	if err != nil {
		return hier.EmptyBox(region.Dim())
	}
	return c
}
