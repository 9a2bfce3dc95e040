package pdat

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
)

// CellOverlap is a list of cell boxes shared by every axis
type CellOverlap struct {
	regions []hier.Box
	offset  hier.IntVector
}

func NewCellOverlap(regions []hier.Box, offset hier.IntVector) *CellOverlap {
	return &CellOverlap{regions: regions, offset: offset.Clone()}
}

func (o *CellOverlap) Dim() int                               { return o.offset.Dim() }
func (o *CellOverlap) IsOverlapEmpty() bool                   { return regionsEmpty(o.regions) }
func (o *CellOverlap) DestinationRegions(axis int) []hier.Box { return o.regions }
func (o *CellOverlap) SourceOffset() hier.IntVector           { return o.offset.Clone() }

// NodeOverlap is a list of node boxes shared by every axis. Outernode data
// uses it too, with regions restricted to outer nodes.
type NodeOverlap struct {
	regions []hier.Box
	offset  hier.IntVector
}

func NewNodeOverlap(regions []hier.Box, offset hier.IntVector) *NodeOverlap {
	return &NodeOverlap{regions: regions, offset: offset.Clone()}
}

func (o *NodeOverlap) Dim() int                               { return o.offset.Dim() }
func (o *NodeOverlap) IsOverlapEmpty() bool                   { return regionsEmpty(o.regions) }
func (o *NodeOverlap) DestinationRegions(axis int) []hier.Box { return o.regions }
func (o *NodeOverlap) SourceOffset() hier.IntVector           { return o.offset.Clone() }

// FaceOverlap holds one list of face boxes per axis, each in the face index
// space of that axis. The offset is in cell space; use Permute(axis) to
// apply it to a face region.
type FaceOverlap struct {
	regions [][]hier.Box
	offset  hier.IntVector
}

func NewFaceOverlap(regions [][]hier.Box, offset hier.IntVector) *FaceOverlap {
	if len(regions) != offset.Dim() {
		panic(fmt.Sprintf("NewFaceOverlap: %d region lists for dimension %d", len(regions), offset.Dim()))
	}
	return &FaceOverlap{regions: regions, offset: offset.Clone()}
}

func (o *FaceOverlap) Dim() int { return o.offset.Dim() }

func (o *FaceOverlap) IsOverlapEmpty() bool {
	for _, r := range o.regions {
		if !regionsEmpty(r) {
			return false
		}
	}
	return true
}

func (o *FaceOverlap) DestinationRegions(axis int) []hier.Box {
	if axis < 0 || axis >= len(o.regions) {
		return nil
	}
	return o.regions[axis]
}

func (o *FaceOverlap) SourceOffset() hier.IntVector { return o.offset.Clone() }

func regionsEmpty(rs []hier.Box) bool {
	for _, r := range rs {
		if !r.IsEmpty() {
			return false
		}
	}
	return true
}

// CoarsenOverlap returns the coarse regions that feed a fine overlap under
// constant refinement: every fine region coarsened by the ratio, permuted
// for faces, and the offset divided by the ratio.
func CoarsenOverlap(ov hier.BoxOverlap, ratio hier.IntVector) (hier.BoxOverlap, error) {
	if ov == nil {
		return nil, errors.Wrap(hier.ErrPrecondition, "coarsen overlap: nil overlap")
	}
	if ratio.Dim() != ov.Dim() {
		return nil, errors.Wrapf(hier.ErrDimensionMismatch, "coarsen overlap: ratio %v for dimension %d", ratio, ov.Dim())
	}
	off := ov.SourceOffset()
	coff := make(hier.IntVector, off.Dim())
	for i := range off {
		if ratio[i] <= 0 || off[i]%ratio[i] != 0 {
			return nil, errors.Wrapf(hier.ErrPrecondition, "coarsen overlap: offset %v not a multiple of %v", off, ratio)
		}
		coff[i] = off[i] / ratio[i]
	}
	coarsen := func(rs []hier.Box, r hier.IntVector) ([]hier.Box, error) {
		out := make([]hier.Box, 0, len(rs))
		for _, b := range rs {
			c, err := hier.Coarsen(b, r)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}
	switch o := ov.(type) {
	case *CellOverlap:
		rs, err := coarsen(o.regions, ratio)
		if err != nil {
			return nil, err
		}
		return NewCellOverlap(rs, coff), nil
	case *NodeOverlap:
		rs, err := coarsen(o.regions, ratio)
		if err != nil {
			return nil, err
		}
		return NewNodeOverlap(rs, coff), nil
	case *FaceOverlap:
		regions := make([][]hier.Box, len(o.regions))
		for axis := range o.regions {
			rs, err := coarsen(o.regions[axis], ratio.Permute(axis))
			if err != nil {
				return nil, err
			}
			regions[axis] = rs
		}
		return NewFaceOverlap(regions, coff), nil
	default:
		return nil, errors.Wrapf(hier.ErrPrecondition, "coarsen overlap: unsupported %T", ov)
	}
}

// WithoutOffset returns the same regions with a zero source offset, for
// data that has already been shifted into destination space
func WithoutOffset(ov hier.BoxOverlap) (hier.BoxOverlap, error) {
	zero := hier.Zero(ov.Dim())
	switch o := ov.(type) {
	case *CellOverlap:
		return NewCellOverlap(o.regions, zero), nil
	case *NodeOverlap:
		return NewNodeOverlap(o.regions, zero), nil
	case *FaceOverlap:
		return NewFaceOverlap(o.regions, zero), nil
	default:
		return nil, errors.Wrapf(hier.ErrPrecondition, "without offset: unsupported %T", ov)
	}
}

// RegionBounds returns the smallest box in cell space that holds every
// region of ov, so that scratch storage for the regions can be allocated
func RegionBounds(ov hier.BoxOverlap) hier.Box {
	dim := ov.Dim()
	var lo, hi hier.IntVector
	add := func(b hier.Box) {
		if b.IsEmpty() {
			return
		}
		if lo == nil {
			lo, hi = b.Lower.Clone(), b.Upper.Clone()
			return
		}
		for i := range lo {
			lo[i] = min(lo[i], b.Lower[i])
			hi[i] = max(hi[i], b.Upper[i])
		}
	}
	if fo, ok := ov.(*FaceOverlap); ok {
		for axis, rs := range fo.regions {
			for _, r := range rs {
				// Faces lo..hi+1 lie on cells lo-1..hi+1
				c := r
				c.Lower = r.Lower.Unpermute(axis)
				c.Upper = r.Upper.Unpermute(axis)
				c.Lower[axis]--
				add(c)
			}
		}
	} else {
		for _, r := range ov.DestinationRegions(0) {
			c := r
			c.Upper = r.Upper.Clone()
			if _, node := ov.(*NodeOverlap); node {
				c.Lower = r.Lower.Clone()
				for i := range c.Lower {
					c.Lower[i]--
				}
			}
			add(c)
		}
	}
	if lo == nil {
		return hier.EmptyBox(dim)
	}
	return hier.NewBox(lo, hi)
}

// RestrictOverlap keeps the parts of the regions of ov that lie on the
// cells of fill. An empty fill leaves ov unchanged.
func RestrictOverlap(ov hier.BoxOverlap, fill hier.Box) (hier.BoxOverlap, error) {
	if ov == nil {
		return nil, errors.Wrap(hier.ErrPrecondition, "restrict overlap: nil overlap")
	}
	if fill.IsEmpty() {
		return ov, nil
	}
	if fill.Dim() != ov.Dim() {
		return nil, errors.Wrapf(hier.ErrDimensionMismatch, "restrict overlap: fill %v for dimension %d", fill, ov.Dim())
	}
	switch o := ov.(type) {
	case *CellOverlap:
		rs, err := intersectAll(o.regions, []hier.Box{fill})
		if err != nil {
			return nil, err
		}
		return NewCellOverlap(rs, o.offset), nil
	case *NodeOverlap:
		rs, err := intersectAll(o.regions, []hier.Box{NodeBox(fill)})
		if err != nil {
			return nil, err
		}
		return NewNodeOverlap(rs, o.offset), nil
	case *FaceOverlap:
		regions := make([][]hier.Box, len(o.regions))
		for axis := range o.regions {
			rs, err := intersectAll(o.regions[axis], []hier.Box{FaceBox(fill, axis)})
			if err != nil {
				return nil, err
			}
			regions[axis] = rs
		}
		return NewFaceOverlap(regions, o.offset), nil
	default:
		return nil, errors.Wrapf(hier.ErrPrecondition, "restrict overlap: unsupported %T", ov)
	}
}
