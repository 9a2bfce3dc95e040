package pdat

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/utils"
)

// OuternodeData stores values only on the nodes of the outer boundary of a
// patch. It has no ghosts.
type OuternodeData struct {
	box   hier.Box
	depth int
	sides [][2]*ArrayData
}

func NewOuternodeData(box hier.Box, depth int) *OuternodeData {
	od := &OuternodeData{box: box, depth: depth}
	for _, s := range OuternodeSides(box) {
		od.sides = append(od.sides, [2]*ArrayData{NewArrayData(s[0], depth), NewArrayData(s[1], depth)})
	}
	return od
}

func (o *OuternodeData) Box() hier.Box      { return o.box }
func (o *OuternodeData) GhostBox() hier.Box { return o.box }
func (o *OuternodeData) Depth() int         { return o.depth }

// Side returns the array of the lower (upper=false) or upper side normal
// to axis
func (o *OuternodeData) Side(axis int, upper bool) *ArrayData {
	if upper {
		return o.sides[axis][1]
	}
	return o.sides[axis][0]
}

func (o *OuternodeData) FillAll(v float64) {
	for _, s := range o.sides {
		s[0].Fill(v)
		s[1].Fill(v)
	}
}

// locate finds the side array holding node idx
func (o *OuternodeData) locate(idx hier.IntVector) *ArrayData {
	for _, s := range o.sides {
		for _, a := range s {
			if a.Box().Contains(idx) {
				return a
			}
		}
	}
	return nil
}

func (o *OuternodeData) Get(idx hier.IntVector, d int) (float64, bool) {
	a := o.locate(idx)
	if a == nil {
		return 0, false
	}
	return a.Get(idx, d), true
}

// visit calls fn for every node of every region, depth outermost within a
// region, with the destination array, the node and its source index
func (o *OuternodeData) visit(ov hier.BoxOverlap, fn func(dst *ArrayData, idx, src hier.IntVector, d int) error) error {
	off := ov.SourceOffset()
	s := make(hier.IntVector, ov.Dim())
	for _, r := range ov.DestinationRegions(0) {
		for d := 0; d < o.depth; d++ {
			var err error
			r.Iterate(func(idx hier.IntVector) {
				if err != nil {
					return
				}
				a := o.locate(idx)
				if a == nil {
					err = errors.Wrapf(hier.ErrPrecondition, "node %v is not an outer node of %v", idx, o.box)
					return
				}
				for i := range idx {
					s[i] = idx[i] - off[i]
				}
				err = fn(a, idx, s, d)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *OuternodeData) sourceValue(src *OuternodeData, s hier.IntVector, d int) (float64, error) {
	v, ok := src.Get(s, d)
	if !ok {
		return 0, errors.Wrapf(hier.ErrPrecondition, "node %v is not an outer node of source %v", s, src.box)
	}
	return v, nil
}

func (o *OuternodeData) Copy(src hier.PatchData, ov hier.BoxOverlap) error {
	sd, ok := src.(*OuternodeData)
	if !ok {
		return errors.Wrapf(hier.ErrPrecondition, "outernode copy from %T", src)
	}
	return o.visit(ov, func(a *ArrayData, idx, s hier.IntVector, d int) error {
		v, err := o.sourceValue(sd, s, d)
		if err != nil {
			return err
		}
		a.Set(idx, d, v)
		return nil
	})
}

// Sum adds the overlap values of src into the receiver
func (o *OuternodeData) Sum(src hier.PatchData, ov hier.BoxOverlap) error {
	sd, ok := src.(*OuternodeData)
	if !ok {
		return errors.Wrapf(hier.ErrPrecondition, "outernode sum from %T", src)
	}
	return o.visit(ov, func(a *ArrayData, idx, s hier.IntVector, d int) error {
		v, err := o.sourceValue(sd, s, d)
		if err != nil {
			return err
		}
		a.data[a.Index(idx, d)] += v
		return nil
	})
}

func (o *OuternodeData) DataStreamSize(ov hier.BoxOverlap) int {
	return regionBytes(ov.DestinationRegions(0), o.depth)
}

// PackStream packs the source values of ov. The receiver is the source
// here, so nodes are looked up at their source index.
func (o *OuternodeData) PackStream(s *utils.MessageStream, ov hier.BoxOverlap) error {
	off := ov.SourceOffset()
	src := make(hier.IntVector, ov.Dim())
	for _, r := range ov.DestinationRegions(0) {
		vals := make([]float64, 0, r.NumCells())
		for d := 0; d < o.depth; d++ {
			var err error
			r.Iterate(func(idx hier.IntVector) {
				if err != nil {
					return
				}
				for i := range idx {
					src[i] = idx[i] - off[i]
				}
				var v float64
				v, err = o.sourceValue(o, src, d)
				vals = append(vals, v)
			})
			if err != nil {
				return err
			}
		}
		s.PackFloat64s(vals)
	}
	return nil
}

func (o *OuternodeData) readRegions(s *utils.MessageStream, ov hier.BoxOverlap) ([][]float64, error) {
	out := make([][]float64, 0, len(ov.DestinationRegions(0)))
	for _, r := range ov.DestinationRegions(0) {
		vals := make([]float64, r.NumCells()*o.depth)
		if err := s.UnpackFloat64s(vals); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, nil
}

func (o *OuternodeData) UnpackStream(s *utils.MessageStream, ov hier.BoxOverlap) error {
	in, err := o.readRegions(s, ov)
	if err != nil {
		return err
	}
	return o.applyRegions(ov, in, false)
}

// UnpackStreamAndSum adds streamed values into the overlap nodes
func (o *OuternodeData) UnpackStreamAndSum(s *utils.MessageStream, ov hier.BoxOverlap) error {
	in, err := o.readRegions(s, ov)
	if err != nil {
		return err
	}
	return o.applyRegions(ov, in, true)
}

func (o *OuternodeData) applyRegions(ov hier.BoxOverlap, in [][]float64, sum bool) error {
	for ri, r := range ov.DestinationRegions(0) {
		targets := make([]*ArrayData, 0, r.NumCells())
		nodes := make([]hier.IntVector, 0, r.NumCells())
		r.Iterate(func(idx hier.IntVector) {
			targets = append(targets, o.locate(idx))
			nodes = append(nodes, idx.Clone())
		})
		for i, a := range targets {
			if a == nil {
				return errors.Wrapf(hier.ErrPrecondition, "node %v is not an outer node of %v", nodes[i], o.box)
			}
		}
		vals := in[ri]
		if sum {
			cur := make([]float64, 0, len(vals))
			for d := 0; d < o.depth; d++ {
				for i, a := range targets {
					cur = append(cur, a.Get(nodes[i], d))
				}
			}
			floats.Add(cur, vals)
			vals = cur
		}
		k := 0
		for d := 0; d < o.depth; d++ {
			for i, a := range targets {
				a.Set(nodes[i], d, vals[k])
				k++
			}
		}
	}
	return nil
}

// CopyFromNode loads the outer nodes of node data with the same box
func (o *OuternodeData) CopyFromNode(n *NodeData) error {
	if n.Depth() != o.depth {
		return errors.Wrapf(hier.ErrPrecondition, "depth %d != %d", n.Depth(), o.depth)
	}
	zero := hier.Zero(o.box.Dim())
	for _, s := range o.sides {
		for _, a := range s {
			if err := a.CopyRegion(n.Array(), a.Box(), zero); err != nil {
				return err
			}
		}
	}
	return nil
}

// CopyToNode writes the outer nodes back into node data
func (o *OuternodeData) CopyToNode(n *NodeData) error {
	if n.Depth() != o.depth {
		return errors.Wrapf(hier.ErrPrecondition, "depth %d != %d", n.Depth(), o.depth)
	}
	zero := hier.Zero(o.box.Dim())
	for _, s := range o.sides {
		for _, a := range s {
			if err := n.Array().CopyRegion(a, a.Box(), zero); err != nil {
				return err
			}
		}
	}
	return nil
}

type OuternodeDataFactory struct {
	dim, depth int
}

func NewOuternodeDataFactory(dim, depth int) *OuternodeDataFactory {
	return &OuternodeDataFactory{dim: dim, depth: depth}
}

func (f *OuternodeDataFactory) Allocate(box hier.Box) hier.PatchData {
	return NewOuternodeData(box, f.depth)
}
func (f *OuternodeDataFactory) Ghosts() hier.IntVector     { return hier.Zero(f.dim) }
func (f *OuternodeDataFactory) Depth() int                 { return f.depth }
func (f *OuternodeDataFactory) Centring() hier.Centring    { return hier.OuternodeCentred }
func (f *OuternodeDataFactory) Geometry() hier.BoxGeometry { return OuternodeGeometry{} }

// OuternodeGeometry restricts node overlaps to the nodes that are outer
// nodes of both boxes. Regions come out disjoint, in the order of the
// destination sides, then the source sides.
type OuternodeGeometry struct{}

func (OuternodeGeometry) CalculateOverlap(dstGhost, src hier.Box, offset hier.IntVector, fill hier.Box) (hier.BoxOverlap, error) {
	if dstGhost.Dim() != src.Dim() {
		return nil, errors.Wrapf(hier.ErrDimensionMismatch, "outernode overlap: %d and %d", dstGhost.Dim(), src.Dim())
	}
	if dstGhost.IsEmpty() || src.IsEmpty() {
		return NewNodeOverlap(nil, offset), nil
	}
	regions, err := intersectAll(flattenSides(OuternodeSides(dstGhost)), flattenSides(OuternodeSides(src)))
	if err != nil {
		return nil, err
	}
	if !fill.IsEmpty() {
		if regions, err = intersectAll(regions, []hier.Box{NodeBox(fill)}); err != nil {
			return nil, err
		}
	}
	return NewNodeOverlap(regions, offset), nil
}
