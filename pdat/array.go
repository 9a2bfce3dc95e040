package pdat

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/utils"
)

// ArrayData is contiguous storage for depth values at every index of a
// box. Axis 0 varies fastest and depth is outermost, so each depth is one
// contiguous block of box.NumCells() values.
type ArrayData struct {
	box   hier.Box
	depth int
	n     int
	data  []float64
}

func NewArrayData(box hier.Box, depth int) *ArrayData {
	if depth < 1 {
		panic("NewArrayData: depth must be positive")
	}
	n := box.NumCells()
	return &ArrayData{box: box, depth: depth, n: n, data: make([]float64, n*depth)}
}

func (a *ArrayData) Box() hier.Box { return a.box }

func (a *ArrayData) Depth() int { return a.depth }

// Data exposes the backing slice
func (a *ArrayData) Data() []float64 { return a.data }

// Index returns the linear position of (idx, d)
func (a *ArrayData) Index(idx hier.IntVector, d int) int {
	return d*a.n + a.box.Offset(idx)
}

func (a *ArrayData) Get(idx hier.IntVector, d int) float64 { return a.data[a.Index(idx, d)] }

func (a *ArrayData) Set(idx hier.IntVector, d int, v float64) { a.data[a.Index(idx, d)] = v }

func (a *ArrayData) Fill(v float64) {
	for i := range a.data {
		a.data[i] = v
	}
}

// FillBox sets every value inside region
func (a *ArrayData) FillBox(region hier.Box, v float64) error {
	r, err := hier.Intersect(region, a.box)
	if err != nil {
		return err
	}
	for d := 0; d < a.depth; d++ {
		r.Iterate(func(idx hier.IntVector) { a.Set(idx, d, v) })
	}
	return nil
}

func (a *ArrayData) checkRegion(region hier.Box, src *ArrayData, offset hier.IntVector) error {
	if !a.box.ContainsBox(region) {
		return errors.Wrapf(hier.ErrPrecondition, "region %v outside destination %v", region, a.box)
	}
	if src == nil {
		return nil
	}
	if src.depth != a.depth {
		return errors.Wrapf(hier.ErrPrecondition, "depth %d != %d", src.depth, a.depth)
	}
	if region.IsEmpty() {
		return nil
	}
	s, err := hier.Shift(region, offset.Neg())
	if err != nil {
		return err
	}
	if !src.box.ContainsBox(s) {
		return errors.Wrapf(hier.ErrPrecondition, "region %v outside source %v", s, src.box)
	}
	return nil
}

// CopyRegion sets a[idx] = src[idx-offset] for idx in region
func (a *ArrayData) CopyRegion(src *ArrayData, region hier.Box, offset hier.IntVector) error {
	if err := a.checkRegion(region, src, offset); err != nil {
		return err
	}
	s := make(hier.IntVector, region.Dim())
	for d := 0; d < a.depth; d++ {
		region.Iterate(func(idx hier.IntVector) {
			for i := range idx {
				s[i] = idx[i] - offset[i]
			}
			a.Set(idx, d, src.Get(s, d))
		})
	}
	return nil
}

// SumRegion adds src[idx-offset] into a[idx] for idx in region
func (a *ArrayData) SumRegion(src *ArrayData, region hier.Box, offset hier.IntVector) error {
	if err := a.checkRegion(region, src, offset); err != nil {
		return err
	}
	s := make(hier.IntVector, region.Dim())
	for d := 0; d < a.depth; d++ {
		region.Iterate(func(idx hier.IntVector) {
			for i := range idx {
				s[i] = idx[i] - offset[i]
			}
			a.data[a.Index(idx, d)] += src.Get(s, d)
		})
	}
	return nil
}

// gather collects the values of region at a source offset, depth outermost
func (a *ArrayData) gather(region hier.Box, offset hier.IntVector) []float64 {
	out := make([]float64, 0, region.NumCells()*a.depth)
	s := make(hier.IntVector, region.Dim())
	for d := 0; d < a.depth; d++ {
		region.Iterate(func(idx hier.IntVector) {
			for i := range idx {
				s[i] = idx[i] - offset[i]
			}
			out = append(out, a.Get(s, d))
		})
	}
	return out
}

func (a *ArrayData) scatter(region hier.Box, vals []float64) {
	k := 0
	for d := 0; d < a.depth; d++ {
		region.Iterate(func(idx hier.IntVector) {
			a.Set(idx, d, vals[k])
			k++
		})
	}
}

// PackRegion writes the source values of a destination region. The
// values read are at idx-offset.
func (a *ArrayData) PackRegion(s *utils.MessageStream, region hier.Box, offset hier.IntVector) error {
	if region.IsEmpty() {
		return nil
	}
	sr, err := hier.Shift(region, offset.Neg())
	if err != nil {
		return err
	}
	if !a.box.ContainsBox(sr) {
		return errors.Wrapf(hier.ErrPrecondition, "pack: region %v outside %v", sr, a.box)
	}
	s.PackFloat64s(a.gather(region, offset))
	return nil
}

// UnpackRegion overwrites region with values read from s
func (a *ArrayData) UnpackRegion(s *utils.MessageStream, region hier.Box) error {
	if err := a.checkRegion(region, nil, nil); err != nil {
		return err
	}
	vals := make([]float64, region.NumCells()*a.depth)
	if err := s.UnpackFloat64s(vals); err != nil {
		return err
	}
	a.scatter(region, vals)
	return nil
}

// UnpackSumRegion adds values read from s into region
func (a *ArrayData) UnpackSumRegion(s *utils.MessageStream, region hier.Box) error {
	if err := a.checkRegion(region, nil, nil); err != nil {
		return err
	}
	vals := make([]float64, region.NumCells()*a.depth)
	if err := s.UnpackFloat64s(vals); err != nil {
		return err
	}
	cur := a.gather(region, hier.Zero(region.Dim()))
	floats.Add(cur, vals)
	a.scatter(region, cur)
	return nil
}
