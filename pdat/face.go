package pdat

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/utils"
)

// FaceData stores depth values per face, one array per normal axis. Array
// k lives in the face index space of axis k (see FaceBox).
type FaceData struct {
	box    hier.Box
	ghost  hier.Box
	ghosts hier.IntVector
	arrs   []*ArrayData
}

func NewFaceData(box hier.Box, depth int, ghosts hier.IntVector) *FaceData {
	g, err := hier.Grow(box, ghosts)
	if err != nil {
		panic(err)
	}
	fd := &FaceData{box: box, ghost: g, ghosts: ghosts.Clone(), arrs: make([]*ArrayData, box.Dim())}
	for k := range fd.arrs {
		fd.arrs[k] = NewArrayData(FaceBox(g, k), depth)
	}
	return fd
}

func (f *FaceData) Box() hier.Box      { return f.box }
func (f *FaceData) GhostBox() hier.Box { return f.ghost }
func (f *FaceData) Depth() int         { return f.arrs[0].Depth() }

// Array returns the faces normal to axis
func (f *FaceData) Array(axis int) *ArrayData { return f.arrs[axis] }

func (f *FaceData) FillAll(v float64) {
	for _, a := range f.arrs {
		a.Fill(v)
	}
}

func (f *FaceData) Copy(src hier.PatchData, ov hier.BoxOverlap) error {
	s, ok := src.(*FaceData)
	if !ok {
		return errors.Wrapf(hier.ErrPrecondition, "face copy from %T", src)
	}
	off := ov.SourceOffset()
	for k, a := range f.arrs {
		poff := off.Permute(k)
		for _, r := range ov.DestinationRegions(k) {
			if err := a.CopyRegion(s.arrs[k], r, poff); err != nil {
				return errors.Wrapf(err, "axis %d", k)
			}
		}
	}
	return nil
}

func (f *FaceData) DataStreamSize(ov hier.BoxOverlap) int {
	n := 0
	for k := range f.arrs {
		n += regionBytes(ov.DestinationRegions(k), f.Depth())
	}
	return n
}

func (f *FaceData) PackStream(s *utils.MessageStream, ov hier.BoxOverlap) error {
	off := ov.SourceOffset()
	for k, a := range f.arrs {
		poff := off.Permute(k)
		for _, r := range ov.DestinationRegions(k) {
			if err := a.PackRegion(s, r, poff); err != nil {
				return errors.Wrapf(err, "axis %d", k)
			}
		}
	}
	return nil
}

func (f *FaceData) UnpackStream(s *utils.MessageStream, ov hier.BoxOverlap) error {
	for k, a := range f.arrs {
		for _, r := range ov.DestinationRegions(k) {
			if err := a.UnpackRegion(s, r); err != nil {
				return errors.Wrapf(err, "axis %d", k)
			}
		}
	}
	return nil
}

type FaceDataFactory struct {
	depth  int
	ghosts hier.IntVector
}

func NewFaceDataFactory(depth int, ghosts hier.IntVector) *FaceDataFactory {
	return &FaceDataFactory{depth: depth, ghosts: ghosts.Clone()}
}

func (f *FaceDataFactory) Allocate(box hier.Box) hier.PatchData {
	return NewFaceData(box, f.depth, f.ghosts)
}
func (f *FaceDataFactory) Ghosts() hier.IntVector     { return f.ghosts.Clone() }
func (f *FaceDataFactory) Depth() int                 { return f.depth }
func (f *FaceDataFactory) Centring() hier.Centring    { return hier.FaceCentred }
func (f *FaceDataFactory) Geometry() hier.BoxGeometry { return FaceGeometry{} }

// FaceGeometry computes per-axis face overlaps. Faces on the common
// boundary of the two boxes are included.
type FaceGeometry struct{}

func (FaceGeometry) CalculateOverlap(dstGhost, src hier.Box, offset hier.IntVector, fill hier.Box) (hier.BoxOverlap, error) {
	dim := dstGhost.Dim()
	if src.Dim() != dim {
		return nil, errors.Wrapf(hier.ErrDimensionMismatch, "face overlap: %d and %d", dim, src.Dim())
	}
	regions := make([][]hier.Box, dim)
	for k := 0; k < dim; k++ {
		r, err := hier.Intersect(FaceBox(dstGhost, k), FaceBox(src, k))
		if err != nil {
			return nil, err
		}
		if !fill.IsEmpty() {
			if r, err = hier.Intersect(r, FaceBox(fill, k)); err != nil {
				return nil, err
			}
		}
		if !r.IsEmpty() {
			regions[k] = append(regions[k], r)
		}
	}
	return NewFaceOverlap(regions, offset), nil
}
