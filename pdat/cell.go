package pdat

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/utils"
)

// CellData stores depth values per cell over the ghost box of a patch
type CellData struct {
	box    hier.Box
	ghosts hier.IntVector
	arr    *ArrayData
}

func NewCellData(box hier.Box, depth int, ghosts hier.IntVector) *CellData {
	g, err := hier.Grow(box, ghosts)
	if err != nil {
		panic(err)
	}
	return &CellData{box: box, ghosts: ghosts.Clone(), arr: NewArrayData(g, depth)}
}

func (c *CellData) Box() hier.Box         { return c.box }
func (c *CellData) GhostBox() hier.Box    { return c.arr.Box() }
func (c *CellData) Depth() int            { return c.arr.Depth() }
func (c *CellData) Array() *ArrayData     { return c.arr }
func (c *CellData) FillAll(v float64)     { c.arr.Fill(v) }
func (c *CellData) Ghosts() hier.IntVector { return c.ghosts.Clone() }

func (c *CellData) Copy(src hier.PatchData, ov hier.BoxOverlap) error {
	s, ok := src.(*CellData)
	if !ok {
		return errors.Wrapf(hier.ErrPrecondition, "cell copy from %T", src)
	}
	off := ov.SourceOffset()
	for _, r := range ov.DestinationRegions(0) {
		if err := c.arr.CopyRegion(s.arr, r, off); err != nil {
			return err
		}
	}
	return nil
}

func (c *CellData) DataStreamSize(ov hier.BoxOverlap) int {
	return regionBytes(ov.DestinationRegions(0), c.Depth())
}

func (c *CellData) PackStream(s *utils.MessageStream, ov hier.BoxOverlap) error {
	off := ov.SourceOffset()
	for _, r := range ov.DestinationRegions(0) {
		if err := c.arr.PackRegion(s, r, off); err != nil {
			return err
		}
	}
	return nil
}

func (c *CellData) UnpackStream(s *utils.MessageStream, ov hier.BoxOverlap) error {
	for _, r := range ov.DestinationRegions(0) {
		if err := c.arr.UnpackRegion(s, r); err != nil {
			return err
		}
	}
	return nil
}

func regionBytes(rs []hier.Box, depth int) int {
	n := 0
	for _, r := range rs {
		n += r.NumCells()
	}
	return n * depth * utils.Float64Bytes
}

// CellDataFactory allocates CellData
type CellDataFactory struct {
	depth  int
	ghosts hier.IntVector
}

func NewCellDataFactory(depth int, ghosts hier.IntVector) *CellDataFactory {
	return &CellDataFactory{depth: depth, ghosts: ghosts.Clone()}
}

func (f *CellDataFactory) Allocate(box hier.Box) hier.PatchData {
	return NewCellData(box, f.depth, f.ghosts)
}
func (f *CellDataFactory) Ghosts() hier.IntVector     { return f.ghosts.Clone() }
func (f *CellDataFactory) Depth() int                 { return f.depth }
func (f *CellDataFactory) Centring() hier.Centring    { return hier.CellCentred }
func (f *CellDataFactory) Geometry() hier.BoxGeometry { return CellGeometry{} }

// CellGeometry computes overlaps of cell centred data
type CellGeometry struct{}

func (CellGeometry) CalculateOverlap(dstGhost, src hier.Box, offset hier.IntVector, fill hier.Box) (hier.BoxOverlap, error) {
	r, err := hier.Intersect(dstGhost, src)
	if err != nil {
		return nil, err
	}
	if !fill.IsEmpty() {
		if r, err = hier.Intersect(r, fill); err != nil {
			return nil, err
		}
	}
	var regions []hier.Box
	if !r.IsEmpty() {
		regions = append(regions, r)
	}
	return NewCellOverlap(regions, offset), nil
}
