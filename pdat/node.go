package pdat

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/utils"
)

// NodeData stores depth values per node over the nodes of the ghost box
type NodeData struct {
	box    hier.Box
	ghost  hier.Box
	ghosts hier.IntVector
	arr    *ArrayData
}

func NewNodeData(box hier.Box, depth int, ghosts hier.IntVector) *NodeData {
	g, err := hier.Grow(box, ghosts)
	if err != nil {
		panic(err)
	}
	return &NodeData{box: box, ghost: g, ghosts: ghosts.Clone(), arr: NewArrayData(NodeBox(g), depth)}
}

func (n *NodeData) Box() hier.Box      { return n.box }
func (n *NodeData) GhostBox() hier.Box { return n.ghost }
func (n *NodeData) Depth() int         { return n.arr.Depth() }
func (n *NodeData) Array() *ArrayData  { return n.arr }
func (n *NodeData) FillAll(v float64)  { n.arr.Fill(v) }

func (n *NodeData) Copy(src hier.PatchData, ov hier.BoxOverlap) error {
	s, ok := src.(*NodeData)
	if !ok {
		return errors.Wrapf(hier.ErrPrecondition, "node copy from %T", src)
	}
	off := ov.SourceOffset()
	for _, r := range ov.DestinationRegions(0) {
		if err := n.arr.CopyRegion(s.arr, r, off); err != nil {
			return err
		}
	}
	return nil
}

func (n *NodeData) DataStreamSize(ov hier.BoxOverlap) int {
	return regionBytes(ov.DestinationRegions(0), n.Depth())
}

func (n *NodeData) PackStream(s *utils.MessageStream, ov hier.BoxOverlap) error {
	off := ov.SourceOffset()
	for _, r := range ov.DestinationRegions(0) {
		if err := n.arr.PackRegion(s, r, off); err != nil {
			return err
		}
	}
	return nil
}

func (n *NodeData) UnpackStream(s *utils.MessageStream, ov hier.BoxOverlap) error {
	for _, r := range ov.DestinationRegions(0) {
		if err := n.arr.UnpackRegion(s, r); err != nil {
			return err
		}
	}
	return nil
}

type NodeDataFactory struct {
	depth  int
	ghosts hier.IntVector
}

func NewNodeDataFactory(depth int, ghosts hier.IntVector) *NodeDataFactory {
	return &NodeDataFactory{depth: depth, ghosts: ghosts.Clone()}
}

func (f *NodeDataFactory) Allocate(box hier.Box) hier.PatchData {
	return NewNodeData(box, f.depth, f.ghosts)
}
func (f *NodeDataFactory) Ghosts() hier.IntVector     { return f.ghosts.Clone() }
func (f *NodeDataFactory) Depth() int                 { return f.depth }
func (f *NodeDataFactory) Centring() hier.Centring    { return hier.NodeCentred }
func (f *NodeDataFactory) Geometry() hier.BoxGeometry { return NodeGeometry{} }

type NodeGeometry struct{}

func (NodeGeometry) CalculateOverlap(dstGhost, src hier.Box, offset hier.IntVector, fill hier.Box) (hier.BoxOverlap, error) {
	r, err := hier.Intersect(NodeBox(dstGhost), NodeBox(src))
	if err != nil {
		return nil, err
	}
	if !fill.IsEmpty() {
		if r, err = hier.Intersect(r, NodeBox(fill)); err != nil {
			return nil, err
		}
	}
	var regions []hier.Box
	if !r.IsEmpty() {
		regions = append(regions, r)
	}
	return NewNodeOverlap(regions, offset), nil
}
