package algs

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/utils"
	"github.com/notargets/amrsync/xfer"
)

// nodeSum ties one node component to the outernode components used to sum
// its boundary values
type nodeSum struct {
	node, src, scratch int
}

// PatchBoundaryNodeSum makes node values on patch boundaries consistent:
// every box holding a boundary node ends up with the sum of the values
// all those boxes held before. Interior nodes are untouched.
type PatchBoundaryNodeSum struct {
	name  string
	desc  *hier.PatchDescriptor
	sums  []nodeSum
	items *xfer.RefineClasses
}

func NewPatchBoundaryNodeSum(name string, desc *hier.PatchDescriptor) *PatchBoundaryNodeSum {
	return &PatchBoundaryNodeSum{
		name:  name,
		desc:  desc,
		items: xfer.NewRefineClasses(desc),
	}
}

// RegisterSum adds a node component to be summed. It registers an
// outernode source and scratch component with the descriptor.
func (s *PatchBoundaryNodeSum) RegisterSum(nodeID int) error {
	f, err := s.desc.Factory(nodeID)
	if err != nil {
		return errors.Wrapf(err, "%s: register sum", s.name)
	}
	if f.Centring() != hier.NodeCentred {
		return errors.Wrapf(hier.ErrPrecondition, "%s: component %s is %v data, not node data",
			s.name, s.desc.Name(nodeID), f.Centring())
	}
	dim := f.Ghosts().Dim()
	base := s.name + "/" + s.desc.Name(nodeID)
	ns := nodeSum{
		node:    nodeID,
		src:     s.desc.Register(base+"/onode_src", pdat.NewOuternodeDataFactory(dim, f.Depth())),
		scratch: s.desc.Register(base+"/onode_scratch", pdat.NewOuternodeDataFactory(dim, f.Depth())),
	}
	if _, err = s.items.Register(xfer.RefineItem{Dst: ns.scratch, Src: ns.src, Scratch: ns.scratch}); err != nil {
		return err
	}
	s.sums = append(s.sums, ns)
	return nil
}

// ComputeRequiredConnectorWidths asks for width one on every level so
// that boxes touching at a node are neighbours
func (s *PatchBoundaryNodeSum) ComputeRequiredConnectorWidths(h *hier.PatchHierarchy) (self, fine []hier.IntVector, err error) {
	dim, nl := h.Dim(), h.MaxLevels()
	self = make([]hier.IntVector, nl)
	for ln := range self {
		self[ln] = hier.One(dim)
	}
	fine = make([]hier.IntVector, nl-1)
	for ln := range fine {
		fine[ln] = hier.Zero(dim)
	}
	return self, fine, nil
}

func (s *PatchBoundaryNodeSum) outernodeIDs() []int {
	ids := make([]int, 0, 2*len(s.sums))
	for _, ns := range s.sums {
		ids = append(ids, ns.src, ns.scratch)
	}
	return ids
}

// ComputeSum sums boundary node values on level ln of h. The connector
// comes from the hierarchy, so s must be registered with it as a width
// requestor. comm may be nil when this rank owns every box.
func (s *PatchBoundaryNodeSum) ComputeSum(ctx context.Context, h *hier.PatchHierarchy, ln int, comm xfer.Communicator) error {
	if len(s.sums) == 0 {
		return nil
	}
	level := h.Level(ln)
	if level == nil {
		return errors.Wrapf(hier.ErrPrecondition, "%s: level %d not set", s.name, ln)
	}
	conn, err := h.FindConnector(ln, ln)
	if err != nil {
		return err
	}
	ids := s.outernodeIDs()
	if err = level.AllocateData(ids...); err != nil {
		return err
	}
	defer level.DeallocateData(ids...)

	for _, p := range level.LocalPatches() {
		for _, ns := range s.sums {
			node, on, err := s.pair(p, ns.node, ns.src)
			if err != nil {
				return err
			}
			if err = on.CopyFromNode(node); err != nil {
				return errors.Wrapf(err, "%s: box %d", s.name, p.LocalID())
			}
		}
	}

	sched, err := xfer.NewSumSchedule(level, conn, s.items, xfer.Options{Communicator: comm})
	if err != nil {
		return err
	}
	if err = sched.Execute(ctx); err != nil {
		return errors.Wrapf(err, "%s: level %d", s.name, ln)
	}

	for _, p := range level.LocalPatches() {
		for _, ns := range s.sums {
			node, on, err := s.pair(p, ns.node, ns.scratch)
			if err != nil {
				return err
			}
			if err = on.CopyToNode(node); err != nil {
				return errors.Wrapf(err, "%s: box %d", s.name, p.LocalID())
			}
		}
	}
	utils.Logger().WithFields(logrus.Fields{
		"sum":   s.name,
		"level": ln,
		"items": len(s.sums),
	}).Debug("boundary node sum done")
	return nil
}

func (s *PatchBoundaryNodeSum) pair(p *hier.Patch, nodeID, onodeID int) (*pdat.NodeData, *pdat.OuternodeData, error) {
	node, ok := p.Data(nodeID).(*pdat.NodeData)
	if !ok {
		return nil, nil, errors.Wrapf(hier.ErrPrecondition, "%s: box %d has no node data %s",
			s.name, p.LocalID(), s.desc.Name(nodeID))
	}
	on, ok := p.Data(onodeID).(*pdat.OuternodeData)
	if !ok {
		return nil, nil, errors.Wrapf(hier.ErrPrecondition, "%s: box %d has no outernode data", s.name, p.LocalID())
	}
	return node, on, nil
}
