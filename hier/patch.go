package hier

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/utils"
)

// Centring says where on a cell the values of a data component live
type Centring int

const (
	CellCentred Centring = iota
	FaceCentred
	NodeCentred
	OuternodeCentred
)

func (c Centring) String() string {
	switch c {
	case CellCentred:
		return "cell"
	case FaceCentred:
		return "face"
	case NodeCentred:
		return "node"
	case OuternodeCentred:
		return "outernode"
	default:
		return "unknown"
	}
}

// OnBoundary reports whether neighbouring boxes share values of this
// centring along their common boundary
func (c Centring) OnBoundary() bool {
	return c != CellCentred
}

// PatchData is the storage of one component on one patch
type PatchData interface {
	Box() Box
	GhostBox() Box
	Depth() int
	FillAll(v float64)
	// Copy moves the overlap regions from src into the receiver
	Copy(src PatchData, overlap BoxOverlap) error
	DataStreamSize(overlap BoxOverlap) int
	PackStream(s *utils.MessageStream, overlap BoxOverlap) error
	UnpackStream(s *utils.MessageStream, overlap BoxOverlap) error
}

// PatchDataFactory allocates one component's storage for a box
type PatchDataFactory interface {
	Allocate(box Box) PatchData
	Ghosts() IntVector
	Depth() int
	Centring() Centring
	Geometry() BoxGeometry
}

// PatchDescriptor maps component ids to factories. Every level built from
// the same descriptor agrees on what each id means.
type PatchDescriptor struct {
	names     []string
	factories []PatchDataFactory
}

func NewPatchDescriptor() *PatchDescriptor {
	return &PatchDescriptor{}
}

// Register adds a component and returns its id
func (pd *PatchDescriptor) Register(name string, f PatchDataFactory) int {
	if f == nil {
		panic("PatchDescriptor.Register: nil factory for " + name)
	}
	pd.names = append(pd.names, name)
	pd.factories = append(pd.factories, f)
	return len(pd.factories) - 1
}

func (pd *PatchDescriptor) NumComponents() int { return len(pd.factories) }

// Factory returns the factory of component id
func (pd *PatchDescriptor) Factory(id int) (PatchDataFactory, error) {
	if id < 0 || id >= len(pd.factories) {
		return nil, errors.Wrapf(ErrPrecondition, "component %d not registered (have %d)", id, len(pd.factories))
	}
	return pd.factories[id], nil
}

// Name returns the registered name of component id, or "" if unknown
func (pd *PatchDescriptor) Name(id int) string {
	if id < 0 || id >= len(pd.names) {
		return ""
	}
	return pd.names[id]
}

// Patch is a box owned by this process together with its data
type Patch struct {
	box  Box
	desc *PatchDescriptor
	data []PatchData
}

func newPatch(box Box, desc *PatchDescriptor) *Patch {
	return &Patch{box: box, desc: desc, data: make([]PatchData, desc.NumComponents())}
}

func (p *Patch) Box() Box { return p.box }

func (p *Patch) LocalID() LocalID { return p.box.LocalID }

// Allocate creates storage for component id if not already present
func (p *Patch) Allocate(id int) error {
	f, err := p.desc.Factory(id)
	if err != nil {
		return err
	}
	p.grow()
	if p.data[id] == nil {
		p.data[id] = f.Allocate(p.box)
	}
	return nil
}

// Deallocate drops the storage of component id
func (p *Patch) Deallocate(id int) {
	if id >= 0 && id < len(p.data) {
		p.data[id] = nil
	}
}

func (p *Patch) IsAllocated(id int) bool {
	return id >= 0 && id < len(p.data) && p.data[id] != nil
}

// Data returns the storage of component id, or nil when not allocated
func (p *Patch) Data(id int) PatchData {
	if !p.IsAllocated(id) {
		return nil
	}
	return p.data[id]
}

// grow picks up components registered after the patch was built
func (p *Patch) grow() {
	if n := p.desc.NumComponents(); n > len(p.data) {
		p.data = append(p.data, make([]PatchData, n-len(p.data))...)
	}
}
