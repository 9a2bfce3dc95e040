package hier

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// PatchLevel is one level of the hierarchy as seen by one process. It
// knows every box of the level, addressed by LocalID, and holds patches
// only for the boxes the process owns.
type PatchLevel struct {
	Number           int
	Rank             int
	RatioToLevelZero IntVector

	boxes   []Box // Indexed by LocalID
	patches map[LocalID]*Patch
	desc    *PatchDescriptor
}

// NewPatchLevel validates the box list and creates patches for the boxes
// owned by rank. Box local ids must be 0..len(boxes)-1 in some order.
func NewPatchLevel(number int, ratioToLevelZero IntVector, boxes []Box, rank int,
	desc *PatchDescriptor) (*PatchLevel, error) {
	if desc == nil {
		return nil, errors.Wrap(ErrPrecondition, "new level: nil descriptor")
	}
	if err := checkRatio("new level", ratioToLevelZero); err != nil {
		return nil, err
	}
	pl := &PatchLevel{
		Number:           number,
		Rank:             rank,
		RatioToLevelZero: ratioToLevelZero.Clone(),
		boxes:            make([]Box, len(boxes)),
		patches:          make(map[LocalID]*Patch),
		desc:             desc,
	}
	seen := make([]bool, len(boxes))
	for _, b := range boxes {
		if err := checkDims("new level", ratioToLevelZero.Dim(), b.Dim()); err != nil {
			return nil, err
		}
		if b.LocalID < 0 || int(b.LocalID) >= len(boxes) {
			return nil, errors.Wrapf(ErrPrecondition, "new level %d: local id %d out of range", number, b.LocalID)
		}
		if seen[b.LocalID] {
			return nil, errors.Wrapf(ErrPrecondition, "new level %d: duplicate local id %d", number, b.LocalID)
		}
		if b.Owner < 0 {
			return nil, errors.Wrapf(ErrPrecondition, "new level %d: box %d has no owner", number, b.LocalID)
		}
		if b.IsEmpty() {
			return nil, errors.Wrapf(ErrPrecondition, "new level %d: box %d is empty", number, b.LocalID)
		}
		seen[b.LocalID] = true
		b.Periodic = ZeroPeriodicID
		pl.boxes[b.LocalID] = b
	}
	if err := pl.ValidateLayout(); err != nil {
		return nil, err
	}
	for _, b := range pl.boxes {
		if b.Owner == rank {
			pl.patches[b.LocalID] = newPatch(b, desc)
		}
	}
	return pl, nil
}

// ValidateLayout checks that boxes of the same block do not share cells
func (pl *PatchLevel) ValidateLayout() error {
	for i := range pl.boxes {
		for j := i + 1; j < len(pl.boxes); j++ {
			a, b := pl.boxes[i], pl.boxes[j]
			if a.Block != b.Block {
				continue
			}
			ov, err := Intersect(a, b)
			if err != nil {
				return err
			}
			if !ov.IsEmpty() {
				return errors.Wrapf(ErrPrecondition, "level %d: boxes %d and %d overlap in %v",
					pl.Number, a.LocalID, b.LocalID, ov)
			}
		}
	}
	return nil
}

func (pl *PatchLevel) Dim() int { return pl.RatioToLevelZero.Dim() }

func (pl *PatchLevel) Descriptor() *PatchDescriptor { return pl.desc }

func (pl *PatchLevel) NumBoxes() int { return len(pl.boxes) }

// Boxes returns every box of the level in LocalID order
func (pl *PatchLevel) Boxes() []Box { return pl.boxes }

// Box returns the box with the given local id
func (pl *PatchLevel) Box(id LocalID) (Box, error) {
	if id < 0 || int(id) >= len(pl.boxes) {
		return Box{}, errors.Wrapf(ErrPrecondition, "level %d: no box %d", pl.Number, id)
	}
	return pl.boxes[id], nil
}

// Patch returns the local patch for id, or nil when another rank owns it
func (pl *PatchLevel) Patch(id LocalID) *Patch {
	return pl.patches[id]
}

// LocalPatches returns the patches owned by this process in LocalID order
func (pl *PatchLevel) LocalPatches() []*Patch {
	ps := make([]*Patch, 0, len(pl.patches))
	for _, p := range pl.patches {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].LocalID() < ps[j].LocalID() })
	return ps
}

// IsLocal reports whether this process owns box id
func (pl *PatchLevel) IsLocal(id LocalID) bool {
	_, ok := pl.patches[id]
	return ok
}

// AllocateData allocates the given components on every local patch
func (pl *PatchLevel) AllocateData(ids ...int) error {
	for _, p := range pl.LocalPatches() {
		for _, id := range ids {
			if err := p.Allocate(id); err != nil {
				return errors.Wrapf(err, "level %d patch %d", pl.Number, p.LocalID())
			}
		}
	}
	return nil
}

// DeallocateData drops the given components from every local patch
func (pl *PatchLevel) DeallocateData(ids ...int) {
	for _, p := range pl.patches {
		for _, id := range ids {
			p.Deallocate(id)
		}
	}
}

// RatioTo returns how many cells of this level cover one cell of o along
// each axis, and whether this level is at least as fine as o
func (pl *PatchLevel) RatioTo(o *PatchLevel) (IntVector, bool, error) {
	if err := checkDims("level ratio", pl.Dim(), o.Dim()); err != nil {
		return nil, false, err
	}
	r := make(IntVector, pl.Dim())
	finer := pl.RatioToLevelZero[0] >= o.RatioToLevelZero[0]
	for i := range r {
		hi, lo := pl.RatioToLevelZero[i], o.RatioToLevelZero[i]
		if !finer {
			hi, lo = lo, hi
		}
		if hi%lo != 0 {
			return nil, false, errors.Wrapf(ErrPrecondition, "levels %d and %d: ratio %d not a multiple of %d",
				pl.Number, o.Number, hi, lo)
		}
		r[i] = hi / lo
		if r[i] < 1 {
			return nil, false, errors.Wrapf(ErrPrecondition, "levels %d and %d are not nested", pl.Number, o.Number)
		}
	}
	return r, finer, nil
}

func (pl *PatchLevel) String() string {
	return fmt.Sprintf("level %d (rank %d, %d boxes, %d local)", pl.Number, pl.Rank, len(pl.boxes), len(pl.patches))
}
