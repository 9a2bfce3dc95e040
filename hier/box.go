package hier

import (
	"fmt"

	"github.com/pkg/errors"
)

// BlockID identifies the block of a multiblock domain a box lives in
type BlockID int

// PeriodicID identifies a periodic image; zero is the unshifted box
type PeriodicID int

// LocalID is a box's index within its level
type LocalID int

const (
	// InvalidLocalID marks boxes that have no place in a level, such as
	// the result of an intersection
	InvalidLocalID LocalID = -1
	// ZeroPeriodicID is the id of an unshifted box
	ZeroPeriodicID PeriodicID = 0
)

// BoxID orders boxes globally: by owner rank, then local id, then
// periodic image. Every process computes the same order without talking
// to the others.
type BoxID struct {
	Owner    int
	LocalID  LocalID
	Periodic PeriodicID
}

// Less reports whether id sorts before o
func (id BoxID) Less(o BoxID) bool {
	if id.Owner != o.Owner {
		return id.Owner < o.Owner
	}
	if id.LocalID != o.LocalID {
		return id.LocalID < o.LocalID
	}
	return id.Periodic < o.Periodic
}

// Compare returns -1, 0 or 1
func (id BoxID) Compare(o BoxID) int {
	switch {
	case id.Less(o):
		return -1
	case o.Less(id):
		return 1
	default:
		return 0
	}
}

func (id BoxID) String() string {
	return fmt.Sprintf("%d:%d#%d", id.Owner, id.LocalID, id.Periodic)
}

// Box is an axis-aligned rectangle of cells with inclusive corners
type Box struct {
	Lower, Upper IntVector

	Block    BlockID
	Periodic PeriodicID
	LocalID  LocalID
	Owner    int // Rank of the owning process
}

// NewBox creates a box in block 0 with no level identity
func NewBox(lower, upper IntVector) Box {
	if len(lower) != len(upper) {
		panic(fmt.Sprintf("NewBox: corner dimensions %d and %d differ", len(lower), len(upper)))
	}
	return Box{
		Lower:   lower.Clone(),
		Upper:   upper.Clone(),
		LocalID: InvalidLocalID,
	}
}

// EmptyBox returns the canonical empty box of the given dimension
func EmptyBox(dim int) Box {
	return Box{
		Lower:   Zero(dim),
		Upper:   NewIntVector(dim, -1),
		LocalID: InvalidLocalID,
	}
}

// Dim returns the dimension of the box
func (b Box) Dim() int { return len(b.Lower) }

// ID returns the global identifier of the box
func (b Box) ID() BoxID {
	return BoxID{Owner: b.Owner, LocalID: b.LocalID, Periodic: b.Periodic}
}

// IsEmpty reports whether the box holds no cells
func (b Box) IsEmpty() bool {
	for i := range b.Lower {
		if b.Lower[i] > b.Upper[i] {
			return true
		}
	}
	return len(b.Lower) == 0
}

// Extent returns the number of cells along each axis
func (b Box) Extent() IntVector {
	e := make(IntVector, b.Dim())
	if b.IsEmpty() {
		return e
	}
	for i := range e {
		e[i] = b.Upper[i] - b.Lower[i] + 1
	}
	return e
}

// NumCells returns the number of cells in the box
func (b Box) NumCells() int {
	if b.IsEmpty() {
		return 0
	}
	return b.Extent().Product()
}

// Contains reports whether idx lies in the box
func (b Box) Contains(idx IntVector) bool {
	if len(idx) != b.Dim() {
		return false
	}
	for i := range idx {
		if idx[i] < b.Lower[i] || idx[i] > b.Upper[i] {
			return false
		}
	}
	return true
}

// ContainsBox reports whether o lies entirely inside b; an empty o is
// contained in any box of the same dimension
func (b Box) ContainsBox(o Box) bool {
	if o.Dim() != b.Dim() {
		return false
	}
	if o.IsEmpty() {
		return true
	}
	return b.Contains(o.Lower) && b.Contains(o.Upper)
}

// Equal compares corners and block, ignoring level identity. All empty
// boxes of one dimension are equal.
func (b Box) Equal(o Box) bool {
	if b.IsEmpty() && o.IsEmpty() {
		return b.Dim() == o.Dim()
	}
	return b.Block == o.Block && b.Lower.Equal(o.Lower) && b.Upper.Equal(o.Upper)
}

// Offset returns the linear position of idx in the box, axis 0 fastest
func (b Box) Offset(idx IntVector) int {
	off := 0
	stride := 1
	for i := range idx {
		off += (idx[i] - b.Lower[i]) * stride
		stride *= b.Upper[i] - b.Lower[i] + 1
	}
	return off
}

// Iterate calls fn for every index of the box with axis 0 varying fastest.
// The slice passed to fn is reused between calls.
func (b Box) Iterate(fn func(idx IntVector)) {
	if b.IsEmpty() {
		return
	}
	idx := b.Lower.Clone()
	d := b.Dim()
	for {
		fn(idx)
		i := 0
		for ; i < d; i++ {
			idx[i]++
			if idx[i] <= b.Upper[i] {
				break
			}
			idx[i] = b.Lower[i]
		}
		if i == d {
			return
		}
	}
}

func (b Box) String() string {
	if b.IsEmpty() {
		return fmt.Sprintf("[empty %dD]", b.Dim())
	}
	return fmt.Sprintf("[%v,%v]", b.Lower, b.Upper)
}

// withGeometry copies the identity of b onto new corners
func (b Box) withGeometry(lower, upper IntVector) Box {
	r := b
	r.Lower = lower
	r.Upper = upper
	return r
}

// Intersect returns the cells common to a and b. The result has no level
// identity and is the same whichever operand comes first.
func Intersect(a, b Box) (Box, error) {
	if err := checkDims("intersect", a.Dim(), b.Dim()); err != nil {
		return Box{}, err
	}
	if a.Block != b.Block {
		return Box{}, errors.Wrapf(ErrBlockMismatch, "intersect: blocks %d and %d", a.Block, b.Block)
	}
	d := a.Dim()
	if a.IsEmpty() || b.IsEmpty() {
		r := EmptyBox(d)
		r.Block = a.Block
		return r, nil
	}
	lo := make(IntVector, d)
	hi := make(IntVector, d)
	for i := 0; i < d; i++ {
		lo[i] = max(a.Lower[i], b.Lower[i])
		hi[i] = min(a.Upper[i], b.Upper[i])
		if lo[i] > hi[i] {
			r := EmptyBox(d)
			r.Block = a.Block
			return r, nil
		}
	}
	return Box{Lower: lo, Upper: hi, Block: a.Block, LocalID: InvalidLocalID}, nil
}

// Coarsen maps every corner by floor division so negative cells coarsen
// the same way positive ones do
func Coarsen(b Box, ratio IntVector) (Box, error) {
	if err := checkDims("coarsen", b.Dim(), ratio.Dim()); err != nil {
		return Box{}, err
	}
	if err := checkRatio("coarsen", ratio); err != nil {
		return Box{}, err
	}
	if b.IsEmpty() {
		return b.withGeometry(b.Lower.Clone(), b.Upper.Clone()), nil
	}
	lo := make(IntVector, b.Dim())
	hi := make(IntVector, b.Dim())
	for i := range lo {
		lo[i] = FloorDiv(b.Lower[i], ratio[i])
		hi[i] = FloorDiv(b.Upper[i], ratio[i])
	}
	return b.withGeometry(lo, hi), nil
}

// Refine maps every coarse cell to the ratio^D fine cells it covers
func Refine(b Box, ratio IntVector) (Box, error) {
	if err := checkDims("refine", b.Dim(), ratio.Dim()); err != nil {
		return Box{}, err
	}
	if err := checkRatio("refine", ratio); err != nil {
		return Box{}, err
	}
	if b.IsEmpty() {
		return b.withGeometry(b.Lower.Clone(), b.Upper.Clone()), nil
	}
	lo := make(IntVector, b.Dim())
	hi := make(IntVector, b.Dim())
	for i := range lo {
		lo[i] = b.Lower[i] * ratio[i]
		hi[i] = (b.Upper[i]+1)*ratio[i] - 1
	}
	return b.withGeometry(lo, hi), nil
}

// Grow expands the box by amount cells on both sides of every axis.
// Empty boxes stay empty.
func Grow(b Box, amount IntVector) (Box, error) {
	if err := checkDims("grow", b.Dim(), amount.Dim()); err != nil {
		return Box{}, err
	}
	if b.IsEmpty() {
		return b.withGeometry(b.Lower.Clone(), b.Upper.Clone()), nil
	}
	lo := make(IntVector, b.Dim())
	hi := make(IntVector, b.Dim())
	for i := range lo {
		lo[i] = b.Lower[i] - amount[i]
		hi[i] = b.Upper[i] + amount[i]
	}
	return b.withGeometry(lo, hi), nil
}

// GrowUpper extends the upper corner along one axis
func GrowUpper(b Box, axis, amount int) Box {
	hi := b.Upper.Clone()
	hi[axis] += amount
	return b.withGeometry(b.Lower.Clone(), hi)
}

// Shift translates the box by offset
func Shift(b Box, offset IntVector) (Box, error) {
	if err := checkDims("shift", b.Dim(), offset.Dim()); err != nil {
		return Box{}, err
	}
	if b.IsEmpty() {
		return b.withGeometry(b.Lower.Clone(), b.Upper.Clone()), nil
	}
	lo, _ := b.Lower.Add(offset)
	hi, _ := b.Upper.Add(offset)
	return b.withGeometry(lo, hi), nil
}

// PeriodicImage shifts the box by a periodic shift and tags it with id
func PeriodicImage(b Box, shift IntVector, id PeriodicID) (Box, error) {
	r, err := Shift(b, shift)
	if err != nil {
		return Box{}, err
	}
	r.Periodic = id
	return r, nil
}
