package xfer

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/utils"
)

// Semantic says what a transaction does with the values it moves
type Semantic int

const (
	// Copy overwrites destination values
	Copy Semantic = iota
	// BoundarySum adds source values into the destination
	BoundarySum
)

func (s Semantic) String() string {
	switch s {
	case Copy:
		return "copy"
	case BoundarySum:
		return "boundary_sum"
	default:
		return fmt.Sprintf("semantic(%d)", int(s))
	}
}

// Key orders transactions. Schedules apply transactions by destination
// box, then item, then source box descending, so the lowest source is
// applied last.
type Key struct {
	Dst  hier.BoxID
	Item int
	Src  hier.BoxID
}

func (k Key) Less(o Key) bool {
	if c := k.Dst.Compare(o.Dst); c != 0 {
		return c < 0
	}
	if k.Item != o.Item {
		return k.Item < o.Item
	}
	return o.Src.Less(k.Src)
}

func (k Key) String() string {
	return fmt.Sprintf("%v<-%v[%d]", k.Dst, k.Src, k.Item)
}

// Transaction moves the data of one item over one box overlap. A
// transaction runs once, by CopyLocalData when both boxes are local, or
// by PackStream on the source rank and UnpackStream on the destination
// rank. Any further execution returns ErrTransactionConsumed.
type Transaction interface {
	SourceRank() int
	DestinationRank() int
	// CanEstimateIncomingMessageSize reports whether the destination can
	// size the incoming stream without asking the source
	CanEstimateIncomingMessageSize() bool
	ComputeIncomingMessageSize() (int, error)
	ComputeOutgoingMessageSize() (int, error)
	PackStream(s *utils.MessageStream) error
	UnpackStream(s *utils.MessageStream) error
	CopyLocalData() error
	Semantic() Semantic
	Key() Key
}

// TransactionFactory allocates transactions of one semantic and prepares
// the scratch space they write into
type TransactionFactory interface {
	Semantic() Semantic
	// Allocate is AllocateFill with no fill box and no time interpolation
	Allocate(dstLevel, srcLevel *hier.PatchLevel, ov hier.BoxOverlap, dstBox, srcBox hier.Box,
		items *RefineClasses, itemID int) (Transaction, error)
	AllocateFill(dstLevel, srcLevel *hier.PatchLevel, ov hier.BoxOverlap, dstBox, srcBox hier.Box,
		items *RefineClasses, itemID int, fillBox hier.Box, useTimeInterpolation bool) (Transaction, error)
	PreprocessScratchSpace(level *hier.PatchLevel, time float64, selector *hier.ComponentSelector) error
	PostprocessScratchSpace(level *hier.PatchLevel, time float64, selector *hier.ComponentSelector) error
}

// FactoryFor returns the factory for a semantic
func FactoryFor(s Semantic) (TransactionFactory, error) {
	switch s {
	case Copy:
		return &CopyTransactionFactory{}, nil
	case BoundarySum:
		return &OuternodeSumTransactionFactory{}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "no transaction factory for %v", s)
	}
}
