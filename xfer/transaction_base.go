package xfer

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
)

// txBase holds what every transaction knows: the two levels and boxes,
// the overlap in destination space, and the item being moved
type txBase struct {
	dstLevel, srcLevel *hier.PatchLevel
	ov                 hier.BoxOverlap
	dstBox, srcBox     hier.Box
	item               RefineItem
	itemID             int
	semantic           Semantic
	consumed           bool
}

// newTxBase checks the arguments shared by every factory
func newTxBase(s Semantic, dstLevel, srcLevel *hier.PatchLevel, ov hier.BoxOverlap, dstBox, srcBox hier.Box,
	items *RefineClasses, itemID int) (txBase, error) {
	switch {
	case dstLevel == nil || srcLevel == nil:
		return txBase{}, errors.Wrap(hier.ErrPrecondition, "allocate transaction: nil level")
	case ov == nil:
		return txBase{}, errors.Wrap(hier.ErrPrecondition, "allocate transaction: nil overlap")
	case items == nil:
		return txBase{}, errors.Wrap(hier.ErrPrecondition, "allocate transaction: nil refine classes")
	case dstBox.LocalID < 0 || srcBox.LocalID < 0:
		return txBase{}, errors.Wrapf(hier.ErrPrecondition, "allocate transaction: local ids %d and %d",
			dstBox.LocalID, srcBox.LocalID)
	}
	dim := dstLevel.Dim()
	if srcLevel.Dim() != dim || ov.Dim() != dim || dstBox.Dim() != dim || srcBox.Dim() != dim {
		return txBase{}, errors.Wrapf(hier.ErrPrecondition, "allocate transaction: dimensions %d, %d, %d, %d, %d",
			dim, srcLevel.Dim(), ov.Dim(), dstBox.Dim(), srcBox.Dim())
	}
	item, err := items.Item(itemID)
	if err != nil {
		return txBase{}, errors.Wrap(err, "allocate transaction")
	}
	transactionsAllocated.WithLabelValues(s.String()).Inc()
	return txBase{
		dstLevel: dstLevel,
		srcLevel: srcLevel,
		ov:       ov,
		dstBox:   dstBox,
		srcBox:   srcBox,
		item:     item,
		itemID:   itemID,
		semantic: s,
	}, nil
}

func (t *txBase) SourceRank() int { return t.srcBox.Owner }

func (t *txBase) DestinationRank() int { return t.dstBox.Owner }

func (t *txBase) CanEstimateIncomingMessageSize() bool { return true }

func (t *txBase) Semantic() Semantic { return t.semantic }

func (t *txBase) Key() Key {
	return Key{Dst: t.dstBox.ID(), Item: t.itemID, Src: t.srcBox.ID()}
}

// consume marks the transaction executed, failing if it already was
func (t *txBase) consume(path string) error {
	if t.consumed {
		return errors.Wrapf(ErrTransactionConsumed, "%v transaction %v", t.semantic, t.Key())
	}
	t.consumed = true
	transactionsExecuted.WithLabelValues(t.semantic.String(), path).Inc()
	return nil
}

// dstData is the scratch storage written by the transaction
func (t *txBase) dstData() (hier.PatchData, error) {
	return patchData(t.dstLevel, t.dstBox.LocalID, t.item.Scratch)
}

func (t *txBase) srcData() (hier.PatchData, error) {
	return patchData(t.srcLevel, t.srcBox.LocalID, t.item.Src)
}

func patchData(level *hier.PatchLevel, id hier.LocalID, component int) (hier.PatchData, error) {
	p := level.Patch(id)
	if p == nil {
		return nil, errors.Wrapf(hier.ErrPrecondition, "level %d rank %d does not own box %d",
			level.Number, level.Rank, id)
	}
	d := p.Data(component)
	if d == nil {
		return nil, errors.Wrapf(hier.ErrPrecondition, "level %d box %d: component %s not allocated",
			level.Number, id, level.Descriptor().Name(component))
	}
	return d, nil
}
