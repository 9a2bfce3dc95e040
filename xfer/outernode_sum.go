package xfer

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/utils"
)

// sumTransaction adds the source outernode values of the overlap into the
// destination scratch
type sumTransaction struct {
	txBase
}

func (t *sumTransaction) scratch() (*pdat.OuternodeData, error) {
	d, err := t.dstData()
	if err != nil {
		return nil, err
	}
	on, ok := d.(*pdat.OuternodeData)
	if !ok {
		return nil, errors.Wrapf(hier.ErrPrecondition, "boundary sum into %T", d)
	}
	return on, nil
}

func (t *sumTransaction) ComputeIncomingMessageSize() (int, error) {
	d, err := t.dstData()
	if err != nil {
		return 0, err
	}
	return d.DataStreamSize(t.ov), nil
}

func (t *sumTransaction) ComputeOutgoingMessageSize() (int, error) {
	s, err := t.srcData()
	if err != nil {
		return 0, err
	}
	return s.DataStreamSize(t.ov), nil
}

func (t *sumTransaction) PackStream(s *utils.MessageStream) error {
	if err := t.consume(pathPack); err != nil {
		return err
	}
	src, err := t.srcData()
	if err != nil {
		return err
	}
	return errors.Wrapf(src.PackStream(s, t.ov), "pack %v", t.Key())
}

func (t *sumTransaction) UnpackStream(s *utils.MessageStream) error {
	if err := t.consume(pathUnpack); err != nil {
		return err
	}
	dst, err := t.scratch()
	if err != nil {
		return err
	}
	return errors.Wrapf(dst.UnpackStreamAndSum(s, t.ov), "unpack %v", t.Key())
}

func (t *sumTransaction) CopyLocalData() error {
	if err := t.consume(pathLocal); err != nil {
		return err
	}
	dst, err := t.scratch()
	if err != nil {
		return err
	}
	src, err := t.srcData()
	if err != nil {
		return err
	}
	return errors.Wrapf(dst.Sum(src, t.ov), "sum %v", t.Key())
}

// OuternodeSumTransactionFactory allocates boundary sum transactions on
// outernode data. Source and destination must be the same level.
type OuternodeSumTransactionFactory struct{}

func (f *OuternodeSumTransactionFactory) Semantic() Semantic { return BoundarySum }

func (f *OuternodeSumTransactionFactory) Allocate(dstLevel, srcLevel *hier.PatchLevel, ov hier.BoxOverlap,
	dstBox, srcBox hier.Box, items *RefineClasses, itemID int) (Transaction, error) {
	return f.AllocateFill(dstLevel, srcLevel, ov, dstBox, srcBox, items, itemID, hier.Box{}, false)
}

// AllocateFill ignores the fill box and the time interpolation flag
func (f *OuternodeSumTransactionFactory) AllocateFill(dstLevel, srcLevel *hier.PatchLevel, ov hier.BoxOverlap,
	dstBox, srcBox hier.Box, items *RefineClasses, itemID int, fillBox hier.Box,
	useTimeInterpolation bool) (Transaction, error) {
	base, err := newTxBase(BoundarySum, dstLevel, srcLevel, ov, dstBox, srcBox, items, itemID)
	if err != nil {
		return nil, err
	}
	if !dstLevel.RatioToLevelZero.Equal(srcLevel.RatioToLevelZero) {
		return nil, errors.Wrapf(hier.ErrPrecondition, "boundary sum between levels %d and %d of different resolution",
			dstLevel.Number, srcLevel.Number)
	}
	for _, id := range []int{base.item.Src, base.item.Scratch} {
		fac, err := dstLevel.Descriptor().Factory(id)
		if err != nil {
			return nil, err
		}
		if fac.Centring() != hier.OuternodeCentred {
			return nil, errors.Wrapf(hier.ErrPrecondition, "boundary sum on %v component %s",
				fac.Centring(), dstLevel.Descriptor().Name(id))
		}
	}
	return &sumTransaction{txBase: base}, nil
}

// PreprocessScratchSpace zero-fills every selected component on every
// local patch. Unselected components are not touched.
func (f *OuternodeSumTransactionFactory) PreprocessScratchSpace(level *hier.PatchLevel, time float64,
	selector *hier.ComponentSelector) error {
	if level == nil || selector == nil {
		return errors.Wrap(hier.ErrPrecondition, "sum preprocess: nil argument")
	}
	ids := selector.IDs()
	for _, id := range ids {
		fac, err := level.Descriptor().Factory(id)
		if err != nil {
			return err
		}
		if fac.Centring() != hier.OuternodeCentred {
			return errors.Wrapf(hier.ErrPrecondition, "sum preprocess: component %s is %v data",
				level.Descriptor().Name(id), fac.Centring())
		}
	}
	for _, p := range level.LocalPatches() {
		for _, id := range ids {
			d := p.Data(id)
			if d == nil {
				return errors.Wrapf(hier.ErrPrecondition, "sum preprocess: level %d box %d component %d not allocated",
					level.Number, p.LocalID(), id)
			}
			d.FillAll(0)
		}
	}
	return nil
}

func (f *OuternodeSumTransactionFactory) PostprocessScratchSpace(level *hier.PatchLevel, time float64,
	selector *hier.ComponentSelector) error {
	return nil
}
