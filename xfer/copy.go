package xfer

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
	"github.com/notargets/amrsync/pdat"
	"github.com/notargets/amrsync/utils"
)

// copyTransaction overwrites destination values. Between levels of equal
// resolution it copies; from a coarser source it runs the item's refine
// operator, shipping the coarse regions when the source is remote.
type copyTransaction struct {
	txBase
	ratio    hier.IntVector  // nil for equal resolution
	coarseOv hier.BoxOverlap // Coarse regions feeding ov, in coarse destination space
}

func (t *copyTransaction) refines() bool { return t.ratio != nil }

// streamOverlap is what travels between ranks
func (t *copyTransaction) streamOverlap() hier.BoxOverlap {
	if t.refines() {
		return t.coarseOv
	}
	return t.ov
}

func (t *copyTransaction) ComputeIncomingMessageSize() (int, error) {
	d, err := t.dstData()
	if err != nil {
		return 0, err
	}
	return d.DataStreamSize(t.streamOverlap()), nil
}

func (t *copyTransaction) ComputeOutgoingMessageSize() (int, error) {
	s, err := t.srcData()
	if err != nil {
		return 0, err
	}
	return s.DataStreamSize(t.streamOverlap()), nil
}

func (t *copyTransaction) PackStream(s *utils.MessageStream) error {
	if err := t.consume(pathPack); err != nil {
		return err
	}
	src, err := t.srcData()
	if err != nil {
		return err
	}
	return errors.Wrapf(src.PackStream(s, t.streamOverlap()), "pack %v", t.Key())
}

func (t *copyTransaction) UnpackStream(s *utils.MessageStream) error {
	if err := t.consume(pathUnpack); err != nil {
		return err
	}
	dst, err := t.dstData()
	if err != nil {
		return err
	}
	if !t.refines() {
		return errors.Wrapf(dst.UnpackStream(s, t.ov), "unpack %v", t.Key())
	}
	f, err := t.dstLevel.Descriptor().Factory(t.item.Src)
	if err != nil {
		return err
	}
	coarse := f.Allocate(pdat.RegionBounds(t.coarseOv))
	if err = coarse.UnpackStream(s, t.coarseOv); err != nil {
		return errors.Wrapf(err, "unpack %v", t.Key())
	}
	// The received values already sit in destination space
	fineOv, err := pdat.WithoutOffset(t.ov)
	if err != nil {
		return err
	}
	return errors.Wrapf(t.item.Operator.Refine(dst, coarse, fineOv, t.ratio), "%s %v",
		t.item.Operator.Name(), t.Key())
}

func (t *copyTransaction) CopyLocalData() error {
	if err := t.consume(pathLocal); err != nil {
		return err
	}
	dst, err := t.dstData()
	if err != nil {
		return err
	}
	src, err := t.srcData()
	if err != nil {
		return err
	}
	if t.refines() {
		return errors.Wrapf(t.item.Operator.Refine(dst, src, t.ov, t.ratio), "%s %v",
			t.item.Operator.Name(), t.Key())
	}
	return errors.Wrapf(dst.Copy(src, t.ov), "copy %v", t.Key())
}

// CopyTransactionFactory allocates copy transactions
type CopyTransactionFactory struct{}

func (f *CopyTransactionFactory) Semantic() Semantic { return Copy }

func (f *CopyTransactionFactory) Allocate(dstLevel, srcLevel *hier.PatchLevel, ov hier.BoxOverlap,
	dstBox, srcBox hier.Box, items *RefineClasses, itemID int) (Transaction, error) {
	return f.AllocateFill(dstLevel, srcLevel, ov, dstBox, srcBox, items, itemID, hier.Box{}, false)
}

// AllocateFill restricts ov to fillBox when it is non-empty. Time
// interpolation is not available.
func (f *CopyTransactionFactory) AllocateFill(dstLevel, srcLevel *hier.PatchLevel, ov hier.BoxOverlap,
	dstBox, srcBox hier.Box, items *RefineClasses, itemID int, fillBox hier.Box,
	useTimeInterpolation bool) (Transaction, error) {
	if useTimeInterpolation {
		return nil, errors.Wrap(ErrUnsupported, "copy transaction: time interpolation")
	}
	base, err := newTxBase(Copy, dstLevel, srcLevel, ov, dstBox, srcBox, items, itemID)
	if err != nil {
		return nil, err
	}
	if base.ov, err = pdat.RestrictOverlap(ov, fillBox); err != nil {
		return nil, err
	}
	t := &copyTransaction{txBase: base}

	ratio, dstFiner, err := dstLevel.RatioTo(srcLevel)
	if err != nil {
		return nil, err
	}
	if ratio.Equal(hier.One(ratio.Dim())) {
		return t, nil
	}
	if !dstFiner {
		return nil, errors.Wrapf(hier.ErrPrecondition, "copy transaction: level %d is coarser than source level %d",
			dstLevel.Number, srcLevel.Number)
	}
	if base.item.Operator == nil {
		return nil, errors.Wrapf(hier.ErrPrecondition, "copy transaction: item %d has no refine operator", itemID)
	}
	t.ratio = ratio
	if t.coarseOv, err = pdat.CoarsenOverlap(t.ov, ratio); err != nil {
		return nil, err
	}
	return t, nil
}

// PreprocessScratchSpace checks that the selected components are allocated
func (f *CopyTransactionFactory) PreprocessScratchSpace(level *hier.PatchLevel, time float64,
	selector *hier.ComponentSelector) error {
	if level == nil || selector == nil {
		return errors.Wrap(hier.ErrPrecondition, "copy preprocess: nil argument")
	}
	for _, p := range level.LocalPatches() {
		for _, id := range selector.IDs() {
			if !p.IsAllocated(id) {
				return errors.Wrapf(hier.ErrPrecondition, "copy preprocess: level %d box %d component %d not allocated",
					level.Number, p.LocalID(), id)
			}
		}
	}
	return nil
}

func (f *CopyTransactionFactory) PostprocessScratchSpace(level *hier.PatchLevel, time float64,
	selector *hier.ComponentSelector) error {
	return nil
}
