package hier

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/notargets/amrsync/utils"
)

// ConnectorWidthRequestor is implemented by every algorithm that needs
// overlap discovery between boxes. Each returns the minimum widths it
// needs; the hierarchy keeps the component-wise maximum over all of them.
type ConnectorWidthRequestor interface {
	// ComputeRequiredConnectorWidths returns one self width per level
	// (MaxLevels entries) and one fine width per pair of adjacent levels
	// (MaxLevels-1 entries, index i for levels i and i+1, expressed in the
	// index space of level i).
	ComputeRequiredConnectorWidths(h *PatchHierarchy) (self, fine []IntVector, err error)
}

// AggregateConnectorWidths folds the requests of every requestor by
// component-wise maximum. Folding with max is commutative, so the order of
// the requestors never changes the result.
func AggregateConnectorWidths(h *PatchHierarchy, requestors ...ConnectorWidthRequestor) (self, fine []IntVector, err error) {
	dim, nl := h.Dim(), h.MaxLevels()
	self = make([]IntVector, nl)
	for i := range self {
		self[i] = Zero(dim)
	}
	fine = make([]IntVector, max(nl-1, 0))
	for i := range fine {
		fine[i] = Zero(dim)
	}
	for ri, r := range requestors {
		s, f, err := r.ComputeRequiredConnectorWidths(h)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "requestor %d", ri)
		}
		if len(s) != nl || len(f) != len(fine) {
			return nil, nil, errors.Wrapf(ErrPrecondition,
				"requestor %d: returned %d self and %d fine widths, hierarchy has %d levels",
				ri, len(s), len(f), nl)
		}
		if err := foldMax(self, s); err != nil {
			return nil, nil, errors.Wrapf(err, "requestor %d self widths", ri)
		}
		if err := foldMax(fine, f); err != nil {
			return nil, nil, errors.Wrapf(err, "requestor %d fine widths", ri)
		}
	}
	utils.Logger().WithFields(logrus.Fields{
		"requestors": len(requestors),
		"self":       self,
		"fine":       fine,
	}).Debug("aggregated connector widths")
	return self, fine, nil
}

func foldMax(acc, in []IntVector) error {
	for i := range acc {
		for _, c := range in[i] {
			if c < 0 {
				return errors.Wrapf(ErrPrecondition, "negative width %v at %d", in[i], i)
			}
		}
		m, err := acc[i].Max(in[i])
		if err != nil {
			return err
		}
		acc[i] = m
	}
	return nil
}
