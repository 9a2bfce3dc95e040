package algs

import (
	"github.com/pkg/errors"

	"github.com/notargets/amrsync/hier"
)

// TagBufferWidthRequestor asks for self connectors wide enough to buffer
// tagged cells on each level. Levels past the end of the buffer list reuse
// its last value. It asks for no fine width.
type TagBufferWidthRequestor struct {
	tagBuffer []int
}

func NewTagBufferWidthRequestor(tagBuffer []int) (*TagBufferWidthRequestor, error) {
	if err := checkTagBuffer(tagBuffer); err != nil {
		return nil, err
	}
	return &TagBufferWidthRequestor{tagBuffer: append([]int(nil), tagBuffer...)}, nil
}

func checkTagBuffer(tagBuffer []int) error {
	if len(tagBuffer) == 0 {
		return errors.Wrap(hier.ErrPrecondition, "tag buffer: empty")
	}
	for ln, b := range tagBuffer {
		if b < 0 {
			return errors.Wrapf(hier.ErrPrecondition, "tag buffer: level %d is %d", ln, b)
		}
	}
	return nil
}

// TagBuffer returns the buffer width of level ln
func (r *TagBufferWidthRequestor) TagBuffer(ln int) int {
	if ln < len(r.tagBuffer) {
		return r.tagBuffer[ln]
	}
	return r.tagBuffer[len(r.tagBuffer)-1]
}

// ComputeRequiredConnectorWidths implements hier.ConnectorWidthRequestor
func (r *TagBufferWidthRequestor) ComputeRequiredConnectorWidths(h *hier.PatchHierarchy) (self, fine []hier.IntVector, err error) {
	if err = checkTagBuffer(r.tagBuffer); err != nil {
		return nil, nil, err
	}
	dim, nl := h.Dim(), h.MaxLevels()
	self = make([]hier.IntVector, nl)
	for ln := range self {
		self[ln] = hier.NewIntVector(dim, r.TagBuffer(ln))
	}
	fine = make([]hier.IntVector, nl-1)
	for ln := range fine {
		fine[ln] = hier.Zero(dim)
	}
	return self, fine, nil
}
