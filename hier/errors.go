package hier

import "github.com/pkg/errors"

var (
	// ErrPrecondition is returned for invalid arguments: nil levels or
	// overlaps, negative local ids, non-positive ratios, out-of-range items
	ErrPrecondition = errors.New("precondition violated")
	// ErrDimensionMismatch is returned when operands of a binary geometric
	// operation have different dimensions
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrUnsupportedDimension is returned by operators that only handle
	// 1, 2 and 3 dimensions
	ErrUnsupportedDimension = errors.New("unsupported dimension")
	// ErrBlockMismatch is returned when boxes of different blocks are combined
	ErrBlockMismatch = errors.New("block mismatch")
)

func checkDims(op string, dims ...int) error {
	for _, d := range dims[1:] {
		if d != dims[0] {
			return errors.Wrapf(ErrDimensionMismatch, "%s: dimensions %v", op, dims)
		}
	}
	return nil
}
