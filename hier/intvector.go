package hier

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// IntVector is a point or extent in a D-dimensional integer index space
type IntVector []int

// NewIntVector returns a dim-component vector with every component set to v
func NewIntVector(dim, v int) IntVector {
	iv := make(IntVector, dim)
	for i := range iv {
		iv[i] = v
	}
	return iv
}

// Zero returns the dim-component zero vector
func Zero(dim int) IntVector { return NewIntVector(dim, 0) }

// One returns the dim-component unit vector
func One(dim int) IntVector { return NewIntVector(dim, 1) }

// Dim returns the number of components
func (v IntVector) Dim() int { return len(v) }

// Clone returns an independent copy
func (v IntVector) Clone() IntVector {
	c := make(IntVector, len(v))
	copy(c, v)
	return c
}

// Equal reports component-wise equality; vectors of different dimension are unequal
func (v IntVector) Equal(o IntVector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Add returns v+o
func (v IntVector) Add(o IntVector) (IntVector, error) {
	if err := checkDims("add", len(v), len(o)); err != nil {
		return nil, err
	}
	r := make(IntVector, len(v))
	for i := range v {
		r[i] = v[i] + o[i]
	}
	return r, nil
}

// Mul returns the component-wise product
func (v IntVector) Mul(o IntVector) (IntVector, error) {
	if err := checkDims("mul", len(v), len(o)); err != nil {
		return nil, err
	}
	r := make(IntVector, len(v))
	for i := range v {
		r[i] = v[i] * o[i]
	}
	return r, nil
}

// Max returns the component-wise maximum
func (v IntVector) Max(o IntVector) (IntVector, error) {
	if err := checkDims("max", len(v), len(o)); err != nil {
		return nil, err
	}
	r := make(IntVector, len(v))
	for i := range v {
		r[i] = max(v[i], o[i])
	}
	return r, nil
}

// Neg returns -v
func (v IntVector) Neg() IntVector {
	r := make(IntVector, len(v))
	for i := range v {
		r[i] = -v[i]
	}
	return r
}

// IsZero reports whether every component is zero
func (v IntVector) IsZero() bool {
	for _, c := range v {
		if c != 0 {
			return false
		}
	}
	return true
}

// Product returns the product of all components
func (v IntVector) Product() int {
	p := 1
	for _, c := range v {
		p *= c
	}
	return p
}

// Permute returns the vector relabelled for a face normal to axis: component
// i of the result is component (axis+i) mod D of v
func (v IntVector) Permute(axis int) IntVector {
	d := len(v)
	r := make(IntVector, d)
	for i := 0; i < d; i++ {
		r[i] = v[(axis+i)%d]
	}
	return r
}

// Unpermute inverts Permute
func (v IntVector) Unpermute(axis int) IntVector {
	d := len(v)
	r := make(IntVector, d)
	for i := 0; i < d; i++ {
		r[(axis+i)%d] = v[i]
	}
	return r
}

func (v IntVector) String() string {
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = fmt.Sprint(c)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// checkRatio requires every component of a refinement ratio to be positive
func checkRatio(op string, ratio IntVector) error {
	for i, r := range ratio {
		if r <= 0 {
			return errors.Wrapf(ErrPrecondition, "%s: ratio component %d is %d", op, i, r)
		}
	}
	return nil
}

// FloorDiv divides rounding toward negative infinity, so that negative
// indices coarsen consistently with positive ones
func FloorDiv(a, r int) int {
	if a < 0 {
		return (a+1)/r - 1
	}
	return a / r
}

// CoarseIndex maps a fine index to the coarse index covering it
func CoarseIndex(fine, ratio int) int {
	return FloorDiv(fine, ratio)
}
