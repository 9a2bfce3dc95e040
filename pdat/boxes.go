package pdat

import (
	"github.com/notargets/amrsync/hier"
)

// FaceBox returns the faces normal to axis of a cell box in face index
// space: component i is cell axis (axis+i) mod D and component 0, the
// normal, runs over the lo..hi+1 boundary positions.
func FaceBox(cells hier.Box, axis int) hier.Box {
	if cells.IsEmpty() {
		return emptyLike(cells)
	}
	r := cells
	r.Lower = cells.Lower.Permute(axis)
	r.Upper = cells.Upper.Permute(axis)
	r.Upper[0]++
	return r
}

// NodeBox returns the nodes of a cell box
func NodeBox(cells hier.Box) hier.Box {
	if cells.IsEmpty() {
		return emptyLike(cells)
	}
	r := cells
	r.Lower = cells.Lower.Clone()
	r.Upper = cells.Upper.Clone()
	for i := range r.Upper {
		r.Upper[i]++
	}
	return r
}

// OuternodeSides returns the node boxes holding the outer nodes of a cell
// box: for axis d the lower and upper planes normal to d, with axes before
// d trimmed by one node at each end. Every outer node is in exactly one
// side.
func OuternodeSides(cells hier.Box) [][2]hier.Box {
	dim := cells.Dim()
	nodes := NodeBox(cells)
	sides := make([][2]hier.Box, dim)
	for d := 0; d < dim; d++ {
		for s := 0; s < 2; s++ {
			b := nodes
			b.Lower = nodes.Lower.Clone()
			b.Upper = nodes.Upper.Clone()
			if s == 0 {
				b.Upper[d] = b.Lower[d]
			} else {
				b.Lower[d] = b.Upper[d]
			}
			for dd := 0; dd < d; dd++ {
				b.Lower[dd]++
				b.Upper[dd]--
			}
			sides[d][s] = b
		}
	}
	return sides
}

func emptyLike(b hier.Box) hier.Box {
	e := hier.EmptyBox(b.Dim())
	e.Block = b.Block
	return e
}

// intersectAll intersects every box of as with every box of bs, keeping
// non-empty results in order
func intersectAll(as, bs []hier.Box) ([]hier.Box, error) {
	var out []hier.Box
	for _, a := range as {
		for _, b := range bs {
			r, err := hier.Intersect(a, b)
			if err != nil {
				return nil, err
			}
			if !r.IsEmpty() {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func flattenSides(sides [][2]hier.Box) []hier.Box {
	out := make([]hier.Box, 0, 2*len(sides))
	for _, s := range sides {
		for _, b := range s {
			if !b.IsEmpty() {
				out = append(out, b)
			}
		}
	}
	return out
}
