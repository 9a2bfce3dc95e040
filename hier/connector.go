package hier

import (
	"sort"

	"github.com/pkg/errors"
)

// Connector lists, for every box of a base level, the boxes of a head
// level (and their periodic images) lying within a width of it. It is
// built once and only read afterwards.
type Connector struct {
	base, head *PatchLevel
	width      IntVector
	ratio      IntVector // Between base and head, always >= 1
	headFiner  bool
	neighbors  [][]Box // Indexed by base LocalID
}

// NewConnector finds the neighbours of every base box. width is measured
// in the base index space; shift is the periodic period in the head index
// space, zero on non-periodic axes.
func NewConnector(base, head *PatchLevel, width, shift IntVector) (*Connector, error) {
	if base == nil || head == nil {
		return nil, errors.Wrap(ErrPrecondition, "connector: nil level")
	}
	if err := checkDims("connector", base.Dim(), head.Dim(), width.Dim(), shift.Dim()); err != nil {
		return nil, err
	}
	ratio, headFiner, err := head.RatioTo(base)
	if err != nil {
		return nil, err
	}
	c := &Connector{
		base:      base,
		head:      head,
		width:     width.Clone(),
		ratio:     ratio,
		headFiner: headFiner,
		neighbors: make([][]Box, base.NumBoxes()),
	}
	images, err := periodicImages(head.Boxes(), shift)
	if err != nil {
		return nil, err
	}
	for _, b := range base.Boxes() {
		g, err := Grow(b, width)
		if err != nil {
			return nil, err
		}
		g, err = c.ToHead(g)
		if err != nil {
			return nil, err
		}
		var nbrs []Box
		for _, hb := range images {
			if hb.Block != g.Block {
				continue
			}
			ov, err := Intersect(g, hb)
			if err != nil {
				return nil, err
			}
			if !ov.IsEmpty() {
				nbrs = append(nbrs, hb)
			}
		}
		sort.Slice(nbrs, func(i, j int) bool { return nbrs[i].ID().Less(nbrs[j].ID()) })
		c.neighbors[b.LocalID] = nbrs
	}
	return c, nil
}

// periodicImages returns the boxes followed by their images under every
// combination of -1, 0, +1 periods on the periodic axes
func periodicImages(boxes []Box, shift IntVector) ([]Box, error) {
	out := append([]Box(nil), boxes...)
	if shift.IsZero() {
		return out, nil
	}
	dim := shift.Dim()
	combos := 1
	for i := 0; i < dim; i++ {
		combos *= 3
	}
	for _, b := range boxes {
		for n := 0; n < combos; n++ {
			off := make(IntVector, dim)
			skip := false
			k := n
			for i := 0; i < dim; i++ {
				m := k%3 - 1
				k /= 3
				if m != 0 && shift[i] == 0 {
					skip = true
					break
				}
				off[i] = m * shift[i]
			}
			if skip || off.IsZero() {
				continue
			}
			img, err := PeriodicImage(b, off, PeriodicID(n+1))
			if err != nil {
				return nil, err
			}
			out = append(out, img)
		}
	}
	return out, nil
}

func (c *Connector) Base() *PatchLevel { return c.base }

func (c *Connector) Head() *PatchLevel { return c.head }

func (c *Connector) Width() IntVector { return c.width.Clone() }

// Ratio returns the refinement ratio between the two levels and whether
// head is the finer one
func (c *Connector) Ratio() (IntVector, bool) { return c.ratio.Clone(), c.headFiner }

// ToHead maps a box from base to head index space
func (c *Connector) ToHead(b Box) (Box, error) {
	if c.headFiner {
		return Refine(b, c.ratio)
	}
	return Coarsen(b, c.ratio)
}

// Neighbors returns the head boxes near base box id, sorted by BoxID.
// Periodic images carry a non-zero Periodic id and shifted corners.
func (c *Connector) Neighbors(id LocalID) []Box {
	if id < 0 || int(id) >= len(c.neighbors) {
		return nil
	}
	return c.neighbors[id]
}

// NumRelationships counts the base to head pairs
func (c *Connector) NumRelationships() int {
	n := 0
	for _, nb := range c.neighbors {
		n += len(nb)
	}
	return n
}

// PeriodicOffset returns how far an image was shifted from the head box it
// was made from
func (c *Connector) PeriodicOffset(image Box) (IntVector, error) {
	orig, err := c.head.Box(image.LocalID)
	if err != nil {
		return nil, err
	}
	off := make(IntVector, image.Dim())
	for i := range off {
		off[i] = image.Lower[i] - orig.Lower[i]
	}
	return off, nil
}
