package hier

import "github.com/bits-and-blooms/bitset"

// ComponentSelector is a set of component ids
type ComponentSelector struct {
	bits *bitset.BitSet
}

func NewComponentSelector(ids ...int) *ComponentSelector {
	cs := &ComponentSelector{bits: bitset.New(0)}
	for _, id := range ids {
		cs.Set(id)
	}
	return cs
}

func (cs *ComponentSelector) Set(id int) {
	if id >= 0 {
		cs.bits.Set(uint(id))
	}
}

func (cs *ComponentSelector) Clear(id int) {
	if id >= 0 {
		cs.bits.Clear(uint(id))
	}
}

func (cs *ComponentSelector) IsSet(id int) bool {
	return id >= 0 && cs.bits.Test(uint(id))
}

func (cs *ComponentSelector) Count() int { return int(cs.bits.Count()) }

// Union adds every id of o to cs
func (cs *ComponentSelector) Union(o *ComponentSelector) {
	cs.bits.InPlaceUnion(o.bits)
}

// IDs returns the selected ids in increasing order
func (cs *ComponentSelector) IDs() []int {
	ids := make([]int, 0, cs.bits.Count())
	for i, ok := cs.bits.NextSet(0); ok; i, ok = cs.bits.NextSet(i + 1) {
		ids = append(ids, int(i))
	}
	return ids
}
