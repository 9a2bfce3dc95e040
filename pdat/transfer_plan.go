package pdat

import (
	"fmt"
)

// TransferPlan is a flat list of pick and place indices: value
// Pick[i] of the source array goes to position Place[i] of the
// destination array. Transfers are grouped in regions; within a region no
// place repeats, so a region's transfers can run in any order.
type TransferPlan struct {
	SrcLen, DstLen int // Lengths of the arrays the plan runs on

	Pick  []int
	Place []int

	// RegionStart[r] is the first transfer of region r; a final entry
	// holds Len()
	RegionStart []int

	expected int
}

// NewTransferPlan creates an empty plan for arrays of the given lengths
func NewTransferPlan(srcLen, dstLen int) *TransferPlan {
	return &TransferPlan{SrcLen: srcLen, DstLen: dstLen, RegionStart: []int{0}}
}

// BeginRegion starts a new region that will hold n transfers
func (p *TransferPlan) BeginRegion(n int) {
	if last := p.RegionStart[len(p.RegionStart)-1]; last != len(p.Pick) {
		p.RegionStart = append(p.RegionStart, len(p.Pick))
	}
	p.expected += n
}

// Add appends one transfer to the current region
func (p *TransferPlan) Add(pick, place int) {
	p.Pick = append(p.Pick, pick)
	p.Place = append(p.Place, place)
}

// Len returns the number of transfers
func (p *TransferPlan) Len() int { return len(p.Pick) }

// Regions returns [start, end) transfer ranges, one per region
func (p *TransferPlan) Regions() [][2]int {
	starts := p.RegionStart
	if starts[len(starts)-1] != len(p.Pick) {
		starts = append(append([]int(nil), starts...), len(p.Pick))
	}
	out := make([][2]int, 0, len(starts)-1)
	for i := 0; i+1 < len(starts); i++ {
		if starts[i] < starts[i+1] {
			out = append(out, [2]int{starts[i], starts[i+1]})
		}
	}
	return out
}

// Chunks splits every region into ranges of at most size transfers.
// Chunks never cross a region boundary.
func (p *TransferPlan) Chunks(size int) [][2]int {
	if size < 1 {
		size = 1
	}
	var out [][2]int
	for _, r := range p.Regions() {
		for s := r[0]; s < r[1]; s += size {
			out = append(out, [2]int{s, min(s+size, r[1])})
		}
	}
	return out
}

// Verify checks index validity and conservation properties
func (p *TransferPlan) Verify() error {
	// Verify 1: every pick and place is inside its array
	for i, idx := range p.Pick {
		if idx < 0 || idx >= p.SrcLen {
			return fmt.Errorf("invalid pick index %d at transfer %d (max %d)", idx, i, p.SrcLen-1)
		}
	}
	for i, idx := range p.Place {
		if idx < 0 || idx >= p.DstLen {
			return fmt.Errorf("invalid place index %d at transfer %d (max %d)", idx, i, p.DstLen-1)
		}
	}

	// Verify 2: pick and place arrays correspond one to one
	if len(p.Pick) != len(p.Place) {
		return fmt.Errorf("length mismatch: pick=%d, place=%d", len(p.Pick), len(p.Place))
	}

	// Verify 3: conservation, one transfer per destination location of
	// every region and no location written twice within a region
	if len(p.Place) != p.expected {
		return fmt.Errorf("conservation error: %d transfers for %d destination locations",
			len(p.Place), p.expected)
	}
	for _, r := range p.Regions() {
		seen := make(map[int]struct{}, r[1]-r[0])
		for _, idx := range p.Place[r[0]:r[1]] {
			if _, dup := seen[idx]; dup {
				return fmt.Errorf("place index %d written twice in region [%d,%d)", idx, r[0], r[1])
			}
			seen[idx] = struct{}{}
		}
	}
	return nil
}
