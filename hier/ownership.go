package hier

import (
	"fmt"
	"math"
)

// OwnerStrategy decides which rank owns each box of a level
type OwnerStrategy int

const (
	BlockOwners      OwnerStrategy = iota // Consecutive boxes per rank
	RoundRobinOwners                      // Distribute cyclically
)

func (s OwnerStrategy) String() string {
	switch s {
	case BlockOwners:
		return "block"
	case RoundRobinOwners:
		return "round-robin"
	default:
		return fmt.Sprintf("OwnerStrategy(%d)", int(s))
	}
}

// AssignOwners numbers boxes by position and distributes them over nranks.
// Load balancing proper lives outside this package; these two strategies
// are enough to build decompositions for tests and tools.
func AssignOwners(boxes []Box, nranks int, strategy OwnerStrategy) ([]Box, error) {
	if nranks < 1 {
		return nil, fmt.Errorf("assign owners: need at least one rank, got %d: %w", nranks, ErrPrecondition)
	}
	out := make([]Box, len(boxes))
	perRank := int(math.Ceil(float64(len(boxes)) / float64(nranks)))
	if perRank < 1 {
		perRank = 1
	}
	for i, b := range boxes {
		out[i] = b.withGeometry(b.Lower.Clone(), b.Upper.Clone())
		out[i].LocalID = LocalID(i)
		out[i].Periodic = ZeroPeriodicID
		switch strategy {
		case BlockOwners:
			out[i].Owner = min(i/perRank, nranks-1)
		case RoundRobinOwners:
			out[i].Owner = i % nranks
		default:
			return nil, fmt.Errorf("assign owners: unknown strategy %v: %w", strategy, ErrPrecondition)
		}
	}
	return out, nil
}

// BoxesOwnedBy returns the local ids owned by rank, in order
func BoxesOwnedBy(boxes []Box, rank int) []LocalID {
	var ids []LocalID
	for _, b := range boxes {
		if b.Owner == rank {
			ids = append(ids, b.LocalID)
		}
	}
	return ids
}
