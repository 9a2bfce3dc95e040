package hier

// BoxOverlap describes the index regions moved between one source and one
// destination box. Regions are expressed in the destination's index space;
// a source location is the destination location minus SourceOffset.
type BoxOverlap interface {
	Dim() int
	IsOverlapEmpty() bool
	// DestinationRegions returns the regions for one data axis. Cell and
	// node centred overlaps return the same regions for every axis.
	DestinationRegions(axis int) []Box
	SourceOffset() IntVector
}

// BoxGeometry computes overlaps for one data centring.
type BoxGeometry interface {
	// CalculateOverlap intersects the destination ghost box with a source
	// box already shifted into destination space. A non-empty fillBox
	// further restricts the result.
	CalculateOverlap(dstGhostBox, srcBox Box, srcOffset IntVector, fillBox Box) (BoxOverlap, error)
}
