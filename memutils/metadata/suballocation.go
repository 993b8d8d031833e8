package metadata

import "math"

// BlockAllocationHandle identifies a region within one BlockMetadata. Handles are only unique
// within their block.
type BlockAllocationHandle uint64

const (
	NoAllocation BlockAllocationHandle = math.MaxUint64
)

// Suballocation is a placed region within a block
type Suballocation struct {
	Offset   int
	Size     int
	UserData any
	Type     uint32
}

// End is the first byte after the suballocation
func (s Suballocation) End() int {
	return s.Offset + s.Size
}
