package metadata

import "github.com/vkngwrapper/core/v2/common"

// AllocationStrategy chooses how a BlockMetadata picks between free ranges that can all hold an
// allocation. Zero selects AllocationStrategyMinMemory.
type AllocationStrategy uint32

var allocationStrategyMapping = common.NewFlagStringMapping[AllocationStrategy]()

func (s AllocationStrategy) Register(str string) {
	allocationStrategyMapping.Register(s, str)
}

func (s AllocationStrategy) String() string {
	return allocationStrategyMapping.FlagsToString(s)
}

const (
	// AllocationStrategyMinMemory picks the smallest free range that fits (best fit)
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime tries the largest free range first, which almost always fits on
	// the first check, and falls back to best fit
	AllocationStrategyMinTime
	// AllocationStrategyMinOffset picks the free range with the lowest offset. It packs allocations
	// toward the start of the block and is used by defragmentation.
	AllocationStrategyMinOffset
)

func init() {
	AllocationStrategyMinMemory.Register("MinMemory")
	AllocationStrategyMinTime.Register("MinTime")
	AllocationStrategyMinOffset.Register("MinOffset")
}
