package defrag

// Algorithm identifies which defragmentation algorithm will be used for defrag passes
type Algorithm uint32

const (
	// AlgorithmFast only moves allocations from later blocks into earlier ones. It needs fewer
	// passes but never compacts allocations within a block.
	AlgorithmFast Algorithm = iota + 1
	// AlgorithmFull also packs each block toward offset zero. Each allocation is moved straight to
	// its offset in the packed layout, which may take several passes to free up.
	//
	// This is the default algorithm if none is specified.
	AlgorithmFull
)

var algorithmMapping = map[Algorithm]string{
	AlgorithmFast: "AlgorithmFast",
	AlgorithmFull: "AlgorithmFull",
}

func (a Algorithm) String() string {
	return algorithmMapping[a]
}

// DefragmentationStats contains basic metrics for defragmentation over time
type DefragmentationStats struct {
	// BytesMoved is the number of bytes that have been successfully relocated
	BytesMoved int
	// BytesFreed is the number of bytes of device memory released. Moving an allocation only frees
	// memory if it leaves a block empty and the BlockList chooses to release that block.
	BytesFreed int
	// AllocationsMoved is the number of successful relocations
	AllocationsMoved int
	// DeviceMemoryBlocksFreed is the number of blocks the BlockList released
	DeviceMemoryBlocksFreed int
}

func (s *DefragmentationStats) Add(stats DefragmentationStats) {
	s.BytesMoved += stats.BytesMoved
	s.BytesFreed += stats.BytesFreed
	s.AllocationsMoved += stats.AllocationsMoved
	s.DeviceMemoryBlocksFreed += stats.DeviceMemoryBlocksFreed
}

type defragCounterStatus uint32

const (
	defragCounterPass defragCounterStatus = iota
	defragCounterIgnore
	defragCounterEnd
)

var defragCounterStatusMapping = map[defragCounterStatus]string{
	defragCounterPass:   "defragCounterPass",
	defragCounterIgnore: "defragCounterIgnore",
	defragCounterEnd:    "defragCounterEnd",
}

func (s defragCounterStatus) String() string {
	return defragCounterStatusMapping[s]
}
