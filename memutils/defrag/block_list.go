package defrag

import (
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/memutils/metadata"
)

//go:generate mockgen -source block_list.go -destination ./mocks/block_list.go -package mock_defrag

// BlockList is the memory pool being defragmented: an ordered set of blocks, each with its own
// metadata, whose allocations are all of type T
type BlockList[T any] interface {
	MetadataForBlock(index int) metadata.BlockMetadata
	BlockCount() int
	AddStatistics(stats *memutils.Statistics)
	// MoveDataForUserData retrieves relocation data for the allocation that was committed with
	// userData. It returns false if the allocation must not be moved.
	MoveDataForUserData(userData any) (MoveAllocationData[T], bool)

	Lock()
	Unlock()

	CreateAlloc() *T
	// CommitDefragAllocationRequest commits a request against the metadata of the block at
	// blockIndex and populates outAlloc
	CommitDefragAllocationRequest(allocRequest metadata.AllocationRequest, blockIndex int, alignment uint, allocType uint32, userData any, outAlloc *T) error
	SwapBlocks(leftIndex, rightIndex int)
}
