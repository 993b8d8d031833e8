package metadata

import (
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armory/memutils"
)

// BlockMetadata tracks the suballocations inside a single large allocation of memory. It hands
// out offsets within the block; it never touches the memory itself, except through the pointer
// passed to CheckCorruption.
type BlockMetadata interface {
	// Init must be called once before the BlockMetadata is used, with the size in bytes of the
	// block it will manage
	Init(size int)
	// Size retrieves the size in bytes that the block was initialized with
	Size() int
	// SupportsRandomAccess returns true if allocations may be placed anywhere in the block. This
	// must be true for the block to be defragmented with memutils/defrag.
	SupportsRandomAccess() bool

	// Validate performs internal consistency checks, which may be expensive. A correct
	// implementation never returns an error.
	Validate() error
	// AllocationCount returns the number of live suballocations
	AllocationCount() int
	// FreeRegionsCount returns the number of distinct free ranges. Adjacent free ranges are merged,
	// so they count once.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes in the block
	SumFreeSize() int
	// MayHaveFreeBlock is a fast heuristic: false means an allocation of this type and size can
	// certainly not be placed. False positives are allowed; false negatives are not.
	MayHaveFreeBlock(allocType uint32, size int) bool
	// IsEmpty returns true if this block has no live suballocations
	IsEmpty() bool

	// VisitAllRegions calls the callback once for each allocation and free range in offset order.
	// It stops at the first error the callback returns.
	VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error
	// AllocationListBegin returns the handle of the lowest-offset live allocation, or NoAllocation
	AllocationListBegin() (BlockAllocationHandle, error)
	// FindNextAllocation returns the handle of the next live allocation after allocHandle in offset
	// order, or NoAllocation. It fails if allocHandle is not a live allocation.
	FindNextAllocation(allocHandle BlockAllocationHandle) (BlockAllocationHandle, error)
	// FindNextFreeRegionSize returns the size of the free range directly after allocHandle, or 0
	FindNextFreeRegionSize(allocHandle BlockAllocationHandle) (int, error)

	// AllocationOffset returns the offset of a live allocation or free range
	AllocationOffset(allocHandle BlockAllocationHandle) (int, error)
	// AllocationSize returns the size of a live allocation, excluding any debug margin
	AllocationSize(allocHandle BlockAllocationHandle) (int, error)
	// AllocationUserData returns the userData a live allocation was committed with
	AllocationUserData(allocHandle BlockAllocationHandle) (any, error)
	// SetAllocationUserData replaces the userData of a live allocation
	SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error

	// AddDetailedStatistics sums this block's statistics into stats
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's cheap statistics into stats
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// BlockJsonData writes a summary of this block into a json object
	BlockJsonData(json *jwriter.ObjectState)

	// CheckCorruption verifies the debug margin after every live allocation, given a pointer to
	// the mapped block. Margins only exist when built with the debug_mem_utils tag, and consumers
	// must have written them with memutils.WriteMagicValue.
	CheckCorruption(blockData unsafe.Pointer) error

	// CreateAllocationRequest finds a place for an allocation without committing it. The request
	// can be passed to Alloc to commit it. It returns false, and no error, if the allocation does
	// not fit. The allocation must start below maxOffset; pass math.MaxInt for no limit.
	CreateAllocationRequest(
		allocSize int, allocAlignment uint,
		allocType uint32,
		strategy AllocationStrategy,
		maxOffset int,
	) (bool, AllocationRequest, error)
	// Alloc commits a request created by CreateAllocationRequest. It fails if the request no
	// longer matches the block, for instance because the free range it names was taken.
	Alloc(request AllocationRequest, allocType uint32, userData any) error

	// Free releases a live allocation
	Free(allocHandle BlockAllocationHandle) error
}

// BlockMetadataBase carries the fields every BlockMetadata implementation in this package shares
type BlockMetadataBase struct {
	size                  int
	allocationGranularity int
	granularityHandler    GranularityCheck
}

// NewBlockMetadata creates a BlockMetadataBase. Consumers without granularity requirements pass
// an allocationGranularity of 1 and NoGranularity{}.
func NewBlockMetadata(allocationGranularity int, granularityHandler GranularityCheck) BlockMetadataBase {
	if granularityHandler == nil {
		granularityHandler = NoGranularity{}
	}

	return BlockMetadataBase{
		size:                  0,
		allocationGranularity: allocationGranularity,
		granularityHandler:    granularityHandler,
	}
}

func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

func (m *BlockMetadataBase) Size() int { return m.size }

// AllocationGranularity is the granularity this metadata was created with
func (m *BlockMetadataBase) AllocationGranularity() int { return m.allocationGranularity }

func (m *BlockMetadataBase) writeJsonHeader(json *jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
