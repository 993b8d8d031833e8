package metadata

// AllocationRequestType identifies which BlockMetadata implementation produced an AllocationRequest
type AllocationRequestType uint32

const (
	// AllocationRequestFreeList indicates that the request was produced by FreeList
	AllocationRequestFreeList AllocationRequestType = iota + 1
)

var allocationRequestMapping = map[AllocationRequestType]string{
	AllocationRequestFreeList: "FreeList",
}

func (t AllocationRequestType) String() string {
	return allocationRequestMapping[t]
}

// AllocationRequest is returned from BlockMetadata.CreateAllocationRequest and names where the
// metadata intends to place an allocation. It is committed with BlockMetadata.Alloc.
type AllocationRequest struct {
	// BlockAllocationHandle identifies the free range the allocation will be carved from. After
	// Alloc succeeds, it is also the handle of the new allocation.
	BlockAllocationHandle BlockAllocationHandle
	// Size is the size of the allocation, possibly rounded up from what was requested
	Size int
	// Item is the suballocation that Alloc will create
	Item Suballocation
	// Type identifies the BlockMetadata implementation that generated this request
	Type AllocationRequestType

	// AllocType is the value passed to CreateAllocationRequest by the consumer
	AllocType uint32
	// AlgorithmData is private to the BlockMetadata implementation
	AlgorithmData uint64
}
