package vam

import "github.com/vkngwrapper/core/v2/common"

// AllocationCreateFlags exposes several options for allocation behavior that can be applied.
type AllocationCreateFlags int32

var allocationCreateFlagsMapping = common.NewFlagStringMapping[AllocationCreateFlags]()

func (f AllocationCreateFlags) Register(str string) {
	allocationCreateFlagsMapping.Register(f, str)
}
func (f AllocationCreateFlags) String() string {
	return allocationCreateFlagsMapping.FlagsToString(f)
}

const (
	// AllocationCreateDedicatedMemory instructs the allocator to give this allocation its own
	// memory block
	AllocationCreateDedicatedMemory AllocationCreateFlags = 1 << iota
	// AllocationCreateNeverAllocate instructs the allocator to only try to allocate from existing
	// memory blocks and never create new blocks
	//
	// If a new allocation cannot be placed in any of the existing blocks, allocation fails with
	// vkerr.OutOfDeviceMemory
	AllocationCreateNeverAllocate
	// AllocationCreateMapped instructs the allocator to keep the allocation persistently mapped
	// for as long as it lives. Map still has to be called to retrieve the pointer, but it will not
	// reach the driver.
	//
	// It is valid to use this flag for an allocation made from a memory type that is not
	// HostVisible. The flag is then ignored and the memory is not mapped.
	AllocationCreateMapped
	// AllocationCreateWithinBudget instructs the allocator to only create the allocation if the
	// additional device memory required for it won't exceed the heap's budget. Otherwise it fails
	// with vkerr.OutOfDeviceMemory
	AllocationCreateWithinBudget
	// AllocationCreateCanAlias indicates that the allocated memory will have aliasing resources.
	//
	// Dedicated allocations made with this flag are not tied to the buffer or image that
	// requested them, so other resources can be bound to them.
	AllocationCreateCanAlias
	// AllocationCreateStrategyMinMemory selects the allocation strategy that chooses the
	// smallest-possible free range for the allocation to minimize memory usage and fragmentation,
	// possibly at the expense of allocation time
	AllocationCreateStrategyMinMemory
	// AllocationCreateStrategyMinTime selects the allocation strategy that chooses the first
	// suitable free range for the allocation, to minimize allocation time
	AllocationCreateStrategyMinTime
	// AllocationCreateStrategyMinOffset selects the allocation strategy that chooses the lowest
	// offset in available space. Used internally by defragmentation, not recommended in typical usage.
	AllocationCreateStrategyMinOffset

	AllocationCreateStrategyMask = AllocationCreateStrategyMinMemory |
		AllocationCreateStrategyMinTime |
		AllocationCreateStrategyMinOffset
)

func init() {
	AllocationCreateDedicatedMemory.Register("AllocationCreateDedicatedMemory")
	AllocationCreateNeverAllocate.Register("AllocationCreateNeverAllocate")
	AllocationCreateMapped.Register("AllocationCreateMapped")
	AllocationCreateWithinBudget.Register("AllocationCreateWithinBudget")
	AllocationCreateCanAlias.Register("AllocationCreateCanAlias")
	AllocationCreateStrategyMinMemory.Register("AllocationCreateStrategyMinMemory")
	AllocationCreateStrategyMinTime.Register("AllocationCreateStrategyMinTime")
	AllocationCreateStrategyMinOffset.Register("AllocationCreateStrategyMinOffset")
}
