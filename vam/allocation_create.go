package vam

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// DefaultPriority is the priority of allocations that do not request one
const DefaultPriority float32 = 0.5

// AllocationCreateInfo is an options struct that is used to define the specifics of a new
// allocation created by Allocator.Alloc or Allocator.AllocBatch
type AllocationCreateInfo struct {
	// Flags describes the intended behavior of the created Allocation
	Flags AllocationCreateFlags

	// RequiredFlags indicates what flags must be on the memory type. If no type with these flags
	// can be found with enough free memory, the allocation will fail
	RequiredFlags core1_0.MemoryPropertyFlags
	// PreferredFlags are tried in addition to RequiredFlags first. If no memory type carries
	// all of them, the allocation falls back to RequiredFlags alone.
	PreferredFlags core1_0.MemoryPropertyFlags

	// MemoryTypeBits is a bitmask of memory types that may be chosen for the requested
	// allocation, on top of the requirements' own bitmask. If this is left 0, all memory types
	// are permitted.
	MemoryTypeBits uint32
	// Transient declares the allocation short-lived, which allows lazily-allocated memory to be
	// chosen when no host access is required
	Transient bool

	// Priority is the memory priority in [0, 1], only honored when the memory priority extension
	// is enabled. Zero selects DefaultPriority.
	Priority float32

	// Tiling is consulted for image allocations, which must stay off the same
	// bufferImageGranularity page as resources of the other tiling
	Tiling hal.ImageTiling

	// UserData is an arbitrary value that will be applied to the Allocation. It's often helpful
	// to place the resource object that owns the Allocation here.
	UserData any
	// Name is used in statistics dumps and leak reports
	Name string
}

func (i *AllocationCreateInfo) priority() float32 {
	if i.Priority == 0 {
		return DefaultPriority
	}

	return i.Priority
}

func (i *AllocationCreateInfo) validate() error {
	if i.Priority < 0 || i.Priority > 1 {
		return vkerr.New(vkerr.ValidationError, "allocation priority %f is outside [0, 1]", i.Priority)
	}
	if i.Flags&AllocationCreateDedicatedMemory != 0 && i.Flags&AllocationCreateNeverAllocate != 0 {
		return vkerr.New(vkerr.ValidationError, "AllocationCreateDedicatedMemory cannot be combined with AllocationCreateNeverAllocate")
	}

	return nil
}
