package vulkan

import (
	"github.com/vkngwrapper/armory/hal"
)

// ExtensionData is the allocator's view of the optional device features that change how memory
// is allocated, bound or accounted
type ExtensionData struct {
	DedicatedAllocations bool
	BindMemory2          bool
	ExternalMemory       bool
	UseMemoryPriority    bool
	BufferDeviceAddress  bool
	DeviceGroup          bool

	UseAMDDeviceCoherentMemory bool

	// SetMemoryPriority re-prioritizes live device memory. It is nil without
	// pageable-device-local-memory.
	SetMemoryPriority func(device hal.Handle, memory hal.Handle, priority float32)
	// MemoryBudget reports the driver's per-heap usage and budget. It is nil without memory-budget.
	MemoryBudget func(device hal.Handle) []hal.HeapBudget
}

func NewExtensionData(table *hal.ExtensionTable) *ExtensionData {
	if table == nil {
		return &ExtensionData{}
	}

	return &ExtensionData{
		DedicatedAllocations:       table.DedicatedAllocation,
		BindMemory2:                table.BindMemory2,
		ExternalMemory:             table.ExternalMemory,
		UseMemoryPriority:          table.MemoryPriority,
		BufferDeviceAddress:        table.GetBufferDeviceAddress != nil,
		DeviceGroup:                table.DeviceGroup,
		UseAMDDeviceCoherentMemory: table.DeviceCoherentMemory,
		SetMemoryPriority:          table.SetDeviceMemoryPriority,
		MemoryBudget:               table.GetMemoryBudget,
	}
}
