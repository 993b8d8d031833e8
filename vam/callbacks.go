package vam

import "github.com/vkngwrapper/armory/hal"

// AllocateDeviceMemoryCallback is called after every successful driver allocation
type AllocateDeviceMemoryCallback func(
	allocator *Allocator,
	memoryType int,
	memory hal.Handle,
	size int,
	userData any,
)

// FreeDeviceMemoryCallback is called before every driver allocation is freed
type FreeDeviceMemoryCallback func(
	allocator *Allocator,
	memoryType int,
	memory hal.Handle,
	size int,
	userData any,
)

// MemoryCallbackOptions lets an application observe the allocator's traffic to the driver
type MemoryCallbackOptions struct {
	Allocate AllocateDeviceMemoryCallback
	Free     FreeDeviceMemoryCallback
	UserData any
}

// memoryCallbacks adapts MemoryCallbackOptions to vulkan.MemoryCallbacks
type memoryCallbacks struct {
	options   MemoryCallbackOptions
	allocator *Allocator
}

func (c *memoryCallbacks) Allocate(memoryType int, memory hal.Handle, size int) {
	if c.options.Allocate != nil {
		c.options.Allocate(c.allocator, memoryType, memory, size, c.options.UserData)
	}
}

func (c *memoryCallbacks) Free(memoryType int, memory hal.Handle, size int) {
	if c.options.Free != nil {
		c.options.Free(c.allocator, memoryType, memory, size, c.options.UserData)
	}
}
