package vam

import (
	"log/slog"

	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/vam/internal/vulkan"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/driver"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

var allocatorCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	allocatorCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return allocatorCreateFlagsMapping.FlagsToString(f)
}

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator and all objects created from it
	// will not be synchronized internally. The consumer must guarantee they are used from only one
	// thread at a time or are synchronized by some other mechanism, but performance may improve because
	// internal mutexes are not used.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	AllocatorCreateExternallySynchronized.Register("AllocatorCreateExternallySynchronized")
}

const (
	// DefaultLargeHeapBlockSize is the value that is used as the PreferredLargeHeapBlockSize when none
	// is provided via CreateOptions. It is equal to 256Mb.
	DefaultLargeHeapBlockSize int = 256 * 1024 * 1024

	smallHeapMaxSize int = 1024 * 1024 * 1024 // 1 GB
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags
	// PreferredLargeHeapBlockSize is the block size to use when allocating from heaps larger
	// than a gigabyte
	PreferredLargeHeapBlockSize int

	// VulkanCallbacks is an optional set of callbacks that will be passed to the driver on every
	// memory allocation and free this allocator performs
	VulkanCallbacks *driver.AllocationCallbacks

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when driver memory
	// is allocated or freed by this allocator. It can be helpful in cases when the consumer requires
	// allocator-level info about allocated memory
	MemoryCallbackOptions *MemoryCallbackOptions

	// HeapSizeLimits can be left empty. If it is provided, though, it must be a slice
	// with a number of entries corresponding to the number of heaps in the device. Each entry
	// must be either the maximum number of bytes that should be allocated from the corresponding
	// heap, or -1 (or 0) indicating no limit.
	//
	// Heap memory limits will be enforced at runtime (the allocator will go so far as to
	// return an out of memory error when attempting to allocate beyond the limit).
	HeapSizeLimits []int

	// ExternalMemoryHandleTypes can be left empty. If it is provided though, it must be a slice
	// with a number of entries corresponding to the number of memory types in the device. Each
	// entry must be either 0, indicating not to use external memory, or a memory handle type,
	// indicating which type of memory handles to use for the memory type
	ExternalMemoryHandleTypes []uint32
}

// New creates a new Allocator
//
// device - The Device that memory will be allocated from
//
// extensions - The device's resolved extension table. It may be nil, in which case no optional
// behavior is used.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, device hal.Device, extensions *hal.ExtensionTable, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if device == nil {
		return nil, vkerr.New(vkerr.InitializationFailed, "attempted to create an allocator without a device")
	}

	useMutex := options.Flags&AllocatorCreateExternallySynchronized == 0

	allocator := &Allocator{
		useMutex:            useMutex,
		logger:              logger,
		device:              device,
		createFlags:         options.Flags,
		allocationCallbacks: options.VulkanCallbacks,
		extensionData:       vulkan.NewExtensionData(extensions),
	}
	allocator.blockListsMutex.Synchronize(useMutex)

	if options.PreferredLargeHeapBlockSize == 0 {
		allocator.preferredLargeHeapBlockSize = DefaultLargeHeapBlockSize
	} else if options.PreferredLargeHeapBlockSize < 0 {
		return nil, vkerr.New(vkerr.ValidationError, "vam.CreateOptions.PreferredLargeHeapBlockSize must not be negative, but was %d", options.PreferredLargeHeapBlockSize)
	} else {
		allocator.preferredLargeHeapBlockSize = options.PreferredLargeHeapBlockSize
	}

	if len(options.ExternalMemoryHandleTypes) > 0 && !allocator.extensionData.ExternalMemory {
		return nil, vkerr.New(vkerr.ExtensionUnsupported, "vam.CreateOptions.ExternalMemoryHandleTypes was provided, but %s is not enabled", hal.ExtExternalMemory)
	}

	callbacks := &memoryCallbacks{allocator: allocator}
	if options.MemoryCallbackOptions != nil {
		callbacks.options = *options.MemoryCallbackOptions
	}

	var err error
	allocator.deviceMemory, err = vulkan.NewDeviceMemoryProperties(
		useMutex,
		options.VulkanCallbacks,
		callbacks,
		device,
		allocator.extensionData,
		options.HeapSizeLimits,
		options.ExternalMemoryHandleTypes,
	)
	if err != nil {
		return nil, err
	}

	allocator.globalMemoryTypeBits = allocator.deviceMemory.CalculateGlobalMemoryTypeBits()

	typeCount := allocator.deviceMemory.MemoryTypeCount()
	for typeIndex := 0; typeIndex < typeCount; typeIndex++ {
		if allocator.globalMemoryTypeBits&(1<<typeIndex) == 0 {
			continue
		}

		allocator.dedicatedAllocations[typeIndex] = &dedicatedAllocationList{}
		allocator.dedicatedAllocations[typeIndex].Init(useMutex)

		_, err = allocator.blockList(typeIndex, DefaultPriority)
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Allocator::New",
		slog.Int("memoryTypeCount", typeCount),
		slog.Int("memoryHeapCount", allocator.deviceMemory.MemoryHeapCount()),
		slog.Bool("useMutex", useMutex),
		slog.Bool("memoryPriority", allocator.extensionData.UseMemoryPriority),
		slog.Bool("dedicatedAllocation", allocator.extensionData.DedicatedAllocations),
	)

	return allocator, nil
}

// calculatePreferredBlockSize is an eighth of the heap for heaps of a gigabyte or less, and the
// configured large heap block size otherwise
func (a *Allocator) calculatePreferredBlockSize(memTypeIndex int) int {
	heapIndex := a.deviceMemory.MemoryTypeIndexToHeapIndex(memTypeIndex)

	heapSize := a.deviceMemory.MemoryHeapProperties(heapIndex).Size
	rawSize := a.preferredLargeHeapBlockSize
	if heapSize <= smallHeapMaxSize {
		rawSize = heapSize / 8
	}

	return memutils.AlignUp(rawSize, 32)
}
