package vam

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/memutils/defrag"
	"github.com/vkngwrapper/armory/memutils/metadata"
	"github.com/vkngwrapper/armory/vam/internal/vulkan"
	"github.com/vkngwrapper/armory/vkerr"
)

// deviceMemoryBlock is one driver allocation that a memoryBlockList suballocates from
type deviceMemoryBlock struct {
	id              int
	memory          *vulkan.SynchronizedMemory
	parent          *memoryBlockList
	memoryTypeIndex int
	logger          *slog.Logger

	metadata           *metadata.FreeList
	deviceMemory       *vulkan.DeviceMemoryProperties
	granularityHandler blockBufferImageGranularity
}

func (b *deviceMemoryBlock) Init(
	parent *memoryBlockList,
	newMemory *vulkan.SynchronizedMemory,
	newSize int,
	id int,
	bufferImageGranularity int,
) {
	if b.memory != nil {
		panic("attempting to initialize a device memory block that is already in use")
	}

	b.parent = parent
	b.logger = parent.logger
	b.deviceMemory = parent.deviceMemory
	b.memoryTypeIndex = parent.memoryTypeIndex
	b.id = id
	b.memory = newMemory
	b.granularityHandler.Init(uint(bufferImageGranularity), newSize)

	b.metadata = metadata.NewFreeList(bufferImageGranularity, &b.granularityHandler)
	b.metadata.Init(newSize)
}

func (b *deviceMemoryBlock) Destroy() error {
	if !b.metadata.IsEmpty() {
		err := b.metadata.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			if !free {
				b.logUnreleasedMemory(offset, size, userData)
			}
			return nil
		})
		if err != nil {
			b.logger.LogAttrs(context.Background(),
				slog.LevelError,
				"[UNRELEASED MEMORY] error while iterating unreleased memory",
				slog.Any("error", err))
		}

		return vkerr.New(vkerr.ValidationError, "%d allocations were not freed before the destruction of memory block %d", b.metadata.AllocationCount(), b.id)
	}

	if b.memory == nil {
		panic("attempting to destroy a memory block, but it did not have a backing memory object")
	}

	b.deviceMemory.FreeVulkanMemory(b.memoryTypeIndex, b.metadata.Size(), b.memory)

	b.memory = nil
	b.metadata = nil
	return nil
}

func (b *deviceMemoryBlock) logUnreleasedMemory(offset, size int, userData any) {
	name := "empty"
	if allocation, ok := userData.(*Allocation); ok && allocation != nil {
		userData = allocation.UserData()
		if allocation.Name() != "" {
			name = allocation.Name()
		}
	}

	b.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.Int("block.id", b.id),
		slog.Int("offset", offset),
		slog.Int("size", size),
		slog.Any("userData", userData),
		slog.String("name", name),
	)
}

func (b *deviceMemoryBlock) Validate() error {
	if b.memory == nil {
		return errors.New("no valid memory for this memory block")
	}
	if b.metadata.Size() < 1 {
		return errors.New("this memory block's metadata has an invalid size")
	}

	err := b.metadata.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset, size int, userData any, free bool) error {
		if free {
			return nil
		}

		allocation, isAllocation := userData.(*Allocation)
		if isAllocation && allocation != nil {
			return nil
		}
		// Defragmentation briefly commits placeholders with its own context as user data
		if _, isDefrag := userData.(*defrag.MetadataDefragContext[Allocation]); isDefrag {
			return nil
		}

		return errors.Errorf("an allocation at offset %d is marked as allocated but has no allocation object", offset)
	})
	if err != nil {
		return err
	}

	return b.metadata.Validate()
}

func (b *deviceMemoryBlock) CheckCorruption() (err error) {
	data, err := b.memory.Map(1)
	if err != nil {
		return err
	}
	defer func() {
		unmapErr := b.memory.Unmap(1)
		if err == nil {
			err = unmapErr
		}
	}()

	return b.metadata.CheckCorruption(data)
}

func (b *deviceMemoryBlock) WriteMagicBlockAfterAllocation(allocOffset int, allocSize int) (err error) {
	if memutils.DebugMargin == 0 {
		return errors.New("attempting to write a debug margin block outside debug mode")
	}

	data, err := b.memory.Map(1)
	if err != nil {
		return err
	}
	defer func() {
		unmapErr := b.memory.Unmap(1)
		if err == nil {
			err = unmapErr
		}
	}()

	memutils.WriteMagicValue(data, allocOffset+allocSize)
	return nil
}

func (b *deviceMemoryBlock) ValidateMagicValueAfterAllocation(allocOffset int, allocSize int) (err error) {
	if memutils.DebugMargin == 0 {
		return errors.New("attempting to validate a debug margin block outside debug mode")
	}

	data, err := b.memory.Map(1)
	if err != nil {
		return err
	}
	defer func() {
		unmapErr := b.memory.Unmap(1)
		if err == nil {
			err = unmapErr
		}
	}()

	if !memutils.ValidateMagicValue(data, allocOffset+allocSize) {
		return errors.Wrapf(memutils.CorruptionError, "debug margin after the allocation at offset %d in block %d", allocOffset, b.id)
	}

	return nil
}
