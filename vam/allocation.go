package vam

import (
	"context"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/memutils/metadata"
	"github.com/vkngwrapper/armory/vam/internal/utils"
	"github.com/vkngwrapper/armory/vam/internal/vulkan"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// WholeSize passed as a size to Flush or Invalidate covers the rest of the allocation
const WholeSize = -1

type allocationType byte

const (
	allocationTypeNone allocationType = iota
	allocationTypeBlock
	allocationTypeDedicated
)

var allocationTypeMapping = map[allocationType]string{
	allocationTypeNone:      "None",
	allocationTypeBlock:     "Block",
	allocationTypeDedicated: "Dedicated",
}

func (t allocationType) String() string {
	return allocationTypeMapping[t]
}

type allocationFlags uint32

const (
	allocationPersistentMap allocationFlags = 1 << iota
	allocationMappingAllowed
)

var allocationFlagsMapping = common.NewFlagStringMapping[allocationFlags]()

func init() {
	allocationFlagsMapping.Register(allocationPersistentMap, "PersistentMap")
	allocationFlagsMapping.Register(allocationMappingAllowed, "MappingAllowed")
}

func (f allocationFlags) String() string {
	return allocationFlagsMapping.FlagsToString(f)
}

type blockData struct {
	handle metadata.BlockAllocationHandle
	block  *deviceMemoryBlock
}

type dedicatedData struct {
	next *Allocation
	prev *Allocation
}

// Allocation is a range of device memory handed out by an Allocator: either a suballocation of
// one of the allocator's blocks, or a dedicated driver allocation of its own. An Allocation is
// freed exactly once, with Free or Allocator.Free.
type Allocation struct {
	alignment uint
	size      int
	userData  any
	name      string
	flags     allocationFlags
	priority  float32

	memoryTypeIndex   int
	allocationType    allocationType
	suballocationType suballocationType
	memory            *vulkan.SynchronizedMemory

	// mapLock guards mapCount and keeps memory and blockData stable while a mapping is taken
	mapLock  utils.Lock
	mapCount int

	parentAllocator *Allocator

	blockData     blockData
	dedicatedData dedicatedData
}

func (a *Allocation) init(allocator *Allocator, mappingAllowed bool) {
	*a = Allocation{
		alignment:       1,
		parentAllocator: allocator,
	}
	if mappingAllowed {
		a.flags = allocationMappingAllowed
	}
	if allocator != nil {
		a.mapLock.Synchronize(allocator.useMutex)
	}
}

func (a *Allocation) initBlockAllocation(
	block *deviceMemoryBlock,
	allocHandle metadata.BlockAllocationHandle,
	alignment uint,
	size int,
	suballocType suballocationType,
	mapped bool,
) {
	if a.allocationType != allocationTypeNone {
		panic("attempting to init an allocation that has already been initialized")
	}
	if block == nil || block.memory == nil {
		panic("attempting to init a block allocation using a nil memory block")
	}

	a.allocationType = allocationTypeBlock
	a.alignment = alignment
	a.size = size
	a.memoryTypeIndex = block.memoryTypeIndex
	a.priority = block.parent.priority
	if mapped {
		a.flags |= allocationPersistentMap
	}

	a.suballocationType = suballocType
	a.memory = block.memory
	a.blockData.handle = allocHandle
	a.blockData.block = block
}

func (a *Allocation) initDedicatedAllocation(
	memoryTypeIndex int,
	memory *vulkan.SynchronizedMemory,
	suballocType suballocationType,
	size int,
	priority float32,
	mapped bool,
) {
	if a.allocationType != allocationTypeNone {
		panic("attempting to init an allocation that has already been initialized")
	}
	if memory == nil {
		panic("attempting to init a dedicated allocation using a nil device memory")
	}

	a.allocationType = allocationTypeDedicated
	a.alignment = 0
	a.size = size
	a.memoryTypeIndex = memoryTypeIndex
	a.suballocationType = suballocType
	a.priority = priority
	if mapped {
		a.flags |= allocationPersistentMap
	}
	a.memory = memory
}

func (a *Allocation) SetName(name string) {
	a.name = name
}

func (a *Allocation) SetUserData(userData any) {
	a.userData = userData
}

func (a *Allocation) UserData() any {
	return a.userData
}

func (a *Allocation) Name() string {
	return a.name
}

func (a *Allocation) MemoryTypeIndex() int   { return a.memoryTypeIndex }
func (a *Allocation) Size() int              { return a.size }
func (a *Allocation) Alignment() uint        { return a.alignment }
func (a *Allocation) Priority() float32      { return a.priority }
func (a *Allocation) IsDedicated() bool      { return a.allocationType == allocationTypeDedicated }
func (a *Allocation) IsMappingAllowed() bool { return a.flags&allocationMappingAllowed != 0 }
func (a *Allocation) isPersistentMap() bool  { return a.flags&allocationPersistentMap != 0 }
func (a *Allocation) isFreed() bool          { return a.allocationType == allocationTypeNone }

func (a *Allocation) markFreed() {
	a.allocationType = allocationTypeNone
	a.memory = nil
	a.blockData = blockData{}
	a.dedicatedData = dedicatedData{}
	a.mapCount = 0
}

// Memory is the driver memory object the allocation lives in
func (a *Allocation) Memory() hal.Handle {
	if a.memory == nil {
		return hal.NullHandle
	}
	return a.memory.Handle()
}

// MemoryType returns the properties and heap of the allocation's memory type
func (a *Allocation) MemoryType() core1_0.MemoryType {
	return a.parentAllocator.deviceMemory.MemoryTypeProperties(a.memoryTypeIndex)
}

// Offset is the allocation's offset within Memory
func (a *Allocation) Offset() int {
	if a.allocationType == allocationTypeBlock {
		offset, err := a.blockData.block.metadata.AllocationOffset(a.blockData.handle)
		if err != nil {
			panic(fmt.Sprintf("failed to locate offset for handle %+v: %+v", a.blockData.handle, err))
		}

		return offset
	}

	return 0
}

// MapCount is the number of Map calls not yet balanced by Unmap
func (a *Allocation) MapCount() int {
	a.mapLock.RLock()
	defer a.mapLock.RUnlock()

	return a.mapCount
}

// mapReferences is the number of references the allocation holds on its memory's mapping,
// counting the persistent mapping of an allocation created mapped
func (a *Allocation) mapReferences() int {
	a.mapLock.RLock()
	defer a.mapLock.RUnlock()

	return a.mapReferencesLocked()
}

func (a *Allocation) mapReferencesLocked() int {
	references := a.mapCount
	if a.isPersistentMap() {
		references++
	}
	return references
}

// Map returns a host pointer to the allocation's memory, offset bytes in. Every allocation in a
// driver memory object shares a single mapping, so nested calls return the same pointer and each
// one must be balanced with Unmap. The memory must be host-visible.
func (a *Allocation) Map(offset int) (unsafe.Pointer, error) {
	a.debugLog("Allocation::Map", slog.Int("offset", offset))

	if a.isFreed() {
		return nil, vkerr.New(vkerr.ValidationError, "attempted to map an allocation that has been freed")
	}
	if !a.IsMappingAllowed() {
		return nil, vkerr.New(vkerr.MemoryMapFailed, "attempted to map an allocation in memory type %d, which is not host-visible", a.memoryTypeIndex)
	}
	if offset < 0 || (offset >= a.size && offset > 0) {
		return nil, vkerr.New(vkerr.ValidationError, "map offset %d is outside the allocation, which is size %d", offset, a.size)
	}

	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	ptr, err := a.memory.Map(1)
	if err != nil {
		return nil, err
	}
	a.mapCount++

	return unsafe.Add(ptr, a.Offset()+offset), nil
}

// Unmap releases one reference taken by Map
func (a *Allocation) Unmap() error {
	a.debugLog("Allocation::Unmap")

	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	if a.mapCount == 0 {
		return vkerr.New(vkerr.ValidationError, "attempted to unmap an allocation that is not mapped")
	}

	err := a.memory.Unmap(1)
	if err != nil {
		return err
	}

	a.mapCount--
	return nil
}

// Flush makes host writes to [offset, offset+size) visible to the device. It is a no-op for
// host-coherent memory. Pass WholeSize to flush through the end of the allocation.
func (a *Allocation) Flush(offset, size int) error {
	a.debugLog("Allocation::Flush", slog.Int("offset", offset), slog.Int("size", size))

	return a.flushOrInvalidate(offset, size, vulkan.CacheOperationFlush)
}

// Invalidate makes device writes to [offset, offset+size) visible to the host. It is a no-op for
// host-coherent memory. Pass WholeSize to invalidate through the end of the allocation.
func (a *Allocation) Invalidate(offset, size int) error {
	a.debugLog("Allocation::Invalidate", slog.Int("offset", offset), slog.Int("size", size))

	return a.flushOrInvalidate(offset, size, vulkan.CacheOperationInvalidate)
}

// Free returns the allocation to its allocator
func (a *Allocation) Free() error {
	if a.parentAllocator == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to free an allocation that was never allocated")
	}

	return a.parentAllocator.Free(a)
}

// Bind binds a buffer or image to the allocation, offset bytes in
func (a *Allocation) Bind(offset int, object hal.Object) error {
	a.debugLog("Allocation::Bind", slog.Int("offset", offset), slog.String("object", object.String()))

	if a.isFreed() {
		return vkerr.New(vkerr.ValidationError, "attempted to bind %s to an allocation that has been freed", object)
	}
	if object.Handle.IsNull() {
		return vkerr.New(vkerr.ValidationError, "attempted to bind a null %s", object.Type)
	}
	if offset < 0 || offset >= a.size {
		return vkerr.New(vkerr.ValidationError, "bind offset %d is outside the allocation, which is size %d", offset, a.size)
	}

	memoryOffset := a.Offset() + offset

	switch object.Type {
	case hal.ObjectTypeBuffer:
		return a.memory.BindBuffer(memoryOffset, object.Handle)
	case hal.ObjectTypeImage:
		return a.memory.BindImage(memoryOffset, object.Handle)
	}

	return vkerr.New(vkerr.ValidationError, "only buffers and images can be bound to memory, not %s", object.Type)
}

func (a *Allocation) debugLog(msg string, attrs ...slog.Attr) {
	if a.parentAllocator == nil {
		return
	}

	a.parentAllocator.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func (a *Allocation) printParameters(json *jwriter.ObjectState) {
	json.Name("Type").String(a.suballocationType.String())
	json.Name("Size").Int(a.size)
	json.Name("Priority").Float64(float64(a.priority))

	if a.userData != nil {
		json.Name("CustomData").String(fmt.Sprintf("%+v", a.userData))
	}

	if a.name != "" {
		json.Name("Name").String(a.name)
	}
}

func (a *Allocation) flushOrInvalidateRange(offset, size int) (hal.MappedRange, bool, error) {
	if size == 0 || size < WholeSize || !a.parentAllocator.deviceMemory.IsMemoryTypeHostNonCoherent(a.memoryTypeIndex) {
		return hal.MappedRange{}, false, nil
	}

	atomSize := memutils.Max(a.parentAllocator.deviceMemory.Limits().NonCoherentAtomSize, 1)
	allocationSize := a.Size()

	if offset < 0 || offset > allocationSize {
		return hal.MappedRange{}, false, vkerr.New(vkerr.ValidationError, "offset %d is outside the allocation, which is size %d", offset, allocationSize)
	}
	if size > 0 && offset+size > allocationSize {
		return hal.MappedRange{}, false, vkerr.New(vkerr.ValidationError, "range [%d, %d) runs past the end of the allocation, which is size %d", offset, offset+size, allocationSize)
	}

	memRange := hal.MappedRange{
		Memory: a.Memory(),
		Offset: memutils.AlignDown(offset, atomSize),
	}

	switch a.allocationType {
	case allocationTypeDedicated:
		memRange.Size = allocationSize - memRange.Offset
		if size > 0 {
			alignedSize := memutils.AlignUp(size+(offset-memRange.Offset), atomSize)
			if alignedSize < memRange.Size {
				memRange.Size = alignedSize
			}
		}
		return memRange, true, nil

	case allocationTypeBlock:
		if size == WholeSize {
			size = allocationSize - offset
		}
		memRange.Size = memutils.AlignUp(size+(offset-memRange.Offset), atomSize)

		allocationOffset := a.Offset()
		if allocationOffset%atomSize != 0 {
			return hal.MappedRange{}, false, errors.Errorf("allocation offset %d in non-coherent memory is not aligned to the atom size %d", allocationOffset, atomSize)
		}

		memRange.Offset += allocationOffset
		restOfBlock := a.blockData.block.metadata.Size() - memRange.Offset
		if restOfBlock < memRange.Size {
			memRange.Size = restOfBlock
		}
		return memRange, true, nil
	}

	return hal.MappedRange{}, false, vkerr.New(vkerr.ValidationError, "attempted to flush or invalidate an allocation of type %s", a.allocationType)
}

func (a *Allocation) flushOrInvalidate(offset, size int, operation vulkan.CacheOperation) error {
	if a.isFreed() {
		return vkerr.New(vkerr.ValidationError, "attempted to flush or invalidate an allocation that has been freed")
	}

	memRange, needed, err := a.flushOrInvalidateRange(offset, size)
	if err != nil || !needed {
		return err
	}

	return a.parentAllocator.deviceMemory.FlushOrInvalidateAllocations([]hal.MappedRange{memRange}, operation)
}

// swapBlockAllocation exchanges the block placement of two block allocations; defragmentation
// uses it to point a moved allocation at its new home. Mapping references held on the old memory
// follow the allocation to the new memory.
func (a *Allocation) swapBlockAllocation(other *Allocation) error {
	if other == nil {
		panic("tried to swap blocks with a nil allocation")
	} else if a.allocationType != allocationTypeBlock {
		panic("tried to swap blocks but this is not a block allocation")
	} else if other.allocationType != allocationTypeBlock {
		panic(fmt.Sprintf("tried to swap blocks with a non-block allocation: %s", other.allocationType))
	}

	a.mapLock.Lock()
	defer a.mapLock.Unlock()

	references := a.mapReferencesLocked()
	if references > 0 && other.memory != a.memory {
		_, err := other.memory.Map(references)
		if err != nil {
			return err
		}
		err = a.memory.Unmap(references)
		if err != nil {
			return err
		}
	}

	err := other.blockData.block.metadata.SetAllocationUserData(other.blockData.handle, a)
	if err != nil {
		return err
	}
	err = a.blockData.block.metadata.SetAllocationUserData(a.blockData.handle, other)
	if err != nil {
		return err
	}

	a.blockData, other.blockData = other.blockData, a.blockData
	a.memory, other.memory = other.memory, a.memory
	return nil
}
