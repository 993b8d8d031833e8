package vam

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/vam/internal/utils"
	"github.com/vkngwrapper/armory/vam/internal/vulkan"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// Allocator suballocates device memory for buffers and images. Every memory type the allocator
// can use has one block list per allocation priority in use, plus a list of dedicated
// allocations.
type Allocator struct {
	useMutex    bool
	logger      *slog.Logger
	device      hal.Device
	createFlags CreateFlags

	allocationCallbacks *driver.AllocationCallbacks
	extensionData       *vulkan.ExtensionData
	deviceMemory        *vulkan.DeviceMemoryProperties

	preferredLargeHeapBlockSize int
	globalMemoryTypeBits        uint32

	blockListsMutex      utils.Lock
	memoryBlockLists     [common.MaxMemoryTypes][]*memoryBlockList
	dedicatedAllocations [common.MaxMemoryTypes]*dedicatedAllocationList

	defragMutex  sync.Mutex
	activeDefrag *DefragmentationContext
}

func (a *Allocator) debugLog(msg string, attrs ...slog.Attr) {
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

// Device is the device this allocator allocates from
func (a *Allocator) Device() hal.Device {
	return a.device
}

// MemoryProperties is the memory type and heap table of the device
func (a *Allocator) MemoryProperties() core1_0.PhysicalDeviceMemoryProperties {
	return a.deviceMemory.MemoryProperties()
}

// blockList returns the block list for a memory type and priority, creating it on first use.
// Without the memory priority extension every memory type has a single list.
func (a *Allocator) blockList(memoryTypeIndex int, priority float32) (*memoryBlockList, error) {
	if a.globalMemoryTypeBits&(1<<memoryTypeIndex) == 0 {
		return nil, vkerr.New(vkerr.ValidationError, "memory type %d is not usable by this allocator", memoryTypeIndex)
	}

	if !a.extensionData.UseMemoryPriority {
		priority = DefaultPriority
	}

	a.blockListsMutex.RLock()
	list := findBlockListByPriority(a.memoryBlockLists[memoryTypeIndex], priority)
	a.blockListsMutex.RUnlock()
	if list != nil {
		return list, nil
	}

	a.blockListsMutex.Lock()
	defer a.blockListsMutex.Unlock()

	list = findBlockListByPriority(a.memoryBlockLists[memoryTypeIndex], priority)
	if list != nil {
		return list, nil
	}

	list = &memoryBlockList{}
	list.Init(
		a.useMutex,
		a,
		memoryTypeIndex,
		priority,
		a.calculatePreferredBlockSize(memoryTypeIndex),
		a.deviceMemory.CalculateBufferImageGranularity(),
	)
	a.memoryBlockLists[memoryTypeIndex] = append(a.memoryBlockLists[memoryTypeIndex], list)

	return list, nil
}

func findBlockListByPriority(lists []*memoryBlockList, priority float32) *memoryBlockList {
	for _, list := range lists {
		if list.priority == priority {
			return list
		}
	}

	return nil
}

// visitBlockLists calls fn for every block list whose memory type is in memoryTypeBits
func (a *Allocator) visitBlockLists(memoryTypeBits uint32, fn func(list *memoryBlockList) error) error {
	a.blockListsMutex.RLock()
	defer a.blockListsMutex.RUnlock()

	for memoryTypeIndex := 0; memoryTypeIndex < a.deviceMemory.MemoryTypeCount(); memoryTypeIndex++ {
		if memoryTypeBits&(1<<memoryTypeIndex) == 0 {
			continue
		}

		for _, list := range a.memoryBlockLists[memoryTypeIndex] {
			err := fn(list)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (a *Allocator) validateRequest(requirements hal.MemoryRequirements, info *AllocationCreateInfo) error {
	err := info.validate()
	if err != nil {
		return err
	}

	if requirements.Size < 1 {
		return vkerr.New(vkerr.ValidationError, "memory requirements size %d is not a positive integer", requirements.Size)
	}
	if requirements.Alignment > 0 {
		err = memutils.CheckPow2(requirements.Alignment, "hal.MemoryRequirements.Alignment")
		if err != nil {
			return vkerr.Wrap(vkerr.ValidationError, err, "invalid memory requirements")
		}
	}

	return nil
}

func (a *Allocator) candidateMemoryTypeBits(requirementBits uint32, info *AllocationCreateInfo) uint32 {
	bits := requirementBits & a.globalMemoryTypeBits
	if info.MemoryTypeBits != 0 {
		bits &= info.MemoryTypeBits
	}
	return bits
}

// findMemoryTypeIndex picks a memory type among memoryTypeBits, preferring one that also has the
// preferred flags
func (a *Allocator) findMemoryTypeIndex(memoryTypeBits uint32, info *AllocationCreateInfo) (int, error) {
	props := a.deviceMemory.MemoryProperties()

	if info.PreferredFlags&^info.RequiredFlags != 0 {
		memoryTypeIndex, err := FindMemoryTypeIndex(props, memoryTypeBits, info.RequiredFlags|info.PreferredFlags, info.Transient)
		if err == nil {
			return memoryTypeIndex, nil
		}
	}

	return FindMemoryTypeIndex(props, memoryTypeBits, info.RequiredFlags, info.Transient)
}

// Alloc allocates memory that satisfies requirements. object is the buffer or image the memory is
// intended for; it decides the suballocation type and is named in dedicated allocations. It may be
// the zero Object.
func (a *Allocator) Alloc(requirements hal.MemoryRequirements, info AllocationCreateInfo, object hal.Object) (*Allocation, error) {
	a.debugLog("Allocator::Alloc",
		slog.Int("size", requirements.Size),
		slog.Int("alignment", requirements.Alignment),
		slog.Uint64("memoryTypeBits", uint64(requirements.MemoryTypeBits)),
		slog.String("flags", info.Flags.String()),
		slog.String("object", object.String()),
	)

	err := a.validateRequest(requirements, &info)
	if err != nil {
		return nil, err
	}

	alloc := &Allocation{}
	err = a.allocateMemory(requirements, &info, object, suballocationTypeFor(object, info.Tiling), alloc)
	if err != nil {
		return nil, err
	}

	return alloc, nil
}

// allocateMemory walks the memory types allowed for the request, moving on to the next one each
// time a type runs out of memory
func (a *Allocator) allocateMemory(requirements hal.MemoryRequirements, info *AllocationCreateInfo, object hal.Object, suballocType suballocationType, outAlloc *Allocation) error {
	memoryTypeBits := a.candidateMemoryTypeBits(requirements.MemoryTypeBits, info)
	if memoryTypeBits == 0 {
		return vkerr.New(vkerr.UnsupportedMemoryProperties, "no memory type usable by this allocator is allowed by the memory type bits %#x", requirements.MemoryTypeBits)
	}

	var lastErr error
	for memoryTypeBits != 0 {
		memoryTypeIndex, err := a.findMemoryTypeIndex(memoryTypeBits, info)
		if err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = a.allocateMemoryOfType(requirements, info, object, memoryTypeIndex, suballocType, outAlloc)
		if lastErr == nil {
			return nil
		}
		if !vkerr.Is(lastErr, vkerr.OutOfDeviceMemory) && !vkerr.Is(lastErr, vkerr.TooManyObjects) {
			return lastErr
		}

		a.debugLog("    Allocator::allocateMemory retrying in another memory type",
			slog.Int("memoryTypeIndex", memoryTypeIndex),
			slog.String("error", lastErr.Error()))
		memoryTypeBits &^= 1 << memoryTypeIndex
	}

	return lastErr
}

func (a *Allocator) allocateMemoryOfType(
	requirements hal.MemoryRequirements,
	info *AllocationCreateInfo,
	object hal.Object,
	memoryTypeIndex int,
	suballocType suballocationType,
	outAlloc *Allocation,
) error {
	createInfo := *info
	err := a.calculateMemoryTypeParameters(&createInfo, memoryTypeIndex, requirements.Size, 1)
	if err != nil {
		return err
	}

	if createInfo.Flags&AllocationCreateDedicatedMemory != 0 || requirements.RequiresDedicated {
		return a.allocateDedicatedMemory(requirements.Size, &createInfo, object, memoryTypeIndex, suballocType, outAlloc)
	}

	blockList, err := a.blockList(memoryTypeIndex, createInfo.priority())
	if err != nil {
		return err
	}

	canAllocateDedicated := createInfo.Flags&AllocationCreateNeverAllocate == 0
	if canAllocateDedicated && (requirements.PrefersDedicated || requirements.Size > blockList.PreferredBlockSize()/2) {
		maxCount := a.deviceMemory.Limits().MaxMemoryAllocationCount
		if maxCount <= 0 || a.deviceMemory.AllocationCount() < uint32(maxCount)*3/4 {
			err = a.allocateDedicatedMemory(requirements.Size, &createInfo, object, memoryTypeIndex, suballocType, outAlloc)
			if err == nil {
				return nil
			}
		}
	}

	alignment := uint(memutils.Max(requirements.Alignment, 1))
	err = blockList.Allocate(
		[]pageRequest{{size: requirements.Size, alignment: alignment, createInfo: &createInfo, suballocType: suballocType}},
		[]*Allocation{outAlloc},
	)
	if err == nil || !canAllocateDedicated {
		return err
	}

	// Fall back to a dedicated allocation when the blocks are full
	return a.allocateDedicatedMemory(requirements.Size, &createInfo, object, memoryTypeIndex, suballocType, outAlloc)
}

// calculateMemoryTypeParameters adjusts the create info for a specific memory type
func (a *Allocator) calculateMemoryTypeParameters(createInfo *AllocationCreateInfo, memoryTypeIndex int, size int, allocationCount int) error {
	if createInfo.Flags&AllocationCreateMapped != 0 && !a.deviceMemory.IsMemoryTypeHostVisible(memoryTypeIndex) {
		createInfo.Flags &^= AllocationCreateMapped
	}

	if createInfo.Flags&AllocationCreateDedicatedMemory != 0 && createInfo.Flags&AllocationCreateWithinBudget != 0 {
		heapIndex := a.deviceMemory.MemoryTypeIndexToHeapIndex(memoryTypeIndex)

		budget := vulkan.Budget{}
		a.deviceMemory.HeapBudget(heapIndex, &budget)
		if budget.Usage+size*allocationCount > budget.Budget {
			return vkerr.New(vkerr.OutOfDeviceMemory, "a dedicated allocation of %d bytes would exceed the budget of heap %d", size, heapIndex)
		}
	}

	return nil
}

func (a *Allocator) allocateDedicatedMemory(
	size int,
	createInfo *AllocationCreateInfo,
	object hal.Object,
	memoryTypeIndex int,
	suballocType suballocationType,
	outAlloc *Allocation,
) (err error) {
	if createInfo.Flags&AllocationCreateNeverAllocate != 0 {
		return vkerr.New(vkerr.OutOfDeviceMemory, "a dedicated allocation was required, but AllocationCreateNeverAllocate was set")
	}

	allocInfo := hal.MemoryAllocateInfo{
		Size:            size,
		MemoryTypeIndex: memoryTypeIndex,
		Priority:        createInfo.priority(),
		HasPriority:     a.extensionData.UseMemoryPriority,
	}

	if a.extensionData.DedicatedAllocations && createInfo.Flags&AllocationCreateCanAlias == 0 {
		switch object.Type {
		case hal.ObjectTypeBuffer:
			allocInfo.DedicatedBuffer = object.Handle
		case hal.ObjectTypeImage:
			allocInfo.DedicatedImage = object.Handle
		}
	}

	if a.extensionData.BufferDeviceAddress && object.Type != hal.ObjectTypeImage {
		allocInfo.DeviceAddress = true
	}

	memory, err := a.deviceMemory.AllocateVulkanMemory(allocInfo)
	if err != nil {
		a.debugLog("    Allocator::allocateDedicatedMemory FAILED", slog.String("error", err.Error()))
		return err
	}

	mapped := createInfo.Flags&AllocationCreateMapped != 0
	if mapped {
		_, err = memory.Map(1)
		if err != nil {
			a.deviceMemory.FreeVulkanMemory(memoryTypeIndex, size, memory)
			return err
		}
	}

	outAlloc.init(a, a.deviceMemory.IsMemoryTypeHostVisible(memoryTypeIndex))
	outAlloc.initDedicatedAllocation(memoryTypeIndex, memory, suballocType, size, createInfo.priority(), mapped)
	outAlloc.SetUserData(createInfo.UserData)
	outAlloc.SetName(createInfo.Name)

	a.dedicatedAllocations[memoryTypeIndex].Register(outAlloc)
	a.deviceMemory.AddAllocation(a.deviceMemory.MemoryTypeIndexToHeapIndex(memoryTypeIndex), size)

	outAlloc.fillAllocation(createdFillPattern)

	a.debugLog("    Allocated dedicated memory",
		slog.Int("memoryTypeIndex", memoryTypeIndex),
		slog.Int("size", size),
		slog.String("memory", memory.Handle().String()))

	return nil
}

type batchGroup struct {
	memoryTypeIndex int
	flags           AllocationCreateFlags
	priority        float32
	indices         []int
}

// AllocBatch allocates one Allocation per entry of requirements, with the create info at the same
// index. Requests that resolve to the same memory type, flags and priority are placed in a single
// locked pass of that type's block list. If any request fails, every allocation made by the batch
// is freed and the error is returned.
func (a *Allocator) AllocBatch(requirements []hal.MemoryRequirements, infos []AllocationCreateInfo) (allocations []*Allocation, err error) {
	a.debugLog("Allocator::AllocBatch", slog.Int("count", len(requirements)))

	if len(requirements) != len(infos) {
		return nil, vkerr.New(vkerr.ValidationError, "AllocBatch received %d memory requirements but %d create infos", len(requirements), len(infos))
	}

	allocations = make([]*Allocation, len(requirements))
	defer func() {
		if err == nil {
			return
		}

		for index, alloc := range allocations {
			if alloc == nil || alloc.isFreed() {
				continue
			}

			freeErr := a.Free(alloc)
			if freeErr != nil {
				err = errors.CombineErrors(err, freeErr)
			}
			allocations[index] = nil
		}
		allocations = nil
	}()

	var groups []*batchGroup
	var loose []int
	for index := range requirements {
		info := &infos[index]
		err = a.validateRequest(requirements[index], info)
		if err != nil {
			return allocations, errors.Wrapf(err, "batch request %d", index)
		}

		if info.Flags&AllocationCreateDedicatedMemory != 0 || requirements[index].RequiresDedicated || requirements[index].PrefersDedicated {
			loose = append(loose, index)
			continue
		}

		memoryTypeBits := a.candidateMemoryTypeBits(requirements[index].MemoryTypeBits, info)
		memoryTypeIndex, findErr := a.findMemoryTypeIndex(memoryTypeBits, info)
		if findErr != nil {
			err = errors.Wrapf(findErr, "batch request %d", index)
			return allocations, err
		}

		group := findBatchGroup(groups, memoryTypeIndex, info.Flags, info.priority())
		if group == nil {
			group = &batchGroup{memoryTypeIndex: memoryTypeIndex, flags: info.Flags, priority: info.priority()}
			groups = append(groups, group)
		}
		group.indices = append(group.indices, index)
	}

	for _, group := range groups {
		placed := a.allocateBatchGroup(group, requirements, infos, allocations)
		if !placed {
			// The group did not fit in one pass; place its requests one at a time so that each can
			// fall back to another memory type or a dedicated allocation
			loose = append(loose, group.indices...)
		}
	}

	for _, index := range loose {
		alloc := &Allocation{}
		err = a.allocateMemory(requirements[index], &infos[index], hal.Object{}, suballocationTypeFor(hal.Object{}, infos[index].Tiling), alloc)
		if err != nil {
			return allocations, errors.Wrapf(err, "batch request %d", index)
		}
		allocations[index] = alloc
	}

	return allocations, nil
}

func findBatchGroup(groups []*batchGroup, memoryTypeIndex int, flags AllocationCreateFlags, priority float32) *batchGroup {
	for _, group := range groups {
		if group.memoryTypeIndex == memoryTypeIndex && group.flags == flags && group.priority == priority {
			return group
		}
	}
	return nil
}

func (a *Allocator) allocateBatchGroup(group *batchGroup, requirements []hal.MemoryRequirements, infos []AllocationCreateInfo, allocations []*Allocation) bool {
	blockList, err := a.blockList(group.memoryTypeIndex, group.priority)
	if err != nil {
		return false
	}

	requests := make([]pageRequest, 0, len(group.indices))
	groupAllocs := make([]*Allocation, 0, len(group.indices))
	for _, index := range group.indices {
		createInfo := infos[index]
		err = a.calculateMemoryTypeParameters(&createInfo, group.memoryTypeIndex, requirements[index].Size, 1)
		if err != nil {
			return false
		}

		requests = append(requests, pageRequest{
			size:         requirements[index].Size,
			alignment:    uint(memutils.Max(requirements[index].Alignment, 1)),
			createInfo:   &createInfo,
			suballocType: suballocationTypeFor(hal.Object{}, createInfo.Tiling),
		})
		groupAllocs = append(groupAllocs, &Allocation{})
	}

	err = blockList.Allocate(requests, groupAllocs)
	if err != nil {
		a.debugLog("    Allocator::AllocBatch group did not fit in one pass",
			slog.Int("memoryTypeIndex", group.memoryTypeIndex),
			slog.Int("count", len(requests)),
			slog.String("error", err.Error()))
		return false
	}

	for i, index := range group.indices {
		allocations[index] = groupAllocs[i]
	}
	return true
}

// Free returns an allocation to the allocator. Freeing nil does nothing; freeing an allocation a
// second time is an error.
func (a *Allocator) Free(alloc *Allocation) error {
	if alloc == nil {
		return nil
	}

	a.debugLog("Allocator::Free",
		slog.Int("memoryTypeIndex", alloc.memoryTypeIndex),
		slog.Int("size", alloc.size),
		slog.String("name", alloc.name))

	if alloc.isFreed() {
		return vkerr.New(vkerr.ValidationError, "attempted to free an allocation that has already been freed")
	}
	if alloc.parentAllocator != a {
		return vkerr.New(vkerr.ValidationError, "attempted to free an allocation that belongs to a different allocator")
	}

	alloc.fillAllocation(destroyedFillPattern)

	var err error
	switch alloc.allocationType {
	case allocationTypeBlock:
		err = alloc.blockData.block.parent.Free(alloc, false)
	case allocationTypeDedicated:
		err = a.freeDedicatedMemory(alloc)
	}
	if err != nil {
		return err
	}

	alloc.markFreed()
	return nil
}

func (a *Allocator) freeDedicatedMemory(alloc *Allocation) error {
	memoryTypeIndex := alloc.MemoryTypeIndex()
	heapIndex := a.deviceMemory.MemoryTypeIndexToHeapIndex(memoryTypeIndex)

	a.dedicatedAllocations[memoryTypeIndex].Unregister(alloc)

	references := alloc.mapReferences()
	if references > 0 {
		err := alloc.memory.Unmap(references)
		if err != nil {
			return err
		}
	}

	a.deviceMemory.FreeVulkanMemory(memoryTypeIndex, alloc.Size(), alloc.memory)
	a.deviceMemory.RemoveAllocation(heapIndex, alloc.Size())

	a.debugLog("    Freed dedicated memory", slog.Int("memoryTypeIndex", memoryTypeIndex), slog.Int("size", alloc.Size()))
	return nil
}

// Realloc frees alloc and allocates a fresh range of newSize bytes in the same memory type, with
// the same flags, priority, name and user data. The contents are not preserved.
func (a *Allocator) Realloc(alloc *Allocation, newSize int) (*Allocation, error) {
	a.debugLog("Allocator::Realloc", slog.Int("newSize", newSize))

	if alloc == nil || alloc.isFreed() {
		return nil, vkerr.New(vkerr.ValidationError, "attempted to reallocate an allocation that is not live")
	}

	info := AllocationCreateInfo{
		MemoryTypeBits: 1 << alloc.memoryTypeIndex,
		Priority:       alloc.priority,
		UserData:       alloc.userData,
		Name:           alloc.name,
	}
	if alloc.isPersistentMap() {
		info.Flags |= AllocationCreateMapped
	}
	if alloc.IsDedicated() {
		info.Flags |= AllocationCreateDedicatedMemory
	}
	if alloc.suballocationType == suballocationImageLinear {
		info.Tiling = hal.ImageTilingLinear
	}

	requirements := hal.MemoryRequirements{}
	requirements.Size = newSize
	requirements.Alignment = int(memutils.Max(alloc.alignment, 1))
	requirements.MemoryTypeBits = 1 << alloc.memoryTypeIndex

	err := a.validateRequest(requirements, &info)
	if err != nil {
		return nil, err
	}

	suballocType := alloc.suballocationType
	err = a.Free(alloc)
	if err != nil {
		return nil, err
	}

	newAlloc := &Allocation{}
	err = a.allocateMemory(requirements, &info, hal.Object{}, suballocType, newAlloc)
	if err != nil {
		return nil, err
	}

	return newAlloc, nil
}

// BindMemory binds a buffer or image to alloc, offset bytes in. If binding fails the object
// remains unbound.
func (a *Allocator) BindMemory(alloc *Allocation, offset int, object hal.Object) error {
	return alloc.Bind(offset, object)
}

// Map maps alloc; see Allocation.Map
func (a *Allocator) Map(alloc *Allocation, offset int) (unsafe.Pointer, error) {
	return alloc.Map(offset)
}

// Unmap releases a mapping taken with Map
func (a *Allocator) Unmap(alloc *Allocation) error {
	return alloc.Unmap()
}

// WithMapping maps alloc for the duration of fn
func (a *Allocator) WithMapping(alloc *Allocation, offset int, fn func(ptr unsafe.Pointer) error) (err error) {
	ptr, err := alloc.Map(offset)
	if err != nil {
		return err
	}
	defer func() {
		unmapErr := alloc.Unmap()
		if unmapErr != nil {
			err = errors.CombineErrors(err, unmapErr)
		}
	}()

	return fn(ptr)
}

// Flush flushes a range of alloc; see Allocation.Flush
func (a *Allocator) Flush(alloc *Allocation, offset, size int) error {
	return alloc.Flush(offset, size)
}

// Invalidate invalidates a range of alloc; see Allocation.Invalidate
func (a *Allocator) Invalidate(alloc *Allocation, offset, size int) error {
	return alloc.Invalidate(offset, size)
}

// FlushAllocations flushes a range of each allocation in one driver call. offsets and sizes may
// be nil, which means the whole of every allocation.
func (a *Allocator) FlushAllocations(allocs []*Allocation, offsets, sizes []int) error {
	return a.flushOrInvalidateAllocations(allocs, offsets, sizes, vulkan.CacheOperationFlush)
}

// InvalidateAllocations invalidates a range of each allocation in one driver call. offsets and
// sizes may be nil, which means the whole of every allocation.
func (a *Allocator) InvalidateAllocations(allocs []*Allocation, offsets, sizes []int) error {
	return a.flushOrInvalidateAllocations(allocs, offsets, sizes, vulkan.CacheOperationInvalidate)
}

func (a *Allocator) flushOrInvalidateAllocations(allocs []*Allocation, offsets, sizes []int, operation vulkan.CacheOperation) error {
	if offsets != nil && len(offsets) != len(allocs) {
		return vkerr.New(vkerr.ValidationError, "%d offsets were provided for %d allocations", len(offsets), len(allocs))
	}
	if sizes != nil && len(sizes) != len(allocs) {
		return vkerr.New(vkerr.ValidationError, "%d sizes were provided for %d allocations", len(sizes), len(allocs))
	}

	var ranges []hal.MappedRange
	for index, alloc := range allocs {
		if alloc.isFreed() {
			return vkerr.New(vkerr.ValidationError, "allocation %d has been freed", index)
		}

		offset := 0
		if offsets != nil {
			offset = offsets[index]
		}
		size := WholeSize
		if sizes != nil {
			size = sizes[index]
		}

		memRange, needed, err := alloc.flushOrInvalidateRange(offset, size)
		if err != nil {
			return errors.Wrapf(err, "allocation %d", index)
		}
		if needed {
			ranges = append(ranges, memRange)
		}
	}

	if len(ranges) == 0 {
		return nil
	}

	return a.deviceMemory.FlushOrInvalidateAllocations(ranges, operation)
}

// Budget reports usage and budget for every memory heap. Usage and budget come from the driver
// when the memory budget extension is enabled; otherwise usage is what this allocator holds and
// budget is 80% of the heap size.
func (a *Allocator) Budget() []Budget {
	heapCount := a.deviceMemory.MemoryHeapCount()
	internalBudgets := make([]vulkan.Budget, heapCount)
	a.deviceMemory.HeapBudgets(0, internalBudgets)

	budgets := make([]Budget, heapCount)
	for heapIndex, budget := range internalBudgets {
		budgets[heapIndex] = Budget{
			Statistics: budget.Statistics,
			Usage:      budget.Usage,
			Budget:     budget.Budget,
		}
	}

	return budgets
}

// CheckCorruption verifies the margins around every allocation in the memory types selected by
// memoryTypeBits. It returns a FeatureUnsupported error if corruption detection is not enabled
// for any of them, which is the case unless the module is built with the debug_mem_utils tag.
func (a *Allocator) CheckCorruption(memoryTypeBits uint32) error {
	a.debugLog("Allocator::CheckCorruption", slog.Uint64("memoryTypeBits", uint64(memoryTypeBits)))

	checked := false
	err := a.visitBlockLists(memoryTypeBits, func(list *memoryBlockList) error {
		listErr := list.CheckCorruption()
		if vkerr.Is(listErr, vkerr.FeatureUnsupported) {
			return nil
		}
		checked = true
		return listErr
	})
	if err != nil {
		return err
	}

	if !checked {
		return vkerr.New(vkerr.FeatureUnsupported, "corruption detection is not enabled for any of the memory types %#x", memoryTypeBits)
	}

	return nil
}

// SetPriority changes the priority of a dedicated allocation through the pageable device local
// memory extension. Block allocations share their memory and cannot be re-prioritized alone.
func (a *Allocator) SetPriority(alloc *Allocation, priority float32) error {
	a.debugLog("Allocator::SetPriority", slog.Float64("priority", float64(priority)))

	if priority < 0 || priority > 1 {
		return vkerr.New(vkerr.ValidationError, "priority %f is outside [0, 1]", priority)
	}
	if a.extensionData.SetMemoryPriority == nil {
		return vkerr.New(vkerr.ExtensionUnsupported, "changing the priority of live memory requires %s", hal.ExtPageableDeviceLocalMemory)
	}
	if alloc == nil || alloc.isFreed() {
		return vkerr.New(vkerr.ValidationError, "attempted to set the priority of an allocation that is not live")
	}
	if !alloc.IsDedicated() {
		return vkerr.New(vkerr.ValidationError, "only dedicated allocations can change priority; this allocation shares memory %s", alloc.Memory())
	}

	a.extensionData.SetMemoryPriority(a.device.Handle(), alloc.Memory(), priority)
	alloc.priority = priority
	return nil
}

// Validate checks the internal consistency of every block list and dedicated allocation list
func (a *Allocator) Validate() error {
	err := a.visitBlockLists(a.globalMemoryTypeBits, func(list *memoryBlockList) error {
		return list.Validate()
	})
	if err != nil {
		return err
	}

	for memoryTypeIndex := 0; memoryTypeIndex < a.deviceMemory.MemoryTypeCount(); memoryTypeIndex++ {
		dedicated := a.dedicatedAllocations[memoryTypeIndex]
		if dedicated == nil {
			continue
		}

		err = dedicated.Validate()
		if err != nil {
			return errors.Wrapf(err, "dedicated allocations of memory type %d", memoryTypeIndex)
		}
	}

	return nil
}

// Destroy frees every block of device memory the allocator holds. It returns an error, and logs
// each leaked allocation, if any allocation has not been freed.
func (a *Allocator) Destroy() error {
	a.debugLog("Allocator::Destroy")

	var allErrors []error

	for memoryTypeIndex := 0; memoryTypeIndex < a.deviceMemory.MemoryTypeCount(); memoryTypeIndex++ {
		dedicated := a.dedicatedAllocations[memoryTypeIndex]
		if dedicated != nil && !dedicated.IsEmpty() {
			dedicated.visit(func(alloc *Allocation) {
				a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] dedicated allocation was not freed",
					slog.Int("memoryTypeIndex", memoryTypeIndex),
					slog.Int("size", alloc.size),
					slog.String("name", alloc.name),
					slog.Any("userData", alloc.userData))
			})
			allErrors = append(allErrors, vkerr.New(vkerr.ValidationError, "memory type %d has dedicated allocations that were not freed", memoryTypeIndex))
		}
	}

	a.blockListsMutex.Lock()
	defer a.blockListsMutex.Unlock()

	for memoryTypeIndex := range a.memoryBlockLists {
		for _, list := range a.memoryBlockLists[memoryTypeIndex] {
			err := list.Destroy()
			if err != nil {
				allErrors = append(allErrors, err)
			}
		}
	}

	return errors.Join(allErrors...)
}
