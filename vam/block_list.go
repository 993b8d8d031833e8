package vam

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/memutils/defrag"
	"github.com/vkngwrapper/armory/memutils/metadata"
	"github.com/vkngwrapper/armory/vam/internal/utils"
	"github.com/vkngwrapper/armory/vam/internal/vulkan"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

var blockPool = sync.Pool{
	New: func() any {
		return &deviceMemoryBlock{}
	},
}

const maxNewBlockSizeShift = 3

// pageRequest is one allocation to be placed by memoryBlockList.Allocate
type pageRequest struct {
	size         int
	alignment    uint
	createInfo   *AllocationCreateInfo
	suballocType suballocationType
}

// memoryBlockList owns every block of one memory type and priority
type memoryBlockList struct {
	parentAllocator *Allocator
	extensionData   *vulkan.ExtensionData
	deviceMemory    *vulkan.DeviceMemoryProperties
	logger          *slog.Logger

	memoryTypeIndex        int
	priority               float32
	preferredBlockSize     int
	bufferImageGranularity int
	minAllocationAlignment uint

	mutex       utils.Lock
	blocks      []*deviceMemoryBlock
	nextBlockId int
}

var _ defrag.BlockList[Allocation] = &memoryBlockList{}

func (l *memoryBlockList) Init(
	useMutex bool,
	allocator *Allocator,
	memoryTypeIndex int,
	priority float32,
	preferredBlockSize int,
	bufferImageGranularity int,
) {
	l.parentAllocator = allocator
	l.logger = allocator.logger
	l.extensionData = allocator.extensionData
	l.deviceMemory = allocator.deviceMemory
	l.memoryTypeIndex = memoryTypeIndex
	l.priority = priority
	l.preferredBlockSize = preferredBlockSize
	l.bufferImageGranularity = bufferImageGranularity
	l.minAllocationAlignment = allocator.deviceMemory.MemoryTypeMinimumAlignment(memoryTypeIndex)
	l.mutex.Synchronize(useMutex)
}

func (l *memoryBlockList) MemoryTypeIndex() int    { return l.memoryTypeIndex }
func (l *memoryBlockList) Priority() float32       { return l.priority }
func (l *memoryBlockList) PreferredBlockSize() int { return l.preferredBlockSize }
func (l *memoryBlockList) BlockCount() int         { return len(l.blocks) }

func (l *memoryBlockList) Destroy() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var allErrors []error
	remaining := l.blocks[:0]
	for _, block := range l.blocks {
		err := block.Destroy()
		if err != nil {
			allErrors = append(allErrors, err)
			remaining = append(remaining, block)
			continue
		}
		blockPool.Put(block)
	}
	l.blocks = remaining

	if len(allErrors) > 0 {
		return errors.Wrapf(allErrors[0], "%d of the blocks in memory type %d could not be destroyed", len(allErrors), l.memoryTypeIndex)
	}
	return nil
}

func (l *memoryBlockList) AddStatistics(stats *memutils.Statistics) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, block := range l.blocks {
		block.metadata.AddStatistics(stats)
	}
}

func (l *memoryBlockList) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, block := range l.blocks {
		block.metadata.AddDetailedStatistics(stats)
	}
}

func (l *memoryBlockList) IsEmpty() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return len(l.blocks) == 0
}

func (l *memoryBlockList) createBlock(blockSize int) (int, error) {
	allocInfo := hal.MemoryAllocateInfo{
		Size:            blockSize,
		MemoryTypeIndex: l.memoryTypeIndex,
		Priority:        l.priority,
		HasPriority:     l.extensionData.UseMemoryPriority,
		DeviceAddress:   l.extensionData.BufferDeviceAddress,
	}

	memory, err := l.deviceMemory.AllocateVulkanMemory(allocInfo)
	if err != nil {
		return -1, err
	}

	block := blockPool.Get().(*deviceMemoryBlock)
	block.Init(l, memory, blockSize, l.nextBlockId, l.bufferImageGranularity)
	l.nextBlockId++

	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Created block",
		slog.Int("block.id", block.id),
		slog.Int("memoryTypeIndex", l.memoryTypeIndex),
		slog.Int("size", blockSize))

	l.blocks = append(l.blocks, block)
	return len(l.blocks) - 1, nil
}

func (l *memoryBlockList) remove(block *deviceMemoryBlock) {
	for blockIndex := 0; blockIndex < len(l.blocks); blockIndex++ {
		if l.blocks[blockIndex] == block {
			l.blocks = append(l.blocks[:blockIndex], l.blocks[blockIndex+1:]...)
			return
		}
	}

	panic("attempted to remove a block from a block list that did not belong to it")
}

func (l *memoryBlockList) IsCorruptionDetectionEnabled() bool {
	requiredMemFlags := core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
	return memutils.DebugMargin > 0 &&
		l.deviceMemory.MemoryTypeProperties(l.memoryTypeIndex).PropertyFlags&requiredMemFlags == requiredMemFlags
}

// Allocate places every request in one locked pass. If any of them fails, the ones already
// placed are freed and the error is returned.
func (l *memoryBlockList) Allocate(requests []pageRequest, allocations []*Allocation) (err error) {
	allocIndex := 0

	defer func() {
		if err != nil {
			for allocIndex > 0 {
				allocIndex--

				freeErr := l.Free(allocations[allocIndex], false)
				if freeErr != nil {
					panic(fmt.Sprintf("unexpected error when freeing an allocation that was created as part of a failed allocation: %+v", freeErr))
				}
				allocations[allocIndex] = nil
			}
		}
	}()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	for allocIndex = 0; allocIndex < len(requests); allocIndex++ {
		request := requests[allocIndex]
		if l.minAllocationAlignment > request.alignment {
			request.alignment = l.minAllocationAlignment
		}
		if l.IsCorruptionDetectionEnabled() {
			request.size = memutils.AlignUp(request.size, 4)
			request.alignment = memutils.AlignUp(request.alignment, 4)
		}

		err = l.allocPage(request, allocations[allocIndex])
		if err != nil {
			return err
		}
	}

	return nil
}

func (l *memoryBlockList) allocPage(request pageRequest, outAlloc *Allocation) error {
	createInfo := request.createInfo
	size := request.size

	heapIndex := l.deviceMemory.MemoryTypeIndexToHeapIndex(l.memoryTypeIndex)
	budget := vulkan.Budget{}
	l.deviceMemory.HeapBudget(heapIndex, &budget)
	freeMemory := memutils.Max(budget.Budget-budget.Usage, 0)

	neverAllocate := createInfo.Flags&AllocationCreateNeverAllocate != 0
	canFallbackToDedicated := !neverAllocate
	canCreateNewBlock := !neverAllocate && (freeMemory >= size || !canFallbackToDedicated)
	if createInfo.Flags&AllocationCreateWithinBudget != 0 && freeMemory < size {
		canCreateNewBlock = false
	}
	strategy := createInfo.Flags & AllocationCreateStrategyMask

	// Early reject: requests this large belong in dedicated memory
	if size+memutils.DebugMargin > l.preferredBlockSize {
		return vkerr.New(vkerr.OutOfDeviceMemory, "an allocation of %d bytes does not fit the preferred block size %d of memory type %d", size, l.preferredBlockSize, l.memoryTypeIndex)
	}

	// 1. Search existing blocks
	placed, err := l.allocFromExistingBlocks(request, strategy, outAlloc)
	if err != nil || placed {
		return err
	}

	// 2. Try to create a new block
	if !canCreateNewBlock {
		return vkerr.New(vkerr.OutOfDeviceMemory, "no existing block of memory type %d can hold %d bytes and a new block may not be created", l.memoryTypeIndex, size)
	}

	newBlockSize := l.preferredBlockSize
	newBlockSizeShift := 0
	maxExistingBlockSize := l.calcMaxBlockSize()

	// Start small while the existing blocks are small too
	for i := 0; i < maxNewBlockSizeShift; i++ {
		smallerNewBlockSize := newBlockSize / 2
		if smallerNewBlockSize > maxExistingBlockSize && smallerNewBlockSize >= size*2 {
			newBlockSize = smallerNewBlockSize
			newBlockSizeShift++
		} else {
			break
		}
	}

	newBlockIndex := -1
	if newBlockSize <= freeMemory || !canFallbackToDedicated {
		newBlockIndex, err = l.createBlock(newBlockSize)
	} else {
		err = vkerr.New(vkerr.OutOfDeviceMemory, "a new block of %d bytes would exceed the budget of heap %d", newBlockSize, heapIndex)
	}

	for err != nil && newBlockSizeShift < maxNewBlockSizeShift {
		smallerNewBlockSize := newBlockSize / 2
		if smallerNewBlockSize < size {
			break
		}

		newBlockSize = smallerNewBlockSize
		newBlockSizeShift++
		if newBlockSize <= freeMemory || !canFallbackToDedicated {
			newBlockIndex, err = l.createBlock(newBlockSize)
		}
	}

	if err != nil {
		return err
	}

	block := l.blocks[newBlockIndex]
	placed, err = l.allocFromBlock(block, request, strategy, outAlloc)
	if err != nil {
		return err
	} else if !placed {
		return errors.Errorf("created block %d of %d bytes to hold an allocation of size %d, but the allocation did not fit", block.id, block.metadata.Size(), size)
	}

	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Created new block", slog.Int("block.id", block.id), slog.Int("size", newBlockSize))
	l.incrementallySortBlocks()
	return nil
}

func (l *memoryBlockList) allocFromExistingBlocks(request pageRequest, strategy AllocationCreateFlags, outAlloc *Allocation) (bool, error) {
	tryBlock := func(block *deviceMemoryBlock) (bool, error) {
		placed, err := l.allocFromBlock(block, request, strategy, outAlloc)
		if placed {
			l.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Returned from existing block", slog.Int("block.id", block.id))
			l.incrementallySortBlocks()
		}
		return placed, err
	}

	if strategy == AllocationCreateStrategyMinTime {
		// Prefer blocks with the largest amount of free space by iterating backward
		for blockIndex := len(l.blocks) - 1; blockIndex >= 0; blockIndex-- {
			placed, err := tryBlock(l.blocks[blockIndex])
			if err != nil || placed {
				return placed, err
			}
		}

		return false, nil
	}

	if !l.deviceMemory.IsMemoryTypeHostVisible(l.memoryTypeIndex) {
		// Prefer blocks with the smallest amount of free space by iterating forward
		for _, block := range l.blocks {
			placed, err := tryBlock(block)
			if err != nil || placed {
				return placed, err
			}
		}

		return false, nil
	}

	// Persistently mapped allocations try the blocks that are already mapped first and the rest
	// try unmapped blocks first, so that a few blocks stay mapped instead of all of them
	wantsMapped := request.createInfo.Flags&AllocationCreateMapped != 0
	for mappingIndex := 0; mappingIndex < 2; mappingIndex++ {
		for _, block := range l.blocks {
			isBlockMapped := block.memory.MappedData() != nil
			if (mappingIndex == 0) != (wantsMapped == isBlockMapped) {
				continue
			}

			placed, err := tryBlock(block)
			if err != nil || placed {
				return placed, err
			}
		}
	}

	return false, nil
}

// Free returns the allocation's range to its block. An empty block is destroyed if another block
// is already empty, the heap is over budget, or releaseEmptyBlock is set.
func (l *memoryBlockList) Free(alloc *Allocation, releaseEmptyBlock bool) error {
	heapIndex := l.deviceMemory.MemoryTypeIndexToHeapIndex(l.memoryTypeIndex)
	size := alloc.size

	blockToDelete, err := l.freeWithLock(alloc, heapIndex, releaseEmptyBlock)
	if err != nil {
		return err
	}

	if blockToDelete != nil {
		l.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Deleted empty block", slog.Int("block.id", blockToDelete.id))
		err = blockToDelete.Destroy()
		if err != nil {
			panic(fmt.Sprintf("unexpected failure when destroying a memory block in response to freeing an allocation: %+v", err))
		}
		blockPool.Put(blockToDelete)
	}

	l.deviceMemory.RemoveAllocation(heapIndex, size)
	return nil
}

func (l *memoryBlockList) freeWithLock(alloc *Allocation, heapIndex int, releaseEmptyBlock bool) (blockToDelete *deviceMemoryBlock, err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	block := alloc.blockData.block

	heapBudget := vulkan.Budget{}
	l.deviceMemory.HeapBudget(heapIndex, &heapBudget)
	budgetExceeded := heapBudget.Usage >= heapBudget.Budget

	if l.IsCorruptionDetectionEnabled() {
		err = block.ValidateMagicValueAfterAllocation(alloc.Offset(), alloc.Size())
		if err != nil {
			return nil, err
		}
	}

	references := alloc.mapReferences()
	if references > 0 {
		err = block.memory.Unmap(references)
		if err != nil {
			return nil, err
		}
	}

	hasEmptyBlockBeforeFree := l.hasEmptyBlock()
	err = block.metadata.Free(alloc.blockData.handle)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to free allocation with handle %d from block %d", alloc.blockData.handle, block.id)
	}
	memutils.DebugValidate(block)

	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Freed from block",
		slog.Int("block.id", block.id),
		slog.Int("memoryTypeIndex", l.memoryTypeIndex))

	if block.metadata.IsEmpty() && (hasEmptyBlockBeforeFree || budgetExceeded || releaseEmptyBlock) {
		blockToDelete = block
		l.remove(block)
	} else if !block.metadata.IsEmpty() && hasEmptyBlockBeforeFree {
		// There is an empty block somewhere we don't need
		lastBlock := l.blocks[len(l.blocks)-1]
		if lastBlock.metadata.IsEmpty() {
			blockToDelete = lastBlock
			l.blocks = l.blocks[:len(l.blocks)-1]
		}
	}

	l.incrementallySortBlocks()

	return blockToDelete, nil
}

func (l *memoryBlockList) hasEmptyBlock() bool {
	for _, block := range l.blocks {
		if block.metadata.IsEmpty() {
			return true
		}
	}

	return false
}

// incrementallySortBlocks performs a single step of sorting the blocks by free space, which is
// enough to keep them nearly sorted as allocations come and go
func (l *memoryBlockList) incrementallySortBlocks() {
	for blockIndex := 1; blockIndex < len(l.blocks); blockIndex++ {
		if l.blocks[blockIndex-1].metadata.SumFreeSize() > l.blocks[blockIndex].metadata.SumFreeSize() {
			l.blocks[blockIndex-1], l.blocks[blockIndex] = l.blocks[blockIndex], l.blocks[blockIndex-1]
			return
		}
	}
}

func (l *memoryBlockList) SortByFreeSize() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	sort.SliceStable(l.blocks, func(i, j int) bool {
		return l.blocks[i].metadata.SumFreeSize() < l.blocks[j].metadata.SumFreeSize()
	})
}

func (l *memoryBlockList) calcMaxBlockSize() int {
	result := 0
	for blockIndex := len(l.blocks) - 1; blockIndex >= 0; blockIndex-- {
		blockSize := l.blocks[blockIndex].metadata.Size()
		if blockSize <= result {
			continue
		}

		result = blockSize
		if result >= l.preferredBlockSize {
			return result
		}
	}

	return result
}

func (l *memoryBlockList) allocFromBlock(block *deviceMemoryBlock, request pageRequest, flags AllocationCreateFlags, outAlloc *Allocation) (bool, error) {
	if !block.metadata.MayHaveFreeBlock(uint32(request.suballocType), request.size) {
		return false, nil
	}

	var strategy metadata.AllocationStrategy
	if flags&AllocationCreateStrategyMinOffset != 0 {
		strategy |= metadata.AllocationStrategyMinOffset
	}
	if flags&AllocationCreateStrategyMinMemory != 0 {
		strategy |= metadata.AllocationStrategyMinMemory
	}
	if flags&AllocationCreateStrategyMinTime != 0 {
		strategy |= metadata.AllocationStrategyMinTime
	}

	success, currRequest, err := block.metadata.CreateAllocationRequest(request.size, request.alignment, uint32(request.suballocType), strategy, math.MaxInt)
	if err != nil {
		return false, err
	} else if !success {
		return false, nil
	}

	mapped := request.createInfo.Flags&AllocationCreateMapped != 0
	err = l.commitAllocationRequest(currRequest, block, request.alignment, mapped, nil, request.suballocType, outAlloc)
	if err != nil {
		return false, err
	}

	outAlloc.SetUserData(request.createInfo.UserData)
	outAlloc.SetName(request.createInfo.Name)
	return true, nil
}

// commitAllocationRequest commits an allocation request to the block's metadata and initializes
// outAlloc. The metadata records metadataUserData, or outAlloc itself if that is nil.
func (l *memoryBlockList) commitAllocationRequest(allocRequest metadata.AllocationRequest, block *deviceMemoryBlock, alignment uint, mapped bool, metadataUserData any, suballocType suballocationType, outAlloc *Allocation) error {
	hostVisible := l.deviceMemory.IsMemoryTypeHostVisible(l.memoryTypeIndex)
	mapped = mapped && hostVisible

	if mapped {
		_, err := block.memory.Map(1)
		if err != nil {
			return err
		}
	}

	outAlloc.init(l.parentAllocator, hostVisible)
	if metadataUserData == nil {
		metadataUserData = outAlloc
	}

	err := block.metadata.Alloc(allocRequest, uint32(suballocType), metadataUserData)
	if err != nil {
		if mapped {
			_ = block.memory.Unmap(1)
		}
		return err
	}

	outAlloc.initBlockAllocation(block, allocRequest.BlockAllocationHandle, alignment, allocRequest.Size, suballocType, mapped)

	heapIndex := l.deviceMemory.MemoryTypeIndexToHeapIndex(l.memoryTypeIndex)
	l.deviceMemory.AddAllocation(heapIndex, allocRequest.Size)

	outAlloc.fillAllocation(createdFillPattern)

	if l.IsCorruptionDetectionEnabled() {
		err = block.WriteMagicBlockAfterAllocation(outAlloc.Offset(), allocRequest.Size)
		if err != nil {
			return err
		}
	}

	return nil
}

func (l *memoryBlockList) PrintDetailedMap(json *jwriter.ObjectState) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, block := range l.blocks {
		blockObj := json.Name(strconv.Itoa(block.id)).Object()

		blockObj.Name("MapReferences").Int(block.memory.References())
		block.metadata.BlockJsonData(&blockObj)
		l.printDetailedMapAllocations(block.metadata, &blockObj)

		blockObj.End()
	}
}

func (l *memoryBlockList) printDetailedMapAllocations(md metadata.BlockMetadata, json *jwriter.ObjectState) {
	arrayState := json.Name("Allocations").Array()
	defer arrayState.End()

	_ = md.VisitAllRegions(
		func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			if free {
				return nil
			}

			obj := arrayState.Object()
			defer obj.End()

			obj.Name("Offset").Int(offset)
			if alloc, isAllocation := userData.(*Allocation); isAllocation && alloc != nil {
				alloc.printParameters(&obj)
			} else if userData != nil {
				obj.Name("Size").Int(size)
				obj.Name("CustomData").String(fmt.Sprintf("%T", userData))
			}

			return nil
		})
}

func (l *memoryBlockList) CheckCorruption() error {
	if !l.IsCorruptionDetectionEnabled() {
		return vkerr.New(vkerr.FeatureUnsupported, "corruption detection is not enabled for memory type %d", l.memoryTypeIndex)
	}

	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, block := range l.blocks {
		err := block.CheckCorruption()
		if err != nil {
			return errors.Wrapf(err, "block %d of memory type %d", block.id, l.memoryTypeIndex)
		}
	}

	return nil
}

func (l *memoryBlockList) Validate() error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, block := range l.blocks {
		err := block.Validate()
		if err != nil {
			return errors.Wrapf(err, "block %d of memory type %d", block.id, l.memoryTypeIndex)
		}
	}

	return nil
}

func (l *memoryBlockList) MetadataForBlock(blockIndex int) metadata.BlockMetadata {
	return l.blocks[blockIndex].metadata
}

func (l *memoryBlockList) blockForMetadata(md metadata.BlockMetadata) *deviceMemoryBlock {
	for _, block := range l.blocks {
		if block.metadata == md {
			return block
		}
	}

	return nil
}

func (l *memoryBlockList) Lock() {
	l.mutex.Lock()
}

func (l *memoryBlockList) Unlock() {
	l.mutex.Unlock()
}

func (l *memoryBlockList) CommitDefragAllocationRequest(allocRequest metadata.AllocationRequest, blockIndex int, alignment uint, allocType uint32, userData any, outAlloc *Allocation) error {
	return l.commitAllocationRequest(
		allocRequest,
		l.blocks[blockIndex],
		alignment,
		false,
		userData,
		suballocationType(allocType),
		outAlloc,
	)
}

func (l *memoryBlockList) CreateAlloc() *Allocation {
	return &Allocation{}
}

// MoveDataForUserData reports an allocation as movable only if the running defragmentation was
// handed it
func (l *memoryBlockList) MoveDataForUserData(userData any) (defrag.MoveAllocationData[Allocation], bool) {
	alloc, ok := userData.(*Allocation)
	if !ok || alloc == nil {
		return defrag.MoveAllocationData[Allocation]{}, false
	}

	defragCtx := l.parentAllocator.activeDefrag
	if defragCtx == nil || !defragCtx.isMovable(alloc) {
		return defrag.MoveAllocationData[Allocation]{}, false
	}

	return defrag.MoveAllocationData[Allocation]{
		Alignment: alloc.alignment,
		AllocType: uint32(alloc.suballocationType),
		Move: defrag.DefragmentationMove[Allocation]{
			Size:             alloc.size,
			SrcAllocation:    alloc,
			SrcBlockMetadata: alloc.blockData.block.metadata,
		},
	}, true
}

func (l *memoryBlockList) SwapBlocks(left, right int) {
	l.blocks[left], l.blocks[right] = l.blocks[right], l.blocks[left]
}
