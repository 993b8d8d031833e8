package metadata

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/armory/memutils"
	"golang.org/x/exp/slices"
)

var regionAllocator = sync.Pool{
	New: func() any {
		return &freeListRegion{}
	},
}

// freeListRegion is one contiguous range of the block, either free or taken by one allocation.
// Regions form a doubly-linked list in offset order that always covers the whole block.
type freeListRegion struct {
	offset int
	// size is the full footprint of the region, including the debug margin of an allocation
	size int
	// allocSize is the size the allocation was requested with
	allocSize int
	free      bool
	allocType uint32
	userData  any
	handle    BlockAllocationHandle

	prev *freeListRegion
	next *freeListRegion
}

func (r *freeListRegion) end() int {
	return r.offset + r.size
}

func regionLess(left, right *freeListRegion) bool {
	if left.size != right.size {
		return left.size < right.size
	}
	return left.offset < right.offset
}

// FreeList is a BlockMetadata that keeps an offset-ordered list of regions plus the free regions
// sorted by size. Neighbouring free regions are always merged on Free.
type FreeList struct {
	BlockMetadataBase

	allocCount  int
	sumFreeSize int

	nextHandle BlockAllocationHandle
	regions    *swiss.Map[BlockAllocationHandle, *freeListRegion]
	head       *freeListRegion
	// freeBySize holds every free region, ordered by (size, offset)
	freeBySize []*freeListRegion
}

var _ BlockMetadata = &FreeList{}

func NewFreeList(bufferImageGranularity int, granularityHandler GranularityCheck) *FreeList {
	return &FreeList{
		BlockMetadataBase: NewBlockMetadata(bufferImageGranularity, granularityHandler),
	}
}

func (m *FreeList) newRegion(offset, size int) *freeListRegion {
	r := regionAllocator.Get().(*freeListRegion)
	*r = freeListRegion{
		offset: offset,
		size:   size,
		free:   true,
	}
	m.nextHandle++
	r.handle = m.nextHandle
	m.regions.Put(r.handle, r)
	return r
}

func (m *FreeList) releaseRegion(r *freeListRegion) {
	m.regions.Delete(r.handle)
	*r = freeListRegion{}
	regionAllocator.Put(r)
}

func (m *FreeList) getRegion(handle BlockAllocationHandle) (*freeListRegion, error) {
	r, ok := m.regions.Get(handle)
	if !ok {
		return nil, errors.New("received a handle that was incompatible with this metadata")
	}
	return r, nil
}

func (m *FreeList) getAllocation(handle BlockAllocationHandle) (*freeListRegion, error) {
	r, err := m.getRegion(handle)
	if err != nil {
		return nil, err
	}
	if r.free {
		return nil, errors.Errorf("region at offset %d is free", r.offset)
	}
	return r, nil
}

func (m *FreeList) freeIndex(r *freeListRegion) int {
	return sort.Search(len(m.freeBySize), func(i int) bool {
		return !regionLess(m.freeBySize[i], r)
	})
}

func (m *FreeList) insertFree(r *freeListRegion) {
	if !r.free {
		panic(fmt.Sprintf("region at offset %d is not free", r.offset))
	}
	m.freeBySize = slices.Insert(m.freeBySize, m.freeIndex(r), r)
}

// removeFree must be called before a free region's size or offset changes
func (m *FreeList) removeFree(r *freeListRegion) {
	index := m.freeIndex(r)
	if index >= len(m.freeBySize) || m.freeBySize[index] != r {
		panic(fmt.Sprintf("region at offset %d was not in the free list at the expected location", r.offset))
	}
	m.freeBySize = slices.Delete(m.freeBySize, index, index+1)
}

func (m *FreeList) Init(size int) {
	m.BlockMetadataBase.Init(size)
	m.regions = swiss.NewMap[BlockAllocationHandle, *freeListRegion](42)
	m.allocCount = 0
	m.sumFreeSize = size
	m.head = m.newRegion(0, size)
	m.freeBySize = []*freeListRegion{m.head}
}

func (m *FreeList) SupportsRandomAccess() bool { return true }

func (m *FreeList) AllocationCount() int { return m.allocCount }

func (m *FreeList) FreeRegionsCount() int { return len(m.freeBySize) }

func (m *FreeList) SumFreeSize() int { return m.sumFreeSize }

func (m *FreeList) IsEmpty() bool { return m.allocCount == 0 }

func (m *FreeList) MayHaveFreeBlock(allocType uint32, size int) bool {
	if len(m.freeBySize) == 0 {
		return false
	}
	return m.freeBySize[len(m.freeBySize)-1].size >= size+memutils.DebugMargin
}

func (m *FreeList) Validate() error {
	if m.head == nil || m.head.offset != 0 {
		return errors.New("the first region of the block must start at offset 0")
	}
	if m.head.prev != nil {
		return errors.New("the first region of the block has a previous region")
	}

	granularityCtx := m.granularityHandler.StartValidation()

	var calculatedSize, calculatedFreeSize, allocCount, freeCount, regionCount int
	nextOffset := 0
	for r := m.head; r != nil; r = r.next {
		regionCount++
		if r.offset != nextOffset {
			return errors.Errorf("region at offset %d does not start where the previous region ended, at %d", r.offset, nextOffset)
		}
		if r.size <= 0 {
			return errors.Errorf("region at offset %d has invalid size %d", r.offset, r.size)
		}
		if r.next != nil && r.next.prev != r {
			return errors.Errorf("region at offset %d has a next region, but the reverse reference is broken", r.offset)
		}
		registered, ok := m.regions.Get(r.handle)
		if !ok || registered != r {
			return errors.Errorf("region at offset %d is not registered under its handle", r.offset)
		}

		if r.free {
			if r.next != nil && r.next.free {
				return errors.Errorf("free regions at offsets %d and %d were not merged", r.offset, r.next.offset)
			}
			index := m.freeIndex(r)
			if index >= len(m.freeBySize) || m.freeBySize[index] != r {
				return errors.Errorf("free region at offset %d is missing from the size-ordered list", r.offset)
			}
			freeCount++
			calculatedFreeSize += r.size
		} else {
			if r.allocSize+memutils.DebugMargin != r.size {
				return errors.Errorf("allocation at offset %d has a footprint of %d, expected %d", r.offset, r.size, r.allocSize+memutils.DebugMargin)
			}
			err := m.granularityHandler.Validate(granularityCtx, r.offset, r.allocSize)
			if err != nil {
				return err
			}
			allocCount++
		}

		calculatedSize += r.size
		nextOffset = r.end()
	}

	for i := 1; i < len(m.freeBySize); i++ {
		if regionLess(m.freeBySize[i], m.freeBySize[i-1]) {
			return errors.Errorf("size-ordered free list is out of order at index %d", i)
		}
	}

	if calculatedSize != m.size {
		return errors.Errorf("the full size of the metadata is %d, but the regions only added up to %d", m.size, calculatedSize)
	}
	if calculatedFreeSize != m.sumFreeSize {
		return errors.Errorf("the free size of the metadata is %d, but the free regions only added up to %d", m.sumFreeSize, calculatedFreeSize)
	}
	if allocCount != m.allocCount {
		return errors.Errorf("the allocation count of the metadata is %d, but the taken regions only added up to %d", m.allocCount, allocCount)
	}
	if freeCount != len(m.freeBySize) {
		return errors.Errorf("the size-ordered free list has %d entries, but there were %d free regions", len(m.freeBySize), freeCount)
	}
	if regionCount != m.regions.Count() {
		return errors.Errorf("%d handles are registered but there are %d regions", m.regions.Count(), regionCount)
	}

	return m.granularityHandler.FinishValidation(granularityCtx)
}

func (m *FreeList) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for r := m.head; r != nil; r = r.next {
		size := r.size
		if !r.free {
			size = r.allocSize
		}

		err := handleBlock(r.handle, r.offset, size, r.userData, r.free)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *FreeList) AllocationListBegin() (BlockAllocationHandle, error) {
	if m.allocCount == 0 {
		return NoAllocation, nil
	}

	for r := m.head; r != nil; r = r.next {
		if !r.free {
			return r.handle, nil
		}
	}

	return NoAllocation, errors.New("the metadata has an allocation but none could be found in the region list")
}

func (m *FreeList) FindNextAllocation(allocHandle BlockAllocationHandle) (BlockAllocationHandle, error) {
	r, err := m.getAllocation(allocHandle)
	if err != nil {
		return NoAllocation, err
	}

	for next := r.next; next != nil; next = next.next {
		if !next.free {
			return next.handle, nil
		}
	}

	return NoAllocation, nil
}

func (m *FreeList) FindNextFreeRegionSize(allocHandle BlockAllocationHandle) (int, error) {
	r, err := m.getAllocation(allocHandle)
	if err != nil {
		return 0, err
	}

	if r.next != nil && r.next.free {
		return r.next.size, nil
	}

	return 0, nil
}

func (m *FreeList) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	r, err := m.getRegion(allocHandle)
	if err != nil {
		return 0, err
	}
	return r.offset, nil
}

func (m *FreeList) AllocationSize(allocHandle BlockAllocationHandle) (int, error) {
	r, err := m.getAllocation(allocHandle)
	if err != nil {
		return 0, err
	}
	return r.allocSize, nil
}

func (m *FreeList) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	r, err := m.getAllocation(allocHandle)
	if err != nil {
		return nil, err
	}
	return r.userData, nil
}

func (m *FreeList) SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error {
	r, err := m.getAllocation(allocHandle)
	if err != nil {
		return err
	}
	r.userData = userData
	return nil
}

func (m *FreeList) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.size

	for r := m.head; r != nil; r = r.next {
		if r.free {
			stats.AddUnusedRange(r.size)
		} else {
			stats.AddAllocation(r.allocSize)
		}
	}
}

func (m *FreeList) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockBytes += m.size
	stats.AllocationBytes += m.size - m.sumFreeSize
}

func (m *FreeList) Clear() {
	for r := m.head; r != nil; {
		next := r.next
		m.releaseRegion(r)
		r = next
	}

	m.granularityHandler.Clear()
	m.allocCount = 0
	m.sumFreeSize = m.size
	m.head = m.newRegion(0, m.size)
	m.freeBySize = append(m.freeBySize[:0], m.head)
}

func (m *FreeList) BlockJsonData(json *jwriter.ObjectState) {
	m.writeJsonHeader(json, m.sumFreeSize, m.allocCount, len(m.freeBySize))

	suballocations := json.Name("Suballocations").Array()
	for r := m.head; r != nil; r = r.next {
		obj := suballocations.Object()
		obj.Name("Offset").Int(r.offset)
		if r.free {
			obj.Name("Type").String("FREE")
			obj.Name("Size").Int(r.size)
		} else {
			obj.Name("Type").Int(int(r.allocType))
			obj.Name("Size").Int(r.allocSize)
			if r.userData != nil {
				obj.Name("UserData").String(fmt.Sprintf("%v", r.userData))
			}
		}
		obj.End()
	}
	suballocations.End()
}

func (m *FreeList) CheckCorruption(blockData unsafe.Pointer) error {
	if !memutils.CorruptionDetectionEnabled {
		return nil
	}

	for r := m.head; r != nil; r = r.next {
		if r.free {
			continue
		}

		if !memutils.ValidateMagicValue(blockData, r.offset+r.allocSize) {
			return errors.Wrapf(memutils.CorruptionError, "margin after the allocation at offset %d", r.offset)
		}
	}

	return nil
}

func (m *FreeList) CreateAllocationRequest(
	allocSize int, allocAlignment uint,
	allocType uint32,
	strategy AllocationStrategy,
	maxOffset int,
) (bool, AllocationRequest, error) {
	var allocRequest AllocationRequest

	if allocSize < 1 {
		return false, allocRequest, errors.Errorf("invalid allocSize: %d", allocSize)
	}

	allocSize, allocAlignment = m.granularityHandler.RoundUpAllocRequest(allocType, allocSize, allocAlignment)
	footprint := allocSize + memutils.DebugMargin
	if footprint > m.sumFreeSize {
		return false, allocRequest, nil
	}

	allocRequest.Type = AllocationRequestFreeList
	allocRequest.AllocType = allocType
	allocRequest.Size = allocSize

	if strategy&AllocationStrategyMinOffset != 0 {
		for r := m.head; r != nil; r = r.next {
			if r.free && m.checkRegion(r, allocSize, allocAlignment, allocType, maxOffset, &allocRequest) {
				return true, allocRequest, nil
			}
		}
		return false, allocRequest, nil
	}

	if strategy&AllocationStrategyMinTime != 0 && len(m.freeBySize) > 0 {
		largest := m.freeBySize[len(m.freeBySize)-1]
		if m.checkRegion(largest, allocSize, allocAlignment, allocType, maxOffset, &allocRequest) {
			return true, allocRequest, nil
		}
	}

	start := sort.Search(len(m.freeBySize), func(i int) bool {
		return m.freeBySize[i].size >= footprint
	})
	for i := start; i < len(m.freeBySize); i++ {
		if m.checkRegion(m.freeBySize[i], allocSize, allocAlignment, allocType, maxOffset, &allocRequest) {
			return true, allocRequest, nil
		}
	}

	return false, allocRequest, nil
}

func (m *FreeList) checkRegion(
	r *freeListRegion,
	allocSize int,
	allocAlignment uint,
	allocType uint32,
	maxOffset int,
	allocRequest *AllocationRequest,
) bool {
	footprint := allocSize + memutils.DebugMargin
	if r.size < footprint {
		return false
	}

	alignedOffset := memutils.AlignUp(r.offset, int(allocAlignment))
	if alignedOffset+footprint > r.end() {
		return false
	}

	alignedOffset, conflict := m.granularityHandler.CheckConflictAndAlignUp(alignedOffset, allocSize, r.offset, r.size, allocType)
	if conflict || alignedOffset+footprint > r.end() || alignedOffset >= maxOffset {
		return false
	}

	allocRequest.BlockAllocationHandle = r.handle
	allocRequest.Item = Suballocation{
		Offset: alignedOffset,
		Size:   allocSize,
		Type:   allocType,
	}
	allocRequest.AlgorithmData = uint64(alignedOffset - r.offset)
	return true
}

func (m *FreeList) Alloc(request AllocationRequest, allocType uint32, userData any) error {
	if request.Type != AllocationRequestFreeList {
		return errors.New("allocation request was received by an incompatible metadata")
	}

	r, err := m.getRegion(request.BlockAllocationHandle)
	if err != nil {
		return err
	}
	if !r.free {
		return errors.Errorf("region at offset %d is already taken", r.offset)
	}

	padding := int(request.AlgorithmData)
	footprint := request.Size + memutils.DebugMargin
	if request.Item.Offset != r.offset+padding || padding+footprint > r.size {
		return errors.New("allocation request no longer matches the region it was created for")
	}

	m.removeFree(r)

	if padding > 0 {
		paddingRegion := m.newRegion(r.offset, padding)
		paddingRegion.prev = r.prev
		paddingRegion.next = r
		if r.prev != nil {
			r.prev.next = paddingRegion
		} else {
			m.head = paddingRegion
		}
		r.prev = paddingRegion
		r.offset += padding
		r.size -= padding
		m.insertFree(paddingRegion)
	}

	if r.size > footprint {
		remainder := m.newRegion(r.offset+footprint, r.size-footprint)
		remainder.prev = r
		remainder.next = r.next
		if r.next != nil {
			r.next.prev = remainder
		}
		r.next = remainder
		r.size = footprint
		m.insertFree(remainder)
	}

	r.free = false
	r.allocSize = request.Size
	r.allocType = allocType
	r.userData = userData

	m.allocCount++
	m.sumFreeSize -= footprint
	m.granularityHandler.AllocPages(allocType, r.offset, r.allocSize)

	return nil
}

func (m *FreeList) Free(allocHandle BlockAllocationHandle) error {
	r, err := m.getRegion(allocHandle)
	if err != nil {
		return err
	}
	if r.free {
		return errors.New("block is already free")
	}

	m.granularityHandler.FreePages(r.offset, r.allocSize)

	m.allocCount--
	m.sumFreeSize += r.size
	r.free = true
	r.allocSize = 0
	r.allocType = 0
	r.userData = nil

	if prev := r.prev; prev != nil && prev.free {
		m.removeFree(prev)
		prev.size += r.size
		prev.next = r.next
		if r.next != nil {
			r.next.prev = prev
		}
		m.releaseRegion(r)
		r = prev
	}

	if next := r.next; next != nil && next.free {
		m.removeFree(next)
		r.size += next.size
		r.next = next.next
		if next.next != nil {
			next.next.prev = r
		}
		m.releaseRegion(next)
	}

	m.insertFree(r)
	return nil
}
