package vulkan

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// budgetFraction is the share of a heap's size reported as its budget when the driver cannot
// report one itself
const budgetFraction = 0.8

type Budget struct {
	Statistics memutils.Statistics
	Usage      int
	Budget     int
}

type MemoryCallbacks interface {
	Allocate(memoryType int, memory hal.Handle, size int)
	Free(memoryType int, memory hal.Handle, size int)
}

// DeviceMemoryProperties tracks every driver allocation made by one allocator, per heap, and
// answers questions about the device's memory types
type DeviceMemoryProperties struct {
	// Number of real allocations that have been made from device memory
	blockCount [common.MaxMemoryHeaps]int32
	// Number of allocations handed out to consumers, dedicated allocations plus suballocations
	allocationCount [common.MaxMemoryHeaps]int32
	// Size of real allocations that have been made from device memory
	blockBytes [common.MaxMemoryHeaps]int64
	// Size of allocations handed out to consumers, dedicated allocations plus suballocations
	allocationBytes [common.MaxMemoryHeaps]int64

	useMutex            bool
	allocationCallbacks *driver.AllocationCallbacks
	memoryCallbacks     MemoryCallbacks
	memoryCount         uint32
	heapLimits          []int

	device                    hal.Device
	extensions                *ExtensionData
	physicalDevice            hal.PhysicalDeviceInfo
	externalMemoryHandleTypes []uint32
}

func NewDeviceMemoryProperties(
	useMutex bool,
	allocationCallbacks *driver.AllocationCallbacks,
	memoryCallbacks MemoryCallbacks,
	device hal.Device,
	extensions *ExtensionData,
	heapSizeLimits []int,
	externalMemoryHandleTypes []uint32,
) (*DeviceMemoryProperties, error) {
	properties := &DeviceMemoryProperties{
		useMutex:            useMutex,
		allocationCallbacks: allocationCallbacks,
		memoryCallbacks:     memoryCallbacks,

		device:         device,
		extensions:     extensions,
		physicalDevice: device.PhysicalDevice(),
	}

	limits := properties.physicalDevice.Limits
	if limits.BufferImageGranularity > 0 {
		err := memutils.CheckPow2(limits.BufferImageGranularity, "device bufferImageGranularity")
		if err != nil {
			return nil, vkerr.Wrap(vkerr.InitializationFailed, err, "invalid device limits")
		}
	}
	if limits.NonCoherentAtomSize > 0 {
		err := memutils.CheckPow2(limits.NonCoherentAtomSize, "device nonCoherentAtomSize")
		if err != nil {
			return nil, vkerr.Wrap(vkerr.InitializationFailed, err, "invalid device limits")
		}
	}

	heapCount := properties.MemoryHeapCount()
	typeCount := properties.MemoryTypeCount()
	if heapCount > common.MaxMemoryHeaps {
		return nil, vkerr.New(vkerr.InitializationFailed, "the device reports %d memory heaps, more than the maximum of %d", heapCount, common.MaxMemoryHeaps)
	}

	if len(heapSizeLimits) > 0 && len(heapSizeLimits) != heapCount {
		return nil, vkerr.New(vkerr.ValidationError, "vam.CreateOptions.HeapSizeLimits has %d entries, but the device has %d memory heaps", len(heapSizeLimits), heapCount)
	}
	if len(externalMemoryHandleTypes) > 0 && len(externalMemoryHandleTypes) != typeCount {
		return nil, vkerr.New(vkerr.ValidationError, "vam.CreateOptions.ExternalMemoryHandleTypes has %d entries, but the device has %d memory types", len(externalMemoryHandleTypes), typeCount)
	}

	properties.heapLimits = make([]int, heapCount)
	copy(properties.heapLimits, heapSizeLimits)
	properties.externalMemoryHandleTypes = make([]uint32, typeCount)
	copy(properties.externalMemoryHandleTypes, externalMemoryHandleTypes)

	return properties, nil
}

func (m *DeviceMemoryProperties) Device() hal.Device {
	return m.device
}

func (m *DeviceMemoryProperties) MemoryProperties() core1_0.PhysicalDeviceMemoryProperties {
	return m.physicalDevice.Memory
}

func (m *DeviceMemoryProperties) MemoryTypeCount() int {
	return len(m.physicalDevice.Memory.MemoryTypes)
}

func (m *DeviceMemoryProperties) MemoryHeapCount() int {
	return len(m.physicalDevice.Memory.MemoryHeaps)
}

func (m *DeviceMemoryProperties) MemoryTypeIndexToHeapIndex(memTypeIndex int) int {
	return m.physicalDevice.Memory.MemoryTypes[memTypeIndex].HeapIndex
}

// MemoryTypeMinimumAlignment is the alignment every allocation from the memory type must honor.
// Non-coherent memory is flushed in whole atoms, so allocations in it start on an atom.
func (m *DeviceMemoryProperties) MemoryTypeMinimumAlignment(memTypeIndex int) uint {
	if m.IsMemoryTypeHostNonCoherent(memTypeIndex) {
		alignment := uint(m.physicalDevice.Limits.NonCoherentAtomSize)
		if alignment < 1 {
			return 1
		}
		return alignment
	}

	return 1
}

func (m *DeviceMemoryProperties) Limits() hal.PhysicalDeviceLimits {
	return m.physicalDevice.Limits
}

func (m *DeviceMemoryProperties) MemoryTypeProperties(memoryTypeIndex int) core1_0.MemoryType {
	return m.physicalDevice.Memory.MemoryTypes[memoryTypeIndex]
}

func (m *DeviceMemoryProperties) MemoryHeapProperties(heapIndex int) core1_0.MemoryHeap {
	return m.physicalDevice.Memory.MemoryHeaps[heapIndex]
}

func (m *DeviceMemoryProperties) IsMemoryTypeHostVisible(memoryTypeIndex int) bool {
	return m.physicalDevice.Memory.MemoryTypes[memoryTypeIndex].PropertyFlags&core1_0.MemoryPropertyHostVisible != 0
}

func (m *DeviceMemoryProperties) IsMemoryTypeHostNonCoherent(memoryTypeIndex int) bool {
	flags := m.physicalDevice.Memory.MemoryTypes[memoryTypeIndex].PropertyFlags

	return flags&(core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent) == core1_0.MemoryPropertyHostVisible
}

func (m *DeviceMemoryProperties) ExternalMemoryTypes(memoryTypeIndex int) uint32 {
	return m.externalMemoryHandleTypes[memoryTypeIndex]
}

func (m *DeviceMemoryProperties) addBlockAllocation(heapIndex int, allocationSize int) {
	atomic.AddInt64(&m.blockBytes[heapIndex], int64(allocationSize))
	atomic.AddInt32(&m.blockCount[heapIndex], 1)
}

func (m *DeviceMemoryProperties) addBlockAllocationWithLimit(heapIndex, allocationSize, maxAllocatable int) error {
	for {
		currentVal := atomic.LoadInt64(&m.blockBytes[heapIndex])
		targetVal := currentVal + int64(allocationSize)

		if targetVal > int64(maxAllocatable) {
			return vkerr.New(vkerr.OutOfDeviceMemory, "allocating %d bytes would exceed the %d byte limit of heap %d", allocationSize, maxAllocatable, heapIndex)
		}

		if atomic.CompareAndSwapInt64(&m.blockBytes[heapIndex], currentVal, targetVal) {
			break
		}
	}

	atomic.AddInt32(&m.blockCount[heapIndex], 1)
	return nil
}

func (m *DeviceMemoryProperties) removeBlockAllocation(heapIndex, allocationSize int) {
	newVal := atomic.AddInt64(&m.blockBytes[heapIndex], int64(-allocationSize))
	if newVal < 0 {
		panic(fmt.Sprintf("block bytes for heapIndex %d went negative", heapIndex))
	}

	newCountVal := atomic.AddInt32(&m.blockCount[heapIndex], -1)
	if newCountVal < 0 {
		panic(fmt.Sprintf("block count for heapIndex %d went negative", heapIndex))
	}
}

// AllocateVulkanMemory makes a driver allocation, enforcing the device's allocation count limit
// and the configured heap size limit. Nothing is counted if it fails.
func (m *DeviceMemoryProperties) AllocateVulkanMemory(allocateInfo hal.MemoryAllocateInfo) (mem *SynchronizedMemory, err error) {
	newDeviceCount := atomic.AddUint32(&m.memoryCount, 1)
	defer func() {
		if err != nil {
			// Decrement
			atomic.AddUint32(&m.memoryCount, ^uint32(0))
		}
	}()

	maxCount := m.physicalDevice.Limits.MaxMemoryAllocationCount
	if maxCount > 0 && int(newDeviceCount) > maxCount {
		return nil, vkerr.New(vkerr.TooManyObjects, "the device permits at most %d memory allocations", maxCount)
	}

	heapIndex := m.MemoryTypeIndexToHeapIndex(allocateInfo.MemoryTypeIndex)
	heapLimit := m.heapLimits[heapIndex]
	if heapLimit <= 0 {
		m.addBlockAllocation(heapIndex, allocateInfo.Size)
	} else {
		maxSize := heapLimit
		heapSize := m.physicalDevice.Memory.MemoryHeaps[heapIndex].Size
		if heapSize < maxSize {
			maxSize = heapSize
		}
		err = m.addBlockAllocationWithLimit(heapIndex, allocateInfo.Size, maxSize)
		if err != nil {
			return nil, err
		}
	}
	defer func() {
		if err != nil {
			m.removeBlockAllocation(heapIndex, allocateInfo.Size)
		}
	}()

	if allocateInfo.ExportHandleTypes == 0 && m.extensions.ExternalMemory {
		allocateInfo.ExportHandleTypes = m.externalMemoryHandleTypes[allocateInfo.MemoryTypeIndex]
	}
	if !m.extensions.UseMemoryPriority {
		allocateInfo.HasPriority = false
	}

	mem, err = allocateSynchronizedMemory(m.device, m.useMutex, m.allocationCallbacks, allocateInfo)
	if err != nil {
		return nil, err
	}

	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Allocate(allocateInfo.MemoryTypeIndex, mem.Handle(), allocateInfo.Size)
	}

	return mem, nil
}

func (m *DeviceMemoryProperties) FreeVulkanMemory(memoryType int, size int, memory *SynchronizedMemory) {
	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Free(memoryType, memory.Handle(), size)
	}

	memory.FreeMemory()

	heapIndex := m.MemoryTypeIndexToHeapIndex(memoryType)
	m.removeBlockAllocation(heapIndex, size)
	// Decrement
	atomic.AddUint32(&m.memoryCount, ^uint32(0))
}

func (m *DeviceMemoryProperties) AddAllocation(heapIndex int, size int) {
	atomic.AddInt64(&m.allocationBytes[heapIndex], int64(size))
	atomic.AddInt32(&m.allocationCount[heapIndex], 1)
}

func (m *DeviceMemoryProperties) RemoveAllocation(heapIndex int, size int) {
	newSizeVal := atomic.AddInt64(&m.allocationBytes[heapIndex], int64(-size))
	if newSizeVal < 0 {
		panic(fmt.Sprintf("allocation bytes for heapIndex %d went negative", heapIndex))
	}

	newCountVal := atomic.AddInt32(&m.allocationCount[heapIndex], -1)
	if newCountVal < 0 {
		panic(fmt.Sprintf("allocation count for heapIndex %d went negative", heapIndex))
	}
}

// HeapBudgets fills budgets with one entry per heap starting at firstHeap. Usage and budget
// come from the memory-budget extension when it is enabled; otherwise usage is the bytes this
// allocator holds and the budget is a fixed share of the heap. A heap size limit caps the budget.
func (m *DeviceMemoryProperties) HeapBudgets(firstHeap int, budgets []Budget) {
	var driverBudgets []hal.HeapBudget
	if m.extensions.MemoryBudget != nil {
		driverBudgets = m.extensions.MemoryBudget(m.device.Handle())
	}

	for i := 0; i < len(budgets); i++ {
		heapIndex := firstHeap + i

		budgets[i].Statistics.BlockCount = int(atomic.LoadInt32(&m.blockCount[heapIndex]))
		budgets[i].Statistics.AllocationCount = int(atomic.LoadInt32(&m.allocationCount[heapIndex]))
		budgets[i].Statistics.BlockBytes = int(atomic.LoadInt64(&m.blockBytes[heapIndex]))
		budgets[i].Statistics.AllocationBytes = int(atomic.LoadInt64(&m.allocationBytes[heapIndex]))

		heapSize := m.physicalDevice.Memory.MemoryHeaps[heapIndex].Size
		if heapIndex < len(driverBudgets) {
			budgets[i].Usage = driverBudgets[heapIndex].Usage
			budgets[i].Budget = driverBudgets[heapIndex].Budget
		} else {
			budgets[i].Usage = budgets[i].Statistics.BlockBytes
			budgets[i].Budget = int(float64(heapSize) * budgetFraction)
		}

		if limit := m.heapLimits[heapIndex]; limit > 0 && limit < budgets[i].Budget {
			budgets[i].Budget = limit
		}
	}
}

func (m *DeviceMemoryProperties) HeapBudget(heapIndex int, budget *Budget) {
	budgets := [1]Budget{}
	m.HeapBudgets(heapIndex, budgets[:])
	*budget = budgets[0]
}

type CacheOperation uint32

const (
	CacheOperationFlush CacheOperation = iota
	CacheOperationInvalidate
)

var cacheOperationMapping = map[CacheOperation]string{
	CacheOperationFlush:      "CacheOperationFlush",
	CacheOperationInvalidate: "CacheOperationInvalidate",
}

func (o CacheOperation) String() string {
	return cacheOperationMapping[o]
}

func (m *DeviceMemoryProperties) FlushOrInvalidateAllocations(memRanges []hal.MappedRange, operation CacheOperation) error {
	if len(memRanges) == 0 {
		return nil
	}

	switch operation {
	case CacheOperationFlush:
		return vkerr.FromResultf(m.device.FlushMappedMemoryRanges(memRanges), "failed to flush %d mapped ranges", len(memRanges))
	case CacheOperationInvalidate:
		return vkerr.FromResultf(m.device.InvalidateMappedMemoryRanges(memRanges), "failed to invalidate %d mapped ranges", len(memRanges))
	}

	return errors.Errorf("attempted to carry out invalid cache operation %s", operation.String())
}

// CalculateGlobalMemoryTypeBits is the set of memory types the allocator may use. Device
// coherent memory is excluded unless the extension that makes it usable is enabled.
func (m *DeviceMemoryProperties) CalculateGlobalMemoryTypeBits() uint32 {
	var typeBits uint32

	for memoryTypeIndex, memoryType := range m.physicalDevice.Memory.MemoryTypes {
		if !m.extensions.UseAMDDeviceCoherentMemory &&
			memoryType.PropertyFlags&memoryPropertyDeviceCoherentAMD != 0 {
			continue
		}

		typeBits |= 1 << memoryTypeIndex
	}

	return typeBits
}

const memoryPropertyDeviceCoherentAMD core1_0.MemoryPropertyFlags = 0x00000040

func (m *DeviceMemoryProperties) CalculateBufferImageGranularity() int {
	granularity := m.physicalDevice.Limits.BufferImageGranularity

	if granularity < 1 {
		return 1
	}
	return granularity
}

func (m *DeviceMemoryProperties) AllocationCount() uint32 {
	return atomic.LoadUint32(&m.memoryCount)
}

func (m *DeviceMemoryProperties) IsIntegratedGPU() bool {
	return m.physicalDevice.DeviceType == core1_0.PhysicalDeviceTypeIntegratedGPU
}
