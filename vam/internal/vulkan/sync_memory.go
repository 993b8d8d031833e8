package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vam/internal/utils"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/driver"
)

// SynchronizedMemory is one driver memory object. The driver permits a single mapping per memory
// object, so every suballocation shares the mapping and it is reference counted here; binding and
// mapping are serialized on the same lock. The driver mapping exists exactly while the reference
// count is above zero.
type SynchronizedMemory struct {
	mapReferences int
	mapData       unsafe.Pointer

	lock   utils.Lock
	memory hal.Handle
	size   int
	driver hal.MemoryDriver

	allocationCallbacks *driver.AllocationCallbacks
}

func allocateSynchronizedMemory(memoryDriver hal.MemoryDriver, useMutex bool, callbacks *driver.AllocationCallbacks, allocateInfo hal.MemoryAllocateInfo) (*SynchronizedMemory, error) {
	memory, res := memoryDriver.AllocateMemory(allocateInfo, callbacks)
	err := vkerr.FromResultf(res, "failed to allocate %d bytes from memory type %d", allocateInfo.Size, allocateInfo.MemoryTypeIndex)
	if err != nil {
		return nil, err
	}

	return NewSynchronizedMemory(memoryDriver, memory, allocateInfo.Size, useMutex, callbacks), nil
}

// NewSynchronizedMemory wraps a memory object that has already been allocated
func NewSynchronizedMemory(memoryDriver hal.MemoryDriver, memory hal.Handle, size int, useMutex bool, callbacks *driver.AllocationCallbacks) *SynchronizedMemory {
	m := &SynchronizedMemory{
		memory:              memory,
		size:                size,
		driver:              memoryDriver,
		allocationCallbacks: callbacks,
	}
	m.lock.Synchronize(useMutex)
	return m
}

func (m *SynchronizedMemory) Handle() hal.Handle {
	return m.memory
}

func (m *SynchronizedMemory) Size() int {
	return m.size
}

func (m *SynchronizedMemory) BindBuffer(offset int, buffer hal.Handle) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	res := m.driver.BindBufferMemory(buffer, m.memory, offset)
	return vkerr.FromResultf(res, "failed to bind buffer %s to memory %s at offset %d", buffer, m.memory, offset)
}

func (m *SynchronizedMemory) BindImage(offset int, image hal.Handle) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	res := m.driver.BindImageMemory(image, m.memory, offset)
	return vkerr.FromResultf(res, "failed to bind image %s to memory %s at offset %d", image, m.memory, offset)
}

func (m *SynchronizedMemory) References() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.mapReferences
}

func (m *SynchronizedMemory) MappedData() unsafe.Pointer {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.mapData
}

// Map adds references to the memory's mapping, creating the driver mapping of the whole object
// if none exists. It returns the base of the mapping.
func (m *SynchronizedMemory) Map(references int) (unsafe.Pointer, error) {
	if references == 0 {
		return nil, nil
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.mapReferences > 0 {
		if m.mapData == nil {
			return nil, errors.New("the block is showing existing memory mapping references, but no mapped memory")
		}

		m.mapReferences += references
		return m.mapData, nil
	}

	mappedData, res := m.driver.MapMemory(m.memory, 0, m.size)
	err := vkerr.FromResultf(res, "failed to map memory %s", m.memory)
	if err != nil {
		return nil, vkerr.Wrap(vkerr.MemoryMapFailed, err, "mapping failed")
	}
	if mappedData == nil {
		return nil, vkerr.New(vkerr.MemoryMapFailed, "the driver returned a nil mapping for memory %s", m.memory)
	}

	m.mapData = mappedData
	m.mapReferences = references
	return mappedData, nil
}

func (m *SynchronizedMemory) Unmap(references int) error {
	if references == 0 {
		return nil
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.mapReferences < references {
		return vkerr.New(vkerr.ValidationError, "unmapping %d references from memory %s, which only has %d", references, m.memory, m.mapReferences)
	}

	m.mapReferences -= references
	if m.mapReferences == 0 && m.mapData != nil {
		m.driver.UnmapMemory(m.memory)
		m.mapData = nil
	}

	return nil
}

func (m *SynchronizedMemory) FreeMemory() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.mapData != nil {
		m.driver.UnmapMemory(m.memory)
		m.mapData = nil
		m.mapReferences = 0
	}

	m.driver.FreeMemory(m.memory, m.allocationCallbacks)
}
