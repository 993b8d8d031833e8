package haltest

import (
	"unsafe"

	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

func (d *Device) AllocateMemory(info hal.MemoryAllocateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("AllocateMemory"); res != core1_0.VKSuccess {
		return hal.NullHandle, res
	}

	if info.MemoryTypeIndex < 0 || info.MemoryTypeIndex >= len(d.info.Memory.MemoryTypes) {
		d.violation("AllocateMemory: memory type %d does not exist", info.MemoryTypeIndex)
		return hal.NullHandle, vkerr.ResultErrorValidationFailed
	}
	if info.Size <= 0 {
		d.violation("AllocateMemory: size %d is not positive", info.Size)
		return hal.NullHandle, vkerr.ResultErrorValidationFailed
	}
	if info.HasPriority && !d.extensions[hal.ExtMemoryPriority] {
		d.violation("AllocateMemory: priority passed without %s", hal.ExtMemoryPriority)
	}

	heap := d.info.Memory.MemoryTypes[info.MemoryTypeIndex].HeapIndex
	if d.heapUsage[heap]+info.Size > d.info.Memory.MemoryHeaps[heap].Size {
		return hal.NullHandle, core1_0.VKErrorOutOfDeviceMemory
	}
	if limit := d.info.Limits.MaxMemoryAllocationCount; limit > 0 && d.countLocked(hal.ObjectTypeDeviceMemory) >= limit {
		return hal.NullHandle, core1_0.VKErrorTooManyObjects
	}

	mem := &memory{
		info:     info,
		data:     make([]byte, info.Size),
		heap:     heap,
		address:  d.nextAddress,
		priority: info.Priority,
	}
	d.nextAddress += uint64(memutils.AlignUp(info.Size, int(addressPageSize)))
	d.heapUsage[heap] += info.Size

	handle, obj := d.create(hal.ObjectTypeDeviceMemory, info)
	obj.memory = mem

	return handle, core1_0.VKSuccess
}

func (d *Device) countLocked(objectType hal.ObjectType) int {
	count := 0
	d.objects.Iter(func(_ hal.Handle, obj *object) bool {
		if obj.objectType == objectType {
			count++
		}
		return false
	})
	return count
}

func (d *Device) FreeMemory(memory hal.Handle, callbacks *driver.AllocationCallbacks) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["FreeMemory"]++

	obj, ok := d.lookup(hal.ObjectTypeDeviceMemory, memory)
	if !ok {
		d.violation("FreeMemory: %s is not live device memory", memory)
		return
	}

	// Resources still bound to the memory stay alive but can no longer be used, as on a real driver
	d.heapUsage[obj.memory.heap] -= len(obj.memory.data)
	d.objects.Delete(memory)
}

func (d *Device) MapMemory(memory hal.Handle, offset, size int) (unsafe.Pointer, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("MapMemory"); res != core1_0.VKSuccess {
		return nil, res
	}

	obj, ok := d.lookup(hal.ObjectTypeDeviceMemory, memory)
	if !ok {
		d.violation("MapMemory: %s is not live device memory", memory)
		return nil, vkerr.ResultErrorValidationFailed
	}

	mem := obj.memory
	memType := d.info.Memory.MemoryTypes[mem.info.MemoryTypeIndex]
	if memType.PropertyFlags&core1_0.MemoryPropertyHostVisible == 0 {
		d.violation("MapMemory: %s is not host visible", memory)
		return nil, core1_0.VKErrorMemoryMapFailed
	}
	if mem.mapped {
		d.violation("MapMemory: %s is already mapped", memory)
		return nil, core1_0.VKErrorMemoryMapFailed
	}
	if offset < 0 || size <= 0 || offset+size > len(mem.data) {
		d.violation("MapMemory: range [%d, %d) is outside %s", offset, offset+size, memory)
		return nil, core1_0.VKErrorMemoryMapFailed
	}

	mem.mapped = true
	return unsafe.Pointer(&mem.data[offset]), core1_0.VKSuccess
}

func (d *Device) UnmapMemory(memory hal.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["UnmapMemory"]++

	obj, ok := d.lookup(hal.ObjectTypeDeviceMemory, memory)
	if !ok {
		d.violation("UnmapMemory: %s is not live device memory", memory)
		return
	}
	if !obj.memory.mapped {
		d.violation("UnmapMemory: %s is not mapped", memory)
	}

	obj.memory.mapped = false
}

func (d *Device) checkRanges(entry string, ranges []hal.MappedRange) common.VkResult {
	atom := d.info.Limits.NonCoherentAtomSize

	for _, r := range ranges {
		obj, ok := d.lookup(hal.ObjectTypeDeviceMemory, r.Memory)
		if !ok {
			d.violation("%s: %s is not live device memory", entry, r.Memory)
			return vkerr.ResultErrorValidationFailed
		}
		if !obj.memory.mapped {
			d.violation("%s: %s is not mapped", entry, r.Memory)
		}
		if atom > 1 && r.Offset%atom != 0 {
			d.violation("%s: offset %d is not a multiple of nonCoherentAtomSize %d", entry, r.Offset, atom)
		}
		end := r.Offset + r.Size
		if end > len(obj.memory.data) || (atom > 1 && end != len(obj.memory.data) && r.Size%atom != 0) {
			d.violation("%s: range [%d, %d) is misaligned or outside %s", entry, r.Offset, end, r.Memory)
		}
	}

	return core1_0.VKSuccess
}

func (d *Device) FlushMappedMemoryRanges(ranges []hal.MappedRange) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("FlushMappedMemoryRanges"); res != core1_0.VKSuccess {
		return res
	}

	return d.checkRanges("FlushMappedMemoryRanges", ranges)
}

func (d *Device) InvalidateMappedMemoryRanges(ranges []hal.MappedRange) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("InvalidateMappedMemoryRanges"); res != core1_0.VKSuccess {
		return res
	}

	return d.checkRanges("InvalidateMappedMemoryRanges", ranges)
}

func (d *Device) bind(entry string, objectType hal.ObjectType, resource, memory hal.Handle, offset int, requirements hal.MemoryRequirements) common.VkResult {
	if res := d.enter(entry); res != core1_0.VKSuccess {
		return res
	}

	obj, ok := d.lookup(objectType, resource)
	if !ok {
		d.violation("%s: %s is not a live %s", entry, resource, objectType)
		return vkerr.ResultErrorValidationFailed
	}
	if obj.binding != nil {
		d.violation("%s: %s is already bound", entry, resource)
		return vkerr.ResultErrorValidationFailed
	}

	memObj, ok := d.lookup(hal.ObjectTypeDeviceMemory, memory)
	if !ok {
		d.violation("%s: %s is not live device memory", entry, memory)
		return vkerr.ResultErrorValidationFailed
	}
	if requirements.MemoryTypeBits&(1<<memObj.memory.info.MemoryTypeIndex) == 0 {
		d.violation("%s: memory type %d is not allowed for %s", entry, memObj.memory.info.MemoryTypeIndex, resource)
		return vkerr.ResultErrorValidationFailed
	}
	if requirements.Alignment > 0 && offset%requirements.Alignment != 0 {
		d.violation("%s: offset %d is not aligned to %d", entry, offset, requirements.Alignment)
		return vkerr.ResultErrorValidationFailed
	}
	if offset < 0 || offset+requirements.Size > len(memObj.memory.data) {
		d.violation("%s: [%d, %d) does not fit in %s", entry, offset, offset+requirements.Size, memory)
		return vkerr.ResultErrorValidationFailed
	}

	obj.binding = &binding{memory: memory, offset: offset}
	return core1_0.VKSuccess
}

func (d *Device) BindBufferMemory(buffer, memory hal.Handle, offset int) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeBuffer, buffer)
	if !ok {
		d.calls["BindBufferMemory"]++
		d.violation("BindBufferMemory: %s is not a live buffer", buffer)
		return vkerr.ResultErrorValidationFailed
	}

	return d.bind("BindBufferMemory", hal.ObjectTypeBuffer, buffer, memory, offset, d.bufferRequirementsLocked(obj))
}

func (d *Device) BindImageMemory(image, memory hal.Handle, offset int) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeImage, image)
	if !ok {
		d.calls["BindImageMemory"]++
		d.violation("BindImageMemory: %s is not a live image", image)
		return vkerr.ResultErrorValidationFailed
	}

	return d.bind("BindImageMemory", hal.ObjectTypeImage, image, memory, offset, d.imageRequirementsLocked(obj))
}

func (d *Device) allTypeBits() uint32 {
	return uint32(1)<<len(d.info.Memory.MemoryTypes) - 1
}

func (d *Device) bufferRequirementsLocked(obj *object) hal.MemoryRequirements {
	info := obj.info.(hal.BufferCreateInfo)
	if d.bufferRequirements != nil {
		return d.bufferRequirements(info)
	}

	var requirements hal.MemoryRequirements
	requirements.Size = memutils.AlignUp(info.Size, DefaultBufferAlignment)
	requirements.Alignment = DefaultBufferAlignment
	requirements.MemoryTypeBits = d.allTypeBits()
	return requirements
}

// ImageSize is the number of bytes the fake reserves for an image: every mip of every layer,
// block-rounded and tightly packed
func ImageSize(info hal.ImageCreateInfo) int {
	block, ok := info.Format.Block()
	if !ok {
		block = hal.TexelBlock{Width: 1, Height: 1, Depth: 1, Bytes: 4}
	}

	samples := int(info.Samples)
	if samples < 1 {
		samples = 1
	}
	layers := memutils.Max(info.ArrayLayers, 1)
	levels := memutils.Max(info.MipLevels, 1)

	size := 0
	for level := 0; level < levels; level++ {
		width := memutils.Max(info.Extent.Width>>level, 1)
		height := memutils.Max(info.Extent.Height>>level, 1)
		depth := memutils.Max(info.Extent.Depth>>level, 1)

		blocks := memutils.DivideRoundingUp(width, block.Width) *
			memutils.DivideRoundingUp(height, block.Height) *
			memutils.DivideRoundingUp(depth, block.Depth)
		size += blocks * block.Bytes * layers * samples
	}

	return size
}

func (d *Device) imageRequirementsLocked(obj *object) hal.MemoryRequirements {
	info := obj.info.(hal.ImageCreateInfo)
	if d.imageRequirements != nil {
		return d.imageRequirements(info)
	}

	alignment := DefaultImageAlignment
	if info.Tiling == hal.ImageTilingLinear {
		alignment = DefaultBufferAlignment
	}

	var requirements hal.MemoryRequirements
	requirements.Size = memutils.AlignUp(ImageSize(info), alignment)
	requirements.Alignment = alignment
	requirements.MemoryTypeBits = d.allTypeBits()
	return requirements
}

func (d *Device) BufferMemoryRequirements(buffer hal.Handle) hal.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["BufferMemoryRequirements"]++

	obj, ok := d.lookup(hal.ObjectTypeBuffer, buffer)
	if !ok {
		d.violation("BufferMemoryRequirements: %s is not a live buffer", buffer)
		return hal.MemoryRequirements{}
	}

	return d.bufferRequirementsLocked(obj)
}

func (d *Device) ImageMemoryRequirements(image hal.Handle) hal.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["ImageMemoryRequirements"]++

	obj, ok := d.lookup(hal.ObjectTypeImage, image)
	if !ok {
		d.violation("ImageMemoryRequirements: %s is not a live image", image)
		return hal.MemoryRequirements{}
	}

	return d.imageRequirementsLocked(obj)
}

// MemoryContents returns a copy of the bytes of a device memory object
func (d *Device) MemoryContents(memory hal.Handle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeDeviceMemory, memory)
	if !ok {
		return nil
	}

	return append([]byte(nil), obj.memory.data...)
}

// BufferContents returns a copy of size bytes of the memory a buffer is bound to, starting at
// the buffer's offset
func (d *Device) BufferContents(buffer hal.Handle, size int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, ok := d.bufferBytes(buffer)
	if !ok {
		return nil
	}
	if size > len(data) {
		size = len(data)
	}

	return append([]byte(nil), data[:size]...)
}

// bufferBytes returns the memory a buffer is bound to from the buffer's offset on. The lock must be held.
func (d *Device) bufferBytes(buffer hal.Handle) ([]byte, bool) {
	obj, ok := d.lookup(hal.ObjectTypeBuffer, buffer)
	if !ok || obj.binding == nil {
		return nil, false
	}

	memObj, ok := d.lookup(hal.ObjectTypeDeviceMemory, obj.binding.memory)
	if !ok {
		return nil, false
	}

	info := obj.info.(hal.BufferCreateInfo)
	end := memutils.Min(obj.binding.offset+info.Size, len(memObj.memory.data))
	return memObj.memory.data[obj.binding.offset:end], true
}

// Binding returns the memory and offset a buffer or image is bound to
func (d *Device) Binding(resource hal.Handle) (hal.Handle, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.objects.Get(resource)
	if !ok || obj.binding == nil {
		return hal.NullHandle, 0, false
	}

	return obj.binding.memory, obj.binding.offset, true
}

// HeapUsage returns the bytes allocated from a heap
func (d *Device) HeapUsage(heap int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.heapUsage[heap]
}

// MemoryPriority returns the priority a device memory object was allocated with or last set to
func (d *Device) MemoryPriority(memory hal.Handle) float32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeDeviceMemory, memory)
	if !ok {
		return 0
	}

	return obj.memory.priority
}

// IsMapped returns true if a device memory object is currently mapped
func (d *Device) IsMapped(memory hal.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeDeviceMemory, memory)
	return ok && obj.memory.mapped
}
