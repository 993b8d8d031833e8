package haltest

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

func (d *Device) createObject(entry string, objectType hal.ObjectType, info any) (hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter(entry); res != core1_0.VKSuccess {
		return hal.NullHandle, res
	}

	handle, _ := d.create(objectType, info)
	return handle, core1_0.VKSuccess
}

func (d *Device) CreateBuffer(info hal.BufferCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	if info.Size <= 0 {
		d.mu.Lock()
		d.violation("CreateBuffer: size %d is not positive", info.Size)
		d.mu.Unlock()
		return hal.NullHandle, vkerr.ResultErrorValidationFailed
	}

	return d.createObject("CreateBuffer", hal.ObjectTypeBuffer, info)
}

func (d *Device) CreateImage(info hal.ImageCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 || info.Extent.Depth <= 0 || info.MipLevels <= 0 || info.ArrayLayers <= 0 {
		d.mu.Lock()
		d.violation("CreateImage: extent %v, %d mips and %d layers must be positive", info.Extent, info.MipLevels, info.ArrayLayers)
		d.mu.Unlock()
		return hal.NullHandle, vkerr.ResultErrorValidationFailed
	}

	return d.createObject("CreateImage", hal.ObjectTypeImage, info)
}

func (d *Device) CreateImageView(info hal.ImageViewCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreateImageView", hal.ObjectTypeImageView, info)
}

func (d *Device) CreateSampler(info hal.SamplerCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreateSampler", hal.ObjectTypeSampler, info)
}

func (d *Device) CreateShaderModule(info hal.ShaderModuleCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreateShaderModule", hal.ObjectTypeShaderModule, info)
}

func (d *Device) CreateDescriptorSetLayout(info hal.DescriptorSetLayoutCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreateDescriptorSetLayout", hal.ObjectTypeDescriptorSetLayout, info)
}

func (d *Device) CreateDescriptorPool(info hal.DescriptorPoolCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreateDescriptorPool", hal.ObjectTypeDescriptorPool, info)
}

func (d *Device) AllocateDescriptorSets(pool hal.Handle, layouts []hal.Handle) ([]hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("AllocateDescriptorSets"); res != core1_0.VKSuccess {
		return nil, res
	}

	poolObj, ok := d.lookup(hal.ObjectTypeDescriptorPool, pool)
	if !ok {
		d.violation("AllocateDescriptorSets: %s is not a live descriptor pool", pool)
		return nil, vkerr.ResultErrorValidationFailed
	}

	info := poolObj.info.(hal.DescriptorPoolCreateInfo)
	if poolObj.sets+len(layouts) > info.MaxSets {
		return nil, core1_0.VKErrorFragmentedPool
	}

	sets := make([]hal.Handle, 0, len(layouts))
	for _, layout := range layouts {
		if _, ok := d.lookup(hal.ObjectTypeDescriptorSetLayout, layout); !ok {
			d.violation("AllocateDescriptorSets: %s is not a live descriptor set layout", layout)
			for _, set := range sets {
				d.objects.Delete(set)
			}
			return nil, vkerr.ResultErrorValidationFailed
		}

		handle, obj := d.create(hal.ObjectTypeDescriptorSet, layout)
		obj.parent = pool
		sets = append(sets, handle)
	}
	poolObj.sets += len(sets)

	return sets, core1_0.VKSuccess
}

func (d *Device) FreeDescriptorSets(pool hal.Handle, sets []hal.Handle) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("FreeDescriptorSets"); res != core1_0.VKSuccess {
		return res
	}

	poolObj, ok := d.lookup(hal.ObjectTypeDescriptorPool, pool)
	if !ok {
		d.violation("FreeDescriptorSets: %s is not a live descriptor pool", pool)
		return vkerr.ResultErrorValidationFailed
	}
	if poolObj.info.(hal.DescriptorPoolCreateInfo).Flags&hal.DescriptorPoolCreateFreeDescriptorSet == 0 {
		d.violation("FreeDescriptorSets: %s was not created with DescriptorPoolCreateFreeDescriptorSet", pool)
		return vkerr.ResultErrorValidationFailed
	}

	for _, set := range sets {
		obj, ok := d.lookup(hal.ObjectTypeDescriptorSet, set)
		if !ok || obj.parent != pool {
			d.violation("FreeDescriptorSets: %s is not a live set of %s", set, pool)
			continue
		}
		d.objects.Delete(set)
		poolObj.sets--
	}

	return core1_0.VKSuccess
}

func (d *Device) UpdateDescriptorSets(writes []hal.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["UpdateDescriptorSets"]++

	for _, write := range writes {
		obj, ok := d.lookup(hal.ObjectTypeDescriptorSet, write.DstSet)
		if !ok {
			d.violation("UpdateDescriptorSets: %s is not a live descriptor set", write.DstSet)
			continue
		}
		obj.writes = append(obj.writes, write)
	}
}

// DescriptorWrites returns every write applied to a descriptor set, in order
func (d *Device) DescriptorWrites(set hal.Handle) []hal.WriteDescriptorSet {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeDescriptorSet, set)
	if !ok {
		return nil
	}

	return append([]hal.WriteDescriptorSet(nil), obj.writes...)
}

func (d *Device) CreatePipelineLayout(info hal.PipelineLayoutCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreatePipelineLayout", hal.ObjectTypePipelineLayout, info)
}

func (d *Device) CreateRenderPass(info hal.RenderPassCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreateRenderPass", hal.ObjectTypeRenderPass, info)
}

func (d *Device) CreateFramebuffer(info hal.FramebufferCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	if info.Flags&hal.FramebufferCreateImageless != 0 {
		d.mu.Lock()
		enabled := d.extensions[hal.ExtImagelessFramebuffer]
		if !enabled {
			d.violation("CreateFramebuffer: imageless framebuffer without %s", hal.ExtImagelessFramebuffer)
		}
		d.mu.Unlock()
		if !enabled {
			return hal.NullHandle, vkerr.ResultErrorValidationFailed
		}
	}

	return d.createObject("CreateFramebuffer", hal.ObjectTypeFramebuffer, info)
}

func (d *Device) CreateCommandPool(info hal.CommandPoolCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreateCommandPool", hal.ObjectTypeCommandPool, info)
}

func (d *Device) AllocateCommandBuffers(info hal.CommandBufferAllocateInfo) ([]hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("AllocateCommandBuffers"); res != core1_0.VKSuccess {
		return nil, res
	}

	if _, ok := d.lookup(hal.ObjectTypeCommandPool, info.CommandPool); !ok {
		d.violation("AllocateCommandBuffers: %s is not a live command pool", info.CommandPool)
		return nil, vkerr.ResultErrorValidationFailed
	}

	buffers := make([]hal.Handle, info.Count)
	for i := range buffers {
		handle, obj := d.create(hal.ObjectTypeCommandBuffer, info)
		obj.parent = info.CommandPool
		obj.commands = &commandBuffer{level: info.Level}
		buffers[i] = handle
	}

	return buffers, core1_0.VKSuccess
}

func (d *Device) FreeCommandBuffers(pool hal.Handle, buffers []hal.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["FreeCommandBuffers"]++

	for _, buffer := range buffers {
		obj, ok := d.lookup(hal.ObjectTypeCommandBuffer, buffer)
		if !ok || obj.parent != pool {
			d.violation("FreeCommandBuffers: %s is not a live command buffer of %s", buffer, pool)
			continue
		}
		d.objects.Delete(buffer)
	}
}

func (d *Device) CreateFence(info hal.FenceCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("CreateFence"); res != core1_0.VKSuccess {
		return hal.NullHandle, res
	}

	handle, obj := d.create(hal.ObjectTypeFence, info)
	obj.signaled = info.Signaled
	return handle, core1_0.VKSuccess
}

func (d *Device) CreateSemaphore(info hal.SemaphoreCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("CreateSemaphore"); res != core1_0.VKSuccess {
		return hal.NullHandle, res
	}

	handle, obj := d.create(hal.ObjectTypeSemaphore, info)
	obj.timeline = info.Timeline
	obj.value = info.InitialValue
	return handle, core1_0.VKSuccess
}

func (d *Device) CreateEvent(callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	return d.createObject("CreateEvent", hal.ObjectTypeEvent, nil)
}

// Destroy destroys any object created through ResourceDriver, PipelineDriver or an extension
// entry point. Destroying a pool destroys the sets or command buffers allocated from it.
func (d *Device) Destroy(obj hal.Object, callbacks *driver.AllocationCallbacks) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["Destroy"]++
	d.calls["Destroy"+obj.Type.String()]++

	if obj.IsNull() {
		return
	}

	if _, ok := d.lookup(obj.Type, obj.Handle); !ok {
		d.violation("Destroy: %s is not live", obj)
		return
	}

	switch obj.Type {
	case hal.ObjectTypeDeviceMemory, hal.ObjectTypeDescriptorSet, hal.ObjectTypeCommandBuffer, hal.ObjectTypeQueue:
		d.violation("Destroy: %s must be released through its own entry point", obj)
		return
	case hal.ObjectTypeDescriptorPool, hal.ObjectTypeCommandPool:
		var children []hal.Handle
		d.objects.Iter(func(handle hal.Handle, child *object) bool {
			if child.parent == obj.Handle {
				children = append(children, handle)
			}
			return false
		})
		for _, child := range children {
			d.objects.Delete(child)
		}
	}

	d.objects.Delete(obj.Handle)
	d.names.Delete(obj)
}
