package haltest

import (
	"bytes"

	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// ASBuild is one host-side acceleration structure build or update
type ASBuild struct {
	Deferred hal.Handle
	Infos    []hal.AccelerationStructureBuildGeometryInfo
	Ranges   [][]hal.AccelerationStructureBuildRangeInfo
}

// Acceleration structure sizes reported by GetAccelerationStructureBuildSizes: a fixed header
// plus a per-primitive cost, rounded up to 256 bytes
const (
	asBaseSize             = 256
	asPrimitiveSize        = 64
	asBuildScratchBase     = 128
	asBuildScratchPerPrim  = 32
	asUpdateScratchBase    = 64
	asUpdateScratchPerPrim = 16
)

func (d *Device) registerProcs() {
	procs := map[string]any{
		"vkSetDebugUtilsObjectNameEXT":            d.setDebugUtilsObjectName,
		"vkSetDeviceMemoryPriorityEXT":            d.setDeviceMemoryPriority,
		"vkGetBufferDeviceAddressKHR":             d.getBufferDeviceAddress,
		"vkGetPhysicalDeviceMemoryProperties2KHR": d.getMemoryBudget,
		"vkCmdSetDeviceMaskKHR": func(commandBuffer hal.Handle, deviceMask uint32) {
			d.record(commandBuffer, "vkCmdSetDeviceMaskKHR", deviceMask)
		},

		"vkCreateAccelerationStructureKHR":                 d.createAccelerationStructure,
		"vkGetAccelerationStructureBuildSizesKHR":          d.getAccelerationStructureBuildSizes,
		"vkBuildAccelerationStructuresKHR":                 d.buildAccelerationStructures,
		"vkCopyAccelerationStructureKHR":                   d.copyAccelerationStructure,
		"vkGetAccelerationStructureDeviceAddressKHR":       d.getAccelerationStructureDeviceAddress,
		"vkGetDeviceAccelerationStructureCompatibilityKHR": d.getDeviceAccelerationStructureCompatibility,
		"vkCmdBuildAccelerationStructuresKHR": func(commandBuffer hal.Handle, infos []hal.AccelerationStructureBuildGeometryInfo, ranges [][]hal.AccelerationStructureBuildRangeInfo) {
			d.record(commandBuffer, "vkCmdBuildAccelerationStructuresKHR", infos, ranges)
		},
		"vkCmdCopyAccelerationStructureKHR": func(commandBuffer hal.Handle, info hal.CopyAccelerationStructureInfo) {
			d.record(commandBuffer, "vkCmdCopyAccelerationStructureKHR", info)
		},

		"vkCreateRayTracingPipelinesKHR": d.createRayTracingPipelines,

		"vkCreateDeferredOperationKHR": func(device hal.Handle, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
			return d.createObject("vkCreateDeferredOperationKHR", hal.ObjectTypeDeferredOperation, nil)
		},
		"vkDeferredOperationJoinKHR":      d.deferredOperationResult("vkDeferredOperationJoinKHR"),
		"vkGetDeferredOperationResultKHR": d.deferredOperationResult("vkGetDeferredOperationResultKHR"),

		"vkCmdBeginConditionalRenderingEXT": func(commandBuffer hal.Handle, buffer hal.Handle, offset int, inverted bool) {
			d.record(commandBuffer, "vkCmdBeginConditionalRenderingEXT", buffer, offset, inverted)
		},
		"vkCmdEndConditionalRenderingEXT": func(commandBuffer hal.Handle) {
			d.record(commandBuffer, "vkCmdEndConditionalRenderingEXT")
		},

		"vkCmdBindTransformFeedbackBuffersEXT": func(commandBuffer hal.Handle, firstBinding int, buffers []hal.Handle, offsets, sizes []int) {
			d.record(commandBuffer, "vkCmdBindTransformFeedbackBuffersEXT", firstBinding, buffers, offsets, sizes)
		},
		"vkCmdBeginTransformFeedbackEXT": func(commandBuffer hal.Handle, firstCounterBuffer int, counterBuffers []hal.Handle, offsets []int) {
			d.record(commandBuffer, "vkCmdBeginTransformFeedbackEXT", firstCounterBuffer, counterBuffers, offsets)
		},
		"vkCmdEndTransformFeedbackEXT": func(commandBuffer hal.Handle, firstCounterBuffer int, counterBuffers []hal.Handle, offsets []int) {
			d.record(commandBuffer, "vkCmdEndTransformFeedbackEXT", firstCounterBuffer, counterBuffers, offsets)
		},

		"vkCmdDrawMeshTasksEXT": func(commandBuffer hal.Handle, x, y, z int) {
			d.record(commandBuffer, "vkCmdDrawMeshTasksEXT", x, y, z)
		},
		"vkCmdSetFragmentShadingRateKHR": func(commandBuffer hal.Handle, fragmentSize hal.Extent2D, combinerOps [2]uint32) {
			d.record(commandBuffer, "vkCmdSetFragmentShadingRateKHR", fragmentSize, combinerOps)
		},
		"vkCmdSetLineStippleEXT": func(commandBuffer hal.Handle, factor int, pattern uint16) {
			d.record(commandBuffer, "vkCmdSetLineStippleEXT", factor, pattern)
		},
	}

	for name, entry := range procs {
		d.procs[name] = entry
	}
}

func (d *Device) setDebugUtilsObjectName(device hal.Handle, object hal.Object, name string) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("vkSetDebugUtilsObjectNameEXT"); res != core1_0.VKSuccess {
		return res
	}
	if object.Type != hal.ObjectTypeDevice && !d.objects.Has(object.Handle) {
		d.violation("vkSetDebugUtilsObjectNameEXT: %s is not live", object)
		return vkerr.ResultErrorValidationFailed
	}

	d.names.Put(object, name)
	return core1_0.VKSuccess
}

func (d *Device) setDeviceMemoryPriority(device hal.Handle, memory hal.Handle, priority float32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["vkSetDeviceMemoryPriorityEXT"]++

	obj, ok := d.lookup(hal.ObjectTypeDeviceMemory, memory)
	if !ok {
		d.violation("vkSetDeviceMemoryPriorityEXT: %s is not live device memory", memory)
		return
	}

	obj.memory.priority = priority
}

func (d *Device) getBufferDeviceAddress(device hal.Handle, buffer hal.Handle) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["vkGetBufferDeviceAddressKHR"]++

	obj, ok := d.lookup(hal.ObjectTypeBuffer, buffer)
	if !ok || obj.binding == nil {
		d.violation("vkGetBufferDeviceAddressKHR: %s is not a live bound buffer", buffer)
		return 0
	}
	if obj.info.(hal.BufferCreateInfo).Usage&hal.BufferUsageShaderDeviceAddress == 0 {
		d.violation("vkGetBufferDeviceAddressKHR: %s was not created with BufferUsageShaderDeviceAddress", buffer)
	}

	memObj, ok := d.lookup(hal.ObjectTypeDeviceMemory, obj.binding.memory)
	if !ok {
		d.violation("vkGetBufferDeviceAddressKHR: the memory of %s was freed", buffer)
		return 0
	}

	return memObj.memory.address + uint64(obj.binding.offset)
}

// getMemoryBudget reports the bytes allocated from each heap as its usage and the whole heap as
// its budget
func (d *Device) getMemoryBudget(device hal.Handle) []hal.HeapBudget {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["vkGetPhysicalDeviceMemoryProperties2KHR"]++

	budgets := make([]hal.HeapBudget, len(d.info.Memory.MemoryHeaps))
	for i, heap := range d.info.Memory.MemoryHeaps {
		budgets[i] = hal.HeapBudget{Usage: d.heapUsage[i], Budget: heap.Size}
	}
	return budgets
}

func (d *Device) createAccelerationStructure(device hal.Handle, info hal.AccelerationStructureCreateInfo, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("vkCreateAccelerationStructureKHR"); res != core1_0.VKSuccess {
		return hal.NullHandle, res
	}

	buffer, ok := d.lookup(hal.ObjectTypeBuffer, info.Buffer)
	if !ok || buffer.binding == nil {
		d.violation("vkCreateAccelerationStructureKHR: %s is not a live bound buffer", info.Buffer)
		return hal.NullHandle, vkerr.ResultErrorValidationFailed
	}
	if buffer.info.(hal.BufferCreateInfo).Usage&hal.BufferUsageAccelerationStructureStorage == 0 {
		d.violation("vkCreateAccelerationStructureKHR: %s was not created with BufferUsageAccelerationStructureStorage", info.Buffer)
	}
	if info.Offset%256 != 0 || info.Offset+info.Size > buffer.info.(hal.BufferCreateInfo).Size {
		d.violation("vkCreateAccelerationStructureKHR: [%d, %d) does not fit %s at a 256-byte offset", info.Offset, info.Offset+info.Size, info.Buffer)
		return hal.NullHandle, vkerr.ResultErrorValidationFailed
	}

	handle, _ := d.create(hal.ObjectTypeAccelerationStructure, info)
	return handle, core1_0.VKSuccess
}

func (d *Device) getAccelerationStructureBuildSizes(device hal.Handle, buildType hal.AccelerationStructureBuildType, info hal.AccelerationStructureBuildGeometryInfo, maxPrimitiveCounts []int) hal.AccelerationStructureBuildSizes {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["vkGetAccelerationStructureBuildSizesKHR"]++

	if len(maxPrimitiveCounts) != len(info.Geometries) {
		d.violation("vkGetAccelerationStructureBuildSizesKHR: %d geometries but %d primitive counts", len(info.Geometries), len(maxPrimitiveCounts))
	}

	primitives := 0
	for _, count := range maxPrimitiveCounts {
		primitives += count
	}

	return hal.AccelerationStructureBuildSizes{
		AccelerationStructureSize: memutils.AlignUp(asBaseSize+primitives*asPrimitiveSize, 256),
		BuildScratchSize:          memutils.AlignUp(asBuildScratchBase+primitives*asBuildScratchPerPrim, 256),
		UpdateScratchSize:         memutils.AlignUp(asUpdateScratchBase+primitives*asUpdateScratchPerPrim, 256),
	}
}

func (d *Device) checkBuild(entry string, info hal.AccelerationStructureBuildGeometryInfo) bool {
	if _, ok := d.lookup(hal.ObjectTypeAccelerationStructure, info.Dst); !ok {
		d.violation("%s: destination %s is not a live acceleration structure", entry, info.Dst)
		return false
	}

	switch info.Mode {
	case hal.BuildModeBuild:
		if !info.Src.IsNull() {
			d.violation("%s: a build must not have a source", entry)
			return false
		}
	case hal.BuildModeUpdate:
		if _, ok := d.lookup(hal.ObjectTypeAccelerationStructure, info.Src); !ok {
			d.violation("%s: source %s of an update is not a live acceleration structure", entry, info.Src)
			return false
		}
		if info.Flags&hal.BuildAllowUpdate == 0 {
			d.violation("%s: update of %s, which was not built with BuildAllowUpdate", entry, info.Dst)
		}
	}

	if info.Scratch.IsNull() {
		d.violation("%s: no scratch memory", entry)
		return false
	}

	return true
}

func (d *Device) buildAccelerationStructures(device hal.Handle, deferred hal.Handle, infos []hal.AccelerationStructureBuildGeometryInfo, ranges [][]hal.AccelerationStructureBuildRangeInfo) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("vkBuildAccelerationStructuresKHR"); res != core1_0.VKSuccess {
		return res
	}
	if len(ranges) != len(infos) {
		d.violation("vkBuildAccelerationStructuresKHR: %d infos but %d range lists", len(infos), len(ranges))
		return vkerr.ResultErrorValidationFailed
	}

	for _, info := range infos {
		if !d.checkBuild("vkBuildAccelerationStructuresKHR", info) {
			return vkerr.ResultErrorValidationFailed
		}
	}

	d.hostBuilds = append(d.hostBuilds, ASBuild{
		Deferred: deferred,
		Infos:    append([]hal.AccelerationStructureBuildGeometryInfo(nil), infos...),
		Ranges:   append([][]hal.AccelerationStructureBuildRangeInfo(nil), ranges...),
	})
	return core1_0.VKSuccess
}

// HostBuilds returns every host-side acceleration structure build, in order
func (d *Device) HostBuilds() []ASBuild {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]ASBuild(nil), d.hostBuilds...)
}

func (d *Device) copyAccelerationStructure(device hal.Handle, deferred hal.Handle, info hal.CopyAccelerationStructureInfo) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("vkCopyAccelerationStructureKHR"); res != core1_0.VKSuccess {
		return res
	}

	switch info.Mode {
	case hal.CopyModeClone, hal.CopyModeCompact:
		_, srcOK := d.lookup(hal.ObjectTypeAccelerationStructure, info.Src)
		_, dstOK := d.lookup(hal.ObjectTypeAccelerationStructure, info.Dst)
		if !srcOK || !dstOK {
			d.violation("vkCopyAccelerationStructureKHR: %s copy needs live source and destination", info.Mode)
			return vkerr.ResultErrorValidationFailed
		}
	case hal.CopyModeSerialize:
		if _, ok := d.lookup(hal.ObjectTypeAccelerationStructure, info.Src); !ok || info.DstAddress.IsNull() {
			d.violation("vkCopyAccelerationStructureKHR: serialize needs a live source and a destination address")
			return vkerr.ResultErrorValidationFailed
		}
	case hal.CopyModeDeserialize:
		if _, ok := d.lookup(hal.ObjectTypeAccelerationStructure, info.Dst); !ok || info.SrcAddress.IsNull() {
			d.violation("vkCopyAccelerationStructureKHR: deserialize needs a source address and a live destination")
			return vkerr.ResultErrorValidationFailed
		}
	}

	d.hostCopies = append(d.hostCopies, info)
	return core1_0.VKSuccess
}

// HostCopies returns every host-side acceleration structure copy, in order
func (d *Device) HostCopies() []hal.CopyAccelerationStructureInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]hal.CopyAccelerationStructureInfo(nil), d.hostCopies...)
}

func (d *Device) getAccelerationStructureDeviceAddress(device hal.Handle, accelerationStructure hal.Handle) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["vkGetAccelerationStructureDeviceAddressKHR"]++

	obj, ok := d.lookup(hal.ObjectTypeAccelerationStructure, accelerationStructure)
	if !ok {
		d.violation("vkGetAccelerationStructureDeviceAddressKHR: %s is not live", accelerationStructure)
		return 0
	}

	info := obj.info.(hal.AccelerationStructureCreateInfo)
	buffer, ok := d.lookup(hal.ObjectTypeBuffer, info.Buffer)
	if !ok || buffer.binding == nil {
		return 0
	}
	memObj, ok := d.lookup(hal.ObjectTypeDeviceMemory, buffer.binding.memory)
	if !ok {
		return 0
	}

	return memObj.memory.address + uint64(buffer.binding.offset+info.Offset)
}

// getDeviceAccelerationStructureCompatibility accepts serialized data whose compatibility UUID,
// the second 16 bytes, is this device's driver UUID
func (d *Device) getDeviceAccelerationStructureCompatibility(device hal.Handle, versionData []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["vkGetDeviceAccelerationStructureCompatibilityKHR"]++

	if len(versionData) < 32 {
		d.violation("vkGetDeviceAccelerationStructureCompatibilityKHR: version data is %d bytes, want 32", len(versionData))
		return false
	}

	return bytes.Equal(versionData[16:32], d.info.DriverUUID[:])
}

func (d *Device) deferredOperationResult(entry string) func(device hal.Handle, operation hal.Handle) common.VkResult {
	return func(device hal.Handle, operation hal.Handle) common.VkResult {
		d.mu.Lock()
		defer d.mu.Unlock()

		if res := d.enter(entry); res != core1_0.VKSuccess {
			return res
		}
		if _, ok := d.lookup(hal.ObjectTypeDeferredOperation, operation); !ok {
			d.violation("%s: %s is not a live deferred operation", entry, operation)
			return vkerr.ResultErrorValidationFailed
		}

		return core1_0.VKSuccess
	}
}
