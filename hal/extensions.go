package hal

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/extensions/v2/amd_device_coherent_memory"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/ext_memory_budget"
	"github.com/vkngwrapper/extensions/v2/ext_memory_priority"
	"github.com/vkngwrapper/extensions/v2/khr_bind_memory2"
	"github.com/vkngwrapper/extensions/v2/khr_buffer_device_address"
	"github.com/vkngwrapper/extensions/v2/khr_dedicated_allocation"
	"github.com/vkngwrapper/extensions/v2/khr_external_memory"
	"github.com/vkngwrapper/extensions/v2/khr_get_memory_requirements2"
	"github.com/vkngwrapper/extensions/v2/khr_maintenance4"
)

// Device extension names the layers above the driver understand
const (
	ExtDedicatedAllocation         = khr_dedicated_allocation.ExtensionName
	ExtGetMemoryRequirements2      = khr_get_memory_requirements2.ExtensionName
	ExtBindMemory2                 = khr_bind_memory2.ExtensionName
	ExtExternalMemory              = khr_external_memory.ExtensionName
	ExtMemoryPriority              = ext_memory_priority.ExtensionName
	ExtMemoryBudget                = ext_memory_budget.ExtensionName
	ExtBufferDeviceAddress         = khr_buffer_device_address.ExtensionName
	ExtDebugUtils                  = ext_debug_utils.ExtensionName
	ExtAMDDeviceCoherentMemory     = amd_device_coherent_memory.ExtensionName
	ExtMaintenance4                = khr_maintenance4.ExtensionName
	ExtMaintenance1                = "VK_KHR_maintenance1"
	ExtMaintenance2                = "VK_KHR_maintenance2"
	ExtMaintenance3                = "VK_KHR_maintenance3"
	ExtNegativeViewportHeight      = "VK_AMD_negative_viewport_height"
	ExtDeviceGroup                 = "VK_KHR_device_group"
	ExtPageableDeviceLocalMemory   = "VK_EXT_pageable_device_local_memory"
	ExtImagelessFramebuffer        = "VK_KHR_imageless_framebuffer"
	ExtConditionalRendering        = "VK_EXT_conditional_rendering"
	ExtTransformFeedback           = "VK_EXT_transform_feedback"
	ExtAccelerationStructure       = "VK_KHR_acceleration_structure"
	ExtRayTracingPipeline          = "VK_KHR_ray_tracing_pipeline"
	ExtDeferredHostOperations      = "VK_KHR_deferred_host_operations"
	ExtPipelineCreationFeedback    = "VK_EXT_pipeline_creation_feedback"
	ExtFragmentShadingRate         = "VK_KHR_fragment_shading_rate"
	ExtMeshShader                  = "VK_EXT_mesh_shader"
	ExtLineRasterization           = "VK_EXT_line_rasterization"
	ExtSeparateDepthStencilLayouts = "VK_KHR_separate_depth_stencil_layouts"
)

// HeapBudget is the driver's view of one memory heap
type HeapBudget struct {
	Usage  int
	Budget int
}

// ExtensionTable holds the optional entry points of a device. A field is nil when its extension
// is not enabled or the driver does not expose the entry point; callers must check before calling.
// The boolean fields record extensions that only change the shape of core calls.
type ExtensionTable struct {
	DedicatedAllocation         bool
	BindMemory2                 bool
	ExternalMemory              bool
	MemoryPriority              bool
	DeviceCoherentMemory        bool
	Maintenance1                bool
	Maintenance2                bool
	Maintenance3                bool
	Maintenance4                bool
	NegativeViewportHeight      bool
	DeviceGroup                 bool
	ImagelessFramebuffer        bool
	PipelineCreationFeedback    bool
	SeparateDepthStencilLayouts bool
	LineRasterization           bool

	SetDebugUtilsObjectName func(device Handle, object Object, name string) common.VkResult
	SetDeviceMemoryPriority func(device Handle, memory Handle, priority float32)
	GetBufferDeviceAddress  func(device Handle, buffer Handle) uint64
	GetMemoryBudget         func(device Handle) []HeapBudget
	CmdSetDeviceMask        func(commandBuffer Handle, deviceMask uint32)

	CreateAccelerationStructure                 func(device Handle, info AccelerationStructureCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	GetAccelerationStructureBuildSizes          func(device Handle, buildType AccelerationStructureBuildType, info AccelerationStructureBuildGeometryInfo, maxPrimitiveCounts []int) AccelerationStructureBuildSizes
	BuildAccelerationStructures                 func(device Handle, deferred Handle, infos []AccelerationStructureBuildGeometryInfo, ranges [][]AccelerationStructureBuildRangeInfo) common.VkResult
	CmdBuildAccelerationStructures              func(commandBuffer Handle, infos []AccelerationStructureBuildGeometryInfo, ranges [][]AccelerationStructureBuildRangeInfo)
	CopyAccelerationStructure                   func(device Handle, deferred Handle, info CopyAccelerationStructureInfo) common.VkResult
	CmdCopyAccelerationStructure                func(commandBuffer Handle, info CopyAccelerationStructureInfo)
	GetAccelerationStructureDeviceAddress       func(device Handle, accelerationStructure Handle) uint64
	GetDeviceAccelerationStructureCompatibility func(device Handle, versionData []byte) bool

	CreateRayTracingPipelines func(device Handle, deferred Handle, cache Handle, infos []RayTracingPipelineCreateInfo, callbacks *driver.AllocationCallbacks) ([]Handle, common.VkResult)

	CreateDeferredOperation    func(device Handle, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	DeferredOperationJoin      func(device Handle, operation Handle) common.VkResult
	GetDeferredOperationResult func(device Handle, operation Handle) common.VkResult

	CmdBeginConditionalRendering func(commandBuffer Handle, buffer Handle, offset int, inverted bool)
	CmdEndConditionalRendering   func(commandBuffer Handle)

	CmdBindTransformFeedbackBuffers func(commandBuffer Handle, firstBinding int, buffers []Handle, offsets, sizes []int)
	CmdBeginTransformFeedback       func(commandBuffer Handle, firstCounterBuffer int, counterBuffers []Handle, offsets []int)
	CmdEndTransformFeedback         func(commandBuffer Handle, firstCounterBuffer int, counterBuffers []Handle, offsets []int)

	CmdDrawMeshTasks           func(commandBuffer Handle, x, y, z int)
	CmdSetFragmentShadingRate  func(commandBuffer Handle, fragmentSize Extent2D, combinerOps [2]uint32)
	CmdSetLineStipple          func(commandBuffer Handle, factor int, pattern uint16)
}

func resolve[T any](dev Device, extension, name string, dst *T) {
	if !dev.ExtensionEnabled(extension) {
		return
	}

	entry, ok := dev.ProcAddr(name).(T)
	if !ok {
		return
	}

	*dst = entry
}

// ResolveExtensions builds the extension table of a device. It is called once, when the device
// is wrapped; the table never changes afterward.
func ResolveExtensions(dev Device) *ExtensionTable {
	table := &ExtensionTable{}

	table.DedicatedAllocation = dev.ExtensionEnabled(ExtDedicatedAllocation) && dev.ExtensionEnabled(ExtGetMemoryRequirements2)
	table.BindMemory2 = dev.ExtensionEnabled(ExtBindMemory2)
	table.ExternalMemory = dev.ExtensionEnabled(ExtExternalMemory)
	table.MemoryPriority = dev.ExtensionEnabled(ExtMemoryPriority)
	table.DeviceCoherentMemory = dev.ExtensionEnabled(ExtAMDDeviceCoherentMemory)
	table.Maintenance1 = dev.ExtensionEnabled(ExtMaintenance1)
	table.Maintenance2 = dev.ExtensionEnabled(ExtMaintenance2)
	table.Maintenance3 = dev.ExtensionEnabled(ExtMaintenance3)
	table.Maintenance4 = dev.ExtensionEnabled(ExtMaintenance4)
	table.NegativeViewportHeight = dev.ExtensionEnabled(ExtNegativeViewportHeight)
	table.DeviceGroup = dev.ExtensionEnabled(ExtDeviceGroup)
	table.ImagelessFramebuffer = dev.ExtensionEnabled(ExtImagelessFramebuffer)
	table.PipelineCreationFeedback = dev.ExtensionEnabled(ExtPipelineCreationFeedback)
	table.SeparateDepthStencilLayouts = dev.ExtensionEnabled(ExtSeparateDepthStencilLayouts)
	table.LineRasterization = dev.ExtensionEnabled(ExtLineRasterization)

	resolve(dev, ExtDebugUtils, "vkSetDebugUtilsObjectNameEXT", &table.SetDebugUtilsObjectName)
	resolve(dev, ExtPageableDeviceLocalMemory, "vkSetDeviceMemoryPriorityEXT", &table.SetDeviceMemoryPriority)
	resolve(dev, ExtBufferDeviceAddress, "vkGetBufferDeviceAddressKHR", &table.GetBufferDeviceAddress)
	resolve(dev, ExtMemoryBudget, "vkGetPhysicalDeviceMemoryProperties2KHR", &table.GetMemoryBudget)
	resolve(dev, ExtDeviceGroup, "vkCmdSetDeviceMaskKHR", &table.CmdSetDeviceMask)

	resolve(dev, ExtAccelerationStructure, "vkCreateAccelerationStructureKHR", &table.CreateAccelerationStructure)
	resolve(dev, ExtAccelerationStructure, "vkGetAccelerationStructureBuildSizesKHR", &table.GetAccelerationStructureBuildSizes)
	resolve(dev, ExtAccelerationStructure, "vkBuildAccelerationStructuresKHR", &table.BuildAccelerationStructures)
	resolve(dev, ExtAccelerationStructure, "vkCmdBuildAccelerationStructuresKHR", &table.CmdBuildAccelerationStructures)
	resolve(dev, ExtAccelerationStructure, "vkCopyAccelerationStructureKHR", &table.CopyAccelerationStructure)
	resolve(dev, ExtAccelerationStructure, "vkCmdCopyAccelerationStructureKHR", &table.CmdCopyAccelerationStructure)
	resolve(dev, ExtAccelerationStructure, "vkGetAccelerationStructureDeviceAddressKHR", &table.GetAccelerationStructureDeviceAddress)
	resolve(dev, ExtAccelerationStructure, "vkGetDeviceAccelerationStructureCompatibilityKHR", &table.GetDeviceAccelerationStructureCompatibility)

	resolve(dev, ExtRayTracingPipeline, "vkCreateRayTracingPipelinesKHR", &table.CreateRayTracingPipelines)

	resolve(dev, ExtDeferredHostOperations, "vkCreateDeferredOperationKHR", &table.CreateDeferredOperation)
	resolve(dev, ExtDeferredHostOperations, "vkDeferredOperationJoinKHR", &table.DeferredOperationJoin)
	resolve(dev, ExtDeferredHostOperations, "vkGetDeferredOperationResultKHR", &table.GetDeferredOperationResult)

	resolve(dev, ExtConditionalRendering, "vkCmdBeginConditionalRenderingEXT", &table.CmdBeginConditionalRendering)
	resolve(dev, ExtConditionalRendering, "vkCmdEndConditionalRenderingEXT", &table.CmdEndConditionalRendering)

	resolve(dev, ExtTransformFeedback, "vkCmdBindTransformFeedbackBuffersEXT", &table.CmdBindTransformFeedbackBuffers)
	resolve(dev, ExtTransformFeedback, "vkCmdBeginTransformFeedbackEXT", &table.CmdBeginTransformFeedback)
	resolve(dev, ExtTransformFeedback, "vkCmdEndTransformFeedbackEXT", &table.CmdEndTransformFeedback)

	resolve(dev, ExtMeshShader, "vkCmdDrawMeshTasksEXT", &table.CmdDrawMeshTasks)
	resolve(dev, ExtFragmentShadingRate, "vkCmdSetFragmentShadingRateKHR", &table.CmdSetFragmentShadingRate)
	resolve(dev, ExtLineRasterization, "vkCmdSetLineStippleEXT", &table.CmdSetLineStipple)

	return table
}

// NegativeViewportSupported returns true if the device accepts negative viewport heights
func (t *ExtensionTable) NegativeViewportSupported() bool {
	return t.Maintenance1 || t.NegativeViewportHeight
}
