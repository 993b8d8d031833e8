package hal

import (
	"time"
	"unsafe"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/driver"
)

//go:generate mockgen -destination ./mocks/memory_driver.go -package mocks github.com/vkngwrapper/armory/hal MemoryDriver

// MemoryDriver is the set of device memory entry points
type MemoryDriver interface {
	AllocateMemory(info MemoryAllocateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	FreeMemory(memory Handle, callbacks *driver.AllocationCallbacks)
	MapMemory(memory Handle, offset, size int) (unsafe.Pointer, common.VkResult)
	UnmapMemory(memory Handle)
	FlushMappedMemoryRanges(ranges []MappedRange) common.VkResult
	InvalidateMappedMemoryRanges(ranges []MappedRange) common.VkResult

	BindBufferMemory(buffer, memory Handle, offset int) common.VkResult
	BindImageMemory(image, memory Handle, offset int) common.VkResult
	BufferMemoryRequirements(buffer Handle) MemoryRequirements
	ImageMemoryRequirements(image Handle) MemoryRequirements
}

// ResourceDriver is the set of object lifecycle entry points. Every object created through it is
// destroyed with Destroy.
type ResourceDriver interface {
	CreateBuffer(info BufferCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateImage(info ImageCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateImageView(info ImageViewCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateSampler(info SamplerCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateShaderModule(info ShaderModuleCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateDescriptorSetLayout(info DescriptorSetLayoutCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateDescriptorPool(info DescriptorPoolCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	AllocateDescriptorSets(pool Handle, layouts []Handle) ([]Handle, common.VkResult)
	FreeDescriptorSets(pool Handle, sets []Handle) common.VkResult
	UpdateDescriptorSets(writes []WriteDescriptorSet)
	CreatePipelineLayout(info PipelineLayoutCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateRenderPass(info RenderPassCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateFramebuffer(info FramebufferCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateCommandPool(info CommandPoolCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	AllocateCommandBuffers(info CommandBufferAllocateInfo) ([]Handle, common.VkResult)
	FreeCommandBuffers(pool Handle, buffers []Handle)
	CreateFence(info FenceCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateSemaphore(info SemaphoreCreateInfo, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	CreateEvent(callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)

	Destroy(object Object, callbacks *driver.AllocationCallbacks)
}

// PipelineDriver is the set of pipeline and pipeline cache entry points. Multi-pipeline creation
// returns one handle per create info, with NullHandle in the place of every pipeline that failed.
type PipelineDriver interface {
	CreatePipelineCache(initialData []byte, callbacks *driver.AllocationCallbacks) (Handle, common.VkResult)
	PipelineCacheData(cache Handle) ([]byte, common.VkResult)
	MergePipelineCaches(dst Handle, src []Handle) common.VkResult
	CreateGraphicsPipelines(cache Handle, infos []GraphicsPipelineCreateInfo, callbacks *driver.AllocationCallbacks) ([]Handle, common.VkResult)
	CreateComputePipelines(cache Handle, infos []ComputePipelineCreateInfo, callbacks *driver.AllocationCallbacks) ([]Handle, common.VkResult)
}

// SyncDriver is the set of queue and synchronization entry points
type SyncDriver interface {
	GetQueue(familyIndex, queueIndex int) Handle
	QueueSubmit(queue Handle, submits []SubmitInfo, fence Handle) common.VkResult
	QueueWaitIdle(queue Handle) common.VkResult
	DeviceWaitIdle() common.VkResult

	WaitForFences(fences []Handle, waitAll bool, timeout time.Duration) common.VkResult
	ResetFences(fences []Handle) common.VkResult
	FenceStatus(fence Handle) common.VkResult
	WaitSemaphores(semaphores []Handle, values []uint64, waitAll bool, timeout time.Duration) common.VkResult
	SignalSemaphore(semaphore Handle, value uint64) common.VkResult
}

// CommandDriver is the set of command buffer recording entry points. Record calls do not report
// errors; only BeginCommandBuffer, EndCommandBuffer and ResetCommandBuffer do.
type CommandDriver interface {
	BeginCommandBuffer(commandBuffer Handle, flags CommandBufferUsageFlags) common.VkResult
	EndCommandBuffer(commandBuffer Handle) common.VkResult
	ResetCommandBuffer(commandBuffer Handle, releaseResources bool) common.VkResult

	CmdBindPipeline(commandBuffer Handle, bindPoint PipelineBindPoint, pipeline Handle)
	CmdBindDescriptorSets(commandBuffer Handle, bindPoint PipelineBindPoint, layout Handle, firstSet int, sets []Handle, dynamicOffsets []int)
	CmdBindVertexBuffers(commandBuffer Handle, firstBinding int, buffers []Handle, offsets []int)
	CmdBindIndexBuffer(commandBuffer Handle, buffer Handle, offset int, indexType IndexType)
	CmdPushConstants(commandBuffer Handle, layout Handle, stages ShaderStageFlags, offset int, data []byte)

	CmdDraw(commandBuffer Handle, vertexCount, instanceCount, firstVertex, firstInstance int)
	CmdDrawIndexed(commandBuffer Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int)
	CmdDrawIndirect(commandBuffer Handle, buffer Handle, offset, drawCount, stride int)
	CmdDispatch(commandBuffer Handle, x, y, z int)
	CmdDispatchIndirect(commandBuffer Handle, buffer Handle, offset int)

	CmdCopyBuffer(commandBuffer Handle, src, dst Handle, regions []BufferCopy)
	CmdCopyBufferToImage(commandBuffer Handle, src, dst Handle, dstLayout ImageLayout, regions []BufferImageCopy)
	CmdCopyImageToBuffer(commandBuffer Handle, src Handle, srcLayout ImageLayout, dst Handle, regions []BufferImageCopy)
	CmdCopyImage(commandBuffer Handle, src Handle, srcLayout ImageLayout, dst Handle, dstLayout ImageLayout, regions []ImageCopy)
	CmdBlitImage(commandBuffer Handle, src Handle, srcLayout ImageLayout, dst Handle, dstLayout ImageLayout, regions []ImageBlit, filter Filter)
	CmdFillBuffer(commandBuffer Handle, buffer Handle, offset, size int, data uint32)
	CmdClearColorImage(commandBuffer Handle, image Handle, layout ImageLayout, color ClearColorValue, ranges []ImageSubresourceRange)

	CmdPipelineBarrier(commandBuffer Handle, srcStage, dstStage PipelineStageFlags, dependency DependencyFlags,
		memory []MemoryBarrier, buffers []BufferMemoryBarrier, images []ImageMemoryBarrier)

	CmdBeginRenderPass(commandBuffer Handle, info RenderPassBeginInfo, contents SubpassContents)
	CmdNextSubpass(commandBuffer Handle, contents SubpassContents)
	CmdEndRenderPass(commandBuffer Handle)
	CmdExecuteCommands(commandBuffer Handle, secondaries []Handle)

	CmdBeginQuery(commandBuffer Handle, queryPool Handle, query int)
	CmdEndQuery(commandBuffer Handle, queryPool Handle, query int)
	CmdWriteTimestamp(commandBuffer Handle, stage PipelineStageFlags, queryPool Handle, query int)

	CmdSetViewport(commandBuffer Handle, first int, viewports []Viewport)
	CmdSetScissor(commandBuffer Handle, first int, scissors []Rect2D)
	CmdSetLineWidth(commandBuffer Handle, width float32)
	CmdSetBlendConstants(commandBuffer Handle, constants [4]float32)
	CmdSetStencilReference(commandBuffer Handle, faces CullModeFlags, reference uint32)
}

// Device is the driver contract every layer above it depends on. A real implementation wraps a
// loaded driver; tests use the in-memory implementation in haltest.
type Device interface {
	MemoryDriver
	ResourceDriver
	PipelineDriver
	SyncDriver
	CommandDriver

	Handle() Handle
	PhysicalDevice() PhysicalDeviceInfo

	// ExtensionEnabled returns true if the named device extension was enabled at device creation
	ExtensionEnabled(name string) bool
	// ProcAddr returns the entry point registered under a command name, or nil. Entry points are
	// Go funcs whose signature matches the corresponding ExtensionTable field.
	ProcAddr(name string) any
}
