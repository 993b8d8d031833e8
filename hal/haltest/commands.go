package haltest

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// CommandBufferState is where a fake command buffer is in its lifecycle
type CommandBufferState int

const (
	CommandBufferInitial CommandBufferState = iota
	CommandBufferRecording
	CommandBufferExecutable
)

// Command is one recorded call. Args are the call's arguments after the command buffer, in order.
type Command struct {
	Name string
	Args []any
}

// Arg returns argument i of a recorded command as T. It panics if the argument has another type,
// which in a test is a failure worth the stack.
func Arg[T any](c Command, i int) T {
	return c.Args[i].(T)
}

type commandBuffer struct {
	level    hal.CommandBufferLevel
	state    CommandBufferState
	flags    hal.CommandBufferUsageFlags
	commands []Command
}

func (d *Device) commandBufferLocked(entry string, handle hal.Handle) (*commandBuffer, bool) {
	obj, ok := d.lookup(hal.ObjectTypeCommandBuffer, handle)
	if !ok {
		d.violation("%s: %s is not a live command buffer", entry, handle)
		return nil, false
	}

	return obj.commands, true
}

func (d *Device) record(commandBuffer hal.Handle, name string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls[name]++

	cb, ok := d.commandBufferLocked(name, commandBuffer)
	if !ok {
		return
	}
	if cb.state != CommandBufferRecording {
		d.violation("%s: %s is not recording", name, commandBuffer)
		return
	}

	cb.commands = append(cb.commands, Command{Name: name, Args: args})
}

// Commands returns the commands recorded into a command buffer since it was last begun or reset
func (d *Device) Commands(commandBuffer hal.Handle) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeCommandBuffer, commandBuffer)
	if !ok {
		return nil
	}

	return append([]Command(nil), obj.commands.commands...)
}

// CommandState returns the lifecycle state of a command buffer
func (d *Device) CommandState(commandBuffer hal.Handle) CommandBufferState {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeCommandBuffer, commandBuffer)
	if !ok {
		return CommandBufferInitial
	}

	return obj.commands.state
}

func (d *Device) BeginCommandBuffer(commandBuffer hal.Handle, flags hal.CommandBufferUsageFlags) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("BeginCommandBuffer"); res != core1_0.VKSuccess {
		return res
	}

	cb, ok := d.commandBufferLocked("BeginCommandBuffer", commandBuffer)
	if !ok {
		return vkerr.ResultErrorValidationFailed
	}
	if cb.state == CommandBufferRecording {
		d.violation("BeginCommandBuffer: %s is already recording", commandBuffer)
		return vkerr.ResultErrorValidationFailed
	}

	cb.state = CommandBufferRecording
	cb.flags = flags
	cb.commands = nil
	return core1_0.VKSuccess
}

func (d *Device) EndCommandBuffer(commandBuffer hal.Handle) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("EndCommandBuffer"); res != core1_0.VKSuccess {
		return res
	}

	cb, ok := d.commandBufferLocked("EndCommandBuffer", commandBuffer)
	if !ok {
		return vkerr.ResultErrorValidationFailed
	}
	if cb.state != CommandBufferRecording {
		d.violation("EndCommandBuffer: %s is not recording", commandBuffer)
		return vkerr.ResultErrorValidationFailed
	}

	cb.state = CommandBufferExecutable
	return core1_0.VKSuccess
}

func (d *Device) ResetCommandBuffer(commandBuffer hal.Handle, releaseResources bool) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("ResetCommandBuffer"); res != core1_0.VKSuccess {
		return res
	}

	obj, ok := d.lookup(hal.ObjectTypeCommandBuffer, commandBuffer)
	if !ok {
		d.violation("ResetCommandBuffer: %s is not a live command buffer", commandBuffer)
		return vkerr.ResultErrorValidationFailed
	}

	pool, ok := d.lookup(hal.ObjectTypeCommandPool, obj.parent)
	if ok && pool.info.(hal.CommandPoolCreateInfo).Flags&hal.CommandPoolCreateResetCommandBuffer == 0 {
		d.violation("ResetCommandBuffer: %s was not created with CommandPoolCreateResetCommandBuffer", obj.parent)
	}

	obj.commands.state = CommandBufferInitial
	obj.commands.commands = nil
	return core1_0.VKSuccess
}

func (d *Device) CmdBindPipeline(commandBuffer hal.Handle, bindPoint hal.PipelineBindPoint, pipeline hal.Handle) {
	d.record(commandBuffer, "CmdBindPipeline", bindPoint, pipeline)
}

func (d *Device) CmdBindDescriptorSets(commandBuffer hal.Handle, bindPoint hal.PipelineBindPoint, layout hal.Handle, firstSet int, sets []hal.Handle, dynamicOffsets []int) {
	d.record(commandBuffer, "CmdBindDescriptorSets", bindPoint, layout, firstSet, sets, dynamicOffsets)
}

func (d *Device) CmdBindVertexBuffers(commandBuffer hal.Handle, firstBinding int, buffers []hal.Handle, offsets []int) {
	d.record(commandBuffer, "CmdBindVertexBuffers", firstBinding, buffers, offsets)
}

func (d *Device) CmdBindIndexBuffer(commandBuffer hal.Handle, buffer hal.Handle, offset int, indexType hal.IndexType) {
	d.record(commandBuffer, "CmdBindIndexBuffer", buffer, offset, indexType)
}

func (d *Device) CmdPushConstants(commandBuffer hal.Handle, layout hal.Handle, stages hal.ShaderStageFlags, offset int, data []byte) {
	d.record(commandBuffer, "CmdPushConstants", layout, stages, offset, append([]byte(nil), data...))
}

func (d *Device) CmdDraw(commandBuffer hal.Handle, vertexCount, instanceCount, firstVertex, firstInstance int) {
	d.record(commandBuffer, "CmdDraw", vertexCount, instanceCount, firstVertex, firstInstance)
}

func (d *Device) CmdDrawIndexed(commandBuffer hal.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	d.record(commandBuffer, "CmdDrawIndexed", indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (d *Device) CmdDrawIndirect(commandBuffer hal.Handle, buffer hal.Handle, offset, drawCount, stride int) {
	d.record(commandBuffer, "CmdDrawIndirect", buffer, offset, drawCount, stride)
}

func (d *Device) CmdDispatch(commandBuffer hal.Handle, x, y, z int) {
	d.record(commandBuffer, "CmdDispatch", x, y, z)
}

func (d *Device) CmdDispatchIndirect(commandBuffer hal.Handle, buffer hal.Handle, offset int) {
	d.record(commandBuffer, "CmdDispatchIndirect", buffer, offset)
}

func (d *Device) CmdCopyBuffer(commandBuffer hal.Handle, src, dst hal.Handle, regions []hal.BufferCopy) {
	d.record(commandBuffer, "CmdCopyBuffer", src, dst, append([]hal.BufferCopy(nil), regions...))
}

func (d *Device) CmdCopyBufferToImage(commandBuffer hal.Handle, src, dst hal.Handle, dstLayout hal.ImageLayout, regions []hal.BufferImageCopy) {
	d.record(commandBuffer, "CmdCopyBufferToImage", src, dst, dstLayout, append([]hal.BufferImageCopy(nil), regions...))
}

func (d *Device) CmdCopyImageToBuffer(commandBuffer hal.Handle, src hal.Handle, srcLayout hal.ImageLayout, dst hal.Handle, regions []hal.BufferImageCopy) {
	d.record(commandBuffer, "CmdCopyImageToBuffer", src, srcLayout, dst, append([]hal.BufferImageCopy(nil), regions...))
}

func (d *Device) CmdCopyImage(commandBuffer hal.Handle, src hal.Handle, srcLayout hal.ImageLayout, dst hal.Handle, dstLayout hal.ImageLayout, regions []hal.ImageCopy) {
	d.record(commandBuffer, "CmdCopyImage", src, srcLayout, dst, dstLayout, append([]hal.ImageCopy(nil), regions...))
}

func (d *Device) CmdBlitImage(commandBuffer hal.Handle, src hal.Handle, srcLayout hal.ImageLayout, dst hal.Handle, dstLayout hal.ImageLayout, regions []hal.ImageBlit, filter hal.Filter) {
	d.record(commandBuffer, "CmdBlitImage", src, srcLayout, dst, dstLayout, append([]hal.ImageBlit(nil), regions...), filter)
}

func (d *Device) CmdFillBuffer(commandBuffer hal.Handle, buffer hal.Handle, offset, size int, data uint32) {
	d.record(commandBuffer, "CmdFillBuffer", buffer, offset, size, data)
}

func (d *Device) CmdClearColorImage(commandBuffer hal.Handle, image hal.Handle, layout hal.ImageLayout, color hal.ClearColorValue, ranges []hal.ImageSubresourceRange) {
	d.record(commandBuffer, "CmdClearColorImage", image, layout, color, append([]hal.ImageSubresourceRange(nil), ranges...))
}

func (d *Device) CmdPipelineBarrier(commandBuffer hal.Handle, srcStage, dstStage hal.PipelineStageFlags, dependency hal.DependencyFlags,
	memory []hal.MemoryBarrier, buffers []hal.BufferMemoryBarrier, images []hal.ImageMemoryBarrier) {
	d.record(commandBuffer, "CmdPipelineBarrier", srcStage, dstStage, dependency,
		append([]hal.MemoryBarrier(nil), memory...),
		append([]hal.BufferMemoryBarrier(nil), buffers...),
		append([]hal.ImageMemoryBarrier(nil), images...))
}

func (d *Device) CmdBeginRenderPass(commandBuffer hal.Handle, info hal.RenderPassBeginInfo, contents hal.SubpassContents) {
	d.record(commandBuffer, "CmdBeginRenderPass", info, contents)
}

func (d *Device) CmdNextSubpass(commandBuffer hal.Handle, contents hal.SubpassContents) {
	d.record(commandBuffer, "CmdNextSubpass", contents)
}

func (d *Device) CmdEndRenderPass(commandBuffer hal.Handle) {
	d.record(commandBuffer, "CmdEndRenderPass")
}

func (d *Device) CmdExecuteCommands(commandBuffer hal.Handle, secondaries []hal.Handle) {
	d.record(commandBuffer, "CmdExecuteCommands", append([]hal.Handle(nil), secondaries...))
}

func (d *Device) CmdBeginQuery(commandBuffer hal.Handle, queryPool hal.Handle, query int) {
	d.record(commandBuffer, "CmdBeginQuery", queryPool, query)
}

func (d *Device) CmdEndQuery(commandBuffer hal.Handle, queryPool hal.Handle, query int) {
	d.record(commandBuffer, "CmdEndQuery", queryPool, query)
}

func (d *Device) CmdWriteTimestamp(commandBuffer hal.Handle, stage hal.PipelineStageFlags, queryPool hal.Handle, query int) {
	d.record(commandBuffer, "CmdWriteTimestamp", stage, queryPool, query)
}

func (d *Device) CmdSetViewport(commandBuffer hal.Handle, first int, viewports []hal.Viewport) {
	d.record(commandBuffer, "CmdSetViewport", first, append([]hal.Viewport(nil), viewports...))
}

func (d *Device) CmdSetScissor(commandBuffer hal.Handle, first int, scissors []hal.Rect2D) {
	d.record(commandBuffer, "CmdSetScissor", first, append([]hal.Rect2D(nil), scissors...))
}

func (d *Device) CmdSetLineWidth(commandBuffer hal.Handle, width float32) {
	d.record(commandBuffer, "CmdSetLineWidth", width)
}

func (d *Device) CmdSetBlendConstants(commandBuffer hal.Handle, constants [4]float32) {
	d.record(commandBuffer, "CmdSetBlendConstants", constants)
}

func (d *Device) CmdSetStencilReference(commandBuffer hal.Handle, faces hal.CullModeFlags, reference uint32) {
	d.record(commandBuffer, "CmdSetStencilReference", faces, reference)
}
