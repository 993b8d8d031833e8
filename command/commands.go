package command

import (
	"github.com/vkngwrapper/armory/descriptor"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/pipeline"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
)

// BindPipeline binds p at its own bind point
func (r *Recorder) BindPipeline(p *pipeline.Pipeline) {
	if !r.recording("BindPipeline") || !r.live("BindPipeline", p.Object(), p.Name()) {
		return
	}

	r.device.CmdBindPipeline(r.handle, p.BindPoint(), p.Handle())
	r.borrow(p.Object(), p.Layout().Object())
}

// BindDescriptorSets binds sets to consecutive set numbers of layout starting at firstSet. Sets
// with unflushed writes are rejected.
func (r *Recorder) BindDescriptorSets(bindPoint hal.PipelineBindPoint, layout *pipeline.Layout, firstSet int, sets []*descriptor.Set, dynamicOffsets []int) {
	if !r.recording("BindDescriptorSets") || !r.live("BindDescriptorSets", layout.Object(), layout.Name()) {
		return
	}
	if firstSet < 0 || firstSet+len(sets) > layout.Sets() {
		r.fail(vkerr.New(vkerr.ValidationError, "sets [%d, %d) are outside layout %q, which has %d", firstSet, firstSet+len(sets), layout.Name(), layout.Sets()))
		return
	}

	handles := make([]hal.Handle, len(sets))
	for i, set := range sets {
		object := hal.NewObject(hal.ObjectTypeDescriptorSet, set.Handle())
		if !r.live("BindDescriptorSets", object, "") {
			return
		}
		if set.Layout().Hash() != layout.Set(firstSet+i).Hash() {
			r.fail(vkerr.New(vkerr.ValidationError, "descriptor set %s does not match set %d of layout %q", set.Handle(), firstSet+i, layout.Name()))
			return
		}
		if set.Dirty() {
			r.fail(vkerr.New(vkerr.ValidationError, "descriptor set %s has writes that were not flushed", set.Handle()))
			return
		}
		handles[i] = set.Handle()
		r.borrow(object)
	}

	r.device.CmdBindDescriptorSets(r.handle, bindPoint, layout.Handle(), firstSet, handles, dynamicOffsets)
	r.borrow(layout.Object())
}

func (r *Recorder) bufferHandles(op string, buffers []*resource.Buffer) ([]hal.Handle, bool) {
	handles := make([]hal.Handle, len(buffers))
	for i, buffer := range buffers {
		if !r.live(op, buffer.Object(), buffer.Name()) {
			return nil, false
		}
		handles[i] = buffer.Handle()
	}
	return handles, true
}

// BindVertexBuffers binds buffers to consecutive vertex input bindings starting at firstBinding
func (r *Recorder) BindVertexBuffers(firstBinding int, buffers []*resource.Buffer, offsets []int) {
	if !r.recording("BindVertexBuffers") {
		return
	}
	if len(buffers) != len(offsets) {
		r.fail(vkerr.New(vkerr.ValidationError, "BindVertexBuffers has %d buffers but %d offsets", len(buffers), len(offsets)))
		return
	}

	handles, ok := r.bufferHandles("BindVertexBuffers", buffers)
	if !ok {
		return
	}

	r.device.CmdBindVertexBuffers(r.handle, firstBinding, handles, offsets)
	for _, buffer := range buffers {
		r.borrow(buffer.Object())
	}
}

func (r *Recorder) BindIndexBuffer(buffer *resource.Buffer, offset int, indexType hal.IndexType) {
	if !r.recording("BindIndexBuffer") || !r.live("BindIndexBuffer", buffer.Object(), buffer.Name()) {
		return
	}

	alignment := 4
	switch indexType {
	case hal.IndexTypeUint16:
		alignment = 2
	case hal.IndexTypeUint32:
	default:
		r.fail(vkerr.New(vkerr.ValidationError, "index type %d cannot be bound for drawing", indexType))
		return
	}
	if offset%alignment != 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "index buffer offset %d is not a multiple of %d", offset, alignment))
		return
	}

	r.device.CmdBindIndexBuffer(r.handle, buffer.Handle(), offset, indexType)
	r.borrow(buffer.Object())
}

// PushConstants updates push constants. Every byte in [offset, offset+len(data)) must lie in a
// range of layout that includes all of stages.
func (r *Recorder) PushConstants(layout *pipeline.Layout, stages hal.ShaderStageFlags, offset int, data []byte) {
	if !r.recording("PushConstants") || !r.live("PushConstants", layout.Object(), layout.Name()) {
		return
	}
	if offset%4 != 0 || len(data)%4 != 0 || len(data) == 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "push constant update [%d, %d) must be non-empty and 4-byte aligned", offset, offset+len(data)))
		return
	}

	for _, pushRange := range layout.PushConstants() {
		if pushRange.StageFlags&stages == 0 {
			continue
		}
		if pushRange.StageFlags&stages != stages || offset < pushRange.Offset || offset+len(data) > pushRange.Offset+pushRange.Size {
			r.fail(vkerr.New(vkerr.ValidationError, "push constant update [%d, %d) for %s is not covered by layout %q", offset, offset+len(data), stages, layout.Name()))
			return
		}
	}
	if !coversStages(layout.PushConstants(), stages) {
		r.fail(vkerr.New(vkerr.ValidationError, "layout %q has no push constant range for %s", layout.Name(), stages))
		return
	}

	r.device.CmdPushConstants(r.handle, layout.Handle(), stages, offset, data)
	r.borrow(layout.Object())
}

func coversStages(ranges []hal.PushConstantRange, stages hal.ShaderStageFlags) bool {
	var covered hal.ShaderStageFlags
	for _, pushRange := range ranges {
		covered |= pushRange.StageFlags
	}
	return covered&stages == stages
}

func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance int) {
	if !r.insideRenderPass("Draw") {
		return
	}
	r.device.CmdDraw(r.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	if !r.insideRenderPass("DrawIndexed") {
		return
	}
	r.device.CmdDrawIndexed(r.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// DrawIndirect draws drawCount times with parameters read from buffer at offset, stride apart
func (r *Recorder) DrawIndirect(buffer *resource.Buffer, offset, drawCount, stride int) {
	if !r.insideRenderPass("DrawIndirect") || !r.live("DrawIndirect", buffer.Object(), buffer.Name()) {
		return
	}
	if offset%4 != 0 || (drawCount > 1 && stride%4 != 0) {
		r.fail(vkerr.New(vkerr.ValidationError, "indirect draw offset %d and stride %d must be 4-byte aligned", offset, stride))
		return
	}

	r.device.CmdDrawIndirect(r.handle, buffer.Handle(), offset, drawCount, stride)
	r.borrow(buffer.Object())
}

func (r *Recorder) Dispatch(x, y, z int) {
	if !r.outsideRenderPass("Dispatch") {
		return
	}

	if x < 0 || y < 0 || z < 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "dispatch %dx%dx%d has a negative group count", x, y, z))
		return
	}
	r.device.CmdDispatch(r.handle, x, y, z)
}

func (r *Recorder) DispatchIndirect(buffer *resource.Buffer, offset int) {
	if !r.outsideRenderPass("DispatchIndirect") || !r.live("DispatchIndirect", buffer.Object(), buffer.Name()) {
		return
	}
	if offset%4 != 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "indirect dispatch offset %d must be 4-byte aligned", offset))
		return
	}

	r.device.CmdDispatchIndirect(r.handle, buffer.Handle(), offset)
	r.borrow(buffer.Object())
}

// CopyBuffer copies regions between two buffers
func (r *Recorder) CopyBuffer(src, dst hal.Handle, regions []hal.BufferCopy) {
	if !r.outsideRenderPass("CopyBuffer") {
		return
	}
	if src.IsNull() || dst.IsNull() {
		r.fail(vkerr.New(vkerr.ValidationError, "CopyBuffer references a destroyed buffer"))
		return
	}

	r.device.CmdCopyBuffer(r.handle, src, dst, regions)
	r.borrow(hal.NewObject(hal.ObjectTypeBuffer, src), hal.NewObject(hal.ObjectTypeBuffer, dst))
}

func (r *Recorder) CopyBufferToImage(src *resource.Buffer, dst *resource.Image, dstLayout hal.ImageLayout, regions []hal.BufferImageCopy) {
	if !r.outsideRenderPass("CopyBufferToImage") || !r.live("CopyBufferToImage", src.Object(), src.Name()) || !r.live("CopyBufferToImage", dst.Object(), dst.Name()) {
		return
	}
	if !r.copyLayout("CopyBufferToImage", dst, dstLayout, hal.ImageLayoutTransferDstOptimal) {
		return
	}

	r.device.CmdCopyBufferToImage(r.handle, src.Handle(), dst.Handle(), dstLayout, regions)
	r.borrow(src.Object(), dst.Object())
}

func (r *Recorder) CopyImageToBuffer(src *resource.Image, srcLayout hal.ImageLayout, dst *resource.Buffer, regions []hal.BufferImageCopy) {
	if !r.outsideRenderPass("CopyImageToBuffer") || !r.live("CopyImageToBuffer", src.Object(), src.Name()) || !r.live("CopyImageToBuffer", dst.Object(), dst.Name()) {
		return
	}
	if !r.copyLayout("CopyImageToBuffer", src, srcLayout, hal.ImageLayoutTransferSrcOptimal) {
		return
	}

	r.device.CmdCopyImageToBuffer(r.handle, src.Handle(), srcLayout, dst.Handle(), regions)
	r.borrow(src.Object(), dst.Object())
}

func (r *Recorder) CopyImage(src *resource.Image, srcLayout hal.ImageLayout, dst *resource.Image, dstLayout hal.ImageLayout, regions []hal.ImageCopy) {
	if !r.outsideRenderPass("CopyImage") || !r.live("CopyImage", src.Object(), src.Name()) || !r.live("CopyImage", dst.Object(), dst.Name()) {
		return
	}
	if !r.copyLayout("CopyImage", src, srcLayout, hal.ImageLayoutTransferSrcOptimal) || !r.copyLayout("CopyImage", dst, dstLayout, hal.ImageLayoutTransferDstOptimal) {
		return
	}

	r.device.CmdCopyImage(r.handle, src.Handle(), srcLayout, dst.Handle(), dstLayout, regions)
	r.borrow(src.Object(), dst.Object())
}

func (r *Recorder) BlitImage(src, dst *resource.Image, srcLayout, dstLayout hal.ImageLayout, regions []hal.ImageBlit, filter hal.Filter) {
	if !r.outsideRenderPass("BlitImage") || !r.live("BlitImage", src.Object(), src.Name()) || !r.live("BlitImage", dst.Object(), dst.Name()) {
		return
	}
	if !r.copyLayout("BlitImage", src, srcLayout, hal.ImageLayoutTransferSrcOptimal) || !r.copyLayout("BlitImage", dst, dstLayout, hal.ImageLayoutTransferDstOptimal) {
		return
	}

	r.device.CmdBlitImage(r.handle, src.Handle(), srcLayout, dst.Handle(), dstLayout, regions, filter)
	r.borrow(src.Object(), dst.Object())
}

// copyLayout accepts the transfer layout a copy expects and General
func (r *Recorder) copyLayout(op string, image *resource.Image, layout, expected hal.ImageLayout) bool {
	if layout != expected && layout != hal.ImageLayoutGeneral {
		r.fail(vkerr.New(vkerr.ValidationError, "%s cannot use image %q in layout %s", op, image.Name(), layout))
		return false
	}
	return true
}

// FillBuffer fills size bytes of buffer at offset with repeated copies of data
func (r *Recorder) FillBuffer(buffer *resource.Buffer, offset, size int, data uint32) {
	if !r.outsideRenderPass("FillBuffer") || !r.live("FillBuffer", buffer.Object(), buffer.Name()) {
		return
	}
	if offset%4 != 0 || size%4 != 0 || offset+size > buffer.Size() {
		r.fail(vkerr.New(vkerr.ValidationError, "fill [%d, %d) of buffer %q must be 4-byte aligned and inside its %d bytes", offset, offset+size, buffer.Name(), buffer.Size()))
		return
	}

	r.device.CmdFillBuffer(r.handle, buffer.Handle(), offset, size, data)
	r.borrow(buffer.Object())
}

func (r *Recorder) ClearColorImage(image *resource.Image, layout hal.ImageLayout, color hal.ClearColorValue, ranges ...hal.ImageSubresourceRange) {
	if !r.outsideRenderPass("ClearColorImage") || !r.live("ClearColorImage", image.Object(), image.Name()) {
		return
	}
	if image.Format().Aspects()&hal.ImageAspectColor == 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "image %q of format %s has no color aspect to clear", image.Name(), image.Format()))
		return
	}
	if !r.copyLayout("ClearColorImage", image, layout, hal.ImageLayoutTransferDstOptimal) {
		return
	}
	if len(ranges) == 0 {
		ranges = []hal.ImageSubresourceRange{image.FullRange()}
	}

	r.device.CmdClearColorImage(r.handle, image.Handle(), layout, color, ranges)
	r.borrow(image.Object())
}

// MemoryBarrier records a global memory barrier
func (r *Recorder) MemoryBarrier(srcStage, dstStage hal.PipelineStageFlags, barriers ...hal.MemoryBarrier) {
	if !r.recording("MemoryBarrier") {
		return
	}
	r.device.CmdPipelineBarrier(r.handle, srcStage, dstStage, 0, barriers, nil, nil)
}

func (r *Recorder) BufferBarrier(srcStage, dstStage hal.PipelineStageFlags, barriers ...hal.BufferMemoryBarrier) {
	if !r.recording("BufferBarrier") {
		return
	}
	r.device.CmdPipelineBarrier(r.handle, srcStage, dstStage, 0, nil, barriers, nil)
	for _, barrier := range barriers {
		r.borrow(hal.NewObject(hal.ObjectTypeBuffer, barrier.Buffer))
	}
}

// ImageBarrier records barriers against image and moves its tracked layouts to their new
// layouts. Every barrier must name image.
func (r *Recorder) ImageBarrier(image *resource.Image, srcStage, dstStage hal.PipelineStageFlags, barriers ...hal.ImageMemoryBarrier) {
	if !r.recording("ImageBarrier") || !r.live("ImageBarrier", image.Object(), image.Name()) {
		return
	}
	for _, barrier := range barriers {
		if barrier.Image != image.Handle() {
			r.fail(vkerr.New(vkerr.ValidationError, "a barrier for image %s was recorded against image %q", barrier.Image, image.Name()))
			return
		}
	}
	if r.renderPass != nil {
		r.fail(vkerr.New(vkerr.ValidationError, "image layout transitions cannot be recorded inside render pass %q", r.renderPass.Name()))
		return
	}

	r.device.CmdPipelineBarrier(r.handle, srcStage, dstStage, 0, nil, nil, barriers)
	image.CommitLayouts(barriers...)
	r.borrow(image.Object())
}

// RenderPassBegin describes the render pass instance BeginRenderPass starts
type RenderPassBegin struct {
	RenderPass  *pipeline.RenderPass
	Framebuffer *resource.Framebuffer
	// RenderArea defaults to the whole framebuffer
	RenderArea  hal.Rect2D
	ClearValues []hal.ClearValue
	// Attachments supplies the views of an imageless framebuffer, one per attachment
	Attachments []*resource.ImageView
}

func (r *Recorder) BeginRenderPass(begin RenderPassBegin, contents hal.SubpassContents) {
	if !r.recording("BeginRenderPass") {
		return
	}
	if r.level != hal.CommandBufferLevelPrimary {
		r.fail(vkerr.New(vkerr.ValidationError, "render passes can only begin in primary command buffers"))
		return
	}
	if r.renderPass != nil {
		r.fail(vkerr.New(vkerr.ValidationError, "render pass %q began inside render pass %q", begin.RenderPass.Name(), r.renderPass.Name()))
		return
	}
	if !r.live("BeginRenderPass", begin.RenderPass.Object(), begin.RenderPass.Name()) || !r.live("BeginRenderPass", begin.Framebuffer.Object(), "") {
		return
	}

	info := hal.RenderPassBeginInfo{
		RenderPass:  begin.RenderPass.Handle(),
		Framebuffer: begin.Framebuffer.Handle(),
		RenderArea:  begin.RenderArea,
		ClearValues: begin.ClearValues,
	}
	if info.RenderArea.Extent == (hal.Extent2D{}) {
		info.RenderArea.Extent = hal.Extent2D{Width: begin.Framebuffer.Width(), Height: begin.Framebuffer.Height()}
	}
	area := info.RenderArea
	if area.Offset.X < 0 || area.Offset.Y < 0 || area.Offset.X+area.Extent.Width > begin.Framebuffer.Width() || area.Offset.Y+area.Extent.Height > begin.Framebuffer.Height() {
		r.fail(vkerr.New(vkerr.ValidationError, "render area %+v is outside the %dx%d framebuffer", area, begin.Framebuffer.Width(), begin.Framebuffer.Height()))
		return
	}

	if begin.Framebuffer.Imageless() {
		if len(begin.Attachments) != begin.RenderPass.Attachments() {
			r.fail(vkerr.New(vkerr.ValidationError, "imageless framebuffer needs %d attachments, %d were provided", begin.RenderPass.Attachments(), len(begin.Attachments)))
			return
		}
		for _, view := range begin.Attachments {
			if !r.live("BeginRenderPass", view.Object(), "") {
				return
			}
			info.Attachments = append(info.Attachments, view.Handle())
		}
	} else if len(begin.Attachments) > 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "attachments can only be supplied for an imageless framebuffer"))
		return
	}

	r.device.CmdBeginRenderPass(r.handle, info, contents)
	r.renderPass = begin.RenderPass
	r.subpass = 0
	r.borrow(begin.RenderPass.Object(), begin.Framebuffer.Object())
	for _, view := range begin.Attachments {
		r.borrow(view.Object())
	}
}

func (r *Recorder) NextSubpass(contents hal.SubpassContents) {
	if !r.recording("NextSubpass") {
		return
	}
	if r.renderPass == nil {
		r.fail(vkerr.New(vkerr.ValidationError, "NextSubpass must be recorded inside a render pass"))
		return
	}
	if r.subpass+1 >= r.renderPass.Subpasses() {
		r.fail(vkerr.New(vkerr.ValidationError, "render pass %q has no subpass after %d", r.renderPass.Name(), r.subpass))
		return
	}

	r.device.CmdNextSubpass(r.handle, contents)
	r.subpass++
}

func (r *Recorder) EndRenderPass() {
	if !r.recording("EndRenderPass") {
		return
	}
	if r.renderPass == nil {
		r.fail(vkerr.New(vkerr.ValidationError, "EndRenderPass must be recorded inside a render pass"))
		return
	}
	if r.subpass != r.renderPass.Subpasses()-1 {
		r.fail(vkerr.New(vkerr.ValidationError, "render pass %q ended in subpass %d of %d", r.renderPass.Name(), r.subpass, r.renderPass.Subpasses()))
		return
	}

	r.device.CmdEndRenderPass(r.handle)
	r.renderPass = nil
	r.subpass = 0
}

// Subpass returns the current subpass, or -1 outside a render pass
func (r *Recorder) Subpass() int {
	if r.renderPass == nil {
		return -1
	}
	return r.subpass
}

// ExecuteCommands records the execution of executable secondary recorders
func (r *Recorder) ExecuteCommands(secondaries ...*Recorder) {
	if !r.recording("ExecuteCommands") {
		return
	}
	if r.level != hal.CommandBufferLevelPrimary {
		r.fail(vkerr.New(vkerr.ValidationError, "secondary command buffers can only be executed from a primary"))
		return
	}

	handles := make([]hal.Handle, len(secondaries))
	for i, secondary := range secondaries {
		if secondary.level != hal.CommandBufferLevelSecondary || secondary.state != StateExecutable {
			r.fail(vkerr.New(vkerr.ValidationError, "command buffer %s must be an executable secondary, not a %s one", secondary.handle, secondary.state))
			return
		}
		handles[i] = secondary.handle
	}

	r.device.CmdExecuteCommands(r.handle, handles)
	for _, secondary := range secondaries {
		r.borrow(secondary.Object())
		secondary.borrows.Iter(func(object hal.Object, _ int) bool {
			r.borrow(object)
			return false
		})
	}
}

func (r *Recorder) BeginQuery(queryPool hal.Handle, query int) {
	if !r.recording("BeginQuery") {
		return
	}
	r.device.CmdBeginQuery(r.handle, queryPool, query)
	r.borrow(hal.NewObject(hal.ObjectTypeQueryPool, queryPool))
}

func (r *Recorder) EndQuery(queryPool hal.Handle, query int) {
	if !r.recording("EndQuery") {
		return
	}
	r.device.CmdEndQuery(r.handle, queryPool, query)
}

func (r *Recorder) WriteTimestamp(stage hal.PipelineStageFlags, queryPool hal.Handle, query int) {
	if !r.recording("WriteTimestamp") {
		return
	}
	r.device.CmdWriteTimestamp(r.handle, stage, queryPool, query)
	r.borrow(hal.NewObject(hal.ObjectTypeQueryPool, queryPool))
}

// SetViewport sets dynamic viewports. A negative height flips the viewport vertically: when the
// device accepts negative heights the origin moves to the bottom edge and the height stays
// negative, otherwise the height is made positive.
func (r *Recorder) SetViewport(first int, viewports ...hal.Viewport) {
	if !r.recording("SetViewport") {
		return
	}

	adjusted := make([]hal.Viewport, len(viewports))
	for i, viewport := range viewports {
		adjusted[i] = r.viewport(viewport)
	}
	r.device.CmdSetViewport(r.handle, first, adjusted)
}

func (r *Recorder) viewport(viewport hal.Viewport) hal.Viewport {
	if viewport.Height >= 0 {
		return viewport
	}

	if r.extensions.NegativeViewportSupported() {
		viewport.Y -= viewport.Height
		return viewport
	}

	viewport.Height = -viewport.Height
	return viewport
}

func (r *Recorder) SetScissor(first int, scissors ...hal.Rect2D) {
	if !r.recording("SetScissor") {
		return
	}
	for _, scissor := range scissors {
		if scissor.Offset.X < 0 || scissor.Offset.Y < 0 {
			r.fail(vkerr.New(vkerr.ValidationError, "scissor offset %+v must not be negative", scissor.Offset))
			return
		}
	}
	r.device.CmdSetScissor(r.handle, first, scissors)
}

func (r *Recorder) SetLineWidth(width float32) {
	if !r.recording("SetLineWidth") {
		return
	}
	if width <= 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "line width %g must be positive", width))
		return
	}
	r.device.CmdSetLineWidth(r.handle, width)
}

func (r *Recorder) SetBlendConstants(constants [4]float32) {
	if !r.recording("SetBlendConstants") {
		return
	}
	r.device.CmdSetBlendConstants(r.handle, constants)
}

func (r *Recorder) SetStencilReference(faces hal.CullModeFlags, reference uint32) {
	if !r.recording("SetStencilReference") {
		return
	}
	r.device.CmdSetStencilReference(r.handle, faces, reference)
}
