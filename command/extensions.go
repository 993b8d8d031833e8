package command

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
)

// BeginConditionalRendering makes the following draws and dispatches depend on the 32-bit value
// in buffer at offset being non-zero, or zero when inverted
func (r *Recorder) BeginConditionalRendering(buffer *resource.Buffer, offset int, inverted bool) {
	if !r.extension("BeginConditionalRendering", hal.ExtConditionalRendering, r.extensions.CmdBeginConditionalRendering != nil) ||
		!r.live("BeginConditionalRendering", buffer.Object(), buffer.Name()) {
		return
	}
	if offset%4 != 0 || offset+4 > buffer.Size() {
		r.fail(vkerr.New(vkerr.ValidationError, "conditional rendering offset %d must be 4-byte aligned and inside buffer %q", offset, buffer.Name()))
		return
	}

	r.extensions.CmdBeginConditionalRendering(r.handle, buffer.Handle(), offset, inverted)
	r.borrow(buffer.Object())
}

func (r *Recorder) EndConditionalRendering() {
	if !r.extension("EndConditionalRendering", hal.ExtConditionalRendering, r.extensions.CmdEndConditionalRendering != nil) {
		return
	}
	r.extensions.CmdEndConditionalRendering(r.handle)
}

// BindTransformFeedbackBuffers binds the buffers transform feedback writes into. A size of
// zero means the rest of the buffer.
func (r *Recorder) BindTransformFeedbackBuffers(firstBinding int, buffers []*resource.Buffer, offsets, sizes []int) {
	if !r.extension("BindTransformFeedbackBuffers", hal.ExtTransformFeedback, r.extensions.CmdBindTransformFeedbackBuffers != nil) {
		return
	}
	if len(offsets) != len(buffers) || (sizes != nil && len(sizes) != len(buffers)) {
		r.fail(vkerr.New(vkerr.ValidationError, "BindTransformFeedbackBuffers has %d buffers, %d offsets and %d sizes", len(buffers), len(offsets), len(sizes)))
		return
	}

	handles, ok := r.bufferHandles("BindTransformFeedbackBuffers", buffers)
	if !ok {
		return
	}

	r.extensions.CmdBindTransformFeedbackBuffers(r.handle, firstBinding, handles, offsets, sizes)
	for _, buffer := range buffers {
		r.borrow(buffer.Object())
	}
}

func (r *Recorder) BeginTransformFeedback(firstCounterBuffer int, counterBuffers []*resource.Buffer, offsets []int) {
	r.transformFeedback("BeginTransformFeedback", r.extensions.CmdBeginTransformFeedback, firstCounterBuffer, counterBuffers, offsets)
}

func (r *Recorder) EndTransformFeedback(firstCounterBuffer int, counterBuffers []*resource.Buffer, offsets []int) {
	r.transformFeedback("EndTransformFeedback", r.extensions.CmdEndTransformFeedback, firstCounterBuffer, counterBuffers, offsets)
}

func (r *Recorder) transformFeedback(op string, entry func(hal.Handle, int, []hal.Handle, []int), firstCounterBuffer int, counterBuffers []*resource.Buffer, offsets []int) {
	if !r.extension(op, hal.ExtTransformFeedback, entry != nil) || !r.insideRenderPass(op) {
		return
	}
	if offsets != nil && len(offsets) != len(counterBuffers) {
		r.fail(vkerr.New(vkerr.ValidationError, "%s has %d counter buffers but %d offsets", op, len(counterBuffers), len(offsets)))
		return
	}

	handles, ok := r.bufferHandles(op, counterBuffers)
	if !ok {
		return
	}

	entry(r.handle, firstCounterBuffer, handles, offsets)
	for _, buffer := range counterBuffers {
		r.borrow(buffer.Object())
	}
}

// DrawMeshTasks dispatches x*y*z mesh shader task groups
func (r *Recorder) DrawMeshTasks(x, y, z int) {
	if !r.extension("DrawMeshTasks", hal.ExtMeshShader, r.extensions.CmdDrawMeshTasks != nil) || !r.insideRenderPass("DrawMeshTasks") {
		return
	}
	r.extensions.CmdDrawMeshTasks(r.handle, x, y, z)
}

// SetFragmentShadingRate sets the pipeline shading rate and how it combines with the primitive
// and attachment rates. Fragment sizes are 1, 2 or 4 texels on each side.
func (r *Recorder) SetFragmentShadingRate(fragmentSize hal.Extent2D, combinerOps [2]uint32) {
	if !r.extension("SetFragmentShadingRate", hal.ExtFragmentShadingRate, r.extensions.CmdSetFragmentShadingRate != nil) {
		return
	}
	if !shadingRateSize(fragmentSize.Width) || !shadingRateSize(fragmentSize.Height) {
		r.fail(vkerr.New(vkerr.ValidationError, "fragment size %dx%d is not a shading rate", fragmentSize.Width, fragmentSize.Height))
		return
	}
	r.extensions.CmdSetFragmentShadingRate(r.handle, fragmentSize, combinerOps)
}

func shadingRateSize(size int) bool {
	return size == 1 || size == 2 || size == 4
}

// SetLineStipple sets the stipple pattern of stippled line rasterization. factor is in [1, 256].
func (r *Recorder) SetLineStipple(factor int, pattern uint16) {
	if !r.extension("SetLineStipple", hal.ExtLineRasterization, r.extensions.CmdSetLineStipple != nil) {
		return
	}
	if factor < 1 || factor > 256 {
		r.fail(vkerr.New(vkerr.ValidationError, "line stipple factor %d is outside [1, 256]", factor))
		return
	}
	r.extensions.CmdSetLineStipple(r.handle, factor, pattern)
}

// SetDeviceMask selects the physical devices of a device group that execute later commands
func (r *Recorder) SetDeviceMask(deviceMask uint32) {
	if !r.extension("SetDeviceMask", hal.ExtDeviceGroup, r.extensions.CmdSetDeviceMask != nil) {
		return
	}
	if deviceMask == 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "a device mask must select at least one device"))
		return
	}
	r.extensions.CmdSetDeviceMask(r.handle, deviceMask)
}

// BuildAccelerationStructures records device builds. Each info has the ranges at the same index.
func (r *Recorder) BuildAccelerationStructures(infos []hal.AccelerationStructureBuildGeometryInfo, ranges [][]hal.AccelerationStructureBuildRangeInfo) {
	if !r.extension("BuildAccelerationStructures", hal.ExtAccelerationStructure, r.extensions.CmdBuildAccelerationStructures != nil) ||
		!r.outsideRenderPass("BuildAccelerationStructures") {
		return
	}
	if len(infos) != len(ranges) {
		r.fail(vkerr.New(vkerr.ValidationError, "%d acceleration structure builds have %d range lists", len(infos), len(ranges)))
		return
	}

	r.extensions.CmdBuildAccelerationStructures(r.handle, infos, ranges)
	for _, info := range infos {
		r.borrow(hal.NewObject(hal.ObjectTypeAccelerationStructure, info.Src), hal.NewObject(hal.ObjectTypeAccelerationStructure, info.Dst))
	}
}

func (r *Recorder) CopyAccelerationStructure(info hal.CopyAccelerationStructureInfo) {
	if !r.extension("CopyAccelerationStructure", hal.ExtAccelerationStructure, r.extensions.CmdCopyAccelerationStructure != nil) ||
		!r.outsideRenderPass("CopyAccelerationStructure") {
		return
	}

	r.extensions.CmdCopyAccelerationStructure(r.handle, info)
	r.borrow(hal.NewObject(hal.ObjectTypeAccelerationStructure, info.Src), hal.NewObject(hal.ObjectTypeAccelerationStructure, info.Dst))
}
