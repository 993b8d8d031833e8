package haltest

import (
	"encoding/binary"
	"time"

	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func (d *Device) GetQueue(familyIndex, queueIndex int) hal.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := [2]int{familyIndex, queueIndex}
	if handle, ok := d.queues[key]; ok {
		return handle
	}

	handle, _ := d.create(hal.ObjectTypeQueue, key)
	d.queues[key] = handle
	return handle
}

// QueueSubmit executes the submitted command buffers immediately. Buffer copies and fills act on
// the bound memory; every other command is only validated. Signal semaphores and the fence are
// signaled before it returns.
func (d *Device) QueueSubmit(queue hal.Handle, submits []hal.SubmitInfo, fence hal.Handle) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("QueueSubmit"); res != core1_0.VKSuccess {
		return res
	}

	if _, ok := d.lookup(hal.ObjectTypeQueue, queue); !ok {
		d.violation("QueueSubmit: %s is not a queue", queue)
		return vkerr.ResultErrorValidationFailed
	}

	var fenceObj *object
	if !fence.IsNull() {
		obj, ok := d.lookup(hal.ObjectTypeFence, fence)
		if !ok {
			d.violation("QueueSubmit: %s is not a live fence", fence)
			return vkerr.ResultErrorValidationFailed
		}
		if obj.signaled {
			d.violation("QueueSubmit: %s is already signaled", fence)
		}
		fenceObj = obj
	}

	for _, submit := range submits {
		for _, handle := range submit.CommandBuffers {
			cb, ok := d.commandBufferLocked("QueueSubmit", handle)
			if !ok {
				return vkerr.ResultErrorValidationFailed
			}
			if cb.state != CommandBufferExecutable {
				d.violation("QueueSubmit: %s is not executable", handle)
				return vkerr.ResultErrorValidationFailed
			}
			if cb.level != hal.CommandBufferLevelPrimary {
				d.violation("QueueSubmit: %s is a secondary command buffer", handle)
				return vkerr.ResultErrorValidationFailed
			}

			d.execute(cb)
		}

		for i, semaphore := range submit.SignalSemaphores {
			obj, ok := d.lookup(hal.ObjectTypeSemaphore, semaphore)
			if !ok {
				d.violation("QueueSubmit: %s is not a live semaphore", semaphore)
				continue
			}
			if obj.timeline && i < len(submit.SignalValues) {
				obj.value = submit.SignalValues[i]
			} else {
				obj.value = 1
			}
		}

		d.submissions = append(d.submissions, submit)
	}

	if fenceObj != nil {
		fenceObj.signaled = true
	}

	return core1_0.VKSuccess
}

func (d *Device) execute(cb *commandBuffer) {
	for _, command := range cb.commands {
		switch command.Name {
		case "CmdCopyBuffer":
			src, _ := d.bufferBytes(Arg[hal.Handle](command, 0))
			dst, _ := d.bufferBytes(Arg[hal.Handle](command, 1))
			for _, region := range Arg[[]hal.BufferCopy](command, 2) {
				if region.SrcOffset+region.Size > len(src) || region.DstOffset+region.Size > len(dst) {
					d.violation("CmdCopyBuffer: region %+v is outside the bound memory", region)
					continue
				}
				copy(dst[region.DstOffset:region.DstOffset+region.Size], src[region.SrcOffset:region.SrcOffset+region.Size])
			}
		case "CmdFillBuffer":
			dst, _ := d.bufferBytes(Arg[hal.Handle](command, 0))
			offset, size, data := Arg[int](command, 1), Arg[int](command, 2), Arg[uint32](command, 3)
			if offset+size > len(dst) {
				d.violation("CmdFillBuffer: [%d, %d) is outside the bound memory", offset, offset+size)
				continue
			}
			for i := offset; i+4 <= offset+size; i += 4 {
				binary.LittleEndian.PutUint32(dst[i:], data)
			}
		case "CmdExecuteCommands":
			for _, handle := range Arg[[]hal.Handle](command, 0) {
				if secondary, ok := d.commandBufferLocked("CmdExecuteCommands", handle); ok {
					d.execute(secondary)
				}
			}
		}
	}
}

// Submissions returns every submit executed so far, in order
func (d *Device) Submissions() []hal.SubmitInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]hal.SubmitInfo(nil), d.submissions...)
}

func (d *Device) QueueWaitIdle(queue hal.Handle) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.enter("QueueWaitIdle")
}

func (d *Device) DeviceWaitIdle() common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.enter("DeviceWaitIdle")
}

// WaitForFences never blocks: submissions complete synchronously, so a fence that is not signaled
// yet never will be and the wait times out immediately
func (d *Device) WaitForFences(fences []hal.Handle, waitAll bool, timeout time.Duration) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("WaitForFences"); res != core1_0.VKSuccess {
		return res
	}

	signaled := 0
	for _, fence := range fences {
		obj, ok := d.lookup(hal.ObjectTypeFence, fence)
		if !ok {
			d.violation("WaitForFences: %s is not a live fence", fence)
			return vkerr.ResultErrorValidationFailed
		}
		if obj.signaled {
			signaled++
		}
	}

	if signaled == len(fences) || (!waitAll && signaled > 0) {
		return core1_0.VKSuccess
	}

	return core1_0.VKTimeout
}

func (d *Device) ResetFences(fences []hal.Handle) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("ResetFences"); res != core1_0.VKSuccess {
		return res
	}

	for _, fence := range fences {
		obj, ok := d.lookup(hal.ObjectTypeFence, fence)
		if !ok {
			d.violation("ResetFences: %s is not a live fence", fence)
			return vkerr.ResultErrorValidationFailed
		}
		obj.signaled = false
	}

	return core1_0.VKSuccess
}

func (d *Device) FenceStatus(fence hal.Handle) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("FenceStatus"); res != core1_0.VKSuccess {
		return res
	}

	obj, ok := d.lookup(hal.ObjectTypeFence, fence)
	if !ok {
		d.violation("FenceStatus: %s is not a live fence", fence)
		return vkerr.ResultErrorValidationFailed
	}
	if obj.signaled {
		return core1_0.VKSuccess
	}

	return core1_0.VKNotReady
}

// SignalFence signals a fence from the host, as if a submission that used it had completed
func (d *Device) SignalFence(fence hal.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if obj, ok := d.lookup(hal.ObjectTypeFence, fence); ok {
		obj.signaled = true
	}
}

func (d *Device) WaitSemaphores(semaphores []hal.Handle, values []uint64, waitAll bool, timeout time.Duration) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("WaitSemaphores"); res != core1_0.VKSuccess {
		return res
	}
	if len(values) != len(semaphores) {
		d.violation("WaitSemaphores: %d semaphores but %d values", len(semaphores), len(values))
		return vkerr.ResultErrorValidationFailed
	}

	reached := 0
	for i, semaphore := range semaphores {
		obj, ok := d.lookup(hal.ObjectTypeSemaphore, semaphore)
		if !ok || !obj.timeline {
			d.violation("WaitSemaphores: %s is not a live timeline semaphore", semaphore)
			return vkerr.ResultErrorValidationFailed
		}
		if obj.value >= values[i] {
			reached++
		}
	}

	if reached == len(semaphores) || (!waitAll && reached > 0) {
		return core1_0.VKSuccess
	}

	return core1_0.VKTimeout
}

func (d *Device) SignalSemaphore(semaphore hal.Handle, value uint64) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("SignalSemaphore"); res != core1_0.VKSuccess {
		return res
	}

	obj, ok := d.lookup(hal.ObjectTypeSemaphore, semaphore)
	if !ok || !obj.timeline {
		d.violation("SignalSemaphore: %s is not a live timeline semaphore", semaphore)
		return vkerr.ResultErrorValidationFailed
	}
	if value <= obj.value {
		d.violation("SignalSemaphore: value %d does not advance %s past %d", value, semaphore, obj.value)
		return vkerr.ResultErrorValidationFailed
	}

	obj.value = value
	return core1_0.VKSuccess
}

// SemaphoreValue returns the current counter of a semaphore
func (d *Device) SemaphoreValue(semaphore hal.Handle) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypeSemaphore, semaphore)
	if !ok {
		return 0
	}

	return obj.value
}
