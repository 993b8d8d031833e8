package device

import (
	"time"

	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// WaitResult is the outcome of a wait that did not fail
type WaitResult int

const (
	WaitCompleted WaitResult = iota
	WaitTimedOut
)

var waitResultMapping = map[WaitResult]string{
	WaitCompleted: "WaitCompleted",
	WaitTimedOut:  "WaitTimedOut",
}

func (r WaitResult) String() string {
	return waitResultMapping[r]
}

func waitResult(res common.VkResult, format string, args ...any) (WaitResult, error) {
	if res == core1_0.VKTimeout {
		return WaitTimedOut, nil
	}

	err := vkerr.FromResultf(res, format, args...)
	if err != nil {
		return WaitCompleted, err
	}
	return WaitCompleted, nil
}

// CreateFence creates a fence, optionally already signaled
func (d *Device) CreateFence(name string, signaled bool) (hal.Handle, error) {
	handle, res := d.driver.CreateFence(hal.FenceCreateInfo{Signaled: signaled}, nil)
	err := vkerr.FromResultf(res, "failed to create fence %q", name)
	if err != nil {
		return hal.NullHandle, err
	}

	d.Track(hal.NewObject(hal.ObjectTypeFence, handle), name)
	return handle, nil
}

// WaitFences waits until every fence is signaled, or any of them when waitAll is false. A
// timeout of hal.WaitTimeoutInfinite never times out; a timeout of zero polls.
func (d *Device) WaitFences(fences []hal.Handle, waitAll bool, timeout time.Duration) (WaitResult, error) {
	if len(fences) == 0 {
		return WaitCompleted, nil
	}

	res := d.driver.WaitForFences(fences, waitAll, timeout)
	return waitResult(res, "failed to wait for %d fences", len(fences))
}

func (d *Device) ResetFences(fences ...hal.Handle) error {
	if len(fences) == 0 {
		return nil
	}

	res := d.driver.ResetFences(fences)
	return vkerr.FromResultf(res, "failed to reset %d fences", len(fences))
}

// FenceSignaled returns true if fence is signaled, without waiting
func (d *Device) FenceSignaled(fence hal.Handle) (bool, error) {
	res := d.driver.FenceStatus(fence)
	if res == core1_0.VKNotReady {
		return false, nil
	}

	err := vkerr.FromResultf(res, "failed to read the status of fence %s", fence)
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateSemaphore creates a binary semaphore
func (d *Device) CreateSemaphore(name string) (hal.Handle, error) {
	return d.createSemaphore(name, hal.SemaphoreCreateInfo{})
}

// CreateTimelineSemaphore creates a timeline semaphore whose counter starts at initialValue
func (d *Device) CreateTimelineSemaphore(name string, initialValue uint64) (hal.Handle, error) {
	return d.createSemaphore(name, hal.SemaphoreCreateInfo{Timeline: true, InitialValue: initialValue})
}

func (d *Device) createSemaphore(name string, info hal.SemaphoreCreateInfo) (hal.Handle, error) {
	handle, res := d.driver.CreateSemaphore(info, nil)
	err := vkerr.FromResultf(res, "failed to create semaphore %q", name)
	if err != nil {
		return hal.NullHandle, err
	}

	if info.Timeline {
		d.mu.Lock()
		d.timelines.Put(handle, struct{}{})
		d.mu.Unlock()
	}
	d.Track(hal.NewObject(hal.ObjectTypeSemaphore, handle), name)
	return handle, nil
}

func (d *Device) requireTimeline(semaphores ...hal.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, semaphore := range semaphores {
		if !d.timelines.Has(semaphore) {
			return vkerr.New(vkerr.ValidationError, "semaphore %s is not a timeline semaphore", semaphore)
		}
	}
	return nil
}

// WaitSemaphores waits until every timeline semaphore reaches the value at the same index, or
// any of them when waitAll is false
func (d *Device) WaitSemaphores(semaphores []hal.Handle, values []uint64, waitAll bool, timeout time.Duration) (WaitResult, error) {
	if len(semaphores) != len(values) {
		return WaitCompleted, vkerr.New(vkerr.ValidationError, "%d semaphores were waited on with %d values", len(semaphores), len(values))
	}
	if len(semaphores) == 0 {
		return WaitCompleted, nil
	}
	err := d.requireTimeline(semaphores...)
	if err != nil {
		return WaitCompleted, err
	}

	res := d.driver.WaitSemaphores(semaphores, values, waitAll, timeout)
	return waitResult(res, "failed to wait for %d semaphores", len(semaphores))
}

// SignalSemaphore sets a timeline semaphore's counter from the host
func (d *Device) SignalSemaphore(semaphore hal.Handle, value uint64) error {
	err := d.requireTimeline(semaphore)
	if err != nil {
		return err
	}

	res := d.driver.SignalSemaphore(semaphore, value)
	return vkerr.FromResultf(res, "failed to signal semaphore %s to %d", semaphore, value)
}
