package command

import (
	"cmp"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/pipeline"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/transfer"
	"github.com/vkngwrapper/armory/vam"
	"github.com/vkngwrapper/armory/vkerr"
	"golang.org/x/exp/slices"
)

var (
	_ transfer.Recorder                      = (*Recorder)(nil)
	_ transfer.BlitRecorder                  = (*Recorder)(nil)
	_ resource.AccelerationStructureRecorder = (*Recorder)(nil)
	_ vam.TransferRecorder                   = (*Recorder)(nil)
)

// Recorder records one command buffer. Record calls do not return errors: the first failure is
// kept, every later call is dropped, and End reports it. A Recorder must only be used from one
// goroutine at a time; different recorders may record in parallel.
type Recorder struct {
	pool       *Pool
	device     hal.Device
	extensions *hal.ExtensionTable
	handle     hal.Handle
	level      hal.CommandBufferLevel

	state   State
	usage   hal.CommandBufferUsageFlags
	pending int
	err     error

	renderPass *pipeline.RenderPass
	subpass    int
	borrows    *swiss.Map[hal.Object, int]
}

func newRecorder(pool *Pool, handle hal.Handle, level hal.CommandBufferLevel) *Recorder {
	return &Recorder{
		pool:       pool,
		device:     pool.factory.Device(),
		extensions: pool.factory.Extensions(),
		handle:     handle,
		level:      level,
		borrows:    swiss.NewMap[hal.Object, int](16),
	}
}

func (r *Recorder) Handle() hal.Handle { return r.handle }

func (r *Recorder) Object() hal.Object { return hal.NewObject(hal.ObjectTypeCommandBuffer, r.handle) }

func (r *Recorder) Level() hal.CommandBufferLevel { return r.level }

func (r *Recorder) State() State { return r.state }

// Usage returns the flags of the current recording
func (r *Recorder) Usage() hal.CommandBufferUsageFlags { return r.usage }

// Err returns the first failure of the current recording
func (r *Recorder) Err() error { return r.err }

// Begin starts a recording. A recorder that was executable or invalid is reset implicitly,
// which its pool must allow.
func (r *Recorder) Begin(usage hal.CommandBufferUsageFlags) error {
	if r.handle.IsNull() {
		return vkerr.New(vkerr.ValidationError, "the command buffer has been freed")
	}

	switch r.state {
	case StateRecording, StatePending:
		return vkerr.New(vkerr.ValidationError, "command buffer %s cannot begin while %s", r.handle, r.state)
	case StateExecutable, StateInvalid:
		if !r.pool.Resettable() {
			return vkerr.New(vkerr.ValidationError, "command buffer %s is %s and pool %q does not allow resetting it", r.handle, r.state, r.pool.name)
		}
	}

	res := r.device.BeginCommandBuffer(r.handle, usage)
	err := vkerr.FromResultf(res, "failed to begin command buffer %s", r.handle)
	if err != nil {
		return err
	}

	r.release()
	r.usage = usage
	r.state = StateRecording
	return nil
}

// End finishes the recording. It returns the first failure of any record call, in which case
// the recorder is invalid.
func (r *Recorder) End() error {
	if r.state != StateRecording {
		return vkerr.New(vkerr.ValidationError, "command buffer %s cannot end while %s", r.handle, r.state)
	}
	if r.renderPass != nil && r.level == hal.CommandBufferLevelPrimary {
		r.fail(vkerr.New(vkerr.ValidationError, "render pass %q was not ended", r.renderPass.Name()))
	}

	res := r.device.EndCommandBuffer(r.handle)
	if r.err != nil {
		r.state = StateInvalid
		return r.err
	}

	err := vkerr.FromResultf(res, "failed to end command buffer %s", r.handle)
	if err != nil {
		r.err = err
		r.state = StateInvalid
		return err
	}

	r.state = StateExecutable
	return nil
}

// Reset discards the recording and its borrows. With releaseResources the driver also returns
// the buffer's memory to the pool and the recorder becomes invalid; otherwise it is initial.
func (r *Recorder) Reset(releaseResources bool) error {
	if r.state == StatePending {
		return vkerr.New(vkerr.ValidationError, "command buffer %s is pending execution", r.handle)
	}
	if !r.pool.Resettable() {
		return vkerr.New(vkerr.ValidationError, "pool %q does not allow resetting command buffer %s", r.pool.name, r.handle)
	}

	res := r.device.ResetCommandBuffer(r.handle, releaseResources)
	err := vkerr.FromResultf(res, "failed to reset command buffer %s", r.handle)
	if err != nil {
		return err
	}

	r.release()
	r.state = StateInitial
	if releaseResources {
		r.state = StateInvalid
	}
	return nil
}

// release drops everything the current recording holds
func (r *Recorder) release() {
	r.err = nil
	r.usage = 0
	r.renderPass = nil
	r.subpass = 0
	if r.borrows.Count() > 0 {
		r.borrows = swiss.NewMap[hal.Object, int](16)
	}
}

// Borrows returns true if the current recording references object
func (r *Recorder) Borrows(object hal.Object) bool {
	return r.borrows.Has(object)
}

// Borrowed returns every object the current recording references, ordered by type and handle
func (r *Recorder) Borrowed() []hal.Object {
	objects := make([]hal.Object, 0, r.borrows.Count())
	r.borrows.Iter(func(object hal.Object, _ int) bool {
		objects = append(objects, object)
		return false
	})

	slices.SortFunc(objects, func(a, b hal.Object) int {
		if a.Type != b.Type {
			return cmp.Compare(a.Type, b.Type)
		}
		return cmp.Compare(a.Handle, b.Handle)
	})
	return objects
}

func (r *Recorder) borrow(objects ...hal.Object) {
	for _, object := range objects {
		if object.IsNull() {
			continue
		}
		count, _ := r.borrows.Get(object)
		r.borrows.Put(object, count+1)
	}
}

func (r *Recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	if r.state == StateExecutable {
		r.state = StateInvalid
	}
}

// recording returns true if a record call may reach the driver. Outside a recording, or after a
// failure, the call is dropped.
func (r *Recorder) recording(op string) bool {
	if r.state != StateRecording {
		r.fail(vkerr.New(vkerr.ValidationError, "%s was recorded into command buffer %s while %s", op, r.handle, r.state))
		return false
	}

	return r.err == nil
}

func (r *Recorder) insideRenderPass(op string) bool {
	if !r.recording(op) {
		return false
	}
	if r.renderPass == nil && r.usage&hal.CommandBufferUsageRenderPassContinue == 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "%s must be recorded inside a render pass", op))
		return false
	}
	return true
}

func (r *Recorder) outsideRenderPass(op string) bool {
	if !r.recording(op) {
		return false
	}
	if r.renderPass != nil || r.usage&hal.CommandBufferUsageRenderPassContinue != 0 {
		r.fail(vkerr.New(vkerr.ValidationError, "%s must be recorded outside a render pass", op))
		return false
	}
	return true
}

func (r *Recorder) extension(op, name string, available bool) bool {
	if !r.recording(op) {
		return false
	}
	if !available {
		r.fail(vkerr.New(vkerr.ExtensionUnsupported, "%s requires %s", op, name))
		return false
	}
	return true
}

func (r *Recorder) live(op string, object hal.Object, name string) bool {
	if object.IsNull() {
		r.fail(vkerr.New(vkerr.ValidationError, "%s references %s %q after it was destroyed", op, object.Type, name))
		return false
	}
	return true
}

// complete is called by the queue once a submission of this recorder has finished
func (r *Recorder) complete() {
	if r.state != StatePending {
		return
	}

	r.pending--
	if r.pending > 0 {
		return
	}

	r.state = StateExecutable
	if r.usage&hal.CommandBufferUsageOneTimeSubmit != 0 {
		r.state = StateInvalid
	}
}
