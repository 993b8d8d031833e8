package command

import (
	"cmp"
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slices"
)

// SingleTimeTimeout bounds how long SingleTime waits for its submission
var SingleTimeTimeout = 10 * time.Second

// Pool allocates recorders for one queue family. Like the driver pool it wraps, it must not be
// used from more than one goroutine at a time.
type Pool struct {
	logger  *slog.Logger
	factory *resource.Factory
	handle  hal.Handle
	name    string
	family  int
	flags   hal.CommandPoolCreateFlags

	recorders *swiss.Map[hal.Handle, *Recorder]
}

// NewPool creates a command pool for queue family family
func NewPool(logger *slog.Logger, factory *resource.Factory, name string, family int, flags hal.CommandPoolCreateFlags) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	handle, res := factory.Device().CreateCommandPool(hal.CommandPoolCreateInfo{
		Flags:            flags,
		QueueFamilyIndex: family,
	}, nil)
	err := vkerr.FromResultf(res, "failed to create command pool %q", name)
	if err != nil {
		return nil, err
	}

	pool := &Pool{
		logger:    logger,
		factory:   factory,
		handle:    handle,
		name:      name,
		family:    family,
		flags:     flags,
		recorders: swiss.NewMap[hal.Handle, *Recorder](8),
	}
	factory.Track(pool.Object(), name)

	pool.debugLog("Pool::New", slog.String("name", name), slog.Int("family", family))
	return pool, nil
}

func (p *Pool) debugLog(msg string, attrs ...slog.Attr) {
	p.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func (p *Pool) Handle() hal.Handle { return p.handle }

func (p *Pool) Object() hal.Object { return hal.NewObject(hal.ObjectTypeCommandPool, p.handle) }

func (p *Pool) Name() string { return p.name }

// Family returns the queue family the pool's recorders may be submitted to
func (p *Pool) Family() int { return p.family }

func (p *Pool) Flags() hal.CommandPoolCreateFlags { return p.flags }

// Live returns the number of recorders allocated from the pool and not yet freed
func (p *Pool) Live() int { return p.recorders.Count() }

// Resettable returns true if the pool's recorders can be reset one at a time
func (p *Pool) Resettable() bool {
	return p.flags&hal.CommandPoolCreateResetCommandBuffer != 0
}

// Allocate allocates count recorders of the given level
func (p *Pool) Allocate(level hal.CommandBufferLevel, count int) ([]*Recorder, error) {
	if p.handle.IsNull() {
		return nil, vkerr.New(vkerr.ValidationError, "command pool %q has been destroyed", p.name)
	}
	if count < 1 {
		return nil, vkerr.New(vkerr.ValidationError, "cannot allocate %d command buffers", count)
	}

	handles, res := p.factory.Device().AllocateCommandBuffers(hal.CommandBufferAllocateInfo{
		CommandPool: p.handle,
		Level:       level,
		Count:       count,
	})
	err := vkerr.FromResultf(res, "failed to allocate %d command buffers from pool %q", count, p.name)
	if err != nil {
		return nil, err
	}

	recorders := make([]*Recorder, len(handles))
	for i, handle := range handles {
		recorders[i] = newRecorder(p, handle, level)
		p.recorders.Put(handle, recorders[i])
	}

	p.debugLog("Pool::Allocate", slog.String("pool", p.name), slog.Int("count", count))
	return recorders, nil
}

// AllocatePrimary allocates one primary recorder
func (p *Pool) AllocatePrimary() (*Recorder, error) {
	recorders, err := p.Allocate(hal.CommandBufferLevelPrimary, 1)
	if err != nil {
		return nil, err
	}
	return recorders[0], nil
}

// AllocateSecondary allocates one secondary recorder
func (p *Pool) AllocateSecondary() (*Recorder, error) {
	recorders, err := p.Allocate(hal.CommandBufferLevelSecondary, 1)
	if err != nil {
		return nil, err
	}
	return recorders[0], nil
}

// Free returns recorders to the pool. A pending recorder cannot be freed.
func (p *Pool) Free(recorders ...*Recorder) error {
	handles := make([]hal.Handle, 0, len(recorders))
	for _, rec := range recorders {
		if rec.pool != p || rec.handle.IsNull() {
			return vkerr.New(vkerr.ValidationError, "command buffer %s was not allocated from pool %q", rec.handle, p.name)
		}
		if rec.state == StatePending {
			return vkerr.New(vkerr.ValidationError, "command buffer %s is pending execution", rec.handle)
		}
		handles = append(handles, rec.handle)
	}

	p.factory.Device().FreeCommandBuffers(p.handle, handles)
	for _, rec := range recorders {
		p.recorders.Delete(rec.handle)
		rec.release()
		rec.handle = hal.NullHandle
	}
	return nil
}

// Borrowing returns the recorders whose current recording references object, ordered by
// handle. An object must not be destroyed while any recorder borrows it.
func (p *Pool) Borrowing(object hal.Object) []*Recorder {
	var borrowing []*Recorder
	p.recorders.Iter(func(_ hal.Handle, rec *Recorder) bool {
		if rec.Borrows(object) {
			borrowing = append(borrowing, rec)
		}
		return false
	})

	slices.SortFunc(borrowing, func(a, b *Recorder) int { return cmp.Compare(a.handle, b.handle) })
	return borrowing
}

// SingleTime records commands with record into a one-time recorder, submits it to queue, and
// waits for it to finish. The recorder is freed before SingleTime returns, whether or not
// recording succeeded.
func (p *Pool) SingleTime(queue *Queue, record func(rec *Recorder) error) (err error) {
	if queue.Family() != p.family {
		return vkerr.New(vkerr.ValidationError, "pool %q records for family %d, not the queue's family %d", p.name, p.family, queue.Family())
	}

	rec, err := p.AllocatePrimary()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, p.Free(rec))
	}()

	err = rec.Begin(hal.CommandBufferUsageOneTimeSubmit)
	if err != nil {
		return err
	}

	recordErr := record(rec)
	err = rec.End()
	if recordErr != nil {
		return recordErr
	}
	if err != nil {
		return err
	}

	device := p.factory.Device()
	fence, res := device.CreateFence(hal.FenceCreateInfo{}, nil)
	err = vkerr.FromResultf(res, "failed to create single-time fence")
	if err != nil {
		return err
	}
	defer device.Destroy(hal.NewObject(hal.ObjectTypeFence, fence), nil)

	err = queue.Submit(fence, Submission{Recorders: []*Recorder{rec}})
	if err != nil {
		return err
	}

	res = device.WaitForFences([]hal.Handle{fence}, true, SingleTimeTimeout)
	err = vkerr.FromResultf(res, "failed to wait for single-time submission")
	if err != nil {
		return err
	}
	if res == core1_0.VKTimeout {
		return vkerr.New(vkerr.Unknown, "single-time submission did not finish within %s", SingleTimeTimeout)
	}

	_, err = queue.Poll()
	return err
}

// Destroy frees every recorder and destroys the pool. It fails if any recorder is pending.
func (p *Pool) Destroy() error {
	if p.handle.IsNull() {
		return nil
	}

	var pending []hal.Handle
	p.recorders.Iter(func(handle hal.Handle, rec *Recorder) bool {
		if rec.state == StatePending {
			pending = append(pending, handle)
		}
		return false
	})
	if len(pending) > 0 {
		return vkerr.New(vkerr.ValidationError, "command pool %q has %d pending command buffers", p.name, len(pending))
	}

	p.recorders.Iter(func(_ hal.Handle, rec *Recorder) bool {
		rec.release()
		rec.handle = hal.NullHandle
		return false
	})
	p.recorders = swiss.NewMap[hal.Handle, *Recorder](8)

	p.factory.DestroyObject(p.Object())
	p.handle = hal.NullHandle
	return nil
}
