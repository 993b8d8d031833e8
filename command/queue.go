package command

import (
	"sync"

	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// SemaphoreWait makes a submission wait for a semaphore before Stage. Value is used by
// timeline semaphores only.
type SemaphoreWait struct {
	Semaphore hal.Handle
	Value     uint64
	Stage     hal.PipelineStageFlags
}

// SemaphoreSignal signals a semaphore when a submission completes. Value is used by timeline
// semaphores only.
type SemaphoreSignal struct {
	Semaphore hal.Handle
	Value     uint64
}

// Submission is one batch of executable primary recorders
type Submission struct {
	Wait      []SemaphoreWait
	Recorders []*Recorder
	Signal    []SemaphoreSignal
}

type inFlight struct {
	fence     hal.Handle
	recorders []*Recorder
}

// Queue submits recorders to one driver queue and tracks them until they complete. It is safe
// for concurrent use.
type Queue struct {
	device hal.Device
	handle hal.Handle
	family int
	index  int

	mu       sync.Mutex
	inFlight []inFlight
}

// NewQueue wraps queue index of queue family family
func NewQueue(device hal.Device, family, index int) *Queue {
	return &Queue{
		device: device,
		handle: device.GetQueue(family, index),
		family: family,
		index:  index,
	}
}

func (q *Queue) Handle() hal.Handle { return q.handle }

func (q *Queue) Family() int { return q.family }

func (q *Queue) Index() int { return q.index }

// Pending returns the number of submitted recorders not yet seen to complete
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, flight := range q.inFlight {
		count += len(flight.recorders)
	}
	return count
}

func (q *Queue) check(rec *Recorder) error {
	if rec.handle.IsNull() {
		return vkerr.New(vkerr.ValidationError, "a freed command buffer cannot be submitted")
	}
	if rec.level != hal.CommandBufferLevelPrimary {
		return vkerr.New(vkerr.ValidationError, "secondary command buffer %s cannot be submitted", rec.handle)
	}
	if rec.pool.family != q.family {
		return vkerr.New(vkerr.ValidationError, "command buffer %s was recorded for family %d, not %d", rec.handle, rec.pool.family, q.family)
	}

	switch rec.state {
	case StateExecutable:
		return nil
	case StatePending:
		if rec.usage&hal.CommandBufferUsageSimultaneousUse != 0 {
			return nil
		}
	}
	return vkerr.New(vkerr.ValidationError, "command buffer %s cannot be submitted while %s", rec.handle, rec.state)
}

// Submit submits every submission with a single driver call. fence, if not null, is signaled
// when they all complete; recorders submitted without a fence stay pending until WaitIdle.
func (q *Queue) Submit(fence hal.Handle, submissions ...Submission) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	infos := make([]hal.SubmitInfo, len(submissions))
	var recorders []*Recorder
	for i, submission := range submissions {
		info := hal.SubmitInfo{}
		for _, wait := range submission.Wait {
			info.WaitSemaphores = append(info.WaitSemaphores, wait.Semaphore)
			info.WaitValues = append(info.WaitValues, wait.Value)
			info.WaitDstStageMask = append(info.WaitDstStageMask, wait.Stage)
		}
		for _, rec := range submission.Recorders {
			err := q.check(rec)
			if err != nil {
				return err
			}
			info.CommandBuffers = append(info.CommandBuffers, rec.handle)
			recorders = append(recorders, rec)
		}
		for _, signal := range submission.Signal {
			info.SignalSemaphores = append(info.SignalSemaphores, signal.Semaphore)
			info.SignalValues = append(info.SignalValues, signal.Value)
		}
		infos[i] = info
	}

	res := q.device.QueueSubmit(q.handle, infos, fence)
	err := vkerr.FromResultf(res, "failed to submit %d batches to queue %d of family %d", len(infos), q.index, q.family)
	if err != nil {
		return err
	}

	for _, rec := range recorders {
		rec.state = StatePending
		rec.pending++
	}
	q.inFlight = append(q.inFlight, inFlight{fence: fence, recorders: recorders})
	return nil
}

// Poll completes every submission whose fence has signaled and returns how many recorders
// completed
func (q *Queue) Poll() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	completed := 0
	remaining := q.inFlight[:0]
	for i, flight := range q.inFlight {
		if flight.fence.IsNull() {
			remaining = append(remaining, flight)
			continue
		}

		res := q.device.FenceStatus(flight.fence)
		if res == core1_0.VKNotReady {
			remaining = append(remaining, flight)
			continue
		}
		err := vkerr.FromResultf(res, "failed to read the status of fence %s", flight.fence)
		if err != nil {
			q.inFlight = append(remaining, q.inFlight[i:]...)
			return completed, err
		}

		for _, rec := range flight.recorders {
			rec.complete()
		}
		completed += len(flight.recorders)
	}

	q.inFlight = remaining
	return completed, nil
}

// WaitIdle waits for the queue to drain and completes every submission
func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	res := q.device.QueueWaitIdle(q.handle)
	err := vkerr.FromResultf(res, "failed to wait for queue %d of family %d", q.index, q.family)
	if err != nil {
		return err
	}

	for _, flight := range q.inFlight {
		for _, rec := range flight.recorders {
			rec.complete()
		}
	}
	q.inFlight = nil
	return nil
}
