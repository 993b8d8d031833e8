package vam

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/memutils/defrag"
	"github.com/vkngwrapper/armory/vam/internal/vulkan"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// TransferRecorder receives the copies of a GPU defragmentation pass. command.Recorder satisfies
// it; the caller submits the recording and waits for it before calling Continue or End.
type TransferRecorder interface {
	CopyBuffer(src, dst hal.Handle, regions []hal.BufferCopy)
}

// DefragmentOptions controls a defragmentation run
type DefragmentOptions struct {
	// Algorithm selects the defragmentation algorithm. Zero means defrag.AlgorithmFull.
	Algorithm defrag.Algorithm
	// Incremental splits the run into passes bounded by MaxBytesPerPass and
	// MaxAllocationsPerPass, each started by Continue. Otherwise a CPU run completes within
	// Begin and a GPU run records a single pass without limits. A pass also stops where a move
	// would land on a range still being vacated by that pass.
	Incremental bool
	// MaxBytesPerPass is the maximum number of bytes to relocate in each pass. Zero means no limit.
	MaxBytesPerPass int
	// MaxAllocationsPerPass is the maximum number of relocations in each pass. Zero means no limit.
	MaxAllocationsPerPass int
}

// DefragmentationStats is the outcome of a defragmentation run
type DefragmentationStats struct {
	defrag.DefragmentationStats
	// Fragmentation is what remains in the defragmented memory types when the run ends: 1 - the
	// largest free range / total free bytes
	Fragmentation float64
}

// DefragmentationContext is a single defragmentation run, created by Allocator.BeginCPUDefragment
// or Allocator.BeginGPUDefragment and finished with End. Only the allocations handed to Begin are
// moved. Once an allocation has moved, its owner must recreate and rebind the buffer or image that
// lived in it.
type DefragmentationContext struct {
	allocator *Allocator
	logger    *slog.Logger
	gpu       bool
	recorder  TransferRecorder
	options   DefragmentOptions

	movable *swiss.Map[*Allocation, int]
	moved   []bool

	contexts []defrag.MetadataDefragContext[Allocation]
	finished []bool
	pending  bool
	ended    bool

	pass  *defrag.PassContext
	stats defrag.DefragmentationStats

	aliasBuffers *swiss.Map[*vulkan.SynchronizedMemory, hal.Handle]
}

// BeginCPUDefragment starts relocating allocs by copying through host mappings. Only allocations
// in host-visible memory are moved; dedicated allocations never are. Unless options.Incremental
// is set, the whole run is performed before this returns.
func (a *Allocator) BeginCPUDefragment(allocs []*Allocation, options DefragmentOptions) (*DefragmentationContext, error) {
	a.debugLog("Allocator::BeginCPUDefragment", slog.Int("count", len(allocs)), slog.Bool("incremental", options.Incremental))

	ctx, err := a.beginDefragment(false, nil, allocs, options)
	if err != nil {
		return nil, err
	}

	if !options.Incremental {
		for {
			done, err := ctx.Continue(nil)
			if err != nil {
				return ctx, err
			}
			if done {
				break
			}
		}
	}

	return ctx, nil
}

// BeginGPUDefragment starts relocating allocs with transfer commands recorded into recorder.
// The allocator creates transfer buffers aliasing every block involved. Nothing is committed
// until the caller has submitted the recording, waited for it, and called Continue or End.
func (a *Allocator) BeginGPUDefragment(recorder TransferRecorder, allocs []*Allocation, options DefragmentOptions) (*DefragmentationContext, error) {
	a.debugLog("Allocator::BeginGPUDefragment", slog.Int("count", len(allocs)), slog.Bool("incremental", options.Incremental))

	if recorder == nil {
		return nil, vkerr.New(vkerr.ValidationError, "a GPU defragmentation requires a transfer recorder")
	}

	ctx, err := a.beginDefragment(true, recorder, allocs, options)
	if err != nil {
		return nil, err
	}

	_, err = ctx.Continue(recorder)
	if err != nil {
		endErr := ctx.End(nil)
		return nil, errors.CombineErrors(err, endErr)
	}

	return ctx, nil
}

func (a *Allocator) beginDefragment(gpu bool, recorder TransferRecorder, allocs []*Allocation, options DefragmentOptions) (*DefragmentationContext, error) {
	if options.MaxBytesPerPass < 0 || options.MaxAllocationsPerPass < 0 {
		return nil, vkerr.New(vkerr.ValidationError, "defragmentation pass limits must not be negative")
	}
	if options.Algorithm != 0 && options.Algorithm != defrag.AlgorithmFast && options.Algorithm != defrag.AlgorithmFull {
		return nil, vkerr.New(vkerr.ValidationError, "unknown defragmentation algorithm %d", options.Algorithm)
	}

	ctx := &DefragmentationContext{
		allocator:    a,
		logger:       a.logger,
		gpu:          gpu,
		recorder:     recorder,
		options:      options,
		movable:      swiss.NewMap[*Allocation, int](uint32(len(allocs))),
		moved:        make([]bool, len(allocs)),
		aliasBuffers: swiss.NewMap[*vulkan.SynchronizedMemory, hal.Handle](8),
	}

	var lists []*memoryBlockList
	for index, alloc := range allocs {
		if alloc == nil || alloc.isFreed() {
			return nil, vkerr.New(vkerr.ValidationError, "allocation %d handed to defragmentation is not live", index)
		}
		if alloc.parentAllocator != a {
			return nil, vkerr.New(vkerr.ValidationError, "allocation %d handed to defragmentation belongs to a different allocator", index)
		}
		if alloc.allocationType != allocationTypeBlock {
			continue
		}
		if !gpu && !a.deviceMemory.IsMemoryTypeHostVisible(alloc.memoryTypeIndex) {
			continue
		}

		ctx.movable.Put(alloc, index)

		list := alloc.blockData.block.parent
		found := false
		for _, existing := range lists {
			if existing == list {
				found = true
				break
			}
		}
		if !found {
			lists = append(lists, list)
		}
	}

	a.defragMutex.Lock()
	defer a.defragMutex.Unlock()

	if a.activeDefrag != nil {
		return nil, vkerr.New(vkerr.ValidationError, "a defragmentation is already running on this allocator")
	}

	ctx.contexts = make([]defrag.MetadataDefragContext[Allocation], len(lists))
	ctx.finished = make([]bool, len(lists))
	for index, list := range lists {
		list.SortByFreeSize()

		ctx.contexts[index] = defrag.MetadataDefragContext[Allocation]{
			Algorithm: options.Algorithm,
			Handler:   ctx.completeMove,
			BlockList: list,
		}
		err := ctx.contexts[index].Init()
		if err != nil {
			return nil, vkerr.Wrap(vkerr.ValidationError, err, "memory type %d cannot be defragmented", list.memoryTypeIndex)
		}
	}

	a.activeDefrag = ctx
	return ctx, nil
}

func (c *DefragmentationContext) isMovable(alloc *Allocation) bool {
	return c.movable.Has(alloc)
}

// Moved reports, per allocation handed to Begin, whether it has been relocated
func (c *DefragmentationContext) Moved() []bool {
	return c.moved
}

// Stats returns the statistics of the passes completed so far
func (c *DefragmentationContext) Stats() defrag.DefragmentationStats {
	return c.stats
}

func (c *DefragmentationContext) newPass() *defrag.PassContext {
	if !c.options.Incremental {
		return defrag.NewPassContext(0, 0)
	}

	return defrag.NewPassContext(c.options.MaxBytesPerPass, c.options.MaxAllocationsPerPass)
}

// Continue commits the previous pass and starts the next one. A GPU run records the next pass
// into recorder, or into the recorder given to Begin if it is nil. It returns true when the run
// has nothing left to move, after which only End should be called.
func (c *DefragmentationContext) Continue(recorder TransferRecorder) (bool, error) {
	c.logger.Debug("DefragmentationContext::Continue")

	if c.ended {
		return true, vkerr.New(vkerr.ValidationError, "attempted to continue a defragmentation that has ended")
	}
	if recorder != nil {
		c.recorder = recorder
	}

	if c.pending {
		movedAny, err := c.completePass()
		if err != nil {
			return false, err
		}

		if (c.gpu && !c.options.Incremental) || !movedAny {
			c.finishAll()
			return true, nil
		}
	}

	if c.allFinished() {
		return true, nil
	}

	c.pass = c.newPass()
	hasMoves := c.collectMoves()
	if !hasMoves {
		c.finishAll()
		return true, nil
	}
	c.pending = true

	if c.gpu {
		err := c.recordCopies()
		if err != nil {
			return false, err
		}
		return false, nil
	}

	c.copyMoves()
	movedAny, err := c.completePass()
	if err != nil {
		return false, err
	}
	if !movedAny {
		c.finishAll()
		return true, nil
	}

	return false, nil
}

func (c *DefragmentationContext) allFinished() bool {
	for _, finished := range c.finished {
		if !finished {
			return false
		}
	}
	return true
}

func (c *DefragmentationContext) finishAll() {
	for index := range c.finished {
		c.finished[index] = true
	}
}

// collectMoves plans one pass across the unfinished block lists, stopping at the first list
// whose pass stops early
func (c *DefragmentationContext) collectMoves() bool {
	hasMoves := false
	for index := range c.contexts {
		if c.finished[index] {
			continue
		}

		stopped := c.contexts[index].BlockListCollectMoves(c.pass)
		if len(c.contexts[index].Moves()) > 0 {
			hasMoves = true
		} else if !stopped {
			c.finished[index] = true
		}

		if stopped {
			break
		}
	}

	return hasMoves
}

// copyMoves copies the data of every collected move through host mappings. A move whose memory
// cannot be mapped is ignored.
func (c *DefragmentationContext) copyMoves() {
	for index := range c.contexts {
		moves := c.contexts[index].Moves()
		for moveIndex := range moves {
			err := copyAllocationData(moves[moveIndex].SrcAllocation, moves[moveIndex].DstTmpAllocation, moves[moveIndex].Size)
			if err != nil {
				c.logger.Debug("    DefragmentationContext ignoring move", slog.String("error", err.Error()))
				moves[moveIndex].MoveOperation = defrag.DefragmentationMoveIgnore
			}
		}
	}
}

func copyAllocationData(src, dst *Allocation, size int) (err error) {
	srcData, err := src.memory.Map(1)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, src.memory.Unmap(1))
	}()

	dstData, err := dst.memory.Map(1)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, dst.memory.Unmap(1))
	}()

	err = src.flushOrInvalidate(0, WholeSize, vulkan.CacheOperationInvalidate)
	if err != nil {
		return err
	}

	srcBytes := unsafe.Slice((*byte)(unsafe.Add(srcData, src.Offset())), size)
	dstBytes := unsafe.Slice((*byte)(unsafe.Add(dstData, dst.Offset())), size)
	copy(dstBytes, srcBytes)

	return dst.flushOrInvalidate(0, WholeSize, vulkan.CacheOperationFlush)
}

func (c *DefragmentationContext) aliasBuffer(memory *vulkan.SynchronizedMemory) (hal.Handle, error) {
	buffer, ok := c.aliasBuffers.Get(memory)
	if ok {
		return buffer, nil
	}

	device := c.allocator.device
	buffer, res := device.CreateBuffer(hal.BufferCreateInfo{
		Size:        memory.Size(),
		Usage:       core1_0.BufferUsageTransferSrc | core1_0.BufferUsageTransferDst,
		SharingMode: core1_0.SharingModeExclusive,
	}, c.allocator.allocationCallbacks)
	err := vkerr.FromResultf(res, "failed to create a defragmentation buffer aliasing memory %s", memory.Handle())
	if err != nil {
		return hal.NullHandle, err
	}

	err = memory.BindBuffer(0, buffer)
	if err != nil {
		device.Destroy(hal.NewObject(hal.ObjectTypeBuffer, buffer), c.allocator.allocationCallbacks)
		return hal.NullHandle, err
	}

	c.aliasBuffers.Put(memory, buffer)
	return buffer, nil
}

// recordCopies records one buffer copy per move, between buffers aliasing the source and
// destination blocks
func (c *DefragmentationContext) recordCopies() error {
	for index := range c.contexts {
		moves := c.contexts[index].Moves()
		for moveIndex := range moves {
			move := &moves[moveIndex]

			srcBuffer, err := c.aliasBuffer(move.SrcAllocation.memory)
			if err != nil {
				move.MoveOperation = defrag.DefragmentationMoveIgnore
				return err
			}
			dstBuffer, err := c.aliasBuffer(move.DstTmpAllocation.memory)
			if err != nil {
				move.MoveOperation = defrag.DefragmentationMoveIgnore
				return err
			}

			c.recorder.CopyBuffer(srcBuffer, dstBuffer, []hal.BufferCopy{{
				SrcOffset: move.SrcAllocation.Offset(),
				DstOffset: move.DstTmpAllocation.Offset(),
				Size:      move.Size,
			}})
		}
	}

	return nil
}

// completePass commits the pending moves of every block list. It reports whether any allocation
// actually moved.
func (c *DefragmentationContext) completePass() (bool, error) {
	c.pending = false

	var allErrors []error
	for index := range c.contexts {
		if len(c.contexts[index].Moves()) == 0 {
			continue
		}

		err := c.contexts[index].BlockListCompletePass(c.pass)
		if err != nil {
			allErrors = append(allErrors, err)
		}
	}

	c.stats.Add(c.pass.Stats)
	movedAny := c.pass.Stats.AllocationsMoved > 0

	c.logger.Debug("    DefragmentationContext pass complete",
		slog.Int("bytesMoved", c.pass.Stats.BytesMoved),
		slog.Int("allocationsMoved", c.pass.Stats.AllocationsMoved),
		slog.Int("blocksFreed", c.pass.Stats.DeviceMemoryBlocksFreed))

	return movedAny, errors.Join(allErrors...)
}

func (c *DefragmentationContext) completeMove(move defrag.DefragmentationMove[Allocation]) error {
	src, tmp := move.SrcAllocation, move.DstTmpAllocation

	switch move.MoveOperation {
	case defrag.DefragmentationMoveCopy:
		err := src.swapBlockAllocation(tmp)
		if err != nil {
			return errors.CombineErrors(err, c.freeTemporary(tmp))
		}

		index, ok := c.movable.Get(src)
		if ok {
			c.moved[index] = true
		}

	case defrag.DefragmentationMoveDestroy:
		err := c.allocator.Free(src)
		if err != nil {
			return errors.CombineErrors(err, c.freeTemporary(tmp))
		}
	}

	return c.freeTemporary(tmp)
}

func (c *DefragmentationContext) freeTemporary(tmp *Allocation) error {
	err := tmp.blockData.block.parent.Free(tmp, true)
	if err != nil {
		return err
	}

	tmp.markFreed()
	return nil
}

// End finishes the run. A GPU run commits its last recorded pass, so the caller must have waited
// for that submission. The alias buffers of a GPU run are destroyed. If stats is not nil it
// receives the statistics of the whole run.
func (c *DefragmentationContext) End(stats *DefragmentationStats) error {
	c.logger.Debug("DefragmentationContext::End")

	if c.ended {
		return vkerr.New(vkerr.ValidationError, "attempted to end a defragmentation that has already ended")
	}

	var err error
	if c.pending {
		_, err = c.completePass()
	}

	c.aliasBuffers.Iter(func(memory *vulkan.SynchronizedMemory, buffer hal.Handle) bool {
		c.allocator.device.Destroy(hal.NewObject(hal.ObjectTypeBuffer, buffer), c.allocator.allocationCallbacks)
		return false
	})
	c.aliasBuffers = swiss.NewMap[*vulkan.SynchronizedMemory, hal.Handle](8)

	if stats != nil {
		detailed := memutils.DetailedStatistics{}
		detailed.Clear()
		for index := range c.contexts {
			c.contexts[index].BlockList.(*memoryBlockList).AddDetailedStatistics(&detailed)
		}

		stats.DefragmentationStats = c.stats
		stats.Fragmentation = detailed.Fragmentation()
	}

	c.ended = true

	c.allocator.defragMutex.Lock()
	if c.allocator.activeDefrag == c {
		c.allocator.activeDefrag = nil
	}
	c.allocator.defragMutex.Unlock()

	return err
}
