package defrag

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/memutils/metadata"
)

// MetadataDefragContext plans and completes the passes of one defragmentation run over a single
// BlockList. A run alternates BlockListCollectMoves, consumer copies, and BlockListCompletePass
// until BlockListCollectMoves finds nothing more to do.
//
// Allocations in the later blocks are first moved into free ranges of the earlier blocks. With
// AlgorithmFull each block is then packed toward offset zero: every allocation is planned straight
// to the offset it takes in the packed layout, so it is copied once per run. The source ranges of
// a pass stay allocated until the pass completes, and no destination of a pass overlaps any of
// its sources, so the copies of a pass may run in any order.
type MetadataDefragContext[T any] struct {
	// Algorithm is the defragmentation algorithm that should be used
	Algorithm Algorithm
	// Handler completes each move during BlockListCompletePass
	Handler DefragmentOperationHandler[T]
	// BlockList is the pool being defragmented
	BlockList BlockList[T]

	moves []DefragmentationMove[T]
	// leaving holds the handles of the allocations of the current block that already have a
	// move planned in this pass
	leaving *swiss.Map[metadata.BlockAllocationHandle, struct{}]
	// The first immovableBlocks blocks are never the source of a move
	immovableBlocks int

	scratchStats memutils.Statistics
}

// Init prepares the context for a fresh run. A context can be reused for several runs as long as
// Init is called before each one.
func (c *MetadataDefragContext[T]) Init() error {
	if c.BlockList == nil {
		panic("attempted to init defragmentation context without a block list")
	}
	if c.Handler == nil {
		panic("attempted to init defragmentation context without a move handler")
	}

	for index := 0; index < c.BlockList.BlockCount(); index++ {
		if !c.BlockList.MetadataForBlock(index).SupportsRandomAccess() {
			return errors.Newf("block %d of the block list does not support random access", index)
		}
	}

	switch c.Algorithm {
	case 0:
		c.Algorithm = AlgorithmFull
	case AlgorithmFast, AlgorithmFull:
	default:
		return errors.Newf("unknown defragmentation algorithm: %s", c.Algorithm)
	}

	c.moves = c.moves[:0]
	c.leaving = swiss.NewMap[metadata.BlockAllocationHandle, struct{}](16)
	c.immovableBlocks = 0
	return nil
}

// Moves returns the relocations most recently collected with BlockListCollectMoves
func (c *MetadataDefragContext[T]) Moves() []DefragmentationMove[T] {
	return c.moves
}

// BlockListCollectMoves plans one pass worth of moves, which can then be read from Moves. It
// returns true if the pass stopped early, either on its limits or because the next allocation's
// packed offset is still covered by a range leaving in this pass. Another pass may then find
// more work to do.
func (c *MetadataDefragContext[T]) BlockListCollectMoves(pass *PassContext) bool {
	c.BlockList.Lock()
	defer c.BlockList.Unlock()

	for blockIndex := c.BlockList.BlockCount() - 1; blockIndex >= c.immovableBlocks; blockIndex-- {
		c.leaving = swiss.NewMap[metadata.BlockAllocationHandle, struct{}](16)

		if blockIndex > 0 && c.evacuateBlock(pass, blockIndex) {
			return true
		}
		if c.Algorithm == AlgorithmFull && c.packBlock(pass, blockIndex) {
			return true
		}
	}

	return false
}

// BlockListCompletePass finishes the moves collected for a pass. The consumer must already have
// copied the data for every DefragmentationMoveCopy move and changed the operation of any move it
// did not perform. Handler is called for each move; its errors are joined and returned. Blocks
// whose moves were ignored are treated as immovable for the rest of the run.
func (c *MetadataDefragContext[T]) BlockListCompletePass(pass *PassContext) error {
	var ignoredSources []metadata.BlockMetadata
	var allErrors []error

	for _, move := range c.moves {
		blocksBefore, bytesBefore := c.blockUsage()

		err := c.Handler(move)
		if err != nil {
			allErrors = append(allErrors, err)
			continue
		}

		blocksAfter, bytesAfter := c.blockUsage()
		pass.Stats.DeviceMemoryBlocksFreed += blocksBefore - blocksAfter
		pass.Stats.BytesFreed += bytesBefore - bytesAfter

		if move.MoveOperation == DefragmentationMoveCopy {
			continue
		}

		pass.Stats.BytesMoved -= move.Size
		pass.Stats.AllocationsMoved--
		if move.MoveOperation == DefragmentationMoveIgnore {
			ignoredSources = append(ignoredSources, move.SrcBlockMetadata)
		}
	}

	for _, block := range ignoredSources {
		c.markImmovable(block)
	}
	c.moves = c.moves[:0]

	return errors.Join(allErrors...)
}

func (c *MetadataDefragContext[T]) blockUsage() (int, int) {
	c.scratchStats = memutils.Statistics{}
	c.BlockList.AddStatistics(&c.scratchStats)
	return c.scratchStats.BlockCount, c.scratchStats.BlockBytes
}

// markImmovable moves the block to the front of the list, past the blocks already known to be
// immovable
func (c *MetadataDefragContext[T]) markImmovable(block metadata.BlockMetadata) {
	c.BlockList.Lock()
	defer c.BlockList.Unlock()

	for index := c.immovableBlocks; index < c.BlockList.BlockCount(); index++ {
		if c.BlockList.MetadataForBlock(index) == block {
			c.BlockList.SwapBlocks(index, c.immovableBlocks)
			c.immovableBlocks++
			return
		}
	}
}

// evacuateBlock moves the allocations of the block at blockIndex into the lowest free ranges of
// the blocks before it. It returns true if the pass limits were reached.
func (c *MetadataDefragContext[T]) evacuateBlock(pass *PassContext, blockIndex int) bool {
	block := c.BlockList.MetadataForBlock(blockIndex)

	for handle := firstAllocation(block); handle != metadata.NoAllocation; handle = nextAllocation(block, handle) {
		moveData, movable := c.moveData(block, handle)
		if !movable {
			continue
		}

		switch pass.checkCounters(moveData.Move.Size) {
		case defragCounterIgnore:
			continue
		case defragCounterEnd:
			return true
		}

		if !c.moveToEarlierBlock(blockIndex, &moveData) {
			continue
		}
		c.leaving.Put(handle, struct{}{})

		if pass.incrementCounters(moveData.Move.Size) {
			return true
		}
	}

	return false
}

func (c *MetadataDefragContext[T]) moveToEarlierBlock(blockIndex int, moveData *MoveAllocationData[T]) bool {
	for dstIndex := 0; dstIndex < blockIndex; dstIndex++ {
		dst := c.BlockList.MetadataForBlock(dstIndex)
		if !dst.MayHaveFreeBlock(moveData.AllocType, moveData.Move.Size) {
			continue
		}

		request, ok := lowestFit(dst, moveData, math.MaxInt)
		if ok {
			c.commit(request, dstIndex, dst, moveData)
			return true
		}
	}

	return false
}

// packBlock slides the allocations of the block at blockIndex toward offset zero. packed is the
// end of the packed prefix: every allocation before it is in its final place or already has a
// move planned to it. It returns true if the pass stopped early.
func (c *MetadataDefragContext[T]) packBlock(pass *PassContext, blockIndex int) bool {
	block := c.BlockList.MetadataForBlock(blockIndex)
	packed := 0

	for handle := firstAllocation(block); handle != metadata.NoAllocation; handle = nextAllocation(block, handle) {
		if c.leaving.Has(handle) {
			continue
		}

		offset := allocationOffset(block, handle)
		moveData, movable := c.moveData(block, handle)
		if !movable {
			packed = memutils.Max(packed, offset+allocationSize(block, handle)+memutils.DebugMargin)
			continue
		}

		end := offset + moveData.Move.Size + memutils.DebugMargin
		target := memutils.AlignUp(packed, int(moveData.Alignment))
		if offset <= target {
			packed = memutils.Max(packed, end)
			continue
		}

		switch pass.checkCounters(moveData.Move.Size) {
		case defragCounterIgnore:
			packed = memutils.Max(packed, end)
			continue
		case defragCounterEnd:
			return true
		}

		request, ok := lowestFit(block, &moveData, offset)
		if ok && request.Item.Offset <= target {
			c.commit(request, blockIndex, block, &moveData)
			packed = memutils.Max(packed, request.Item.Offset+request.Size+memutils.DebugMargin)

			if pass.incrementCounters(moveData.Move.Size) {
				return true
			}
			continue
		}

		// The packed offset overlaps the allocation's own range, so it stays where it is
		if target+moveData.Move.Size+memutils.DebugMargin > offset || len(c.moves) == 0 {
			packed = memutils.Max(packed, end)
			continue
		}

		// The packed offset frees up once this pass completes
		return true
	}

	return false
}

// moveData returns the relocation data of a live allocation, or false if it must stay put.
// Destinations committed earlier in the run carry the context itself as user data.
func (c *MetadataDefragContext[T]) moveData(block metadata.BlockMetadata, handle metadata.BlockAllocationHandle) (MoveAllocationData[T], bool) {
	userData, err := block.AllocationUserData(handle)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when retrieving allocation user data: %+v", err))
	}
	if userData == c {
		return MoveAllocationData[T]{}, false
	}

	moveData, movable := c.BlockList.MoveDataForUserData(userData)
	if !movable {
		return MoveAllocationData[T]{}, false
	}

	moveData.Move.SrcBlockMetadata = block
	return moveData, true
}

func (c *MetadataDefragContext[T]) commit(request metadata.AllocationRequest, blockIndex int, block metadata.BlockMetadata, moveData *MoveAllocationData[T]) {
	moveData.Move.DstTmpAllocation = c.BlockList.CreateAlloc()
	err := c.BlockList.CommitDefragAllocationRequest(
		request,
		blockIndex,
		moveData.Alignment,
		moveData.AllocType,
		c,
		moveData.Move.DstTmpAllocation,
	)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when committing allocation request for defragment: %+v", err))
	}

	moveData.Move.DstBlockMetadata = block
	c.moves = append(c.moves, moveData.Move)
}

// lowestFit finds the lowest free range of block that holds the allocation and starts before
// maxOffset
func lowestFit[T any](block metadata.BlockMetadata, moveData *MoveAllocationData[T], maxOffset int) (metadata.AllocationRequest, bool) {
	ok, request, err := block.CreateAllocationRequest(
		moveData.Move.Size,
		moveData.Alignment,
		moveData.AllocType,
		metadata.AllocationStrategyMinOffset,
		maxOffset,
	)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when populating allocation request for defrag: %+v", err))
	}

	return request, ok
}

func firstAllocation(block metadata.BlockMetadata) metadata.BlockAllocationHandle {
	handle, err := block.AllocationListBegin()
	if err != nil {
		panic(fmt.Sprintf("unexpected error when getting first allocation: %+v", err))
	}
	return handle
}

func nextAllocation(block metadata.BlockMetadata, handle metadata.BlockAllocationHandle) metadata.BlockAllocationHandle {
	next, err := block.FindNextAllocation(handle)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when getting next allocation: %+v", err))
	}
	return next
}

func allocationOffset(block metadata.BlockMetadata, handle metadata.BlockAllocationHandle) int {
	offset, err := block.AllocationOffset(handle)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when getting allocation offset: %+v", err))
	}
	return offset
}

func allocationSize(block metadata.BlockMetadata, handle metadata.BlockAllocationHandle) int {
	size, err := block.AllocationSize(handle)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when getting allocation size: %+v", err))
	}
	return size
}
