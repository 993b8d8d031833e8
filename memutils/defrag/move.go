package defrag

import (
	"github.com/vkngwrapper/armory/memutils/metadata"
)

// DefragmentationMoveOperation is set on each DefragmentationMove by the consumer between
// collecting moves and completing the pass
type DefragmentationMoveOperation uint32

const (
	// DefragmentationMoveCopy means the data was copied and the source allocation should now point
	// at the destination
	DefragmentationMoveCopy DefragmentationMoveOperation = iota
	// DefragmentationMoveIgnore means the move was not performed; the destination is released and the
	// source block is treated as immovable for the rest of the run
	DefragmentationMoveIgnore
	// DefragmentationMoveDestroy means the consumer destroyed the source allocation instead of moving it
	DefragmentationMoveDestroy
)

var moveOperationMapping = map[DefragmentationMoveOperation]string{
	DefragmentationMoveCopy:    "DefragmentationMoveCopy",
	DefragmentationMoveIgnore:  "DefragmentationMoveIgnore",
	DefragmentationMoveDestroy: "DefragmentationMoveDestroy",
}

func (o DefragmentationMoveOperation) String() string {
	return moveOperationMapping[o]
}

// DefragmentOperationHandler finishes one move when a pass completes
type DefragmentOperationHandler[T any] func(move DefragmentationMove[T]) error

// DefragmentationMove is a single planned relocation
type DefragmentationMove[T any] struct {
	MoveOperation    DefragmentationMoveOperation
	Size             int
	SrcBlockMetadata metadata.BlockMetadata
	SrcAllocation    *T
	DstBlockMetadata metadata.BlockMetadata
	DstTmpAllocation *T
}

// MoveAllocationData is what a BlockList reports about an allocation that may be moved
type MoveAllocationData[T any] struct {
	Alignment uint
	AllocType uint32
	Move      DefragmentationMove[T]
}
