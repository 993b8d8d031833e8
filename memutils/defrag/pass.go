package defrag

import (
	"fmt"
	"math"
)

// PassContext tracks a single defragmentation pass across multiple relocations
type PassContext struct {
	// MaxPassBytes is the maximum number of bytes to relocate in the pass. Zero or less means no
	// limit.
	MaxPassBytes int
	// MaxPassAllocations is the maximum number of relocations in the pass. Zero or less means no
	// limit.
	MaxPassAllocations int
	// Stats contains statistics for the current pass
	Stats         DefragmentationStats
	ignoredAllocs int
}

const defragMaxAllocsToIgnore = 16

// NewPassContext creates a PassContext with the provided limits
func NewPassContext(maxBytes, maxAllocations int) *PassContext {
	if maxBytes <= 0 {
		maxBytes = math.MaxInt
	}
	if maxAllocations <= 0 {
		maxAllocations = math.MaxInt
	}

	return &PassContext{
		MaxPassBytes:       maxBytes,
		MaxPassAllocations: maxAllocations,
	}
}

func (p *PassContext) checkCounters(bytes int) defragCounterStatus {
	// Ignore allocation if it will exceed max size for copy
	if p.Stats.BytesMoved+bytes > p.MaxPassBytes {
		p.ignoredAllocs++
		if p.ignoredAllocs < defragMaxAllocsToIgnore {
			return defragCounterIgnore
		}
		return defragCounterEnd
	}

	p.ignoredAllocs = 0
	return defragCounterPass
}

func (p *PassContext) incrementCounters(bytes int) bool {
	p.Stats.BytesMoved += bytes
	p.Stats.AllocationsMoved++

	// Early return when max found
	if p.Stats.AllocationsMoved >= p.MaxPassAllocations || p.Stats.BytesMoved >= p.MaxPassBytes {
		if p.Stats.AllocationsMoved > p.MaxPassAllocations || p.Stats.BytesMoved > p.MaxPassBytes {
			panic(fmt.Sprintf("somehow passed maximum pass thresholds: bytes %d, allocs %d", p.Stats.BytesMoved, p.Stats.AllocationsMoved))
		}

		return true
	}

	return false
}
