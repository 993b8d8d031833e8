package vam

import (
	"math/bits"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/armory/memutils"
)

// Granularities at or below this are handled by rounding image requests up to a whole page
// instead of tracking the type that occupies each page
const maxLowBufferImageGranularity uint = 256

type pageInfo struct {
	allocType  suballocationType
	allocCount uint16
}

type granularityValidation struct {
	pageAllocs []uint16
}

// blockBufferImageGranularity keeps linear and optimal resources off the same
// bufferImageGranularity page inside one block. It is handed to the block's metadata as its
// metadata.GranularityCheck.
type blockBufferImageGranularity struct {
	bufferImageGranularity uint
	pages                  []pageInfo
}

func (g *blockBufferImageGranularity) Init(granularity uint, size int) {
	g.bufferImageGranularity = granularity
	g.pages = nil

	if g.enabled() {
		g.pages = make([]pageInfo, memutils.DivideRoundingUp(size, int(granularity)))
	}
}

func (g *blockBufferImageGranularity) enabled() bool {
	return g.bufferImageGranularity > maxLowBufferImageGranularity
}

func (g *blockBufferImageGranularity) AllocationsConflict(firstAllocType uint32, secondAllocType uint32) bool {
	first := suballocationType(firstAllocType)
	second := suballocationType(secondAllocType)
	if first > second {
		first, second = second, first
	}

	switch first {
	case suballocationFree:
		return false
	case suballocationUnknown:
		return true
	case suballocationBuffer:
		return second == suballocationImageUnknown || second == suballocationImageOptimal
	case suballocationImageUnknown:
		return second == suballocationImageUnknown ||
			second == suballocationImageLinear ||
			second == suballocationImageOptimal
	case suballocationImageLinear:
		return second == suballocationImageOptimal
	}

	return false
}

func (g *blockBufferImageGranularity) RoundUpAllocRequest(allocType uint32, allocSize int, allocAlignment uint) (int, uint) {
	if g.bufferImageGranularity <= 1 || g.enabled() {
		return allocSize, allocAlignment
	}

	switch suballocationType(allocType) {
	case suballocationUnknown, suballocationImageUnknown, suballocationImageOptimal:
		if allocAlignment < g.bufferImageGranularity {
			allocAlignment = g.bufferImageGranularity
		}
		allocSize = memutils.AlignUp(allocSize, int(g.bufferImageGranularity))
	}

	return allocSize, allocAlignment
}

func (g *blockBufferImageGranularity) CheckConflictAndAlignUp(allocOffset, allocSize, regionOffset, regionSize int, allocType uint32) (int, bool) {
	if !g.enabled() {
		return allocOffset, false
	}

	startPage := g.startPage(allocOffset)
	if g.pageConflicts(startPage, allocType) {
		allocOffset = memutils.AlignUp(allocOffset, int(g.bufferImageGranularity))
		if regionSize < allocSize+allocOffset-regionOffset {
			return allocOffset, true
		}
		startPage++
	}

	endPage := g.endPage(allocOffset, allocSize)
	if endPage != startPage && g.pageConflicts(endPage, allocType) {
		return allocOffset, true
	}

	return allocOffset, false
}

func (g *blockBufferImageGranularity) pageConflicts(page int, allocType uint32) bool {
	return g.pages[page].allocCount > 0 && g.AllocationsConflict(uint32(g.pages[page].allocType), allocType)
}

func (g *blockBufferImageGranularity) AllocPages(allocType uint32, offset, size int) {
	if !g.enabled() {
		return
	}

	startPage := g.startPage(offset)
	g.pages[startPage].add(suballocationType(allocType))

	endPage := g.endPage(offset, size)
	if startPage != endPage {
		g.pages[endPage].add(suballocationType(allocType))
	}
}

func (g *blockBufferImageGranularity) FreePages(offset, size int) {
	if !g.enabled() {
		return
	}

	startPage := g.startPage(offset)
	g.pages[startPage].remove()

	endPage := g.endPage(offset, size)
	if startPage != endPage {
		g.pages[endPage].remove()
	}
}

func (p *pageInfo) add(allocType suballocationType) {
	if p.allocCount == 0 || p.allocType == suballocationFree {
		p.allocType = allocType
	}
	p.allocCount++
}

func (p *pageInfo) remove() {
	p.allocCount--
	if p.allocCount == 0 {
		p.allocType = suballocationFree
	}
}

func (g *blockBufferImageGranularity) Clear() {
	for i := range g.pages {
		g.pages[i] = pageInfo{}
	}
}

func (g *blockBufferImageGranularity) StartValidation() any {
	ctx := &granularityValidation{}
	if g.enabled() {
		ctx.pageAllocs = make([]uint16, len(g.pages))
	}

	return ctx
}

func (g *blockBufferImageGranularity) Validate(anyCtx any, offset, size int) error {
	if !g.enabled() {
		return nil
	}

	ctx := anyCtx.(*granularityValidation)
	start := g.startPage(offset)
	ctx.pageAllocs[start]++
	if g.pages[start].allocCount < 1 {
		return errors.Errorf("no allocations in start page %d", start)
	}

	end := g.endPage(offset, size)
	if start != end {
		ctx.pageAllocs[end]++
		if g.pages[end].allocCount < 1 {
			return errors.Errorf("no allocations in end page %d", end)
		}
	}

	return nil
}

func (g *blockBufferImageGranularity) FinishValidation(anyCtx any) error {
	if !g.enabled() {
		return nil
	}

	ctx := anyCtx.(*granularityValidation)
	for index, page := range g.pages {
		if ctx.pageAllocs[index] != page.allocCount {
			return errors.Errorf("allocation count mismatch on page %d: tracked %d, found %d", index, page.allocCount, ctx.pageAllocs[index])
		}
	}

	return nil
}

func (g *blockBufferImageGranularity) startPage(offset int) int {
	return g.pageIndex(offset)
}

func (g *blockBufferImageGranularity) endPage(offset int, size int) int {
	return g.pageIndex(offset + size - 1)
}

func (g *blockBufferImageGranularity) pageIndex(offset int) int {
	return offset >> (63 - bits.LeadingZeros64(uint64(g.bufferImageGranularity)))
}
