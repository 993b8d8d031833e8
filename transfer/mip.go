// Package transfer records the copies and barriers that move data from host-visible staging
// buffers into buffers and images, leaving each resource in the layout its consumer expects.
package transfer

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/memutils"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// MipAlignment is the alignment of each mip level within a staging buffer
const MipAlignment = 16

// Mip locates one mip level of a tightly packed chain in a staging buffer
type Mip struct {
	Level  int
	Offset int
	Size   int
	// Extent is the texel extent of the level, which is what copy regions cover
	Extent core1_0.Extent3D
	// RowLength and ImageHeight are the block-rounded footprint of the level, in texels
	RowLength   int
	ImageHeight int
}

// MipChain lays out levels mip levels of an image with the given format and base extent:
// level 0 starts at offset 0 and every later level starts at the end of the one before,
// rounded up to MipAlignment
func MipChain(format hal.Format, extent core1_0.Extent3D, levels int) ([]Mip, error) {
	block, ok := format.Block()
	if !ok {
		return nil, vkerr.New(vkerr.FeatureUnsupported, "the texel block of format %s is unknown", format)
	}
	if levels < 1 {
		return nil, vkerr.New(vkerr.ValidationError, "a mip chain needs at least one level, but %d were requested", levels)
	}
	if extent.Depth == 0 {
		extent.Depth = 1
	}

	mips := make([]Mip, levels)
	offset := 0
	for level := range mips {
		stored := resource.MipExtent(format, extent, level)
		blocks := (stored.Width / max(block.Width, 1)) * (stored.Height / max(block.Height, 1)) * (stored.Depth / max(block.Depth, 1))

		mips[level] = Mip{
			Level:       level,
			Offset:      offset,
			Size:        blocks * block.Bytes,
			Extent:      resource.VirtualMipExtent(extent, level),
			RowLength:   stored.Width,
			ImageHeight: stored.Height,
		}
		offset += memutils.AlignUp(mips[level].Size, MipAlignment)
	}

	return mips, nil
}

// ChainSize returns the number of staging bytes one array layer of mips occupies
func ChainSize(mips []Mip) int {
	if len(mips) == 0 {
		return 0
	}

	last := mips[len(mips)-1]
	return last.Offset + memutils.AlignUp(last.Size, MipAlignment)
}

// copyAspect returns the single aspect a buffer-image copy of format addresses. Combined
// depth-stencil formats copy their depth aspect.
func copyAspect(format hal.Format) hal.ImageAspectFlags {
	aspects := format.Aspects()
	if aspects&hal.ImageAspectDepth != 0 {
		return hal.ImageAspectDepth
	}

	return aspects
}
