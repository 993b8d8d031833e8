package transfer

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
)

// BlitRecorder is the part of a command recorder that mipmap generation needs
type BlitRecorder interface {
	resource.ImageBarrierRecorder

	BlitImage(src, dst *resource.Image, srcLayout, dstLayout hal.ImageLayout, regions []hal.ImageBlit, filter hal.Filter)
}

func levelRange(image *resource.Image, level int) *hal.ImageSubresourceRange {
	return &hal.ImageSubresourceRange{
		AspectMask:     image.Format().Aspects(),
		BaseMipLevel:   level,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     hal.RemainingArrayLayers,
	}
}

func mipCorner(image *resource.Image, level int) hal.Offset3D {
	extent := image.VirtualMipExtent(level)
	return hal.Offset3D{X: extent.Width, Y: extent.Height, Z: extent.Depth}
}

// GenerateMipmaps fills every level below the base by repeatedly blitting each level into the
// next, then moves the whole image to the consumer's layout. Level 0 must already hold the image
// contents. Block-compressed formats cannot be blitted.
func GenerateMipmaps(rec BlitRecorder, image *resource.Image, filter hal.Filter, consumer Consumer) error {
	if image.Format().Compressed() {
		return vkerr.New(vkerr.FeatureUnsupported, "mipmaps of compressed format %s cannot be generated by blitting", image.Format())
	}

	aspect := image.Format().Aspects()
	for level := 1; level < image.MipLevels(); level++ {
		image.Transition(rec, hal.ImageLayoutTransferSrcOptimal, hal.PipelineStageTransfer, hal.AccessTransferRead, resource.BarrierOptions{
			Range: levelRange(image, level-1),
		})
		image.Transition(rec, hal.ImageLayoutTransferDstOptimal, hal.PipelineStageTransfer, hal.AccessTransferWrite, resource.BarrierOptions{
			Range:   levelRange(image, level),
			Discard: true,
		})

		rec.BlitImage(image, image, hal.ImageLayoutTransferSrcOptimal, hal.ImageLayoutTransferDstOptimal, []hal.ImageBlit{{
			SrcSubresource: hal.ImageSubresourceLayers{AspectMask: aspect, MipLevel: level - 1, LayerCount: image.ArrayLayers()},
			SrcOffsets:     [2]hal.Offset3D{{}, mipCorner(image, level-1)},
			DstSubresource: hal.ImageSubresourceLayers{AspectMask: aspect, MipLevel: level, LayerCount: image.ArrayLayers()},
			DstOffsets:     [2]hal.Offset3D{{}, mipCorner(image, level)},
		}}, filter)
	}

	image.Transition(rec, consumer.Layout, consumer.Stage, consumer.Access, resource.BarrierOptions{})
	return nil
}
