package transfer

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
)

// Consumer is how a resource is used once its upload completes
type Consumer struct {
	Layout hal.ImageLayout
	Stage  hal.PipelineStageFlags
	Access hal.AccessFlags
}

// Sampled is the consumer of a texture read by fragment shaders
var Sampled = Consumer{
	Layout: hal.ImageLayoutShaderReadOnlyOptimal,
	Stage:  hal.PipelineStageFragmentShader,
	Access: hal.AccessShaderRead,
}

// Recorder is the part of a command recorder that uploads need
type Recorder interface {
	resource.ImageBarrierRecorder

	CopyBuffer(src, dst hal.Handle, regions []hal.BufferCopy)
	CopyBufferToImage(src *resource.Buffer, dst *resource.Image, dstLayout hal.ImageLayout, regions []hal.BufferImageCopy)
	BufferBarrier(srcStage, dstStage hal.PipelineStageFlags, barriers ...hal.BufferMemoryBarrier)
}

func hostToTransfer() resource.BarrierOptions {
	return resource.BarrierOptions{
		SrcStage:  hal.PipelineStageHost,
		SrcAccess: hal.AccessHostWrite,
	}
}

func transferToConsumer(subresources *hal.ImageSubresourceRange) resource.BarrierOptions {
	return resource.BarrierOptions{
		Range:     subresources,
		SrcStage:  hal.PipelineStageTransfer,
		SrcAccess: hal.AccessTransferWrite,
	}
}

func checkStaging(staging *resource.Buffer, required int) error {
	if staging == nil || staging.Handle().IsNull() {
		return vkerr.New(vkerr.ValidationError, "the staging buffer has been destroyed")
	}
	if staging.Size() < required {
		return vkerr.New(vkerr.ValidationError, "staging buffer %q is %d bytes, but the upload reads %d", staging.Name(), staging.Size(), required)
	}

	return nil
}

// UploadImage copies a packed mip chain for each of layers array layers from staging into image.
// Layer l of mip m is read from l*ChainSize(mips) + mips[m].Offset. The whole image is moved to
// TransferDstOptimal first, discarding its contents, and to the consumer's layout afterwards.
func UploadImage(rec Recorder, staging *resource.Buffer, image *resource.Image, mips []Mip, layers int, consumer Consumer) error {
	if len(mips) == 0 || len(mips) > image.MipLevels() {
		return vkerr.New(vkerr.ValidationError, "%d mips were provided for image %q, which has %d", len(mips), image.Name(), image.MipLevels())
	}
	if layers < 1 || layers > image.ArrayLayers() {
		return vkerr.New(vkerr.ValidationError, "%d layers were provided for image %q, which has %d", layers, image.Name(), image.ArrayLayers())
	}

	layerSize := ChainSize(mips)
	err := checkStaging(staging, layers*layerSize)
	if err != nil {
		return err
	}

	toTransfer := hostToTransfer()
	toTransfer.Discard = true
	image.Transition(rec, hal.ImageLayoutTransferDstOptimal, hal.PipelineStageTransfer, hal.AccessTransferWrite, toTransfer)

	aspect := copyAspect(image.Format())
	regions := make([]hal.BufferImageCopy, 0, len(mips)*layers)
	for _, mip := range mips {
		for layer := 0; layer < layers; layer++ {
			regions = append(regions, hal.BufferImageCopy{
				BufferOffset:      layer*layerSize + mip.Offset,
				BufferRowLength:   mip.RowLength,
				BufferImageHeight: mip.ImageHeight,
				ImageSubresource: hal.ImageSubresourceLayers{
					AspectMask:     aspect,
					MipLevel:       mip.Level,
					BaseArrayLayer: layer,
					LayerCount:     1,
				},
				ImageExtent: mip.Extent,
			})
		}
	}
	rec.CopyBufferToImage(staging, image, hal.ImageLayoutTransferDstOptimal, regions)

	image.Transition(rec, consumer.Layout, consumer.Stage, consumer.Access, transferToConsumer(nil))
	return nil
}

// UploadSubresource copies one mip level of one array layer from staging at offset. Only that
// subresource changes layout; the rest of the image keeps the layouts it had.
func UploadSubresource(rec Recorder, staging *resource.Buffer, offset int, image *resource.Image, mip Mip, layer int, consumer Consumer) error {
	if mip.Level < 0 || mip.Level >= image.MipLevels() || layer < 0 || layer >= image.ArrayLayers() {
		return vkerr.New(vkerr.ValidationError, "subresource (mip %d, layer %d) is outside image %q", mip.Level, layer, image.Name())
	}
	err := checkStaging(staging, offset+mip.Size)
	if err != nil {
		return err
	}

	subresources := hal.ImageSubresourceRange{
		AspectMask:     image.Format().Aspects(),
		BaseMipLevel:   mip.Level,
		LevelCount:     1,
		BaseArrayLayer: layer,
		LayerCount:     1,
	}

	toTransfer := hostToTransfer()
	toTransfer.Range = &subresources
	image.Transition(rec, hal.ImageLayoutTransferDstOptimal, hal.PipelineStageTransfer, hal.AccessTransferWrite, toTransfer)

	rec.CopyBufferToImage(staging, image, hal.ImageLayoutTransferDstOptimal, []hal.BufferImageCopy{{
		BufferOffset:      offset,
		BufferRowLength:   mip.RowLength,
		BufferImageHeight: mip.ImageHeight,
		ImageSubresource: hal.ImageSubresourceLayers{
			AspectMask:     copyAspect(image.Format()),
			MipLevel:       mip.Level,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		ImageExtent: mip.Extent,
	}})

	image.Transition(rec, consumer.Layout, consumer.Stage, consumer.Access, transferToConsumer(&subresources))
	return nil
}

// UploadBuffer copies regions of staging into dst and makes the written ranges visible to the
// consumer's stage and access. Consumer.Layout is ignored.
func UploadBuffer(rec Recorder, staging *resource.Buffer, dst *resource.Buffer, regions []hal.BufferCopy, consumer Consumer) error {
	if dst == nil || dst.Handle().IsNull() {
		return vkerr.New(vkerr.ValidationError, "the destination buffer has been destroyed")
	}
	if len(regions) == 0 {
		return nil
	}

	required := 0
	barriers := make([]hal.BufferMemoryBarrier, 0, len(regions))
	for _, region := range regions {
		if region.Size < 1 || region.SrcOffset < 0 || region.DstOffset < 0 || region.DstOffset+region.Size > dst.Size() {
			return vkerr.New(vkerr.ValidationError, "copy of %d bytes from %d to %d does not fit buffer %q, which is size %d", region.Size, region.SrcOffset, region.DstOffset, dst.Name(), dst.Size())
		}
		required = max(required, region.SrcOffset+region.Size)

		barriers = append(barriers, hal.BufferMemoryBarrier{
			SrcAccessMask:       hal.AccessTransferWrite,
			DstAccessMask:       consumer.Access,
			SrcQueueFamilyIndex: hal.QueueFamilyIgnored,
			DstQueueFamilyIndex: hal.QueueFamilyIgnored,
			Buffer:              dst.Handle(),
			Offset:              region.DstOffset,
			Size:                region.Size,
		})
	}

	err := checkStaging(staging, required)
	if err != nil {
		return err
	}

	rec.CopyBuffer(staging.Handle(), dst.Handle(), regions)
	rec.BufferBarrier(hal.PipelineStageTransfer, consumer.Stage, barriers...)
	return nil
}
