package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/hal/haltest"
	"github.com/vkngwrapper/armory/internal/testenv"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type imageBarrier struct {
	srcStage hal.PipelineStageFlags
	dstStage hal.PipelineStageFlags
	barriers []hal.ImageMemoryBarrier
}

type bufferBarrier struct {
	srcStage hal.PipelineStageFlags
	dstStage hal.PipelineStageFlags
	barriers []hal.BufferMemoryBarrier
}

type imageCopy struct {
	src     hal.Handle
	dst     hal.Handle
	layout  hal.ImageLayout
	regions []hal.BufferImageCopy
}

type blit struct {
	regions []hal.ImageBlit
	filter  hal.Filter
}

// commandLog stands in for command.Recorder and keeps every call in order
type commandLog struct {
	calls          []string
	imageBarriers  []imageBarrier
	bufferBarriers []bufferBarrier
	imageCopies    []imageCopy
	bufferCopies   [][]hal.BufferCopy
	blits          []blit
}

func (l *commandLog) ImageBarrier(image *resource.Image, srcStage, dstStage hal.PipelineStageFlags, barriers ...hal.ImageMemoryBarrier) {
	l.calls = append(l.calls, "ImageBarrier")
	l.imageBarriers = append(l.imageBarriers, imageBarrier{srcStage, dstStage, barriers})
	image.CommitLayouts(barriers...)
}

func (l *commandLog) CopyBuffer(src, dst hal.Handle, regions []hal.BufferCopy) {
	l.calls = append(l.calls, "CopyBuffer")
	l.bufferCopies = append(l.bufferCopies, regions)
}

func (l *commandLog) CopyBufferToImage(src *resource.Buffer, dst *resource.Image, dstLayout hal.ImageLayout, regions []hal.BufferImageCopy) {
	l.calls = append(l.calls, "CopyBufferToImage")
	l.imageCopies = append(l.imageCopies, imageCopy{src.Handle(), dst.Handle(), dstLayout, regions})
}

func (l *commandLog) BufferBarrier(srcStage, dstStage hal.PipelineStageFlags, barriers ...hal.BufferMemoryBarrier) {
	l.calls = append(l.calls, "BufferBarrier")
	l.bufferBarriers = append(l.bufferBarriers, bufferBarrier{srcStage, dstStage, barriers})
}

func (l *commandLog) BlitImage(src, dst *resource.Image, srcLayout, dstLayout hal.ImageLayout, regions []hal.ImageBlit, filter hal.Filter) {
	l.calls = append(l.calls, "BlitImage")
	l.blits = append(l.blits, blit{regions, filter})
}

func readyFactory(t *testing.T) (*haltest.Device, *resource.Factory) {
	env := testenv.New(t)
	return env.Device, env.Factory
}

func createImage(t *testing.T, factory *resource.Factory, format hal.Format, size, mips, layers int) *resource.Image {
	image, err := factory.CreateImage(resource.ImageCreateInfo{
		Type:        hal.ImageType2D,
		Format:      format,
		Extent:      core1_0.Extent3D{Width: size, Height: size, Depth: 1},
		MipLevels:   mips,
		ArrayLayers: layers,
		Usage:       core1_0.ImageUsageSampled | core1_0.ImageUsageTransferDst | core1_0.ImageUsageTransferSrc,
		Name:        "texture",
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, image.Destroy()) })
	return image
}

func mipData(mips []Mip, seed byte) [][]byte {
	data := make([][]byte, len(mips))
	for i, mip := range mips {
		data[i] = make([]byte, mip.Size)
		for j := range data[i] {
			data[i][j] = seed + byte(i)
		}
	}
	return data
}

func TestMipChainBC1(t *testing.T) {
	mips, err := MipChain(hal.FormatBC1RGBAUnorm, core1_0.Extent3D{Width: 256, Height: 256, Depth: 1}, 9)
	require.NoError(t, err)
	require.Len(t, mips, 9)

	var sizes, offsets []int
	for _, mip := range mips {
		sizes = append(sizes, mip.Size)
		offsets = append(offsets, mip.Offset)
	}
	require.Equal(t, []int{32768, 8192, 2048, 512, 128, 32, 8, 8, 8}, sizes)
	require.Equal(t, []int{0, 32768, 40960, 43008, 43520, 43648, 43680, 43696, 43712}, offsets)

	require.Equal(t, core1_0.Extent3D{Width: 2, Height: 2, Depth: 1}, mips[7].Extent)
	require.Equal(t, 4, mips[7].RowLength)
	require.Equal(t, 4, mips[7].ImageHeight)
	require.Equal(t, 43728, ChainSize(mips))
}

func TestMipChainUncompressed(t *testing.T) {
	mips, err := MipChain(hal.FormatR8G8B8A8Unorm, core1_0.Extent3D{Width: 4, Height: 4}, 3)
	require.NoError(t, err)

	require.Equal(t, []Mip{
		{Level: 0, Offset: 0, Size: 64, Extent: core1_0.Extent3D{Width: 4, Height: 4, Depth: 1}, RowLength: 4, ImageHeight: 4},
		{Level: 1, Offset: 64, Size: 16, Extent: core1_0.Extent3D{Width: 2, Height: 2, Depth: 1}, RowLength: 2, ImageHeight: 2},
		{Level: 2, Offset: 80, Size: 4, Extent: core1_0.Extent3D{Width: 1, Height: 1, Depth: 1}, RowLength: 1, ImageHeight: 1},
	}, mips)
	require.Equal(t, 96, ChainSize(mips))
}

func TestMipChainRejects(t *testing.T) {
	_, err := MipChain(hal.FormatUndefined, core1_0.Extent3D{Width: 4, Height: 4, Depth: 1}, 1)
	require.True(t, vkerr.Is(err, vkerr.FeatureUnsupported))

	_, err = MipChain(hal.FormatR8Unorm, core1_0.Extent3D{Width: 4, Height: 4, Depth: 1}, 0)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
}

func TestUploadCompressedTexture(t *testing.T) {
	dev, factory := readyFactory(t)
	image := createImage(t, factory, hal.FormatBC1RGBAUnorm, 256, 9, 1)

	chain, err := MipChain(hal.FormatBC1RGBAUnorm, image.Extent(), 9)
	require.NoError(t, err)

	stager := NewStager(factory)
	staging, mips, err := stager.StageImage(hal.FormatBC1RGBAUnorm, image.Extent(), [][][]byte{mipData(chain, 1)})
	require.NoError(t, err)
	require.Equal(t, chain, mips)
	require.Equal(t, 1, stager.Pending())

	contents := dev.BufferContents(staging.Handle(), staging.Size())
	require.Equal(t, byte(1), contents[0])
	require.Equal(t, byte(9), contents[43712])

	var log commandLog
	require.NoError(t, UploadImage(&log, staging, image, mips, 1, Sampled))
	require.Equal(t, []string{"ImageBarrier", "CopyBufferToImage", "ImageBarrier"}, log.calls)

	first := log.imageBarriers[0]
	require.Equal(t, hal.PipelineStageHost, first.srcStage)
	require.Equal(t, hal.PipelineStageTransfer, first.dstStage)
	require.Len(t, first.barriers, 1)
	require.Equal(t, hal.AccessHostWrite, first.barriers[0].SrcAccessMask)
	require.Equal(t, hal.AccessTransferWrite, first.barriers[0].DstAccessMask)
	require.Equal(t, hal.ImageLayoutUndefined, first.barriers[0].OldLayout)
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, first.barriers[0].NewLayout)
	require.Equal(t, image.FullRange(), first.barriers[0].SubresourceRange)

	copied := log.imageCopies[0]
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, copied.layout)
	require.Len(t, copied.regions, 9)
	for i, region := range copied.regions {
		require.Equal(t, mips[i].Offset, region.BufferOffset)
		require.Equal(t, i, region.ImageSubresource.MipLevel)
		require.Equal(t, mips[i].Extent, region.ImageExtent)
	}

	last := log.imageBarriers[1]
	require.Equal(t, hal.PipelineStageTransfer, last.srcStage)
	require.Equal(t, hal.PipelineStageFragmentShader, last.dstStage)
	require.Len(t, last.barriers, 1)
	require.Equal(t, hal.AccessTransferWrite, last.barriers[0].SrcAccessMask)
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, last.barriers[0].OldLayout)
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, last.barriers[0].NewLayout)

	layout, uniform := image.Layouts().Uniform()
	require.True(t, uniform)
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, layout)

	require.NoError(t, stager.Release())
	require.Zero(t, stager.Pending())
}

func TestUploadArrayLayers(t *testing.T) {
	_, factory := readyFactory(t)
	image := createImage(t, factory, hal.FormatR8G8B8A8Unorm, 8, 2, 2)

	chain, err := MipChain(image.Format(), image.Extent(), 2)
	require.NoError(t, err)

	stager := NewStager(factory)
	staging, mips, err := stager.StageImage(image.Format(), image.Extent(), [][][]byte{mipData(chain, 0), mipData(chain, 10)})
	require.NoError(t, err)

	var log commandLog
	require.NoError(t, UploadImage(&log, staging, image, mips, 2, Sampled))

	regions := log.imageCopies[0].regions
	require.Len(t, regions, 4)
	layerSize := ChainSize(mips)
	require.Equal(t, 0, regions[0].BufferOffset)
	require.Equal(t, layerSize, regions[1].BufferOffset)
	require.Equal(t, 1, regions[1].ImageSubresource.BaseArrayLayer)
	require.Equal(t, mips[1].Offset, regions[2].BufferOffset)
	require.Equal(t, layerSize+mips[1].Offset, regions[3].BufferOffset)

	require.True(t, vkerr.Is(UploadImage(&log, staging, image, mips, 3, Sampled), vkerr.ValidationError))

	require.NoError(t, stager.Release())
	require.True(t, vkerr.Is(UploadImage(&log, staging, image, mips, 2, Sampled), vkerr.ValidationError))
}

func TestUploadSubresource(t *testing.T) {
	_, factory := readyFactory(t)
	image := createImage(t, factory, hal.FormatR8G8B8A8Unorm, 16, 3, 1)

	mips, err := MipChain(image.Format(), image.Extent(), 3)
	require.NoError(t, err)

	stager := NewStager(factory)
	staging, err := stager.StageBuffer(make([]byte, mips[1].Size))
	require.NoError(t, err)

	var log commandLog
	require.NoError(t, UploadSubresource(&log, staging, 0, image, mips[1], 0, Sampled))
	require.Equal(t, []string{"ImageBarrier", "CopyBufferToImage", "ImageBarrier"}, log.calls)
	require.Equal(t, 1, log.imageBarriers[0].barriers[0].SubresourceRange.BaseMipLevel)
	require.Equal(t, 1, log.imageBarriers[0].barriers[0].SubresourceRange.LevelCount)

	require.Equal(t, hal.ImageLayoutUndefined, image.Layouts().At(0, 0))
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, image.Layouts().At(1, 0))
	require.Equal(t, hal.ImageLayoutUndefined, image.Layouts().At(2, 0))

	require.True(t, vkerr.Is(UploadSubresource(&log, staging, 0, image, mips[0], 0, Sampled), vkerr.ValidationError))
	require.NoError(t, stager.Release())
}

func TestUploadBuffer(t *testing.T) {
	_, factory := readyFactory(t)

	dst, err := factory.CreateBuffer(resource.BufferCreateInfo{Size: 1024, Usage: core1_0.BufferUsageVertexBuffer | core1_0.BufferUsageTransferDst})
	require.NoError(t, err)
	defer func() { require.NoError(t, dst.Destroy()) }()

	stager := NewStager(factory)
	staging, err := stager.StageBuffer(make([]byte, 512))
	require.NoError(t, err)

	vertexInput := Consumer{Stage: hal.PipelineStageVertexInput, Access: hal.AccessVertexAttributeRead}
	regions := []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: 256}, {SrcOffset: 256, DstOffset: 768, Size: 256}}

	var log commandLog
	require.NoError(t, UploadBuffer(&log, staging, dst, regions, vertexInput))
	require.Equal(t, []string{"CopyBuffer", "BufferBarrier"}, log.calls)
	require.Equal(t, regions, log.bufferCopies[0])

	barriers := log.bufferBarriers[0]
	require.Equal(t, hal.PipelineStageTransfer, barriers.srcStage)
	require.Equal(t, hal.PipelineStageVertexInput, barriers.dstStage)
	require.Len(t, barriers.barriers, 2)
	require.Equal(t, 768, barriers.barriers[1].Offset)
	require.Equal(t, hal.AccessVertexAttributeRead, barriers.barriers[1].DstAccessMask)

	err = UploadBuffer(&log, staging, dst, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 900, Size: 256}}, vertexInput)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
	err = UploadBuffer(&log, staging, dst, []hal.BufferCopy{{SrcOffset: 400, DstOffset: 0, Size: 256}}, vertexInput)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	require.NoError(t, stager.Release())
}

func TestStageImageValidatesSizes(t *testing.T) {
	_, factory := readyFactory(t)
	stager := NewStager(factory)

	_, _, err := stager.StageImage(hal.FormatR8G8B8A8Unorm, core1_0.Extent3D{Width: 4, Height: 4, Depth: 1}, [][][]byte{{make([]byte, 63)}})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	_, _, err = stager.StageImage(hal.FormatR8G8B8A8Unorm, core1_0.Extent3D{Width: 4, Height: 4, Depth: 1}, nil)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
	require.Zero(t, stager.Pending())
}

func TestGenerateMipmaps(t *testing.T) {
	_, factory := readyFactory(t)
	image := createImage(t, factory, hal.FormatR8G8B8A8Unorm, 16, 5, 1)

	var log commandLog
	image.LayoutTransition(&log, hal.ImageLayoutTransferDstOptimal, hal.PipelineStageTransfer, hal.AccessTransferWrite)

	require.NoError(t, GenerateMipmaps(&log, image, hal.FilterLinear, Sampled))
	require.Len(t, log.blits, 4)

	first := log.blits[0].regions[0]
	require.Equal(t, hal.Offset3D{X: 16, Y: 16, Z: 1}, first.SrcOffsets[1])
	require.Equal(t, hal.Offset3D{X: 8, Y: 8, Z: 1}, first.DstOffsets[1])
	require.Equal(t, hal.FilterLinear, log.blits[0].filter)

	final := log.imageBarriers[len(log.imageBarriers)-1]
	require.Len(t, final.barriers, 5)
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, final.barriers[4].OldLayout)
	require.Equal(t, hal.ImageLayoutTransferSrcOptimal, final.barriers[0].OldLayout)

	layout, uniform := image.Layouts().Uniform()
	require.True(t, uniform)
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, layout)

	compressed := createImage(t, factory, hal.FormatBC7Unorm, 16, 2, 1)
	require.True(t, vkerr.Is(GenerateMipmaps(&log, compressed, hal.FilterLinear, Sampled), vkerr.FeatureUnsupported))
}
