package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type recordedBarrier struct {
	srcStage hal.PipelineStageFlags
	dstStage hal.PipelineStageFlags
	barriers []hal.ImageMemoryBarrier
}

type barrierLog struct {
	recorded []recordedBarrier
}

func (l *barrierLog) ImageBarrier(image *Image, srcStage, dstStage hal.PipelineStageFlags, barriers ...hal.ImageMemoryBarrier) {
	l.recorded = append(l.recorded, recordedBarrier{srcStage: srcStage, dstStage: dstStage, barriers: barriers})
	image.CommitLayouts(barriers...)
}

func (l *barrierLog) last() recordedBarrier {
	return l.recorded[len(l.recorded)-1]
}

func sampledImage(t *testing.T, factory *Factory, format hal.Format, width, height, mips int) *Image {
	image, err := factory.CreateImage(ImageCreateInfo{
		Type:        hal.ImageType2D,
		Format:      format,
		Extent:      core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels:   mips,
		ArrayLayers: 1,
		Usage:       core1_0.ImageUsageSampled | core1_0.ImageUsageTransferDst,
		Name:        "albedo",
	})
	require.NoError(t, err)
	return image
}

func TestMipExtent(t *testing.T) {
	testCases := map[string]struct {
		format  hal.Format
		base    core1_0.Extent3D
		level   int
		virtual core1_0.Extent3D
		stored  core1_0.Extent3D
	}{
		"Uncompressed Base": {
			format:  hal.FormatR8G8B8A8Unorm,
			base:    core1_0.Extent3D{Width: 7, Height: 5, Depth: 1},
			level:   0,
			virtual: core1_0.Extent3D{Width: 7, Height: 5, Depth: 1},
			stored:  core1_0.Extent3D{Width: 7, Height: 5, Depth: 1},
		},
		"Uncompressed Odd Level": {
			format:  hal.FormatR8G8B8A8Unorm,
			base:    core1_0.Extent3D{Width: 7, Height: 5, Depth: 1},
			level:   1,
			virtual: core1_0.Extent3D{Width: 3, Height: 2, Depth: 1},
			stored:  core1_0.Extent3D{Width: 3, Height: 2, Depth: 1},
		},
		"Clamped To One": {
			format:  hal.FormatR8G8B8A8Unorm,
			base:    core1_0.Extent3D{Width: 16, Height: 2, Depth: 1},
			level:   3,
			virtual: core1_0.Extent3D{Width: 2, Height: 1, Depth: 1},
			stored:  core1_0.Extent3D{Width: 2, Height: 1, Depth: 1},
		},
		"Compressed Rounds To Block": {
			format:  hal.FormatBC1RGBAUnorm,
			base:    core1_0.Extent3D{Width: 256, Height: 256, Depth: 1},
			level:   7,
			virtual: core1_0.Extent3D{Width: 2, Height: 2, Depth: 1},
			stored:  core1_0.Extent3D{Width: 4, Height: 4, Depth: 1},
		},
		"Compressed Non Multiple": {
			format:  hal.FormatBC7Unorm,
			base:    core1_0.Extent3D{Width: 30, Height: 18, Depth: 1},
			level:   1,
			virtual: core1_0.Extent3D{Width: 15, Height: 9, Depth: 1},
			stored:  core1_0.Extent3D{Width: 16, Height: 12, Depth: 1},
		},
		"Volume": {
			format:  hal.FormatR8Unorm,
			base:    core1_0.Extent3D{Width: 8, Height: 8, Depth: 8},
			level:   2,
			virtual: core1_0.Extent3D{Width: 2, Height: 2, Depth: 2},
			stored:  core1_0.Extent3D{Width: 2, Height: 2, Depth: 2},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, testCase.virtual, VirtualMipExtent(testCase.base, testCase.level))
			require.Equal(t, testCase.stored, MipExtent(testCase.format, testCase.base, testCase.level))
		})
	}
}

func TestCreateImageValidates(t *testing.T) {
	_, factory, _ := readyFactory(t)

	_, err := factory.CreateImage(ImageCreateInfo{
		Type:   hal.ImageType2D,
		Format: hal.FormatR8G8B8A8Unorm,
		Extent: core1_0.Extent3D{Width: 0, Height: 4, Depth: 1},
		Usage:  core1_0.ImageUsageSampled,
	})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	_, err = factory.CreateImage(ImageCreateInfo{
		Type:          hal.ImageType2D,
		Format:        hal.FormatR8G8B8A8Unorm,
		Extent:        core1_0.Extent3D{Width: 4, Height: 4, Depth: 1},
		Usage:         core1_0.ImageUsageSampled,
		InitialLayout: hal.ImageLayoutShaderReadOnlyOptimal,
	})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
}

func TestImageLayoutTransition(t *testing.T) {
	dev, factory, _ := readyFactory(t)

	image := sampledImage(t, factory, hal.FormatR8G8B8A8Unorm, 64, 64, 3)
	_, _, bound := dev.Binding(image.Handle())
	require.True(t, bound)

	var log barrierLog
	image.LayoutTransition(&log, hal.ImageLayoutTransferDstOptimal, hal.PipelineStageTransfer, hal.AccessTransferWrite)

	recorded := log.last()
	require.Equal(t, hal.PipelineStageTopOfPipe, recorded.srcStage)
	require.Equal(t, hal.PipelineStageTransfer, recorded.dstStage)
	require.Len(t, recorded.barriers, 1)
	require.Equal(t, hal.ImageMemoryBarrier{
		SrcAccessMask:       0,
		DstAccessMask:       hal.AccessTransferWrite,
		OldLayout:           hal.ImageLayoutUndefined,
		NewLayout:           hal.ImageLayoutTransferDstOptimal,
		SrcQueueFamilyIndex: hal.QueueFamilyIgnored,
		DstQueueFamilyIndex: hal.QueueFamilyIgnored,
		Image:               image.Handle(),
		SubresourceRange:    image.FullRange(),
	}, recorded.barriers[0])

	layout, uniform := image.Layouts().Uniform()
	require.True(t, uniform)
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, layout)

	// Move only the base level on ahead
	image.Transition(&log, hal.ImageLayoutShaderReadOnlyOptimal, hal.PipelineStageFragmentShader, hal.AccessShaderRead, BarrierOptions{
		Range: &hal.ImageSubresourceRange{BaseMipLevel: 0, LevelCount: 1, LayerCount: hal.RemainingArrayLayers},
	})
	_, uniform = image.Layouts().Uniform()
	require.False(t, uniform)
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, image.Layouts().At(0, 0))
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, image.Layouts().At(1, 0))

	image.LayoutTransition(&log, hal.ImageLayoutShaderReadOnlyOptimal, hal.PipelineStageFragmentShader, hal.AccessShaderRead)
	recorded = log.last()
	require.Len(t, recorded.barriers, 3)
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, recorded.barriers[0].OldLayout)
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, recorded.barriers[1].OldLayout)
	require.Equal(t, hal.AccessTransferWrite, recorded.barriers[1].SrcAccessMask)
	require.Equal(t, hal.PipelineStageFragmentShader|hal.PipelineStageComputeShader|hal.PipelineStageTransfer, recorded.srcStage)

	layout, uniform = image.Layouts().Uniform()
	require.True(t, uniform)
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, layout)

	require.NoError(t, image.Destroy())
	require.Zero(t, dev.Live(hal.ObjectTypeImage))
}

func TestImageDiscardBarrier(t *testing.T) {
	_, factory, _ := readyFactory(t)

	image := sampledImage(t, factory, hal.FormatR8G8B8A8Unorm, 32, 32, 1)

	var log barrierLog
	image.LayoutTransition(&log, hal.ImageLayoutShaderReadOnlyOptimal, hal.PipelineStageFragmentShader, hal.AccessShaderRead)

	srcStage, barriers := image.Barrier(hal.ImageLayoutColorAttachmentOptimal, hal.PipelineStageColorAttachmentOutput, hal.AccessColorAttachmentWrite, BarrierOptions{Discard: true})
	require.Equal(t, hal.PipelineStageTopOfPipe, srcStage)
	require.Len(t, barriers, 1)
	require.Equal(t, hal.ImageLayoutUndefined, barriers[0].OldLayout)

	layout, _ := image.Layouts().Uniform()
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, layout)

	image.CommitLayouts(barriers...)
	layout, _ = image.Layouts().Uniform()
	require.Equal(t, hal.ImageLayoutColorAttachmentOptimal, layout)

	require.NoError(t, image.Destroy())
}

func TestImageOwnershipTransfer(t *testing.T) {
	_, factory, _ := readyFactory(t)

	image := sampledImage(t, factory, hal.FormatR8G8B8A8Unorm, 32, 32, 1)

	_, barriers := image.Barrier(hal.ImageLayoutShaderReadOnlyOptimal, hal.PipelineStageFragmentShader, hal.AccessShaderRead, BarrierOptions{
		Ownership: &QueueFamilyTransfer{Src: 1, Dst: 0},
	})
	require.Equal(t, 1, barriers[0].SrcQueueFamilyIndex)
	require.Equal(t, 0, barriers[0].DstQueueFamilyIndex)

	require.NoError(t, image.Destroy())
}

func TestImageRebindResetsLayouts(t *testing.T) {
	dev, factory, _ := readyFactory(t)

	image := sampledImage(t, factory, hal.FormatR8G8B8A8Unorm, 32, 32, 2)
	var log barrierLog
	image.LayoutTransition(&log, hal.ImageLayoutShaderReadOnlyOptimal, hal.PipelineStageFragmentShader, hal.AccessShaderRead)

	oldHandle := image.Handle()
	require.NoError(t, image.Rebind())
	require.False(t, dev.Alive(oldHandle))

	layout, uniform := image.Layouts().Uniform()
	require.True(t, uniform)
	require.Equal(t, hal.ImageLayoutUndefined, layout)

	require.NoError(t, image.Destroy())
	require.True(t, vkerr.Is(image.Rebind(), vkerr.ValidationError))
}

func TestImageViewAndFramebuffer(t *testing.T) {
	t.Run("With Views", func(t *testing.T) {
		_, factory, _ := readyFactory(t)

		image := sampledImage(t, factory, hal.FormatR8G8B8A8Unorm, 128, 64, 1)
		view, err := factory.CreateImageView(image, hal.ImageViewType2D, hal.FormatUndefined, hal.ImageSubresourceRange{})
		require.NoError(t, err)
		require.Equal(t, hal.FormatR8G8B8A8Unorm, view.Format())
		require.Equal(t, image.FullRange(), view.Range())

		framebuffer, err := factory.CreateFramebuffer(FramebufferCreateInfo{
			Attachments: []*ImageView{view},
			Width:       128,
			Height:      64,
		})
		require.NoError(t, err)
		require.False(t, framebuffer.Imageless())
		require.Equal(t, 1, framebuffer.Layers())

		require.NoError(t, framebuffer.Destroy())
		require.NoError(t, view.Destroy())
		require.NoError(t, image.Destroy())
	})

	t.Run("Imageless Requires Extension", func(t *testing.T) {
		_, factory, _ := readyFactory(t)

		_, err := factory.CreateFramebuffer(FramebufferCreateInfo{
			AttachmentImageInfos: []hal.FramebufferAttachmentImageInfo{{Usage: core1_0.ImageUsageColorAttachment, Width: 16, Height: 16, LayerCount: 1}},
			Width:                16,
			Height:               16,
		})
		require.True(t, vkerr.Is(err, vkerr.ExtensionUnsupported))
	})

	t.Run("Imageless", func(t *testing.T) {
		_, factory, _ := readyFactory(t, hal.ExtImagelessFramebuffer)

		framebuffer, err := factory.CreateFramebuffer(FramebufferCreateInfo{
			AttachmentImageInfos: []hal.FramebufferAttachmentImageInfo{{Usage: core1_0.ImageUsageColorAttachment, Width: 16, Height: 16, LayerCount: 1}},
			Width:                16,
			Height:               16,
		})
		require.NoError(t, err)
		require.True(t, framebuffer.Imageless())
		require.NoError(t, framebuffer.Destroy())
	})
}

func TestSamplerValidates(t *testing.T) {
	_, factory, _ := readyFactory(t)

	_, err := factory.CreateSampler(hal.SamplerCreateInfo{AnisotropyEnable: true, MaxAnisotropy: 0})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	sampler, err := factory.CreateSampler(hal.SamplerCreateInfo{MagFilter: hal.FilterLinear, MinFilter: hal.FilterLinear, MaxLod: 4})
	require.NoError(t, err)
	require.NoError(t, sampler.Destroy())
}
