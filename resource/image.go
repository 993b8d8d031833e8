package resource

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vam"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// ImageCreateInfo describes an image and the memory that backs it
type ImageCreateInfo struct {
	Flags         hal.ImageCreateFlags
	Type          hal.ImageType
	Format        hal.Format
	Extent        core1_0.Extent3D
	MipLevels     int
	ArrayLayers   int
	Samples       hal.SampleCountFlags
	Tiling        hal.ImageTiling
	Usage         core1_0.ImageUsageFlags
	SharingMode   core1_0.SharingMode
	QueueFamilies []int
	// InitialLayout must be ImageLayoutUndefined or ImageLayoutPreinitialized
	InitialLayout hal.ImageLayout

	MappingRequired bool
	Transient       bool
	Dedicated       bool
	Priority        float32
	Name            string
}

func (i ImageCreateInfo) driverInfo() hal.ImageCreateInfo {
	samples := i.Samples
	if samples == 0 {
		samples = hal.Samples1
	}

	return hal.ImageCreateInfo{
		Flags:              i.Flags,
		ImageType:          i.Type,
		Format:             i.Format,
		Extent:             i.Extent,
		MipLevels:          i.MipLevels,
		ArrayLayers:        i.ArrayLayers,
		Samples:            samples,
		Tiling:             i.Tiling,
		Usage:              i.Usage,
		SharingMode:        i.SharingMode,
		QueueFamilyIndices: i.QueueFamilies,
		InitialLayout:      i.InitialLayout,
	}
}

func (i *ImageCreateInfo) normalize() error {
	if i.MipLevels == 0 {
		i.MipLevels = 1
	}
	if i.ArrayLayers == 0 {
		i.ArrayLayers = 1
	}
	if i.Extent.Depth == 0 {
		i.Extent.Depth = 1
	}

	if i.Extent.Width < 1 || i.Extent.Height < 1 || i.Extent.Depth < 1 {
		return vkerr.New(vkerr.ValidationError, "image extent %dx%dx%d must be positive", i.Extent.Width, i.Extent.Height, i.Extent.Depth)
	}
	if i.MipLevels < 1 || i.ArrayLayers < 1 {
		return vkerr.New(vkerr.ValidationError, "image must have at least one mip level and array layer, but has %d and %d", i.MipLevels, i.ArrayLayers)
	}
	if i.InitialLayout != hal.ImageLayoutUndefined && i.InitialLayout != hal.ImageLayoutPreinitialized {
		return vkerr.New(vkerr.ValidationError, "image initial layout must be Undefined or Preinitialized, but was %s", i.InitialLayout)
	}

	return validateSharing(i.SharingMode, i.QueueFamilies)
}

// ImageBarrierRecorder records image memory barriers. The recorder is responsible for moving the
// image's tracked layouts once the barriers are recorded, via Image.CommitLayouts.
type ImageBarrierRecorder interface {
	ImageBarrier(image *Image, srcStage, dstStage hal.PipelineStageFlags, barriers ...hal.ImageMemoryBarrier)
}

// Image is a driver image bound to an allocation it owns, together with the layout of each of
// its subresources
type Image struct {
	factory *Factory
	handle  hal.Handle
	info    ImageCreateInfo
	alloc   *vam.Allocation
	layouts *LayoutTracker
}

var _ Resource = (*Image)(nil)

// CreateImage creates an image, allocates memory for it and binds the two. If any step fails,
// everything created so far is released.
func (f *Factory) CreateImage(info ImageCreateInfo) (*Image, error) {
	f.debugLog("Factory::CreateImage",
		slog.String("format", info.Format.String()),
		slog.Int("width", info.Extent.Width),
		slog.Int("height", info.Extent.Height),
		slog.Int("mipLevels", info.MipLevels),
		slog.String("name", info.Name))

	err := info.normalize()
	if err != nil {
		return nil, err
	}

	image := &Image{
		factory: f,
		info:    info,
		layouts: NewLayoutTracker(info.MipLevels, info.ArrayLayers, info.InitialLayout),
	}

	handle, err := f.createImageHandle(info)
	if err != nil {
		return nil, err
	}
	object := hal.NewObject(hal.ObjectTypeImage, handle)

	alloc, err := f.bindImage(info, object)
	if err != nil {
		f.destroy(object)
		return nil, err
	}

	image.handle = handle
	image.alloc = alloc
	return image, nil
}

func (f *Factory) createImageHandle(info ImageCreateInfo) (hal.Handle, error) {
	handle, res := f.device.CreateImage(info.driverInfo(), nil)
	err := vkerr.FromResultf(res, "failed to create image %q", info.Name)
	if err != nil {
		return hal.NullHandle, err
	}

	f.track(hal.NewObject(hal.ObjectTypeImage, handle), info.Name)
	return handle, nil
}

func (f *Factory) bindImage(info ImageCreateInfo, object hal.Object) (*vam.Allocation, error) {
	requirements := f.device.ImageMemoryRequirements(object.Handle)

	createInfo := memoryInfo(info.MappingRequired, info.Transient, info.Dedicated, info.Priority, info.Name)
	createInfo.Tiling = info.Tiling
	alloc, err := f.allocator.Alloc(requirements, createInfo, object)
	if err != nil {
		return nil, err
	}

	err = alloc.Bind(0, object)
	if err != nil {
		return nil, errors.CombineErrors(err, alloc.Free())
	}

	return alloc, nil
}

func (i *Image) Handle() hal.Handle { return i.handle }

func (i *Image) Object() hal.Object { return hal.NewObject(hal.ObjectTypeImage, i.handle) }

func (i *Image) Format() hal.Format { return i.info.Format }

func (i *Image) Type() hal.ImageType { return i.info.Type }

func (i *Image) Extent() core1_0.Extent3D { return i.info.Extent }

func (i *Image) MipLevels() int { return i.info.MipLevels }

func (i *Image) ArrayLayers() int { return i.info.ArrayLayers }

func (i *Image) Usage() core1_0.ImageUsageFlags { return i.info.Usage }

func (i *Image) Name() string { return i.info.Name }

// Allocation returns the memory the image is bound to, or nil once the image is destroyed
func (i *Image) Allocation() *vam.Allocation { return i.alloc }

// Layouts returns the tracker holding the layout of each subresource
func (i *Image) Layouts() *LayoutTracker { return i.layouts }

// VirtualMipExtent returns the texel extent of a mip level: each dimension of the base extent
// shifted down by level, never less than one
func (i *Image) VirtualMipExtent(level int) core1_0.Extent3D {
	return VirtualMipExtent(i.info.Extent, level)
}

// MipExtent returns the extent of a mip level as it is stored: the virtual extent rounded up to
// whole texel blocks of the image's format
func (i *Image) MipExtent(level int) core1_0.Extent3D {
	return MipExtent(i.info.Format, i.info.Extent, level)
}

// VirtualMipExtent returns the texel extent of level for an image whose base extent is base
func VirtualMipExtent(base core1_0.Extent3D, level int) core1_0.Extent3D {
	return core1_0.Extent3D{
		Width:  max(1, base.Width>>level),
		Height: max(1, base.Height>>level),
		Depth:  max(1, base.Depth>>level),
	}
}

// MipExtent returns the virtual extent of level rounded up to whole blocks of format
func MipExtent(format hal.Format, base core1_0.Extent3D, level int) core1_0.Extent3D {
	extent := VirtualMipExtent(base, level)

	block, ok := format.Block()
	if !ok {
		return extent
	}

	return core1_0.Extent3D{
		Width:  roundUp(extent.Width, block.Width),
		Height: roundUp(extent.Height, block.Height),
		Depth:  roundUp(extent.Depth, block.Depth),
	}
}

func roundUp(value, multiple int) int {
	if multiple <= 1 {
		return value
	}

	return (value + multiple - 1) / multiple * multiple
}

// FullRange returns the subresource range covering every aspect, mip level and array layer
func (i *Image) FullRange() hal.ImageSubresourceRange {
	return hal.ImageSubresourceRange{
		AspectMask:     i.info.Format.Aspects(),
		BaseMipLevel:   0,
		LevelCount:     i.info.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     i.info.ArrayLayers,
	}
}

// QueueFamilyTransfer moves ownership of the image between queue families as part of a barrier
type QueueFamilyTransfer struct {
	Src int
	Dst int
}

// BarrierOptions adjusts the barriers Image.Barrier builds
type BarrierOptions struct {
	// Range limits the barrier to part of the image; nil selects the whole image
	Range *hal.ImageSubresourceRange
	// Discard uses ImageLayoutUndefined as the old layout, which lets the driver drop the
	// current contents
	Discard bool
	// Ownership transfers the image between queue families; nil performs no transfer
	Ownership *QueueFamilyTransfer
	// SrcStage and SrcAccess override the stage and access derived from the current layouts
	SrcStage  hal.PipelineStageFlags
	SrcAccess hal.AccessFlags
}

// Barrier builds the barriers that move a range of the image to newLayout. One barrier is built
// for each run of subresources that share a current layout; the returned source stage covers all
// of them. The tracked layouts are not changed until CommitLayouts is called with the barriers.
func (i *Image) Barrier(newLayout hal.ImageLayout, dstStage hal.PipelineStageFlags, dstAccess hal.AccessFlags, options BarrierOptions) (hal.PipelineStageFlags, []hal.ImageMemoryBarrier) {
	subresources := i.FullRange()
	if options.Range != nil {
		subresources = *options.Range
		if subresources.AspectMask == 0 {
			subresources.AspectMask = i.info.Format.Aspects()
		}
	}

	srcFamily, dstFamily := hal.QueueFamilyIgnored, hal.QueueFamilyIgnored
	if options.Ownership != nil {
		srcFamily, dstFamily = options.Ownership.Src, options.Ownership.Dst
	}

	runs := i.layouts.Runs(subresources)
	if options.Discard {
		runs = []LayoutRun{{Range: i.layouts.Resolve(subresources), Layout: hal.ImageLayoutUndefined}}
	}

	var srcStage hal.PipelineStageFlags
	barriers := make([]hal.ImageMemoryBarrier, 0, len(runs))
	for _, run := range runs {
		stage, access := layoutUsage(run.Layout)
		if options.SrcStage != 0 {
			stage, access = options.SrcStage, options.SrcAccess
		}
		srcStage |= stage

		barriers = append(barriers, hal.ImageMemoryBarrier{
			SrcAccessMask:       access,
			DstAccessMask:       dstAccess,
			OldLayout:           run.Layout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: srcFamily,
			DstQueueFamilyIndex: dstFamily,
			Image:               i.handle,
			SubresourceRange:    run.Range,
		})
	}

	if srcStage == 0 {
		srcStage = hal.PipelineStageTopOfPipe
	}
	return srcStage, barriers
}

// LayoutTransition records the barriers that move the whole image to newLayout
func (i *Image) LayoutTransition(rec ImageBarrierRecorder, newLayout hal.ImageLayout, dstStage hal.PipelineStageFlags, dstAccess hal.AccessFlags) {
	i.Transition(rec, newLayout, dstStage, dstAccess, BarrierOptions{})
}

// Transition records the barriers Barrier builds for options
func (i *Image) Transition(rec ImageBarrierRecorder, newLayout hal.ImageLayout, dstStage hal.PipelineStageFlags, dstAccess hal.AccessFlags, options BarrierOptions) {
	srcStage, barriers := i.Barrier(newLayout, dstStage, dstAccess, options)
	if len(barriers) == 0 {
		return
	}

	rec.ImageBarrier(i, srcStage, dstStage, barriers...)
}

// CommitLayouts moves the tracked layouts to the new layouts of barriers that were recorded
// against this image. Barriers for other images are ignored.
func (i *Image) CommitLayouts(barriers ...hal.ImageMemoryBarrier) {
	for _, barrier := range barriers {
		if barrier.Image != i.handle {
			continue
		}

		i.layouts.Set(barrier.SubresourceRange, barrier.NewLayout)
	}
}

// Rebind recreates the image handle over its allocation. It must be called for every image whose
// allocation a defragmentation moved. The contents are not preserved by the driver, so every
// subresource returns to ImageLayoutUndefined.
func (i *Image) Rebind() error {
	if i.alloc == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to rebind image %q, which has been destroyed", i.info.Name)
	}

	info := i.info
	info.InitialLayout = hal.ImageLayoutUndefined
	handle, err := i.factory.createImageHandle(info)
	if err != nil {
		return err
	}
	object := hal.NewObject(hal.ObjectTypeImage, handle)

	err = i.alloc.Bind(0, object)
	if err != nil {
		i.factory.destroy(object)
		return err
	}

	i.factory.destroy(i.Object())
	i.handle = handle
	i.layouts = NewLayoutTracker(i.info.MipLevels, i.info.ArrayLayers, hal.ImageLayoutUndefined)
	return nil
}

// Destroy destroys the image and returns its memory. Destroying an image twice does nothing.
func (i *Image) Destroy() error {
	if i.alloc == nil && i.handle.IsNull() {
		return nil
	}

	i.factory.destroy(i.Object())
	i.handle = hal.NullHandle

	err := i.alloc.Free()
	i.alloc = nil
	return err
}
