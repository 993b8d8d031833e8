package hal

import (
	"time"

	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// PhysicalDeviceLimits carries the subset of device limits the layers above the driver depend on
type PhysicalDeviceLimits struct {
	BufferImageGranularity   int
	NonCoherentAtomSize      int
	MaxMemoryAllocationCount int
	MinMemoryMapAlignment    int
	MaxBoundDescriptorSets   int
	MaxPushConstantsSize     int
	TimestampPeriod          float32
}

// PhysicalDeviceInfo describes the physical device a Device was created from
type PhysicalDeviceInfo struct {
	VendorID          uint32
	DeviceID          uint32
	DeviceType        core1_0.PhysicalDeviceType
	DeviceName        string
	APIVersion        uint32
	DriverVersion     uint32
	PipelineCacheUUID uuid.UUID
	DriverUUID        uuid.UUID
	Limits            PhysicalDeviceLimits
	Memory            core1_0.PhysicalDeviceMemoryProperties
}

// MemoryRequirements describes the memory a buffer or image needs. The dedicated fields are
// populated from the dedicated-allocation extension when it is enabled.
type MemoryRequirements struct {
	core1_0.MemoryRequirements

	PrefersDedicated  bool
	RequiresDedicated bool
}

// MemoryAllocateInfo is the request passed to the driver for a new device memory object
type MemoryAllocateInfo struct {
	Size            int
	MemoryTypeIndex int

	// Priority is only honored when HasPriority is set, which requires the memory priority extension
	Priority    float32
	HasPriority bool

	DedicatedBuffer Handle
	DedicatedImage  Handle

	DeviceAddress     bool
	DeviceMask        uint32
	ExportHandleTypes uint32
}

// MappedRange is a range of mapped device memory to flush or invalidate
type MappedRange struct {
	Memory Handle
	Offset int
	Size   int
}

type Offset2D struct {
	X, Y int
}

type Extent2D struct {
	Width, Height int
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Offset3D struct {
	X, Y, Z int
}

type ImageSubresourceRange struct {
	AspectMask     ImageAspectFlags
	BaseMipLevel   int
	LevelCount     int
	BaseArrayLayer int
	LayerCount     int
}

type ImageSubresourceLayers struct {
	AspectMask     ImageAspectFlags
	MipLevel       int
	BaseArrayLayer int
	LayerCount     int
}

type BufferCreateInfo struct {
	Flags              BufferCreateFlags
	Size               int
	Usage              core1_0.BufferUsageFlags
	SharingMode        core1_0.SharingMode
	QueueFamilyIndices []int
}

type ImageCreateInfo struct {
	Flags              ImageCreateFlags
	ImageType          ImageType
	Format             Format
	Extent             core1_0.Extent3D
	MipLevels          int
	ArrayLayers        int
	Samples            SampleCountFlags
	Tiling             ImageTiling
	Usage              core1_0.ImageUsageFlags
	SharingMode        core1_0.SharingMode
	QueueFamilyIndices []int
	InitialLayout      ImageLayout
}

type ImageViewCreateInfo struct {
	Image            Handle
	ViewType         ImageViewType
	Format           Format
	SubresourceRange ImageSubresourceRange
}

type SamplerCreateInfo struct {
	MagFilter               Filter
	MinFilter               Filter
	MipmapMode              SamplerMipmapMode
	AddressModeU            SamplerAddressMode
	AddressModeV            SamplerAddressMode
	AddressModeW            SamplerAddressMode
	MipLodBias              float32
	AnisotropyEnable        bool
	MaxAnisotropy           float32
	CompareEnable           bool
	CompareOp               CompareOp
	MinLod                  float32
	MaxLod                  float32
	BorderColor             BorderColor
	UnnormalizedCoordinates bool
}

type ShaderModuleCreateInfo struct {
	Code []uint32
}

type DescriptorSetLayoutBinding struct {
	Binding           int
	DescriptorType    DescriptorType
	DescriptorCount   int
	StageFlags        ShaderStageFlags
	ImmutableSamplers []Handle
}

type DescriptorSetLayoutCreateInfo struct {
	Bindings []DescriptorSetLayoutBinding
}

type DescriptorPoolSize struct {
	Type            DescriptorType
	DescriptorCount int
}

type DescriptorPoolCreateInfo struct {
	Flags     DescriptorPoolCreateFlags
	MaxSets   int
	PoolSizes []DescriptorPoolSize
}

type DescriptorImageInfo struct {
	Sampler     Handle
	ImageView   Handle
	ImageLayout ImageLayout
}

type DescriptorBufferInfo struct {
	Buffer Handle
	Offset int
	Range  int
}

// WriteDescriptorSet is a write record for UpdateDescriptorSets. Exactly one of the info
// slices is populated, according to DescriptorType.
type WriteDescriptorSet struct {
	DstSet          Handle
	DstBinding      int
	DstArrayElement int
	DescriptorType  DescriptorType

	ImageInfo              []DescriptorImageInfo
	BufferInfo             []DescriptorBufferInfo
	TexelBufferView        []Handle
	AccelerationStructures []Handle
}

type PushConstantRange struct {
	StageFlags ShaderStageFlags
	Offset     int
	Size       int
}

type PipelineLayoutCreateInfo struct {
	SetLayouts         []Handle
	PushConstantRanges []PushConstantRange
}

type AttachmentDescription struct {
	Format         Format
	Samples        SampleCountFlags
	LoadOp         AttachmentLoadOp
	StoreOp        AttachmentStoreOp
	StencilLoadOp  AttachmentLoadOp
	StencilStoreOp AttachmentStoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout

	// StencilInitialLayout and StencilFinalLayout are only used with separate depth-stencil layouts
	StencilInitialLayout ImageLayout
	StencilFinalLayout   ImageLayout
}

// AttachmentUnused marks an attachment reference that points to no attachment
const AttachmentUnused = -1

type AttachmentReference struct {
	Attachment int
	Layout     ImageLayout
}

type SubpassDescription struct {
	BindPoint              PipelineBindPoint
	InputAttachments       []AttachmentReference
	ColorAttachments       []AttachmentReference
	ResolveAttachments     []AttachmentReference
	DepthStencilAttachment *AttachmentReference
	PreserveAttachments    []int
}

// SubpassExternal refers to commands outside the render pass in a subpass dependency
const SubpassExternal = -1

type SubpassDependency struct {
	SrcSubpass      int
	DstSubpass      int
	SrcStageMask    PipelineStageFlags
	DstStageMask    PipelineStageFlags
	SrcAccessMask   AccessFlags
	DstAccessMask   AccessFlags
	DependencyFlags DependencyFlags
}

type RenderPassCreateInfo struct {
	Attachments  []AttachmentDescription
	Subpasses    []SubpassDescription
	Dependencies []SubpassDependency
}

// FramebufferAttachmentImageInfo describes an attachment of an imageless framebuffer
type FramebufferAttachmentImageInfo struct {
	Usage       core1_0.ImageUsageFlags
	Width       int
	Height      int
	LayerCount  int
	ViewFormats []Format
}

type FramebufferCreateInfo struct {
	Flags                FramebufferCreateFlags
	RenderPass           Handle
	Attachments          []Handle
	AttachmentImageInfos []FramebufferAttachmentImageInfo
	Width                int
	Height               int
	Layers               int
}

type CommandPoolCreateInfo struct {
	Flags            CommandPoolCreateFlags
	QueueFamilyIndex int
}

type CommandBufferAllocateInfo struct {
	CommandPool Handle
	Level       CommandBufferLevel
	Count       int
}

type FenceCreateInfo struct {
	Signaled bool
}

type SemaphoreCreateInfo struct {
	// Timeline creates a timeline semaphore starting at InitialValue
	Timeline     bool
	InitialValue uint64
}

type SubmitInfo struct {
	WaitSemaphores   []Handle
	WaitValues       []uint64
	WaitDstStageMask []PipelineStageFlags
	CommandBuffers   []Handle
	SignalSemaphores []Handle
	SignalValues     []uint64
}

// WaitTimeoutInfinite waits without a timeout
const WaitTimeoutInfinite time.Duration = -1
