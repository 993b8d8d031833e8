package hal

import (
	"fmt"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// ImageLayout is the driver's image layout enumeration
type ImageLayout int32

const (
	ImageLayoutUndefined                             ImageLayout = 0
	ImageLayoutGeneral                               ImageLayout = 1
	ImageLayoutColorAttachmentOptimal                ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal         ImageLayout = 3
	ImageLayoutDepthStencilReadOnlyOptimal           ImageLayout = 4
	ImageLayoutShaderReadOnlyOptimal                 ImageLayout = 5
	ImageLayoutTransferSrcOptimal                    ImageLayout = 6
	ImageLayoutTransferDstOptimal                    ImageLayout = 7
	ImageLayoutPreinitialized                        ImageLayout = 8
	ImageLayoutPresentSrc                            ImageLayout = 1000001002
	ImageLayoutDepthReadOnlyStencilAttachmentOptimal ImageLayout = 1000117000
	ImageLayoutDepthAttachmentStencilReadOnlyOptimal ImageLayout = 1000117001
	ImageLayoutDepthAttachmentOptimal                ImageLayout = 1000241000
	ImageLayoutDepthReadOnlyOptimal                  ImageLayout = 1000241001
	ImageLayoutStencilAttachmentOptimal              ImageLayout = 1000241002
	ImageLayoutStencilReadOnlyOptimal                ImageLayout = 1000241003
)

var imageLayoutMapping = map[ImageLayout]string{
	ImageLayoutUndefined:                             "Undefined",
	ImageLayoutGeneral:                               "General",
	ImageLayoutColorAttachmentOptimal:                "ColorAttachmentOptimal",
	ImageLayoutDepthStencilAttachmentOptimal:         "DepthStencilAttachmentOptimal",
	ImageLayoutDepthStencilReadOnlyOptimal:           "DepthStencilReadOnlyOptimal",
	ImageLayoutShaderReadOnlyOptimal:                 "ShaderReadOnlyOptimal",
	ImageLayoutTransferSrcOptimal:                    "TransferSrcOptimal",
	ImageLayoutTransferDstOptimal:                    "TransferDstOptimal",
	ImageLayoutPreinitialized:                        "Preinitialized",
	ImageLayoutPresentSrc:                            "PresentSrc",
	ImageLayoutDepthReadOnlyStencilAttachmentOptimal: "DepthReadOnlyStencilAttachmentOptimal",
	ImageLayoutDepthAttachmentStencilReadOnlyOptimal: "DepthAttachmentStencilReadOnlyOptimal",
	ImageLayoutDepthAttachmentOptimal:                "DepthAttachmentOptimal",
	ImageLayoutDepthReadOnlyOptimal:                  "DepthReadOnlyOptimal",
	ImageLayoutStencilAttachmentOptimal:              "StencilAttachmentOptimal",
	ImageLayoutStencilReadOnlyOptimal:                "StencilReadOnlyOptimal",
}

func (l ImageLayout) String() string {
	str, ok := imageLayoutMapping[l]
	if !ok {
		return fmt.Sprintf("ImageLayout(%d)", int32(l))
	}
	return str
}

// AccessFlags is the driver's memory access mask
type AccessFlags int32

const (
	AccessIndirectCommandRead         AccessFlags = 0x00000001
	AccessIndexRead                   AccessFlags = 0x00000002
	AccessVertexAttributeRead         AccessFlags = 0x00000004
	AccessUniformRead                 AccessFlags = 0x00000008
	AccessInputAttachmentRead         AccessFlags = 0x00000010
	AccessShaderRead                  AccessFlags = 0x00000020
	AccessShaderWrite                 AccessFlags = 0x00000040
	AccessColorAttachmentRead         AccessFlags = 0x00000080
	AccessColorAttachmentWrite        AccessFlags = 0x00000100
	AccessDepthStencilAttachmentRead  AccessFlags = 0x00000200
	AccessDepthStencilAttachmentWrite AccessFlags = 0x00000400
	AccessTransferRead                AccessFlags = 0x00000800
	AccessTransferWrite               AccessFlags = 0x00001000
	AccessHostRead                    AccessFlags = 0x00002000
	AccessHostWrite                   AccessFlags = 0x00004000
	AccessMemoryRead                  AccessFlags = 0x00008000
	AccessMemoryWrite                 AccessFlags = 0x00010000
	AccessTransformFeedbackWrite      AccessFlags = 0x02000000
	AccessConditionalRenderingRead    AccessFlags = 0x00100000
	AccessAccelerationStructureRead   AccessFlags = 0x00200000
	AccessAccelerationStructureWrite  AccessFlags = 0x00400000
)

var accessFlagsMapping = common.NewFlagStringMapping[AccessFlags]()

func (f AccessFlags) Register(str string) {
	accessFlagsMapping.Register(f, str)
}

func (f AccessFlags) String() string {
	return accessFlagsMapping.FlagsToString(f)
}

// PipelineStageFlags is the driver's pipeline stage mask
type PipelineStageFlags int32

const (
	PipelineStageTopOfPipe                  PipelineStageFlags = 0x00000001
	PipelineStageDrawIndirect               PipelineStageFlags = 0x00000002
	PipelineStageVertexInput                PipelineStageFlags = 0x00000004
	PipelineStageVertexShader               PipelineStageFlags = 0x00000008
	PipelineStageTessellationControlShader  PipelineStageFlags = 0x00000010
	PipelineStageTessellationEvalShader     PipelineStageFlags = 0x00000020
	PipelineStageGeometryShader             PipelineStageFlags = 0x00000040
	PipelineStageFragmentShader             PipelineStageFlags = 0x00000080
	PipelineStageEarlyFragmentTests         PipelineStageFlags = 0x00000100
	PipelineStageLateFragmentTests          PipelineStageFlags = 0x00000200
	PipelineStageColorAttachmentOutput      PipelineStageFlags = 0x00000400
	PipelineStageComputeShader              PipelineStageFlags = 0x00000800
	PipelineStageTransfer                   PipelineStageFlags = 0x00001000
	PipelineStageBottomOfPipe               PipelineStageFlags = 0x00002000
	PipelineStageHost                       PipelineStageFlags = 0x00004000
	PipelineStageAllGraphics                PipelineStageFlags = 0x00008000
	PipelineStageAllCommands                PipelineStageFlags = 0x00010000
	PipelineStageTransformFeedback          PipelineStageFlags = 0x01000000
	PipelineStageConditionalRendering       PipelineStageFlags = 0x00040000
	PipelineStageAccelerationStructureBuild PipelineStageFlags = 0x02000000
	PipelineStageRayTracingShader           PipelineStageFlags = 0x00200000
	PipelineStageTaskShader                 PipelineStageFlags = 0x00080000
	PipelineStageMeshShader                 PipelineStageFlags = 0x00100000
)

var pipelineStageMapping = common.NewFlagStringMapping[PipelineStageFlags]()

func (f PipelineStageFlags) Register(str string) {
	pipelineStageMapping.Register(f, str)
}

func (f PipelineStageFlags) String() string {
	return pipelineStageMapping.FlagsToString(f)
}

// ImageAspectFlags selects the aspects of an image a range refers to
type ImageAspectFlags int32

const (
	ImageAspectColor   ImageAspectFlags = 0x1
	ImageAspectDepth   ImageAspectFlags = 0x2
	ImageAspectStencil ImageAspectFlags = 0x4
)

type ImageType int32

const (
	ImageType1D ImageType = 0
	ImageType2D ImageType = 1
	ImageType3D ImageType = 2
)

type ImageViewType int32

const (
	ImageViewType1D        ImageViewType = 0
	ImageViewType2D        ImageViewType = 1
	ImageViewType3D        ImageViewType = 2
	ImageViewTypeCube      ImageViewType = 3
	ImageViewType1DArray   ImageViewType = 4
	ImageViewType2DArray   ImageViewType = 5
	ImageViewTypeCubeArray ImageViewType = 6
)

type ImageTiling int32

const (
	ImageTilingOptimal ImageTiling = 0
	ImageTilingLinear  ImageTiling = 1
)

type ImageCreateFlags int32

const (
	ImageCreateSparseBinding   ImageCreateFlags = 0x01
	ImageCreateMutableFormat   ImageCreateFlags = 0x08
	ImageCreateCubeCompatible  ImageCreateFlags = 0x10
	ImageCreateAlias           ImageCreateFlags = 0x400
	ImageCreate2DArrayCompat   ImageCreateFlags = 0x20
	ImageCreateBlockTexelViews ImageCreateFlags = 0x80
)

type BufferCreateFlags int32

const (
	BufferCreateSparseBinding               BufferCreateFlags = 0x01
	BufferCreateDeviceAddressCaptureReplay BufferCreateFlags = 0x10
)

// Buffer usages that live outside the core 1.0 vocabulary
const (
	BufferUsageShaderDeviceAddress                    core1_0.BufferUsageFlags = 0x00020000
	BufferUsageTransformFeedbackBuffer                core1_0.BufferUsageFlags = 0x00000800
	BufferUsageConditionalRendering                   core1_0.BufferUsageFlags = 0x00000200
	BufferUsageShaderBindingTable                     core1_0.BufferUsageFlags = 0x00000400
	BufferUsageAccelerationStructureBuildInputReadOnly core1_0.BufferUsageFlags = 0x00080000
	BufferUsageAccelerationStructureStorage           core1_0.BufferUsageFlags = 0x00100000
)

type SampleCountFlags int32

const (
	Samples1  SampleCountFlags = 0x01
	Samples2  SampleCountFlags = 0x02
	Samples4  SampleCountFlags = 0x04
	Samples8  SampleCountFlags = 0x08
	Samples16 SampleCountFlags = 0x10
	Samples32 SampleCountFlags = 0x20
	Samples64 SampleCountFlags = 0x40
)

type ShaderStageFlags int32

const (
	StageVertex                 ShaderStageFlags = 0x00000001
	StageTessellationControl    ShaderStageFlags = 0x00000002
	StageTessellationEvaluation ShaderStageFlags = 0x00000004
	StageGeometry               ShaderStageFlags = 0x00000008
	StageFragment               ShaderStageFlags = 0x00000010
	StageCompute                ShaderStageFlags = 0x00000020
	StageAllGraphics            ShaderStageFlags = 0x0000001F
	StageTask                   ShaderStageFlags = 0x00000040
	StageMesh                   ShaderStageFlags = 0x00000080
	StageRaygen                 ShaderStageFlags = 0x00000100
	StageAnyHit                 ShaderStageFlags = 0x00000200
	StageClosestHit             ShaderStageFlags = 0x00000400
	StageMiss                   ShaderStageFlags = 0x00000800
	StageIntersection           ShaderStageFlags = 0x00001000
	StageCallable               ShaderStageFlags = 0x00002000
	StageAll                    ShaderStageFlags = 0x7FFFFFFF
)

var shaderStageMapping = common.NewFlagStringMapping[ShaderStageFlags]()

func (f ShaderStageFlags) Register(str string) {
	shaderStageMapping.Register(f, str)
}

func (f ShaderStageFlags) String() string {
	return shaderStageMapping.FlagsToString(f)
}

type DescriptorType int32

const (
	DescriptorTypeSampler               DescriptorType = 0
	DescriptorTypeCombinedImageSampler  DescriptorType = 1
	DescriptorTypeSampledImage          DescriptorType = 2
	DescriptorTypeStorageImage          DescriptorType = 3
	DescriptorTypeUniformTexelBuffer    DescriptorType = 4
	DescriptorTypeStorageTexelBuffer    DescriptorType = 5
	DescriptorTypeUniformBuffer         DescriptorType = 6
	DescriptorTypeStorageBuffer         DescriptorType = 7
	DescriptorTypeUniformBufferDynamic  DescriptorType = 8
	DescriptorTypeStorageBufferDynamic  DescriptorType = 9
	DescriptorTypeInputAttachment       DescriptorType = 10
	DescriptorTypeAccelerationStructure DescriptorType = 1000150000
)

var descriptorTypeMapping = map[DescriptorType]string{
	DescriptorTypeSampler:               "Sampler",
	DescriptorTypeCombinedImageSampler:  "CombinedImageSampler",
	DescriptorTypeSampledImage:          "SampledImage",
	DescriptorTypeStorageImage:          "StorageImage",
	DescriptorTypeUniformTexelBuffer:    "UniformTexelBuffer",
	DescriptorTypeStorageTexelBuffer:    "StorageTexelBuffer",
	DescriptorTypeUniformBuffer:         "UniformBuffer",
	DescriptorTypeStorageBuffer:         "StorageBuffer",
	DescriptorTypeUniformBufferDynamic:  "UniformBufferDynamic",
	DescriptorTypeStorageBufferDynamic:  "StorageBufferDynamic",
	DescriptorTypeInputAttachment:       "InputAttachment",
	DescriptorTypeAccelerationStructure: "AccelerationStructure",
}

func (t DescriptorType) String() string {
	str, ok := descriptorTypeMapping[t]
	if !ok {
		return fmt.Sprintf("DescriptorType(%d)", int32(t))
	}
	return str
}

type PipelineBindPoint int32

const (
	BindPointGraphics   PipelineBindPoint = 0
	BindPointCompute    PipelineBindPoint = 1
	BindPointRayTracing PipelineBindPoint = 1000165000
)

var bindPointMapping = map[PipelineBindPoint]string{
	BindPointGraphics:   "Graphics",
	BindPointCompute:    "Compute",
	BindPointRayTracing: "RayTracing",
}

func (p PipelineBindPoint) String() string {
	str, ok := bindPointMapping[p]
	if !ok {
		return fmt.Sprintf("PipelineBindPoint(%d)", int32(p))
	}
	return str
}

type PipelineCreateFlags int32

const (
	PipelineCreateDisableOptimization PipelineCreateFlags = 0x00000001
	PipelineCreateAllowDerivatives    PipelineCreateFlags = 0x00000002
	PipelineCreateDerivative          PipelineCreateFlags = 0x00000004
	PipelineCreateDispatchBase        PipelineCreateFlags = 0x00000010
	PipelineCreateLibrary             PipelineCreateFlags = 0x00000800
)

type PipelineShaderStageCreateFlags int32

type DynamicState int32

const (
	DynamicStateViewport            DynamicState = 0
	DynamicStateScissor             DynamicState = 1
	DynamicStateLineWidth           DynamicState = 2
	DynamicStateDepthBias           DynamicState = 3
	DynamicStateBlendConstants      DynamicState = 4
	DynamicStateDepthBounds         DynamicState = 5
	DynamicStateStencilCompareMask  DynamicState = 6
	DynamicStateStencilWriteMask    DynamicState = 7
	DynamicStateStencilReference    DynamicState = 8
	DynamicStateFragmentShadingRate DynamicState = 1000226000
	DynamicStateLineStipple         DynamicState = 1000259000
	DynamicStateCullMode            DynamicState = 1000267000
)

type PrimitiveTopology int32

const (
	TopologyPointList     PrimitiveTopology = 0
	TopologyLineList      PrimitiveTopology = 1
	TopologyLineStrip     PrimitiveTopology = 2
	TopologyTriangleList  PrimitiveTopology = 3
	TopologyTriangleStrip PrimitiveTopology = 4
	TopologyTriangleFan   PrimitiveTopology = 5
	TopologyPatchList     PrimitiveTopology = 10
)

type VertexInputRate int32

const (
	VertexInputRateVertex   VertexInputRate = 0
	VertexInputRateInstance VertexInputRate = 1
)

type PolygonMode int32

const (
	PolygonModeFill  PolygonMode = 0
	PolygonModeLine  PolygonMode = 1
	PolygonModePoint PolygonMode = 2
)

type CullModeFlags int32

const (
	CullModeNone         CullModeFlags = 0
	CullModeFront        CullModeFlags = 1
	CullModeBack         CullModeFlags = 2
	CullModeFrontAndBack CullModeFlags = 3
)

type FrontFace int32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

type LineRasterizationMode int32

const (
	LineRasterizationDefault           LineRasterizationMode = 0
	LineRasterizationRectangular       LineRasterizationMode = 1
	LineRasterizationBresenham         LineRasterizationMode = 2
	LineRasterizationRectangularSmooth LineRasterizationMode = 3
)

type CompareOp int32

const (
	CompareNever          CompareOp = 0
	CompareLess           CompareOp = 1
	CompareEqual          CompareOp = 2
	CompareLessOrEqual    CompareOp = 3
	CompareGreater        CompareOp = 4
	CompareNotEqual       CompareOp = 5
	CompareGreaterOrEqual CompareOp = 6
	CompareAlways         CompareOp = 7
)

type StencilOp int32

const (
	StencilKeep              StencilOp = 0
	StencilZero              StencilOp = 1
	StencilReplace           StencilOp = 2
	StencilIncrementAndClamp StencilOp = 3
	StencilDecrementAndClamp StencilOp = 4
	StencilInvert            StencilOp = 5
	StencilIncrementAndWrap  StencilOp = 6
	StencilDecrementAndWrap  StencilOp = 7
)

type BlendFactor int32

const (
	BlendZero                  BlendFactor = 0
	BlendOne                   BlendFactor = 1
	BlendSrcColor              BlendFactor = 2
	BlendOneMinusSrcColor      BlendFactor = 3
	BlendDstColor              BlendFactor = 4
	BlendOneMinusDstColor      BlendFactor = 5
	BlendSrcAlpha              BlendFactor = 6
	BlendOneMinusSrcAlpha      BlendFactor = 7
	BlendDstAlpha              BlendFactor = 8
	BlendOneMinusDstAlpha      BlendFactor = 9
	BlendConstantColor         BlendFactor = 10
	BlendOneMinusConstantColor BlendFactor = 11
)

type BlendOp int32

const (
	BlendOpAdd             BlendOp = 0
	BlendOpSubtract        BlendOp = 1
	BlendOpReverseSubtract BlendOp = 2
	BlendOpMin             BlendOp = 3
	BlendOpMax             BlendOp = 4
)

type ColorComponentFlags int32

const (
	ColorComponentR   ColorComponentFlags = 0x1
	ColorComponentG   ColorComponentFlags = 0x2
	ColorComponentB   ColorComponentFlags = 0x4
	ColorComponentA   ColorComponentFlags = 0x8
	ColorComponentAll ColorComponentFlags = 0xF
)

type LogicOp int32

const (
	LogicOpClear LogicOp = 0
	LogicOpAnd   LogicOp = 1
	LogicOpCopy  LogicOp = 3
	LogicOpNoOp  LogicOp = 5
	LogicOpXor   LogicOp = 6
	LogicOpOr    LogicOp = 7
)

type AttachmentLoadOp int32

const (
	LoadOpLoad     AttachmentLoadOp = 0
	LoadOpClear    AttachmentLoadOp = 1
	LoadOpDontCare AttachmentLoadOp = 2
)

type AttachmentStoreOp int32

const (
	StoreOpStore    AttachmentStoreOp = 0
	StoreOpDontCare AttachmentStoreOp = 1
)

type IndexType int32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
	IndexTypeNone   IndexType = 1000165000
)

type Filter int32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type SamplerMipmapMode int32

const (
	MipmapModeNearest SamplerMipmapMode = 0
	MipmapModeLinear  SamplerMipmapMode = 1
)

type SamplerAddressMode int32

const (
	AddressModeRepeat         SamplerAddressMode = 0
	AddressModeMirroredRepeat SamplerAddressMode = 1
	AddressModeClampToEdge    SamplerAddressMode = 2
	AddressModeClampToBorder  SamplerAddressMode = 3
)

type BorderColor int32

const (
	BorderColorFloatTransparentBlack BorderColor = 0
	BorderColorIntTransparentBlack   BorderColor = 1
	BorderColorFloatOpaqueBlack      BorderColor = 2
	BorderColorIntOpaqueBlack        BorderColor = 3
	BorderColorFloatOpaqueWhite      BorderColor = 4
	BorderColorIntOpaqueWhite        BorderColor = 5
)

type CommandBufferUsageFlags int32

const (
	CommandBufferUsageOneTimeSubmit      CommandBufferUsageFlags = 0x1
	CommandBufferUsageRenderPassContinue CommandBufferUsageFlags = 0x2
	CommandBufferUsageSimultaneousUse    CommandBufferUsageFlags = 0x4
)

type CommandBufferLevel int32

const (
	CommandBufferLevelPrimary   CommandBufferLevel = 0
	CommandBufferLevelSecondary CommandBufferLevel = 1
)

type CommandPoolCreateFlags int32

const (
	CommandPoolCreateTransient          CommandPoolCreateFlags = 0x1
	CommandPoolCreateResetCommandBuffer CommandPoolCreateFlags = 0x2
)

type SubpassContents int32

const (
	SubpassContentsInline                  SubpassContents = 0
	SubpassContentsSecondaryCommandBuffers SubpassContents = 1
)

type DependencyFlags int32

const (
	DependencyByRegion DependencyFlags = 0x1
)

type QueryType int32

const (
	QueryTypeOcclusion          QueryType = 0
	QueryTypePipelineStatistics QueryType = 1
	QueryTypeTimestamp          QueryType = 2
)

type FramebufferCreateFlags int32

const (
	FramebufferCreateImageless FramebufferCreateFlags = 0x1
)

type DescriptorPoolCreateFlags int32

const (
	DescriptorPoolCreateFreeDescriptorSet DescriptorPoolCreateFlags = 0x1
)

// QueueFamilyIgnored marks a barrier that performs no queue family ownership transfer
const QueueFamilyIgnored = -1

// RemainingMipLevels and RemainingArrayLayers select every level or layer from the base onward
const (
	RemainingMipLevels   = -1
	RemainingArrayLayers = -1
)
