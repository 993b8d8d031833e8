package hal

import "time"

type SpecializationMapEntry struct {
	ConstantID uint32
	Offset     int
	Size       int
}

type SpecializationInfo struct {
	MapEntries []SpecializationMapEntry
	Data       []byte
}

type PipelineShaderStageCreateInfo struct {
	Flags          PipelineShaderStageCreateFlags
	Stage          ShaderStageFlags
	Module         Handle
	Name           string
	Specialization *SpecializationInfo
}

type VertexInputBindingDescription struct {
	Binding   int
	Stride    int
	InputRate VertexInputRate
}

type VertexInputAttributeDescription struct {
	Location int
	Binding  int
	Format   Format
	Offset   int
}

type VertexInputStateCreateInfo struct {
	Bindings   []VertexInputBindingDescription
	Attributes []VertexInputAttributeDescription
}

type InputAssemblyStateCreateInfo struct {
	Topology               PrimitiveTopology
	PrimitiveRestartEnable bool
}

type TessellationStateCreateInfo struct {
	PatchControlPoints int
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type ViewportStateCreateInfo struct {
	// ViewportCount and ScissorCount are used when Viewports/Scissors are dynamic
	ViewportCount int
	ScissorCount  int
	Viewports     []Viewport
	Scissors      []Rect2D
}

type RasterizationStateCreateInfo struct {
	DepthClampEnable        bool
	RasterizerDiscardEnable bool
	PolygonMode             PolygonMode
	CullMode                CullModeFlags
	FrontFace               FrontFace
	DepthBiasEnable         bool
	DepthBiasConstantFactor float32
	DepthBiasClamp          float32
	DepthBiasSlopeFactor    float32
	LineWidth               float32

	// Line rasterization extension
	LineRasterizationMode LineRasterizationMode
	StippledLineEnable    bool
	LineStippleFactor     int
	LineStipplePattern    uint16
}

type MultisampleStateCreateInfo struct {
	RasterizationSamples  SampleCountFlags
	SampleShadingEnable   bool
	MinSampleShading      float32
	SampleMask            []uint32
	AlphaToCoverageEnable bool
	AlphaToOneEnable      bool
}

type StencilOpState struct {
	FailOp      StencilOp
	PassOp      StencilOp
	DepthFailOp StencilOp
	CompareOp   CompareOp
	CompareMask uint32
	WriteMask   uint32
	Reference   uint32
}

type DepthStencilStateCreateInfo struct {
	DepthTestEnable       bool
	DepthWriteEnable      bool
	DepthCompareOp        CompareOp
	DepthBoundsTestEnable bool
	StencilTestEnable     bool
	Front                 StencilOpState
	Back                  StencilOpState
	MinDepthBounds        float32
	MaxDepthBounds        float32
}

type ColorBlendAttachmentState struct {
	BlendEnable         bool
	SrcColorBlendFactor BlendFactor
	DstColorBlendFactor BlendFactor
	ColorBlendOp        BlendOp
	SrcAlphaBlendFactor BlendFactor
	DstAlphaBlendFactor BlendFactor
	AlphaBlendOp        BlendOp
	ColorWriteMask      ColorComponentFlags
}

type ColorBlendStateCreateInfo struct {
	LogicOpEnable  bool
	LogicOp        LogicOp
	Attachments    []ColorBlendAttachmentState
	BlendConstants [4]float32
}

// PipelineCreationFeedbackFlags reports how a pipeline or stage was built
type PipelineCreationFeedbackFlags int32

const (
	FeedbackValid                       PipelineCreationFeedbackFlags = 0x1
	FeedbackApplicationPipelineCacheHit PipelineCreationFeedbackFlags = 0x2
	FeedbackBasePipelineAcceleration    PipelineCreationFeedbackFlags = 0x4
)

type PipelineCreationFeedback struct {
	Flags    PipelineCreationFeedbackFlags
	Duration time.Duration
}

// PipelineCreationFeedbackCreateInfo is filled in by the driver during pipeline creation.
// Stages must have one entry per shader stage of the pipeline.
type PipelineCreationFeedbackCreateInfo struct {
	Pipeline *PipelineCreationFeedback
	Stages   []PipelineCreationFeedback
}

type GraphicsPipelineCreateInfo struct {
	Flags         PipelineCreateFlags
	Stages        []PipelineShaderStageCreateInfo
	VertexInput   *VertexInputStateCreateInfo
	InputAssembly *InputAssemblyStateCreateInfo
	Tessellation  *TessellationStateCreateInfo
	Viewport      *ViewportStateCreateInfo
	Rasterization *RasterizationStateCreateInfo
	Multisample   *MultisampleStateCreateInfo
	DepthStencil  *DepthStencilStateCreateInfo
	ColorBlend    *ColorBlendStateCreateInfo
	DynamicStates []DynamicState

	Layout            Handle
	RenderPass        Handle
	Subpass           int
	BasePipeline      Handle
	BasePipelineIndex int

	Feedback *PipelineCreationFeedbackCreateInfo
}

type ComputePipelineCreateInfo struct {
	Flags             PipelineCreateFlags
	Stage             PipelineShaderStageCreateInfo
	Layout            Handle
	BasePipeline      Handle
	BasePipelineIndex int

	Feedback *PipelineCreationFeedbackCreateInfo
}

type RayTracingShaderGroupType int32

const (
	ShaderGroupGeneral            RayTracingShaderGroupType = 0
	ShaderGroupTrianglesHitGroup  RayTracingShaderGroupType = 1
	ShaderGroupProceduralHitGroup RayTracingShaderGroupType = 2
)

// ShaderUnused marks an unused shader slot in a ray tracing shader group
const ShaderUnused = ^uint32(0)

type RayTracingShaderGroupCreateInfo struct {
	Type               RayTracingShaderGroupType
	GeneralShader      uint32
	ClosestHitShader   uint32
	AnyHitShader       uint32
	IntersectionShader uint32
}

type RayTracingPipelineCreateInfo struct {
	Flags                        PipelineCreateFlags
	Stages                       []PipelineShaderStageCreateInfo
	Groups                       []RayTracingShaderGroupCreateInfo
	MaxPipelineRayRecursionDepth int
	DynamicStates                []DynamicState
	Layout                       Handle
	BasePipeline                 Handle
	BasePipelineIndex            int

	Feedback *PipelineCreationFeedbackCreateInfo
}
