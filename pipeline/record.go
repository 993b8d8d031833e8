package pipeline

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/internal/hashing"
	"github.com/vkngwrapper/armory/state"
	"github.com/vkngwrapper/armory/vkerr"
	"golang.org/x/exp/slices"
)

// Record describes one pipeline. Fixed-function states left nil on a graphics record take
// their defaults, except Viewport, which is required unless rasterization is discarded, and
// Tessellation, which is required with tessellation stages.
type Record struct {
	BindPoint hal.PipelineBindPoint
	// Flags are the creation flags. PipelineCreateDerivative is managed by the cache and ignored.
	Flags  hal.PipelineCreateFlags
	Stages []ShaderStage

	VertexInput   *state.VertexInput
	InputAssembly *state.InputAssembly
	Tessellation  *state.Tessellation
	Viewport      *state.Viewport
	Rasterization *state.Rasterization
	Multisample   *state.Multisample
	DepthStencil  *state.DepthStencil
	ColorBlend    *state.ColorBlend
	DynamicStates []hal.DynamicState

	Layout     *Layout
	RenderPass *RenderPass
	Subpass    int

	// Groups and MaxRecursionDepth apply to ray tracing records only
	Groups            []hal.RayTracingShaderGroupCreateInfo
	MaxRecursionDepth int

	Name string
}

// Fingerprint identifies everything the driver pipeline is built from. Records with equal
// fingerprints build interchangeable pipelines.
func (r Record) Fingerprint() uint64 {
	h := hashing.New().
		Int32(int32(r.BindPoint)).
		Int32(int32(r.Flags &^ hal.PipelineCreateDerivative)).
		Int(len(r.Stages))
	for _, stage := range r.Stages {
		stage.write(h)
	}

	r.writeFixedFunction(h)
	return h.Sum()
}

// BaseFingerprint identifies the record without its shaders or creation flags. A pipeline may
// derive from an earlier one with the same base fingerprint.
func (r Record) BaseFingerprint() uint64 {
	h := hashing.New().
		Int32(int32(r.BindPoint)).
		Int(len(r.Stages))

	r.writeFixedFunction(h)
	return h.Sum()
}

func (r Record) writeFixedFunction(h *hashing.Hasher) {
	h.Uint64(r.VertexInput.Hash()).
		Uint64(r.InputAssembly.Hash()).
		Uint64(r.Tessellation.Hash()).
		Uint64(r.Viewport.Hash()).
		Uint64(r.Rasterization.Hash()).
		Uint64(r.Multisample.Hash()).
		Uint64(r.DepthStencil.Hash()).
		Uint64(r.ColorBlend.Hash())

	h.Int(len(r.DynamicStates))
	for _, dynamic := range r.DynamicStates {
		h.Int32(int32(dynamic))
	}

	var layoutHash uint64
	if r.Layout != nil {
		layoutHash = r.Layout.hash
	}
	h.Uint64(layoutHash)

	switch r.BindPoint {
	case hal.BindPointGraphics:
		var passHash uint64
		if r.RenderPass != nil {
			passHash = r.RenderPass.hash
		}
		h.Uint64(passHash).Int(r.Subpass)
	case hal.BindPointRayTracing:
		h.Int(len(r.Groups))
		for _, group := range r.Groups {
			h.Int32(int32(group.Type)).
				Uint32(group.GeneralShader).
				Uint32(group.ClosestHitShader).
				Uint32(group.AnyHitShader).
				Uint32(group.IntersectionShader)
		}
		h.Int(r.MaxRecursionDepth)
	}
}

func (r Record) hasStage(stages hal.ShaderStageFlags) bool {
	for _, stage := range r.Stages {
		if stage.Stage&stages != 0 {
			return true
		}
	}
	return false
}

// normalize fills defaulted states so that a record with an explicit default and one that
// leaves it nil share a fingerprint
func (r Record) normalize() Record {
	r.Stages = slices.Clone(r.Stages)
	r.DynamicStates = slices.Clone(r.DynamicStates)
	r.Groups = slices.Clone(r.Groups)

	if r.BindPoint != hal.BindPointGraphics {
		return r
	}

	meshShading := r.hasStage(hal.StageTask | hal.StageMesh)
	if r.VertexInput == nil && !meshShading {
		r.VertexInput = state.EmptyVertexInput()
	}
	if r.InputAssembly == nil && !meshShading {
		r.InputAssembly = state.DefaultInputAssembly()
	}
	if r.Rasterization == nil {
		r.Rasterization = state.DefaultRasterization()
	}
	if r.Multisample == nil {
		r.Multisample = state.DefaultMultisample()
	}

	return r
}

func (r Record) validate(extensions *hal.ExtensionTable) error {
	if r.Layout == nil || r.Layout.handle.IsNull() {
		return vkerr.New(vkerr.ValidationError, "pipeline %q has no live layout", r.Name)
	}

	var seen hal.ShaderStageFlags
	for i, stage := range r.Stages {
		err := stage.validate(i)
		if err != nil {
			return vkerr.Wrap(vkerr.ValidationError, err, "pipeline %q", r.Name)
		}
		if r.BindPoint != hal.BindPointRayTracing && seen&stage.Stage != 0 {
			return vkerr.New(vkerr.ValidationError, "pipeline %q has more than one %s stage", r.Name, stage.Stage)
		}
		seen |= stage.Stage
	}

	var dynamicSeen []hal.DynamicState
	for _, dynamic := range r.DynamicStates {
		if slices.Contains(dynamicSeen, dynamic) {
			return vkerr.New(vkerr.ValidationError, "pipeline %q lists dynamic state %d more than once", r.Name, dynamic)
		}
		dynamicSeen = append(dynamicSeen, dynamic)
	}

	switch r.BindPoint {
	case hal.BindPointGraphics:
		return r.validateGraphics(extensions, seen)
	case hal.BindPointCompute:
		if len(r.Stages) != 1 || r.Stages[0].Stage != hal.StageCompute {
			return vkerr.New(vkerr.ValidationError, "compute pipeline %q must have exactly one compute stage", r.Name)
		}
		return nil
	case hal.BindPointRayTracing:
		return r.validateRayTracing(extensions, seen)
	}

	return vkerr.New(vkerr.ValidationError, "pipeline %q has unknown bind point %s", r.Name, r.BindPoint)
}

func (r Record) validateGraphics(extensions *hal.ExtensionTable, stages hal.ShaderStageFlags) error {
	if stages&^(hal.StageAllGraphics|hal.StageTask|hal.StageMesh) != 0 {
		return vkerr.New(vkerr.ValidationError, "graphics pipeline %q has non-graphics stages %s", r.Name, stages)
	}
	if stages&(hal.StageVertex|hal.StageMesh) == 0 {
		return vkerr.New(vkerr.ValidationError, "graphics pipeline %q needs a vertex or mesh stage", r.Name)
	}
	if stages&hal.StageMesh != 0 && extensions.CmdDrawMeshTasks == nil {
		return vkerr.New(vkerr.ExtensionUnsupported, "graphics pipeline %q has a mesh stage, which requires %s", r.Name, hal.ExtMeshShader)
	}

	tessellated := stages&(hal.StageTessellationControl|hal.StageTessellationEvaluation) != 0
	if tessellated && r.Tessellation == nil {
		return vkerr.New(vkerr.ValidationError, "graphics pipeline %q has tessellation stages but no tessellation state", r.Name)
	}

	if r.RenderPass == nil || r.RenderPass.handle.IsNull() {
		return vkerr.New(vkerr.ValidationError, "graphics pipeline %q has no live render pass", r.Name)
	}
	if r.Subpass < 0 || r.Subpass >= r.RenderPass.Subpasses() {
		return vkerr.New(vkerr.ValidationError, "graphics pipeline %q uses subpass %d of render pass %q, which has %d", r.Name, r.Subpass, r.RenderPass.name, r.RenderPass.Subpasses())
	}

	discard := r.Rasterization != nil && r.Rasterization.Info().RasterizerDiscardEnable
	if r.Viewport == nil && !discard {
		return vkerr.New(vkerr.ValidationError, "graphics pipeline %q has no viewport state", r.Name)
	}

	if r.Rasterization != nil && !extensions.LineRasterization {
		info := r.Rasterization.Info()
		if info.LineRasterizationMode != 0 || info.StippledLineEnable {
			return vkerr.New(vkerr.ExtensionUnsupported, "graphics pipeline %q sets line rasterization state, which requires %s", r.Name, hal.ExtLineRasterization)
		}
	}

	colorAttachments := len(r.RenderPass.info.Subpasses[r.Subpass].ColorAttachments)
	if r.ColorBlend != nil && !discard && len(r.ColorBlend.Info().Attachments) != colorAttachments {
		return vkerr.New(vkerr.ValidationError, "graphics pipeline %q blends %d attachments, but subpass %d of render pass %q has %d color attachments", r.Name, len(r.ColorBlend.Info().Attachments), r.Subpass, r.RenderPass.name, colorAttachments)
	}

	return nil
}

func (r Record) validateRayTracing(extensions *hal.ExtensionTable, stages hal.ShaderStageFlags) error {
	if extensions.CreateRayTracingPipelines == nil {
		return vkerr.New(vkerr.ExtensionUnsupported, "ray tracing pipeline %q requires %s", r.Name, hal.ExtRayTracingPipeline)
	}
	if stages&hal.StageRaygen == 0 {
		return vkerr.New(vkerr.ValidationError, "ray tracing pipeline %q needs a ray generation stage", r.Name)
	}
	if len(r.Groups) == 0 {
		return vkerr.New(vkerr.ValidationError, "ray tracing pipeline %q has no shader groups", r.Name)
	}
	if r.MaxRecursionDepth < 0 {
		return vkerr.New(vkerr.ValidationError, "ray tracing pipeline %q has negative recursion depth %d", r.Name, r.MaxRecursionDepth)
	}

	for i, group := range r.Groups {
		for _, shader := range []uint32{group.GeneralShader, group.ClosestHitShader, group.AnyHitShader, group.IntersectionShader} {
			if shader != hal.ShaderUnused && int(shader) >= len(r.Stages) {
				return vkerr.New(vkerr.ValidationError, "group %d of ray tracing pipeline %q uses stage %d, but the pipeline has %d", i, r.Name, shader, len(r.Stages))
			}
		}
		if group.Type == hal.ShaderGroupGeneral && group.GeneralShader == hal.ShaderUnused {
			return vkerr.New(vkerr.ValidationError, "general group %d of ray tracing pipeline %q has no shader", i, r.Name)
		}
	}

	return nil
}

func (r Record) driverStages() []hal.PipelineShaderStageCreateInfo {
	stages := make([]hal.PipelineShaderStageCreateInfo, len(r.Stages))
	for i, stage := range r.Stages {
		stages[i] = stage.driverInfo()
	}
	return stages
}

func (r Record) graphicsInfo(flags hal.PipelineCreateFlags, base hal.Handle, feedback *hal.PipelineCreationFeedbackCreateInfo) hal.GraphicsPipelineCreateInfo {
	return hal.GraphicsPipelineCreateInfo{
		Flags:             flags,
		Stages:            r.driverStages(),
		VertexInput:       r.VertexInput.Info(),
		InputAssembly:     r.InputAssembly.Info(),
		Tessellation:      r.Tessellation.Info(),
		Viewport:          r.Viewport.Info(),
		Rasterization:     r.Rasterization.Info(),
		Multisample:       r.Multisample.Info(),
		DepthStencil:      r.DepthStencil.Info(),
		ColorBlend:        r.ColorBlend.Info(),
		DynamicStates:     slices.Clone(r.DynamicStates),
		Layout:            r.Layout.handle,
		RenderPass:        r.RenderPass.handle,
		Subpass:           r.Subpass,
		BasePipeline:      base,
		BasePipelineIndex: -1,
		Feedback:          feedback,
	}
}

func (r Record) computeInfo(flags hal.PipelineCreateFlags, base hal.Handle, feedback *hal.PipelineCreationFeedbackCreateInfo) hal.ComputePipelineCreateInfo {
	return hal.ComputePipelineCreateInfo{
		Flags:             flags,
		Stage:             r.Stages[0].driverInfo(),
		Layout:            r.Layout.handle,
		BasePipeline:      base,
		BasePipelineIndex: -1,
		Feedback:          feedback,
	}
}

func (r Record) rayTracingInfo(flags hal.PipelineCreateFlags, base hal.Handle, feedback *hal.PipelineCreationFeedbackCreateInfo) hal.RayTracingPipelineCreateInfo {
	return hal.RayTracingPipelineCreateInfo{
		Flags:                        flags,
		Stages:                       r.driverStages(),
		Groups:                       slices.Clone(r.Groups),
		MaxPipelineRayRecursionDepth: r.MaxRecursionDepth,
		DynamicStates:                slices.Clone(r.DynamicStates),
		Layout:                       r.Layout.handle,
		BasePipeline:                 base,
		BasePipelineIndex:            -1,
		Feedback:                     feedback,
	}
}
