package state

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/internal/hashing"
	"github.com/vkngwrapper/armory/vkerr"
	"golang.org/x/exp/slices"
)

// VertexInput is an immutable vertex input state
type VertexInput struct {
	info hal.VertexInputStateCreateInfo
	hash uint64
}

// NewVertexInput validates that binding indices and attribute locations are unique and that
// every attribute reads a declared binding
func NewVertexInput(info hal.VertexInputStateCreateInfo) (*VertexInput, error) {
	info.Bindings = cloned(info.Bindings)
	info.Attributes = cloned(info.Attributes)

	bindings := make(map[int]struct{}, len(info.Bindings))
	for _, binding := range info.Bindings {
		if _, ok := bindings[binding.Binding]; ok {
			return nil, vkerr.New(vkerr.ValidationError, "vertex binding %d is declared twice", binding.Binding)
		}
		bindings[binding.Binding] = struct{}{}
	}

	locations := make(map[int]struct{}, len(info.Attributes))
	for _, attribute := range info.Attributes {
		if _, ok := locations[attribute.Location]; ok {
			return nil, vkerr.New(vkerr.ValidationError, "vertex attribute location %d is declared twice", attribute.Location)
		}
		if _, ok := bindings[attribute.Binding]; !ok {
			return nil, vkerr.New(vkerr.ValidationError, "vertex attribute %d reads binding %d, which is not declared", attribute.Location, attribute.Binding)
		}
		locations[attribute.Location] = struct{}{}
	}

	h := hashing.New().Uint32(tagVertexInput).Int(len(info.Bindings))
	for _, binding := range info.Bindings {
		h.Int(binding.Binding).Int(binding.Stride).Int32(int32(binding.InputRate))
	}
	h.Int(len(info.Attributes))
	for _, attribute := range info.Attributes {
		h.Int(attribute.Location).Int(attribute.Binding).Int32(int32(attribute.Format)).Int(attribute.Offset)
	}

	return &VertexInput{info: info, hash: h.Sum()}, nil
}

// EmptyVertexInput declares no vertex buffers, for shaders that generate their own vertices
func EmptyVertexInput() *VertexInput {
	s, _ := NewVertexInput(hal.VertexInputStateCreateInfo{})
	return s
}

func (s *VertexInput) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

func (s *VertexInput) Info() *hal.VertexInputStateCreateInfo {
	if s == nil {
		return nil
	}
	return &hal.VertexInputStateCreateInfo{
		Bindings:   slices.Clone(s.info.Bindings),
		Attributes: slices.Clone(s.info.Attributes),
	}
}

func (s *VertexInput) Equal(other *VertexInput) bool {
	if s == nil || other == nil {
		return s == other
	}
	return slices.Equal(s.info.Bindings, other.info.Bindings) && slices.Equal(s.info.Attributes, other.info.Attributes)
}

// Viewport is an immutable viewport and scissor state. When viewports or scissors are dynamic,
// the create info carries only their counts.
type Viewport struct {
	info hal.ViewportStateCreateInfo
	hash uint64
}

// NewViewport fills ViewportCount and ScissorCount from the static lists when they are present
func NewViewport(info hal.ViewportStateCreateInfo) (*Viewport, error) {
	info.Viewports = cloned(info.Viewports)
	info.Scissors = cloned(info.Scissors)

	if len(info.Viewports) > 0 {
		if info.ViewportCount != 0 && info.ViewportCount != len(info.Viewports) {
			return nil, vkerr.New(vkerr.ValidationError, "viewport count %d does not match the %d viewports provided", info.ViewportCount, len(info.Viewports))
		}
		info.ViewportCount = len(info.Viewports)
	}
	if len(info.Scissors) > 0 {
		if info.ScissorCount != 0 && info.ScissorCount != len(info.Scissors) {
			return nil, vkerr.New(vkerr.ValidationError, "scissor count %d does not match the %d scissors provided", info.ScissorCount, len(info.Scissors))
		}
		info.ScissorCount = len(info.Scissors)
	}
	if info.ViewportCount < 1 || info.ViewportCount != info.ScissorCount {
		return nil, vkerr.New(vkerr.ValidationError, "a viewport state needs the same nonzero number of viewports and scissors, not %d and %d", info.ViewportCount, info.ScissorCount)
	}

	h := hashing.New().Uint32(tagViewport).Int(info.ViewportCount).Int(info.ScissorCount)
	h.Int(len(info.Viewports))
	for _, viewport := range info.Viewports {
		h.Float32(viewport.X).Float32(viewport.Y).
			Float32(viewport.Width).Float32(viewport.Height).
			Float32(viewport.MinDepth).Float32(viewport.MaxDepth)
	}
	h.Int(len(info.Scissors))
	for _, scissor := range info.Scissors {
		h.Int(scissor.Offset.X).Int(scissor.Offset.Y).Int(scissor.Extent.Width).Int(scissor.Extent.Height)
	}

	return &Viewport{info: info, hash: h.Sum()}, nil
}

// DynamicViewport declares one viewport and one scissor, both set while recording
func DynamicViewport() *Viewport {
	viewport, _ := NewViewport(hal.ViewportStateCreateInfo{ViewportCount: 1, ScissorCount: 1})
	return viewport
}

func (s *Viewport) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

func (s *Viewport) Info() *hal.ViewportStateCreateInfo {
	if s == nil {
		return nil
	}
	info := s.info
	info.Viewports = slices.Clone(s.info.Viewports)
	info.Scissors = slices.Clone(s.info.Scissors)
	return &info
}

func (s *Viewport) Equal(other *Viewport) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.info.ViewportCount == other.info.ViewportCount &&
		s.info.ScissorCount == other.info.ScissorCount &&
		slices.Equal(s.info.Viewports, other.info.Viewports) &&
		slices.Equal(s.info.Scissors, other.info.Scissors)
}

// Multisample is an immutable multisample state
type Multisample struct {
	info hal.MultisampleStateCreateInfo
	hash uint64
}

// NewMultisample defaults RasterizationSamples to one sample. A sample mask, when present, must
// have one word for every 32 samples.
func NewMultisample(info hal.MultisampleStateCreateInfo) (*Multisample, error) {
	info.SampleMask = cloned(info.SampleMask)
	if info.RasterizationSamples == 0 {
		info.RasterizationSamples = hal.Samples1
	}

	words := (int(info.RasterizationSamples) + 31) / 32
	if info.SampleMask != nil && len(info.SampleMask) != words {
		return nil, vkerr.New(vkerr.ValidationError, "a sample mask for %d samples needs %d words, not %d", info.RasterizationSamples, words, len(info.SampleMask))
	}
	if info.MinSampleShading < 0 || info.MinSampleShading > 1 {
		return nil, vkerr.New(vkerr.ValidationError, "minimum sample shading %v is outside [0, 1]", info.MinSampleShading)
	}

	h := hashing.New().Uint32(tagMultisample).
		Int32(int32(info.RasterizationSamples)).
		Bool(info.SampleShadingEnable).
		Float32(info.MinSampleShading).
		Int(len(info.SampleMask))
	for _, word := range info.SampleMask {
		h.Uint32(word)
	}
	h.Bool(info.AlphaToCoverageEnable).Bool(info.AlphaToOneEnable)

	return &Multisample{info: info, hash: h.Sum()}, nil
}

// DefaultMultisample rasterizes one sample per pixel
func DefaultMultisample() *Multisample {
	multisample, _ := NewMultisample(hal.MultisampleStateCreateInfo{})
	return multisample
}

func (s *Multisample) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

func (s *Multisample) Info() *hal.MultisampleStateCreateInfo {
	if s == nil {
		return nil
	}
	info := s.info
	info.SampleMask = slices.Clone(s.info.SampleMask)
	return &info
}

func (s *Multisample) Equal(other *Multisample) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.info.RasterizationSamples == other.info.RasterizationSamples &&
		s.info.SampleShadingEnable == other.info.SampleShadingEnable &&
		s.info.MinSampleShading == other.info.MinSampleShading &&
		slices.Equal(s.info.SampleMask, other.info.SampleMask) &&
		s.info.AlphaToCoverageEnable == other.info.AlphaToCoverageEnable &&
		s.info.AlphaToOneEnable == other.info.AlphaToOneEnable
}

// ColorBlend is an immutable color blend state
type ColorBlend struct {
	info hal.ColorBlendStateCreateInfo
	hash uint64
}

func NewColorBlend(info hal.ColorBlendStateCreateInfo) *ColorBlend {
	info.Attachments = cloned(info.Attachments)

	h := hashing.New().Uint32(tagColorBlend).
		Bool(info.LogicOpEnable).
		Int32(int32(info.LogicOp)).
		Int(len(info.Attachments))
	for _, attachment := range info.Attachments {
		h.Bool(attachment.BlendEnable).
			Int32(int32(attachment.SrcColorBlendFactor)).
			Int32(int32(attachment.DstColorBlendFactor)).
			Int32(int32(attachment.ColorBlendOp)).
			Int32(int32(attachment.SrcAlphaBlendFactor)).
			Int32(int32(attachment.DstAlphaBlendFactor)).
			Int32(int32(attachment.AlphaBlendOp)).
			Int32(int32(attachment.ColorWriteMask))
	}
	for _, constant := range info.BlendConstants {
		h.Float32(constant)
	}

	return &ColorBlend{info: info, hash: h.Sum()}
}

// Opaque writes every component of each of attachments color attachments without blending
func Opaque(attachments int) *ColorBlend {
	states := make([]hal.ColorBlendAttachmentState, attachments)
	for i := range states {
		states[i] = hal.ColorBlendAttachmentState{ColorWriteMask: hal.ColorComponentAll}
	}

	return NewColorBlend(hal.ColorBlendStateCreateInfo{Attachments: states})
}

// AlphaBlend blends each of attachments color attachments over the framebuffer by source alpha
func AlphaBlend(attachments int) *ColorBlend {
	states := make([]hal.ColorBlendAttachmentState, attachments)
	for i := range states {
		states[i] = hal.ColorBlendAttachmentState{
			BlendEnable:         true,
			SrcColorBlendFactor: hal.BlendSrcAlpha,
			DstColorBlendFactor: hal.BlendOneMinusSrcAlpha,
			ColorBlendOp:        hal.BlendOpAdd,
			SrcAlphaBlendFactor: hal.BlendOne,
			DstAlphaBlendFactor: hal.BlendOneMinusSrcAlpha,
			AlphaBlendOp:        hal.BlendOpAdd,
			ColorWriteMask:      hal.ColorComponentAll,
		}
	}

	return NewColorBlend(hal.ColorBlendStateCreateInfo{Attachments: states})
}

func (s *ColorBlend) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

func (s *ColorBlend) Info() *hal.ColorBlendStateCreateInfo {
	if s == nil {
		return nil
	}
	info := s.info
	info.Attachments = slices.Clone(s.info.Attachments)
	return &info
}

func (s *ColorBlend) Equal(other *ColorBlend) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.info.LogicOpEnable == other.info.LogicOpEnable &&
		s.info.LogicOp == other.info.LogicOp &&
		s.info.BlendConstants == other.info.BlendConstants &&
		slices.Equal(s.info.Attachments, other.info.Attachments)
}
