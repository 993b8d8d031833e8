// Package state holds the fixed-function pipeline states. Each state is built once from a
// driver create info, never changes afterward, and carries a hash computed at construction, so
// pipelines that share a state share its hashing cost.
//
// A nil state is valid everywhere a state is accepted: it hashes to zero, equals only another
// nil state of the same kind, and produces a nil create info.
package state

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/internal/hashing"
	"golang.org/x/exp/slices"
)

// Tags written ahead of each state so that states of different kinds with the same field
// values never hash alike
const (
	tagVertexInput uint32 = iota + 1
	tagInputAssembly
	tagTessellation
	tagViewport
	tagRasterization
	tagMultisample
	tagDepthStencil
	tagColorBlend
)

// InputAssembly is an immutable input assembly state
type InputAssembly struct {
	info hal.InputAssemblyStateCreateInfo
	hash uint64
}

func NewInputAssembly(info hal.InputAssemblyStateCreateInfo) *InputAssembly {
	h := hashing.New().Uint32(tagInputAssembly).
		Int32(int32(info.Topology)).
		Bool(info.PrimitiveRestartEnable)

	return &InputAssembly{info: info, hash: h.Sum()}
}

// DefaultInputAssembly draws triangle lists without primitive restart
func DefaultInputAssembly() *InputAssembly {
	return NewInputAssembly(hal.InputAssemblyStateCreateInfo{Topology: hal.TopologyTriangleList})
}

func (s *InputAssembly) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

func (s *InputAssembly) Info() *hal.InputAssemblyStateCreateInfo {
	if s == nil {
		return nil
	}
	info := s.info
	return &info
}

func (s *InputAssembly) Equal(other *InputAssembly) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.info == other.info
}

// Tessellation is an immutable tessellation state
type Tessellation struct {
	info hal.TessellationStateCreateInfo
	hash uint64
}

func NewTessellation(info hal.TessellationStateCreateInfo) *Tessellation {
	h := hashing.New().Uint32(tagTessellation).Int(info.PatchControlPoints)
	return &Tessellation{info: info, hash: h.Sum()}
}

func (s *Tessellation) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

func (s *Tessellation) Info() *hal.TessellationStateCreateInfo {
	if s == nil {
		return nil
	}
	info := s.info
	return &info
}

func (s *Tessellation) Equal(other *Tessellation) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.info == other.info
}

// Rasterization is an immutable rasterization state, including the line rasterization fields
type Rasterization struct {
	info hal.RasterizationStateCreateInfo
	hash uint64
}

func NewRasterization(info hal.RasterizationStateCreateInfo) *Rasterization {
	h := hashing.New().Uint32(tagRasterization).
		Bool(info.DepthClampEnable).
		Bool(info.RasterizerDiscardEnable).
		Int32(int32(info.PolygonMode)).
		Int32(int32(info.CullMode)).
		Int32(int32(info.FrontFace)).
		Bool(info.DepthBiasEnable).
		Float32(info.DepthBiasConstantFactor).
		Float32(info.DepthBiasClamp).
		Float32(info.DepthBiasSlopeFactor).
		Float32(info.LineWidth).
		Int32(int32(info.LineRasterizationMode)).
		Bool(info.StippledLineEnable).
		Int(info.LineStippleFactor).
		Uint32(uint32(info.LineStipplePattern))

	return &Rasterization{info: info, hash: h.Sum()}
}

// DefaultRasterization fills counter-clockwise triangles, culls back faces and draws lines one
// pixel wide
func DefaultRasterization() *Rasterization {
	return NewRasterization(hal.RasterizationStateCreateInfo{
		PolygonMode: hal.PolygonModeFill,
		CullMode:    hal.CullModeBack,
		FrontFace:   hal.FrontFaceCounterClockwise,
		LineWidth:   1,
	})
}

func (s *Rasterization) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

func (s *Rasterization) Info() *hal.RasterizationStateCreateInfo {
	if s == nil {
		return nil
	}
	info := s.info
	return &info
}

func (s *Rasterization) Equal(other *Rasterization) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.info == other.info
}

// DepthStencil is an immutable depth and stencil test state
type DepthStencil struct {
	info hal.DepthStencilStateCreateInfo
	hash uint64
}

func hashStencilOp(h *hashing.Hasher, op hal.StencilOpState) {
	h.Int32(int32(op.FailOp)).
		Int32(int32(op.PassOp)).
		Int32(int32(op.DepthFailOp)).
		Int32(int32(op.CompareOp)).
		Uint32(op.CompareMask).
		Uint32(op.WriteMask).
		Uint32(op.Reference)
}

func NewDepthStencil(info hal.DepthStencilStateCreateInfo) *DepthStencil {
	h := hashing.New().Uint32(tagDepthStencil).
		Bool(info.DepthTestEnable).
		Bool(info.DepthWriteEnable).
		Int32(int32(info.DepthCompareOp)).
		Bool(info.DepthBoundsTestEnable).
		Bool(info.StencilTestEnable)
	hashStencilOp(h, info.Front)
	hashStencilOp(h, info.Back)
	h.Float32(info.MinDepthBounds).Float32(info.MaxDepthBounds)

	return &DepthStencil{info: info, hash: h.Sum()}
}

// DefaultDepthStencil tests and writes depth with CompareLess and leaves stencil disabled
func DefaultDepthStencil() *DepthStencil {
	return NewDepthStencil(hal.DepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   hal.CompareLess,
		MaxDepthBounds:   1,
	})
}

func (s *DepthStencil) Hash() uint64 {
	if s == nil {
		return 0
	}
	return s.hash
}

func (s *DepthStencil) Info() *hal.DepthStencilStateCreateInfo {
	if s == nil {
		return nil
	}
	info := s.info
	return &info
}

func (s *DepthStencil) Equal(other *DepthStencil) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.info == other.info
}

// cloned copies a slice so a state never aliases memory its caller may still change. Empty
// slices become nil, so an empty and a missing list compare equal.
func cloned[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}
