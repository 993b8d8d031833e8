package pipeline

import (
	"github.com/vkngwrapper/armory/descriptor"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/internal/hashing"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
	"golang.org/x/exp/slices"
)

// Layout is a pipeline layout: the set layouts bound at each set index and the push constant
// ranges
type Layout struct {
	factory       *resource.Factory
	handle        hal.Handle
	name          string
	sets          []*descriptor.SetLayout
	pushConstants []hal.PushConstantRange
	hash          uint64
}

// NewLayout creates a pipeline layout. sets[i] is bound at set index i. The layout is checked
// against the device's limits on bound sets and push constant size.
func NewLayout(factory *resource.Factory, name string, sets []*descriptor.SetLayout, pushConstants []hal.PushConstantRange) (*Layout, error) {
	limits := factory.Device().PhysicalDevice().Limits
	if limits.MaxBoundDescriptorSets > 0 && len(sets) > limits.MaxBoundDescriptorSets {
		return nil, vkerr.New(vkerr.ValidationError, "pipeline layout %q binds %d sets, but the device allows %d", name, len(sets), limits.MaxBoundDescriptorSets)
	}

	h := hashing.New().Int(len(sets))
	handles := make([]hal.Handle, len(sets))
	for i, set := range sets {
		if set == nil || set.Handle().IsNull() {
			return nil, vkerr.New(vkerr.ValidationError, "set %d of pipeline layout %q has been destroyed", i, name)
		}
		handles[i] = set.Handle()
		h.Uint64(set.Hash())
	}

	var covered hal.ShaderStageFlags
	h.Int(len(pushConstants))
	for i, pushConstant := range pushConstants {
		if pushConstant.Offset%4 != 0 || pushConstant.Size%4 != 0 || pushConstant.Size < 4 {
			return nil, vkerr.New(vkerr.ValidationError, "push constant range %d of pipeline layout %q must have a positive size and be aligned to 4 bytes", i, name)
		}
		if limits.MaxPushConstantsSize > 0 && pushConstant.Offset+pushConstant.Size > limits.MaxPushConstantsSize {
			return nil, vkerr.New(vkerr.ValidationError, "push constant range %d of pipeline layout %q ends at %d, past the device limit of %d", i, name, pushConstant.Offset+pushConstant.Size, limits.MaxPushConstantsSize)
		}
		if covered&pushConstant.StageFlags != 0 {
			return nil, vkerr.New(vkerr.ValidationError, "push constant range %d of pipeline layout %q repeats a stage", i, name)
		}
		covered |= pushConstant.StageFlags

		h.Int32(int32(pushConstant.StageFlags)).Int(pushConstant.Offset).Int(pushConstant.Size)
	}

	handle, res := factory.Device().CreatePipelineLayout(hal.PipelineLayoutCreateInfo{
		SetLayouts:         handles,
		PushConstantRanges: pushConstants,
	}, nil)
	err := vkerr.FromResultf(res, "failed to create pipeline layout %q", name)
	if err != nil {
		return nil, err
	}

	layout := &Layout{
		factory:       factory,
		handle:        handle,
		name:          name,
		sets:          slices.Clone(sets),
		pushConstants: slices.Clone(pushConstants),
		hash:          h.Sum(),
	}
	factory.Track(layout.Object(), name)
	return layout, nil
}

func (l *Layout) Handle() hal.Handle { return l.handle }

func (l *Layout) Object() hal.Object { return hal.NewObject(hal.ObjectTypePipelineLayout, l.handle) }

func (l *Layout) Name() string { return l.name }

// Hash is computed from the set layout hashes and push constant ranges
func (l *Layout) Hash() uint64 { return l.hash }

// Set returns the set layout bound at index
func (l *Layout) Set(index int) *descriptor.SetLayout {
	if index < 0 || index >= len(l.sets) {
		return nil
	}
	return l.sets[index]
}

func (l *Layout) Sets() int { return len(l.sets) }

// PushConstants returns the push constant ranges the layout was created with
func (l *Layout) PushConstants() []hal.PushConstantRange {
	return slices.Clone(l.pushConstants)
}

func (l *Layout) Destroy() error {
	l.factory.DestroyObject(l.Object())
	l.handle = hal.NullHandle
	return nil
}

// RenderPass wraps a driver render pass and a hash of its structure
type RenderPass struct {
	factory *resource.Factory
	handle  hal.Handle
	name    string
	info    hal.RenderPassCreateInfo
	hash    uint64
}

func NewRenderPass(factory *resource.Factory, name string, info hal.RenderPassCreateInfo) (*RenderPass, error) {
	if len(info.Subpasses) == 0 {
		return nil, vkerr.New(vkerr.ValidationError, "render pass %q has no subpasses", name)
	}

	for i, attachment := range info.Attachments {
		separate := attachment.StencilInitialLayout != hal.ImageLayoutUndefined || attachment.StencilFinalLayout != hal.ImageLayoutUndefined
		if separate && !factory.Extensions().SeparateDepthStencilLayouts {
			return nil, vkerr.New(vkerr.ExtensionUnsupported, "attachment %d of render pass %q has separate stencil layouts, which require %s", i, name, hal.ExtSeparateDepthStencilLayouts)
		}
	}

	for i, subpass := range info.Subpasses {
		err := validateSubpass(name, i, subpass, len(info.Attachments))
		if err != nil {
			return nil, err
		}
	}

	for i, dependency := range info.Dependencies {
		for _, index := range []int{dependency.SrcSubpass, dependency.DstSubpass} {
			if index != hal.SubpassExternal && (index < 0 || index >= len(info.Subpasses)) {
				return nil, vkerr.New(vkerr.ValidationError, "dependency %d of render pass %q refers to subpass %d, which does not exist", i, name, index)
			}
		}
	}

	handle, res := factory.Device().CreateRenderPass(info, nil)
	err := vkerr.FromResultf(res, "failed to create render pass %q", name)
	if err != nil {
		return nil, err
	}

	pass := &RenderPass{factory: factory, handle: handle, name: name, info: info, hash: hashRenderPass(info)}
	factory.Track(pass.Object(), name)
	return pass, nil
}

func validateSubpass(name string, index int, subpass hal.SubpassDescription, attachments int) error {
	references := slices.Clone(subpass.InputAttachments)
	references = append(references, subpass.ColorAttachments...)
	references = append(references, subpass.ResolveAttachments...)
	if subpass.DepthStencilAttachment != nil {
		references = append(references, *subpass.DepthStencilAttachment)
	}

	for _, reference := range references {
		if reference.Attachment != hal.AttachmentUnused && (reference.Attachment < 0 || reference.Attachment >= attachments) {
			return vkerr.New(vkerr.ValidationError, "subpass %d of render pass %q refers to attachment %d, but the pass has %d", index, name, reference.Attachment, attachments)
		}
	}

	if len(subpass.ResolveAttachments) > 0 && len(subpass.ResolveAttachments) != len(subpass.ColorAttachments) {
		return vkerr.New(vkerr.ValidationError, "subpass %d of render pass %q has %d resolve attachments for %d color attachments", index, name, len(subpass.ResolveAttachments), len(subpass.ColorAttachments))
	}

	return nil
}

func hashReferences(h *hashing.Hasher, references []hal.AttachmentReference) {
	h.Int(len(references))
	for _, reference := range references {
		h.Int(reference.Attachment).Int32(int32(reference.Layout))
	}
}

func hashRenderPass(info hal.RenderPassCreateInfo) uint64 {
	h := hashing.New().Int(len(info.Attachments))
	for _, a := range info.Attachments {
		h.Int32(int32(a.Format)).
			Int32(int32(a.Samples)).
			Int32(int32(a.LoadOp)).
			Int32(int32(a.StoreOp)).
			Int32(int32(a.StencilLoadOp)).
			Int32(int32(a.StencilStoreOp)).
			Int32(int32(a.InitialLayout)).
			Int32(int32(a.FinalLayout)).
			Int32(int32(a.StencilInitialLayout)).
			Int32(int32(a.StencilFinalLayout))
	}

	h.Int(len(info.Subpasses))
	for _, subpass := range info.Subpasses {
		h.Int32(int32(subpass.BindPoint))
		hashReferences(h, subpass.InputAttachments)
		hashReferences(h, subpass.ColorAttachments)
		hashReferences(h, subpass.ResolveAttachments)
		h.Bool(subpass.DepthStencilAttachment != nil)
		if subpass.DepthStencilAttachment != nil {
			h.Int(subpass.DepthStencilAttachment.Attachment).Int32(int32(subpass.DepthStencilAttachment.Layout))
		}
		h.Int(len(subpass.PreserveAttachments))
		for _, preserve := range subpass.PreserveAttachments {
			h.Int(preserve)
		}
	}

	h.Int(len(info.Dependencies))
	for _, d := range info.Dependencies {
		h.Int(d.SrcSubpass).
			Int(d.DstSubpass).
			Int32(int32(d.SrcStageMask)).
			Int32(int32(d.DstStageMask)).
			Int32(int32(d.SrcAccessMask)).
			Int32(int32(d.DstAccessMask)).
			Int32(int32(d.DependencyFlags))
	}

	return h.Sum()
}

func (r *RenderPass) Handle() hal.Handle { return r.handle }

func (r *RenderPass) Object() hal.Object { return hal.NewObject(hal.ObjectTypeRenderPass, r.handle) }

func (r *RenderPass) Name() string { return r.name }

// Hash is computed from the pass's attachments, subpasses and dependencies. Passes with the same
// structure hash equal and are compatible.
func (r *RenderPass) Hash() uint64 { return r.hash }

// Subpasses returns the number of subpasses in the pass
func (r *RenderPass) Subpasses() int { return len(r.info.Subpasses) }

// Attachments returns the number of attachments in the pass
func (r *RenderPass) Attachments() int { return len(r.info.Attachments) }

func (r *RenderPass) Destroy() error {
	r.factory.DestroyObject(r.Object())
	r.handle = hal.NullHandle
	return nil
}
