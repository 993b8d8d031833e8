package resource

import (
	"github.com/vkngwrapper/armory/hal"
)

// LayoutTracker follows the layout of every subresource of an image. It holds a single layout
// while the whole image shares one, and one layout per (mip level, array layer) otherwise.
// It is not safe for concurrent use.
type LayoutTracker struct {
	levels  int
	layers  int
	uniform hal.ImageLayout
	// layouts is indexed by level*layers + layer; nil while the image is uniform
	layouts []hal.ImageLayout
}

// LayoutRun is a range of subresources that share one layout
type LayoutRun struct {
	Range  hal.ImageSubresourceRange
	Layout hal.ImageLayout
}

// NewLayoutTracker creates a tracker for an image with every subresource in initial
func NewLayoutTracker(levels, layers int, initial hal.ImageLayout) *LayoutTracker {
	return &LayoutTracker{
		levels:  max(levels, 1),
		layers:  max(layers, 1),
		uniform: initial,
	}
}

// Resolve replaces RemainingMipLevels and RemainingArrayLayers with concrete counts and clamps
// the range to the image
func (t *LayoutTracker) Resolve(r hal.ImageSubresourceRange) hal.ImageSubresourceRange {
	r.BaseMipLevel = min(max(r.BaseMipLevel, 0), t.levels)
	r.BaseArrayLayer = min(max(r.BaseArrayLayer, 0), t.layers)

	if r.LevelCount == hal.RemainingMipLevels || r.BaseMipLevel+r.LevelCount > t.levels {
		r.LevelCount = t.levels - r.BaseMipLevel
	}
	if r.LayerCount == hal.RemainingArrayLayers || r.BaseArrayLayer+r.LayerCount > t.layers {
		r.LayerCount = t.layers - r.BaseArrayLayer
	}

	return r
}

func (t *LayoutTracker) covers(r hal.ImageSubresourceRange) bool {
	return r.BaseMipLevel == 0 && r.LevelCount == t.levels && r.BaseArrayLayer == 0 && r.LayerCount == t.layers
}

// Uniform returns the layout of the image and true if every subresource shares it
func (t *LayoutTracker) Uniform() (hal.ImageLayout, bool) {
	if t.layouts != nil {
		return hal.ImageLayoutUndefined, false
	}

	return t.uniform, true
}

// At returns the layout of one subresource
func (t *LayoutTracker) At(level, layer int) hal.ImageLayout {
	if t.layouts == nil {
		return t.uniform
	}

	return t.layouts[level*t.layers+layer]
}

// LayoutOf returns the layout of a range and true if every subresource in it shares that layout
func (t *LayoutTracker) LayoutOf(r hal.ImageSubresourceRange) (hal.ImageLayout, bool) {
	runs := t.Runs(r)
	if len(runs) != 1 {
		return hal.ImageLayoutUndefined, false
	}

	return runs[0].Layout, true
}

// Set records that every subresource in r is now in layout
func (t *LayoutTracker) Set(r hal.ImageSubresourceRange, layout hal.ImageLayout) {
	r = t.Resolve(r)
	if r.LevelCount == 0 || r.LayerCount == 0 {
		return
	}

	if t.covers(r) {
		t.uniform = layout
		t.layouts = nil
		return
	}

	if t.layouts == nil {
		if t.uniform == layout {
			return
		}

		t.layouts = make([]hal.ImageLayout, t.levels*t.layers)
		for i := range t.layouts {
			t.layouts[i] = t.uniform
		}
	}

	for level := r.BaseMipLevel; level < r.BaseMipLevel+r.LevelCount; level++ {
		for layer := r.BaseArrayLayer; layer < r.BaseArrayLayer+r.LayerCount; layer++ {
			t.layouts[level*t.layers+layer] = layout
		}
	}

	t.collapse()
}

func (t *LayoutTracker) collapse() {
	for _, layout := range t.layouts[1:] {
		if layout != t.layouts[0] {
			return
		}
	}

	t.uniform = t.layouts[0]
	t.layouts = nil
}

// Runs splits r into ranges of a single layout. A range that shares one layout is returned
// whole; otherwise each run covers consecutive layers of one mip level.
func (t *LayoutTracker) Runs(r hal.ImageSubresourceRange) []LayoutRun {
	r = t.Resolve(r)
	if r.LevelCount == 0 || r.LayerCount == 0 {
		return nil
	}

	if t.layouts == nil {
		return []LayoutRun{{Range: r, Layout: t.uniform}}
	}

	var runs []LayoutRun
	for level := r.BaseMipLevel; level < r.BaseMipLevel+r.LevelCount; level++ {
		start := r.BaseArrayLayer
		for layer := start + 1; layer <= r.BaseArrayLayer+r.LayerCount; layer++ {
			if layer < r.BaseArrayLayer+r.LayerCount && t.At(level, layer) == t.At(level, start) {
				continue
			}

			runs = append(runs, LayoutRun{
				Range: hal.ImageSubresourceRange{
					AspectMask:     r.AspectMask,
					BaseMipLevel:   level,
					LevelCount:     1,
					BaseArrayLayer: start,
					LayerCount:     layer - start,
				},
				Layout: t.At(level, start),
			})
			start = layer
		}
	}

	// Merge when every run turned out to share a layout
	for _, run := range runs[1:] {
		if run.Layout != runs[0].Layout {
			return runs
		}
	}
	return []LayoutRun{{Range: r, Layout: runs[0].Layout}}
}

// layoutUsage is the stage and access a subresource in layout was last used with, which is what
// a barrier out of that layout has to wait on
func layoutUsage(layout hal.ImageLayout) (hal.PipelineStageFlags, hal.AccessFlags) {
	switch layout {
	case hal.ImageLayoutUndefined, hal.ImageLayoutPreinitialized:
		return hal.PipelineStageTopOfPipe, 0
	case hal.ImageLayoutTransferDstOptimal:
		return hal.PipelineStageTransfer, hal.AccessTransferWrite
	case hal.ImageLayoutTransferSrcOptimal:
		return hal.PipelineStageTransfer, hal.AccessTransferRead
	case hal.ImageLayoutShaderReadOnlyOptimal:
		return hal.PipelineStageFragmentShader | hal.PipelineStageComputeShader, hal.AccessShaderRead
	case hal.ImageLayoutColorAttachmentOptimal:
		return hal.PipelineStageColorAttachmentOutput, hal.AccessColorAttachmentWrite
	case hal.ImageLayoutDepthStencilAttachmentOptimal, hal.ImageLayoutDepthAttachmentOptimal, hal.ImageLayoutStencilAttachmentOptimal,
		hal.ImageLayoutDepthReadOnlyStencilAttachmentOptimal, hal.ImageLayoutDepthAttachmentStencilReadOnlyOptimal:
		return hal.PipelineStageEarlyFragmentTests | hal.PipelineStageLateFragmentTests, hal.AccessDepthStencilAttachmentWrite
	case hal.ImageLayoutDepthStencilReadOnlyOptimal, hal.ImageLayoutDepthReadOnlyOptimal, hal.ImageLayoutStencilReadOnlyOptimal:
		return hal.PipelineStageEarlyFragmentTests | hal.PipelineStageFragmentShader, hal.AccessDepthStencilAttachmentRead | hal.AccessShaderRead
	case hal.ImageLayoutPresentSrc:
		return hal.PipelineStageBottomOfPipe, 0
	}

	return hal.PipelineStageAllCommands, hal.AccessMemoryRead | hal.AccessMemoryWrite
}
