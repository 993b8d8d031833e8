package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
)

func subresources(level, levels, layer, layers int) hal.ImageSubresourceRange {
	return hal.ImageSubresourceRange{
		AspectMask:     hal.ImageAspectColor,
		BaseMipLevel:   level,
		LevelCount:     levels,
		BaseArrayLayer: layer,
		LayerCount:     layers,
	}
}

func TestLayoutTrackerStartsUniform(t *testing.T) {
	tracker := NewLayoutTracker(4, 6, hal.ImageLayoutPreinitialized)

	layout, uniform := tracker.Uniform()
	require.True(t, uniform)
	require.Equal(t, hal.ImageLayoutPreinitialized, layout)
	require.Equal(t, hal.ImageLayoutPreinitialized, tracker.At(3, 5))

	runs := tracker.Runs(subresources(0, hal.RemainingMipLevels, 0, hal.RemainingArrayLayers))
	require.Equal(t, []LayoutRun{{Range: subresources(0, 4, 0, 6), Layout: hal.ImageLayoutPreinitialized}}, runs)
}

func TestLayoutTrackerSplitsAndCollapses(t *testing.T) {
	tracker := NewLayoutTracker(2, 4, hal.ImageLayoutUndefined)

	tracker.Set(subresources(1, 1, 1, 2), hal.ImageLayoutTransferDstOptimal)
	_, uniform := tracker.Uniform()
	require.False(t, uniform)
	require.Equal(t, hal.ImageLayoutUndefined, tracker.At(1, 0))
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, tracker.At(1, 1))
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, tracker.At(1, 2))
	require.Equal(t, hal.ImageLayoutUndefined, tracker.At(1, 3))

	runs := tracker.Runs(subresources(1, 1, 0, hal.RemainingArrayLayers))
	require.Equal(t, []LayoutRun{
		{Range: subresources(1, 1, 0, 1), Layout: hal.ImageLayoutUndefined},
		{Range: subresources(1, 1, 1, 2), Layout: hal.ImageLayoutTransferDstOptimal},
		{Range: subresources(1, 1, 3, 1), Layout: hal.ImageLayoutUndefined},
	}, runs)

	layout, ok := tracker.LayoutOf(subresources(1, 1, 1, 2))
	require.True(t, ok)
	require.Equal(t, hal.ImageLayoutTransferDstOptimal, layout)
	_, ok = tracker.LayoutOf(subresources(0, 2, 0, 4))
	require.False(t, ok)

	tracker.Set(subresources(1, 1, 1, 2), hal.ImageLayoutUndefined)
	layout, uniform = tracker.Uniform()
	require.True(t, uniform)
	require.Equal(t, hal.ImageLayoutUndefined, layout)
}

func TestLayoutTrackerWholeImageSet(t *testing.T) {
	tracker := NewLayoutTracker(3, 1, hal.ImageLayoutUndefined)

	tracker.Set(subresources(0, 1, 0, 1), hal.ImageLayoutGeneral)
	tracker.Set(subresources(0, hal.RemainingMipLevels, 0, hal.RemainingArrayLayers), hal.ImageLayoutShaderReadOnlyOptimal)

	layout, uniform := tracker.Uniform()
	require.True(t, uniform)
	require.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, layout)
}

func TestLayoutTrackerResolveClamps(t *testing.T) {
	tracker := NewLayoutTracker(4, 2, hal.ImageLayoutUndefined)

	require.Equal(t, subresources(2, 2, 1, 1), tracker.Resolve(subresources(2, 10, 1, hal.RemainingArrayLayers)))
	require.Empty(t, tracker.Runs(subresources(4, 1, 0, 1)))
}

func TestLayoutTrackerMergesEqualRuns(t *testing.T) {
	tracker := NewLayoutTracker(2, 2, hal.ImageLayoutUndefined)
	tracker.Set(subresources(0, 1, 0, 1), hal.ImageLayoutGeneral)

	// Both levels of layer 1 are still undefined
	runs := tracker.Runs(subresources(0, 2, 1, 1))
	require.Equal(t, []LayoutRun{{Range: subresources(0, 2, 1, 1), Layout: hal.ImageLayoutUndefined}}, runs)
}
