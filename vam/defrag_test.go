package vam

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/hal/haltest"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type copyRecorder struct {
	dev           *haltest.Device
	commandBuffer hal.Handle
}

func (r copyRecorder) CopyBuffer(src, dst hal.Handle, regions []hal.BufferCopy) {
	r.dev.CmdCopyBuffer(r.commandBuffer, src, dst, regions)
}

const fragmentSize = 1024

// fragment allocates count host-visible allocations, frees every other one and fills the
// survivors with a pattern derived from their index
func fragment(t *testing.T, allocator *Allocator, count int) []*Allocation {
	var allocs []*Allocation
	for i := 0; i < count; i++ {
		alloc, err := allocator.Alloc(hostRequirements(fragmentSize), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
		require.NoError(t, err)
		allocs = append(allocs, alloc)
	}

	var survivors []*Allocation
	for i, alloc := range allocs {
		if i%2 == 0 {
			require.NoError(t, alloc.Free())
			continue
		}
		survivors = append(survivors, alloc)
	}

	for i, alloc := range survivors {
		writePattern(t, allocator, alloc, byte(i))
	}

	return survivors
}

func writePattern(t *testing.T, allocator *Allocator, alloc *Allocation, seed byte) {
	err := allocator.WithMapping(alloc, 0, func(ptr unsafe.Pointer) error {
		data := unsafe.Slice((*byte)(ptr), fragmentSize)
		for i := range data {
			data[i] = seed + byte(i)
		}
		return nil
	})
	require.NoError(t, err)
}

func requirePattern(t *testing.T, allocator *Allocator, alloc *Allocation, seed byte) {
	err := allocator.WithMapping(alloc, 0, func(ptr unsafe.Pointer) error {
		data := unsafe.Slice((*byte)(ptr), fragmentSize)
		for i, b := range data {
			require.Equal(t, seed+byte(i), b, "byte %d of allocation %d", i, seed)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestCPUDefragmentPreservesContents(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	allocs := fragment(t, allocator, 32)

	ctx, err := allocator.BeginCPUDefragment(allocs, DefragmentOptions{})
	require.NoError(t, err)

	_, err = allocator.BeginCPUDefragment(allocs, DefragmentOptions{})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	var stats DefragmentationStats
	require.NoError(t, ctx.End(&stats))
	// Every survivor is copied once, straight to its packed offset
	require.Equal(t, len(allocs), stats.AllocationsMoved)
	require.Equal(t, stats.AllocationsMoved*fragmentSize, stats.BytesMoved)

	moved := 0
	for _, m := range ctx.Moved() {
		if m {
			moved++
		}
	}
	require.Equal(t, stats.AllocationsMoved, moved)

	for i, alloc := range allocs {
		requirePattern(t, allocator, alloc, byte(i))
	}
	require.NoError(t, allocator.Validate())

	require.True(t, vkerr.Is(ctx.End(nil), vkerr.ValidationError))

	for _, alloc := range allocs {
		require.NoError(t, alloc.Free())
	}
}

func TestCPUDefragmentIncremental(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	allocs := fragment(t, allocator, 32)

	ctx, err := allocator.BeginCPUDefragment(allocs, DefragmentOptions{Incremental: true, MaxAllocationsPerPass: 2})
	require.NoError(t, err)

	passes := 0
	for {
		done, err := ctx.Continue(nil)
		require.NoError(t, err)
		if done {
			break
		}
		passes++
		require.LessOrEqual(t, ctx.Stats().AllocationsMoved, passes*2)
	}
	require.NoError(t, ctx.End(nil))

	for i, alloc := range allocs {
		requirePattern(t, allocator, alloc, byte(i))
	}
	require.NoError(t, allocator.Validate())

	for _, alloc := range allocs {
		require.NoError(t, alloc.Free())
	}
}

func TestCPUDefragmentSkipsDeviceLocalMemory(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	local, err := allocator.Alloc(hostRequirements(fragmentSize), AllocationCreateInfo{RequiredFlags: core1_0.MemoryPropertyDeviceLocal}, hal.Object{})
	require.NoError(t, err)

	ctx, err := allocator.BeginCPUDefragment([]*Allocation{local}, DefragmentOptions{})
	require.NoError(t, err)
	require.NoError(t, ctx.End(nil))
	require.Equal(t, []bool{false}, ctx.Moved())

	require.NoError(t, local.Free())
}

func TestGPUDefragmentCopiesThroughCommands(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	allocs := fragment(t, allocator, 32)

	pool, _ := dev.CreateCommandPool(hal.CommandPoolCreateInfo{}, nil)
	cbs, res := dev.AllocateCommandBuffers(hal.CommandBufferAllocateInfo{CommandPool: pool, Level: hal.CommandBufferLevelPrimary, Count: 1})
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, core1_0.VKSuccess, dev.BeginCommandBuffer(cbs[0], hal.CommandBufferUsageOneTimeSubmit))

	ctx, err := allocator.BeginGPUDefragment(copyRecorder{dev: dev, commandBuffer: cbs[0]}, allocs, DefragmentOptions{})
	require.NoError(t, err)

	_, err = allocator.BeginGPUDefragment(copyRecorder{dev: dev, commandBuffer: cbs[0]}, allocs, DefragmentOptions{})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	require.Equal(t, core1_0.VKSuccess, dev.EndCommandBuffer(cbs[0]))
	require.NotEmpty(t, dev.Commands(cbs[0]))

	fence, _ := dev.CreateFence(hal.FenceCreateInfo{}, nil)
	require.Equal(t, core1_0.VKSuccess, dev.QueueSubmit(dev.GetQueue(0, 0), []hal.SubmitInfo{{CommandBuffers: cbs}}, fence))
	require.Equal(t, core1_0.VKSuccess, dev.WaitForFences([]hal.Handle{fence}, true, hal.WaitTimeoutInfinite))

	done, err := ctx.Continue(nil)
	require.NoError(t, err)
	require.True(t, done)

	var stats DefragmentationStats
	require.NoError(t, ctx.End(&stats))
	require.Greater(t, stats.AllocationsMoved, 0)

	for i, alloc := range allocs {
		requirePattern(t, allocator, alloc, byte(i))
	}
	require.NoError(t, allocator.Validate())
	require.Zero(t, dev.Live(hal.ObjectTypeBuffer))
	require.Empty(t, dev.Violations())

	for _, alloc := range allocs {
		require.NoError(t, alloc.Free())
	}
}

func TestGPUDefragmentRequiresRecorder(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	_, err := allocator.BeginGPUDefragment(nil, nil, DefragmentOptions{})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
}
