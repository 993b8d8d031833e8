package vam

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/hal/haltest"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

const hostMemory = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

func readyAllocator(t *testing.T, options haltest.Options, createOptions CreateOptions) (*haltest.Device, *Allocator) {
	dev := haltest.New(options)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	allocator, err := New(logger, dev, hal.ResolveExtensions(dev), createOptions)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, allocator.Destroy())
	})

	return dev, allocator
}

func hostRequirements(size int) hal.MemoryRequirements {
	requirements := hal.MemoryRequirements{}
	requirements.Size = size
	requirements.Alignment = 256
	requirements.MemoryTypeBits = 0b111
	return requirements
}

func TestFindMemoryTypeExactMatchWins(t *testing.T) {
	props := core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
		},
		MemoryHeaps: []core1_0.MemoryHeap{{Size: 1 << 30, Flags: core1_0.MemoryHeapDeviceLocal}},
	}

	index, err := FindMemoryTypeIndex(props, 0b11, core1_0.MemoryPropertyDeviceLocal, false)
	require.NoError(t, err)
	require.Equal(t, 1, index)

	index, err = FindMemoryTypeIndex(props, 0b01, core1_0.MemoryPropertyDeviceLocal, false)
	require.NoError(t, err)
	require.Equal(t, 0, index)

	_, err = FindMemoryTypeIndex(props, 0b11, core1_0.MemoryPropertyHostCached, false)
	require.True(t, vkerr.Is(err, vkerr.UnsupportedMemoryProperties))
}

func TestFindMemoryTypeTransient(t *testing.T) {
	props := core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyLazilyAllocated, HeapIndex: 0},
		},
		MemoryHeaps: []core1_0.MemoryHeap{{Size: 1 << 30, Flags: core1_0.MemoryHeapDeviceLocal}},
	}

	index, err := FindMemoryTypeIndex(props, 0b11, core1_0.MemoryPropertyDeviceLocal, true)
	require.NoError(t, err)
	require.Equal(t, 1, index)

	// No lazily allocated type is allowed, so the plain mask is used
	index, err = FindMemoryTypeIndex(props, 0b01, core1_0.MemoryPropertyDeviceLocal, true)
	require.NoError(t, err)
	require.Equal(t, 0, index)
}

func TestAllocAndFree(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(64*1024), AllocationCreateInfo{RequiredFlags: hostMemory, Name: "staging"}, hal.Object{})
	require.NoError(t, err)
	require.Equal(t, 1, alloc.MemoryTypeIndex())
	require.Equal(t, 64*1024, alloc.Size())
	require.Zero(t, alloc.Offset()%256)
	require.False(t, alloc.IsDedicated())
	require.True(t, dev.Alive(alloc.Memory()))
	require.Equal(t, "staging", alloc.Name())

	budget := allocator.Budget()[1]
	require.Equal(t, 1, budget.Statistics.AllocationCount)
	require.Equal(t, 64*1024, budget.Statistics.AllocationBytes)

	require.NoError(t, allocator.Free(alloc))
	require.Zero(t, allocator.Budget()[1].Statistics.AllocationBytes)

	err = allocator.Free(alloc)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	require.NoError(t, allocator.Free(nil))
	require.NoError(t, allocator.Validate())
}

func TestAllocationsAreAlignedAndDisjoint(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	var allocs []*Allocation
	for _, size := range []int{100, 3000, 17, 4096, 999} {
		requirements := hostRequirements(size)
		requirements.Alignment = 512

		alloc, err := allocator.Alloc(requirements, AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
		require.NoError(t, err)
		require.Zero(t, alloc.Offset()%512)
		allocs = append(allocs, alloc)
	}

	for i, a := range allocs {
		for _, b := range allocs[i+1:] {
			if a.Memory() != b.Memory() {
				continue
			}
			disjoint := a.Offset()+a.Size() <= b.Offset() || b.Offset()+b.Size() <= a.Offset()
			require.True(t, disjoint, "[%d, %d) overlaps [%d, %d)", a.Offset(), a.Offset()+a.Size(), b.Offset(), b.Offset()+b.Size())
		}
	}

	for _, alloc := range allocs {
		require.NoError(t, alloc.Free())
	}
	require.NoError(t, allocator.Validate())
}

func TestAllocDeviceLocalBuffer(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	buffer, res := dev.CreateBuffer(hal.BufferCreateInfo{Size: 1000, Usage: core1_0.BufferUsageStorageBuffer}, nil)
	require.Equal(t, core1_0.VKSuccess, res)
	object := hal.NewObject(hal.ObjectTypeBuffer, buffer)

	alloc, err := allocator.Alloc(dev.BufferMemoryRequirements(buffer), AllocationCreateInfo{RequiredFlags: core1_0.MemoryPropertyDeviceLocal}, object)
	require.NoError(t, err)
	require.Equal(t, 0, alloc.MemoryTypeIndex())

	require.NoError(t, allocator.BindMemory(alloc, 0, object))
	mem, offset, bound := dev.Binding(buffer)
	require.True(t, bound)
	require.Equal(t, alloc.Memory(), mem)
	require.Equal(t, alloc.Offset(), offset)

	_, err = alloc.Map(0)
	require.True(t, vkerr.Is(err, vkerr.MemoryMapFailed))
	require.Zero(t, alloc.MapCount())

	dev.Destroy(object, nil)
	require.NoError(t, alloc.Free())
	require.Empty(t, dev.Violations())
}

func TestNestedMapsShareOneDriverMapping(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	first, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)
	second, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)
	require.Equal(t, first.Memory(), second.Memory())

	firstPtr, err := allocator.Map(first, 0)
	require.NoError(t, err)
	secondPtr, err := allocator.Map(second, 0)
	require.NoError(t, err)
	again, err := allocator.Map(first, 16)
	require.NoError(t, err)

	require.Equal(t, 1, dev.Calls("MapMemory"))
	require.Equal(t, uintptr(second.Offset()-first.Offset()), uintptr(secondPtr)-uintptr(firstPtr))
	require.Equal(t, uintptr(16), uintptr(again)-uintptr(firstPtr))
	require.Equal(t, 2, first.MapCount())

	require.NoError(t, allocator.Unmap(first))
	require.NoError(t, allocator.Unmap(first))
	require.True(t, dev.IsMapped(first.Memory()))
	require.NoError(t, allocator.Unmap(second))
	require.False(t, dev.IsMapped(first.Memory()))

	err = allocator.Unmap(second)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	require.NoError(t, first.Free())
	require.NoError(t, second.Free())
}

func TestBalancedUnmapReleasesDriverMapping(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(64*1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = alloc.Map(0)
		require.NoError(t, err)
		require.True(t, dev.IsMapped(alloc.Memory()))

		require.NoError(t, alloc.Unmap())
		require.Zero(t, alloc.MapCount())
		require.False(t, dev.IsMapped(alloc.Memory()))
	}
	require.Equal(t, 4, dev.Calls("MapMemory"))
	require.Equal(t, 4, dev.Calls("UnmapMemory"))

	require.NoError(t, alloc.Free())
}

func TestConcurrentMapUnmap(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(4096), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				_, err := alloc.Map(0)
				if err != nil {
					errs <- err
					return
				}
				if err = alloc.Unmap(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Zero(t, alloc.MapCount())
	require.False(t, dev.IsMapped(alloc.Memory()))

	require.NoError(t, alloc.Free())
}

func TestMapOffsetBounds(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(256), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)

	_, err = alloc.Map(alloc.Size())
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
	_, err = alloc.Map(-1)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
	require.Zero(t, alloc.MapCount())

	last, err := alloc.Map(alloc.Size() - 1)
	require.NoError(t, err)
	first, err := alloc.Map(0)
	require.NoError(t, err)
	require.Equal(t, uintptr(alloc.Size()-1), uintptr(last)-uintptr(first))

	require.NoError(t, alloc.Unmap())
	require.NoError(t, alloc.Unmap())
	require.NoError(t, alloc.Free())
}

func TestWithMappingWritesThrough(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(256), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)

	err = allocator.WithMapping(alloc, 0, func(ptr unsafe.Pointer) error {
		data := unsafe.Slice((*byte)(ptr), 256)
		for i := range data {
			data[i] = byte(255 - i)
		}
		return nil
	})
	require.NoError(t, err)
	require.Zero(t, alloc.MapCount())
	require.False(t, dev.IsMapped(alloc.Memory()))

	contents := dev.MemoryContents(alloc.Memory())[alloc.Offset() : alloc.Offset()+256]
	for i, b := range contents {
		require.Equal(t, byte(255-i), b)
	}

	require.NoError(t, alloc.Free())
}

func TestFlushNonCoherentMemory(t *testing.T) {
	options := haltest.DefaultOptions()
	options.Memory.MemoryTypes[2].PropertyFlags = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCached
	dev, allocator := readyAllocator(t, options, CreateOptions{})

	required := core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCached
	alloc, err := allocator.Alloc(hostRequirements(1000), AllocationCreateInfo{RequiredFlags: required}, hal.Object{})
	require.NoError(t, err)
	require.Equal(t, 2, alloc.MemoryTypeIndex())

	_, err = alloc.Map(0)
	require.NoError(t, err)
	require.NoError(t, alloc.Flush(10, 100))
	require.NoError(t, alloc.Invalidate(0, WholeSize))
	require.NoError(t, alloc.Unmap())

	require.Equal(t, 1, dev.Calls("FlushMappedMemoryRanges"))
	require.Equal(t, 1, dev.Calls("InvalidateMappedMemoryRanges"))
	require.Empty(t, dev.Violations())

	// Coherent memory never reaches the driver
	coherent, err := allocator.Alloc(hostRequirements(1000), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)
	require.NoError(t, coherent.Flush(0, WholeSize))
	require.Equal(t, 1, dev.Calls("FlushMappedMemoryRanges"))

	require.NoError(t, alloc.Free())
	require.NoError(t, coherent.Free())
}

func TestLargeRequestsAreDedicated(t *testing.T) {
	options := haltest.DefaultOptions()
	options.Extensions = []string{hal.ExtDedicatedAllocation, hal.ExtGetMemoryRequirements2}
	dev, allocator := readyAllocator(t, options, CreateOptions{})

	buffer, _ := dev.CreateBuffer(hal.BufferCreateInfo{Size: 20 * 1024 * 1024}, nil)
	object := hal.NewObject(hal.ObjectTypeBuffer, buffer)

	alloc, err := allocator.Alloc(dev.BufferMemoryRequirements(buffer), AllocationCreateInfo{RequiredFlags: core1_0.MemoryPropertyDeviceLocal}, object)
	require.NoError(t, err)
	require.True(t, alloc.IsDedicated())
	require.Zero(t, alloc.Offset())

	info := dev.Info(alloc.Memory()).(hal.MemoryAllocateInfo)
	require.Equal(t, buffer, info.DedicatedBuffer)

	memory := alloc.Memory()
	require.NoError(t, alloc.Bind(0, object))
	dev.Destroy(object, nil)
	require.NoError(t, alloc.Free())
	require.False(t, dev.Alive(memory))
}

func TestAllocBatchRollsBackOnFailure(t *testing.T) {
	options := haltest.DefaultOptions()
	options.Limits.MaxMemoryAllocationCount = 1
	dev, allocator := readyAllocator(t, options, CreateOptions{})

	requirements := []hal.MemoryRequirements{hostRequirements(1024), hostRequirements(2048), hostRequirements(4096)}
	for i := range requirements {
		requirements[i].MemoryTypeBits = 1 << 1
	}
	infos := []AllocationCreateInfo{
		{RequiredFlags: hostMemory},
		{RequiredFlags: hostMemory},
		{RequiredFlags: hostMemory, Flags: AllocationCreateDedicatedMemory},
	}

	allocs, err := allocator.AllocBatch(requirements, infos)
	require.Nil(t, allocs)
	require.True(t, vkerr.Is(err, vkerr.TooManyObjects))

	require.Zero(t, allocator.Budget()[1].Statistics.AllocationCount)
	require.NoError(t, allocator.Validate())
	require.Empty(t, dev.Violations())
}

func TestAllocBatchSharesOneBlock(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	requirements := []hal.MemoryRequirements{hostRequirements(1024), hostRequirements(2048), hostRequirements(4096)}
	infos := []AllocationCreateInfo{{RequiredFlags: hostMemory}, {RequiredFlags: hostMemory}, {RequiredFlags: hostMemory}}

	allocs, err := allocator.AllocBatch(requirements, infos)
	require.NoError(t, err)
	require.Len(t, allocs, 3)
	require.Equal(t, 1, dev.Calls("AllocateMemory"))
	for _, alloc := range allocs {
		require.Equal(t, allocs[0].Memory(), alloc.Memory())
	}

	for _, alloc := range allocs {
		require.NoError(t, alloc.Free())
	}
}

func TestOutOfMemoryFallsBackToNextType(t *testing.T) {
	options := haltest.DefaultOptions()
	dev, allocator := readyAllocator(t, options, CreateOptions{})

	dev.FailTimes("AllocateMemory", core1_0.VKErrorOutOfDeviceMemory, 2)

	alloc, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)
	require.Greater(t, dev.Calls("AllocateMemory"), 2)
	require.NoError(t, alloc.Free())
}

func TestOutOfMemoryReported(t *testing.T) {
	dev, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	dev.Fail("AllocateMemory", core1_0.VKErrorOutOfDeviceMemory)

	_, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.True(t, vkerr.Is(err, vkerr.OutOfDeviceMemory))
	require.Zero(t, allocator.Budget()[1].Statistics.BlockCount)
	require.Zero(t, dev.Live(hal.ObjectTypeDeviceMemory))
}

func TestRealloc(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory, Name: "grow"}, hal.Object{})
	require.NoError(t, err)

	grown, err := allocator.Realloc(alloc, 8192)
	require.NoError(t, err)
	require.Equal(t, 8192, grown.Size())
	require.Equal(t, alloc.MemoryTypeIndex(), grown.MemoryTypeIndex())
	require.Equal(t, "grow", grown.Name())

	require.True(t, vkerr.Is(alloc.Free(), vkerr.ValidationError))
	require.NoError(t, grown.Free())
}

func TestBudgetWithoutExtension(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)

	budgets := allocator.Budget()
	require.Len(t, budgets, 2)
	heapSize := 256 * 1024 * 1024
	require.Equal(t, int(float64(heapSize)*0.8), budgets[1].Budget)
	require.Equal(t, budgets[1].Statistics.BlockBytes, budgets[1].Usage)
	require.NotZero(t, budgets[1].Usage)

	require.NoError(t, alloc.Free())
}

func TestBudgetFromDriver(t *testing.T) {
	options := haltest.DefaultOptions()
	options.Extensions = []string{hal.ExtMemoryBudget}
	dev, allocator := readyAllocator(t, options, CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)

	budgets := allocator.Budget()
	require.Equal(t, 256*1024*1024, budgets[1].Budget)
	require.Equal(t, dev.HeapUsage(1), budgets[1].Usage)

	require.NoError(t, alloc.Free())
}

func TestHeapSizeLimit(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{
		HeapSizeLimits: []int{0, 1024 * 1024},
	})

	_, err := allocator.Alloc(hostRequirements(2*1024*1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.True(t, vkerr.Is(err, vkerr.OutOfDeviceMemory))
	require.Equal(t, 1024*1024, allocator.Budget()[1].Budget)
}

func TestSetPriority(t *testing.T) {
	_, plain := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})
	alloc, err := plain.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory, Flags: AllocationCreateDedicatedMemory}, hal.Object{})
	require.NoError(t, err)
	require.True(t, vkerr.Is(plain.SetPriority(alloc, 0.9), vkerr.ExtensionUnsupported))
	require.NoError(t, alloc.Free())

	options := haltest.DefaultOptions()
	options.Extensions = []string{hal.ExtMemoryPriority, hal.ExtPageableDeviceLocalMemory}
	dev, allocator := readyAllocator(t, options, CreateOptions{})

	dedicated, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory, Flags: AllocationCreateDedicatedMemory, Priority: 0.25}, hal.Object{})
	require.NoError(t, err)
	require.Equal(t, float32(0.25), dev.MemoryPriority(dedicated.Memory()))

	require.NoError(t, allocator.SetPriority(dedicated, 0.9))
	require.Equal(t, float32(0.9), dev.MemoryPriority(dedicated.Memory()))
	require.Equal(t, float32(0.9), dedicated.Priority())

	require.True(t, vkerr.Is(allocator.SetPriority(dedicated, 1.5), vkerr.ValidationError))

	block, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)
	require.True(t, vkerr.Is(allocator.SetPriority(block, 0.9), vkerr.ValidationError))

	require.NoError(t, dedicated.Free())
	require.NoError(t, block.Free())
	require.Empty(t, dev.Violations())
}

func TestPrioritiesUseSeparateBlocks(t *testing.T) {
	options := haltest.DefaultOptions()
	options.Extensions = []string{hal.ExtMemoryPriority}
	_, allocator := readyAllocator(t, options, CreateOptions{})

	low, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory, Priority: 0.1}, hal.Object{})
	require.NoError(t, err)
	high, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory, Priority: 0.9}, hal.Object{})
	require.NoError(t, err)
	require.NotEqual(t, low.Memory(), high.Memory())

	// Zero means the default priority
	def, err := allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory}, hal.Object{})
	require.NoError(t, err)
	require.Equal(t, DefaultPriority, def.Priority())

	require.NoError(t, low.Free())
	require.NoError(t, high.Free())
	require.NoError(t, def.Free())
}

func TestCheckCorruptionUnsupportedByDefault(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	err := allocator.CheckCorruption(0b111)
	require.True(t, vkerr.Is(err, vkerr.FeatureUnsupported))
}

func TestDestroyReportsLeaks(t *testing.T) {
	dev := haltest.New(haltest.DefaultOptions())
	allocator, err := New(slog.New(slog.NewJSONHandler(io.Discard, nil)), dev, nil, CreateOptions{})
	require.NoError(t, err)

	_, err = allocator.Alloc(hostRequirements(1024), AllocationCreateInfo{RequiredFlags: hostMemory, Flags: AllocationCreateDedicatedMemory}, hal.Object{})
	require.NoError(t, err)

	require.Error(t, allocator.Destroy())
}

func TestBuildStatsString(t *testing.T) {
	_, allocator := readyAllocator(t, haltest.DefaultOptions(), CreateOptions{})

	alloc, err := allocator.Alloc(hostRequirements(4096), AllocationCreateInfo{RequiredFlags: hostMemory, Name: "uniforms"}, hal.Object{})
	require.NoError(t, err)

	stats, err := allocator.BuildStatsString(true)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(stats), &parsed))
	require.Contains(t, parsed, "General")
	require.Contains(t, parsed, "Total")
	require.Contains(t, parsed, "MemoryInfo")
	require.Contains(t, parsed, "DefaultPools")
	require.Equal(t, "haltest", parsed["General"].(map[string]any)["DeviceName"])
	require.Contains(t, stats, "uniforms")

	require.NoError(t, alloc.Free())
}
