package haltest

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestMemoryMapAndCopy(t *testing.T) {
	dev := New(DefaultOptions())

	mem, res := dev.AllocateMemory(hal.MemoryAllocateInfo{Size: 4096, MemoryTypeIndex: 1}, nil)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, 4096, dev.HeapUsage(1))

	src, res := dev.CreateBuffer(hal.BufferCreateInfo{Size: 256, Usage: core1_0.BufferUsageTransferSrc}, nil)
	require.Equal(t, core1_0.VKSuccess, res)
	dst, res := dev.CreateBuffer(hal.BufferCreateInfo{Size: 256, Usage: core1_0.BufferUsageTransferDst}, nil)
	require.Equal(t, core1_0.VKSuccess, res)

	require.Equal(t, core1_0.VKSuccess, dev.BindBufferMemory(src, mem, 0))
	require.Equal(t, core1_0.VKSuccess, dev.BindBufferMemory(dst, mem, 256))

	ptr, res := dev.MapMemory(mem, 0, 4096)
	require.Equal(t, core1_0.VKSuccess, res)
	data := unsafe.Slice((*byte)(ptr), 256)
	for i := range data {
		data[i] = byte(i)
	}
	dev.UnmapMemory(mem)

	pool, _ := dev.CreateCommandPool(hal.CommandPoolCreateInfo{}, nil)
	cbs, res := dev.AllocateCommandBuffers(hal.CommandBufferAllocateInfo{CommandPool: pool, Level: hal.CommandBufferLevelPrimary, Count: 1})
	require.Equal(t, core1_0.VKSuccess, res)

	require.Equal(t, core1_0.VKSuccess, dev.BeginCommandBuffer(cbs[0], hal.CommandBufferUsageOneTimeSubmit))
	dev.CmdCopyBuffer(cbs[0], src, dst, []hal.BufferCopy{{Size: 256}})
	require.Equal(t, core1_0.VKSuccess, dev.EndCommandBuffer(cbs[0]))

	fence, _ := dev.CreateFence(hal.FenceCreateInfo{}, nil)
	queue := dev.GetQueue(0, 0)
	require.Equal(t, core1_0.VKSuccess, dev.QueueSubmit(queue, []hal.SubmitInfo{{CommandBuffers: cbs}}, fence))
	require.Equal(t, core1_0.VKSuccess, dev.WaitForFences([]hal.Handle{fence}, true, hal.WaitTimeoutInfinite))

	require.Equal(t, data, dev.BufferContents(dst, 256))
	require.Empty(t, dev.Violations())
}

func TestMapDeviceLocalMemoryFails(t *testing.T) {
	dev := New(DefaultOptions())

	mem, res := dev.AllocateMemory(hal.MemoryAllocateInfo{Size: 64, MemoryTypeIndex: 0}, nil)
	require.Equal(t, core1_0.VKSuccess, res)

	_, res = dev.MapMemory(mem, 0, 64)
	require.Equal(t, core1_0.VKErrorMemoryMapFailed, res)
	require.False(t, dev.IsMapped(mem))
}

func TestHeapOverflow(t *testing.T) {
	options := DefaultOptions()
	options.Memory.MemoryHeaps[1].Size = 1024
	dev := New(options)

	_, res := dev.AllocateMemory(hal.MemoryAllocateInfo{Size: 1024, MemoryTypeIndex: 1}, nil)
	require.Equal(t, core1_0.VKSuccess, res)
	_, res = dev.AllocateMemory(hal.MemoryAllocateInfo{Size: 1, MemoryTypeIndex: 2}, nil)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)
}

func TestInjectedFailures(t *testing.T) {
	dev := New(DefaultOptions())

	dev.FailTimes("CreateBuffer", core1_0.VKErrorOutOfDeviceMemory, 2)

	for i := 0; i < 2; i++ {
		_, res := dev.CreateBuffer(hal.BufferCreateInfo{Size: 16}, nil)
		require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)
	}

	_, res := dev.CreateBuffer(hal.BufferCreateInfo{Size: 16}, nil)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, 3, dev.Calls("CreateBuffer"))
}

func TestDestroyUnknownHandleIsViolation(t *testing.T) {
	dev := New(DefaultOptions())

	dev.Destroy(hal.NewObject(hal.ObjectTypeBuffer, hal.NullHandle), nil)
	require.Empty(t, dev.Violations())

	dev.Destroy(hal.NewObject(hal.ObjectTypeBuffer, 0xdead), nil)
	require.Len(t, dev.Violations(), 1)
}

func TestDestroyPoolDestroysChildren(t *testing.T) {
	dev := New(DefaultOptions())

	pool, _ := dev.CreateCommandPool(hal.CommandPoolCreateInfo{}, nil)
	cbs, _ := dev.AllocateCommandBuffers(hal.CommandBufferAllocateInfo{CommandPool: pool, Level: hal.CommandBufferLevelPrimary, Count: 3})
	require.Equal(t, 3, dev.Live(hal.ObjectTypeCommandBuffer))

	dev.Destroy(hal.NewObject(hal.ObjectTypeCommandPool, pool), nil)
	require.Equal(t, 0, dev.Live(hal.ObjectTypeCommandBuffer))
	require.False(t, dev.Alive(cbs[0]))
}

func TestPipelineCacheRoundTrip(t *testing.T) {
	dev := New(DefaultOptions())

	layout, _ := dev.CreatePipelineLayout(hal.PipelineLayoutCreateInfo{}, nil)
	module, _ := dev.CreateShaderModule(hal.ShaderModuleCreateInfo{Code: []uint32{0x07230203}}, nil)
	cache, _ := dev.CreatePipelineCache(nil, nil)

	info := hal.ComputePipelineCreateInfo{
		Stage:  hal.PipelineShaderStageCreateInfo{Stage: hal.StageCompute, Module: module, Name: "main"},
		Layout: layout,
	}
	_, res := dev.CreateComputePipelines(cache, []hal.ComputePipelineCreateInfo{info}, nil)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, 1, dev.CacheEntries(cache))

	data, res := dev.PipelineCacheData(cache)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, dev.CacheHeader(), data[:PipelineCacheHeaderSize])

	reloaded, _ := dev.CreatePipelineCache(data, nil)
	require.Equal(t, 1, dev.CacheEntries(reloaded))

	feedback := hal.PipelineCreationFeedback{}
	info.Feedback = &hal.PipelineCreationFeedbackCreateInfo{Pipeline: &feedback}
	_, res = dev.CreateComputePipelines(reloaded, []hal.ComputePipelineCreateInfo{info}, nil)
	require.Equal(t, core1_0.VKSuccess, res)
	require.NotZero(t, feedback.Flags&hal.FeedbackApplicationPipelineCacheHit)

	other := New(Options{VendorID: 0x9999})
	foreign, _ := other.CreatePipelineCache(data, nil)
	require.Equal(t, 0, other.CacheEntries(foreign))
}

func TestPipelinePartialFailure(t *testing.T) {
	dev := New(DefaultOptions())
	dev.PipelineResult = func(bindPoint hal.PipelineBindPoint, index int) common.VkResult {
		if index == 1 {
			return core1_0.VKErrorOutOfDeviceMemory
		}
		return core1_0.VKSuccess
	}

	layout, _ := dev.CreatePipelineLayout(hal.PipelineLayoutCreateInfo{}, nil)
	info := hal.ComputePipelineCreateInfo{Stage: hal.PipelineShaderStageCreateInfo{Stage: hal.StageCompute, Name: "main"}, Layout: layout}

	handles, res := dev.CreateComputePipelines(hal.NullHandle, []hal.ComputePipelineCreateInfo{info, info, info}, nil)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)
	require.False(t, handles[0].IsNull())
	require.True(t, handles[1].IsNull())
	require.False(t, handles[2].IsNull())
}

func TestExtensionsResolveOnlyWhenEnabled(t *testing.T) {
	dev := New(DefaultOptions())
	table := hal.ResolveExtensions(dev)
	require.Nil(t, table.SetDebugUtilsObjectName)
	require.Nil(t, table.CreateAccelerationStructure)

	options := DefaultOptions()
	options.Extensions = []string{hal.ExtDebugUtils, hal.ExtAccelerationStructure, hal.ExtMemoryBudget}
	dev = New(options)
	table = hal.ResolveExtensions(dev)
	require.NotNil(t, table.SetDebugUtilsObjectName)
	require.NotNil(t, table.CreateAccelerationStructure)
	require.NotNil(t, table.GetMemoryBudget)
	require.Nil(t, table.CmdDrawMeshTasks)

	buffer, _ := dev.CreateBuffer(hal.BufferCreateInfo{Size: 64}, nil)
	object := hal.NewObject(hal.ObjectTypeBuffer, buffer)
	require.Equal(t, core1_0.VKSuccess, table.SetDebugUtilsObjectName(dev.Handle(), object, "vertices"))
	require.Equal(t, "vertices", dev.ObjectName(object))

	budgets := table.GetMemoryBudget(dev.Handle())
	require.Len(t, budgets, 2)
	require.Equal(t, 256*1024*1024, budgets[0].Budget)
}

func TestTimelineSemaphore(t *testing.T) {
	dev := New(DefaultOptions())

	semaphore, _ := dev.CreateSemaphore(hal.SemaphoreCreateInfo{Timeline: true, InitialValue: 2}, nil)
	require.Equal(t, core1_0.VKTimeout, dev.WaitSemaphores([]hal.Handle{semaphore}, []uint64{3}, true, 0))

	require.Equal(t, core1_0.VKSuccess, dev.SignalSemaphore(semaphore, 3))
	require.Equal(t, core1_0.VKSuccess, dev.WaitSemaphores([]hal.Handle{semaphore}, []uint64{3}, true, 0))

	require.NotEqual(t, core1_0.VKSuccess, dev.SignalSemaphore(semaphore, 3))
	require.Equal(t, uint64(3), dev.SemaphoreValue(semaphore))
}
