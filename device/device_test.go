package device

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/command"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/hal/haltest"
	"github.com/vkngwrapper/armory/internal/testenv"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func newDevice(t *testing.T, config Config, extensions ...string) (*Device, *haltest.Device) {
	t.Helper()

	options := haltest.DefaultOptions()
	options.Extensions = extensions
	driver := haltest.New(options)

	dev, err := New(testenv.Discard(), driver, config)
	require.NoError(t, err)
	return dev, driver
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	buffer := hal.NewObject(hal.ObjectTypeBuffer, 7)
	image := hal.NewObject(hal.ObjectTypeImage, 3)
	queue := hal.NewObject(hal.ObjectTypeQueue, 12)
	staging := hal.NewObject(hal.ObjectTypeBuffer, 2)

	registry.Track(image, "albedo")
	registry.Track(buffer, "vertices")
	registry.Track(staging, "staging")
	registry.Track(hal.NewObject(hal.ObjectTypeBuffer, hal.NullHandle), "ignored")
	require.Equal(t, 3, registry.Count())

	registry.Rename(buffer, "indices")
	registry.Rename(queue, "graphics")
	require.False(t, registry.Tracked(queue))

	name, ok := registry.Name(buffer)
	require.True(t, ok)
	require.Equal(t, "indices", name)
	name, ok = registry.Name(queue)
	require.True(t, ok)
	require.Equal(t, "graphics", name)

	require.Equal(t, []Entry{
		{Object: staging, Name: "staging"},
		{Object: buffer, Name: "indices"},
		{Object: image, Name: "albedo"},
	}, registry.Live())

	var out bytes.Buffer
	leaks := registry.Report(slog.New(slog.NewJSONHandler(&out, nil)))
	require.Len(t, leaks, 3)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &record))
	require.Equal(t, "ERROR", record["level"])
	require.Equal(t, "indices", record["name"])

	registry.Untrack(staging)
	registry.Untrack(buffer)
	registry.Untrack(image)
	require.Zero(t, registry.Count())
	_, ok = registry.Name(buffer)
	require.False(t, ok)
}

func TestDeviceLifecycle(t *testing.T) {
	dev, driver := newDevice(t, DefaultConfig())

	buffer, err := dev.Factory().CreateBuffer(resource.BufferCreateInfo{
		Size:  1024,
		Usage: core1_0.BufferUsageVertexBuffer,
		Name:  "vertices",
	})
	require.NoError(t, err)
	require.True(t, dev.Registry().Tracked(buffer.Object()))
	require.Equal(t, "vertices", dev.ObjectName(buffer.Object()))

	require.NoError(t, buffer.Destroy())
	require.False(t, dev.Registry().Tracked(buffer.Object()))

	require.NoError(t, dev.Destroy())
	require.Empty(t, driver.LiveObjects())
	require.Empty(t, driver.Violations())
}

func TestDeviceReportsLeaks(t *testing.T) {
	options := haltest.DefaultOptions()
	driver := haltest.New(options)

	var out bytes.Buffer
	dev, err := New(slog.New(slog.NewJSONHandler(&out, nil)), driver, DefaultConfig())
	require.NoError(t, err)

	fence, err := dev.CreateFence("frame", false)
	require.NoError(t, err)

	err = dev.Destroy()
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
	require.Contains(t, out.String(), "Registry::Report object was not destroyed")
	require.Contains(t, out.String(), `"name":"frame"`)

	driver.Destroy(hal.NewObject(hal.ObjectTypeFence, fence), nil)
}

func TestDeviceRejectsInvalidSetup(t *testing.T) {
	_, err := New(testenv.Discard(), nil, DefaultConfig())
	require.True(t, vkerr.Is(err, vkerr.InitializationFailed))

	config := DefaultConfig()
	config.Log.Format = "xml"
	_, err = New(testenv.Discard(), haltest.New(haltest.DefaultOptions()), config)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
}

func TestDebugNames(t *testing.T) {
	t.Run("DebugUtils", func(t *testing.T) {
		config := DefaultConfig()
		config.Debug.ObjectNames = true
		dev, driver := newDevice(t, config, hal.ExtDebugUtils)

		fence, err := dev.CreateFence("frame", true)
		require.NoError(t, err)
		object := hal.NewObject(hal.ObjectTypeFence, fence)
		require.Equal(t, "frame", driver.ObjectName(object))

		require.NoError(t, dev.SetObjectName(object, "frame 0"))
		require.Equal(t, "frame 0", driver.ObjectName(object))
		require.Equal(t, "frame 0", dev.ObjectName(object))

		driver.FailNext("vkSetDebugUtilsObjectNameEXT", core1_0.VKErrorOutOfHostMemory)
		err = dev.SetObjectName(object, "frame 1")
		require.True(t, vkerr.Is(err, vkerr.OutOfHostMemory))
		require.Equal(t, "frame 0", dev.ObjectName(object))

		dev.DestroyObject(object)
		require.NoError(t, dev.Destroy())
	})

	t.Run("LocalOnly", func(t *testing.T) {
		dev, driver := newDevice(t, DefaultConfig())

		queue := hal.NewObject(hal.ObjectTypeQueue, dev.Queue(0, 0).Handle())
		require.NoError(t, dev.SetObjectName(queue, "graphics"))
		require.Equal(t, "graphics", dev.ObjectName(queue))
		require.Zero(t, driver.Calls("vkSetDebugUtilsObjectNameEXT"))

		require.True(t, vkerr.Is(dev.SetObjectName(hal.Object{Type: hal.ObjectTypeBuffer}, "none"), vkerr.ValidationError))
		require.NoError(t, dev.Destroy())
	})

	t.Run("NamesDisabled", func(t *testing.T) {
		dev, driver := newDevice(t, DefaultConfig(), hal.ExtDebugUtils)

		fence, err := dev.CreateFence("frame", false)
		require.NoError(t, err)
		object := hal.NewObject(hal.ObjectTypeFence, fence)
		require.Equal(t, "", driver.ObjectName(object))
		require.Equal(t, "frame", dev.ObjectName(object))

		dev.DestroyObject(object)
		require.NoError(t, dev.Destroy())
	})
}

func TestWaitFences(t *testing.T) {
	dev, driver := newDevice(t, DefaultConfig())

	signaled, err := dev.CreateFence("signaled", true)
	require.NoError(t, err)
	unsignaled, err := dev.CreateFence("unsignaled", false)
	require.NoError(t, err)

	result, err := dev.WaitFences([]hal.Handle{signaled}, true, hal.WaitTimeoutInfinite)
	require.NoError(t, err)
	require.Equal(t, WaitCompleted, result)

	result, err = dev.WaitFences([]hal.Handle{signaled, unsignaled}, true, 0)
	require.NoError(t, err)
	require.Equal(t, WaitTimedOut, result)

	result, err = dev.WaitFences([]hal.Handle{signaled, unsignaled}, false, 0)
	require.NoError(t, err)
	require.Equal(t, WaitCompleted, result)

	ok, err := dev.FenceSignaled(unsignaled)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, dev.ResetFences(signaled))
	ok, err = dev.FenceSignaled(signaled)
	require.NoError(t, err)
	require.False(t, ok)

	driver.FailNext("WaitForFences", core1_0.VKErrorDeviceLost)
	_, err = dev.WaitFences([]hal.Handle{signaled}, true, 0)
	require.True(t, vkerr.Is(err, vkerr.DeviceLost))

	dev.DestroyObject(hal.NewObject(hal.ObjectTypeFence, signaled))
	dev.DestroyObject(hal.NewObject(hal.ObjectTypeFence, unsignaled))
	require.NoError(t, dev.Destroy())
}

func TestTimelineSemaphores(t *testing.T) {
	dev, driver := newDevice(t, DefaultConfig())

	timeline, err := dev.CreateTimelineSemaphore("frames", 1)
	require.NoError(t, err)
	binary, err := dev.CreateSemaphore("acquire")
	require.NoError(t, err)

	result, err := dev.WaitSemaphores([]hal.Handle{timeline}, []uint64{2}, true, 0)
	require.NoError(t, err)
	require.Equal(t, WaitTimedOut, result)

	require.NoError(t, dev.SignalSemaphore(timeline, 2))
	require.Equal(t, uint64(2), driver.SemaphoreValue(timeline))

	result, err = dev.WaitSemaphores([]hal.Handle{timeline}, []uint64{2}, true, hal.WaitTimeoutInfinite)
	require.NoError(t, err)
	require.Equal(t, WaitCompleted, result)

	_, err = dev.WaitSemaphores([]hal.Handle{binary}, []uint64{1}, true, 0)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
	require.True(t, vkerr.Is(dev.SignalSemaphore(binary, 1), vkerr.ValidationError))

	_, err = dev.WaitSemaphores([]hal.Handle{timeline}, nil, true, 0)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	dev.DestroyObject(hal.NewObject(hal.ObjectTypeSemaphore, timeline))
	require.True(t, vkerr.Is(dev.SignalSemaphore(timeline, 3), vkerr.ValidationError))

	dev.DestroyObject(hal.NewObject(hal.ObjectTypeSemaphore, binary))
	require.NoError(t, dev.Destroy())
	require.Empty(t, driver.Violations())
}

func TestSubmitThroughDevice(t *testing.T) {
	dev, driver := newDevice(t, DefaultConfig())

	queue := dev.Queue(0, 0)
	require.Same(t, queue, dev.Queue(0, 0))
	require.NotSame(t, queue, dev.Queue(0, 1))

	pool, err := dev.NewCommandPool("frames", 0, hal.CommandPoolCreateResetCommandBuffer)
	require.NoError(t, err)
	require.True(t, dev.Registry().Tracked(pool.Object()))

	rec, err := pool.AllocatePrimary()
	require.NoError(t, err)
	require.NoError(t, rec.Begin(0))
	rec.Dispatch(1, 1, 1)
	require.NoError(t, rec.End())

	fence, err := dev.CreateFence("submit", false)
	require.NoError(t, err)
	require.NoError(t, queue.Submit(fence, command.Submission{Recorders: []*command.Recorder{rec}}))
	require.Equal(t, command.StatePending, rec.State())

	result, err := dev.WaitFences([]hal.Handle{fence}, true, hal.WaitTimeoutInfinite)
	require.NoError(t, err)
	require.Equal(t, WaitCompleted, result)
	completed, err := queue.Poll()
	require.NoError(t, err)
	require.Equal(t, 1, completed)
	require.Equal(t, command.StateExecutable, rec.State())

	// Submissions without a fence complete when the device drains
	require.NoError(t, rec.Begin(0))
	require.NoError(t, rec.End())
	require.NoError(t, queue.Submit(hal.NullHandle, command.Submission{Recorders: []*command.Recorder{rec}}))
	require.NoError(t, dev.WaitIdle())
	require.Equal(t, command.StateExecutable, rec.State())
	require.Zero(t, queue.Pending())

	dev.DestroyObject(hal.NewObject(hal.ObjectTypeFence, fence))
	require.NoError(t, pool.Destroy())
	require.NoError(t, dev.Destroy())
	require.Empty(t, driver.Violations())
}

func TestPipelineCachePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipelines.lz4")
	config := DefaultConfig()
	config.PipelineCache.Path = path

	dev, _ := newDevice(t, config)
	require.NoError(t, dev.Destroy())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Size())

	// Same device and driver: the saved cache is accepted
	dev, _ = newDevice(t, config)
	require.NoError(t, dev.Destroy())

	// Another vendor: the saved cache is discarded instead of failing
	options := haltest.DefaultOptions()
	options.VendorID = 0x10de
	var out bytes.Buffer
	dev, err = New(slog.New(slog.NewJSONHandler(&out, nil)), haltest.New(options), config)
	require.NoError(t, err)
	require.Contains(t, out.String(), "Device::New discarding pipeline cache")
	require.NoError(t, dev.Destroy())

	require.NoError(t, os.WriteFile(path, []byte("not lz4"), 0o600))
	_, err = New(testenv.Discard(), haltest.New(haltest.DefaultOptions()), config)
	require.Error(t, err)
}
