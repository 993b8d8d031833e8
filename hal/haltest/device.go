// Package haltest is an in-memory implementation of hal.Device. Device memory is backed by
// byte slices, objects live in a handle table, command buffers record what is called on them and
// submissions execute copies and fills synchronously. Tests use it to observe exactly what the
// layers above the driver asked for.
package haltest

import (
	"sync"

	"github.com/dolthub/swiss"
	"github.com/google/uuid"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

const (
	deviceHandle    hal.Handle = 1
	firstHandle     hal.Handle = 0x100
	addressBase     uint64     = 0x10000000
	addressPageSize uint64     = 0x10000

	// DefaultBufferAlignment is the alignment reported for every buffer unless overridden
	DefaultBufferAlignment = 256
	// DefaultImageAlignment is the alignment reported for optimally tiled images
	DefaultImageAlignment = 4096
)

// Options describes the device to fake. Zero fields take the defaults of DefaultOptions.
type Options struct {
	Name       string
	VendorID   uint32
	DeviceID   uint32
	DeviceType core1_0.PhysicalDeviceType

	PipelineCacheUUID uuid.UUID
	DriverUUID        uuid.UUID

	Memory     core1_0.PhysicalDeviceMemoryProperties
	Limits     hal.PhysicalDeviceLimits
	Extensions []string

	// BufferRequirements and ImageRequirements replace the computed requirements when set
	BufferRequirements func(info hal.BufferCreateInfo) hal.MemoryRequirements
	ImageRequirements  func(info hal.ImageCreateInfo) hal.MemoryRequirements
}

// DefaultMemory is a discrete GPU layout: one device-local heap and one host heap, with a
// device-local type, a host-visible coherent type and a host-visible cached type
func DefaultMemory() core1_0.PhysicalDeviceMemoryProperties {
	return core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent | core1_0.MemoryPropertyHostCached, HeapIndex: 1},
		},
		MemoryHeaps: []core1_0.MemoryHeap{
			{Size: 256 * 1024 * 1024, Flags: core1_0.MemoryHeapDeviceLocal},
			{Size: 256 * 1024 * 1024},
		},
	}
}

// DefaultLimits are conservative limits that every layer above the driver accepts
func DefaultLimits() hal.PhysicalDeviceLimits {
	return hal.PhysicalDeviceLimits{
		BufferImageGranularity:   1,
		NonCoherentAtomSize:      64,
		MaxMemoryAllocationCount: 4096,
		MinMemoryMapAlignment:    64,
		MaxBoundDescriptorSets:   8,
		MaxPushConstantsSize:     128,
		TimestampPeriod:          1,
	}
}

// DefaultOptions fakes a small discrete GPU with no extensions enabled
func DefaultOptions() Options {
	return Options{
		Name:              "haltest",
		VendorID:          0x1234,
		DeviceID:          0x5678,
		DeviceType:        core1_0.PhysicalDeviceTypeDiscreteGPU,
		PipelineCacheUUID: uuid.MustParse("6e1f3a0c-9a43-4f5e-8f0d-5a1b2c3d4e5f"),
		DriverUUID:        uuid.MustParse("0b7d2e44-1c6a-4b8e-9e3f-7a6b5c4d3e2f"),
		Memory:            DefaultMemory(),
		Limits:            DefaultLimits(),
	}
}

type failure struct {
	result    common.VkResult
	remaining int
}

// Device is the in-memory driver. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	info       hal.PhysicalDeviceInfo
	extensions map[string]bool
	procs      map[string]any

	bufferRequirements func(info hal.BufferCreateInfo) hal.MemoryRequirements
	imageRequirements  func(info hal.ImageCreateInfo) hal.MemoryRequirements

	nextHandle  hal.Handle
	nextAddress uint64
	objects     *swiss.Map[hal.Handle, *object]
	queues      map[[2]int]hal.Handle

	calls      map[string]int
	failures   map[string]failure
	violations []string

	heapUsage   []int
	names       *swiss.Map[hal.Object, string]
	submissions []hal.SubmitInfo
	hostBuilds  []ASBuild
	hostCopies  []hal.CopyAccelerationStructureInfo

	// PipelineResult decides the outcome of each pipeline of a multi-pipeline create call. Nil
	// or a success result creates the pipeline.
	PipelineResult func(bindPoint hal.PipelineBindPoint, index int) common.VkResult
}

var _ hal.Device = (*Device)(nil)

// New creates a fake device. Every extension entry point the fake implements is registered, and
// is reachable through ExtensionTable only when its extension is in Options.Extensions.
func New(options Options) *Device {
	defaults := DefaultOptions()
	if options.Name == "" {
		options.Name = defaults.Name
	}
	if len(options.Memory.MemoryTypes) == 0 {
		options.Memory = defaults.Memory
	}
	if options.Limits == (hal.PhysicalDeviceLimits{}) {
		options.Limits = defaults.Limits
	}
	if options.PipelineCacheUUID == uuid.Nil {
		options.PipelineCacheUUID = defaults.PipelineCacheUUID
	}
	if options.DriverUUID == uuid.Nil {
		options.DriverUUID = defaults.DriverUUID
	}

	d := &Device{
		info: hal.PhysicalDeviceInfo{
			VendorID:          options.VendorID,
			DeviceID:          options.DeviceID,
			DeviceType:        options.DeviceType,
			DeviceName:        options.Name,
			APIVersion:        uint32(common.Vulkan1_2),
			DriverVersion:     1,
			PipelineCacheUUID: options.PipelineCacheUUID,
			DriverUUID:        options.DriverUUID,
			Limits:            options.Limits,
			Memory:            options.Memory,
		},
		extensions:         make(map[string]bool),
		procs:              make(map[string]any),
		bufferRequirements: options.BufferRequirements,
		imageRequirements:  options.ImageRequirements,
		nextHandle:         firstHandle,
		nextAddress:        addressBase,
		objects:            swiss.NewMap[hal.Handle, *object](64),
		queues:             make(map[[2]int]hal.Handle),
		calls:              make(map[string]int),
		failures:           make(map[string]failure),
		heapUsage:          make([]int, len(options.Memory.MemoryHeaps)),
		names:              swiss.NewMap[hal.Object, string](16),
	}

	for _, ext := range options.Extensions {
		d.extensions[ext] = true
	}

	d.registerProcs()

	return d
}

func (d *Device) Handle() hal.Handle {
	return deviceHandle
}

func (d *Device) PhysicalDevice() hal.PhysicalDeviceInfo {
	return d.info
}

func (d *Device) ExtensionEnabled(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.extensions[name]
}

func (d *Device) ProcAddr(name string) any {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.procs[name]
}

// EnableExtension marks an extension enabled after construction. The extension table of a device
// is resolved once, so this must be called before the device is wrapped.
func (d *Device) EnableExtension(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.extensions[name] = true
}

// RegisterProc replaces or adds an entry point returned by ProcAddr
func (d *Device) RegisterProc(name string, entry any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.procs[name] = entry
}

// Fail makes every following call to the named entry point return result
func (d *Device) Fail(entry string, result common.VkResult) {
	d.FailTimes(entry, result, -1)
}

// FailNext makes the next call to the named entry point return result
func (d *Device) FailNext(entry string, result common.VkResult) {
	d.FailTimes(entry, result, 1)
}

// FailTimes makes the next count calls to the named entry point return result. A negative count
// never expires.
func (d *Device) FailTimes(entry string, result common.VkResult, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failures[entry] = failure{result: result, remaining: count}
}

// ClearFailures removes every injected failure
func (d *Device) ClearFailures() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failures = make(map[string]failure)
}

// Calls returns how many times the named entry point was called, failed calls included
func (d *Device) Calls(entry string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls[entry]
}

// Violations lists every misuse of the driver contract the fake detected, such as destroying an
// unknown handle or mapping memory twice
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.violations...)
}

// enter counts a call and returns the injected result for it. The lock must be held.
func (d *Device) enter(entry string) common.VkResult {
	d.calls[entry]++

	f, ok := d.failures[entry]
	if !ok {
		return core1_0.VKSuccess
	}

	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(d.failures, entry)
		} else {
			d.failures[entry] = f
		}
	}

	return f.result
}
