package resource

import (
	"context"
	"log/slog"

	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vam"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Registry records every live driver object created through a Factory. device.Device provides
// one; a nil Registry records nothing.
type Registry interface {
	Track(object hal.Object, name string)
	Untrack(object hal.Object)
}

// Factory creates resources against one device and its allocator
type Factory struct {
	logger     *slog.Logger
	device     hal.Device
	allocator  *vam.Allocator
	extensions *hal.ExtensionTable
	registry   Registry
}

// NewFactory creates a Factory. extensions may be nil, in which case no optional entry points
// are used.
func NewFactory(logger *slog.Logger, device hal.Device, allocator *vam.Allocator, extensions *hal.ExtensionTable, registry Registry) (*Factory, error) {
	if device == nil || allocator == nil {
		return nil, vkerr.New(vkerr.InitializationFailed, "a resource factory requires a device and an allocator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = &hal.ExtensionTable{}
	}

	return &Factory{
		logger:     logger,
		device:     device,
		allocator:  allocator,
		extensions: extensions,
		registry:   registry,
	}, nil
}

// Allocator returns the allocator that backs the factory's resources
func (f *Factory) Allocator() *vam.Allocator {
	return f.allocator
}

// Device returns the driver the factory creates objects against
func (f *Factory) Device() hal.Device {
	return f.device
}

// Extensions returns the device's extension table
func (f *Factory) Extensions() *hal.ExtensionTable {
	return f.extensions
}

func (f *Factory) debugLog(msg string, attrs ...slog.Attr) {
	f.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func (f *Factory) track(object hal.Object, name string) {
	if f.registry != nil {
		f.registry.Track(object, name)
	}
}

func (f *Factory) destroy(object hal.Object) {
	if object.IsNull() {
		return
	}

	f.device.Destroy(object, nil)
	if f.registry != nil {
		f.registry.Untrack(object)
	}
}

// Track records a driver object created outside the factory, such as a descriptor pool or a
// pipeline, in the factory's registry
func (f *Factory) Track(object hal.Object, name string) {
	f.track(object, name)
}

// DestroyObject destroys a driver object recorded with Track and removes it from the registry.
// A null object is ignored.
func (f *Factory) DestroyObject(object hal.Object) {
	f.destroy(object)
}

// Resource is implemented by every object a Factory creates
type Resource interface {
	Object() hal.Object
	Destroy() error
}

const (
	hostMemoryFlags   = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
	deviceMemoryFlags = core1_0.MemoryPropertyDeviceLocal
)

// memoryInfo decides where a resource lives: host-visible coherent memory when the host must
// map it, device-local memory otherwise
func memoryInfo(mappingRequired, transient, dedicated bool, priority float32, name string) vam.AllocationCreateInfo {
	info := vam.AllocationCreateInfo{
		Priority:  priority,
		Transient: transient,
		Name:      name,
	}

	if mappingRequired {
		info.RequiredFlags = hostMemoryFlags
	} else {
		info.RequiredFlags = deviceMemoryFlags
	}
	if dedicated {
		info.Flags |= vam.AllocationCreateDedicatedMemory
	}

	return info
}
