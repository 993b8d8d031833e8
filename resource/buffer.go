package resource

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vam"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// BufferCreateInfo describes a buffer and the memory that backs it
type BufferCreateInfo struct {
	Flags         hal.BufferCreateFlags
	Size          int
	Usage         core1_0.BufferUsageFlags
	SharingMode   core1_0.SharingMode
	QueueFamilies []int

	// MappingRequired places the buffer in host-visible, host-coherent memory so Write and Read
	// can be used. Otherwise the buffer is device-local.
	MappingRequired bool
	// Transient allows lazily-allocated memory
	Transient bool
	// Dedicated gives the buffer its own driver allocation
	Dedicated bool
	// Priority is the memory priority in [0, 1]; zero selects the allocator default
	Priority float32
	Name     string
}

func (i BufferCreateInfo) driverInfo() hal.BufferCreateInfo {
	return hal.BufferCreateInfo{
		Flags:              i.Flags,
		Size:               i.Size,
		Usage:              i.Usage,
		SharingMode:        i.SharingMode,
		QueueFamilyIndices: i.QueueFamilies,
	}
}

func validateSharing(mode core1_0.SharingMode, families []int) error {
	if mode == core1_0.SharingModeConcurrent && len(families) < 2 {
		return vkerr.New(vkerr.ValidationError, "concurrent sharing requires at least two queue families, but %d were provided", len(families))
	}

	return nil
}

// Buffer is a driver buffer bound to an allocation it owns
type Buffer struct {
	factory *Factory
	handle  hal.Handle
	info    BufferCreateInfo
	alloc   *vam.Allocation
}

var _ Resource = (*Buffer)(nil)

// CreateBuffer creates a buffer, allocates memory for it and binds the two. If any step fails,
// everything created so far is released.
func (f *Factory) CreateBuffer(info BufferCreateInfo) (*Buffer, error) {
	f.debugLog("Factory::CreateBuffer",
		slog.Int("size", info.Size),
		slog.Bool("mappingRequired", info.MappingRequired),
		slog.String("name", info.Name))

	if info.Size < 1 {
		return nil, vkerr.New(vkerr.ValidationError, "buffer size %d is not a positive integer", info.Size)
	}
	err := validateSharing(info.SharingMode, info.QueueFamilies)
	if err != nil {
		return nil, err
	}

	buffer := &Buffer{factory: f, info: info}

	handle, alloc, err := f.createBoundBuffer(info)
	if err != nil {
		return nil, err
	}
	buffer.handle = handle
	buffer.alloc = alloc

	return buffer, nil
}

func (f *Factory) createBufferHandle(info BufferCreateInfo) (hal.Handle, error) {
	handle, res := f.device.CreateBuffer(info.driverInfo(), nil)
	err := vkerr.FromResultf(res, "failed to create buffer %q", info.Name)
	if err != nil {
		return hal.NullHandle, err
	}

	f.track(hal.NewObject(hal.ObjectTypeBuffer, handle), info.Name)
	return handle, nil
}

func (f *Factory) createBoundBuffer(info BufferCreateInfo) (hal.Handle, *vam.Allocation, error) {
	handle, err := f.createBufferHandle(info)
	if err != nil {
		return hal.NullHandle, nil, err
	}
	object := hal.NewObject(hal.ObjectTypeBuffer, handle)

	requirements := f.device.BufferMemoryRequirements(handle)
	alloc, err := f.allocator.Alloc(requirements, memoryInfo(info.MappingRequired, info.Transient, info.Dedicated, info.Priority, info.Name), object)
	if err != nil {
		f.destroy(object)
		return hal.NullHandle, nil, err
	}

	err = alloc.Bind(0, object)
	if err != nil {
		f.destroy(object)
		return hal.NullHandle, nil, errors.CombineErrors(err, alloc.Free())
	}

	return handle, alloc, nil
}

func (b *Buffer) Handle() hal.Handle { return b.handle }

func (b *Buffer) Object() hal.Object { return hal.NewObject(hal.ObjectTypeBuffer, b.handle) }

func (b *Buffer) Size() int { return b.info.Size }

func (b *Buffer) Usage() core1_0.BufferUsageFlags { return b.info.Usage }

func (b *Buffer) Name() string { return b.info.Name }

// Allocation returns the memory the buffer is bound to, or nil once the buffer is destroyed
func (b *Buffer) Allocation() *vam.Allocation { return b.alloc }

func (b *Buffer) checkRange(op string, offset, size int) error {
	if b.alloc == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to %s buffer %q, which has been destroyed", op, b.info.Name)
	}
	if offset < 0 || size < 0 || offset+size > b.info.Size {
		return vkerr.New(vkerr.ValidationError, "attempted to %s [%d, %d) of buffer %q, which is size %d", op, offset, offset+size, b.info.Name, b.info.Size)
	}

	return nil
}

// Write copies data into the buffer at offset through a host mapping and flushes the range
func (b *Buffer) Write(offset int, data []byte) error {
	err := b.checkRange("write", offset, len(data))
	if err != nil || len(data) == 0 {
		return err
	}

	err = b.factory.allocator.WithMapping(b.alloc, offset, func(ptr unsafe.Pointer) error {
		copy(unsafe.Slice((*byte)(ptr), len(data)), data)
		return nil
	})
	if err != nil {
		return err
	}

	return b.alloc.Flush(offset, len(data))
}

// Read invalidates [offset, offset+len(dst)) and copies it into dst through a host mapping
func (b *Buffer) Read(offset int, dst []byte) error {
	err := b.checkRange("read", offset, len(dst))
	if err != nil || len(dst) == 0 {
		return err
	}

	err = b.alloc.Invalidate(offset, len(dst))
	if err != nil {
		return err
	}

	return b.factory.allocator.WithMapping(b.alloc, offset, func(ptr unsafe.Pointer) error {
		copy(dst, unsafe.Slice((*byte)(ptr), len(dst)))
		return nil
	})
}

// Realloc replaces the buffer with one of newSize bytes. The handle and the memory both change
// and the contents are not preserved. If it fails the buffer is left destroyed.
func (b *Buffer) Realloc(newSize int) error {
	b.factory.debugLog("Buffer::Realloc", slog.Int("newSize", newSize), slog.String("name", b.info.Name))

	if b.alloc == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to reallocate buffer %q, which has been destroyed", b.info.Name)
	}
	if newSize < 1 {
		return vkerr.New(vkerr.ValidationError, "buffer size %d is not a positive integer", newSize)
	}

	info := b.info
	info.Size = newSize

	handle, err := b.factory.createBufferHandle(info)
	if err != nil {
		return err
	}
	object := hal.NewObject(hal.ObjectTypeBuffer, handle)

	b.factory.destroy(b.Object())
	b.handle = hal.NullHandle

	requirements := b.factory.device.BufferMemoryRequirements(handle)
	alloc, err := b.factory.allocator.Realloc(b.alloc, requirements.Size)
	b.alloc = nil
	if err != nil {
		b.factory.destroy(object)
		return err
	}

	err = alloc.Bind(0, object)
	if err != nil {
		b.factory.destroy(object)
		return errors.CombineErrors(err, alloc.Free())
	}

	b.handle = handle
	b.alloc = alloc
	b.info = info
	return nil
}

// Rebind recreates the buffer handle over its allocation. It must be called for every buffer
// whose allocation a defragmentation moved; the contents move with the allocation.
func (b *Buffer) Rebind() error {
	if b.alloc == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to rebind buffer %q, which has been destroyed", b.info.Name)
	}

	handle, err := b.factory.createBufferHandle(b.info)
	if err != nil {
		return err
	}
	object := hal.NewObject(hal.ObjectTypeBuffer, handle)

	err = b.alloc.Bind(0, object)
	if err != nil {
		b.factory.destroy(object)
		return err
	}

	b.factory.destroy(b.Object())
	b.handle = handle
	return nil
}

// DeviceAddress returns the device address of the start of the buffer. It requires the buffer
// device address extension and BufferUsageShaderDeviceAddress.
func (b *Buffer) DeviceAddress() (uint64, error) {
	if b.factory.extensions.GetBufferDeviceAddress == nil {
		return 0, vkerr.New(vkerr.ExtensionUnsupported, "buffer device addresses require %s", hal.ExtBufferDeviceAddress)
	}
	if b.info.Usage&hal.BufferUsageShaderDeviceAddress == 0 {
		return 0, vkerr.New(vkerr.ValidationError, "buffer %q was not created with BufferUsageShaderDeviceAddress", b.info.Name)
	}
	if b.alloc == nil {
		return 0, vkerr.New(vkerr.ValidationError, "buffer %q has been destroyed", b.info.Name)
	}

	return b.factory.extensions.GetBufferDeviceAddress(b.factory.device.Handle(), b.handle), nil
}

// Destroy destroys the buffer and returns its memory. Destroying a buffer twice does nothing.
func (b *Buffer) Destroy() error {
	if b.alloc == nil && b.handle.IsNull() {
		return nil
	}

	b.factory.destroy(b.Object())
	b.handle = hal.NullHandle

	err := b.alloc.Free()
	b.alloc = nil
	return err
}
