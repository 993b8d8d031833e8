package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vam"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func allocationBytes(factory *Factory) int {
	var stats vam.AllocatorStatistics
	factory.Allocator().CalculateStatistics(&stats)
	return stats.Total.AllocationBytes
}

func TestBufferWriteRead(t *testing.T) {
	dev, factory, registry := readyFactory(t)

	const size = 64 * 1024
	buffer, err := factory.CreateBuffer(BufferCreateInfo{
		Size:            size,
		Usage:           core1_0.BufferUsageTransferSrc,
		MappingRequired: true,
		Name:            "upload",
	})
	require.NoError(t, err)
	require.Equal(t, "upload", registry[buffer.Object()])
	require.GreaterOrEqual(t, allocationBytes(factory), size)

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	require.NoError(t, buffer.Write(0, data))
	require.Equal(t, data, dev.BufferContents(buffer.Handle(), size))

	readBack := make([]byte, 512)
	require.NoError(t, buffer.Read(1000, readBack))
	require.Equal(t, data[1000:1512], readBack)

	require.True(t, vkerr.Is(buffer.Write(size-1, []byte{1, 2}), vkerr.ValidationError))

	require.NoError(t, buffer.Destroy())
	require.Zero(t, allocationBytes(factory))
	require.Zero(t, dev.Live(hal.ObjectTypeBuffer))

	require.NoError(t, buffer.Destroy())
	require.True(t, vkerr.Is(buffer.Write(0, data[:1]), vkerr.ValidationError))
}

func TestCreateBufferValidates(t *testing.T) {
	_, factory, _ := readyFactory(t)

	_, err := factory.CreateBuffer(BufferCreateInfo{Size: 0, Usage: core1_0.BufferUsageStorageBuffer})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	_, err = factory.CreateBuffer(BufferCreateInfo{
		Size:          256,
		Usage:         core1_0.BufferUsageStorageBuffer,
		SharingMode:   core1_0.SharingModeConcurrent,
		QueueFamilies: []int{0},
	})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
}

func TestCreateBufferReleasesOnBindFailure(t *testing.T) {
	dev, factory, _ := readyFactory(t)

	dev.FailNext("BindBufferMemory", core1_0.VKErrorOutOfDeviceMemory)
	_, err := factory.CreateBuffer(BufferCreateInfo{Size: 4096, Usage: core1_0.BufferUsageStorageBuffer})
	require.True(t, vkerr.Is(err, vkerr.OutOfDeviceMemory))

	require.Zero(t, dev.Live(hal.ObjectTypeBuffer))
	require.Zero(t, allocationBytes(factory))
}

func TestBufferRealloc(t *testing.T) {
	dev, factory, registry := readyFactory(t)

	buffer, err := factory.CreateBuffer(BufferCreateInfo{Size: 1024, Usage: core1_0.BufferUsageVertexBuffer, MappingRequired: true})
	require.NoError(t, err)
	oldHandle := buffer.Handle()
	oldType := buffer.Allocation().MemoryTypeIndex()

	require.NoError(t, buffer.Realloc(8192))
	require.NotEqual(t, oldHandle, buffer.Handle())
	require.False(t, dev.Alive(oldHandle))
	require.Equal(t, 8192, buffer.Size())
	require.Equal(t, oldType, buffer.Allocation().MemoryTypeIndex())
	require.Len(t, registry, 1)

	require.NoError(t, buffer.Write(8000, make([]byte, 192)))
	require.NoError(t, buffer.Destroy())
}

func TestBufferRebind(t *testing.T) {
	dev, factory, _ := readyFactory(t)

	buffer, err := factory.CreateBuffer(BufferCreateInfo{Size: 1024, Usage: core1_0.BufferUsageUniformBuffer})
	require.NoError(t, err)
	oldHandle := buffer.Handle()

	require.NoError(t, buffer.Rebind())
	require.False(t, dev.Alive(oldHandle))

	memory, offset, ok := dev.Binding(buffer.Handle())
	require.True(t, ok)
	require.Equal(t, buffer.Allocation().Memory(), memory)
	require.Equal(t, buffer.Allocation().Offset(), offset)

	require.NoError(t, buffer.Destroy())
}

func TestBufferDeviceAddress(t *testing.T) {
	t.Run("Without Extension", func(t *testing.T) {
		_, factory, _ := readyFactory(t)

		buffer, err := factory.CreateBuffer(BufferCreateInfo{Size: 256, Usage: core1_0.BufferUsageStorageBuffer})
		require.NoError(t, err)

		_, err = buffer.DeviceAddress()
		require.True(t, vkerr.Is(err, vkerr.ExtensionUnsupported))
		require.NoError(t, buffer.Destroy())
	})

	t.Run("With Extension", func(t *testing.T) {
		_, factory, _ := readyFactory(t, hal.ExtBufferDeviceAddress)

		plain, err := factory.CreateBuffer(BufferCreateInfo{Size: 256, Usage: core1_0.BufferUsageStorageBuffer})
		require.NoError(t, err)
		_, err = plain.DeviceAddress()
		require.True(t, vkerr.Is(err, vkerr.ValidationError))

		addressable, err := factory.CreateBuffer(BufferCreateInfo{Size: 256, Usage: core1_0.BufferUsageStorageBuffer | hal.BufferUsageShaderDeviceAddress})
		require.NoError(t, err)
		address, err := addressable.DeviceAddress()
		require.NoError(t, err)
		require.NotZero(t, address)

		require.NoError(t, plain.Destroy())
		require.NoError(t, addressable.Destroy())
	})
}
