package vulkan

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
)

func TestExtensionDataNoExtensions(t *testing.T) {
	require.Equal(t, &ExtensionData{}, NewExtensionData(nil))
	require.Equal(t, &ExtensionData{}, NewExtensionData(&hal.ExtensionTable{}))
}

func TestExtensionDataFromTable(t *testing.T) {
	table := &hal.ExtensionTable{
		DedicatedAllocation: true,
		MemoryPriority:      true,
		GetBufferDeviceAddress: func(device hal.Handle, buffer hal.Handle) uint64 {
			return 0
		},
		GetMemoryBudget: func(device hal.Handle) []hal.HeapBudget {
			return nil
		},
	}

	data := NewExtensionData(table)
	require.True(t, data.DedicatedAllocations)
	require.True(t, data.UseMemoryPriority)
	require.True(t, data.BufferDeviceAddress)
	require.False(t, data.BindMemory2)
	require.NotNil(t, data.MemoryBudget)
	require.Nil(t, data.SetMemoryPriority)
}
