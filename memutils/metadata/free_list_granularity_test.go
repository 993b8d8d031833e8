package metadata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/memutils"
)

func TestFreeListGranularityConflictMovesAllocation(t *testing.T) {
	m := NewFreeList(256, &pageGranularityCheck{})
	m.Init(1024)

	success, req, err := m.CreateAllocationRequest(10, 1, 1, AllocationStrategyMinMemory, math.MaxInt)
	require.NoError(t, err)
	require.True(t, success)
	require.NoError(t, m.Alloc(req, 1, nil))

	success, req, err = m.CreateAllocationRequest(10, 1, 2, AllocationStrategyMinMemory, math.MaxInt)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, 256, req.Item.Offset)
	require.NoError(t, m.Alloc(req, 2, nil))

	success, req, err = m.CreateAllocationRequest(10, 1, 1, AllocationStrategyMinOffset, math.MaxInt)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, 10+memutils.DebugMargin, req.Item.Offset)

	require.NoError(t, m.Validate())
}

func TestFreeListGranularityConflictNoRoom(t *testing.T) {
	m := NewFreeList(256, &pageGranularityCheck{})
	m.Init(300)

	success, req, err := m.CreateAllocationRequest(10, 1, 1, AllocationStrategyMinMemory, math.MaxInt)
	require.NoError(t, err)
	require.True(t, success)
	require.NoError(t, m.Alloc(req, 1, nil))

	success, _, err = m.CreateAllocationRequest(100, 1, 2, AllocationStrategyMinMemory, math.MaxInt)
	require.NoError(t, err)
	require.False(t, success)
}
