package vkerr

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestNew_KindAndLocation(t *testing.T) {
	err := New(WrongBuildType, "structure %d is device-built", 3)

	require.True(t, Is(err, WrongBuildType))
	require.False(t, Is(err, ValidationError))
	require.Equal(t, WrongBuildType, KindOf(err))
	require.Contains(t, err.Error(), "structure 3 is device-built")

	loc, ok := Location(err)
	require.True(t, ok)
	require.True(t, strings.HasSuffix(loc.File, "errors_test.go"))
	require.Contains(t, loc.Function, "TestNew_KindAndLocation")
	require.Greater(t, loc.Line, 0)
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(CacheIncompatible, cause, "reading cache")

	require.True(t, errors.Is(err, cause))
	require.Equal(t, CacheIncompatible, KindOf(err))
	require.Nil(t, Wrap(CacheIncompatible, nil, "reading cache"))
}

func TestFromResult(t *testing.T) {
	require.NoError(t, FromResult(core1_0.VKSuccess))
	require.NoError(t, FromResult(core1_0.VKTimeout))

	testCases := map[common.VkResult]Kind{
		core1_0.VKErrorOutOfHostMemory:         OutOfHostMemory,
		core1_0.VKErrorOutOfDeviceMemory:       OutOfDeviceMemory,
		core1_0.VKErrorMemoryMapFailed:         MemoryMapFailed,
		core1_0.VKErrorDeviceLost:              DeviceLost,
		core1_0.VKErrorFragmentedPool:          FragmentedPool,
		core1_0.VKErrorTooManyObjects:          TooManyObjects,
		core1_0.VKErrorIncompatibleDriver:      IncompatibleDriver,
		ResultErrorSurfaceLost:                 SurfaceLost,
		ResultErrorOutOfDate:                   SwapchainOutOfDate,
		ResultErrorIncompatibleDisplay:         IncompatibleDisplay,
		ResultErrorFullScreenExclusiveModeLost: FullScreenExclusiveModeLost,
		core1_0.VKErrorUnknown:                 Unknown,
	}

	for res, kind := range testCases {
		err := FromResult(res)
		require.Error(t, err)
		require.Equal(t, kind, KindOf(err), "result %d", res)
	}
}

func TestToResult_RoundTrip(t *testing.T) {
	for _, res := range []common.VkResult{
		core1_0.VKErrorOutOfHostMemory,
		core1_0.VKErrorOutOfDeviceMemory,
		core1_0.VKErrorMemoryMapFailed,
		core1_0.VKErrorDeviceLost,
		ResultErrorOutOfDate,
	} {
		require.Equal(t, res, ToResult(FromResult(res)))
	}

	require.Equal(t, core1_0.VKSuccess, ToResult(nil))
	require.Equal(t, core1_0.VKErrorUnknown, ToResult(New(DuplicateBinding, "binding 0")))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "DuplicateBinding", DuplicateBinding.String())
	require.Equal(t, "Kind(99)", Kind(99).String())
	require.Equal(t, ErrUnknown, Kind(99).Sentinel())
}
