package resource

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/hal/haltest"
	"github.com/vkngwrapper/armory/vam"
	"github.com/vkngwrapper/armory/vkerr"
)

type mapRegistry map[hal.Object]string

func (r mapRegistry) Track(object hal.Object, name string) { r[object] = name }

func (r mapRegistry) Untrack(object hal.Object) { delete(r, object) }

func readyFactory(t *testing.T, extensions ...string) (*haltest.Device, *Factory, mapRegistry) {
	options := haltest.DefaultOptions()
	options.Extensions = extensions
	dev := haltest.New(options)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	table := hal.ResolveExtensions(dev)
	allocator, err := vam.New(logger, dev, table, vam.CreateOptions{})
	require.NoError(t, err)

	registry := make(mapRegistry)
	factory, err := NewFactory(logger, dev, allocator, table, registry)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.Empty(t, registry)
		require.NoError(t, allocator.Destroy())
		require.Empty(t, dev.Violations())
	})
	return dev, factory, registry
}

func TestNewFactoryRequiresDeviceAndAllocator(t *testing.T) {
	_, err := NewFactory(nil, nil, nil, nil, nil)
	require.True(t, vkerr.Is(err, vkerr.InitializationFailed))
}
