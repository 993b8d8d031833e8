// Package testenv builds the in-memory device, allocator and resource factory that package tests
// above resource run against.
package testenv

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/hal/haltest"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vam"
)

// Env is one test's device stack
type Env struct {
	Device     *haltest.Device
	Extensions *hal.ExtensionTable
	Allocator  *vam.Allocator
	Factory    *resource.Factory
	Logger     *slog.Logger
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// New creates a device with the given extensions enabled. At cleanup the allocator must destroy
// cleanly and the device must have seen no contract violations.
func New(t *testing.T, extensions ...string) *Env {
	t.Helper()

	options := haltest.DefaultOptions()
	options.Extensions = extensions
	dev := haltest.New(options)

	logger := Discard()
	table := hal.ResolveExtensions(dev)
	allocator, err := vam.New(logger, dev, table, vam.CreateOptions{})
	require.NoError(t, err)
	factory, err := resource.NewFactory(logger, dev, allocator, table, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, allocator.Destroy())
		require.Empty(t, dev.Violations())
	})

	return &Env{
		Device:     dev,
		Extensions: table,
		Allocator:  allocator,
		Factory:    factory,
		Logger:     logger,
	}
}
