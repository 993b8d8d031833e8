// Package device ties a driver to the allocator, resource factory and pipeline cache built on
// it, and owns the objects that outlive any one of them: queues, fences, semaphores and debug
// names.
package device

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armory/command"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/pipeline"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vam"
	"github.com/vkngwrapper/armory/vkerr"
)

type queueKey struct {
	family int
	index  int
}

// Device owns the allocator, the resource factory and the pipeline cache of one driver device.
// Objects created through it keep references to the driver, never to the Device.
type Device struct {
	logger     *slog.Logger
	driver     hal.Device
	extensions *hal.ExtensionTable
	config     Config

	registry  *Registry
	allocator *vam.Allocator
	factory   *resource.Factory
	cache     *pipeline.Cache

	mu        sync.Mutex
	queues    *swiss.Map[queueKey, *command.Queue]
	timelines *swiss.Map[hal.Handle, struct{}]
}

var _ resource.Registry = (*Device)(nil)

// New builds the device stack on driver. A nil logger is replaced by one built from config.Log
// writing to standard error.
func New(logger *slog.Logger, driver hal.Device, config Config) (*Device, error) {
	if driver == nil {
		return nil, vkerr.New(vkerr.InitializationFailed, "a device requires a driver")
	}
	err := config.Validate()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger, err = NewLogger(config.Log, os.Stderr)
		if err != nil {
			return nil, err
		}
	}

	d := &Device{
		logger:     logger,
		driver:     driver,
		extensions: hal.ResolveExtensions(driver),
		config:     config,
		registry:   NewRegistry(),
		queues:     swiss.NewMap[queueKey, *command.Queue](4),
		timelines:  swiss.NewMap[hal.Handle, struct{}](4),
	}

	d.allocator, err = vam.New(logger, driver, d.extensions, config.AllocatorOptions())
	if err != nil {
		return nil, err
	}

	d.factory, err = resource.NewFactory(logger, driver, d.allocator, d.extensions, d)
	if err != nil {
		return nil, errors.CombineErrors(err, d.allocator.Destroy())
	}

	d.cache, err = d.openCache()
	if err != nil {
		return nil, errors.CombineErrors(err, d.allocator.Destroy())
	}

	d.debugLog("Device::New",
		slog.String("device", driver.PhysicalDevice().DeviceName),
		slog.String("pipelineCache", config.PipelineCache.Path),
	)
	return d, nil
}

func (d *Device) debugLog(msg string, attrs ...slog.Attr) {
	d.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

// openCache loads the configured pipeline cache. A cache written by another device or driver is
// discarded with a warning.
func (d *Device) openCache() (*pipeline.Cache, error) {
	path := d.config.PipelineCache.Path
	if path == "" {
		return pipeline.NewCache(d.logger, d.factory, nil)
	}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return pipeline.NewCache(d.logger, d.factory, nil)
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to open pipeline cache %q", path)
	}
	defer file.Close()

	cache, err := pipeline.LoadCache(d.logger, d.factory, file)
	if vkerr.Is(err, vkerr.CacheIncompatible) {
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, "Device::New discarding pipeline cache",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return pipeline.NewCache(d.logger, d.factory, nil)
	}
	return cache, err
}

func (d *Device) saveCache() error {
	path := d.config.PipelineCache.Path
	if path == "" {
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create pipeline cache %q", path)
	}

	err = d.cache.Save(file)
	return errors.CombineErrors(err, file.Close())
}

func (d *Device) Logger() *slog.Logger { return d.logger }

func (d *Device) Driver() hal.Device { return d.driver }

func (d *Device) Extensions() *hal.ExtensionTable { return d.extensions }

func (d *Device) Config() Config { return d.config }

func (d *Device) Registry() *Registry { return d.registry }

func (d *Device) Allocator() *vam.Allocator { return d.allocator }

func (d *Device) Factory() *resource.Factory { return d.factory }

func (d *Device) PipelineCache() *pipeline.Cache { return d.cache }

// Track records a live object. With debug object names enabled, the name is also passed to
// debug-utils.
func (d *Device) Track(object hal.Object, name string) {
	d.registry.Track(object, name)

	if d.config.Debug.ObjectNames && name != "" && d.extensions.SetDebugUtilsObjectName != nil {
		err := d.setDriverName(object, name)
		if err != nil {
			d.logger.LogAttrs(context.Background(), slog.LevelWarn, "Device::Track failed to name object",
				slog.String("object", object.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (d *Device) Untrack(object hal.Object) {
	d.registry.Untrack(object)

	if object.Type == hal.ObjectTypeSemaphore {
		d.mu.Lock()
		d.timelines.Delete(object.Handle)
		d.mu.Unlock()
	}
}

func (d *Device) setDriverName(object hal.Object, name string) error {
	res := d.extensions.SetDebugUtilsObjectName(d.driver.Handle(), object, name)
	return vkerr.FromResultf(res, "failed to name %s %q", object, name)
}

// SetObjectName names object. The name is passed to debug-utils when it is enabled and is
// always recorded locally.
func (d *Device) SetObjectName(object hal.Object, name string) error {
	if object.IsNull() {
		return vkerr.New(vkerr.ValidationError, "a null object cannot be named")
	}

	if d.extensions.SetDebugUtilsObjectName != nil {
		err := d.setDriverName(object, name)
		if err != nil {
			return err
		}
	}

	d.registry.Rename(object, name)
	return nil
}

// ObjectName returns the locally recorded name of object
func (d *Device) ObjectName(object hal.Object) string {
	name, _ := d.registry.Name(object)
	return name
}

// DestroyObject destroys an object created through the Device, such as a fence or semaphore
func (d *Device) DestroyObject(object hal.Object) {
	d.factory.DestroyObject(object)
}

// Queue returns the queue at index of family, creating its wrapper on first use
func (d *Device) Queue(family, index int) *command.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := queueKey{family: family, index: index}
	queue, ok := d.queues.Get(key)
	if !ok {
		queue = command.NewQueue(d.driver, family, index)
		d.queues.Put(key, queue)
	}
	return queue
}

// NewCommandPool creates a command pool for queues of family
func (d *Device) NewCommandPool(name string, family int, flags hal.CommandPoolCreateFlags) (*command.Pool, error) {
	return command.NewPool(d.logger, d.factory, name, family, flags)
}

// WaitIdle waits for the device to drain and completes every submission of every queue
func (d *Device) WaitIdle() error {
	res := d.driver.DeviceWaitIdle()
	err := vkerr.FromResultf(res, "failed to wait for the device to become idle")
	if err != nil {
		return err
	}

	d.mu.Lock()
	queues := make([]*command.Queue, 0, d.queues.Count())
	d.queues.Iter(func(_ queueKey, queue *command.Queue) bool {
		queues = append(queues, queue)
		return false
	})
	d.mu.Unlock()

	for _, queue := range queues {
		err = errors.CombineErrors(err, queue.WaitIdle())
	}
	return err
}

// Destroy waits for the device to become idle, saves and destroys the pipeline cache and
// destroys the allocator. Objects still alive after the cache is gone are reported as leaks.
func (d *Device) Destroy() error {
	err := d.WaitIdle()
	err = errors.CombineErrors(err, d.saveCache())
	err = errors.CombineErrors(err, d.cache.Destroy())

	leaks := d.registry.Live()
	if d.config.Debug.LeakReport {
		d.registry.Report(d.logger)
	}

	err = errors.CombineErrors(err, d.allocator.Destroy())
	if len(leaks) > 0 {
		err = errors.CombineErrors(err, vkerr.New(vkerr.ValidationError, "%d objects were not destroyed before the device", len(leaks)))
	}

	d.debugLog("Device::Destroy", slog.Int("leaks", len(leaks)))
	return err
}
