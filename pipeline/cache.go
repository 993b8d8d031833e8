package pipeline

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slices"
)

// CacheHeaderSize is the size of the header in front of driver pipeline cache data
const CacheHeaderSize = 32

const cacheHeaderVersionOne = 1

// Cache builds pipelines and keeps them by fingerprint. It is safe for concurrent use: lookups
// that hit share a read lock, and pipeline creation holds the write lock.
type Cache struct {
	logger  *slog.Logger
	factory *resource.Factory
	handle  hal.Handle
	header  []byte

	mu        sync.RWMutex
	pipelines *swiss.Map[uint64, *Pipeline]
	bases     *swiss.Map[uint64, *Pipeline]
}

// DeviceCacheHeader returns the header a device writes in front of its pipeline cache data:
// header size, header version, vendor ID, device ID and pipeline cache UUID
func DeviceCacheHeader(info hal.PhysicalDeviceInfo) []byte {
	header := make([]byte, CacheHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], CacheHeaderSize)
	binary.LittleEndian.PutUint32(header[4:], cacheHeaderVersionOne)
	binary.LittleEndian.PutUint32(header[8:], info.VendorID)
	binary.LittleEndian.PutUint32(header[12:], info.DeviceID)
	copy(header[16:], info.PipelineCacheUUID[:])
	return header
}

// NewCache creates a pipeline cache. initialData, if present, must be data written by the same
// device and driver, or CacheIncompatible is returned.
func NewCache(logger *slog.Logger, factory *resource.Factory, initialData []byte) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cache := &Cache{
		logger:    logger,
		factory:   factory,
		header:    DeviceCacheHeader(factory.Device().PhysicalDevice()),
		pipelines: swiss.NewMap[uint64, *Pipeline](64),
		bases:     swiss.NewMap[uint64, *Pipeline](16),
	}

	if len(initialData) > 0 {
		err := cache.checkHeader(initialData)
		if err != nil {
			return nil, err
		}
	}

	handle, res := factory.Device().CreatePipelineCache(initialData, nil)
	err := vkerr.FromResultf(res, "failed to create pipeline cache")
	if err != nil {
		return nil, err
	}
	cache.handle = handle
	factory.Track(hal.NewObject(hal.ObjectTypePipelineCache, handle), "pipeline cache")

	cache.debugLog("Cache::New", slog.Int("initialBytes", len(initialData)))
	return cache, nil
}

func (c *Cache) debugLog(msg string, attrs ...slog.Attr) {
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func (c *Cache) checkHeader(data []byte) error {
	if len(data) < CacheHeaderSize {
		return vkerr.New(vkerr.CacheIncompatible, "pipeline cache data is %d bytes, shorter than its header", len(data))
	}
	if !bytes.Equal(data[:CacheHeaderSize], c.header) {
		return vkerr.New(vkerr.CacheIncompatible, "pipeline cache data was written by a different device or driver")
	}
	return nil
}

// Handle returns the driver pipeline cache
func (c *Cache) Handle() hal.Handle { return c.handle }

// Len returns the number of pipelines in the cache
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pipelines.Count()
}

type request struct {
	index           int
	record          Record
	fingerprint     uint64
	baseFingerprint uint64
	flags           hal.PipelineCreateFlags
	base            *Pipeline
	feedback        *hal.PipelineCreationFeedbackCreateInfo
}

func (c *Cache) prepare(record Record) (*request, error) {
	record = record.normalize()
	err := record.validate(c.factory.Extensions())
	if err != nil {
		return nil, err
	}

	return &request{
		record:          record,
		fingerprint:     record.Fingerprint(),
		baseFingerprint: record.BaseFingerprint(),
		flags:           record.Flags &^ hal.PipelineCreateDerivative,
		feedback:        newFeedbackInfo(c.factory.Extensions().PipelineCreationFeedback, len(record.Stages)),
	}, nil
}

// Lookup returns the pipeline for record, building it on a miss. A record whose base
// fingerprint matches a cached pipeline that allows derivatives is built as its derivative. If
// the driver fails to build the pipeline, the cache is unchanged.
func (c *Cache) Lookup(record Record) (*Pipeline, error) {
	req, err := c.prepare(record)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	pipeline, ok := c.pipelines.Get(req.fingerprint)
	c.mu.RUnlock()
	if ok {
		return pipeline, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pipeline, ok = c.pipelines.Get(req.fingerprint)
	if ok {
		return pipeline, nil
	}

	c.resolveBase(req)
	handles, res := c.create(req.record.BindPoint, []*request{req})
	err = vkerr.FromResultf(res, "failed to create %s pipeline %q", req.record.BindPoint, req.record.Name)
	if err == nil && handles[0].IsNull() {
		err = vkerr.New(vkerr.Unknown, "the driver returned no handle for %s pipeline %q", req.record.BindPoint, req.record.Name)
	}
	if err != nil {
		c.destroyHandles(handles)
		return nil, err
	}

	return c.insert(req, handles[0]), nil
}

func (c *Cache) resolveBase(req *request) {
	parent, ok := c.bases.Get(req.baseFingerprint)
	if !ok {
		return
	}

	req.flags |= hal.PipelineCreateDerivative
	req.base = parent
}

func (c *Cache) insert(req *request, handle hal.Handle) *Pipeline {
	pipeline := &Pipeline{
		handle:      handle,
		name:        req.record.Name,
		bindPoint:   req.record.BindPoint,
		flags:       req.flags,
		layout:      req.record.Layout,
		base:        req.base,
		fingerprint: req.fingerprint,
		feedback:    feedbackFrom(req.feedback),
	}

	c.pipelines.Put(req.fingerprint, pipeline)
	if req.flags&hal.PipelineCreateAllowDerivatives != 0 && !c.bases.Has(req.baseFingerprint) {
		c.bases.Put(req.baseFingerprint, pipeline)
	}
	c.factory.Track(pipeline.Object(), req.record.Name)

	c.debugLog("Cache::Insert",
		slog.String("name", req.record.Name),
		slog.String("bindPoint", req.record.BindPoint.String()),
		slog.Bool("derivative", req.base != nil),
		slog.Uint64("fingerprint", req.fingerprint))
	return pipeline
}

// destroyHandles releases the pipelines of a failed create call that the driver did build
func (c *Cache) destroyHandles(handles []hal.Handle) {
	for _, handle := range handles {
		if !handle.IsNull() {
			c.factory.Device().Destroy(hal.NewObject(hal.ObjectTypePipeline, handle), nil)
		}
	}
}

// create makes one driver call for every request, which must share a bind point. The result
// has one handle per request, null where the driver failed.
func (c *Cache) create(bindPoint hal.PipelineBindPoint, requests []*request) ([]hal.Handle, common.VkResult) {
	device := c.factory.Device()
	baseHandle := func(req *request) hal.Handle {
		if req.base == nil {
			return hal.NullHandle
		}
		return req.base.handle
	}

	switch bindPoint {
	case hal.BindPointCompute:
		infos := make([]hal.ComputePipelineCreateInfo, len(requests))
		for i, req := range requests {
			infos[i] = req.record.computeInfo(req.flags, baseHandle(req), req.feedback)
		}
		return device.CreateComputePipelines(c.handle, infos, nil)
	case hal.BindPointRayTracing:
		infos := make([]hal.RayTracingPipelineCreateInfo, len(requests))
		for i, req := range requests {
			infos[i] = req.record.rayTracingInfo(req.flags, baseHandle(req), req.feedback)
		}
		return c.factory.Extensions().CreateRayTracingPipelines(device.Handle(), hal.NullHandle, c.handle, infos, nil)
	default:
		infos := make([]hal.GraphicsPipelineCreateInfo, len(requests))
		for i, req := range requests {
			infos[i] = req.record.graphicsInfo(req.flags, baseHandle(req), req.feedback)
		}
		return device.CreateGraphicsPipelines(c.handle, infos, nil)
	}
}

// Data returns the driver's cache data, header included
func (c *Cache) Data() ([]byte, error) {
	data, res := c.factory.Device().PipelineCacheData(c.handle)
	err := vkerr.FromResultf(res, "failed to read pipeline cache data")
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Read merges cache data written earlier by Data into the driver cache. Data from another
// device or driver is rejected with CacheIncompatible.
func (c *Cache) Read(blob []byte) error {
	err := c.checkHeader(blob)
	if err != nil {
		return err
	}

	device := c.factory.Device()
	loaded, res := device.CreatePipelineCache(blob, nil)
	err = vkerr.FromResultf(res, "failed to load pipeline cache data")
	if err != nil {
		return err
	}
	defer device.Destroy(hal.NewObject(hal.ObjectTypePipelineCache, loaded), nil)

	res = device.MergePipelineCaches(c.handle, []hal.Handle{loaded})
	return vkerr.FromResultf(res, "failed to merge pipeline cache data")
}

// Merge adds the driver cache contents of other to this cache. Pipelines owned by other stay
// with other.
func (c *Cache) Merge(other *Cache) error {
	if other == c {
		return vkerr.New(vkerr.ValidationError, "a pipeline cache cannot be merged into itself")
	}
	if !bytes.Equal(other.header, c.header) {
		return vkerr.New(vkerr.CacheIncompatible, "pipeline caches from different devices cannot be merged")
	}

	res := c.factory.Device().MergePipelineCaches(c.handle, []hal.Handle{other.handle})
	return vkerr.FromResultf(res, "failed to merge pipeline caches")
}

// Pipelines returns every cached pipeline ordered by fingerprint
func (c *Cache) Pipelines() []*Pipeline {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pipelines := make([]*Pipeline, 0, c.pipelines.Count())
	c.pipelines.Iter(func(_ uint64, pipeline *Pipeline) bool {
		pipelines = append(pipelines, pipeline)
		return false
	})
	slices.SortFunc(pipelines, func(a, b *Pipeline) int { return cmp.Compare(a.fingerprint, b.fingerprint) })
	return pipelines
}

// Destroy destroys every cached pipeline and the driver cache
func (c *Cache) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pipelines.Iter(func(_ uint64, pipeline *Pipeline) bool {
		c.factory.DestroyObject(pipeline.Object())
		pipeline.handle = hal.NullHandle
		return false
	})
	c.pipelines = swiss.NewMap[uint64, *Pipeline](64)
	c.bases = swiss.NewMap[uint64, *Pipeline](16)

	c.factory.DestroyObject(hal.NewObject(hal.ObjectTypePipelineCache, c.handle))
	c.handle = hal.NullHandle
	return nil
}
