package haltest

import (
	"bytes"
	"encoding/binary"
	"sort"
	"time"

	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/internal/hashing"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// PipelineCacheHeaderSize is the size of the header the driver writes in front of cache data
const PipelineCacheHeaderSize = 32

// CacheHeader is the header this device writes in front of its pipeline cache data
func (d *Device) CacheHeader() []byte {
	header := make([]byte, PipelineCacheHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], PipelineCacheHeaderSize)
	binary.LittleEndian.PutUint32(header[4:], 1)
	binary.LittleEndian.PutUint32(header[8:], d.info.VendorID)
	binary.LittleEndian.PutUint32(header[12:], d.info.DeviceID)
	copy(header[16:], d.info.PipelineCacheUUID[:])
	return header
}

// parseCacheBody returns the entries of cache data written by this device. Data from another
// device, or data that does not parse, is ignored as a real driver would.
func (d *Device) parseCacheBody(data []byte) []uint64 {
	if len(data) < PipelineCacheHeaderSize+4 || !bytes.Equal(data[:PipelineCacheHeaderSize], d.CacheHeader()) {
		return nil
	}

	body := data[PipelineCacheHeaderSize:]
	count := int(binary.LittleEndian.Uint32(body))
	body = body[4:]
	if len(body) != count*8 {
		return nil
	}

	entries := make([]uint64, count)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint64(body[i*8:])
	}
	return entries
}

func addCacheEntry(obj *object, entry uint64) bool {
	index := sort.Search(len(obj.cacheEntries), func(i int) bool { return obj.cacheEntries[i] >= entry })
	if index < len(obj.cacheEntries) && obj.cacheEntries[index] == entry {
		return false
	}

	obj.cacheEntries = append(obj.cacheEntries, 0)
	copy(obj.cacheEntries[index+1:], obj.cacheEntries[index:])
	obj.cacheEntries[index] = entry
	return true
}

func (d *Device) CreatePipelineCache(initialData []byte, callbacks *driver.AllocationCallbacks) (hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("CreatePipelineCache"); res != core1_0.VKSuccess {
		return hal.NullHandle, res
	}

	handle, obj := d.create(hal.ObjectTypePipelineCache, len(initialData))
	for _, entry := range d.parseCacheBody(initialData) {
		addCacheEntry(obj, entry)
	}

	return handle, core1_0.VKSuccess
}

func (d *Device) PipelineCacheData(cache hal.Handle) ([]byte, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("PipelineCacheData"); res != core1_0.VKSuccess {
		return nil, res
	}

	obj, ok := d.lookup(hal.ObjectTypePipelineCache, cache)
	if !ok {
		d.violation("PipelineCacheData: %s is not a live pipeline cache", cache)
		return nil, vkerr.ResultErrorValidationFailed
	}

	data := d.CacheHeader()
	data = binary.LittleEndian.AppendUint32(data, uint32(len(obj.cacheEntries)))
	for _, entry := range obj.cacheEntries {
		data = binary.LittleEndian.AppendUint64(data, entry)
	}

	return data, core1_0.VKSuccess
}

func (d *Device) MergePipelineCaches(dst hal.Handle, src []hal.Handle) common.VkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter("MergePipelineCaches"); res != core1_0.VKSuccess {
		return res
	}

	dstObj, ok := d.lookup(hal.ObjectTypePipelineCache, dst)
	if !ok {
		d.violation("MergePipelineCaches: %s is not a live pipeline cache", dst)
		return vkerr.ResultErrorValidationFailed
	}

	for _, handle := range src {
		srcObj, ok := d.lookup(hal.ObjectTypePipelineCache, handle)
		if !ok || handle == dst {
			d.violation("MergePipelineCaches: %s is not a valid source", handle)
			return vkerr.ResultErrorValidationFailed
		}
		for _, entry := range srcObj.cacheEntries {
			addCacheEntry(dstObj, entry)
		}
	}

	return core1_0.VKSuccess
}

// CacheEntries returns how many compiled pipelines a cache holds
func (d *Device) CacheEntries(cache hal.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.lookup(hal.ObjectTypePipelineCache, cache)
	if !ok {
		return 0
	}

	return len(obj.cacheEntries)
}

func stagesKey(h *hashing.Hasher, stages []hal.PipelineShaderStageCreateInfo) {
	h.Int(len(stages))
	for _, stage := range stages {
		h.Int32(int32(stage.Stage)).Uint64(uint64(stage.Module)).String(stage.Name)
	}
}

func fillFeedback(feedback *hal.PipelineCreationFeedbackCreateInfo, hit bool) {
	if feedback == nil {
		return
	}

	flags := hal.FeedbackValid
	if hit {
		flags |= hal.FeedbackApplicationPipelineCacheHit
	}

	if feedback.Pipeline != nil {
		*feedback.Pipeline = hal.PipelineCreationFeedback{Flags: flags, Duration: time.Microsecond}
	}
	for i := range feedback.Stages {
		feedback.Stages[i] = hal.PipelineCreationFeedback{Flags: hal.FeedbackValid, Duration: time.Microsecond}
	}
}

type pipelineRequest struct {
	info     any
	layout   hal.Handle
	base     hal.Handle
	flags    hal.PipelineCreateFlags
	key      uint64
	feedback *hal.PipelineCreationFeedbackCreateInfo
}

func (d *Device) createPipelines(entry string, bindPoint hal.PipelineBindPoint, cache hal.Handle, requests []pipelineRequest) ([]hal.Handle, common.VkResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res := d.enter(entry); res != core1_0.VKSuccess {
		return make([]hal.Handle, len(requests)), res
	}

	var cacheObj *object
	if !cache.IsNull() {
		obj, ok := d.lookup(hal.ObjectTypePipelineCache, cache)
		if !ok {
			d.violation("%s: %s is not a live pipeline cache", entry, cache)
			return make([]hal.Handle, len(requests)), vkerr.ResultErrorValidationFailed
		}
		cacheObj = obj
	}

	handles := make([]hal.Handle, len(requests))
	result := core1_0.VKSuccess
	for index, request := range requests {
		if _, ok := d.lookup(hal.ObjectTypePipelineLayout, request.layout); !ok {
			d.violation("%s: pipeline %d has no live layout", entry, index)
			result = vkerr.ResultErrorValidationFailed
			continue
		}
		if request.flags&hal.PipelineCreateDerivative != 0 {
			base, ok := d.lookup(hal.ObjectTypePipeline, request.base)
			if !ok {
				d.violation("%s: pipeline %d derives from %s, which is not a live pipeline", entry, index, request.base)
				result = vkerr.ResultErrorValidationFailed
				continue
			}
			if base.pipelineFlags&hal.PipelineCreateAllowDerivatives == 0 {
				d.violation("%s: pipeline %d derives from %s, which does not allow derivatives", entry, index, request.base)
			}
		}

		if d.PipelineResult != nil {
			if res := d.PipelineResult(bindPoint, index); res != core1_0.VKSuccess {
				result = res
				continue
			}
		}

		hit := false
		if cacheObj != nil {
			hit = !addCacheEntry(cacheObj, request.key)
		}
		fillFeedback(request.feedback, hit)

		handle, obj := d.create(hal.ObjectTypePipeline, request.info)
		obj.pipelineFlags = request.flags
		handles[index] = handle
	}

	return handles, result
}

func (d *Device) CreateGraphicsPipelines(cache hal.Handle, infos []hal.GraphicsPipelineCreateInfo, callbacks *driver.AllocationCallbacks) ([]hal.Handle, common.VkResult) {
	requests := make([]pipelineRequest, len(infos))
	for i, info := range infos {
		h := hashing.New().Int32(int32(hal.BindPointGraphics))
		stagesKey(h, info.Stages)
		h.Uint64(uint64(info.RenderPass)).Int(info.Subpass)

		requests[i] = pipelineRequest{
			info:     info,
			layout:   info.Layout,
			base:     info.BasePipeline,
			flags:    info.Flags,
			key:      h.Sum(),
			feedback: info.Feedback,
		}
	}

	return d.createPipelines("CreateGraphicsPipelines", hal.BindPointGraphics, cache, requests)
}

func (d *Device) CreateComputePipelines(cache hal.Handle, infos []hal.ComputePipelineCreateInfo, callbacks *driver.AllocationCallbacks) ([]hal.Handle, common.VkResult) {
	requests := make([]pipelineRequest, len(infos))
	for i, info := range infos {
		h := hashing.New().Int32(int32(hal.BindPointCompute))
		stagesKey(h, []hal.PipelineShaderStageCreateInfo{info.Stage})

		requests[i] = pipelineRequest{
			info:     info,
			layout:   info.Layout,
			base:     info.BasePipeline,
			flags:    info.Flags,
			key:      h.Sum(),
			feedback: info.Feedback,
		}
	}

	return d.createPipelines("CreateComputePipelines", hal.BindPointCompute, cache, requests)
}

func (d *Device) createRayTracingPipelines(device hal.Handle, deferred hal.Handle, cache hal.Handle, infos []hal.RayTracingPipelineCreateInfo, callbacks *driver.AllocationCallbacks) ([]hal.Handle, common.VkResult) {
	requests := make([]pipelineRequest, len(infos))
	for i, info := range infos {
		h := hashing.New().Int32(int32(hal.BindPointRayTracing))
		stagesKey(h, info.Stages)
		h.Int(len(info.Groups)).Int(info.MaxPipelineRayRecursionDepth)

		requests[i] = pipelineRequest{
			info:     info,
			layout:   info.Layout,
			base:     info.BasePipeline,
			flags:    info.Flags,
			key:      h.Sum(),
			feedback: info.Feedback,
		}
	}

	return d.createPipelines("vkCreateRayTracingPipelinesKHR", hal.BindPointRayTracing, cache, requests)
}
