package pipeline

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/descriptor"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/internal/testenv"
	"github.com/vkngwrapper/armory/state"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func spirv(words ...uint32) []uint32 {
	return append([]uint32{spirvMagic, 0x00010500, 0, 16, 0}, words...)
}

type fixture struct {
	env    *testenv.Env
	layout *Layout
	pass   *RenderPass
	vertex *ShaderModule
	frag   *ShaderModule
	cache  *Cache
}

func newFixture(t *testing.T, extensions ...string) *fixture {
	env := testenv.New(t, extensions...)

	set, err := descriptor.NewSetLayout(env.Factory, "globals", descriptor.ReflectionTable{
		{Binding: 0, Type: hal.DescriptorTypeUniformBuffer, Stages: hal.StageVertex | hal.StageFragment},
	})
	require.NoError(t, err)
	layout, err := NewLayout(env.Factory, "forward", []*descriptor.SetLayout{set}, []hal.PushConstantRange{
		{StageFlags: hal.StageVertex, Offset: 0, Size: 64},
	})
	require.NoError(t, err)
	pass, err := NewRenderPass(env.Factory, "forward", colorPass())
	require.NoError(t, err)
	vertex, err := NewShaderModule(env.Factory, "forward.vert", spirv(1))
	require.NoError(t, err)
	frag, err := NewShaderModule(env.Factory, "forward.frag", spirv(2))
	require.NoError(t, err)
	cache, err := NewCache(env.Logger, env.Factory, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, cache.Destroy())
		require.NoError(t, frag.Destroy())
		require.NoError(t, vertex.Destroy())
		require.NoError(t, pass.Destroy())
		require.NoError(t, layout.Destroy())
		require.NoError(t, set.Destroy())
	})

	return &fixture{env: env, layout: layout, pass: pass, vertex: vertex, frag: frag, cache: cache}
}

func colorPass() hal.RenderPassCreateInfo {
	return hal.RenderPassCreateInfo{
		Attachments: []hal.AttachmentDescription{{
			Format:        hal.FormatR8G8B8A8Unorm,
			Samples:       hal.Samples1,
			LoadOp:        hal.LoadOpClear,
			StoreOp:       hal.StoreOpStore,
			FinalLayout:   hal.ImageLayoutPresentSrc,
			InitialLayout: hal.ImageLayoutUndefined,
		}},
		Subpasses: []hal.SubpassDescription{{
			BindPoint:        hal.BindPointGraphics,
			ColorAttachments: []hal.AttachmentReference{{Attachment: 0, Layout: hal.ImageLayoutColorAttachmentOptimal}},
		}},
	}
}

func (f *fixture) graphics(entry string) Record {
	return Record{
		Flags: hal.PipelineCreateAllowDerivatives,
		Stages: []ShaderStage{
			NewShaderStage(hal.StageVertex, f.vertex, "main", nil),
			NewShaderStage(hal.StageFragment, f.frag, entry, nil),
		},
		Viewport:      state.DynamicViewport(),
		DepthStencil:  state.DefaultDepthStencil(),
		ColorBlend:    state.Opaque(1),
		DynamicStates: []hal.DynamicState{hal.DynamicStateViewport, hal.DynamicStateScissor},
		Layout:        f.layout,
		RenderPass:    f.pass,
		Name:          "forward/" + entry,
	}
}

func (f *fixture) compute(t *testing.T, code uint32) Record {
	module, err := NewShaderModule(f.env.Factory, "cull.comp", spirv(code))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, module.Destroy()) })

	return Record{
		Stages: []ShaderStage{NewShaderStage(hal.StageCompute, module, "", nil)},
		Layout: f.layout,
		Name:   "cull",
	}
}

func TestLookupDeduplicates(t *testing.T) {
	f := newFixture(t)

	first, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)
	second, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)

	require.Equal(t, f.graphics("main").Fingerprint(), f.graphics("main").Fingerprint())
	require.Same(t, first, second)
	require.Equal(t, first.Handle(), second.Handle())
	require.Equal(t, 1, f.env.Device.Calls("CreateGraphicsPipelines"))
	require.Equal(t, 1, f.cache.Len())
}

func TestLookupBuildsDerivatives(t *testing.T) {
	f := newFixture(t)

	parent, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)
	require.Nil(t, parent.Base())

	child, err := f.cache.Lookup(f.graphics("shade_alpha"))
	require.NoError(t, err)
	require.NotEqual(t, parent.Handle(), child.Handle())
	require.Same(t, parent, child.Base())
	require.NotZero(t, child.Flags()&hal.PipelineCreateDerivative)

	info := f.env.Device.Info(child.Handle()).(hal.GraphicsPipelineCreateInfo)
	require.NotZero(t, info.Flags&hal.PipelineCreateDerivative)
	require.Equal(t, parent.Handle(), info.BasePipeline)
	require.Equal(t, "shade_alpha", info.Stages[1].Name)

	require.Equal(t, f.graphics("main").BaseFingerprint(), f.graphics("shade_alpha").BaseFingerprint())
	require.NotEqual(t, f.graphics("main").Fingerprint(), f.graphics("shade_alpha").Fingerprint())
}

func TestDerivativesNeedAParentThatAllowsThem(t *testing.T) {
	f := newFixture(t)

	record := f.graphics("main")
	record.Flags = 0
	_, err := f.cache.Lookup(record)
	require.NoError(t, err)

	record = f.graphics("shade_alpha")
	record.Flags = 0
	child, err := f.cache.Lookup(record)
	require.NoError(t, err)
	require.Nil(t, child.Base())
	require.Zero(t, child.Flags()&hal.PipelineCreateDerivative)
}

func TestFingerprint(t *testing.T) {
	f := newFixture(t)

	base := f.graphics("main")

	derivative := f.graphics("main")
	derivative.Flags |= hal.PipelineCreateDerivative
	require.Equal(t, base.Fingerprint(), derivative.Fingerprint())

	reordered := f.graphics("main")
	reordered.DynamicStates = []hal.DynamicState{hal.DynamicStateScissor, hal.DynamicStateViewport}
	require.NotEqual(t, base.Fingerprint(), reordered.Fingerprint())

	culled := f.graphics("main")
	culled.Rasterization = state.NewRasterization(hal.RasterizationStateCreateInfo{
		PolygonMode: hal.PolygonModeFill,
		CullMode:    hal.CullModeNone,
		LineWidth:   1,
	})
	require.NotEqual(t, base.Fingerprint(), culled.Fingerprint())
	require.NotEqual(t, base.BaseFingerprint(), culled.BaseFingerprint())

	noPass := f.graphics("main")
	noPass.Subpass = 1
	require.NotEqual(t, base.Fingerprint(), noPass.Fingerprint())

	specialized := f.graphics("main")
	specialized.Stages[1] = NewShaderStage(hal.StageFragment, f.frag, "main", &hal.SpecializationInfo{
		MapEntries: []hal.SpecializationMapEntry{{ConstantID: 0, Offset: 0, Size: 4}},
		Data:       []byte{1, 0, 0, 0},
	})
	require.NotEqual(t, base.Fingerprint(), specialized.Fingerprint())
	require.Equal(t, base.BaseFingerprint(), specialized.BaseFingerprint())

	literal := f.graphics("main")
	literal.Stages[1] = ShaderStage{Stage: hal.StageFragment, Module: f.frag}
	require.Equal(t, base.Fingerprint(), literal.Fingerprint())
}

func TestDefaultedStatesShareAPipeline(t *testing.T) {
	f := newFixture(t)

	implicit, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)

	record := f.graphics("main")
	record.Rasterization = state.DefaultRasterization()
	record.Multisample = state.DefaultMultisample()
	record.InputAssembly = state.DefaultInputAssembly()
	record.VertexInput = state.EmptyVertexInput()
	explicit, err := f.cache.Lookup(record)
	require.NoError(t, err)

	require.Same(t, implicit, explicit)

	info := f.env.Device.Info(implicit.Handle()).(hal.GraphicsPipelineCreateInfo)
	require.NotNil(t, info.Rasterization)
	require.Equal(t, hal.CullModeBack, info.Rasterization.CullMode)
	require.Equal(t, hal.Samples1, info.Multisample.RasterizationSamples)
}

func TestFailedCreateLeavesCacheUnchanged(t *testing.T) {
	f := newFixture(t)

	f.env.Device.FailNext("CreateGraphicsPipelines", core1_0.VKErrorOutOfDeviceMemory)
	_, err := f.cache.Lookup(f.graphics("main"))
	require.True(t, vkerr.Is(err, vkerr.OutOfDeviceMemory))
	require.Zero(t, f.cache.Len())
	require.Zero(t, f.env.Device.Live(hal.ObjectTypePipeline))

	pipeline, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)
	require.Nil(t, pipeline.Base())
	require.Equal(t, 1, f.cache.Len())
}

func TestRecordValidation(t *testing.T) {
	f := newFixture(t)

	noViewport := f.graphics("main")
	noViewport.Viewport = nil
	_, err := f.cache.Lookup(noViewport)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	noVertex := f.graphics("main")
	noVertex.Stages = noVertex.Stages[1:]
	_, err = f.cache.Lookup(noVertex)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	badSubpass := f.graphics("main")
	badSubpass.Subpass = 1
	_, err = f.cache.Lookup(badSubpass)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	blendCount := f.graphics("main")
	blendCount.ColorBlend = state.Opaque(2)
	_, err = f.cache.Lookup(blendCount)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	stippled := f.graphics("main")
	stippled.Rasterization = state.NewRasterization(hal.RasterizationStateCreateInfo{
		PolygonMode:        hal.PolygonModeLine,
		LineWidth:          1,
		StippledLineEnable: true,
		LineStippleFactor:  1,
		LineStipplePattern: 0xF0F0,
	})
	_, err = f.cache.Lookup(stippled)
	require.True(t, vkerr.Is(err, vkerr.ExtensionUnsupported))

	compute := f.compute(t, 3)
	compute.Stages = append(compute.Stages, NewShaderStage(hal.StageVertex, f.vertex, "", nil))
	compute.BindPoint = hal.BindPointCompute
	_, err = f.cache.Lookup(compute)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	rayTracing := Record{
		BindPoint: hal.BindPointRayTracing,
		Stages:    []ShaderStage{NewShaderStage(hal.StageRaygen, f.vertex, "", nil)},
		Groups:    []hal.RayTracingShaderGroupCreateInfo{{Type: hal.ShaderGroupGeneral}},
		Layout:    f.layout,
	}
	_, err = f.cache.Lookup(rayTracing)
	require.True(t, vkerr.Is(err, vkerr.ExtensionUnsupported))

	require.Zero(t, f.cache.Len())
	require.Zero(t, f.env.Device.Calls("CreateGraphicsPipelines"))
}

func TestComputeLookup(t *testing.T) {
	f := newFixture(t)

	record := f.compute(t, 4)
	record.BindPoint = hal.BindPointCompute
	pipeline, err := f.cache.Lookup(record)
	require.NoError(t, err)
	require.Equal(t, hal.BindPointCompute, pipeline.BindPoint())
	require.Same(t, f.layout, pipeline.Layout())

	info := f.env.Device.Info(pipeline.Handle()).(hal.ComputePipelineCreateInfo)
	require.Equal(t, "main", info.Stage.Name)
	require.Equal(t, f.layout.Handle(), info.Layout)
}

func TestRayTracingLookup(t *testing.T) {
	f := newFixture(t, hal.ExtRayTracingPipeline, hal.ExtDeferredHostOperations)

	raygen, err := NewShaderModule(f.env.Factory, "trace.rgen", spirv(5))
	require.NoError(t, err)
	miss, err := NewShaderModule(f.env.Factory, "trace.rmiss", spirv(6))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, miss.Destroy())
		require.NoError(t, raygen.Destroy())
	}()

	record := Record{
		BindPoint: hal.BindPointRayTracing,
		Stages: []ShaderStage{
			NewShaderStage(hal.StageRaygen, raygen, "", nil),
			NewShaderStage(hal.StageMiss, miss, "", nil),
		},
		Groups: []hal.RayTracingShaderGroupCreateInfo{
			{Type: hal.ShaderGroupGeneral, GeneralShader: 0, ClosestHitShader: hal.ShaderUnused, AnyHitShader: hal.ShaderUnused, IntersectionShader: hal.ShaderUnused},
			{Type: hal.ShaderGroupGeneral, GeneralShader: 1, ClosestHitShader: hal.ShaderUnused, AnyHitShader: hal.ShaderUnused, IntersectionShader: hal.ShaderUnused},
		},
		MaxRecursionDepth: 1,
		Layout:            f.layout,
		Name:              "trace",
	}

	pipeline, err := f.cache.Lookup(record)
	require.NoError(t, err)
	require.Equal(t, hal.BindPointRayTracing, pipeline.BindPoint())
	require.Equal(t, 1, f.env.Device.Calls("vkCreateRayTracingPipelinesKHR"))

	deeper := record
	deeper.MaxRecursionDepth = 2
	require.NotEqual(t, record.Fingerprint(), deeper.Fingerprint())

	badGroup := record
	badGroup.Groups = []hal.RayTracingShaderGroupCreateInfo{{Type: hal.ShaderGroupGeneral, GeneralShader: 7}}
	_, err = f.cache.Lookup(badGroup)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
}

func TestConcurrentLookups(t *testing.T) {
	f := newFixture(t)

	const workers = 8
	results := make([]*Pipeline, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pipeline, err := f.cache.Lookup(f.graphics("main"))
			if err == nil {
				results[i] = pipeline
			}
		}(i)
	}
	wg.Wait()

	for _, pipeline := range results {
		require.Same(t, results[0], pipeline)
	}
	require.Equal(t, 1, f.env.Device.Calls("CreateGraphicsPipelines"))
}

func TestBatchBuild(t *testing.T) {
	f := newFixture(t)

	existing, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)

	batch := f.cache.NewBatch()
	require.Equal(t, 0, batch.AddGraphics(f.graphics("main")))
	require.Equal(t, 1, batch.AddGraphics(f.graphics("shade_alpha")))
	require.Equal(t, 2, batch.AddCompute(f.compute(t, 7)))
	require.Equal(t, 3, batch.AddGraphics(f.graphics("shade_alpha")))
	require.Equal(t, 4, batch.AddGraphics(f.graphics("shade_unlit")))

	pipelines, err := batch.Build()
	require.NoError(t, err)
	require.Len(t, pipelines, 5)
	require.Zero(t, batch.Len())

	require.Same(t, existing, pipelines[0])
	require.Same(t, pipelines[1], pipelines[3])
	require.Same(t, existing, pipelines[1].Base())
	require.Same(t, existing, pipelines[4].Base())
	require.Equal(t, hal.BindPointCompute, pipelines[2].BindPoint())

	require.Equal(t, 2, f.env.Device.Calls("CreateGraphicsPipelines"))
	require.Equal(t, 1, f.env.Device.Calls("CreateComputePipelines"))
	require.Equal(t, 4, f.cache.Len())

	again, err := f.cache.Lookup(f.graphics("shade_unlit"))
	require.NoError(t, err)
	require.Same(t, pipelines[4], again)
}

func TestBatchPartialFailure(t *testing.T) {
	f := newFixture(t)

	f.env.Device.PipelineResult = func(bindPoint hal.PipelineBindPoint, index int) common.VkResult {
		if bindPoint == hal.BindPointGraphics && index == 1 {
			return core1_0.VKErrorOutOfDeviceMemory
		}
		return core1_0.VKSuccess
	}

	invalid := f.graphics("broken")
	invalid.Viewport = nil

	batch := f.cache.NewBatch()
	batch.AddGraphics(f.graphics("main"))
	batch.AddGraphics(f.graphics("shade_alpha"))
	batch.AddGraphics(invalid)
	batch.AddGraphics(f.graphics("shade_unlit"))

	pipelines, err := batch.Build()
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Equal(t, []int{1, 2}, batchErr.Failed)
	require.Equal(t, 4, batchErr.Total)
	require.True(t, vkerr.Is(err, vkerr.OutOfDeviceMemory))
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	require.NotNil(t, pipelines[0])
	require.Nil(t, pipelines[1])
	require.Nil(t, pipelines[2])
	require.NotNil(t, pipelines[3])
	require.Equal(t, 2, f.cache.Len())
	require.Equal(t, 2, f.env.Device.Live(hal.ObjectTypePipeline))
	require.Zero(t, batch.Len())

	f.env.Device.PipelineResult = nil
	retried, err := f.cache.Lookup(f.graphics("shade_alpha"))
	require.NoError(t, err)
	require.NotNil(t, retried)
}

func TestCreationFeedback(t *testing.T) {
	f := newFixture(t, hal.ExtPipelineCreationFeedback)

	pipeline, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)

	feedback := pipeline.Feedback()
	require.NotNil(t, feedback)
	require.NotZero(t, feedback.Pipeline.Flags&hal.FeedbackValid)
	require.Len(t, feedback.Stages, 2)
	require.False(t, feedback.CacheHit())
	require.Positive(t, feedback.Duration())

	data, err := f.cache.Data()
	require.NoError(t, err)
	warm, err := NewCache(f.env.Logger, f.env.Factory, data)
	require.NoError(t, err)
	defer func() { require.NoError(t, warm.Destroy()) }()

	hit, err := warm.Lookup(f.graphics("main"))
	require.NoError(t, err)
	require.True(t, hit.Feedback().CacheHit())
}

func TestNoFeedbackWithoutExtension(t *testing.T) {
	f := newFixture(t)

	pipeline, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)
	require.Nil(t, pipeline.Feedback())
	require.False(t, pipeline.Feedback().CacheHit())

	info := f.env.Device.Info(pipeline.Handle()).(hal.GraphicsPipelineCreateInfo)
	require.Nil(t, info.Feedback)
}

func TestCacheData(t *testing.T) {
	f := newFixture(t)

	_, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)

	data, err := f.cache.Data()
	require.NoError(t, err)
	require.Equal(t, f.env.Device.CacheHeader(), data[:CacheHeaderSize])
	require.Equal(t, f.env.Device.CacheHeader(), DeviceCacheHeader(f.env.Device.PhysicalDevice()))

	empty, err := NewCache(f.env.Logger, f.env.Factory, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, empty.Destroy()) }()
	require.Zero(t, f.env.Device.CacheEntries(empty.Handle()))

	require.NoError(t, empty.Read(data))
	require.Equal(t, 1, f.env.Device.CacheEntries(empty.Handle()))
	require.Equal(t, 2, f.env.Device.Live(hal.ObjectTypePipelineCache))
}

func TestIncompatibleCacheData(t *testing.T) {
	f := newFixture(t)

	data, err := f.cache.Data()
	require.NoError(t, err)

	otherDriver := bytes.Clone(data)
	otherDriver[16] ^= 0xFF
	require.True(t, vkerr.Is(f.cache.Read(otherDriver), vkerr.CacheIncompatible))

	_, err = NewCache(f.env.Logger, f.env.Factory, otherDriver)
	require.True(t, vkerr.Is(err, vkerr.CacheIncompatible))

	otherVendor := bytes.Clone(data)
	otherVendor[8]++
	require.True(t, vkerr.Is(f.cache.Read(otherVendor), vkerr.CacheIncompatible))

	require.True(t, vkerr.Is(f.cache.Read(data[:CacheHeaderSize-1]), vkerr.CacheIncompatible))
	require.Equal(t, 1, f.env.Device.Live(hal.ObjectTypePipelineCache))
}

func TestMergeCaches(t *testing.T) {
	f := newFixture(t)

	other, err := NewCache(f.env.Logger, f.env.Factory, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, other.Destroy()) }()

	_, err = other.Lookup(f.graphics("main"))
	require.NoError(t, err)
	_, err = f.cache.Lookup(f.graphics("shade_alpha"))
	require.NoError(t, err)

	require.NoError(t, f.cache.Merge(other))
	require.Equal(t, 2, f.env.Device.CacheEntries(f.cache.Handle()))
	require.Equal(t, 1, f.cache.Len())

	require.True(t, vkerr.Is(f.cache.Merge(f.cache), vkerr.ValidationError))
}

func TestSaveAndLoad(t *testing.T) {
	f := newFixture(t)

	_, err := f.cache.Lookup(f.graphics("main"))
	require.NoError(t, err)
	_, err = f.cache.Lookup(f.graphics("shade_alpha"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.cache.Save(&buf))

	loaded, err := LoadCache(f.env.Logger, f.env.Factory, &buf)
	require.NoError(t, err)
	defer func() { require.NoError(t, loaded.Destroy()) }()

	require.Equal(t, 2, f.env.Device.CacheEntries(loaded.Handle()))
	require.Zero(t, loaded.Len())
}

func TestDestroyReleasesPipelines(t *testing.T) {
	f := newFixture(t)

	cache, err := NewCache(f.env.Logger, f.env.Factory, nil)
	require.NoError(t, err)
	pipeline, err := cache.Lookup(f.graphics("main"))
	require.NoError(t, err)
	_, err = cache.Lookup(f.graphics("shade_alpha"))
	require.NoError(t, err)
	require.Len(t, cache.Pipelines(), 2)

	require.NoError(t, cache.Destroy())
	require.True(t, pipeline.Handle().IsNull())
	require.Zero(t, f.env.Device.Live(hal.ObjectTypePipeline))
	require.Equal(t, 1, f.env.Device.Live(hal.ObjectTypePipelineCache))
}

func TestLayoutLimits(t *testing.T) {
	env := testenv.New(t)

	set, err := descriptor.NewSetLayout(env.Factory, "globals", descriptor.ReflectionTable{
		{Binding: 0, Type: hal.DescriptorTypeUniformBuffer, Stages: hal.StageVertex},
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, set.Destroy()) }()

	sets := make([]*descriptor.SetLayout, env.Device.PhysicalDevice().Limits.MaxBoundDescriptorSets+1)
	for i := range sets {
		sets[i] = set
	}
	_, err = NewLayout(env.Factory, "too many sets", sets, nil)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	_, err = NewLayout(env.Factory, "too many constants", nil, []hal.PushConstantRange{{StageFlags: hal.StageVertex, Size: 132}})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	_, err = NewLayout(env.Factory, "misaligned", nil, []hal.PushConstantRange{{StageFlags: hal.StageVertex, Offset: 2, Size: 8}})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	_, err = NewLayout(env.Factory, "overlapping stages", nil, []hal.PushConstantRange{
		{StageFlags: hal.StageVertex, Size: 16},
		{StageFlags: hal.StageVertex | hal.StageFragment, Offset: 16, Size: 16},
	})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))
	require.Zero(t, env.Device.Live(hal.ObjectTypePipelineLayout))

	first, err := NewLayout(env.Factory, "a", []*descriptor.SetLayout{set}, []hal.PushConstantRange{{StageFlags: hal.StageVertex, Size: 16}})
	require.NoError(t, err)
	second, err := NewLayout(env.Factory, "b", []*descriptor.SetLayout{set}, []hal.PushConstantRange{{StageFlags: hal.StageVertex, Size: 16}})
	require.NoError(t, err)
	require.Equal(t, first.Hash(), second.Hash())
	require.Same(t, set, first.Set(0))
	require.Nil(t, first.Set(1))

	require.NoError(t, first.Destroy())
	require.NoError(t, second.Destroy())
}

func TestRenderPass(t *testing.T) {
	env := testenv.New(t)

	first, err := NewRenderPass(env.Factory, "a", colorPass())
	require.NoError(t, err)
	second, err := NewRenderPass(env.Factory, "b", colorPass())
	require.NoError(t, err)
	require.Equal(t, first.Hash(), second.Hash())
	require.Equal(t, 1, first.Subpasses())
	require.Equal(t, 1, first.Attachments())

	different := colorPass()
	different.Attachments[0].LoadOp = hal.LoadOpLoad
	third, err := NewRenderPass(env.Factory, "c", different)
	require.NoError(t, err)
	require.NotEqual(t, first.Hash(), third.Hash())

	badReference := colorPass()
	badReference.Subpasses[0].ColorAttachments[0].Attachment = 1
	_, err = NewRenderPass(env.Factory, "bad", badReference)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	separate := colorPass()
	separate.Attachments[0].StencilFinalLayout = hal.ImageLayoutShaderReadOnlyOptimal
	_, err = NewRenderPass(env.Factory, "separate", separate)
	require.True(t, vkerr.Is(err, vkerr.ExtensionUnsupported))

	badDependency := colorPass()
	badDependency.Dependencies = []hal.SubpassDependency{{SrcSubpass: hal.SubpassExternal, DstSubpass: 2}}
	_, err = NewRenderPass(env.Factory, "dependency", badDependency)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	require.NoError(t, first.Destroy())
	require.NoError(t, second.Destroy())
	require.NoError(t, third.Destroy())
	require.Zero(t, env.Device.Live(hal.ObjectTypeRenderPass))
}

func TestShaderModule(t *testing.T) {
	env := testenv.New(t)

	_, err := NewShaderModule(env.Factory, "garbage", []uint32{1, 2, 3, 4, 5})
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	first, err := NewShaderModule(env.Factory, "a", spirv(9))
	require.NoError(t, err)
	second, err := NewShaderModule(env.Factory, "b", spirv(9))
	require.NoError(t, err)
	third, err := NewShaderModule(env.Factory, "c", spirv(10))
	require.NoError(t, err)

	require.Equal(t, first.Hash(), second.Hash())
	require.NotEqual(t, first.Hash(), third.Hash())
	require.NotEqual(t, first.Handle(), second.Handle())

	require.NoError(t, first.Destroy())
	require.NoError(t, second.Destroy())
	require.NoError(t, third.Destroy())
	require.Zero(t, env.Device.Live(hal.ObjectTypeShaderModule))
}
