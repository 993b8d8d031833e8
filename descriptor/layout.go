// Package descriptor builds descriptor set layouts from shader reflection, allocates sets from
// pools and batches the writes that bind resources to them.
package descriptor

import (
	"cmp"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/internal/hashing"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
	"golang.org/x/exp/slices"
)

// Binding is what a shader expects at one binding slot of a set
type Binding struct {
	Binding int
	Type    hal.DescriptorType
	// Count is the number of array elements at the slot. Zero means one.
	Count  int
	Stages hal.ShaderStageFlags
	// ImmutableSamplers, when present, fixes the samplers of a sampler or combined image sampler
	// slot. It must have Count entries.
	ImmutableSamplers []*resource.Sampler
}

// ReflectionTable is the ordered list of bindings a shader declares for one set
type ReflectionTable []Binding

// Merge combines the tables of the stages that share a set. A binding declared by several
// stages must agree on type and count; its stage masks are combined.
func Merge(tables ...ReflectionTable) (ReflectionTable, error) {
	var merged ReflectionTable
	positions := make(map[int]int)

	for _, table := range tables {
		for _, binding := range table {
			index, ok := positions[binding.Binding]
			if !ok {
				positions[binding.Binding] = len(merged)
				merged = append(merged, binding)
				continue
			}

			existing := &merged[index]
			if existing.Type != binding.Type || existing.count() != binding.count() {
				return nil, vkerr.New(vkerr.DuplicateBinding, "binding %d is declared as %d x %s and as %d x %s", binding.Binding, existing.count(), existing.Type, binding.count(), binding.Type)
			}
			existing.Stages |= binding.Stages
		}
	}

	return merged, nil
}

func (b Binding) count() int {
	return max(b.Count, 1)
}

// SetLayout is a descriptor set layout and the bindings it was built from
type SetLayout struct {
	factory  *resource.Factory
	handle   hal.Handle
	name     string
	bindings []Binding
	index    *swiss.Map[int, int]
	hash     uint64
}

// NewSetLayout validates table and creates the driver layout for it. Binding indices must be
// unique within the table, or DuplicateBinding is returned.
func NewSetLayout(factory *resource.Factory, name string, table ReflectionTable) (*SetLayout, error) {
	bindings := make([]Binding, len(table))
	copy(bindings, table)
	slices.SortStableFunc(bindings, func(a, b Binding) int { return cmp.Compare(a.Binding, b.Binding) })

	index := swiss.NewMap[int, int](uint32(len(bindings)))
	driverBindings := make([]hal.DescriptorSetLayoutBinding, len(bindings))
	for i, binding := range bindings {
		if binding.Binding < 0 {
			return nil, vkerr.New(vkerr.ValidationError, "set layout %q has negative binding %d", name, binding.Binding)
		}
		if index.Has(binding.Binding) {
			return nil, vkerr.New(vkerr.DuplicateBinding, "set layout %q declares binding %d more than once", name, binding.Binding)
		}
		index.Put(binding.Binding, i)

		bindings[i].Count = binding.count()
		bindings[i].ImmutableSamplers = slices.Clone(binding.ImmutableSamplers)

		samplers, err := immutableSamplers(name, bindings[i])
		if err != nil {
			return nil, err
		}

		driverBindings[i] = hal.DescriptorSetLayoutBinding{
			Binding:           binding.Binding,
			DescriptorType:    binding.Type,
			DescriptorCount:   bindings[i].Count,
			StageFlags:        binding.Stages,
			ImmutableSamplers: samplers,
		}
	}

	handle, res := factory.Device().CreateDescriptorSetLayout(hal.DescriptorSetLayoutCreateInfo{Bindings: driverBindings}, nil)
	err := vkerr.FromResultf(res, "failed to create descriptor set layout %q", name)
	if err != nil {
		return nil, err
	}

	layout := &SetLayout{
		factory:  factory,
		handle:   handle,
		name:     name,
		bindings: bindings,
		index:    index,
		hash:     hashLayout(driverBindings),
	}
	factory.Track(layout.Object(), name)
	return layout, nil
}

func immutableSamplers(name string, binding Binding) ([]hal.Handle, error) {
	if len(binding.ImmutableSamplers) == 0 {
		return nil, nil
	}
	if binding.Type != hal.DescriptorTypeSampler && binding.Type != hal.DescriptorTypeCombinedImageSampler {
		return nil, vkerr.New(vkerr.ValidationError, "binding %d of set layout %q is a %s, which cannot have immutable samplers", binding.Binding, name, binding.Type)
	}
	if len(binding.ImmutableSamplers) != binding.Count {
		return nil, vkerr.New(vkerr.ValidationError, "binding %d of set layout %q has %d elements but %d immutable samplers", binding.Binding, name, binding.Count, len(binding.ImmutableSamplers))
	}

	handles := make([]hal.Handle, len(binding.ImmutableSamplers))
	for i, sampler := range binding.ImmutableSamplers {
		if sampler == nil || sampler.Handle().IsNull() {
			return nil, vkerr.New(vkerr.ValidationError, "immutable sampler %d of binding %d in set layout %q has been destroyed", i, binding.Binding, name)
		}
		handles[i] = sampler.Handle()
	}

	return handles, nil
}

func hashLayout(bindings []hal.DescriptorSetLayoutBinding) uint64 {
	h := hashing.New().Int(len(bindings))
	for _, binding := range bindings {
		h.Int(binding.Binding).
			Int32(int32(binding.DescriptorType)).
			Int(binding.DescriptorCount).
			Int32(int32(binding.StageFlags)).
			Int(len(binding.ImmutableSamplers))
		for _, sampler := range binding.ImmutableSamplers {
			h.Uint64(uint64(sampler))
		}
	}

	return h.Sum()
}

func (l *SetLayout) Handle() hal.Handle { return l.handle }

func (l *SetLayout) Object() hal.Object {
	return hal.NewObject(hal.ObjectTypeDescriptorSetLayout, l.handle)
}

func (l *SetLayout) Name() string { return l.name }

// Hash identifies the layout's structure; layouts built from equal tables hash equal
func (l *SetLayout) Hash() uint64 { return l.hash }

// Bindings returns the layout's bindings ordered by binding index
func (l *SetLayout) Bindings() []Binding {
	return slices.Clone(l.bindings)
}

// Binding returns the binding declared at index
func (l *SetLayout) Binding(index int) (Binding, bool) {
	position, ok := l.index.Get(index)
	if !ok {
		return Binding{}, false
	}

	return l.bindings[position], true
}

// PoolSizes returns the descriptor counts a pool needs to allocate sets sets of this layout
func (l *SetLayout) PoolSizes(sets int) []hal.DescriptorPoolSize {
	var sizes []hal.DescriptorPoolSize
	for _, binding := range l.bindings {
		sizes = addPoolSize(sizes, binding.Type, binding.Count*sets)
	}

	return sizes
}

func addPoolSize(sizes []hal.DescriptorPoolSize, descriptorType hal.DescriptorType, count int) []hal.DescriptorPoolSize {
	for i := range sizes {
		if sizes[i].Type == descriptorType {
			sizes[i].DescriptorCount += count
			return sizes
		}
	}

	return append(sizes, hal.DescriptorPoolSize{Type: descriptorType, DescriptorCount: count})
}

func (l *SetLayout) Destroy() error {
	l.factory.DestroyObject(l.Object())
	l.handle = hal.NullHandle
	return nil
}
