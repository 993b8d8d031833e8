package descriptor

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
)

// element is one array element of a binding. It keeps the resources written to it rather than
// their handles, so a flush after a resource has been rebound writes the new handle.
type element struct {
	written bool
	dirty   bool

	buffer *resource.Buffer
	offset int
	size   int

	view    *resource.ImageView
	layout  hal.ImageLayout
	sampler *resource.Sampler

	texelView hal.Handle
	structure *resource.AccelerationStructure
}

type slot struct {
	binding  Binding
	elements []element
}

// Set is a descriptor set allocated from a Pool. Writes are kept on the set and reach the driver
// when the set is flushed. It is not safe for concurrent use.
type Set struct {
	pool   *Pool
	layout *SetLayout
	handle hal.Handle
	slots  []slot
}

func newSet(pool *Pool, layout *SetLayout, handle hal.Handle) *Set {
	slots := make([]slot, len(layout.bindings))
	for i, binding := range layout.bindings {
		slots[i] = slot{binding: binding, elements: make([]element, binding.Count)}
	}

	return &Set{pool: pool, layout: layout, handle: handle, slots: slots}
}

func (s *Set) Handle() hal.Handle { return s.handle }

func (s *Set) Layout() *SetLayout { return s.layout }

func (s *Set) element(binding, index int, accepted ...hal.DescriptorType) (*element, hal.DescriptorType, error) {
	if s.handle.IsNull() {
		return nil, 0, vkerr.New(vkerr.ValidationError, "attempted to write to a descriptor set that has been freed")
	}

	position, ok := s.layout.index.Get(binding)
	if !ok {
		return nil, 0, vkerr.New(vkerr.ValidationError, "set layout %q has no binding %d", s.layout.name, binding)
	}

	slot := &s.slots[position]
	if index < 0 || index >= len(slot.elements) {
		return nil, 0, vkerr.New(vkerr.ValidationError, "element %d is outside binding %d of set layout %q, which has %d", index, binding, s.layout.name, len(slot.elements))
	}

	for _, descriptorType := range accepted {
		if slot.binding.Type == descriptorType {
			return &slot.elements[index], descriptorType, nil
		}
	}

	return nil, 0, vkerr.New(vkerr.ValidationError, "binding %d of set layout %q is a %s, not a %s", binding, s.layout.name, slot.binding.Type, accepted[0])
}

func (e *element) write(apply func(e *element)) {
	*e = element{}
	apply(e)
	e.written = true
	e.dirty = true
}

// WriteBuffer binds size bytes of buffer from offset. A size of zero binds the rest of the buffer.
func (s *Set) WriteBuffer(binding, index int, buffer *resource.Buffer, offset, size int) error {
	e, _, err := s.element(binding, index,
		hal.DescriptorTypeUniformBuffer, hal.DescriptorTypeStorageBuffer,
		hal.DescriptorTypeUniformBufferDynamic, hal.DescriptorTypeStorageBufferDynamic)
	if err != nil {
		return err
	}
	if buffer == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to bind a nil buffer to binding %d", binding)
	}
	if size == 0 {
		size = buffer.Size() - offset
	}
	if offset < 0 || size < 1 || offset+size > buffer.Size() {
		return vkerr.New(vkerr.ValidationError, "range [%d, %d) is outside buffer %q, which is size %d", offset, offset+size, buffer.Name(), buffer.Size())
	}

	e.write(func(e *element) {
		e.buffer = buffer
		e.offset = offset
		e.size = size
	})
	return nil
}

// WriteImage binds a view that shaders access in layout
func (s *Set) WriteImage(binding, index int, view *resource.ImageView, layout hal.ImageLayout) error {
	e, _, err := s.element(binding, index,
		hal.DescriptorTypeSampledImage, hal.DescriptorTypeStorageImage, hal.DescriptorTypeInputAttachment)
	if err != nil {
		return err
	}
	if view == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to bind a nil image view to binding %d", binding)
	}

	e.write(func(e *element) {
		e.view = view
		e.layout = layout
	})
	return nil
}

// WriteCombinedImageSampler binds a view and a sampler. sampler may be nil when the binding has
// immutable samplers.
func (s *Set) WriteCombinedImageSampler(binding, index int, view *resource.ImageView, layout hal.ImageLayout, sampler *resource.Sampler) error {
	e, _, err := s.element(binding, index, hal.DescriptorTypeCombinedImageSampler)
	if err != nil {
		return err
	}
	if view == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to bind a nil image view to binding %d", binding)
	}
	immutable := s.hasImmutableSamplers(binding)
	if sampler == nil && !immutable {
		return vkerr.New(vkerr.ValidationError, "binding %d of set layout %q needs a sampler", binding, s.layout.name)
	}
	if sampler != nil && immutable {
		return vkerr.New(vkerr.ValidationError, "binding %d of set layout %q has immutable samplers", binding, s.layout.name)
	}

	e.write(func(e *element) {
		e.view = view
		e.layout = layout
		e.sampler = sampler
	})
	return nil
}

// WriteSampler binds a sampler to a sampler binding without immutable samplers
func (s *Set) WriteSampler(binding, index int, sampler *resource.Sampler) error {
	e, _, err := s.element(binding, index, hal.DescriptorTypeSampler)
	if err != nil {
		return err
	}
	if sampler == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to bind a nil sampler to binding %d", binding)
	}
	if s.hasImmutableSamplers(binding) {
		return vkerr.New(vkerr.ValidationError, "binding %d of set layout %q has immutable samplers", binding, s.layout.name)
	}

	e.write(func(e *element) {
		e.sampler = sampler
	})
	return nil
}

// WriteTexelBuffer binds a buffer view
func (s *Set) WriteTexelBuffer(binding, index int, view hal.Handle) error {
	e, _, err := s.element(binding, index, hal.DescriptorTypeUniformTexelBuffer, hal.DescriptorTypeStorageTexelBuffer)
	if err != nil {
		return err
	}

	e.write(func(e *element) {
		e.texelView = view
	})
	return nil
}

// WriteAccelerationStructure binds an acceleration structure for ray queries or tracing
func (s *Set) WriteAccelerationStructure(binding, index int, structure *resource.AccelerationStructure) error {
	e, _, err := s.element(binding, index, hal.DescriptorTypeAccelerationStructure)
	if err != nil {
		return err
	}
	if structure == nil {
		return vkerr.New(vkerr.ValidationError, "attempted to bind a nil acceleration structure to binding %d", binding)
	}

	e.write(func(e *element) {
		e.structure = structure
	})
	return nil
}

func (s *Set) hasImmutableSamplers(binding int) bool {
	b, _ := s.layout.Binding(binding)
	return len(b.ImmutableSamplers) > 0
}

// Dirty returns true if any descriptor was written since the last flush
func (s *Set) Dirty() bool {
	for _, slot := range s.slots {
		for _, e := range slot.elements {
			if e.dirty {
				return true
			}
		}
	}

	return false
}

// Refresh marks every written descriptor dirty, so the next flush writes them again with the
// current handles of their resources. It is needed after a resource has been rebound.
func (s *Set) Refresh() {
	for i := range s.slots {
		for j := range s.slots[i].elements {
			e := &s.slots[i].elements[j]
			e.dirty = e.written
		}
	}
}

// Flush writes every dirty descriptor to the driver and clears their dirty flags
func (s *Set) Flush() error {
	return Flush(s)
}

// Flush writes the dirty descriptors of every set in a single driver call. If any descriptor
// refers to a resource that has been destroyed, nothing is written and every flag is kept.
func Flush(sets ...*Set) error {
	var writes []hal.WriteDescriptorSet
	for _, set := range sets {
		setWrites, err := set.composeWrites()
		if err != nil {
			return err
		}
		writes = append(writes, setWrites...)
	}
	if len(writes) == 0 {
		return nil
	}

	sets[0].pool.factory.Device().UpdateDescriptorSets(writes)

	for _, set := range sets {
		for i := range set.slots {
			for j := range set.slots[i].elements {
				set.slots[i].elements[j].dirty = false
			}
		}
	}
	return nil
}

// composeWrites builds one write for each run of consecutive dirty elements of a binding
func (s *Set) composeWrites() ([]hal.WriteDescriptorSet, error) {
	if s.handle.IsNull() {
		if s.Dirty() {
			return nil, vkerr.New(vkerr.ValidationError, "attempted to flush a descriptor set that has been freed")
		}
		return nil, nil
	}

	var writes []hal.WriteDescriptorSet
	for _, slot := range s.slots {
		var current *hal.WriteDescriptorSet
		for index, e := range slot.elements {
			if !e.dirty {
				current = nil
				continue
			}
			if current == nil {
				writes = append(writes, hal.WriteDescriptorSet{
					DstSet:          s.handle,
					DstBinding:      slot.binding.Binding,
					DstArrayElement: index,
					DescriptorType:  slot.binding.Type,
				})
				current = &writes[len(writes)-1]
			}

			err := appendDescriptor(current, e)
			if err != nil {
				return nil, vkerr.Wrap(vkerr.ValidationError, err, "descriptor %d of binding %d in set layout %q", index, slot.binding.Binding, s.layout.name)
			}
		}
	}

	return writes, nil
}

func appendDescriptor(write *hal.WriteDescriptorSet, e element) error {
	switch write.DescriptorType {
	case hal.DescriptorTypeUniformBuffer, hal.DescriptorTypeStorageBuffer,
		hal.DescriptorTypeUniformBufferDynamic, hal.DescriptorTypeStorageBufferDynamic:
		if e.buffer.Handle().IsNull() {
			return vkerr.New(vkerr.ValidationError, "buffer %q has been destroyed", e.buffer.Name())
		}
		write.BufferInfo = append(write.BufferInfo, hal.DescriptorBufferInfo{Buffer: e.buffer.Handle(), Offset: e.offset, Range: e.size})
	case hal.DescriptorTypeSampler:
		if e.sampler.Handle().IsNull() {
			return vkerr.New(vkerr.ValidationError, "the sampler has been destroyed")
		}
		write.ImageInfo = append(write.ImageInfo, hal.DescriptorImageInfo{Sampler: e.sampler.Handle()})
	case hal.DescriptorTypeCombinedImageSampler, hal.DescriptorTypeSampledImage,
		hal.DescriptorTypeStorageImage, hal.DescriptorTypeInputAttachment:
		if e.view.Handle().IsNull() {
			return vkerr.New(vkerr.ValidationError, "the image view has been destroyed")
		}
		info := hal.DescriptorImageInfo{ImageView: e.view.Handle(), ImageLayout: e.layout}
		if e.sampler != nil {
			if e.sampler.Handle().IsNull() {
				return vkerr.New(vkerr.ValidationError, "the sampler has been destroyed")
			}
			info.Sampler = e.sampler.Handle()
		}
		write.ImageInfo = append(write.ImageInfo, info)
	case hal.DescriptorTypeUniformTexelBuffer, hal.DescriptorTypeStorageTexelBuffer:
		write.TexelBufferView = append(write.TexelBufferView, e.texelView)
	case hal.DescriptorTypeAccelerationStructure:
		if e.structure.Handle().IsNull() {
			return vkerr.New(vkerr.ValidationError, "acceleration structure %q has been destroyed", e.structure.Name())
		}
		write.AccelerationStructures = append(write.AccelerationStructures, e.structure.Handle())
	}

	return nil
}
