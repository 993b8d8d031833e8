package descriptor

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
)

// PoolCreateInfo describes a descriptor pool
type PoolCreateInfo struct {
	MaxSets int
	Sizes   []hal.DescriptorPoolSize
	// FreeSets allows individual sets to be returned with Pool.Free
	FreeSets bool
	Name     string
}

// Pool allocates descriptor sets. It is not safe for concurrent use.
type Pool struct {
	factory *resource.Factory
	handle  hal.Handle
	info    PoolCreateInfo
	live    int
}

func NewPool(factory *resource.Factory, info PoolCreateInfo) (*Pool, error) {
	if info.MaxSets < 1 {
		return nil, vkerr.New(vkerr.ValidationError, "descriptor pool %q must allow at least one set", info.Name)
	}

	var flags hal.DescriptorPoolCreateFlags
	if info.FreeSets {
		flags |= hal.DescriptorPoolCreateFreeDescriptorSet
	}

	handle, res := factory.Device().CreateDescriptorPool(hal.DescriptorPoolCreateInfo{
		Flags:     flags,
		MaxSets:   info.MaxSets,
		PoolSizes: info.Sizes,
	}, nil)
	err := vkerr.FromResultf(res, "failed to create descriptor pool %q", info.Name)
	if err != nil {
		return nil, err
	}

	pool := &Pool{factory: factory, handle: handle, info: info}
	factory.Track(pool.Object(), info.Name)
	return pool, nil
}

// NewPoolFor creates a pool sized for sets sets of each layout
func NewPoolFor(factory *resource.Factory, name string, sets int, freeSets bool, layouts ...*SetLayout) (*Pool, error) {
	var sizes []hal.DescriptorPoolSize
	for _, layout := range layouts {
		for _, size := range layout.PoolSizes(sets) {
			sizes = addPoolSize(sizes, size.Type, size.DescriptorCount)
		}
	}

	return NewPool(factory, PoolCreateInfo{
		MaxSets:  sets * max(len(layouts), 1),
		Sizes:    sizes,
		FreeSets: freeSets,
		Name:     name,
	})
}

func (p *Pool) Handle() hal.Handle { return p.handle }

func (p *Pool) Object() hal.Object { return hal.NewObject(hal.ObjectTypeDescriptorPool, p.handle) }

// Live returns the number of sets allocated from the pool and not yet freed
func (p *Pool) Live() int { return p.live }

// Allocate allocates one set for each layout. When the pool has run out of room the error is
// FragmentedPool or OutOfDeviceMemory and no set is allocated.
func (p *Pool) Allocate(layouts ...*SetLayout) ([]*Set, error) {
	if p.handle.IsNull() {
		return nil, vkerr.New(vkerr.ValidationError, "descriptor pool %q has been destroyed", p.info.Name)
	}

	handles := make([]hal.Handle, len(layouts))
	for i, layout := range layouts {
		if layout == nil || layout.handle.IsNull() {
			return nil, vkerr.New(vkerr.ValidationError, "set %d would be allocated from a destroyed layout", i)
		}
		handles[i] = layout.handle
	}

	allocated, res := p.factory.Device().AllocateDescriptorSets(p.handle, handles)
	err := vkerr.FromResultf(res, "failed to allocate %d sets from descriptor pool %q", len(layouts), p.info.Name)
	if err != nil {
		return nil, err
	}

	sets := make([]*Set, len(allocated))
	for i, handle := range allocated {
		sets[i] = newSet(p, layouts[i], handle)
	}
	p.live += len(sets)

	return sets, nil
}

// Free returns sets to the pool. The pool must have been created with FreeSets.
func (p *Pool) Free(sets ...*Set) error {
	if !p.info.FreeSets {
		return vkerr.New(vkerr.ValidationError, "descriptor pool %q does not allow sets to be freed", p.info.Name)
	}

	handles := make([]hal.Handle, 0, len(sets))
	for _, set := range sets {
		if set.pool != p {
			return vkerr.New(vkerr.ValidationError, "a descriptor set was freed to pool %q, which did not allocate it", p.info.Name)
		}
		if set.handle.IsNull() {
			continue
		}
		handles = append(handles, set.handle)
	}

	res := p.factory.Device().FreeDescriptorSets(p.handle, handles)
	err := vkerr.FromResultf(res, "failed to free %d sets to descriptor pool %q", len(handles), p.info.Name)
	if err != nil {
		return err
	}

	for _, set := range sets {
		set.handle = hal.NullHandle
	}
	p.live -= len(handles)
	return nil
}

// Destroy destroys the pool, which frees every set allocated from it
func (p *Pool) Destroy() error {
	p.factory.DestroyObject(p.Object())
	p.handle = hal.NullHandle
	p.live = 0
	return nil
}
