package haltest

import (
	"fmt"
	"sort"

	"github.com/vkngwrapper/armory/hal"
)

type memory struct {
	info     hal.MemoryAllocateInfo
	data     []byte
	heap     int
	mapped   bool
	address  uint64
	priority float32
}

type binding struct {
	memory hal.Handle
	offset int
}

type object struct {
	objectType hal.ObjectType
	info       any
	parent     hal.Handle

	memory   *memory
	binding  *binding
	commands *commandBuffer

	signaled bool
	value    uint64
	timeline bool

	cacheEntries  []uint64
	pipelineFlags hal.PipelineCreateFlags
	sets          int
	writes        []hal.WriteDescriptorSet
}

// violation records a contract misuse. The lock must be held.
func (d *Device) violation(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// create adds an object to the handle table. The lock must be held.
func (d *Device) create(objectType hal.ObjectType, info any) (hal.Handle, *object) {
	handle := d.nextHandle
	d.nextHandle++

	obj := &object{objectType: objectType, info: info}
	d.objects.Put(handle, obj)

	return handle, obj
}

// lookup returns the live object behind a handle if it has the expected type. The lock must be held.
func (d *Device) lookup(objectType hal.ObjectType, handle hal.Handle) (*object, bool) {
	obj, ok := d.objects.Get(handle)
	if !ok || obj.objectType != objectType {
		return nil, false
	}

	return obj, true
}

// Info returns the create info an object was created with, or nil for an unknown handle
func (d *Device) Info(handle hal.Handle) any {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, ok := d.objects.Get(handle)
	if !ok {
		return nil
	}

	return obj.info
}

// Alive returns true if the handle refers to an object that has not been destroyed
func (d *Device) Alive(handle hal.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.objects.Has(handle)
}

// Live counts the live objects of a type
func (d *Device) Live(objectType hal.ObjectType) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0
	d.objects.Iter(func(_ hal.Handle, obj *object) bool {
		if obj.objectType == objectType {
			count++
		}
		return false
	})

	return count
}

// LiveObjects lists every live object, ordered by handle
func (d *Device) LiveObjects() []hal.Object {
	d.mu.Lock()
	defer d.mu.Unlock()

	objects := make([]hal.Object, 0, d.objects.Count())
	d.objects.Iter(func(handle hal.Handle, obj *object) bool {
		objects = append(objects, hal.NewObject(obj.objectType, handle))
		return false
	})

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Handle < objects[j].Handle
	})

	return objects
}

// ObjectName returns the debug name assigned to an object through debug-utils
func (d *Device) ObjectName(object hal.Object) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, _ := d.names.Get(object)
	return name
}
