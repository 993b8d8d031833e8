package device

import (
	"cmp"
	"context"
	"log/slog"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"golang.org/x/exp/slices"
)

var _ resource.Registry = (*Registry)(nil)

// Entry is one live object in a Registry
type Entry struct {
	Object hal.Object
	Name   string
}

// Registry records every live driver object of a device along with its name. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.Mutex
	live  *swiss.Map[hal.Object, string]
	names *swiss.Map[hal.Object, string]
}

func NewRegistry() *Registry {
	return &Registry{
		live:  swiss.NewMap[hal.Object, string](64),
		names: swiss.NewMap[hal.Object, string](8),
	}
}

func (r *Registry) Track(object hal.Object, name string) {
	if object.IsNull() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		name, _ = r.names.Get(object)
	}
	r.names.Delete(object)
	r.live.Put(object, name)
}

func (r *Registry) Untrack(object hal.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.live.Delete(object)
	r.names.Delete(object)
}

// Rename changes the name of a tracked object. Objects the registry does not track, such as
// queues or the device itself, keep the name until they are tracked or untracked.
func (r *Registry) Rename(object hal.Object, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.live.Has(object) {
		r.live.Put(object, name)
		return
	}
	r.names.Put(object, name)
}

// Name returns the name recorded for object
func (r *Registry) Name(object hal.Object) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.live.Get(object)
	if ok {
		return name, true
	}
	return r.names.Get(object)
}

// Tracked returns true if object is live
func (r *Registry) Tracked(object hal.Object) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.live.Has(object)
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.live.Count()
}

// Live returns every live object ordered by type and handle
func (r *Registry) Live() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, r.live.Count())
	r.live.Iter(func(object hal.Object, name string) bool {
		entries = append(entries, Entry{Object: object, Name: name})
		return false
	})

	slices.SortFunc(entries, func(a, b Entry) int {
		if a.Object.Type != b.Object.Type {
			return cmp.Compare(a.Object.Type, b.Object.Type)
		}
		return cmp.Compare(a.Object.Handle, b.Object.Handle)
	})
	return entries
}

// Report logs every live object at error level and returns them
func (r *Registry) Report(logger *slog.Logger) []Entry {
	leaks := r.Live()
	for _, leak := range leaks {
		logger.LogAttrs(context.Background(), slog.LevelError, "Registry::Report object was not destroyed",
			slog.String("type", leak.Object.Type.String()),
			slog.String("handle", leak.Object.Handle.String()),
			slog.String("name", leak.Name),
		)
	}
	return leaks
}
