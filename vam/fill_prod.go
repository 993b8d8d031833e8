//go:build !debug_init_allocs

package vam

// InitializeAllocs is false unless built with the debug_init_allocs tag
const InitializeAllocs bool = false

func (a *Allocation) fillAllocation(pattern uint8) {}
