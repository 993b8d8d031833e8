//go:build debug_init_allocs

package vam

import (
	"fmt"
	"unsafe"
)

// InitializeAllocs causes every new host-visible allocation to be filled with a known pattern,
// and every freed one with another, to expose reads of uninitialized or freed memory. It costs a
// map and a write per allocation.
const InitializeAllocs bool = true

func (a *Allocation) fillAllocation(pattern uint8) {
	if !a.IsMappingAllowed() {
		return
	}

	data, err := a.Map(0)
	if err != nil {
		panic(fmt.Sprintf("failed when attempting to map memory during debug pattern fill: %+v", err))
	}

	dataSlice := unsafe.Slice((*uint8)(data), a.size)
	for i := range dataSlice {
		dataSlice[i] = pattern
	}

	err = a.Flush(0, WholeSize)
	if err != nil {
		panic(fmt.Sprintf("failed when attempting to flush host cache during debug pattern fill: %+v", err))
	}

	err = a.Unmap()
	if err != nil {
		panic(fmt.Sprintf("failed when attempting to unmap memory during debug pattern fill: %+v", err))
	}
}
