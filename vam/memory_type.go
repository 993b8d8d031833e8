package vam

import (
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// FindMemoryTypeIndex chooses a memory type from props that is permitted by typeBits and carries
// every flag in required. Memory types are searched in driver order, first for an exact match of
// the flags and then for a superset, so the result is stable for a given device.
//
// When transient is set and required does not demand host visibility, lazily-allocated memory is
// sought first; devices without it fall back to required alone.
func FindMemoryTypeIndex(props core1_0.PhysicalDeviceMemoryProperties, typeBits uint32, required core1_0.MemoryPropertyFlags, transient bool) (int, error) {
	if transient && required&core1_0.MemoryPropertyHostVisible == 0 {
		index, found := findMemoryType(props, typeBits, required|core1_0.MemoryPropertyLazilyAllocated)
		if found {
			return index, nil
		}
	}

	index, found := findMemoryType(props, typeBits, required)
	if !found {
		return -1, vkerr.New(vkerr.UnsupportedMemoryProperties, "no memory type in bits %#x carries properties %s", typeBits, required)
	}

	return index, nil
}

func findMemoryType(props core1_0.PhysicalDeviceMemoryProperties, typeBits uint32, required core1_0.MemoryPropertyFlags) (int, bool) {
	for index, memoryType := range props.MemoryTypes {
		if typeBits&(1<<index) != 0 && memoryType.PropertyFlags == required {
			return index, true
		}
	}

	for index, memoryType := range props.MemoryTypes {
		if typeBits&(1<<index) != 0 && memoryType.PropertyFlags&required == required {
			return index, true
		}
	}

	return -1, false
}
