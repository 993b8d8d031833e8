//go:build debug_mem_utils

package memutils

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

const (
	// DebugMargin is the number of bytes reserved after every suballocation for
	// corruption detection
	DebugMargin int = 16

	// CorruptionDetectionEnabled reports whether margins are written and checked
	CorruptionDetectionEnabled = true

	// corruptionDetectionMagicValue is the 4-byte pattern repeated across every debug margin
	corruptionDetectionMagicValue uint32 = 0x7F84E666
)

// WriteMagicValue fills DebugMargin bytes at the provided pointer and offset with the magic value
func WriteMagicValue(data unsafe.Pointer, offset int) {
	dest := unsafe.Add(data, offset)
	words := DebugMargin / int(unsafe.Sizeof(uint32(0)))
	for i := 0; i < words; i++ {
		*(*uint32)(dest) = corruptionDetectionMagicValue
		dest = unsafe.Add(dest, unsafe.Sizeof(uint32(0)))
	}
}

// ValidateMagicValue returns false if any word of the margin at the provided pointer and offset
// has been overwritten
func ValidateMagicValue(data unsafe.Pointer, offset int) bool {
	source := unsafe.Add(data, offset)
	words := DebugMargin / int(unsafe.Sizeof(uint32(0)))
	for i := 0; i < words; i++ {
		if *(*uint32)(source) != corruptionDetectionMagicValue {
			return false
		}
		source = unsafe.Add(source, unsafe.Sizeof(uint32(0)))
	}

	return true
}

// DebugValidate panics if the object fails validation
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 panics if value is not a power of two
func DebugCheckPow2[T constraints.Integer](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
