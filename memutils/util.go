package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// CheckPow2 returns PowerOfTwoError, wrapped with the value's name, if number is not a power of two.
// Zero passes.
func CheckPow2[T constraints.Integer](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// IsPow2 returns true for positive powers of two
func IsPow2[T constraints.Integer](number T) bool {
	return number > 0 && number&(number-1) == 0
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T constraints.Integer](value T, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) & ^(alignment - 1)
}

// AlignDown rounds value down to a multiple of alignment, which must be a power of two
func AlignDown[T constraints.Integer](value T, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return value & ^(alignment - 1)
}

// AlignUpAny rounds value up to a multiple of an arbitrary positive alignment
func AlignUpAny[T constraints.Integer](value T, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return ((value + alignment - 1) / alignment) * alignment
}

// DivideRoundingUp divides and rounds toward positive infinity
func DivideRoundingUp[T constraints.Integer](value T, divisor T) T {
	return (value + divisor - 1) / divisor
}

// Max returns the larger of a and b
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// BlocksOnSamePage returns true if the end of resource A and the start of resource B fall on the
// same page of size pageSize. pageSize must be a power of two. A must sit below B in memory.
func BlocksOnSamePage(resourceAOffset, resourceASize, resourceBOffset, pageSize int) bool {
	resourceAEnd := resourceAOffset + resourceASize - 1
	resourceAEndPage := resourceAEnd & ^(pageSize - 1)
	resourceBStartPage := resourceBOffset & ^(pageSize - 1)
	return resourceAEndPage == resourceBStartPage
}
