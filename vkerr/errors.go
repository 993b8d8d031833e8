// Package vkerr defines the error kinds reported by every layer above the driver contract. Errors
// are created through cockroachdb/errors, so each carries the stack of its creation site, and are
// marked with a per-kind sentinel so callers can test them with errors.Is.
package vkerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Kind is the closed set of failure categories
type Kind int

const (
	Unknown Kind = iota
	OutOfHostMemory
	OutOfDeviceMemory
	MemoryMapFailed
	InitializationFailed
	DeviceLost
	IncompatibleDriver
	ExtensionUnsupported
	FeatureUnsupported
	SurfaceLost
	SwapchainOutOfDate
	IncompatibleDisplay
	FullScreenExclusiveModeLost
	FragmentedPool
	TooManyObjects
	ValidationError
	UnsupportedMemoryProperties
	WrongBuildType
	DuplicateBinding
	CacheIncompatible
)

var kindNames = map[Kind]string{
	Unknown:                     "Unknown",
	OutOfHostMemory:             "OutOfHostMemory",
	OutOfDeviceMemory:           "OutOfDeviceMemory",
	MemoryMapFailed:             "MemoryMapFailed",
	InitializationFailed:        "InitializationFailed",
	DeviceLost:                  "DeviceLost",
	IncompatibleDriver:          "IncompatibleDriver",
	ExtensionUnsupported:        "ExtensionUnsupported",
	FeatureUnsupported:          "FeatureUnsupported",
	SurfaceLost:                 "SurfaceLost",
	SwapchainOutOfDate:          "SwapchainOutOfDate",
	IncompatibleDisplay:         "IncompatibleDisplay",
	FullScreenExclusiveModeLost: "FullScreenExclusiveModeLost",
	FragmentedPool:              "FragmentedPool",
	TooManyObjects:              "TooManyObjects",
	ValidationError:             "ValidationError",
	UnsupportedMemoryProperties: "UnsupportedMemoryProperties",
	WrongBuildType:              "WrongBuildType",
	DuplicateBinding:            "DuplicateBinding",
	CacheIncompatible:           "CacheIncompatible",
}

func (k Kind) String() string {
	str, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return str
}

var (
	ErrUnknown                     = errors.New("unknown error")
	ErrOutOfHostMemory             = errors.New("out of host memory")
	ErrOutOfDeviceMemory           = errors.New("out of device memory")
	ErrMemoryMapFailed             = errors.New("memory map failed")
	ErrInitializationFailed        = errors.New("initialization failed")
	ErrDeviceLost                  = errors.New("device lost")
	ErrIncompatibleDriver          = errors.New("incompatible driver")
	ErrExtensionUnsupported        = errors.New("extension unsupported")
	ErrFeatureUnsupported          = errors.New("feature unsupported")
	ErrSurfaceLost                 = errors.New("surface lost")
	ErrSwapchainOutOfDate          = errors.New("swapchain out of date")
	ErrIncompatibleDisplay         = errors.New("incompatible display")
	ErrFullScreenExclusiveModeLost = errors.New("full screen exclusive mode lost")
	ErrFragmentedPool              = errors.New("fragmented pool")
	ErrTooManyObjects              = errors.New("too many objects")
	ErrValidation                  = errors.New("validation error")
	ErrUnsupportedMemoryProperties = errors.New("unsupported memory properties")
	ErrWrongBuildType              = errors.New("wrong build type")
	ErrDuplicateBinding            = errors.New("duplicate binding")
	ErrCacheIncompatible           = errors.New("pipeline cache incompatible")
)

var sentinels = []error{
	Unknown:                     ErrUnknown,
	OutOfHostMemory:             ErrOutOfHostMemory,
	OutOfDeviceMemory:           ErrOutOfDeviceMemory,
	MemoryMapFailed:             ErrMemoryMapFailed,
	InitializationFailed:        ErrInitializationFailed,
	DeviceLost:                  ErrDeviceLost,
	IncompatibleDriver:          ErrIncompatibleDriver,
	ExtensionUnsupported:        ErrExtensionUnsupported,
	FeatureUnsupported:          ErrFeatureUnsupported,
	SurfaceLost:                 ErrSurfaceLost,
	SwapchainOutOfDate:          ErrSwapchainOutOfDate,
	IncompatibleDisplay:         ErrIncompatibleDisplay,
	FullScreenExclusiveModeLost: ErrFullScreenExclusiveModeLost,
	FragmentedPool:              ErrFragmentedPool,
	TooManyObjects:              ErrTooManyObjects,
	ValidationError:             ErrValidation,
	UnsupportedMemoryProperties: ErrUnsupportedMemoryProperties,
	WrongBuildType:              ErrWrongBuildType,
	DuplicateBinding:            ErrDuplicateBinding,
	CacheIncompatible:           ErrCacheIncompatible,
}

// Sentinel returns the error every error of this kind is marked with
func (k Kind) Sentinel() error {
	if k < 0 || int(k) >= len(sentinels) {
		return ErrUnknown
	}
	return sentinels[k]
}

// New creates an error of the given kind. The recorded source location is the caller's.
func New(kind Kind, format string, args ...any) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), kind.Sentinel())
}

// Wrap annotates err and marks it with the given kind. A nil err returns nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WrapWithDepthf(1, err, format, args...), kind.Sentinel())
}

// KindOf returns the kind err was marked with, or Unknown
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}

	for kind := Unknown + 1; int(kind) < len(sentinels); kind++ {
		if errors.Is(err, sentinels[kind]) {
			return kind
		}
	}

	return Unknown
}

// Is returns true if err was marked with the given kind
func Is(err error, kind Kind) bool {
	return err != nil && errors.Is(err, kind.Sentinel())
}

// SourceLocation is the creation site of an error
type SourceLocation struct {
	File     string
	Line     int
	Function string
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Function)
}

// Location returns the creation site recorded on err, if any
func Location(err error) (SourceLocation, bool) {
	file, line, fn, ok := errors.GetOneLineSource(err)
	if !ok {
		return SourceLocation{}, false
	}

	return SourceLocation{File: file, Line: line, Function: fn}, true
}

// Driver result codes that live in extension vocabularies
const (
	ResultErrorSurfaceLost                 common.VkResult = -1000000000
	ResultErrorNativeWindowInUse           common.VkResult = -1000000001
	ResultSuboptimal                       common.VkResult = 1000001003
	ResultErrorOutOfDate                   common.VkResult = -1000001004
	ResultErrorIncompatibleDisplay         common.VkResult = -1000003001
	ResultErrorValidationFailed            common.VkResult = -1000011001
	ResultErrorIncompatibleVersion         common.VkResult = -1000150000
	ResultErrorFullScreenExclusiveModeLost common.VkResult = -1000255000
	ResultErrorFragmentation               common.VkResult = -1000161000
)

var resultKinds = map[common.VkResult]Kind{
	core1_0.VKErrorOutOfHostMemory:         OutOfHostMemory,
	core1_0.VKErrorOutOfDeviceMemory:       OutOfDeviceMemory,
	core1_0.VKErrorInitializationFailed:    InitializationFailed,
	core1_0.VKErrorDeviceLost:              DeviceLost,
	core1_0.VKErrorMemoryMapFailed:         MemoryMapFailed,
	core1_0.VKErrorLayerNotPresent:         ExtensionUnsupported,
	core1_0.VKErrorExtensionNotPresent:     ExtensionUnsupported,
	core1_0.VKErrorFeatureNotPresent:       FeatureUnsupported,
	core1_0.VKErrorIncompatibleDriver:      IncompatibleDriver,
	core1_0.VKErrorTooManyObjects:          TooManyObjects,
	core1_0.VKErrorFormatNotSupported:      FeatureUnsupported,
	core1_0.VKErrorFragmentedPool:          FragmentedPool,
	core1_0.VKErrorUnknown:                 Unknown,
	ResultErrorSurfaceLost:                 SurfaceLost,
	ResultErrorNativeWindowInUse:           SurfaceLost,
	ResultErrorOutOfDate:                   SwapchainOutOfDate,
	ResultErrorIncompatibleDisplay:         IncompatibleDisplay,
	ResultErrorValidationFailed:            ValidationError,
	ResultErrorIncompatibleVersion:         IncompatibleDriver,
	ResultErrorFullScreenExclusiveModeLost: FullScreenExclusiveModeLost,
	ResultErrorFragmentation:               FragmentedPool,
}

// ResultKind maps a failing driver result to its kind. Non-error results map to Unknown.
func ResultKind(res common.VkResult) Kind {
	kind, ok := resultKinds[res]
	if !ok {
		return Unknown
	}
	return kind
}

// FromResult converts a driver result into an error. Success and the other non-negative status
// codes return nil.
func FromResult(res common.VkResult) error {
	if res >= 0 {
		return nil
	}

	return errors.Mark(errors.NewWithDepthf(1, "driver returned %v", res), ResultKind(res).Sentinel())
}

// FromResultf converts a driver result into an error with a message describing the failed call
func FromResultf(res common.VkResult, format string, args ...any) error {
	if res >= 0 {
		return nil
	}

	err := errors.WrapWithDepthf(1, errors.Newf("driver returned %v", res), format, args...)
	return errors.Mark(err, ResultKind(res).Sentinel())
}

// ToResult maps an error back to the closest driver result code, for layers that still speak results
func ToResult(err error) common.VkResult {
	if err == nil {
		return core1_0.VKSuccess
	}

	switch KindOf(err) {
	case OutOfHostMemory:
		return core1_0.VKErrorOutOfHostMemory
	case OutOfDeviceMemory:
		return core1_0.VKErrorOutOfDeviceMemory
	case MemoryMapFailed:
		return core1_0.VKErrorMemoryMapFailed
	case InitializationFailed:
		return core1_0.VKErrorInitializationFailed
	case DeviceLost:
		return core1_0.VKErrorDeviceLost
	case IncompatibleDriver:
		return core1_0.VKErrorIncompatibleDriver
	case ExtensionUnsupported:
		return core1_0.VKErrorExtensionNotPresent
	case FeatureUnsupported:
		return core1_0.VKErrorFeatureNotPresent
	case FragmentedPool:
		return core1_0.VKErrorFragmentedPool
	case TooManyObjects:
		return core1_0.VKErrorTooManyObjects
	case SurfaceLost:
		return ResultErrorSurfaceLost
	case SwapchainOutOfDate:
		return ResultErrorOutOfDate
	case IncompatibleDisplay:
		return ResultErrorIncompatibleDisplay
	case FullScreenExclusiveModeLost:
		return ResultErrorFullScreenExclusiveModeLost
	case ValidationError:
		return ResultErrorValidationFailed
	}

	return core1_0.VKErrorUnknown
}
