package resource

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
)

// AccelerationStructureCreateInfo describes an acceleration structure by the geometry it will be
// built from. MaxPrimitiveCounts holds one count per geometry and sizes the structure and its
// scratch memory.
type AccelerationStructureCreateInfo struct {
	Type               hal.AccelerationStructureType
	BuildType          hal.AccelerationStructureBuildType
	Flags              hal.BuildAccelerationStructureFlags
	Geometries         []hal.AccelerationStructureGeometry
	MaxPrimitiveCounts []int
	Priority           float32
	Name               string
}

// AccelerationStructureRecorder records device-side acceleration structure commands
type AccelerationStructureRecorder interface {
	BuildAccelerationStructures(infos []hal.AccelerationStructureBuildGeometryInfo, ranges [][]hal.AccelerationStructureBuildRangeInfo)
	CopyAccelerationStructure(info hal.CopyAccelerationStructureInfo)
}

// Scratch is working memory for a build or update. Device builds take scratch from a buffer
// via Buffer.Scratch, host builds from HostScratch.
type Scratch struct {
	Address hal.DeviceOrHostAddress
	Size    int

	host []byte
}

// HostScratch allocates size bytes of host memory for host builds
func HostScratch(size int) Scratch {
	host := make([]byte, max(size, 1))
	return Scratch{
		Address: hal.DeviceOrHostAddress{HostAddress: unsafe.Pointer(&host[0])},
		Size:    size,
		host:    host,
	}
}

func (s Scratch) isHost() bool {
	return s.Address.HostAddress != nil
}

// Scratch returns the whole buffer as scratch memory for device builds
func (b *Buffer) Scratch() (Scratch, error) {
	address, err := b.DeviceAddress()
	if err != nil {
		return Scratch{}, err
	}

	return Scratch{
		Address: hal.DeviceOrHostAddress{DeviceAddress: address},
		Size:    b.info.Size,
	}, nil
}

// AccelerationStructure is a driver acceleration structure living in a buffer it owns
type AccelerationStructure struct {
	factory *Factory
	handle  hal.Handle
	info    AccelerationStructureCreateInfo
	buffer  *Buffer
	sizes   hal.AccelerationStructureBuildSizes
	address uint64
}

var _ Resource = (*AccelerationStructure)(nil)

func (f *Factory) requireAccelerationStructures() error {
	if f.extensions.CreateAccelerationStructure == nil || f.extensions.GetAccelerationStructureBuildSizes == nil {
		return vkerr.New(vkerr.ExtensionUnsupported, "acceleration structures require %s", hal.ExtAccelerationStructure)
	}

	return nil
}

// CreateAccelerationStructure queries the sizes the geometry needs, creates a buffer to hold the
// structure and creates the structure in it
func (f *Factory) CreateAccelerationStructure(info AccelerationStructureCreateInfo) (*AccelerationStructure, error) {
	f.debugLog("Factory::CreateAccelerationStructure",
		slog.String("type", info.Type.String()),
		slog.String("buildType", info.BuildType.String()),
		slog.Int("geometries", len(info.Geometries)),
		slog.String("name", info.Name))

	err := f.requireAccelerationStructures()
	if err != nil {
		return nil, err
	}
	if len(info.MaxPrimitiveCounts) != len(info.Geometries) {
		return nil, vkerr.New(vkerr.ValidationError, "%d geometries were provided with %d max primitive counts", len(info.Geometries), len(info.MaxPrimitiveCounts))
	}

	as := &AccelerationStructure{factory: f, info: info}
	as.sizes = f.extensions.GetAccelerationStructureBuildSizes(f.device.Handle(), info.BuildType, as.geometryInfo(hal.BuildModeBuild, info.Geometries, Scratch{}), info.MaxPrimitiveCounts)
	if as.sizes.AccelerationStructureSize < 1 {
		return nil, vkerr.New(vkerr.ValidationError, "driver reported no storage for acceleration structure %q", info.Name)
	}

	usage := hal.BufferUsageAccelerationStructureStorage
	if f.extensions.GetBufferDeviceAddress != nil {
		usage |= hal.BufferUsageShaderDeviceAddress
	}
	as.buffer, err = f.CreateBuffer(BufferCreateInfo{
		Size:            as.sizes.AccelerationStructureSize,
		Usage:           usage,
		MappingRequired: info.BuildType == hal.BuildTypeHost,
		Priority:        info.Priority,
		Name:            info.Name,
	})
	if err != nil {
		return nil, err
	}

	handle, res := f.extensions.CreateAccelerationStructure(f.device.Handle(), hal.AccelerationStructureCreateInfo{
		Buffer: as.buffer.Handle(),
		Offset: 0,
		Size:   as.sizes.AccelerationStructureSize,
		Type:   info.Type,
	}, nil)
	err = vkerr.FromResultf(res, "failed to create acceleration structure %q", info.Name)
	if err != nil {
		return nil, errors.CombineErrors(err, as.buffer.Destroy())
	}
	as.handle = handle
	f.track(as.Object(), info.Name)

	if info.BuildType != hal.BuildTypeHost && f.extensions.GetAccelerationStructureDeviceAddress != nil {
		as.address = f.extensions.GetAccelerationStructureDeviceAddress(f.device.Handle(), handle)
	}

	return as, nil
}

func (a *AccelerationStructure) Handle() hal.Handle { return a.handle }

func (a *AccelerationStructure) Object() hal.Object {
	return hal.NewObject(hal.ObjectTypeAccelerationStructure, a.handle)
}

func (a *AccelerationStructure) Type() hal.AccelerationStructureType { return a.info.Type }

func (a *AccelerationStructure) BuildType() hal.AccelerationStructureBuildType {
	return a.info.BuildType
}

func (a *AccelerationStructure) Flags() hal.BuildAccelerationStructureFlags { return a.info.Flags }

// Sizes returns the structure, build scratch and update scratch sizes the driver reported
func (a *AccelerationStructure) Sizes() hal.AccelerationStructureBuildSizes { return a.sizes }

// DeviceAddress returns the device address of the structure, or 0 for host-built structures
func (a *AccelerationStructure) DeviceAddress() uint64 { return a.address }

// Buffer returns the buffer that holds the structure
func (a *AccelerationStructure) Buffer() *Buffer { return a.buffer }

func (a *AccelerationStructure) Name() string { return a.info.Name }

func (a *AccelerationStructure) geometryInfo(mode hal.BuildAccelerationStructureMode, geometries []hal.AccelerationStructureGeometry, scratch Scratch) hal.AccelerationStructureBuildGeometryInfo {
	if geometries == nil {
		geometries = a.info.Geometries
	}

	info := hal.AccelerationStructureBuildGeometryInfo{
		Type:       a.info.Type,
		Flags:      a.info.Flags,
		Mode:       mode,
		Dst:        a.handle,
		Geometries: geometries,
		Scratch:    scratch.Address,
	}
	if mode == hal.BuildModeUpdate {
		info.Src = a.handle
	}

	return info
}

func (a *AccelerationStructure) checkBuild(host bool, mode hal.BuildAccelerationStructureMode, geometries []hal.AccelerationStructureGeometry, ranges []hal.AccelerationStructureBuildRangeInfo, scratch Scratch) error {
	if a.handle.IsNull() {
		return vkerr.New(vkerr.ValidationError, "acceleration structure %q has been destroyed", a.info.Name)
	}

	switch {
	case host && a.info.BuildType == hal.BuildTypeDevice:
		return vkerr.New(vkerr.WrongBuildType, "acceleration structure %q is built on the device, but a host build was requested", a.info.Name)
	case !host && a.info.BuildType == hal.BuildTypeHost:
		return vkerr.New(vkerr.WrongBuildType, "acceleration structure %q is built on the host, but a device build was requested", a.info.Name)
	case host && !scratch.isHost():
		return vkerr.New(vkerr.ValidationError, "host builds of %q require host scratch memory", a.info.Name)
	case !host && scratch.Address.DeviceAddress == 0:
		return vkerr.New(vkerr.ValidationError, "device builds of %q require scratch memory with a device address", a.info.Name)
	}

	required := a.sizes.BuildScratchSize
	if mode == hal.BuildModeUpdate {
		required = a.sizes.UpdateScratchSize
		if a.info.Flags&hal.BuildAllowUpdate == 0 {
			return vkerr.New(vkerr.ValidationError, "acceleration structure %q was not created with BuildAllowUpdate", a.info.Name)
		}
	}
	if scratch.Size < required {
		return vkerr.New(vkerr.ValidationError, "scratch memory of %d bytes is smaller than the %d bytes %q requires", scratch.Size, required, a.info.Name)
	}

	if geometries == nil {
		geometries = a.info.Geometries
	}
	if len(ranges) != len(geometries) {
		return vkerr.New(vkerr.ValidationError, "%d build ranges were provided for %d geometries", len(ranges), len(geometries))
	}

	return nil
}

func (a *AccelerationStructure) hostBuild(mode hal.BuildAccelerationStructureMode, geometries []hal.AccelerationStructureGeometry, ranges []hal.AccelerationStructureBuildRangeInfo, scratch Scratch, deferred hal.Handle) error {
	err := a.checkBuild(true, mode, geometries, ranges, scratch)
	if err != nil {
		return err
	}

	extensions := a.factory.extensions
	if extensions.BuildAccelerationStructures == nil {
		return vkerr.New(vkerr.FeatureUnsupported, "the device does not support host acceleration structure builds")
	}

	res := extensions.BuildAccelerationStructures(a.factory.device.Handle(), deferred,
		[]hal.AccelerationStructureBuildGeometryInfo{a.geometryInfo(mode, geometries, scratch)},
		[][]hal.AccelerationStructureBuildRangeInfo{ranges})
	return vkerr.FromResultf(res, "failed to build acceleration structure %q", a.info.Name)
}

func (a *AccelerationStructure) recordBuild(rec AccelerationStructureRecorder, mode hal.BuildAccelerationStructureMode, geometries []hal.AccelerationStructureGeometry, ranges []hal.AccelerationStructureBuildRangeInfo, scratch Scratch) error {
	err := a.checkBuild(false, mode, geometries, ranges, scratch)
	if err != nil {
		return err
	}

	rec.BuildAccelerationStructures(
		[]hal.AccelerationStructureBuildGeometryInfo{a.geometryInfo(mode, geometries, scratch)},
		[][]hal.AccelerationStructureBuildRangeInfo{ranges})
	return nil
}

// Build builds the structure on the host. A nil geometries uses the geometry the structure was
// created with. deferred may be the null handle, or a deferred operation the caller joins.
func (a *AccelerationStructure) Build(geometries []hal.AccelerationStructureGeometry, ranges []hal.AccelerationStructureBuildRangeInfo, scratch Scratch, deferred hal.Handle) error {
	return a.hostBuild(hal.BuildModeBuild, geometries, ranges, scratch, deferred)
}

// Update refits the structure in place on the host
func (a *AccelerationStructure) Update(geometries []hal.AccelerationStructureGeometry, ranges []hal.AccelerationStructureBuildRangeInfo, scratch Scratch, deferred hal.Handle) error {
	return a.hostBuild(hal.BuildModeUpdate, geometries, ranges, scratch, deferred)
}

// RecordBuild records a device build of the structure
func (a *AccelerationStructure) RecordBuild(rec AccelerationStructureRecorder, geometries []hal.AccelerationStructureGeometry, ranges []hal.AccelerationStructureBuildRangeInfo, scratch Scratch) error {
	return a.recordBuild(rec, hal.BuildModeBuild, geometries, ranges, scratch)
}

// RecordUpdate records a device refit of the structure in place
func (a *AccelerationStructure) RecordUpdate(rec AccelerationStructureRecorder, geometries []hal.AccelerationStructureGeometry, ranges []hal.AccelerationStructureBuildRangeInfo, scratch Scratch) error {
	return a.recordBuild(rec, hal.BuildModeUpdate, geometries, ranges, scratch)
}

// CopyTarget is the other end of a copy. Clone and compact copy into Structure; serialize writes
// to Address and deserialize reads from it, with the receiver as destination.
type CopyTarget struct {
	Mode      hal.CopyAccelerationStructureMode
	Structure *AccelerationStructure
	Address   hal.DeviceOrHostAddress
}

func (a *AccelerationStructure) copyInfo(target CopyTarget) (hal.CopyAccelerationStructureInfo, error) {
	if a.handle.IsNull() {
		return hal.CopyAccelerationStructureInfo{}, vkerr.New(vkerr.ValidationError, "acceleration structure %q has been destroyed", a.info.Name)
	}

	info := hal.CopyAccelerationStructureInfo{Mode: target.Mode}
	switch target.Mode {
	case hal.CopyModeClone, hal.CopyModeCompact:
		if target.Structure == nil || target.Structure.handle.IsNull() {
			return info, vkerr.New(vkerr.ValidationError, "%s copy of %q requires a live destination structure", target.Mode, a.info.Name)
		}
		if target.Mode == hal.CopyModeCompact && a.info.Flags&hal.BuildAllowCompaction == 0 {
			return info, vkerr.New(vkerr.ValidationError, "acceleration structure %q was not created with BuildAllowCompaction", a.info.Name)
		}
		info.Src = a.handle
		info.Dst = target.Structure.handle
	case hal.CopyModeSerialize:
		if target.Address.IsNull() {
			return info, vkerr.New(vkerr.ValidationError, "serializing %q requires a destination address", a.info.Name)
		}
		info.Src = a.handle
		info.DstAddress = target.Address
	case hal.CopyModeDeserialize:
		if target.Address.IsNull() {
			return info, vkerr.New(vkerr.ValidationError, "deserializing into %q requires a source address", a.info.Name)
		}
		info.SrcAddress = target.Address
		info.Dst = a.handle
	default:
		return info, vkerr.New(vkerr.ValidationError, "unknown copy mode %s", target.Mode)
	}

	return info, nil
}

// Copy performs a copy on the host
func (a *AccelerationStructure) Copy(target CopyTarget, deferred hal.Handle) error {
	if a.info.BuildType == hal.BuildTypeDevice {
		return vkerr.New(vkerr.WrongBuildType, "acceleration structure %q is built on the device, but a host copy was requested", a.info.Name)
	}
	if a.factory.extensions.CopyAccelerationStructure == nil {
		return vkerr.New(vkerr.FeatureUnsupported, "the device does not support host acceleration structure copies")
	}

	info, err := a.copyInfo(target)
	if err != nil {
		return err
	}

	res := a.factory.extensions.CopyAccelerationStructure(a.factory.device.Handle(), deferred, info)
	return vkerr.FromResultf(res, "failed to %s acceleration structure %q", target.Mode, a.info.Name)
}

// RecordCopy records a copy on the device
func (a *AccelerationStructure) RecordCopy(rec AccelerationStructureRecorder, target CopyTarget) error {
	if a.info.BuildType == hal.BuildTypeHost {
		return vkerr.New(vkerr.WrongBuildType, "acceleration structure %q is built on the host, but a device copy was requested", a.info.Name)
	}

	info, err := a.copyInfo(target)
	if err != nil {
		return err
	}

	rec.CopyAccelerationStructure(info)
	return nil
}

// Destroy destroys the structure and the buffer that holds it
func (a *AccelerationStructure) Destroy() error {
	if a.handle.IsNull() && a.buffer == nil {
		return nil
	}

	a.factory.destroy(a.Object())
	a.handle = hal.NullHandle

	var err error
	if a.buffer != nil {
		err = a.buffer.Destroy()
		a.buffer = nil
	}
	return err
}
