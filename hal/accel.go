package hal

import (
	"fmt"
	"unsafe"
)

type AccelerationStructureType int32

const (
	AccelerationStructureTopLevel    AccelerationStructureType = 0
	AccelerationStructureBottomLevel AccelerationStructureType = 1
	AccelerationStructureGeneric     AccelerationStructureType = 2
)

var accelerationStructureTypeMapping = map[AccelerationStructureType]string{
	AccelerationStructureTopLevel:    "TopLevel",
	AccelerationStructureBottomLevel: "BottomLevel",
	AccelerationStructureGeneric:     "Generic",
}

func (t AccelerationStructureType) String() string {
	str, ok := accelerationStructureTypeMapping[t]
	if !ok {
		return fmt.Sprintf("AccelerationStructureType(%d)", int32(t))
	}
	return str
}

// AccelerationStructureBuildType selects whether builds run on the host, on the device, or either
type AccelerationStructureBuildType int32

const (
	BuildTypeHost         AccelerationStructureBuildType = 0
	BuildTypeDevice       AccelerationStructureBuildType = 1
	BuildTypeHostOrDevice AccelerationStructureBuildType = 2
)

func (t AccelerationStructureBuildType) String() string {
	switch t {
	case BuildTypeHost:
		return "Host"
	case BuildTypeDevice:
		return "Device"
	case BuildTypeHostOrDevice:
		return "HostOrDevice"
	}

	return fmt.Sprintf("AccelerationStructureBuildType(%d)", int32(t))
}

type BuildAccelerationStructureFlags int32

const (
	BuildAllowUpdate     BuildAccelerationStructureFlags = 0x01
	BuildAllowCompaction BuildAccelerationStructureFlags = 0x02
	BuildPreferFastTrace BuildAccelerationStructureFlags = 0x04
	BuildPreferFastBuild BuildAccelerationStructureFlags = 0x08
	BuildLowMemory       BuildAccelerationStructureFlags = 0x10
)

type BuildAccelerationStructureMode int32

const (
	BuildModeBuild  BuildAccelerationStructureMode = 0
	BuildModeUpdate BuildAccelerationStructureMode = 1
)

type GeometryType int32

const (
	GeometryTypeTriangles GeometryType = 0
	GeometryTypeAABBs     GeometryType = 1
	GeometryTypeInstances GeometryType = 2
)

type GeometryFlags int32

const (
	GeometryOpaque                      GeometryFlags = 0x1
	GeometryNoDuplicateAnyHitInvocation GeometryFlags = 0x2
)

type CopyAccelerationStructureMode int32

const (
	CopyModeClone       CopyAccelerationStructureMode = 0
	CopyModeCompact     CopyAccelerationStructureMode = 1
	CopyModeSerialize   CopyAccelerationStructureMode = 2
	CopyModeDeserialize CopyAccelerationStructureMode = 3
)

func (m CopyAccelerationStructureMode) String() string {
	switch m {
	case CopyModeClone:
		return "Clone"
	case CopyModeCompact:
		return "Compact"
	case CopyModeSerialize:
		return "Serialize"
	case CopyModeDeserialize:
		return "Deserialize"
	}

	return fmt.Sprintf("CopyAccelerationStructureMode(%d)", int32(m))
}

// DeviceOrHostAddress is a device address for device builds or a host pointer for host builds
type DeviceOrHostAddress struct {
	DeviceAddress uint64
	HostAddress   unsafe.Pointer
}

// IsNull returns true if neither address is set
func (a DeviceOrHostAddress) IsNull() bool {
	return a.DeviceAddress == 0 && a.HostAddress == nil
}

type GeometryTrianglesData struct {
	VertexFormat  Format
	VertexData    DeviceOrHostAddress
	VertexStride  int
	MaxVertex     int
	IndexType     IndexType
	IndexData     DeviceOrHostAddress
	TransformData DeviceOrHostAddress
}

type GeometryAABBsData struct {
	Data   DeviceOrHostAddress
	Stride int
}

type GeometryInstancesData struct {
	ArrayOfPointers bool
	Data            DeviceOrHostAddress
}

// AccelerationStructureGeometry holds one geometry; the data field matching GeometryType is set
type AccelerationStructureGeometry struct {
	GeometryType GeometryType
	Flags        GeometryFlags
	Triangles    *GeometryTrianglesData
	AABBs        *GeometryAABBsData
	Instances    *GeometryInstancesData
}

type AccelerationStructureBuildGeometryInfo struct {
	Type       AccelerationStructureType
	Flags      BuildAccelerationStructureFlags
	Mode       BuildAccelerationStructureMode
	Src        Handle
	Dst        Handle
	Geometries []AccelerationStructureGeometry
	Scratch    DeviceOrHostAddress
}

type AccelerationStructureBuildRangeInfo struct {
	PrimitiveCount  int
	PrimitiveOffset int
	FirstVertex     int
	TransformOffset int
}

type AccelerationStructureBuildSizes struct {
	AccelerationStructureSize int
	UpdateScratchSize         int
	BuildScratchSize          int
}

type AccelerationStructureCreateInfo struct {
	Buffer        Handle
	Offset        int
	Size          int
	Type          AccelerationStructureType
	DeviceAddress uint64
}

// CopyAccelerationStructureInfo copies between two structures (clone, compact), from a structure
// to memory (serialize, DstAddress), or from memory to a structure (deserialize, SrcAddress).
type CopyAccelerationStructureInfo struct {
	Src        Handle
	Dst        Handle
	SrcAddress DeviceOrHostAddress
	DstAddress DeviceOrHostAddress
	Mode       CopyAccelerationStructureMode
}
