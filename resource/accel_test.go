package resource

import (
	"testing"
	"unsafe"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type asLog struct {
	builds [][]hal.AccelerationStructureBuildGeometryInfo
	ranges [][][]hal.AccelerationStructureBuildRangeInfo
	copies []hal.CopyAccelerationStructureInfo
}

func (l *asLog) BuildAccelerationStructures(infos []hal.AccelerationStructureBuildGeometryInfo, ranges [][]hal.AccelerationStructureBuildRangeInfo) {
	l.builds = append(l.builds, infos)
	l.ranges = append(l.ranges, ranges)
}

func (l *asLog) CopyAccelerationStructure(info hal.CopyAccelerationStructureInfo) {
	l.copies = append(l.copies, info)
}

var accelerationExtensions = []string{hal.ExtAccelerationStructure, hal.ExtBufferDeviceAddress, hal.ExtDeferredHostOperations}

func triangle() hal.AccelerationStructureGeometry {
	return hal.AccelerationStructureGeometry{
		GeometryType: hal.GeometryTypeTriangles,
		Flags:        hal.GeometryOpaque,
		Triangles: &hal.GeometryTrianglesData{
			VertexFormat: hal.FormatR32G32B32Sfloat,
			VertexData:   hal.DeviceOrHostAddress{DeviceAddress: 0x1000},
			VertexStride: 12,
			MaxVertex:    2,
			IndexType:    hal.IndexTypeNone,
		},
	}
}

func bottomLevel(t *testing.T, factory *Factory, buildType hal.AccelerationStructureBuildType) *AccelerationStructure {
	as, err := factory.CreateAccelerationStructure(AccelerationStructureCreateInfo{
		Type:               hal.AccelerationStructureBottomLevel,
		BuildType:          buildType,
		Flags:              hal.BuildAllowUpdate | hal.BuildPreferFastTrace,
		Geometries:         []hal.AccelerationStructureGeometry{triangle()},
		MaxPrimitiveCounts: []int{1},
		Name:               "blas",
	})
	require.NoError(t, err)
	return as
}

func deviceScratch(t *testing.T, factory *Factory, size int) (*Buffer, Scratch) {
	buffer, err := factory.CreateBuffer(BufferCreateInfo{
		Size:  size,
		Usage: core1_0.BufferUsageStorageBuffer | hal.BufferUsageShaderDeviceAddress,
		Name:  "scratch",
	})
	require.NoError(t, err)

	scratch, err := buffer.Scratch()
	require.NoError(t, err)
	return buffer, scratch
}

func TestAccelerationStructureRequiresExtension(t *testing.T) {
	_, factory, _ := readyFactory(t)

	_, err := factory.CreateAccelerationStructure(AccelerationStructureCreateInfo{
		Type:               hal.AccelerationStructureBottomLevel,
		Geometries:         []hal.AccelerationStructureGeometry{triangle()},
		MaxPrimitiveCounts: []int{1},
	})
	require.True(t, vkerr.Is(err, vkerr.ExtensionUnsupported))
}

func TestAccelerationStructureDeviceBuild(t *testing.T) {
	dev, factory, _ := readyFactory(t, accelerationExtensions...)

	as := bottomLevel(t, factory, hal.BuildTypeDevice)
	sizes := as.Sizes()
	require.Positive(t, sizes.AccelerationStructureSize)
	require.Positive(t, sizes.BuildScratchSize)
	require.Positive(t, sizes.UpdateScratchSize)
	require.Equal(t, sizes.AccelerationStructureSize, as.Buffer().Size())
	require.NotZero(t, as.DeviceAddress())

	scratchBuffer, scratch := deviceScratch(t, factory, max(sizes.BuildScratchSize, sizes.UpdateScratchSize))
	ranges := []hal.AccelerationStructureBuildRangeInfo{{PrimitiveCount: 1}}

	var log asLog
	require.NoError(t, as.RecordBuild(&log, nil, ranges, scratch))
	require.Len(t, log.builds, 1)
	build := log.builds[0][0]
	require.Equal(t, hal.BuildModeBuild, build.Mode)
	require.True(t, build.Src.IsNull())
	require.Equal(t, as.Handle(), build.Dst)
	require.Equal(t, scratch.Address, build.Scratch)
	require.Equal(t, hal.AccelerationStructureBottomLevel, build.Type)
	require.Len(t, build.Geometries, 1)
	require.Equal(t, ranges, log.ranges[0][0])

	require.NoError(t, as.RecordUpdate(&log, nil, ranges, scratch))
	update := log.builds[1][0]
	require.Equal(t, hal.BuildModeUpdate, update.Mode)
	require.Equal(t, as.Handle(), update.Src)
	require.Equal(t, as.Handle(), update.Dst)

	err := as.Build(nil, ranges, HostScratch(sizes.BuildScratchSize), hal.NullHandle)
	require.True(t, vkerr.Is(err, vkerr.WrongBuildType))

	small := scratch
	small.Size = sizes.BuildScratchSize - 1
	require.True(t, vkerr.Is(as.RecordBuild(&log, nil, ranges, small), vkerr.ValidationError))
	require.True(t, vkerr.Is(as.RecordBuild(&log, nil, nil, scratch), vkerr.ValidationError))
	require.Len(t, log.builds, 2)

	require.NoError(t, scratchBuffer.Destroy())
	require.NoError(t, as.Destroy())
	require.Zero(t, dev.Live(hal.ObjectTypeAccelerationStructure))
	require.Zero(t, dev.Live(hal.ObjectTypeBuffer))
}

func TestAccelerationStructureHostBuild(t *testing.T) {
	dev, factory, _ := readyFactory(t, accelerationExtensions...)

	as := bottomLevel(t, factory, hal.BuildTypeHost)
	require.Zero(t, as.DeviceAddress())

	ranges := []hal.AccelerationStructureBuildRangeInfo{{PrimitiveCount: 1}}
	require.NoError(t, as.Build(nil, ranges, HostScratch(as.Sizes().BuildScratchSize), hal.NullHandle))
	require.NoError(t, as.Update(nil, ranges, HostScratch(as.Sizes().UpdateScratchSize), hal.NullHandle))

	builds := dev.HostBuilds()
	require.Len(t, builds, 2)
	require.Equal(t, hal.BuildModeBuild, builds[0].Infos[0].Mode)
	require.True(t, builds[0].Infos[0].Src.IsNull())
	require.Equal(t, hal.BuildModeUpdate, builds[1].Infos[0].Mode)
	require.Equal(t, as.Handle(), builds[1].Infos[0].Src)

	var log asLog
	scratchBuffer, scratch := deviceScratch(t, factory, as.Sizes().BuildScratchSize)
	require.True(t, vkerr.Is(as.RecordBuild(&log, nil, ranges, scratch), vkerr.WrongBuildType))
	require.Empty(t, log.builds)

	require.NoError(t, scratchBuffer.Destroy())
	require.NoError(t, as.Destroy())
	require.Zero(t, dev.Live(hal.ObjectTypeAccelerationStructure))
	require.Zero(t, dev.Live(hal.ObjectTypeBuffer))
}

func TestAccelerationStructureCopyModes(t *testing.T) {
	dev, factory, _ := readyFactory(t, accelerationExtensions...)

	src := bottomLevel(t, factory, hal.BuildTypeHost)
	dst := bottomLevel(t, factory, hal.BuildTypeHost)

	serialized := make([]byte, 4096)
	address := hal.DeviceOrHostAddress{HostAddress: unsafe.Pointer(&serialized[0])}

	require.NoError(t, src.Copy(CopyTarget{Mode: hal.CopyModeClone, Structure: dst}, hal.NullHandle))
	require.NoError(t, src.Copy(CopyTarget{Mode: hal.CopyModeSerialize, Address: address}, hal.NullHandle))
	require.NoError(t, dst.Copy(CopyTarget{Mode: hal.CopyModeDeserialize, Address: address}, hal.NullHandle))

	// Compaction was not requested at creation
	err := src.Copy(CopyTarget{Mode: hal.CopyModeCompact, Structure: dst}, hal.NullHandle)
	require.True(t, vkerr.Is(err, vkerr.ValidationError))

	copies := dev.HostCopies()
	require.Len(t, copies, 3)
	require.Equal(t, hal.CopyAccelerationStructureInfo{Src: src.Handle(), Dst: dst.Handle(), Mode: hal.CopyModeClone}, copies[0])
	require.Equal(t, hal.CopyAccelerationStructureInfo{Src: src.Handle(), DstAddress: address, Mode: hal.CopyModeSerialize}, copies[1])
	require.Equal(t, hal.CopyAccelerationStructureInfo{SrcAddress: address, Dst: dst.Handle(), Mode: hal.CopyModeDeserialize}, copies[2])

	var log asLog
	require.True(t, vkerr.Is(src.RecordCopy(&log, CopyTarget{Mode: hal.CopyModeClone, Structure: dst}), vkerr.WrongBuildType))

	require.NoError(t, src.Destroy())
	require.NoError(t, dst.Destroy())
}

func TestSerializationHeader(t *testing.T) {
	_, factory, _ := readyFactory(t, accelerationExtensions...)

	header := factory.NewSerializationHeader(4096, 2048, 0xdead, 0xbeef)
	data, err := header.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, SerializationHeaderSize+16)

	var decoded SerializationHeader
	require.NoError(t, decoded.UnmarshalBinary(data))
	require.Equal(t, header, decoded)
	require.NoError(t, factory.CheckCompatibility(data))

	require.True(t, vkerr.Is(decoded.UnmarshalBinary(data[:SerializationHeaderSize+8]), vkerr.ValidationError))
	require.True(t, vkerr.Is(decoded.UnmarshalBinary(data[:10]), vkerr.ValidationError))

	foreign := header
	foreign.CompatibilityUUID = uuid.MustParse("11111111-2222-3333-4444-555555555555")
	data, err = foreign.MarshalBinary()
	require.NoError(t, err)
	require.True(t, vkerr.Is(factory.CheckCompatibility(data), vkerr.IncompatibleDriver))
}

func TestSerializationHeaderWithoutExtension(t *testing.T) {
	dev, factory, _ := readyFactory(t)

	header := SerializationHeader{
		DriverUUID:        dev.PhysicalDevice().DriverUUID,
		CompatibilityUUID: dev.PhysicalDevice().DriverUUID,
	}
	data, err := header.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, factory.CheckCompatibility(data))

	header.CompatibilityUUID = uuid.Nil
	data, err = header.MarshalBinary()
	require.NoError(t, err)
	require.True(t, vkerr.Is(factory.CheckCompatibility(data), vkerr.IncompatibleDriver))
}
