package resource

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/vkngwrapper/armory/vkerr"
)

// SerializationHeaderSize is the size of a serialization header with no handles
const SerializationHeaderSize = 16 + 16 + 8 + 8 + 8

// SerializationHeader opens the data produced by serializing an acceleration structure.
// Handles lists the bottom-level structures a serialized top-level structure refers to.
type SerializationHeader struct {
	DriverUUID        uuid.UUID
	CompatibilityUUID uuid.UUID
	SerializedSize    uint64
	DeserializedSize  uint64
	Handles           []uint64
}

// Size returns the encoded size of the header
func (h SerializationHeader) Size() int {
	return SerializationHeaderSize + 8*len(h.Handles)
}

// MarshalBinary encodes the header in the driver's little-endian layout
func (h SerializationHeader) MarshalBinary() ([]byte, error) {
	data := make([]byte, h.Size())

	copy(data[0:16], h.DriverUUID[:])
	copy(data[16:32], h.CompatibilityUUID[:])
	binary.LittleEndian.PutUint64(data[32:40], h.SerializedSize)
	binary.LittleEndian.PutUint64(data[40:48], h.DeserializedSize)
	binary.LittleEndian.PutUint64(data[48:56], uint64(len(h.Handles)))
	for i, handle := range h.Handles {
		binary.LittleEndian.PutUint64(data[SerializationHeaderSize+8*i:], handle)
	}

	return data, nil
}

// UnmarshalBinary decodes a header from the start of serialized data
func (h *SerializationHeader) UnmarshalBinary(data []byte) error {
	if len(data) < SerializationHeaderSize {
		return vkerr.New(vkerr.ValidationError, "serialized acceleration structure data is %d bytes, shorter than its %d byte header", len(data), SerializationHeaderSize)
	}

	copy(h.DriverUUID[:], data[0:16])
	copy(h.CompatibilityUUID[:], data[16:32])
	h.SerializedSize = binary.LittleEndian.Uint64(data[32:40])
	h.DeserializedSize = binary.LittleEndian.Uint64(data[40:48])

	count := binary.LittleEndian.Uint64(data[48:56])
	if count > uint64(len(data)-SerializationHeaderSize)/8 {
		return vkerr.New(vkerr.ValidationError, "serialization header lists %d handles, but only %d bytes follow it", count, len(data)-SerializationHeaderSize)
	}

	h.Handles = make([]uint64, count)
	for i := range h.Handles {
		h.Handles[i] = binary.LittleEndian.Uint64(data[SerializationHeaderSize+8*i:])
	}

	return nil
}

// CheckCompatibility returns an IncompatibleDriver error unless data, which begins with a
// serialization header, can be deserialized on the factory's device
func (f *Factory) CheckCompatibility(data []byte) error {
	var header SerializationHeader
	err := header.UnmarshalBinary(data)
	if err != nil {
		return err
	}

	if f.extensions.GetDeviceAccelerationStructureCompatibility != nil {
		if !f.extensions.GetDeviceAccelerationStructureCompatibility(f.device.Handle(), data[:32]) {
			return vkerr.New(vkerr.IncompatibleDriver, "the device rejected serialized data with compatibility UUID %s", header.CompatibilityUUID)
		}
		return nil
	}

	if header.CompatibilityUUID != f.device.PhysicalDevice().DriverUUID {
		return vkerr.New(vkerr.IncompatibleDriver, "serialized data has compatibility UUID %s, but the device driver is %s", header.CompatibilityUUID, f.device.PhysicalDevice().DriverUUID)
	}
	return nil
}

// NewSerializationHeader returns the header the factory's device would write for a structure
func (f *Factory) NewSerializationHeader(serializedSize, deserializedSize uint64, handles ...uint64) SerializationHeader {
	driver := f.device.PhysicalDevice().DriverUUID
	return SerializationHeader{
		DriverUUID:        driver,
		CompatibilityUUID: driver,
		SerializedSize:    serializedSize,
		DeserializedSize:  deserializedSize,
		Handles:           handles,
	}
}
