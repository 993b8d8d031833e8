package hal

import "fmt"

// Handle is an opaque driver handle. Dispatchable handles are pointers on the driver side and
// non-dispatchable handles are 64-bit values, but both fit in a Handle. The zero value is the null
// handle.
type Handle uint64

// NullHandle is the handle value the driver uses for "no object"
const NullHandle Handle = 0

// IsNull returns true if this is the null handle
func (h Handle) IsNull() bool { return h == NullHandle }

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uint64(h))
}

// ObjectType identifies the kind of driver object behind a Handle. Values match the driver's
// object type enumeration so they can be passed straight through to debug-utils.
type ObjectType int32

const (
	ObjectTypeUnknown                  ObjectType = 0
	ObjectTypeInstance                 ObjectType = 1
	ObjectTypePhysicalDevice           ObjectType = 2
	ObjectTypeDevice                   ObjectType = 3
	ObjectTypeQueue                    ObjectType = 4
	ObjectTypeSemaphore                ObjectType = 5
	ObjectTypeCommandBuffer            ObjectType = 6
	ObjectTypeFence                    ObjectType = 7
	ObjectTypeDeviceMemory             ObjectType = 8
	ObjectTypeBuffer                   ObjectType = 9
	ObjectTypeImage                    ObjectType = 10
	ObjectTypeEvent                    ObjectType = 11
	ObjectTypeQueryPool                ObjectType = 12
	ObjectTypeBufferView               ObjectType = 13
	ObjectTypeImageView                ObjectType = 14
	ObjectTypeShaderModule             ObjectType = 15
	ObjectTypePipelineCache            ObjectType = 16
	ObjectTypePipelineLayout           ObjectType = 17
	ObjectTypeRenderPass               ObjectType = 18
	ObjectTypePipeline                 ObjectType = 19
	ObjectTypeDescriptorSetLayout      ObjectType = 20
	ObjectTypeSampler                  ObjectType = 21
	ObjectTypeDescriptorPool           ObjectType = 22
	ObjectTypeDescriptorSet            ObjectType = 23
	ObjectTypeFramebuffer              ObjectType = 24
	ObjectTypeCommandPool              ObjectType = 25
	ObjectTypeSurface                  ObjectType = 1000000000
	ObjectTypeSwapchain                ObjectType = 1000001000
	ObjectTypeDisplay                  ObjectType = 1000002000
	ObjectTypeDisplayMode              ObjectType = 1000002001
	ObjectTypeDebugReportCallback      ObjectType = 1000011000
	ObjectTypeDescriptorUpdateTemplate ObjectType = 1000085000
	ObjectTypeDebugUtilsMessenger      ObjectType = 1000128000
	ObjectTypeAccelerationStructure    ObjectType = 1000150000
	ObjectTypeSamplerYcbcrConversion   ObjectType = 1000156000
	ObjectTypeValidationCache          ObjectType = 1000160000
	ObjectTypeDeferredOperation        ObjectType = 1000268000
	ObjectTypeIndirectCommandsLayout   ObjectType = 1000277000
)

var objectTypeMapping = map[ObjectType]string{
	ObjectTypeUnknown:                  "Unknown",
	ObjectTypeInstance:                 "Instance",
	ObjectTypePhysicalDevice:           "PhysicalDevice",
	ObjectTypeDevice:                   "Device",
	ObjectTypeQueue:                    "Queue",
	ObjectTypeSemaphore:                "Semaphore",
	ObjectTypeCommandBuffer:            "CommandBuffer",
	ObjectTypeFence:                    "Fence",
	ObjectTypeDeviceMemory:             "DeviceMemory",
	ObjectTypeBuffer:                   "Buffer",
	ObjectTypeImage:                    "Image",
	ObjectTypeEvent:                    "Event",
	ObjectTypeQueryPool:                "QueryPool",
	ObjectTypeBufferView:               "BufferView",
	ObjectTypeImageView:                "ImageView",
	ObjectTypeShaderModule:             "ShaderModule",
	ObjectTypePipelineCache:            "PipelineCache",
	ObjectTypePipelineLayout:           "PipelineLayout",
	ObjectTypeRenderPass:               "RenderPass",
	ObjectTypePipeline:                 "Pipeline",
	ObjectTypeDescriptorSetLayout:      "DescriptorSetLayout",
	ObjectTypeSampler:                  "Sampler",
	ObjectTypeDescriptorPool:           "DescriptorPool",
	ObjectTypeDescriptorSet:            "DescriptorSet",
	ObjectTypeFramebuffer:              "Framebuffer",
	ObjectTypeCommandPool:              "CommandPool",
	ObjectTypeSurface:                  "Surface",
	ObjectTypeSwapchain:                "Swapchain",
	ObjectTypeDisplay:                  "Display",
	ObjectTypeDisplayMode:              "DisplayMode",
	ObjectTypeDebugReportCallback:      "DebugReportCallback",
	ObjectTypeDescriptorUpdateTemplate: "DescriptorUpdateTemplate",
	ObjectTypeDebugUtilsMessenger:      "DebugUtilsMessenger",
	ObjectTypeAccelerationStructure:    "AccelerationStructure",
	ObjectTypeSamplerYcbcrConversion:   "SamplerYcbcrConversion",
	ObjectTypeValidationCache:          "ValidationCache",
	ObjectTypeDeferredOperation:        "DeferredOperation",
	ObjectTypeIndirectCommandsLayout:   "IndirectCommandsLayout",
}

func (t ObjectType) String() string {
	str, ok := objectTypeMapping[t]
	if !ok {
		return fmt.Sprintf("ObjectType(%d)", int32(t))
	}
	return str
}

// IsValid returns true if the object type is a member of the closed object type enumeration
func (t ObjectType) IsValid() bool {
	_, ok := objectTypeMapping[t]
	return ok
}

// Dispatchable returns true for object types whose handles are dispatchable (pointer-sized
// driver objects that carry their own dispatch table)
func (t ObjectType) Dispatchable() bool {
	switch t {
	case ObjectTypeInstance, ObjectTypePhysicalDevice, ObjectTypeDevice, ObjectTypeQueue, ObjectTypeCommandBuffer:
		return true
	}

	return false
}

// Object is a driver handle tagged with its object type. It is comparable and can be used as a map key.
type Object struct {
	Type   ObjectType
	Handle Handle
}

// NewObject tags a handle with an object type
func NewObject(objectType ObjectType, handle Handle) Object {
	return Object{Type: objectType, Handle: handle}
}

// IsNull returns true if the tagged handle is the null handle
func (o Object) IsNull() bool { return o.Handle.IsNull() }

func (o Object) String() string {
	return fmt.Sprintf("%s(%s)", o.Type, o.Handle)
}
