package vam

import "github.com/vkngwrapper/armory/hal"

// suballocationType is what a block's granularity tracker needs to know about the resource that
// occupies a suballocation
type suballocationType uint32

const (
	suballocationFree suballocationType = iota
	suballocationUnknown
	suballocationBuffer
	suballocationImageUnknown
	suballocationImageLinear
	suballocationImageOptimal
)

var suballocationTypeMapping = map[suballocationType]string{
	suballocationFree:         "Free",
	suballocationUnknown:      "Unknown",
	suballocationBuffer:       "Buffer",
	suballocationImageUnknown: "ImageUnknown",
	suballocationImageLinear:  "ImageLinear",
	suballocationImageOptimal: "ImageOptimal",
}

func (s suballocationType) String() string {
	str, ok := suballocationTypeMapping[s]
	if !ok {
		return "unknown suballocationType"
	}

	return str
}

func suballocationTypeFor(object hal.Object, tiling hal.ImageTiling) suballocationType {
	switch object.Type {
	case hal.ObjectTypeBuffer:
		return suballocationBuffer
	case hal.ObjectTypeImage:
		if tiling == hal.ImageTilingLinear {
			return suballocationImageLinear
		}
		return suballocationImageOptimal
	}

	return suballocationUnknown
}
