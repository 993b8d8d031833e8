package hal

import "fmt"

// Format is the driver's texel format enumeration
type Format int32

const (
	FormatUndefined          Format = 0
	FormatR8Unorm            Format = 9
	FormatR8G8Unorm          Format = 16
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR16Sfloat          Format = 76
	FormatR16G16Sfloat       Format = 83
	FormatR16G16B16A16Sfloat Format = 97
	FormatR32Uint            Format = 98
	FormatR32Sfloat          Format = 100
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD16Unorm           Format = 124
	FormatD32Sfloat          Format = 126
	FormatS8Uint             Format = 127
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
	FormatBC1RGBUnorm        Format = 131
	FormatBC1RGBSrgb         Format = 132
	FormatBC1RGBAUnorm       Format = 133
	FormatBC1RGBASrgb        Format = 134
	FormatBC2Unorm           Format = 135
	FormatBC2Srgb            Format = 136
	FormatBC3Unorm           Format = 137
	FormatBC3Srgb            Format = 138
	FormatBC4Unorm           Format = 139
	FormatBC4Snorm           Format = 140
	FormatBC5Unorm           Format = 141
	FormatBC5Snorm           Format = 142
	FormatBC6HUfloat         Format = 143
	FormatBC6HSfloat         Format = 144
	FormatBC7Unorm           Format = 145
	FormatBC7Srgb            Format = 146
	FormatETC2R8G8B8Unorm    Format = 147
	FormatETC2R8G8B8A8Unorm  Format = 151
	FormatASTC4x4Unorm       Format = 157
	FormatASTC8x8Unorm       Format = 171
)

// TexelBlock describes the storage footprint of one texel block of a format. Uncompressed
// formats have a 1x1x1 block.
type TexelBlock struct {
	Width  int
	Height int
	Depth  int
	Bytes  int
}

// Compressed returns true if the block covers more than one texel
func (b TexelBlock) Compressed() bool {
	return b.Width > 1 || b.Height > 1 || b.Depth > 1
}

var formatBlocks = map[Format]TexelBlock{
	FormatR8Unorm:            {1, 1, 1, 1},
	FormatR8G8Unorm:          {1, 1, 1, 2},
	FormatR8G8B8A8Unorm:      {1, 1, 1, 4},
	FormatR8G8B8A8Srgb:       {1, 1, 1, 4},
	FormatB8G8R8A8Unorm:      {1, 1, 1, 4},
	FormatB8G8R8A8Srgb:       {1, 1, 1, 4},
	FormatR16Sfloat:          {1, 1, 1, 2},
	FormatR16G16Sfloat:       {1, 1, 1, 4},
	FormatR16G16B16A16Sfloat: {1, 1, 1, 8},
	FormatR32Uint:            {1, 1, 1, 4},
	FormatR32Sfloat:          {1, 1, 1, 4},
	FormatR32G32Sfloat:       {1, 1, 1, 8},
	FormatR32G32B32Sfloat:    {1, 1, 1, 12},
	FormatR32G32B32A32Sfloat: {1, 1, 1, 16},
	FormatD16Unorm:           {1, 1, 1, 2},
	FormatD32Sfloat:          {1, 1, 1, 4},
	FormatS8Uint:             {1, 1, 1, 1},
	FormatD24UnormS8Uint:     {1, 1, 1, 4},
	FormatD32SfloatS8Uint:    {1, 1, 1, 8},
	FormatBC1RGBUnorm:        {4, 4, 1, 8},
	FormatBC1RGBSrgb:         {4, 4, 1, 8},
	FormatBC1RGBAUnorm:       {4, 4, 1, 8},
	FormatBC1RGBASrgb:        {4, 4, 1, 8},
	FormatBC2Unorm:           {4, 4, 1, 16},
	FormatBC2Srgb:            {4, 4, 1, 16},
	FormatBC3Unorm:           {4, 4, 1, 16},
	FormatBC3Srgb:            {4, 4, 1, 16},
	FormatBC4Unorm:           {4, 4, 1, 8},
	FormatBC4Snorm:           {4, 4, 1, 8},
	FormatBC5Unorm:           {4, 4, 1, 16},
	FormatBC5Snorm:           {4, 4, 1, 16},
	FormatBC6HUfloat:         {4, 4, 1, 16},
	FormatBC6HSfloat:         {4, 4, 1, 16},
	FormatBC7Unorm:           {4, 4, 1, 16},
	FormatBC7Srgb:            {4, 4, 1, 16},
	FormatETC2R8G8B8Unorm:    {4, 4, 1, 8},
	FormatETC2R8G8B8A8Unorm:  {4, 4, 1, 16},
	FormatASTC4x4Unorm:       {4, 4, 1, 16},
	FormatASTC8x8Unorm:       {8, 8, 1, 16},
}

// Block returns the texel block of the format, and false if the format is not in the table
func (f Format) Block() (TexelBlock, bool) {
	block, ok := formatBlocks[f]
	return block, ok
}

// Compressed returns true for block-compressed formats
func (f Format) Compressed() bool {
	block, ok := formatBlocks[f]
	return ok && block.Compressed()
}

// Aspects returns the image aspects a format carries
func (f Format) Aspects() ImageAspectFlags {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat:
		return ImageAspectDepth
	case FormatS8Uint:
		return ImageAspectStencil
	case FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return ImageAspectDepth | ImageAspectStencil
	}

	return ImageAspectColor
}

func (f Format) String() string {
	return fmt.Sprintf("Format(%d)", int32(f))
}
