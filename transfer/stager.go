package transfer

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Stager creates host-visible staging buffers and keeps them until Release, which the caller
// runs once the submissions reading them have completed. It is not safe for concurrent use.
type Stager struct {
	factory *resource.Factory
	staged  []*resource.Buffer
}

func NewStager(factory *resource.Factory) *Stager {
	return &Stager{factory: factory}
}

func (s *Stager) stagingBuffer(size int, name string) (*resource.Buffer, error) {
	buffer, err := s.factory.CreateBuffer(resource.BufferCreateInfo{
		Size:            size,
		Usage:           core1_0.BufferUsageTransferSrc,
		MappingRequired: true,
		Name:            name,
	})
	if err != nil {
		return nil, err
	}

	s.staged = append(s.staged, buffer)
	return buffer, nil
}

// StageBuffer copies data into a new staging buffer
func (s *Stager) StageBuffer(data []byte) (*resource.Buffer, error) {
	if len(data) == 0 {
		return nil, vkerr.New(vkerr.ValidationError, "attempted to stage an empty buffer")
	}

	buffer, err := s.stagingBuffer(len(data), fmt.Sprintf("staging-%d", len(s.staged)))
	if err != nil {
		return nil, err
	}

	return buffer, buffer.Write(0, data)
}

// StageImage packs the contents of an image into a new staging buffer. data holds one slice per
// array layer, each with one entry per mip level of exactly Mip.Size bytes. The returned mips
// are what UploadImage expects.
func (s *Stager) StageImage(format hal.Format, extent core1_0.Extent3D, data [][][]byte) (*resource.Buffer, []Mip, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, nil, vkerr.New(vkerr.ValidationError, "attempted to stage an image with no layers or mips")
	}

	mips, err := MipChain(format, extent, len(data[0]))
	if err != nil {
		return nil, nil, err
	}

	for layer, levels := range data {
		if len(levels) != len(mips) {
			return nil, nil, vkerr.New(vkerr.ValidationError, "layer %d has %d mips, but layer 0 has %d", layer, len(levels), len(mips))
		}
		for level, contents := range levels {
			if len(contents) != mips[level].Size {
				return nil, nil, vkerr.New(vkerr.ValidationError, "mip %d of layer %d is %d bytes, but a %s level of that size is %d", level, layer, len(contents), format, mips[level].Size)
			}
		}
	}

	layerSize := ChainSize(mips)
	buffer, err := s.stagingBuffer(layerSize*len(data), fmt.Sprintf("staging-%d", len(s.staged)))
	if err != nil {
		return nil, nil, err
	}

	for layer, levels := range data {
		for level, contents := range levels {
			err = buffer.Write(layer*layerSize+mips[level].Offset, contents)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	return buffer, mips, nil
}

// Pending returns the number of staging buffers awaiting Release
func (s *Stager) Pending() int {
	return len(s.staged)
}

// Release destroys every staging buffer created since the last Release
func (s *Stager) Release() error {
	var err error
	for _, buffer := range s.staged {
		err = errors.CombineErrors(err, buffer.Destroy())
	}
	s.staged = nil

	return err
}
