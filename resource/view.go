package resource

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/vkerr"
)

// ImageView is a view over a range of an Image
type ImageView struct {
	factory *Factory
	handle  hal.Handle
	image   *Image
	info    hal.ImageViewCreateInfo
}

var _ Resource = (*ImageView)(nil)

// CreateImageView creates a view of image. A zero Format uses the image's format and a zero
// SubresourceRange covers the whole image.
func (f *Factory) CreateImageView(image *Image, viewType hal.ImageViewType, format hal.Format, subresources hal.ImageSubresourceRange) (*ImageView, error) {
	if image == nil || image.handle.IsNull() {
		return nil, vkerr.New(vkerr.ValidationError, "attempted to create a view of an image that has been destroyed")
	}
	if format == hal.FormatUndefined {
		format = image.info.Format
	}
	if subresources == (hal.ImageSubresourceRange{}) {
		subresources = image.FullRange()
	}

	info := hal.ImageViewCreateInfo{
		Image:            image.handle,
		ViewType:         viewType,
		Format:           format,
		SubresourceRange: image.layouts.Resolve(subresources),
	}
	handle, res := f.device.CreateImageView(info, nil)
	err := vkerr.FromResultf(res, "failed to create a view of image %q", image.info.Name)
	if err != nil {
		return nil, err
	}

	view := &ImageView{factory: f, handle: handle, image: image, info: info}
	f.track(view.Object(), image.info.Name)
	return view, nil
}

func (v *ImageView) Handle() hal.Handle { return v.handle }

func (v *ImageView) Object() hal.Object { return hal.NewObject(hal.ObjectTypeImageView, v.handle) }

func (v *ImageView) Image() *Image { return v.image }

func (v *ImageView) Format() hal.Format { return v.info.Format }

func (v *ImageView) Range() hal.ImageSubresourceRange { return v.info.SubresourceRange }

func (v *ImageView) Destroy() error {
	v.factory.destroy(v.Object())
	v.handle = hal.NullHandle
	return nil
}

// Sampler wraps a driver sampler
type Sampler struct {
	factory *Factory
	handle  hal.Handle
	info    hal.SamplerCreateInfo
}

var _ Resource = (*Sampler)(nil)

func (f *Factory) CreateSampler(info hal.SamplerCreateInfo) (*Sampler, error) {
	if info.AnisotropyEnable && info.MaxAnisotropy < 1 {
		return nil, vkerr.New(vkerr.ValidationError, "anisotropic filtering requires a max anisotropy of at least 1, but was %g", info.MaxAnisotropy)
	}
	if info.MaxLod < info.MinLod {
		return nil, vkerr.New(vkerr.ValidationError, "sampler max lod %g is below min lod %g", info.MaxLod, info.MinLod)
	}

	handle, res := f.device.CreateSampler(info, nil)
	err := vkerr.FromResultf(res, "failed to create sampler")
	if err != nil {
		return nil, err
	}

	sampler := &Sampler{factory: f, handle: handle, info: info}
	f.track(sampler.Object(), "")
	return sampler, nil
}

func (s *Sampler) Handle() hal.Handle { return s.handle }

func (s *Sampler) Object() hal.Object { return hal.NewObject(hal.ObjectTypeSampler, s.handle) }

func (s *Sampler) Info() hal.SamplerCreateInfo { return s.info }

func (s *Sampler) Destroy() error {
	s.factory.destroy(s.Object())
	s.handle = hal.NullHandle
	return nil
}

// FramebufferCreateInfo describes a framebuffer. Framebuffers with Attachments bind those views;
// imageless framebuffers leave Attachments empty and describe each attachment in
// AttachmentImageInfos instead, receiving views when the render pass begins.
type FramebufferCreateInfo struct {
	RenderPass           hal.Handle
	Attachments          []*ImageView
	AttachmentImageInfos []hal.FramebufferAttachmentImageInfo
	Width                int
	Height               int
	Layers               int
	Name                 string
}

// Framebuffer wraps a driver framebuffer
type Framebuffer struct {
	factory   *Factory
	handle    hal.Handle
	imageless bool
	info      FramebufferCreateInfo
}

var _ Resource = (*Framebuffer)(nil)

func (f *Factory) CreateFramebuffer(info FramebufferCreateInfo) (*Framebuffer, error) {
	if info.Layers == 0 {
		info.Layers = 1
	}
	if info.Width < 1 || info.Height < 1 {
		return nil, vkerr.New(vkerr.ValidationError, "framebuffer %q extent %dx%d must be positive", info.Name, info.Width, info.Height)
	}

	driverInfo := hal.FramebufferCreateInfo{
		RenderPass: info.RenderPass,
		Width:      info.Width,
		Height:     info.Height,
		Layers:     info.Layers,
	}

	imageless := len(info.Attachments) == 0 && len(info.AttachmentImageInfos) > 0
	if imageless {
		if !f.extensions.ImagelessFramebuffer {
			return nil, vkerr.New(vkerr.ExtensionUnsupported, "imageless framebuffers require %s", hal.ExtImagelessFramebuffer)
		}
		driverInfo.Flags = hal.FramebufferCreateImageless
		driverInfo.AttachmentImageInfos = info.AttachmentImageInfos
	} else {
		for i, view := range info.Attachments {
			if view == nil || view.handle.IsNull() {
				return nil, vkerr.New(vkerr.ValidationError, "attachment %d of framebuffer %q has been destroyed", i, info.Name)
			}
			driverInfo.Attachments = append(driverInfo.Attachments, view.handle)
		}
	}

	handle, res := f.device.CreateFramebuffer(driverInfo, nil)
	err := vkerr.FromResultf(res, "failed to create framebuffer %q", info.Name)
	if err != nil {
		return nil, err
	}

	framebuffer := &Framebuffer{factory: f, handle: handle, imageless: imageless, info: info}
	f.track(framebuffer.Object(), info.Name)
	return framebuffer, nil
}

func (f *Framebuffer) Handle() hal.Handle { return f.handle }

func (f *Framebuffer) Object() hal.Object { return hal.NewObject(hal.ObjectTypeFramebuffer, f.handle) }

// Imageless returns true if the framebuffer receives its attachments when a render pass begins
func (f *Framebuffer) Imageless() bool { return f.imageless }

func (f *Framebuffer) Width() int { return f.info.Width }

func (f *Framebuffer) Height() int { return f.info.Height }

func (f *Framebuffer) Layers() int { return f.info.Layers }

func (f *Framebuffer) Destroy() error {
	f.factory.destroy(f.Object())
	f.handle = hal.NullHandle
	return nil
}
