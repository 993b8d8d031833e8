package hal

import "github.com/vkngwrapper/core/v2/core1_0"

type BufferCopy struct {
	SrcOffset int
	DstOffset int
	Size      int
}

type BufferImageCopy struct {
	BufferOffset      int
	BufferRowLength   int
	BufferImageHeight int
	ImageSubresource  ImageSubresourceLayers
	ImageOffset       Offset3D
	ImageExtent       core1_0.Extent3D
}

type ImageCopy struct {
	SrcSubresource ImageSubresourceLayers
	SrcOffset      Offset3D
	DstSubresource ImageSubresourceLayers
	DstOffset      Offset3D
	Extent         core1_0.Extent3D
}

type ImageBlit struct {
	SrcSubresource ImageSubresourceLayers
	SrcOffsets     [2]Offset3D
	DstSubresource ImageSubresourceLayers
	DstOffsets     [2]Offset3D
}

type ClearColorValue [4]float32

type ClearDepthStencilValue struct {
	Depth   float32
	Stencil uint32
}

// ClearValue clears a color attachment or a depth-stencil attachment, according to the attachment format
type ClearValue struct {
	Color        ClearColorValue
	DepthStencil ClearDepthStencilValue
}

type MemoryBarrier struct {
	SrcAccessMask AccessFlags
	DstAccessMask AccessFlags
}

type BufferMemoryBarrier struct {
	SrcAccessMask       AccessFlags
	DstAccessMask       AccessFlags
	SrcQueueFamilyIndex int
	DstQueueFamilyIndex int
	Buffer              Handle
	Offset              int
	Size                int
}

type ImageMemoryBarrier struct {
	SrcAccessMask       AccessFlags
	DstAccessMask       AccessFlags
	OldLayout           ImageLayout
	NewLayout           ImageLayout
	SrcQueueFamilyIndex int
	DstQueueFamilyIndex int
	Image               Handle
	SubresourceRange    ImageSubresourceRange
}

type RenderPassBeginInfo struct {
	RenderPass  Handle
	Framebuffer Handle
	RenderArea  Rect2D
	ClearValues []ClearValue

	// Attachments supplies the views of an imageless framebuffer
	Attachments []Handle
}
