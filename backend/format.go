package backend

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BytesPerPixel returns the texel size of the formats the engine uploads
// from the CPU, or 0 for formats it cannot.
func BytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatDepth24PlusStencil8:
		return 4
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 0
	}
}

// IsDepth reports whether f is a depth/stencil format.
func IsDepth(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8
}

// ValidateTexture checks desc against lim.
func ValidateTexture(desc *TextureDesc, lim Limits) error {
	if desc == nil {
		return fmt.Errorf("%w: nil texture descriptor", ErrInvalidDescriptor)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("%w: texture %q is %dx%d", ErrInvalidDescriptor, desc.Label, desc.Width, desc.Height)
	}
	if lim.MaxTextureDimension2D > 0 && max(desc.Width, desc.Height) > lim.MaxTextureDimension2D {
		return fmt.Errorf("%w: texture %q exceeds %d texels", ErrInvalidDescriptor, desc.Label, lim.MaxTextureDimension2D)
	}
	if BytesPerPixel(desc.Format) == 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, desc.Format)
	}
	return nil
}

// ValidateBuffer checks desc against lim.
func ValidateBuffer(desc *BufferDesc, lim Limits) error {
	if desc == nil {
		return fmt.Errorf("%w: nil buffer descriptor", ErrInvalidDescriptor)
	}
	if desc.Size == 0 {
		return fmt.Errorf("%w: buffer %q has zero size", ErrInvalidDescriptor, desc.Label)
	}
	if lim.MaxBufferSize > 0 && desc.Size > lim.MaxBufferSize {
		return fmt.Errorf("%w: buffer %q is %d bytes, max %d", ErrInvalidDescriptor, desc.Label, desc.Size, lim.MaxBufferSize)
	}
	return nil
}

// ValidateFramebuffer checks desc against lim.
func ValidateFramebuffer(desc *FramebufferDesc, lim Limits) error {
	if desc == nil {
		return fmt.Errorf("%w: nil framebuffer descriptor", ErrInvalidDescriptor)
	}
	if len(desc.Color) == 0 && desc.Depth == InvalidHandle {
		return fmt.Errorf("%w: framebuffer %q has no attachments", ErrInvalidDescriptor, desc.Label)
	}
	if lim.MaxColorAttachments > 0 && uint32(len(desc.Color)) > lim.MaxColorAttachments {
		return fmt.Errorf("%w: framebuffer %q has %d color attachments, max %d",
			ErrInvalidDescriptor, desc.Label, len(desc.Color), lim.MaxColorAttachments)
	}
	for i, h := range desc.Color {
		if h == InvalidHandle {
			return fmt.Errorf("%w: framebuffer %q color %d", ErrInvalidHandle, desc.Label, i)
		}
	}
	return nil
}
