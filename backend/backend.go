package backend

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Common driver errors.
var (
	// ErrNotAvailable is returned when a requested driver is not registered
	// or cannot open a device.
	ErrNotAvailable = errors.New("backend: not available")

	// ErrInvalidHandle is returned for a handle the driver does not own.
	ErrInvalidHandle = errors.New("backend: invalid handle")

	// ErrInvalidDescriptor is returned for zero sizes, out-of-limit sizes
	// or missing attachments.
	ErrInvalidDescriptor = errors.New("backend: invalid descriptor")

	// ErrUnsupportedFormat is returned when no native format is close enough.
	ErrUnsupportedFormat = errors.New("backend: unsupported format")

	// ErrClosed is returned by a driver after Close.
	ErrClosed = errors.New("backend: driver closed")
)

// Handle is an opaque driver object handle. The zero Handle is invalid.
type Handle uint64

// InvalidHandle is never returned by a successful create call.
const InvalidHandle Handle = 0

// Limits are the device limits the engine validates descriptors against.
type Limits struct {
	MaxTextureDimension2D uint32
	MaxBufferSize         uint64
	MaxVertexAttributes   uint32
	MaxColorAttachments   uint32
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Label     string
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
}

// BufferDesc describes a linear buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// ShaderDesc describes a shader module in WGSL.
type ShaderDesc struct {
	Label string
	WGSL  string
}

// FramebufferDesc describes a render target built from textures.
// Depth may be InvalidHandle.
type FramebufferDesc struct {
	Label  string
	Color  []Handle
	Depth  Handle
	Width  uint32
	Height uint32
}

// Fence is a GPU synchronization point armed by Driver.Submit.
type Fence interface {
	// Signaled reports whether the GPU has passed the fence.
	// It never blocks.
	Signaled() (bool, error)

	// Destroy releases the fence. Destroy is called exactly once.
	Destroy()
}

// Driver creates and destroys GPU objects on behalf of the engine.
//
// Every method except Name and Limits must be called from the render
// goroutine. Create methods return InvalidHandle with a non-nil error on
// failure; destroy methods ignore unknown handles but record them for
// ErrorCheck.
type Driver interface {
	// Name returns the driver identifier (e.g. "null", "native").
	Name() string

	// Limits returns the device limits.
	Limits() Limits

	// ClosestFormat maps a portable format to the nearest one the device
	// supports, or TextureFormatUndefined if none is usable.
	ClosestFormat(f gputypes.TextureFormat) gputypes.TextureFormat

	CreateTexture(desc *TextureDesc) (Handle, error)
	WriteTexture(h Handle, mipLevel uint32, data []byte) error
	DestroyTexture(h Handle)

	CreateBuffer(desc *BufferDesc) (Handle, error)
	WriteBuffer(h Handle, offset uint64, data []byte) error
	DestroyBuffer(h Handle)

	CreateShader(desc *ShaderDesc) (Handle, error)
	DestroyShader(h Handle)

	CreateFramebuffer(desc *FramebufferDesc) (Handle, error)
	BindFramebuffer(h Handle) error
	DestroyFramebuffer(h Handle)

	// Submit flushes pending writes and returns a fence that signals
	// once the GPU has consumed them.
	Submit() (Fence, error)

	// ErrorCheck returns and clears the first error recorded since the
	// last call, or nil.
	ErrorCheck() error

	// Close releases the device. Objects still alive are leaked.
	Close() error
}
