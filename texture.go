package rhi

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/job"
	"github.com/gogpu/rhi/resource"
)

// DefaultTextureUsage is used when a TextureDesc leaves Usage empty.
const DefaultTextureUsage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst

// Texture is a lazily created 2D texture with optional CPU-side pixels.
type Texture struct {
	e    *Engine
	h    *resource.Handle
	desc backend.TextureDesc

	// native and format are only touched on the render goroutine.
	native backend.Handle
	format gputypes.TextureFormat

	mu     sync.Mutex
	pixels []byte
}

// NewTexture creates a texture. The driver object is created on the next
// Think; pixels, if not nil, are uploaded right after. The engine takes
// ownership of pixels.
func (e *Engine) NewTexture(desc backend.TextureDesc, pixels []byte) (*Texture, error) {
	if e == nil {
		return nil, ErrNilEngine
	}
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.Usage == 0 {
		desc.Usage = DefaultTextureUsage
	}
	if err := backend.ValidateTexture(&desc, e.driver.Limits()); err != nil {
		return nil, err
	}
	t := &Texture{e: e, desc: desc}
	if err := t.checkSize(pixels); err != nil {
		return nil, err
	}
	t.pixels = pixels
	t.h = resource.NewHandle(e.manager, desc.Label, resource.Lifecycle{
		Initialize: t.initialize,
		Update:     t.update,
		Release:    t.release,
	})
	return t, nil
}

// Size returns the number of bytes of one full mip level 0 upload.
func (t *Texture) Size() int {
	return int(t.desc.Width) * int(t.desc.Height) * backend.BytesPerPixel(t.desc.Format)
}

func (t *Texture) checkSize(pixels []byte) error {
	if pixels != nil && len(pixels) != t.Size() {
		return fmt.Errorf("%w: texture %q wants %d bytes, got %d", ErrDataSize, t.desc.Label, t.Size(), len(pixels))
	}
	return nil
}

func (t *Texture) initialize() error {
	format := t.e.driver.ClosestFormat(t.desc.Format)
	if format == gputypes.TextureFormatUndefined ||
		(format != t.desc.Format && !swizzles(t.desc.Format, format)) {
		return fmt.Errorf("%w: %v for texture %q", backend.ErrUnsupportedFormat, t.desc.Format, t.desc.Label)
	}
	desc := t.desc
	desc.Format = format
	h, err := t.e.driver.CreateTexture(&desc)
	if err != nil {
		return fmt.Errorf("rhi: create texture %q: %w", t.desc.Label, err)
	}
	t.native, t.format = h, format
	return t.e.check("create texture")
}

func (t *Texture) update() error {
	t.mu.Lock()
	pixels := t.pixels
	t.mu.Unlock()
	if pixels == nil {
		return nil
	}
	return t.write(pixels)
}

// write uploads level 0 converting to the native format. Render goroutine
// only.
func (t *Texture) write(pixels []byte) error {
	if t.format != t.desc.Format {
		pixels = swizzleRB(pixels)
	}
	if err := t.e.driver.WriteTexture(t.native, 0, pixels); err != nil {
		return fmt.Errorf("rhi: write texture %q: %w", t.desc.Label, err)
	}
	return nil
}

func (t *Texture) release() error {
	if t.native == backend.InvalidHandle {
		return nil
	}
	t.e.driver.DestroyTexture(t.native)
	t.native = backend.InvalidHandle
	return t.e.check("destroy texture")
}

// Name returns the texture label.
func (t *Texture) Name() string { return t.desc.Label }

// Width returns the width in texels.
func (t *Texture) Width() int { return int(t.desc.Width) }

// Height returns the height in texels.
func (t *Texture) Height() int { return int(t.desc.Height) }

// Desc returns the descriptor the texture was created with.
func (t *Texture) Desc() backend.TextureDesc { return t.desc }

// Format returns the native format, or TextureFormatUndefined before the
// texture is initialized. Render goroutine only.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Native returns the driver handle, or InvalidHandle before the texture is
// initialized. Render goroutine only.
func (t *Texture) Native() backend.Handle { return t.native }

// Handle returns the lifecycle handle.
func (t *Texture) Handle() *resource.Handle { return t.h }

// State returns the lifecycle state.
func (t *Texture) State() resource.State { return t.h.State() }

// EnsureReady creates and uploads the texture immediately. Render goroutine
// only.
func (t *Texture) EnsureReady() bool { return t.h.EnsureReady() }

// Dispose releases the texture on the next Think. It is idempotent.
func (t *Texture) Dispose() { t.h.Dispose() }

// Pixels returns the CPU-side pixels last set, or nil.
func (t *Texture) Pixels() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pixels
}

// SetPixels replaces the CPU-side pixels and schedules an upload. The
// engine takes ownership of pixels.
func (t *Texture) SetPixels(pixels []byte) error {
	if pixels == nil {
		return fmt.Errorf("%w: texture %q: nil pixels", ErrDataSize, t.desc.Label)
	}
	if err := t.checkSize(pixels); err != nil {
		return err
	}
	t.mu.Lock()
	t.pixels = pixels
	t.mu.Unlock()
	t.h.Invalidate()
	return nil
}

// UploadAsync copies pixels into staging memory on the engine's worker
// pool and writes them to the texture once the copy is done. The returned
// job is already started; it finishes after the GPU confirms the write.
// Cancelling ctx before the copy completes skips the write.
//
// The CPU-side pixels of t are not changed. The caller must not modify
// pixels until the job finishes.
func (t *Texture) UploadAsync(ctx context.Context, pixels []byte) (*job.Job, error) {
	if err := t.checkSize(pixels); err != nil {
		return nil, err
	}
	if pixels == nil {
		return nil, fmt.Errorf("%w: texture %q: nil pixels", ErrDataSize, t.desc.Label)
	}
	j := job.New(ctx, "upload "+t.desc.Label, &job.Upload{
		Driver: t.e.driver,
		Src:    pixels,
		Write: func(_ backend.Driver, data []byte) error {
			if !t.h.EnsureReady() {
				return fmt.Errorf("%w: texture %q", ErrNotReady, t.desc.Label)
			}
			return t.write(data)
		},
	})
	if err := t.e.StartJob(j); err != nil {
		return nil, err
	}
	return j, nil
}

// swizzles reports whether from and to differ only in red/blue order.
func swizzles(from, to gputypes.TextureFormat) bool {
	rgba, bgra := gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm
	return (from == rgba && to == bgra) || (from == bgra && to == rgba)
}

// swizzleRB returns a copy of 4-byte pixels with bytes 0 and 2 swapped.
func swizzleRB(p []byte) []byte {
	out := make([]byte, len(p))
	for i := 0; i+3 < len(p); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = p[i+2], p[i+1], p[i], p[i+3]
	}
	return out
}
