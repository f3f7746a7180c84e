package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/resource"
)

// Framebuffer is a render target built from textures. Its driver object is
// created only after every attachment is initialized.
//
// A framebuffer does not own its attachments; disposing it leaves them
// alive.
type Framebuffer struct {
	e     *Engine
	h     *resource.Handle
	label string
	color []*Texture
	depth *Texture

	width, height uint32

	native backend.Handle
}

// NewFramebuffer creates a framebuffer from color attachments and an
// optional depth attachment. All attachments must have the same size.
func (e *Engine) NewFramebuffer(label string, color []*Texture, depth *Texture) (*Framebuffer, error) {
	if e == nil {
		return nil, ErrNilEngine
	}
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if len(color) == 0 && depth == nil {
		return nil, fmt.Errorf("%w: framebuffer %q has no attachments", backend.ErrInvalidDescriptor, label)
	}
	all := append([]*Texture(nil), color...)
	if depth != nil {
		if !backend.IsDepth(depth.desc.Format) {
			return nil, fmt.Errorf("%w: framebuffer %q depth attachment %q is %v",
				backend.ErrInvalidDescriptor, label, depth.Name(), depth.desc.Format)
		}
		all = append(all, depth)
	}
	for _, t := range all {
		if t == nil {
			return nil, fmt.Errorf("%w: framebuffer %q", ErrNilTexture, label)
		}
	}
	w, h := all[0].desc.Width, all[0].desc.Height
	for _, t := range all[1:] {
		if t.desc.Width != w || t.desc.Height != h {
			return nil, fmt.Errorf("%w: framebuffer %q attachment %q is %dx%d, want %dx%d",
				backend.ErrInvalidDescriptor, label, t.Name(), t.desc.Width, t.desc.Height, w, h)
		}
	}
	if lim := e.driver.Limits().MaxColorAttachments; lim > 0 && uint32(len(color)) > lim {
		return nil, fmt.Errorf("%w: framebuffer %q has %d color attachments, max %d",
			backend.ErrInvalidDescriptor, label, len(color), lim)
	}

	f := &Framebuffer{
		e:      e,
		label:  label,
		color:  append([]*Texture(nil), color...),
		depth:  depth,
		width:  w,
		height: h,
	}
	f.h = resource.NewHandle(e.manager, label, resource.Lifecycle{
		Initialize: f.initialize,
		Release:    f.release,
	})
	return f, nil
}

func (f *Framebuffer) initialize() error {
	desc := backend.FramebufferDesc{Label: f.label, Width: f.width, Height: f.height}
	for _, t := range f.color {
		if !t.EnsureReady() {
			return fmt.Errorf("%w: framebuffer %q attachment %q", ErrNotReady, f.label, t.Name())
		}
		desc.Color = append(desc.Color, t.native)
	}
	if f.depth != nil {
		if !f.depth.EnsureReady() {
			return fmt.Errorf("%w: framebuffer %q depth %q", ErrNotReady, f.label, f.depth.Name())
		}
		desc.Depth = f.depth.native
	}
	h, err := f.e.driver.CreateFramebuffer(&desc)
	if err != nil {
		return fmt.Errorf("rhi: create framebuffer %q: %w", f.label, err)
	}
	f.native = h
	return f.e.check("create framebuffer")
}

func (f *Framebuffer) release() error {
	if f.native == backend.InvalidHandle {
		return nil
	}
	f.e.driver.DestroyFramebuffer(f.native)
	f.native = backend.InvalidHandle
	return f.e.check("destroy framebuffer")
}

// Name returns the framebuffer label.
func (f *Framebuffer) Name() string { return f.label }

// Size returns the framebuffer size in pixels.
func (f *Framebuffer) Size() (width, height int) { return int(f.width), int(f.height) }

// Native returns the driver handle. Render goroutine only.
func (f *Framebuffer) Native() backend.Handle { return f.native }

// Handle returns the lifecycle handle.
func (f *Framebuffer) Handle() *resource.Handle { return f.h }

// State returns the lifecycle state.
func (f *Framebuffer) State() resource.State { return f.h.State() }

// EnsureReady creates the framebuffer and its attachments immediately.
// Render goroutine only.
func (f *Framebuffer) EnsureReady() bool { return f.h.EnsureReady() }

// Dispose releases the framebuffer on the next Think. It is idempotent.
func (f *Framebuffer) Dispose() { f.h.Dispose() }

// Bind makes f the current render target, creating it first if needed.
// Render goroutine only.
func (f *Framebuffer) Bind() error {
	if !f.h.EnsureReady() {
		if err := f.h.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: framebuffer %q", ErrNotReady, f.label)
	}
	if err := f.e.driver.BindFramebuffer(f.native); err != nil {
		return fmt.Errorf("rhi: bind framebuffer %q: %w", f.label, err)
	}
	return f.e.check("bind framebuffer")
}

// Unbind restores the default render target. Render goroutine only.
func (e *Engine) Unbind() error {
	if err := e.driver.BindFramebuffer(backend.InvalidHandle); err != nil {
		return fmt.Errorf("rhi: unbind framebuffer: %w", err)
	}
	return e.check("unbind framebuffer")
}
