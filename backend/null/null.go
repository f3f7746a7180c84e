// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package null provides a headless in-memory driver.
//
// The null driver keeps every object in memory and validates handles the
// way a real device would, which makes it the driver of choice for tests,
// servers and tools. Importing the package registers it as "null".
package null

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/backend"
)

func init() {
	backend.Register(backend.NameNull, func() (backend.Driver, error) {
		return New(Options{}), nil
	})
}

// DefaultLimits are used when Options.Limits is zero.
var DefaultLimits = backend.Limits{
	MaxTextureDimension2D: 8192,
	MaxBufferSize:         256 << 20,
	MaxVertexAttributes:   16,
	MaxColorAttachments:   8,
}

// Options configures a null driver.
type Options struct {
	// Limits reported by the driver. Zero means DefaultLimits.
	Limits backend.Limits

	// FenceLatency is how many Signaled calls return false before a fence
	// signals. Zero signals on the first poll.
	FenceLatency int

	// Fail, if set, is consulted before every create and write; a non-nil
	// result fails the call. op is "texture", "buffer", "shader",
	// "framebuffer", "write" or "submit".
	Fail func(op, label string) error
}

type kind uint8

const (
	kindTexture kind = iota + 1
	kindBuffer
	kindShader
	kindFramebuffer
)

func (k kind) String() string {
	switch k {
	case kindTexture:
		return "texture"
	case kindBuffer:
		return "buffer"
	case kindShader:
		return "shader"
	case kindFramebuffer:
		return "framebuffer"
	default:
		return "object"
	}
}

// object is one live driver object.
type object struct {
	kind  kind
	label string
	tex   backend.TextureDesc
	data  []byte
	src   string
	fb    backend.FramebufferDesc
}

// Stats counts live objects and traffic.
type Stats struct {
	Textures     int
	Buffers      int
	Shaders      int
	Framebuffers int
	Fences       int

	Writes       int
	BytesWritten int
	Submits      int
}

// Live returns the number of live objects of every kind, fences included.
func (s Stats) Live() int {
	return s.Textures + s.Buffers + s.Shaders + s.Framebuffers + s.Fences
}

// Driver is the null driver. It is safe for concurrent use, although the
// engine only calls it from the render goroutine.
type Driver struct {
	mu      sync.Mutex
	opts    Options
	objects map[backend.Handle]*object
	next    backend.Handle
	bound   backend.Handle
	pending int
	stats   Stats
	err     error
	closed  bool
}

var _ backend.Driver = (*Driver)(nil)

// New creates a null driver.
func New(opts Options) *Driver {
	if opts.Limits == (backend.Limits{}) {
		opts.Limits = DefaultLimits
	}
	return &Driver{
		opts:    opts,
		objects: make(map[backend.Handle]*object),
		next:    1,
	}
}

// Name returns "null".
func (d *Driver) Name() string { return backend.NameNull }

// Limits returns the configured limits.
func (d *Driver) Limits() backend.Limits { return d.opts.Limits }

// ClosestFormat keeps the formats it can store and widens the rest to RGBA8.
func (d *Driver) ClosestFormat(f gputypes.TextureFormat) gputypes.TextureFormat {
	switch {
	case f == gputypes.TextureFormatUndefined:
		return gputypes.TextureFormatUndefined
	case backend.BytesPerPixel(f) > 0:
		return f
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// record keeps the first error until ErrorCheck. d.mu must be held.
func (d *Driver) record(err error) error {
	if d.err == nil {
		d.err = err
	}
	return err
}

// fail runs the injected failure hook. d.mu must be held.
func (d *Driver) fail(op, label string) error {
	if d.closed {
		return backend.ErrClosed
	}
	if d.opts.Fail != nil {
		return d.opts.Fail(op, label)
	}
	return nil
}

// add stores o and returns its handle. d.mu must be held.
func (d *Driver) add(o *object) backend.Handle {
	h := d.next
	d.next++
	d.objects[h] = o
	d.count(o.kind, 1)
	return h
}

func (d *Driver) count(k kind, n int) {
	switch k {
	case kindTexture:
		d.stats.Textures += n
	case kindBuffer:
		d.stats.Buffers += n
	case kindShader:
		d.stats.Shaders += n
	case kindFramebuffer:
		d.stats.Framebuffers += n
	}
}

// get returns the live object h of kind k. d.mu must be held.
func (d *Driver) get(h backend.Handle, k kind) (*object, error) {
	o, ok := d.objects[h]
	if !ok || o.kind != k {
		return nil, d.record(fmt.Errorf("%w: %v %d", backend.ErrInvalidHandle, k, h))
	}
	return o, nil
}

func (d *Driver) destroy(h backend.Handle, k kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.get(h, k); err != nil {
		return
	}
	if d.bound == h {
		d.bound = backend.InvalidHandle
	}
	delete(d.objects, h)
	d.count(k, -1)
}

// CreateTexture allocates zeroed storage for desc.
func (d *Driver) CreateTexture(desc *backend.TextureDesc) (backend.Handle, error) {
	if err := backend.ValidateTexture(desc, d.opts.Limits); err != nil {
		return backend.InvalidHandle, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("texture", desc.Label); err != nil {
		return backend.InvalidHandle, err
	}
	size := int(desc.Width) * int(desc.Height) * backend.BytesPerPixel(desc.Format)
	return d.add(&object{
		kind:  kindTexture,
		label: desc.Label,
		tex:   *desc,
		data:  make([]byte, size),
	}), nil
}

// WriteTexture replaces level 0 of h. Other mip levels are accepted and
// discarded.
func (d *Driver) WriteTexture(h backend.Handle, mipLevel uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.get(h, kindTexture)
	if err != nil {
		return err
	}
	if err := d.fail("write", o.label); err != nil {
		return err
	}
	if mipLevel == 0 {
		if len(data) != len(o.data) {
			return d.record(fmt.Errorf("%w: texture %q wants %d bytes, got %d",
				backend.ErrInvalidDescriptor, o.label, len(o.data), len(data)))
		}
		copy(o.data, data)
	}
	d.wrote(len(data))
	return nil
}

func (d *Driver) wrote(n int) {
	d.pending++
	d.stats.Writes++
	d.stats.BytesWritten += n
}

// DestroyTexture frees h.
func (d *Driver) DestroyTexture(h backend.Handle) { d.destroy(h, kindTexture) }

// CreateBuffer allocates zeroed storage for desc.
func (d *Driver) CreateBuffer(desc *backend.BufferDesc) (backend.Handle, error) {
	if err := backend.ValidateBuffer(desc, d.opts.Limits); err != nil {
		return backend.InvalidHandle, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("buffer", desc.Label); err != nil {
		return backend.InvalidHandle, err
	}
	return d.add(&object{
		kind:  kindBuffer,
		label: desc.Label,
		data:  make([]byte, desc.Size),
	}), nil
}

// WriteBuffer copies data into h at offset.
func (d *Driver) WriteBuffer(h backend.Handle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, err := d.get(h, kindBuffer)
	if err != nil {
		return err
	}
	if err := d.fail("write", o.label); err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(o.data)) {
		return d.record(fmt.Errorf("%w: buffer %q write [%d:%d] past %d bytes",
			backend.ErrInvalidDescriptor, o.label, offset, offset+uint64(len(data)), len(o.data)))
	}
	copy(o.data[offset:], data)
	d.wrote(len(data))
	return nil
}

// DestroyBuffer frees h.
func (d *Driver) DestroyBuffer(h backend.Handle) { d.destroy(h, kindBuffer) }

// CreateShader stores the source of desc.
func (d *Driver) CreateShader(desc *backend.ShaderDesc) (backend.Handle, error) {
	if desc == nil || desc.WGSL == "" {
		return backend.InvalidHandle, fmt.Errorf("%w: empty shader source", backend.ErrInvalidDescriptor)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("shader", desc.Label); err != nil {
		return backend.InvalidHandle, err
	}
	return d.add(&object{kind: kindShader, label: desc.Label, src: desc.WGSL}), nil
}

// DestroyShader frees h.
func (d *Driver) DestroyShader(h backend.Handle) { d.destroy(h, kindShader) }

// CreateFramebuffer checks that every attachment is a live texture of the
// right size.
func (d *Driver) CreateFramebuffer(desc *backend.FramebufferDesc) (backend.Handle, error) {
	if err := backend.ValidateFramebuffer(desc, d.opts.Limits); err != nil {
		return backend.InvalidHandle, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("framebuffer", desc.Label); err != nil {
		return backend.InvalidHandle, err
	}
	attachments := append([]backend.Handle(nil), desc.Color...)
	if desc.Depth != backend.InvalidHandle {
		attachments = append(attachments, desc.Depth)
	}
	for _, h := range attachments {
		o, err := d.get(h, kindTexture)
		if err != nil {
			return backend.InvalidHandle, err
		}
		if o.tex.Width != desc.Width || o.tex.Height != desc.Height {
			return backend.InvalidHandle, fmt.Errorf("%w: attachment %q is %dx%d, framebuffer %q is %dx%d",
				backend.ErrInvalidDescriptor, o.label, o.tex.Width, o.tex.Height, desc.Label, desc.Width, desc.Height)
		}
	}
	fb := *desc
	fb.Color = attachments[:len(desc.Color)]
	return d.add(&object{kind: kindFramebuffer, label: desc.Label, fb: fb}), nil
}

// BindFramebuffer makes h the current render target. InvalidHandle binds
// the default target.
func (d *Driver) BindFramebuffer(h backend.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h != backend.InvalidHandle {
		if _, err := d.get(h, kindFramebuffer); err != nil {
			return err
		}
	}
	d.bound = h
	return nil
}

// DestroyFramebuffer frees h.
func (d *Driver) DestroyFramebuffer(h backend.Handle) { d.destroy(h, kindFramebuffer) }

// Submit returns a fence for every write since the previous Submit.
func (d *Driver) Submit() (backend.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("submit", ""); err != nil {
		return nil, err
	}
	d.pending = 0
	d.stats.Submits++
	d.stats.Fences++
	f := &fence{d: d, remaining: d.opts.FenceLatency}
	return f, nil
}

// ErrorCheck returns and clears the first recorded error.
func (d *Driver) ErrorCheck() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.err
	d.err = nil
	return err
}

// Close marks the driver closed. Objects still alive are reported.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	d.closed = true
	if n := len(d.objects); n > 0 {
		return fmt.Errorf("null: closed with %d live objects", n)
	}
	return nil
}

// Stats returns a snapshot of live object counts and traffic.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Pending returns the number of writes not yet covered by a fence.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Bound returns the current render target.
func (d *Driver) Bound() backend.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bound
}

// TextureData returns a copy of level 0 of texture h.
func (d *Driver) TextureData(h backend.Handle) ([]byte, bool) {
	return d.data(h, kindTexture)
}

// BufferData returns a copy of buffer h.
func (d *Driver) BufferData(h backend.Handle) ([]byte, bool) {
	return d.data(h, kindBuffer)
}

func (d *Driver) data(h backend.Handle, k kind) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[h]
	if !ok || o.kind != k {
		return nil, false
	}
	return append([]byte(nil), o.data...), true
}

// ShaderSource returns the WGSL source of shader h.
func (d *Driver) ShaderSource(h backend.Handle) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[h]
	if !ok || o.kind != kindShader {
		return "", false
	}
	return o.src, true
}

// errFenceDestroyed is reported when a destroyed fence is polled or
// destroyed again.
var errFenceDestroyed = errors.New("null: fence already destroyed")

// fence signals after a fixed number of polls.
type fence struct {
	d         *Driver
	mu        sync.Mutex
	remaining int
	destroyed bool
}

func (f *fence) Signaled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return false, errFenceDestroyed
	}
	if f.remaining > 0 {
		f.remaining--
		return false, nil
	}
	return true, nil
}

func (f *fence) Destroy() {
	f.mu.Lock()
	again := f.destroyed
	f.destroyed = true
	f.mu.Unlock()

	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if again {
		f.d.record(errFenceDestroyed)
		return
	}
	f.d.stats.Fences--
}
