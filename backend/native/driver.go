// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

// Package native provides a driver backed by the WebGPU HAL of gogpu/wgpu.
//
// Importing the package registers it as "native". The registered factory
// opens a standalone Vulkan device; use FromProvider to share a device
// owned by the host application instead.
package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/backend"
)

func init() {
	backend.Register(backend.NameNative, func() (backend.Driver, error) {
		return Open()
	})
}

type texture struct {
	tex  hal.Texture
	view hal.TextureView
	desc backend.TextureDesc
}

type buffer struct {
	buf  hal.Buffer
	size uint64
}

type framebuffer struct {
	desc backend.FramebufferDesc
}

// Driver implements backend.Driver on a hal.Device and hal.Queue.
//
// Thread Safety: Driver is safe for concurrent use. Handle tables are
// guarded by a mutex; HAL calls happen outside it where possible.
type Driver struct {
	mu sync.Mutex

	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	external bool

	limits  backend.Limits
	surface gputypes.TextureFormat

	next         backend.Handle
	textures     map[backend.Handle]*texture
	buffers      map[backend.Handle]*buffer
	shaders      map[backend.Handle]hal.ShaderModule
	framebuffers map[backend.Handle]*framebuffer
	bound        backend.Handle

	err    error
	closed bool
}

var _ backend.Driver = (*Driver)(nil)

// newDriver wraps device and queue. limits may be nil for defaults.
func newDriver(device hal.Device, queue hal.Queue, limits *gputypes.Limits) *Driver {
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}
	return &Driver{
		device: device,
		queue:  queue,
		limits: backend.Limits{
			MaxTextureDimension2D: lim.MaxTextureDimension2D,
			MaxBufferSize:         lim.MaxBufferSize,
			MaxVertexAttributes:   lim.MaxVertexAttributes,
			MaxColorAttachments:   lim.MaxColorAttachments,
		},
		surface:      gputypes.TextureFormatBGRA8Unorm,
		next:         1,
		textures:     make(map[backend.Handle]*texture),
		buffers:      make(map[backend.Handle]*buffer),
		shaders:      make(map[backend.Handle]hal.ShaderModule),
		framebuffers: make(map[backend.Handle]*framebuffer),
	}
}

// Name returns "native".
func (d *Driver) Name() string { return backend.NameNative }

// Limits returns the device limits.
func (d *Driver) Limits() backend.Limits { return d.limits }

// ClosestFormat prefers the host surface format for 4-byte color formats
// so that uploads to presentable targets need no swizzle.
func (d *Driver) ClosestFormat(f gputypes.TextureFormat) gputypes.TextureFormat {
	switch f {
	case gputypes.TextureFormatUndefined:
		return gputypes.TextureFormatUndefined
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return f
	default:
		if d.surface != gputypes.TextureFormatUndefined {
			return d.surface
		}
		return gputypes.TextureFormatRGBA8Unorm
	}
}

func (d *Driver) record(err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
	return err
}

func (d *Driver) alloc() backend.Handle {
	h := d.next
	d.next++
	return h
}

func (d *Driver) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	return nil
}

// CreateTexture creates a 2D texture and its default view.
func (d *Driver) CreateTexture(desc *backend.TextureDesc) (backend.Handle, error) {
	if err := backend.ValidateTexture(desc, d.limits); err != nil {
		return backend.InvalidHandle, err
	}
	if err := d.checkOpen(); err != nil {
		return backend.InvalidHandle, err
	}
	mips := max(desc.MipLevels, 1)
	usage := desc.Usage
	if usage == 0 {
		usage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         usage,
	})
	if err != nil {
		return backend.InvalidHandle, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: desc.Label})
	if err != nil {
		d.device.DestroyTexture(tex)
		return backend.InvalidHandle, fmt.Errorf("native: create view %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	stored := *desc
	stored.MipLevels = mips
	d.textures[h] = &texture{tex: tex, view: view, desc: stored}
	return h, nil
}

// WriteTexture queues a full-level write. The data must be tightly packed.
func (d *Driver) WriteTexture(h backend.Handle, mipLevel uint32, data []byte) error {
	d.mu.Lock()
	t, ok := d.textures[h]
	d.mu.Unlock()
	if !ok {
		return d.record(fmt.Errorf("%w: texture %d", backend.ErrInvalidHandle, h))
	}
	if mipLevel >= t.desc.MipLevels {
		return d.record(fmt.Errorf("%w: texture %q has %d mip levels", backend.ErrInvalidDescriptor, t.desc.Label, t.desc.MipLevels))
	}
	w := max(t.desc.Width>>mipLevel, 1)
	ht := max(t.desc.Height>>mipLevel, 1)
	bpp := uint32(backend.BytesPerPixel(t.desc.Format))
	if uint64(len(data)) != uint64(w)*uint64(ht)*uint64(bpp) {
		return d.record(fmt.Errorf("%w: texture %q level %d wants %d bytes, got %d",
			backend.ErrInvalidDescriptor, t.desc.Label, mipLevel, w*ht*bpp, len(data)))
	}

	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: mipLevel,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * bpp,
			RowsPerImage: ht,
		},
		&hal.Extent3D{Width: w, Height: ht, DepthOrArrayLayers: 1},
	)
	return nil
}

// DestroyTexture destroys h and its default view.
func (d *Driver) DestroyTexture(h backend.Handle) {
	d.mu.Lock()
	t, ok := d.textures[h]
	delete(d.textures, h)
	d.mu.Unlock()
	if !ok {
		d.record(fmt.Errorf("%w: texture %d", backend.ErrInvalidHandle, h))
		return
	}
	d.device.DestroyTextureView(t.view)
	d.device.DestroyTexture(t.tex)
}

// CreateBuffer creates a buffer.
func (d *Driver) CreateBuffer(desc *backend.BufferDesc) (backend.Handle, error) {
	if err := backend.ValidateBuffer(desc, d.limits); err != nil {
		return backend.InvalidHandle, err
	}
	if err := d.checkOpen(); err != nil {
		return backend.InvalidHandle, err
	}
	usage := desc.Usage | gputypes.BufferUsageCopyDst
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: usage,
	})
	if err != nil {
		return backend.InvalidHandle, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.buffers[h] = &buffer{buf: buf, size: desc.Size}
	return h, nil
}

// WriteBuffer queues a write of data at offset.
func (d *Driver) WriteBuffer(h backend.Handle, offset uint64, data []byte) error {
	d.mu.Lock()
	b, ok := d.buffers[h]
	d.mu.Unlock()
	if !ok {
		return d.record(fmt.Errorf("%w: buffer %d", backend.ErrInvalidHandle, h))
	}
	if offset+uint64(len(data)) > b.size {
		return d.record(fmt.Errorf("%w: buffer write [%d:%d] past %d bytes",
			backend.ErrInvalidDescriptor, offset, offset+uint64(len(data)), b.size))
	}
	if len(data) > 0 {
		d.queue.WriteBuffer(b.buf, offset, data)
	}
	return nil
}

// DestroyBuffer destroys h.
func (d *Driver) DestroyBuffer(h backend.Handle) {
	d.mu.Lock()
	b, ok := d.buffers[h]
	delete(d.buffers, h)
	d.mu.Unlock()
	if !ok {
		d.record(fmt.Errorf("%w: buffer %d", backend.ErrInvalidHandle, h))
		return
	}
	d.device.DestroyBuffer(b.buf)
}

// CreateShader compiles desc.WGSL to SPIR-V and creates a shader module.
func (d *Driver) CreateShader(desc *backend.ShaderDesc) (backend.Handle, error) {
	if desc == nil || desc.WGSL == "" {
		return backend.InvalidHandle, fmt.Errorf("%w: empty shader source", backend.ErrInvalidDescriptor)
	}
	if err := d.checkOpen(); err != nil {
		return backend.InvalidHandle, err
	}
	spirv, err := CompileWGSL(desc.WGSL)
	if err != nil {
		return backend.InvalidHandle, fmt.Errorf("native: shader %q: %w", desc.Label, err)
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return backend.InvalidHandle, fmt.Errorf("native: create shader module %q: %w", desc.Label, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.shaders[h] = module
	return h, nil
}

// DestroyShader destroys h.
func (d *Driver) DestroyShader(h backend.Handle) {
	d.mu.Lock()
	m, ok := d.shaders[h]
	delete(d.shaders, h)
	d.mu.Unlock()
	if !ok {
		d.record(fmt.Errorf("%w: shader %d", backend.ErrInvalidHandle, h))
		return
	}
	d.device.DestroyShaderModule(m)
}

// CreateFramebuffer records a set of attachment views. WebGPU has no
// framebuffer object; the attachments are bound when a render pass begins.
func (d *Driver) CreateFramebuffer(desc *backend.FramebufferDesc) (backend.Handle, error) {
	if err := backend.ValidateFramebuffer(desc, d.limits); err != nil {
		return backend.InvalidHandle, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.InvalidHandle, backend.ErrClosed
	}
	check := func(h backend.Handle) error {
		t, ok := d.textures[h]
		if !ok {
			return fmt.Errorf("%w: attachment %d", backend.ErrInvalidHandle, h)
		}
		if t.desc.Width != desc.Width || t.desc.Height != desc.Height {
			return fmt.Errorf("%w: attachment %q is %dx%d, framebuffer is %dx%d",
				backend.ErrInvalidDescriptor, t.desc.Label, t.desc.Width, t.desc.Height, desc.Width, desc.Height)
		}
		return nil
	}
	for _, h := range desc.Color {
		if err := check(h); err != nil {
			return backend.InvalidHandle, err
		}
	}
	if desc.Depth != backend.InvalidHandle {
		if err := check(desc.Depth); err != nil {
			return backend.InvalidHandle, err
		}
	}
	fb := *desc
	fb.Color = append([]backend.Handle(nil), desc.Color...)
	h := d.alloc()
	d.framebuffers[h] = &framebuffer{desc: fb}
	return h, nil
}

// BindFramebuffer selects the render target for subsequent passes.
func (d *Driver) BindFramebuffer(h backend.Handle) error {
	d.mu.Lock()
	_, ok := d.framebuffers[h]
	if ok || h == backend.InvalidHandle {
		d.bound = h
	}
	d.mu.Unlock()
	if !ok && h != backend.InvalidHandle {
		return d.record(fmt.Errorf("%w: framebuffer %d", backend.ErrInvalidHandle, h))
	}
	return nil
}

// DestroyFramebuffer forgets h. The attachments are not destroyed.
func (d *Driver) DestroyFramebuffer(h backend.Handle) {
	d.mu.Lock()
	_, ok := d.framebuffers[h]
	delete(d.framebuffers, h)
	if d.bound == h {
		d.bound = backend.InvalidHandle
	}
	d.mu.Unlock()
	if !ok {
		d.record(fmt.Errorf("%w: framebuffer %d", backend.ErrInvalidHandle, h))
	}
}

// ErrorCheck returns and clears the first recorded error.
func (d *Driver) ErrorCheck() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.err
	d.err = nil
	return err
}

// Close destroys every object still alive and, for a standalone driver,
// the device and instance.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return backend.ErrClosed
	}
	d.closed = true
	textures, buffers, shaders := d.textures, d.buffers, d.shaders
	d.textures = map[backend.Handle]*texture{}
	d.buffers = map[backend.Handle]*buffer{}
	d.shaders = map[backend.Handle]hal.ShaderModule{}
	d.framebuffers = map[backend.Handle]*framebuffer{}
	d.mu.Unlock()

	leaked := len(textures) + len(buffers) + len(shaders)
	for _, t := range textures {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
	}
	for _, b := range buffers {
		d.device.DestroyBuffer(b.buf)
	}
	for _, m := range shaders {
		d.device.DestroyShaderModule(m)
	}

	if !d.external {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device, d.queue, d.instance = nil, nil, nil

	if leaked > 0 {
		return fmt.Errorf("native: closed with %d live objects", leaked)
	}
	return nil
}
