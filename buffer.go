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

// DefaultBufferUsage is used when a BufferDesc leaves Usage empty.
const DefaultBufferUsage = gputypes.BufferUsageCopyDst | gputypes.BufferUsageStorage

type bufferWrite struct {
	offset uint64
	data   []byte
}

// Buffer is a lazily created linear GPU buffer. Writes made before the
// buffer exists, or between two ticks, are applied in order on the next
// update.
type Buffer struct {
	e    *Engine
	h    *resource.Handle
	desc backend.BufferDesc

	native backend.Handle

	mu      sync.Mutex
	pending []bufferWrite
}

// NewBuffer creates a buffer. data, if not nil, is written at offset 0
// right after creation.
func (e *Engine) NewBuffer(desc backend.BufferDesc, data []byte) (*Buffer, error) {
	if e == nil {
		return nil, ErrNilEngine
	}
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if desc.Usage == 0 {
		desc.Usage = DefaultBufferUsage
	}
	if err := backend.ValidateBuffer(&desc, e.driver.Limits()); err != nil {
		return nil, err
	}
	b := &Buffer{e: e, desc: desc}
	if data != nil {
		if err := b.checkRange(0, data); err != nil {
			return nil, err
		}
		b.pending = []bufferWrite{{0, data}}
	}
	b.h = resource.NewHandle(e.manager, desc.Label, resource.Lifecycle{
		Initialize: b.initialize,
		Update:     b.update,
		Release:    b.release,
	})
	return b, nil
}

func (b *Buffer) checkRange(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("%w: buffer %q write [%d:%d] past %d bytes",
			ErrDataSize, b.desc.Label, offset, offset+uint64(len(data)), b.desc.Size)
	}
	return nil
}

func (b *Buffer) initialize() error {
	h, err := b.e.driver.CreateBuffer(&b.desc)
	if err != nil {
		return fmt.Errorf("rhi: create buffer %q: %w", b.desc.Label, err)
	}
	b.native = h
	return b.e.check("create buffer")
}

func (b *Buffer) update() error {
	b.mu.Lock()
	writes := b.pending
	b.pending = nil
	b.mu.Unlock()
	for _, w := range writes {
		if err := b.e.driver.WriteBuffer(b.native, w.offset, w.data); err != nil {
			return fmt.Errorf("rhi: write buffer %q: %w", b.desc.Label, err)
		}
	}
	return nil
}

func (b *Buffer) release() error {
	if b.native == backend.InvalidHandle {
		return nil
	}
	b.e.driver.DestroyBuffer(b.native)
	b.native = backend.InvalidHandle
	return b.e.check("destroy buffer")
}

// Name returns the buffer label.
func (b *Buffer) Name() string { return b.desc.Label }

// Size returns the size in bytes.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Native returns the driver handle. Render goroutine only.
func (b *Buffer) Native() backend.Handle { return b.native }

// Handle returns the lifecycle handle.
func (b *Buffer) Handle() *resource.Handle { return b.h }

// State returns the lifecycle state.
func (b *Buffer) State() resource.State { return b.h.State() }

// EnsureReady creates the buffer and applies pending writes immediately.
// Render goroutine only.
func (b *Buffer) EnsureReady() bool { return b.h.EnsureReady() }

// Dispose releases the buffer on the next Think. It is idempotent.
func (b *Buffer) Dispose() { b.h.Dispose() }

// SetData schedules a write of data at offset. The engine takes ownership
// of data.
func (b *Buffer) SetData(offset uint64, data []byte) error {
	if err := b.checkRange(offset, data); err != nil {
		return err
	}
	b.mu.Lock()
	b.pending = append(b.pending, bufferWrite{offset, data})
	b.mu.Unlock()
	b.h.Invalidate()
	return nil
}

// UploadAsync stages data on the engine's worker pool and writes it at
// offset once staged. See Texture.UploadAsync.
func (b *Buffer) UploadAsync(ctx context.Context, offset uint64, data []byte) (*job.Job, error) {
	if err := b.checkRange(offset, data); err != nil {
		return nil, err
	}
	j := job.New(ctx, "upload "+b.desc.Label, &job.Upload{
		Driver: b.e.driver,
		Src:    data,
		Write: func(d backend.Driver, staged []byte) error {
			if !b.h.EnsureReady() {
				return fmt.Errorf("%w: buffer %q", ErrNotReady, b.desc.Label)
			}
			return d.WriteBuffer(b.native, offset, staged)
		},
	})
	if err := b.e.StartJob(j); err != nil {
		return nil, err
	}
	return j, nil
}
