// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package native

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/backend"
)

// fenceValue is the value every submission signals. Each Submit gets its
// own fence, so a single value is enough.
const fenceValue = 1

// fence wraps a hal.Fence armed by one queue submission.
type fence struct {
	device    hal.Device
	f         hal.Fence
	signaled  atomic.Bool
	destroyed atomic.Bool
}

// Submit flushes queued writes and arms a fence behind them.
func (d *Driver) Submit() (backend.Fence, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	f, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create fence: %w", err)
	}
	if err := d.queue.Submit(nil, f, fenceValue); err != nil {
		d.device.DestroyFence(f)
		return nil, fmt.Errorf("native: submit: %w", err)
	}
	return &fence{device: d.device, f: f}, nil
}

// Signaled polls the fence without blocking.
func (f *fence) Signaled() (bool, error) {
	if f.destroyed.Load() {
		return false, fmt.Errorf("%w: fence destroyed", backend.ErrInvalidHandle)
	}
	if f.signaled.Load() {
		return true, nil
	}
	ok, err := f.device.Wait(f.f, fenceValue, 0)
	if err != nil {
		return false, fmt.Errorf("native: poll fence: %w", err)
	}
	if ok {
		f.signaled.Store(true)
	}
	return ok, nil
}

// Destroy releases the HAL fence once.
func (f *fence) Destroy() {
	if f.destroyed.CompareAndSwap(false, true) {
		f.device.DestroyFence(f.f)
	}
}
