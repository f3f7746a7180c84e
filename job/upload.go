// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"sync"

	"github.com/gogpu/rhi/backend"
)

// DefaultChunkSize is the copy granularity between cancellation checks.
const DefaultChunkSize = 64 << 10

var stagingPool = sync.Pool{
	New: func() any { return new([]byte) },
}

// getStaging returns a pooled slice of length n.
func getStaging(n int) *[]byte {
	p := stagingPool.Get().(*[]byte)
	if cap(*p) < n {
		*p = make([]byte, n)
	}
	*p = (*p)[:n]
	return p
}

func putStaging(p *[]byte) {
	if p == nil {
		return
	}
	*p = (*p)[:0]
	stagingPool.Put(p)
}

// CopyChunked copies src into dst in chunks of size chunk, checking ctx
// before each one. It returns ctx.Err() if cancelled mid-copy.
func CopyChunked(ctx context.Context, dst, src []byte, chunk int) error {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	for off := 0; off < len(src); off += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+chunk, len(src))
		copy(dst[off:end], src[off:end])
	}
	return ctx.Err()
}

// WriteFunc writes staged data to the driver.
type WriteFunc func(d backend.Driver, data []byte) error

// Upload copies a source slice into pooled staging memory in the
// background and writes it to the driver on submit.
//
// The source slice is held until the job closes; callers must not modify
// it before then.
type Upload struct {
	Driver    backend.Driver
	Src       []byte
	Write     WriteFunc
	ChunkSize int

	staging *[]byte
}

var _ Releaser = (*Upload)(nil)

// Run copies Src into staging memory.
func (u *Upload) Run(ctx context.Context) error {
	u.staging = getStaging(len(u.Src))
	return CopyChunked(ctx, *u.staging, u.Src, u.ChunkSize)
}

// Submit writes the staged data and arms a fence behind it.
func (u *Upload) Submit() (backend.Fence, error) {
	if err := u.Write(u.Driver, *u.staging); err != nil {
		return nil, err
	}
	return u.Driver.Submit()
}

// Release returns the staging memory to the pool and drops Src.
func (u *Upload) Release() {
	putStaging(u.staging)
	u.staging = nil
	u.Src = nil
}
