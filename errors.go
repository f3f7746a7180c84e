package rhi

import "errors"

// Engine errors.
var (
	// ErrNilEngine is returned when a resource is created without an engine.
	ErrNilEngine = errors.New("rhi: nil engine")

	// ErrNilDriver is returned when no driver was given and none could be
	// opened.
	ErrNilDriver = errors.New("rhi: no driver")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("rhi: engine closed")

	// ErrNotReady is returned when a resource could not be initialized in
	// time for an operation that needs its driver object.
	ErrNotReady = errors.New("rhi: resource not ready")

	// ErrDataSize is returned when CPU data does not match the resource size.
	ErrDataSize = errors.New("rhi: data size mismatch")

	// ErrNilTexture is returned for a missing framebuffer attachment.
	ErrNilTexture = errors.New("rhi: nil texture")

	// ErrUnknownBackend is returned by Config.Validate for a backend name
	// that is not registered.
	ErrUnknownBackend = errors.New("rhi: unknown backend")
)
