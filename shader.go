package rhi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/resource"
)

// Shader is a lazily compiled WGSL shader module. Changing its source
// recompiles it on the next Think.
type Shader struct {
	e     *Engine
	h     *resource.Handle
	label string

	native backend.Handle
	built  uint64 // generation of the source compiled into native

	mu     sync.Mutex
	source string
	gen    uint64
}

// NewShader creates a shader from WGSL source.
func (e *Engine) NewShader(label, wgsl string) (*Shader, error) {
	if e == nil {
		return nil, ErrNilEngine
	}
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if wgsl == "" {
		return nil, fmt.Errorf("%w: shader %q has no source", backend.ErrInvalidDescriptor, label)
	}
	s := &Shader{e: e, label: label, source: wgsl, gen: 1}
	s.h = resource.NewHandle(e.manager, label, resource.Lifecycle{
		Initialize: s.initialize,
		Update:     s.update,
		Release:    s.release,
	})
	return s, nil
}

func (s *Shader) snapshot() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source, s.gen
}

func (s *Shader) compile() error {
	src, gen := s.snapshot()
	h, err := s.e.driver.CreateShader(&backend.ShaderDesc{Label: s.label, WGSL: src})
	if err != nil {
		return fmt.Errorf("rhi: create shader %q: %w", s.label, err)
	}
	s.native, s.built = h, gen
	return s.e.check("create shader")
}

func (s *Shader) initialize() error { return s.compile() }

// update recompiles if the source changed since the last compile. A failed
// recompile keeps the previous module.
func (s *Shader) update() error {
	if _, gen := s.snapshot(); gen == s.built {
		return nil
	}
	old := s.native
	err := s.compile()
	if s.native != old {
		s.e.driver.DestroyShader(old)
		err = errors.Join(err, s.e.check("destroy shader"))
	}
	return err
}

func (s *Shader) release() error {
	if s.native == backend.InvalidHandle {
		return nil
	}
	s.e.driver.DestroyShader(s.native)
	s.native = backend.InvalidHandle
	return s.e.check("destroy shader")
}

// Name returns the shader label.
func (s *Shader) Name() string { return s.label }

// Source returns the current WGSL source.
func (s *Shader) Source() string {
	src, _ := s.snapshot()
	return src
}

// SetSource replaces the WGSL source and schedules a recompile.
func (s *Shader) SetSource(wgsl string) error {
	if wgsl == "" {
		return fmt.Errorf("%w: shader %q has no source", backend.ErrInvalidDescriptor, s.label)
	}
	s.mu.Lock()
	if wgsl == s.source {
		s.mu.Unlock()
		return nil
	}
	s.source = wgsl
	s.gen++
	s.mu.Unlock()
	s.h.Invalidate()
	return nil
}

// Native returns the driver handle. Render goroutine only.
func (s *Shader) Native() backend.Handle { return s.native }

// Handle returns the lifecycle handle.
func (s *Shader) Handle() *resource.Handle { return s.h }

// State returns the lifecycle state.
func (s *Shader) State() resource.State { return s.h.State() }

// EnsureReady compiles the shader immediately. Render goroutine only.
func (s *Shader) EnsureReady() bool { return s.h.EnsureReady() }

// Dispose releases the shader on the next Think. It is idempotent.
func (s *Shader) Dispose() { s.h.Dispose() }
