package rhi

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/backend/null"
	"github.com/gogpu/rhi/resource"
)

func TestTextureLifecycle(t *testing.T) {
	e, d := newEngine(t)
	tex, err := e.NewTexture(texDesc("brick", 2, 2), rgba(2, 2, 5))
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}
	if tex.State() != resource.StateUninitialized || tex.Native() != backend.InvalidHandle {
		t.Fatalf("texture created eagerly: state %v", tex.State())
	}

	e.Think()
	if tex.State() != resource.StateUpdated {
		t.Fatalf("State = %v, want Updated", tex.State())
	}
	if got, _ := d.TextureData(tex.Native()); !bytes.Equal(got, rgba(2, 2, 5)) {
		t.Errorf("texture data = %v", got)
	}

	if err := tex.SetPixels(rgba(2, 2, 6)); err != nil {
		t.Fatalf("SetPixels: %v", err)
	}
	if err := tex.SetPixels(rgba(2, 2, 7)); err != nil {
		t.Fatalf("SetPixels: %v", err)
	}
	if tex.State() != resource.StateStale {
		t.Errorf("State after SetPixels = %v, want Stale", tex.State())
	}
	if _, upd, _ := e.Manager().Pending(); upd != 1 {
		t.Errorf("pending updates = %d, want 1", upd)
	}
	st := e.Think()
	if st.Resources.Updated != 1 {
		t.Errorf("Updated = %d, want 1", st.Resources.Updated)
	}
	if got, _ := d.TextureData(tex.Native()); !bytes.Equal(got, rgba(2, 2, 7)) {
		t.Error("texture data not refreshed to the last pixels")
	}

	tex.Dispose()
	tex.Dispose()
	if st := e.Think(); st.Resources.Released != 1 {
		t.Errorf("Released = %d, want 1", st.Resources.Released)
	}
	if tex.State() != resource.StateDisposed {
		t.Errorf("State = %v, want Disposed", tex.State())
	}
	if n := d.Stats().Textures; n != 0 {
		t.Errorf("live textures = %d, want 0", n)
	}
}

func TestFailedInitLeavesDriverClean(t *testing.T) {
	fail := errors.New("out of memory")
	for _, debug := range []bool{false, true} {
		t.Run(fmt.Sprintf("debug=%v", debug), func(t *testing.T) {
			d := null.New(null.Options{Fail: func(op, _ string) error {
				switch op {
				case "texture", "buffer", "shader":
					return fail
				}
				return nil
			}})
			e, _ := newEngineWith(t, d, WithDebug(debug))

			tex, _ := e.NewTexture(texDesc("tex", 1, 1), nil)
			buf, _ := e.NewBuffer(backend.BufferDesc{Label: "buf", Size: 4}, nil)
			sh, _ := e.NewShader("sh", "@compute @workgroup_size(1) fn main() {}")
			st := e.Think()

			if st.Resources.Failed != 3 {
				t.Errorf("Failed = %d, want 3", st.Resources.Failed)
			}
			for _, h := range []*resource.Handle{tex.Handle(), buf.Handle(), sh.Handle()} {
				if h.State() != resource.StateDisposed {
					t.Errorf("%s State = %v, want Disposed", h.Name(), h.State())
				}
				if !errors.Is(h.Err(), fail) {
					t.Errorf("%s Err() = %v, want %v", h.Name(), h.Err(), fail)
				}
			}
			if err := d.ErrorCheck(); err != nil {
				t.Errorf("ErrorCheck() = %v, want nil", err)
			}
		})
	}
}

func TestTextureDisposeBeforeThink(t *testing.T) {
	e, d := newEngine(t)
	tex, _ := e.NewTexture(texDesc("never", 1, 1), rgba(1, 1, 1))
	tex.Dispose()
	e.Think()
	if st := d.Stats(); st.Textures != 0 || st.Writes != 0 {
		t.Errorf("driver Stats = %+v, want nothing created", st)
	}
	if tex.State() != resource.StateDisposed {
		t.Errorf("State = %v, want Disposed", tex.State())
	}
}

func TestNewTextureErrors(t *testing.T) {
	e, _ := newEngine(t)
	tests := []struct {
		name   string
		desc   backend.TextureDesc
		pixels []byte
		want   error
	}{
		{"zero size", texDesc("z", 0, 4), nil, backend.ErrInvalidDescriptor},
		{"too large", texDesc("big", 1<<20, 1), nil, backend.ErrInvalidDescriptor},
		{"pixel size", texDesc("p", 2, 2), []byte{1, 2, 3}, ErrDataSize},
		{"format", backend.TextureDesc{Label: "f", Width: 1, Height: 1}, nil, backend.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.NewTexture(tt.desc, tt.pixels); !errors.Is(err, tt.want) {
				t.Errorf("NewTexture error = %v, want %v", err, tt.want)
			}
		})
	}

	var nilEngine *Engine
	if _, err := nilEngine.NewTexture(texDesc("x", 1, 1), nil); !errors.Is(err, ErrNilEngine) {
		t.Errorf("nil engine error = %v, want ErrNilEngine", err)
	}
	tex, _ := e.NewTexture(texDesc("ok", 1, 1), nil)
	if err := tex.SetPixels(nil); !errors.Is(err, ErrDataSize) {
		t.Errorf("SetPixels(nil) error = %v, want ErrDataSize", err)
	}
}

// bgraDriver prefers BGRA storage for RGBA textures.
type bgraDriver struct{ *null.Driver }

func (bgraDriver) ClosestFormat(gputypes.TextureFormat) gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}

func TestTextureFormatConversion(t *testing.T) {
	d := null.New(null.Options{})
	e, err := NewEngine(WithDriver(bgraDriver{d}), WithDebug(true))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	tex, _ := e.NewTexture(texDesc("swz", 1, 1), []byte{1, 2, 3, 4})
	e.Think()
	if tex.Format() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Format = %v, want BGRA8Unorm", tex.Format())
	}
	if got, _ := d.TextureData(tex.Native()); !bytes.Equal(got, []byte{3, 2, 1, 4}) {
		t.Errorf("stored pixels = %v, want [3 2 1 4]", got)
	}
	if got := tex.Pixels(); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("CPU pixels changed to %v", got)
	}
}

func TestBufferWrites(t *testing.T) {
	e, d := newEngine(t)
	buf, err := e.NewBuffer(backend.BufferDesc{Label: "verts", Size: 8}, []byte{1, 1, 1, 1, 1, 1, 1, 1})
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if err := buf.SetData(2, []byte{7, 7}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := buf.SetData(3, []byte{9}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	e.Think()
	want := []byte{1, 1, 7, 9, 1, 1, 1, 1}
	if got, _ := d.BufferData(buf.Native()); !bytes.Equal(got, want) {
		t.Errorf("buffer = %v, want %v", got, want)
	}

	if err := buf.SetData(6, []byte{1, 2, 3}); !errors.Is(err, ErrDataSize) {
		t.Errorf("SetData past end error = %v, want ErrDataSize", err)
	}
	if _, err := e.NewBuffer(backend.BufferDesc{Label: "empty"}, nil); !errors.Is(err, backend.ErrInvalidDescriptor) {
		t.Errorf("zero-size buffer error = %v, want ErrInvalidDescriptor", err)
	}
}

func TestBufferUploadAsync(t *testing.T) {
	e, d := newEngine(t)
	buf, _ := e.NewBuffer(backend.BufferDesc{Label: "ubo", Size: 4}, nil)
	j, err := buf.UploadAsync(t.Context(), 1, []byte{5, 6})
	if err != nil {
		t.Fatalf("UploadAsync: %v", err)
	}
	if res, _ := thinkUntil(t, e, j); !res.OK() {
		t.Fatalf("Result = %+v", res)
	}
	if got, _ := d.BufferData(buf.Native()); !bytes.Equal(got, []byte{0, 5, 6, 0}) {
		t.Errorf("buffer = %v, want [0 5 6 0]", got)
	}
}

const (
	wgslA = "@compute @workgroup_size(1) fn main() {}"
	wgslB = "@compute @workgroup_size(2) fn main() {}"
)

func TestShaderRecompile(t *testing.T) {
	e, d := newEngine(t)
	s, err := e.NewShader("cs", wgslA)
	if err != nil {
		t.Fatalf("NewShader: %v", err)
	}
	e.Think()
	first := s.Native()
	if src, _ := d.ShaderSource(first); src != wgslA {
		t.Errorf("source = %q", src)
	}

	if err := s.SetSource(wgslA); err != nil || s.State() != resource.StateUpdated {
		t.Errorf("same source: err %v, state %v; want no invalidation", err, s.State())
	}
	if err := s.SetSource(wgslB); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	e.Think()
	if s.Native() == first {
		t.Fatal("shader not recompiled")
	}
	if src, _ := d.ShaderSource(s.Native()); src != wgslB {
		t.Errorf("source = %q, want new source", src)
	}
	if n := d.Stats().Shaders; n != 1 {
		t.Errorf("live shaders = %d, want 1", n)
	}
	if err := s.SetSource(""); !errors.Is(err, backend.ErrInvalidDescriptor) {
		t.Errorf("SetSource(\"\") error = %v", err)
	}
}

func TestShaderRecompileFailureKeepsModule(t *testing.T) {
	failing := false
	d := null.New(null.Options{Fail: func(op, _ string) error {
		if op == "shader" && failing {
			return errors.New("syntax error")
		}
		return nil
	}})
	e, _ := newEngineWith(t, d)
	s, _ := e.NewShader("cs", wgslA)
	e.Think()
	first := s.Native()

	failing = true
	_ = s.SetSource(wgslB)
	if st := e.Think(); st.Resources.Failed != 1 {
		t.Errorf("Failed = %d, want 1", st.Resources.Failed)
	}
	if s.Native() != first {
		t.Error("failed recompile replaced the module")
	}
	if src, _ := d.ShaderSource(first); src != wgslA {
		t.Errorf("old module source = %q", src)
	}
}

func TestFramebuffer(t *testing.T) {
	e, d := newEngine(t)
	color, _ := e.NewTexture(texDesc("color", 8, 8), nil)
	depth, _ := e.NewTexture(backend.TextureDesc{
		Label: "depth", Width: 8, Height: 8,
		Format: gputypes.TextureFormatDepth24PlusStencil8,
		Usage:  gputypes.TextureUsageRenderAttachment,
	}, nil)
	fb, err := e.NewFramebuffer("main", []*Texture{color}, depth)
	if err != nil {
		t.Fatalf("NewFramebuffer: %v", err)
	}

	// Binding before the first tick creates the attachments on demand.
	if err := fb.Bind(); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if color.State() != resource.StateUpdated || depth.State() != resource.StateUpdated {
		t.Errorf("attachments not ready: %v %v", color.State(), depth.State())
	}
	if d.Bound() != fb.Native() {
		t.Errorf("bound = %v, want %v", d.Bound(), fb.Native())
	}
	if st := e.Think(); st.Resources.Initialized != 0 || st.DriverError != nil {
		t.Errorf("Think = %+v, want nothing left to initialize", st)
	}
	if err := e.Unbind(); err != nil || d.Bound() != backend.InvalidHandle {
		t.Errorf("Unbind: %v, bound %v", err, d.Bound())
	}

	fb.Dispose()
	e.Think()
	if st := d.Stats(); st.Framebuffers != 0 || st.Textures != 2 {
		t.Errorf("driver Stats = %+v, want framebuffer gone and textures kept", st)
	}
}

func TestNewFramebufferErrors(t *testing.T) {
	e, _ := newEngine(t)
	a, _ := e.NewTexture(texDesc("a", 4, 4), nil)
	b, _ := e.NewTexture(texDesc("b", 2, 2), nil)

	tests := []struct {
		name  string
		color []*Texture
		depth *Texture
		want  error
	}{
		{"empty", nil, nil, backend.ErrInvalidDescriptor},
		{"mismatch", []*Texture{a, b}, nil, backend.ErrInvalidDescriptor},
		{"color as depth", []*Texture{a}, a, backend.ErrInvalidDescriptor},
		{"nil attachment", []*Texture{nil}, nil, ErrNilTexture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.NewFramebuffer("fb", tt.color, tt.depth); !errors.Is(err, tt.want) {
				t.Errorf("NewFramebuffer error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFramebufferAttachmentFailure(t *testing.T) {
	e, _ := newEngine(t)
	color, _ := e.NewTexture(texDesc("color", 4, 4), nil)
	fb, _ := e.NewFramebuffer("fb", []*Texture{color}, nil)
	color.Dispose()

	if err := fb.Bind(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Bind error = %v, want ErrNotReady", err)
	}
	if fb.State() != resource.StateDisposed {
		t.Errorf("State = %v, want Disposed", fb.State())
	}
}
