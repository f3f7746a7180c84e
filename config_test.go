package rhi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/rhi/transform"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[engine]
debug = true

[textures]
search_paths = ["tex", "ui"]
default_priority = 3

[camera]
fov = 45.0
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if !cfg.Engine.Debug {
		t.Error("Engine.Debug = false, want true")
	}
	if got := cfg.Textures.SearchPaths; len(got) != 2 || got[0] != "tex" || got[1] != "ui" {
		t.Errorf("SearchPaths = %v, want [tex ui]", got)
	}
	if cfg.Textures.DefaultPriority != 3 {
		t.Errorf("DefaultPriority = %d, want 3", cfg.Textures.DefaultPriority)
	}
	if cfg.Textures.Root != "." {
		t.Errorf("Root = %q, want %q", cfg.Textures.Root, ".")
	}
	if cfg.Camera.FOV != 45 {
		t.Errorf("FOV = %v, want 45", cfg.Camera.FOV)
	}
	if cfg.Camera.Near != 0.1 || cfg.Camera.Far != 1000 || cfg.Camera.Zoom != 1 {
		t.Errorf("camera defaults lost: %+v", cfg.Camera)
	}
}

func TestParseConfigSyntaxError(t *testing.T) {
	if _, err := ParseConfig([]byte("[engine\ndebug = ")); err == nil {
		t.Error("ParseConfig accepted malformed input")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		check func(*testing.T, *Config)
	}{
		{
			name: "negative counts",
			edit: func(c *Config) {
				c.Engine.Workers = -2
				c.Textures.MaxIdle = -1
				c.Textures.MaxSize = -5
			},
			check: func(t *testing.T, c *Config) {
				if c.Engine.Workers != 0 || c.Textures.MaxIdle != 0 || c.Textures.MaxSize != 0 {
					t.Errorf("counts = %d/%d/%d, want 0/0/0",
						c.Engine.Workers, c.Textures.MaxIdle, c.Textures.MaxSize)
				}
			},
		},
		{
			name: "empty paths",
			edit: func(c *Config) {
				c.Textures.SearchPaths = nil
				c.Textures.Root = ""
			},
			check: func(t *testing.T, c *Config) {
				if len(c.Textures.SearchPaths) != 1 || c.Textures.SearchPaths[0] != "." {
					t.Errorf("SearchPaths = %v, want [.]", c.Textures.SearchPaths)
				}
				if c.Textures.Root != "." {
					t.Errorf("Root = %q, want %q", c.Textures.Root, ".")
				}
			},
		},
		{
			name: "fov clamp",
			edit: func(c *Config) { c.Camera.FOV = 500 },
			check: func(t *testing.T, c *Config) {
				if c.Camera.FOV != transform.MaxFieldOfView {
					t.Errorf("FOV = %v, want %v", c.Camera.FOV, transform.MaxFieldOfView)
				}
			},
		},
		{
			name: "near far swap",
			edit: func(c *Config) {
				c.Camera.Near = 50
				c.Camera.Far = 2
			},
			check: func(t *testing.T, c *Config) {
				if c.Camera.Near != 2 || c.Camera.Far != 50 {
					t.Errorf("near/far = %v/%v, want 2/50", c.Camera.Near, c.Camera.Far)
				}
			},
		},
		{
			name: "non-positive zoom and planes",
			edit: func(c *Config) {
				c.Camera.Zoom = 0
				c.Camera.Near = -1
				c.Camera.Far = 0
			},
			check: func(t *testing.T, c *Config) {
				if c.Camera.Zoom != 1 || c.Camera.Near != 0.1 || c.Camera.Far != 1000 {
					t.Errorf("camera = %+v, want defaults", c.Camera)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(cfg)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestConfigValidateBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Backend = "null"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate(null) = %v, want nil", err)
	}

	cfg.Engine.Backend = "no-such-backend"
	if err := cfg.Validate(); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Validate(unknown) = %v, want ErrUnknownBackend", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rhi.toml")
	data := []byte("[textures]\nmax_idle = 8\nmax_size = 512\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Textures.MaxIdle != 8 || cfg.Textures.MaxSize != 512 {
		t.Errorf("MaxIdle/MaxSize = %d/%d, want 8/512", cfg.Textures.MaxIdle, cfg.Textures.MaxSize)
	}

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig(missing) = %v, want os.ErrNotExist", err)
	}
}

func TestCameraConfigApply(t *testing.T) {
	cam := transform.NewCamera()
	CameraConfig{FOV: 30, Near: 1, Far: 10, Zoom: 2}.Apply(cam)
	if cam.FieldOfView() != 30 || cam.Zoom() != 2 {
		t.Errorf("fov/zoom = %v/%v, want 30/2", cam.FieldOfView(), cam.Zoom())
	}
	if cam.NearClippingPlane() != 1 || cam.FarClippingPlane() != 10 {
		t.Errorf("near/far = %v/%v, want 1/10", cam.NearClippingPlane(), cam.FarClippingPlane())
	}
}
