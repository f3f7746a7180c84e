package rhi

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/transform"
)

// Config is the file-backed engine configuration.
type Config struct {
	Engine   EngineConfig  `toml:"engine"`
	Textures TextureConfig `toml:"textures"`
	Camera   CameraConfig  `toml:"camera"`
}

// EngineConfig selects the driver and the tick behavior.
type EngineConfig struct {
	// Debug turns on the driver error check at the top of every tick and
	// after every driver call that creates, destroys or binds.
	Debug bool `toml:"debug"`
	// Backend names a registered driver. Empty picks the best available.
	Backend string `toml:"backend"`
	// Workers is the size of the background job pool. 0 uses GOMAXPROCS.
	Workers int `toml:"workers"`
}

// TextureConfig configures the texture library.
type TextureConfig struct {
	// SearchPaths are tried in order, relative to Root.
	SearchPaths []string `toml:"search_paths"`
	Root        string   `toml:"root"`
	// DefaultPriority is the cache priority of loaded textures. A positive
	// priority keeps a texture cached after its last user lets go.
	DefaultPriority int `toml:"default_priority"`
	// MaxIdle bounds the number of persistent textures kept without users.
	// 0 means unbounded.
	MaxIdle int `toml:"max_idle"`
	// MaxSize scales decoded images down so neither side exceeds it.
	// 0 uses the driver's texture limit.
	MaxSize int `toml:"max_size"`
}

// CameraConfig holds the defaults for cameras made by Engine.NewCamera.
type CameraConfig struct {
	FOV  float32 `toml:"fov"`
	Near float32 `toml:"near"`
	Far  float32 `toml:"far"`
	Zoom float32 `toml:"zoom"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{},
		Textures: TextureConfig{
			SearchPaths: []string{"."},
			Root:        ".",
		},
		Camera: CameraConfig{
			FOV:  60,
			Near: 0.1,
			Far:  1000,
			Zoom: 1,
		},
	}
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("rhi: read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("rhi: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML over the defaults. Keys that are absent keep
// their default value.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate clamps out-of-range values in place. It returns an error only
// for a backend name that is not registered.
func (c *Config) Validate() error {
	c.Engine.Workers = max(c.Engine.Workers, 0)
	c.Textures.MaxIdle = max(c.Textures.MaxIdle, 0)
	c.Textures.MaxSize = max(c.Textures.MaxSize, 0)
	if len(c.Textures.SearchPaths) == 0 {
		c.Textures.SearchPaths = []string{"."}
	}
	if c.Textures.Root == "" {
		c.Textures.Root = "."
	}

	cam := &c.Camera
	cam.FOV = min(max(cam.FOV, transform.MinFieldOfView), transform.MaxFieldOfView)
	if cam.Zoom <= 0 {
		cam.Zoom = 1
	}
	if cam.Near <= 0 {
		cam.Near = 0.1
	}
	if cam.Far <= 0 {
		cam.Far = 1000
	}
	if cam.Near > cam.Far {
		cam.Near, cam.Far = cam.Far, cam.Near
	}

	if c.Engine.Backend != "" && !backend.IsRegistered(c.Engine.Backend) {
		return fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, c.Engine.Backend, backend.Available())
	}
	return nil
}

// Apply configures cam with the camera defaults.
func (c CameraConfig) Apply(cam *transform.Camera) {
	cam.SetFieldOfView(c.FOV)
	cam.SetZoom(c.Zoom)
	cam.SetNearClippingPlane(c.Near)
	cam.SetFarClippingPlane(c.Far)
}
