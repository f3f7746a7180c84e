package rhi

import (
	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/loader"
)

// EngineOption configures an Engine during creation.
//
// Example:
//
//	// Headless engine on the null driver
//	e, err := rhi.NewEngine(rhi.WithDriver(null.New(null.Options{})))
//
//	// Configured from a file, with debug checks forced on
//	cfg, _ := rhi.LoadConfig("rhi.toml")
//	e, err := rhi.NewEngine(rhi.WithConfig(cfg), rhi.WithDebug(true))
type EngineOption func(*engineOptions)

// engineOptions holds optional configuration for Engine creation.
type engineOptions struct {
	driver   backend.Driver
	config   *Config
	loader   loader.Loader
	decoders *loader.Registry
	workers  int
	debug    *bool
}

// WithDriver makes the engine use d instead of opening one from the
// backend registry. The engine does not close a driver it did not open.
func WithDriver(d backend.Driver) EngineOption {
	return func(o *engineOptions) {
		o.driver = d
	}
}

// WithConfig sets the configuration. The engine keeps its own copy.
func WithConfig(c *Config) EngineOption {
	return func(o *engineOptions) {
		o.config = c
	}
}

// WithLoader sets where the texture library reads encoded images from.
// The default reads the configured search paths on the host file system.
func WithLoader(l loader.Loader) EngineOption {
	return func(o *engineOptions) {
		o.loader = l
	}
}

// WithDecoders sets the image decoders of the texture library.
// The default is loader.DefaultRegistry.
func WithDecoders(r *loader.Registry) EngineOption {
	return func(o *engineOptions) {
		o.decoders = r
	}
}

// WithWorkers sets the size of the background job pool, overriding the
// configuration.
func WithWorkers(n int) EngineOption {
	return func(o *engineOptions) {
		o.workers = n
	}
}

// WithDebug forces the debug error check on or off, overriding the
// configuration.
func WithDebug(on bool) EngineOption {
	return func(o *engineOptions) {
		o.debug = &on
	}
}
