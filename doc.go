// Package rhi is the engine side of a render hardware interface: lazily
// created GPU resources, a reference-counted texture library, background
// upload jobs confirmed by fences, and a once-per-frame tick that drives
// them all.
//
// # Overview
//
// An Engine owns a backend.Driver and everything created through it.
// Resources (Texture, Buffer, Shader, Framebuffer) are cheap to construct
// from any goroutine; the driver objects behind them are created, updated
// and destroyed only when the render goroutine calls Engine.Think:
//
//	e, err := rhi.NewEngine(rhi.WithConfig(cfg))
//	if err != nil {
//		return err
//	}
//	defer e.Close()
//
//	tex, _ := e.NewTexture(backend.TextureDesc{Label: "ui", Width: 64, Height: 64,
//		Format: gputypes.TextureFormatRGBA8Unorm}, pixels)
//	for running {
//		e.Think() // creates tex on the first frame, re-uploads after SetPixels
//		...
//	}
//	tex.Dispose() // destroyed on the next Think
//
// # Tick order
//
// Think runs, in order: the driver error check (debug mode only), pending
// initializations, pending updates, pending releases, actions queued with
// LazyInvoke, and finally the job poller. A job is finished only after its
// background work returned and the GPU signaled the fence armed by its
// submit.
//
// # Texture library
//
// Engine.Textures loads images through a loader.Loader and a
// loader.Registry of decoders, caches them by normalized identifier and
// counts users. TextureRef.Close releases one use; a texture with no users
// and no persistence priority is evicted and disposed.
//
// # Logging
//
// Logging uses log/slog and is silent by default. SetLogger configures the
// package and every open engine.
package rhi
