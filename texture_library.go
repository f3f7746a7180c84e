package rhi

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"golang.org/x/sync/singleflight"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/cache"
	"github.com/gogpu/rhi/loader"
)

// TextureStats is a snapshot of the texture library cache.
type TextureStats = cache.Stats

// TextureLibrary loads textures by identifier and shares them between
// users. It is safe for concurrent use.
type TextureLibrary struct {
	e        *Engine
	cache    *cache.RefCache[*Texture]
	loader   loader.Loader
	decoders *loader.Registry
	cfg      TextureConfig

	// loads collapses concurrent misses on one identifier into one load.
	loads singleflight.Group
}

func newTextureLibrary(e *Engine, l loader.Loader, dec *loader.Registry, cfg TextureConfig) *TextureLibrary {
	lib := &TextureLibrary{
		e:        e,
		cache:    cache.New[*Texture](e.log()),
		loader:   l,
		decoders: dec,
		cfg:      cfg,
	}
	lib.cache.OnEvict(func(id string, t *Texture) {
		e.log().Debug("rhi: texture evicted", "id", id)
		t.Dispose()
	})
	return lib
}

// SetLogger replaces the cache logger.
func (lib *TextureLibrary) SetLogger(l *slog.Logger) { lib.cache.SetLogger(l) }

// Loader returns the loader textures are read from.
func (lib *TextureLibrary) Loader() loader.Loader { return lib.loader }

// Decoders returns the decoder registry.
func (lib *TextureLibrary) Decoders() *loader.Registry { return lib.decoders }

// Acquire returns a reference to the texture named id, loading and
// decoding it on first use. Every successful Acquire must be paired with
// one TextureRef.Close.
func (lib *TextureLibrary) Acquire(id string) (*TextureRef, error) {
	key := loader.Normalize(id)
	if key == "" {
		return nil, loader.ErrEmptyID
	}
	for {
		if t, ok := lib.cache.TryReference(key); ok {
			return lib.ref(key, t), nil
		}
		// Misses on other identifiers load in parallel. The entry can be
		// evicted again before we reference it, so loop until we do.
		_, err, _ := lib.loads.Do(key, func() (any, error) {
			if lib.cache.IsCached(key) {
				return nil, nil
			}
			return nil, lib.load(key, lib.cfg.DefaultPriority)
		})
		if err != nil {
			return nil, err
		}
	}
}

func (lib *TextureLibrary) ref(key string, t *Texture) *TextureRef {
	return &TextureRef{lib: lib, id: key, tex: t}
}

// load reads, decodes and registers key. If key was registered meanwhile,
// the new copy is dropped and the cached one wins.
func (lib *TextureLibrary) load(key string, priority int) error {
	t, err := lib.decode(key)
	if err != nil {
		return err
	}
	if !lib.cache.TryRegister(key, t, priority) {
		t.Dispose()
	}
	return nil
}

// decode reads and decodes key into a new texture without registering it.
func (lib *TextureLibrary) decode(key string) (*Texture, error) {
	data, err := lib.loader.Read(key)
	if err != nil {
		return nil, fmt.Errorf("rhi: load texture %q: %w", key, err)
	}
	img, format, err := lib.decoders.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("rhi: decode texture %q: %w", key, err)
	}
	img = loader.FitWithin(img, lib.maxSize())
	t, err := lib.e.NewTexture(backend.TextureDesc{
		Label:  key,
		Width:  uint32(img.Width),
		Height: uint32(img.Height),
		Format: gputypes.TextureFormatRGBA8Unorm,
	}, img.Pix)
	if err != nil {
		return nil, err
	}
	lib.e.log().Debug("rhi: texture decoded", "id", key, "format", format,
		"width", img.Width, "height", img.Height)
	return t, nil
}

func (lib *TextureLibrary) maxSize() int {
	limit := int(lib.e.driver.Limits().MaxTextureDimension2D)
	switch {
	case lib.cfg.MaxSize > 0 && limit > 0:
		return min(lib.cfg.MaxSize, limit)
	case lib.cfg.MaxSize > 0:
		return lib.cfg.MaxSize
	default:
		return limit
	}
}

// Preload loads ids in parallel on the engine's worker pool and keeps them
// cached without users at a persistent priority. Identifiers already cached
// are skipped. It returns every load error joined.
func (lib *TextureLibrary) Preload(ids ...string) error {
	priority := max(lib.cfg.DefaultPriority, 1)

	keys := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		key := loader.Normalize(id)
		if key == "" || seen[key] || lib.cache.IsCached(key) {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}

	textures := make([]*Texture, len(keys))
	errs := make([]error, len(keys))
	work := make([]func(), len(keys))
	for i, key := range keys {
		work[i] = func() { textures[i], errs[i] = lib.decode(key) }
	}
	lib.e.pool.ExecuteAll(work)

	for i, t := range textures {
		if t == nil {
			continue
		}
		if !lib.cache.TryRegister(keys[i], t, priority) {
			// Acquired concurrently; keep the first copy.
			t.Dispose()
		}
	}
	return errors.Join(errs...)
}

// Register adds a texture created elsewhere under id. The library takes
// ownership: eviction disposes it. It returns false if id is taken.
func (lib *TextureLibrary) Register(id string, t *Texture, priority int) bool {
	key := loader.Normalize(id)
	if key == "" || t == nil {
		return false
	}
	return lib.cache.TryRegister(key, t, priority)
}

// Lookup returns the cached texture for id without taking a reference.
func (lib *TextureLibrary) Lookup(id string) (*Texture, bool) {
	return lib.cache.Lookup(loader.Normalize(id))
}

// IsCached reports whether id is cached.
func (lib *TextureLibrary) IsCached(id string) bool {
	return lib.cache.IsCached(loader.Normalize(id))
}

// Users returns the number of open references to id.
func (lib *TextureLibrary) Users(id string) int {
	n, _ := lib.cache.UserCount(loader.Normalize(id))
	return n
}

// SetPriority changes the persistence priority of id.
func (lib *TextureLibrary) SetPriority(id string, priority int) bool {
	return lib.cache.SetPriority(loader.Normalize(id), priority)
}

// Trim evicts the least recently released persistent textures until at
// most the configured MaxIdle remain without users. With MaxIdle 0 it
// evicts every idle texture.
func (lib *TextureLibrary) Trim() int {
	return lib.cache.Trim(lib.cfg.MaxIdle)
}

// Len returns the number of cached textures.
func (lib *TextureLibrary) Len() int { return lib.cache.Len() }

// Stats returns cache statistics.
func (lib *TextureLibrary) Stats() TextureStats { return lib.cache.Stats() }

// clear evicts every texture regardless of users.
func (lib *TextureLibrary) clear() { lib.cache.Clear() }

// TextureRef is one user's claim on a library texture.
type TextureRef struct {
	lib    *TextureLibrary
	id     string
	tex    *Texture
	closed atomic.Bool
}

// ID returns the normalized identifier.
func (r *TextureRef) ID() string { return r.id }

// Texture returns the referenced texture.
func (r *TextureRef) Texture() *Texture { return r.tex }

// Close releases the reference. Only the first call has an effect.
func (r *TextureRef) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !r.lib.cache.Dereference(r.id) {
		return fmt.Errorf("rhi: texture %q was not referenced", r.id)
	}
	if r.lib.cfg.MaxIdle > 0 {
		r.lib.cache.Trim(r.lib.cfg.MaxIdle)
	}
	return nil
}
