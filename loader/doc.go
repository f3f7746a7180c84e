// Package loader fetches encoded resource bytes and decodes images.
//
// A Loader resolves identifiers to bytes. FS serves them from any fs.FS
// under a list of search paths, and Chain tries several loaders in order.
// Identifiers are normalized with Normalize before lookup so that the same
// asset always maps to the same cache key.
//
// A Registry holds image decoders in registration order. Decode tries each
// one and the first success wins. Registries are plain values owned by
// whoever builds them; NewRegistry with no arguments is empty, and
// DefaultRegistry carries PNG, JPEG, GIF, BMP, TIFF and WebP.
package loader
