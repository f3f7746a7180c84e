// Package cache provides a reference-counted cache for shared GPU resources.
//
// Entries are keyed by a string identifier and carry a user count and a
// priority. Dropping the last reference evicts an entry whose priority is
// zero or less; a positive priority keeps it loaded while idle, until Trim
// or Remove drops it.
//
//	c := cache.New[*Texture](nil)
//	c.TryRegister("brick.png", tex, 0)
//	t, _ := c.TryReference("brick.png")
//	...
//	c.Dereference("brick.png") // evicted, OnEvict fires
//
// # Thread Safety
//
// RefCache is safe for concurrent use. Eviction callbacks run after the
// internal lock is released, on the goroutine that caused the eviction.
package cache
