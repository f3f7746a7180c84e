// Package resource implements the lazy lifecycle shared by GPU-backed objects.
//
// A resource is created on any goroutine, registered with a Manager and
// queued for initialization. The render goroutine calls Manager.Process once
// per tick, which initializes, updates and releases queued handles in that
// order. Mutating a resource calls Handle.Invalidate, which queues it for
// another update.
//
//	m := resource.NewManager(nil)
//	h := resource.NewHandle(m, "quad", resource.Lifecycle{
//	    Initialize: createBuffer,
//	    Update:     uploadVertices,
//	    Release:    destroyBuffer,
//	})
//	m.Process() // createBuffer, uploadVertices
//	h.Invalidate()
//	m.Process() // uploadVertices
//	h.Dispose()
//	m.Process() // destroyBuffer
package resource
