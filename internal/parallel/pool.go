// Package parallel runs background work for the engine: async job bodies
// and batch texture decoding.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines draining per-worker queues.
//
// Each worker prefers its own queue and steals from the others when idle,
// which keeps one long decode from starving short uploads queued behind it.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// next rotates Submit across queues.
	next atomic.Uint32

	// onPanic receives a recovered panic value. Nil re-panics.
	onPanic func(any)
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// OnPanic installs a handler for panics raised by submitted work.
// It must be called before any work is submitted.
func (p *WorkerPool) OnPanic(fn func(any)) { p.onPanic = fn }

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case fn := <-own:
			p.run(fn)
		default:
			if fn := p.steal(id); fn != nil {
				p.run(fn)
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case fn := <-own:
				p.run(fn)
			}
		}
	}
}

func (p *WorkerPool) run(fn func()) {
	if fn == nil {
		return
	}
	if p.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				p.onPanic(r)
			}
		}()
	}
	fn()
}

func (p *WorkerPool) drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			p.run(fn)
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// Submit queues fn and returns immediately.
// It returns false if fn is nil or the pool is closed; fn will not run.
func (p *WorkerPool) Submit(fn func()) bool {
	if fn == nil || !p.running.Load() {
		return false
	}
	i := int(p.next.Add(1)-1) % p.workers
	select {
	case p.queues[i] <- fn:
		return true
	case <-p.done:
		return false
	}
}

// ExecuteAll runs every item of work and waits for all of them.
// On a closed pool the work runs on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(work))
	for _, fn := range work {
		wrapped := func() {
			defer wg.Done()
			fn()
		}
		if !p.Submit(wrapped) {
			p.run(wrapped)
		}
	}
	wg.Wait()
}

// Close stops accepting work, runs what is already queued and waits for
// the workers to exit. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }

// Queued returns an approximate count of queued work items.
func (p *WorkerPool) Queued() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

// PanicError wraps a value recovered from a panicking work item.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: work panicked: %v", e.Value)
}
