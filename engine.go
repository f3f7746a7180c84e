package rhi

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/internal/parallel"
	"github.com/gogpu/rhi/job"
	"github.com/gogpu/rhi/loader"
	"github.com/gogpu/rhi/resource"
	"github.com/gogpu/rhi/transform"
)

// closeDrainTicks bounds how many poller passes Close spends waiting for
// submitted jobs before abandoning them.
const closeDrainTicks = 64

// TickStats reports what one Think call did.
type TickStats struct {
	Frame     uint64
	Resources resource.ProcessStats
	Deferred  int
	// JobsFinished counts jobs whose callbacks ran during the tick.
	JobsFinished int
	// DriverError is the error reported by the debug error check at the
	// top of the tick, if any.
	DriverError error
}

// Stats is a snapshot of the engine state.
type Stats struct {
	Frames         uint64
	Resources      int
	PendingInit    int
	PendingUpdate  int
	PendingRelease int
	PendingActions int
	Jobs           int
	JobsFinished   uint64
	Textures       TextureStats
}

// Engine drives GPU resources and background jobs from the render
// goroutine.
//
// Resource constructors, Dispose, Invalidate, LazyInvoke and StartJob are
// safe from any goroutine. Think, Resize, EnsureReady and Close must be
// called from the goroutine that owns the driver.
type Engine struct {
	driver     backend.Driver
	ownsDriver bool
	cfg        Config
	debug      bool

	manager  *resource.Manager
	poller   *job.Poller
	pool     *parallel.WorkerPool
	textures *TextureLibrary

	deferred resource.Queue[func()]

	resizeMu      sync.Mutex
	width, height int
	onResize      map[int]func(width, height int)
	nextResize    int

	frames atomic.Uint64
	closed atomic.Bool
	logger atomic.Pointer[slog.Logger]
}

// NewEngine creates an engine. Without WithDriver it opens the configured
// backend, or the best registered one.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := DefaultConfig()
	if o.config != nil {
		c := *o.config
		c.Textures.SearchPaths = append([]string(nil), o.config.Textures.SearchPaths...)
		cfg = &c
	}
	if err := cfg.Validate(); err != nil && o.driver == nil {
		return nil, err
	}
	if o.workers != 0 {
		cfg.Engine.Workers = max(o.workers, 0)
	}
	if o.debug != nil {
		cfg.Engine.Debug = *o.debug
	}

	e := &Engine{
		driver: o.driver,
		cfg:    *cfg,
		debug:  cfg.Engine.Debug,
	}
	e.logger.Store(Logger())

	if e.driver == nil {
		d, err := openDriver(cfg.Engine.Backend)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNilDriver, err)
		}
		e.driver = d
		e.ownsDriver = true
	}

	log := e.log()
	e.manager = resource.NewManager(log)
	e.poller = job.NewPoller(log)
	e.pool = parallel.NewWorkerPool(cfg.Engine.Workers)
	e.pool.OnPanic(func(v any) {
		e.log().Error("rhi: background work panicked", "panic", v)
	})

	l := o.loader
	if l == nil {
		l = loader.Dir(cfg.Textures.Root, cfg.Textures.SearchPaths...)
	}
	dec := o.decoders
	if dec == nil {
		dec = loader.DefaultRegistry()
	}
	e.textures = newTextureLibrary(e, l, dec, cfg.Textures)

	trackEngine(e)
	log.Info("rhi: engine started",
		"driver", e.driver.Name(),
		"debug", e.debug,
		"workers", e.pool.Workers())
	return e, nil
}

func openDriver(name string) (backend.Driver, error) {
	if name != "" {
		return backend.Open(name)
	}
	return backend.Default()
}

// SetLogger replaces the logger of e and its subsystems. Nil disables
// logging for this engine.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	e.logger.Store(l)
	propagateLogger(l, e.manager, e.poller, e.textures, e.driver)
}

func (e *Engine) log() *slog.Logger { return e.logger.Load() }

// Driver returns the engine's driver.
func (e *Engine) Driver() backend.Driver { return e.driver }

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Debug reports whether the driver error check is active.
func (e *Engine) Debug() bool { return e.debug }

// Manager returns the resource manager.
func (e *Engine) Manager() *resource.Manager { return e.manager }

// Textures returns the texture library.
func (e *Engine) Textures() *TextureLibrary { return e.textures }

// ErrorCheck asks the driver for its error state when debug checks are on.
// With debug checks off it returns nil without calling the driver.
func (e *Engine) ErrorCheck() error {
	return e.check("check")
}

// check runs the debug error check after op and logs any error together
// with the calling goroutine's stack.
func (e *Engine) check(op string) error {
	if !e.debug {
		return nil
	}
	err := e.driver.ErrorCheck()
	if err != nil {
		e.log().Error("rhi: driver error",
			"op", op,
			"err", err,
			"stack", string(debug.Stack()))
	}
	return err
}

// Think advances the engine by one frame. It must be called once per
// frame from the render goroutine.
func (e *Engine) Think() TickStats {
	if e.closed.Load() {
		return TickStats{}
	}
	st := TickStats{Frame: e.frames.Add(1)}
	st.DriverError = e.check("tick")
	st.Resources = e.manager.Process()
	for _, fn := range e.deferred.Drain() {
		fn()
		st.Deferred++
	}
	st.JobsFinished = e.poller.Process()
	return st
}

// LazyInvoke queues fn to run on the render goroutine during the next
// Think, after resource processing. Actions queued by an action run on the
// following tick.
func (e *Engine) LazyInvoke(fn func()) {
	if fn == nil || e.closed.Load() {
		return
	}
	e.deferred.Push(fn)
}

// StartJob runs j's background work on the engine's pool and hands it to
// the poller once that work returns. On a closed engine j is cancelled and
// never started, and StartJob returns ErrClosed.
func (e *Engine) StartJob(j *job.Job) error {
	if j == nil {
		return errors.New("rhi: nil job")
	}
	if e.closed.Load() {
		j.Cancel()
		return ErrClosed
	}
	return j.Start(e.pool, e.FinishJob)
}

// FinishJob hands j to the poller. The poller finishes it on a later Think,
// once its background work has returned and its fence has signaled.
func (e *Engine) FinishJob(j *job.Job) {
	if j != nil {
		e.poller.Enqueue(j)
	}
}

// Size returns the last size passed to Resize.
func (e *Engine) Size() (width, height int) {
	e.resizeMu.Lock()
	defer e.resizeMu.Unlock()
	return e.width, e.height
}

// Resize records a new render target size and notifies every OnResize
// subscriber if it changed.
func (e *Engine) Resize(width, height int) {
	e.resizeMu.Lock()
	if width == e.width && height == e.height {
		e.resizeMu.Unlock()
		return
	}
	e.width, e.height = width, height
	subs := make([]func(int, int), 0, len(e.onResize))
	for id := range e.nextResize {
		if fn, ok := e.onResize[id]; ok {
			subs = append(subs, fn)
		}
	}
	e.resizeMu.Unlock()

	e.log().Debug("rhi: resize", "width", width, "height", height)
	for _, fn := range subs {
		fn(width, height)
	}
}

// OnResize subscribes fn to size changes. Subscribers run in subscription
// order. The returned function unsubscribes.
func (e *Engine) OnResize(fn func(width, height int)) (cancel func()) {
	e.resizeMu.Lock()
	defer e.resizeMu.Unlock()
	if e.onResize == nil {
		e.onResize = make(map[int]func(int, int))
	}
	id := e.nextResize
	e.nextResize++
	e.onResize[id] = fn
	return func() {
		e.resizeMu.Lock()
		delete(e.onResize, id)
		e.resizeMu.Unlock()
	}
}

// NewCamera returns a camera with the configured defaults whose aspect
// ratio follows Resize.
//
// The engine holds the camera weakly: once the caller drops it, the
// subscription is removed after the camera is collected.
func (e *Engine) NewCamera() *transform.Camera {
	cam := transform.NewCamera()
	e.cfg.Camera.Apply(cam)
	if w, h := e.Size(); w > 0 && h > 0 {
		cam.SetViewport(w, h)
	}
	wp := weak.Make(cam)
	cancel := e.OnResize(func(width, height int) {
		if c := wp.Value(); c != nil {
			c.SetViewport(width, height)
		}
	})
	runtime.AddCleanup(cam, func(cancel func()) { cancel() }, cancel)
	return cam
}

// resizeSubscribers returns the number of live OnResize subscriptions.
func (e *Engine) resizeSubscribers() int {
	e.resizeMu.Lock()
	defer e.resizeMu.Unlock()
	return len(e.onResize)
}

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats() Stats {
	initN, updN, relN := e.manager.Pending()
	return Stats{
		Frames:         e.frames.Load(),
		Resources:      e.manager.Len(),
		PendingInit:    initN,
		PendingUpdate:  updN,
		PendingRelease: relN,
		PendingActions: e.deferred.Len(),
		Jobs:           e.poller.Len(),
		JobsFinished:   e.poller.Finished(),
		Textures:       e.textures.Stats(),
	}
}

// Close cancels outstanding jobs, releases every resource and closes the
// driver if the engine opened it. Close is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer untrackEngine(e)
	log := e.log()

	e.poller.CancelAll()
	e.pool.Close()
	for i := 0; i < closeDrainTicks && e.poller.Len() > 0; i++ {
		e.poller.Process()
		if e.poller.Len() > 0 {
			runtime.Gosched()
		}
	}
	if n := e.poller.Abandon(); n > 0 {
		log.Warn("rhi: abandoned jobs on close", "count", n)
	}

	e.textures.clear()
	for _, h := range e.manager.Handles() {
		h.Dispose()
	}
	for _, fn := range e.deferred.Drain() {
		fn()
	}
	st := e.manager.Process()
	log.Info("rhi: engine closed", "released", st.Released, "failed", st.Failed)

	var err error
	if e.debug {
		err = e.driver.ErrorCheck()
	}
	if e.ownsDriver {
		err = errors.Join(err, e.driver.Close())
	}
	return err
}
