// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/internal/parallel"
)

var (
	// ErrStarted is returned by Start on a job that was already started.
	ErrStarted = errors.New("job: already started")

	// ErrPoolClosed is the result error of a job started on a closed pool.
	ErrPoolClosed = errors.New("job: worker pool closed")
)

// Task is the work a Job carries.
type Task interface {
	// Run does the CPU-side work on a background goroutine. It must
	// return promptly once ctx is cancelled.
	Run(ctx context.Context) error

	// Submit hands the result to the GPU on the render goroutine and
	// returns the fence that confirms it. A nil fence means there is
	// nothing to confirm.
	Submit() (backend.Fence, error)
}

// Releaser is implemented by tasks that hold memory until the job closes.
type Releaser interface {
	Release()
}

// Result is passed to completion callbacks.
type Result struct {
	// Err is the first error from Run, Submit or the fence.
	Err error
	// Cancelled reports that the job was cancelled before its data
	// reached the GPU. A cancelled job's data must not be used.
	Cancelled bool
}

// OK reports whether the job's data is safe to use.
func (r Result) OK() bool { return r.Err == nil && !r.Cancelled }

// State is the progress of a Job.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateConfirmed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateConfirmed:
		return "Confirmed"
	case StateCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Job is one asynchronous operation with a GPU confirmation step.
type Job struct {
	name string
	task Task

	ctx    context.Context
	cancel context.CancelFunc

	state     atomic.Int32
	cancelled atomic.Bool
	done      chan struct{}
	runErr    error // written before done is closed

	// Render goroutine only.
	submitted bool
	fence     backend.Fence
	gpuErr    error

	mu        sync.Mutex
	callbacks []func(Result)
	final     *Result

	finished    atomic.Bool
	closed      atomic.Bool
	releaseOnce sync.Once
}

// New creates a job for task. Cancelling ctx cancels the job.
func New(ctx context.Context, name string, task Task) *Job {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Job{
		name:   name,
		task:   task,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Name returns the debug name of j.
func (j *Job) Name() string { return j.name }

// State returns the current state.
func (j *Job) State() State { return State(j.state.Load()) }

// OnComplete registers fn to run when j finishes. Callbacks run on the
// render goroutine in registration order. Registering after Finish runs fn
// immediately with the final result.
func (j *Job) OnComplete(fn func(Result)) {
	j.mu.Lock()
	if j.final == nil {
		j.callbacks = append(j.callbacks, fn)
		j.mu.Unlock()
		return
	}
	res := *j.final
	j.mu.Unlock()
	fn(res)
}

// Start runs the task on pool and calls enqueue with j once Run returns,
// whether it succeeded, failed or was cancelled. A nil pool runs the task
// on a new goroutine.
func (j *Job) Start(pool *parallel.WorkerPool, enqueue func(*Job)) error {
	if !j.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrStarted
	}
	body := func() {
		defer func() {
			if r := recover(); r != nil {
				j.runErr = &parallel.PanicError{Value: r}
			}
			// Enqueue before done so that a caller that saw Done can
			// rely on the job being queued.
			if enqueue != nil {
				enqueue(j)
			}
			close(j.done)
			if j.closed.Load() {
				j.release()
			}
		}()
		if err := j.ctx.Err(); err != nil {
			j.runErr = err
			return
		}
		j.runErr = j.task.Run(j.ctx)
	}

	if pool == nil {
		go body()
		return nil
	}
	if !pool.Submit(body) {
		j.runErr = ErrPoolClosed
		if enqueue != nil {
			enqueue(j)
		}
		close(j.done)
	}
	return nil
}

// Poll reports whether the background Run has returned.
// It says nothing about the GPU.
func (j *Job) Poll() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the background Run returns.
func (j *Job) Done() <-chan struct{} { return j.done }

// TryConfirm reports whether the GPU has consumed the job's work.
//
// The first call after Run returns submits the task; later calls poll the
// fence. A job that failed or was cancelled confirms without submitting.
// Cancelling a job that already submitted still waits for its fence.
// TryConfirm must be called on the render goroutine.
func (j *Job) TryConfirm() bool {
	if !j.Poll() {
		return false
	}
	if j.runErr != nil || j.closed.Load() {
		return true
	}
	if !j.submitted && j.cancelled.Load() {
		return true
	}
	if !j.submitted {
		j.submitted = true
		f, err := j.task.Submit()
		if err != nil {
			j.gpuErr = err
			return true
		}
		j.fence = f
	}
	if j.fence == nil {
		return true
	}
	ok, err := j.fence.Signaled()
	if err != nil {
		j.gpuErr = err
		return true
	}
	return ok
}

// Cancel asks Run to stop. A cancelled job still finishes through the
// poller; its Result reports Cancelled.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
	j.cancel()
}

// Cancelled reports whether Cancel was called.
func (j *Job) Cancelled() bool { return j.cancelled.Load() }

func (j *Job) result() Result {
	err := j.runErr
	if err == nil {
		err = j.gpuErr
	}
	cancelled := !j.submitted && (j.cancelled.Load() || errors.Is(err, context.Canceled))
	if cancelled && errors.Is(err, context.Canceled) {
		err = nil
	}
	return Result{Err: err, Cancelled: cancelled}
}

// Finish fires the completion callbacks and closes j. Only the first call
// has an effect; it returns false on later calls or before Poll is true.
// Finish must be called on the render goroutine.
func (j *Job) Finish() bool {
	if !j.Poll() || !j.finished.CompareAndSwap(false, true) {
		return false
	}
	res := j.result()
	if res.Cancelled {
		j.state.Store(int32(StateCancelled))
	} else {
		j.state.Store(int32(StateConfirmed))
	}

	j.mu.Lock()
	j.final = &res
	cbs := j.callbacks
	j.callbacks = nil
	j.mu.Unlock()
	for _, fn := range cbs {
		fn(res)
	}
	j.Close()
	return true
}

// Result returns the final result and whether j has finished.
func (j *Job) Result() (Result, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.final == nil {
		return Result{}, false
	}
	return *j.final, true
}

// Close cancels j if it is still running, destroys its fence and releases
// the task's memory. Close is idempotent and must be called on the render
// goroutine.
func (j *Job) Close() {
	j.cancel()
	if !j.closed.CompareAndSwap(false, true) {
		return
	}
	if j.fence != nil {
		j.fence.Destroy()
		j.fence = nil
	}
	if j.Poll() {
		j.release()
	}
}

func (j *Job) release() {
	j.releaseOnce.Do(func() {
		if r, ok := j.task.(Releaser); ok {
			r.Release()
		}
	})
}
