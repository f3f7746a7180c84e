// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package job

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/internal/parallel"
)

// mockFence signals after a number of polls.
type mockFence struct {
	polls     int
	destroyed atomic.Int32
}

func (f *mockFence) Signaled() (bool, error) {
	if f.polls > 0 {
		f.polls--
		return false, nil
	}
	return true, nil
}

func (f *mockFence) Destroy() { f.destroyed.Add(1) }

// mockTask blocks in Run until release is closed.
type mockTask struct {
	release  chan struct{}
	runErr   error
	fence    *mockFence
	submits  atomic.Int32
	releases atomic.Int32
}

func newMockTask(polls int) *mockTask {
	return &mockTask{release: make(chan struct{}), fence: &mockFence{polls: polls}}
}

func (m *mockTask) Run(ctx context.Context) error {
	select {
	case <-m.release:
		return m.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockTask) Submit() (backend.Fence, error) {
	m.submits.Add(1)
	return m.fence, nil
}

func (m *mockTask) Release() { m.releases.Add(1) }

func waitDone(t *testing.T, j *Job) {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run")
	}
}

func TestJobPollGatesOnRun(t *testing.T) {
	task := newMockTask(0)
	j := New(context.Background(), "upload", task)
	if j.State() != StateCreated {
		t.Errorf("State = %v, want Created", j.State())
	}

	p := NewPoller(nil)
	if err := j.Start(nil, nil); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if err := j.Start(nil, nil); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start = %v, want ErrStarted", err)
	}
	// Enqueued early on purpose: the poller must keep it across ticks.
	p.Enqueue(j)

	var fired atomic.Int32
	j.OnComplete(func(Result) { fired.Add(1) })

	for range 3 {
		if j.Poll() {
			t.Fatal("Poll = true before Run returned")
		}
		if p.Process() != 0 {
			t.Fatal("job finished before Run returned")
		}
	}
	if task.submits.Load() != 0 {
		t.Error("task submitted before Run returned")
	}

	close(task.release)
	waitDone(t, j)
	if !j.Poll() {
		t.Fatal("Poll = false after Run returned")
	}
	if p.Process() != 1 {
		t.Fatal("job not finished after Run returned")
	}
	p.Process()
	if fired.Load() != 1 {
		t.Errorf("completion fired %d times, want 1", fired.Load())
	}
	if j.Finish() {
		t.Error("second Finish = true")
	}
	if j.State() != StateConfirmed {
		t.Errorf("State = %v, want Confirmed", j.State())
	}
}

func TestJobWaitsForFence(t *testing.T) {
	task := newMockTask(3)
	close(task.release)

	p := NewPoller(nil)
	j := New(context.Background(), "fenced", task)
	var got Result
	var fired atomic.Int32
	j.OnComplete(func(r Result) { got = r; fired.Add(1) })

	pool := parallel.NewWorkerPool(2)
	defer pool.Close()
	if err := j.Start(pool, p.Enqueue); err != nil {
		t.Fatal(err)
	}
	waitDone(t, j)
	for p.Len() == 0 {
		time.Sleep(time.Millisecond)
	}

	ticks := 0
	for p.Process() == 0 {
		ticks++
		if ticks > 10 {
			t.Fatal("fence never confirmed")
		}
	}
	if ticks != 3 {
		t.Errorf("finished after %d waiting ticks, want 3", ticks)
	}
	if fired.Load() != 1 || !got.OK() {
		t.Errorf("fired = %d result = %+v, want one OK result", fired.Load(), got)
	}
	if task.submits.Load() != 1 {
		t.Errorf("Submit ran %d times, want 1", task.submits.Load())
	}
	if n := task.fence.destroyed.Load(); n != 1 {
		t.Errorf("fence destroyed %d times, want 1", n)
	}
	if n := task.releases.Load(); n != 1 {
		t.Errorf("task released %d times, want 1", n)
	}
	j.Close()
	if n := task.fence.destroyed.Load(); n != 1 {
		t.Errorf("fence destroyed %d times after extra Close, want 1", n)
	}
	if p.Finished() != 1 {
		t.Errorf("Finished = %d, want 1", p.Finished())
	}
}

func TestJobCancel(t *testing.T) {
	task := newMockTask(0)
	p := NewPoller(nil)
	j := New(context.Background(), "cancelled", task)
	var got Result
	j.OnComplete(func(r Result) { got = r })

	j.Start(nil, p.Enqueue)
	j.Cancel()
	waitDone(t, j)
	for p.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	if p.Process() != 1 {
		t.Fatal("cancelled job did not finish")
	}
	if !got.Cancelled || got.Err != nil {
		t.Errorf("Result = %+v, want Cancelled without error", got)
	}
	if got.OK() {
		t.Error("cancelled Result reports OK")
	}
	if task.submits.Load() != 0 {
		t.Error("cancelled job submitted GPU work")
	}
	if j.State() != StateCancelled {
		t.Errorf("State = %v, want Cancelled", j.State())
	}
}

func TestJobRunError(t *testing.T) {
	task := newMockTask(0)
	task.runErr = errors.New("read failed")
	close(task.release)

	j := New(context.Background(), "broken", task)
	j.Start(nil, nil)
	waitDone(t, j)
	if !j.TryConfirm() {
		t.Fatal("failed job did not confirm")
	}
	j.Finish()
	res, ok := j.Result()
	if !ok || !errors.Is(res.Err, task.runErr) {
		t.Errorf("Result = %+v, %v; want run error", res, ok)
	}
	if task.submits.Load() != 0 {
		t.Error("failed job submitted GPU work")
	}
}

type panicTask struct{}

func (panicTask) Run(context.Context) error       { panic("bad pixels") }
func (panicTask) Submit() (backend.Fence, error) { return nil, nil }

func TestJobPanic(t *testing.T) {
	pool := parallel.NewWorkerPool(1)
	defer pool.Close()
	j := New(context.Background(), "panic", panicTask{})
	j.Start(pool, nil)
	waitDone(t, j)
	j.TryConfirm()
	j.Finish()
	res, _ := j.Result()
	var pe *parallel.PanicError
	if !errors.As(res.Err, &pe) {
		t.Errorf("Result.Err = %v, want PanicError", res.Err)
	}
}

func TestJobClosedPool(t *testing.T) {
	pool := parallel.NewWorkerPool(1)
	pool.Close()
	var enqueued *Job
	j := New(context.Background(), "late", newMockTask(0))
	if err := j.Start(pool, func(j *Job) { enqueued = j }); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if enqueued != j {
		t.Fatal("job on closed pool was not enqueued")
	}
	j.TryConfirm()
	j.Finish()
	if res, _ := j.Result(); !errors.Is(res.Err, ErrPoolClosed) {
		t.Errorf("Result.Err = %v, want ErrPoolClosed", res.Err)
	}
}

func TestOnCompleteAfterFinish(t *testing.T) {
	task := newMockTask(0)
	close(task.release)
	j := New(context.Background(), "late-callback", task)
	j.Start(nil, nil)
	waitDone(t, j)
	j.TryConfirm()
	j.Finish()

	called := false
	j.OnComplete(func(r Result) { called = r.OK() })
	if !called {
		t.Error("OnComplete after Finish did not run with OK result")
	}
}

func TestCancelAll(t *testing.T) {
	p := NewPoller(nil)
	task := newMockTask(0)
	j := New(context.Background(), "pending", task)
	j.Start(nil, nil)
	p.Enqueue(j)
	p.CancelAll()
	waitDone(t, j)
	if p.Process() != 1 {
		t.Fatal("cancelled job not finished")
	}
	if res, _ := j.Result(); !res.Cancelled {
		t.Errorf("Result = %+v, want Cancelled", res)
	}
}

func TestCopyChunked(t *testing.T) {
	src := bytes.Repeat([]byte{7}, 1000)
	dst := make([]byte, len(src))
	if err := CopyChunked(context.Background(), dst, src, 64); err != nil {
		t.Fatalf("CopyChunked error = %v", err)
	}
	if !bytes.Equal(dst, src) {
		t.Error("CopyChunked did not copy every byte")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clear(dst)
	if err := CopyChunked(ctx, dst, src, 64); !errors.Is(err, context.Canceled) {
		t.Errorf("CopyChunked(cancelled) = %v, want context.Canceled", err)
	}
	if dst[0] != 0 {
		t.Error("cancelled copy wrote data")
	}
}

// recordingDriver captures WriteBuffer calls.
type recordingDriver struct {
	backend.Driver
	written []byte
	fence   *mockFence
}

func (d *recordingDriver) WriteBuffer(_ backend.Handle, _ uint64, data []byte) error {
	d.written = append([]byte(nil), data...)
	return nil
}

func (d *recordingDriver) Submit() (backend.Fence, error) { return d.fence, nil }

func TestUpload(t *testing.T) {
	d := &recordingDriver{fence: &mockFence{}}
	src := []byte("vertex data")
	u := &Upload{
		Driver:    d,
		Src:       src,
		ChunkSize: 4,
		Write: func(d backend.Driver, data []byte) error {
			return d.WriteBuffer(1, 0, data)
		},
	}
	j := New(context.Background(), "vb", u)
	p := NewPoller(nil)
	j.Start(nil, p.Enqueue)
	waitDone(t, j)
	for p.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	p.Process()

	if !bytes.Equal(d.written, src) {
		t.Errorf("written = %q, want %q", d.written, src)
	}
	if d.fence.destroyed.Load() != 1 {
		t.Error("upload fence not destroyed")
	}
	if u.Src != nil || u.staging != nil {
		t.Error("upload memory not released")
	}
}

func TestPollerAbandon(t *testing.T) {
	task := newMockTask(1000)
	close(task.release)
	j := New(context.Background(), "stuck", task)
	p := NewPoller(nil)
	_ = j.Start(nil, nil)
	waitDone(t, j)
	p.Enqueue(j)

	p.Process() // submits; fence not signaled
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
	called := false
	j.OnComplete(func(Result) { called = true })

	if n := p.Abandon(); n != 1 {
		t.Errorf("Abandon = %d, want 1", n)
	}
	if p.Len() != 0 {
		t.Errorf("Len after Abandon = %d, want 0", p.Len())
	}
	if called {
		t.Error("callback ran for an abandoned job")
	}
	if task.fence.destroyed.Load() != 1 || task.releases.Load() != 1 {
		t.Errorf("fence destroyed %d, released %d, want 1 and 1",
			task.fence.destroyed.Load(), task.releases.Load())
	}
}

func TestCancelAfterSubmitWaitsForFence(t *testing.T) {
	task := newMockTask(2)
	close(task.release)
	j := New(context.Background(), "late-cancel", task)
	_ = j.Start(nil, nil)
	waitDone(t, j)

	if j.TryConfirm() {
		t.Fatal("TryConfirm = true on first poll, want false")
	}
	j.Cancel()
	if j.TryConfirm() {
		t.Error("cancel after submit skipped the fence")
	}
	if !j.TryConfirm() {
		t.Error("TryConfirm = false after fence signaled")
	}
	j.Finish()
	if res, _ := j.Result(); res.Cancelled {
		t.Errorf("Result = %+v, want not Cancelled once submitted", res)
	}
}
