// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/rhi/resource"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Poller holds jobs whose background work has returned until their GPU
// work is confirmed.
//
// Enqueue is safe from any goroutine. Process must only be called on the
// render goroutine.
type Poller struct {
	queue    resource.Queue[*Job]
	finished atomic.Uint64
	logger   atomic.Pointer[slog.Logger]
}

// NewPoller creates an empty poller. A nil logger disables logging.
func NewPoller(logger *slog.Logger) *Poller {
	p := &Poller{}
	p.SetLogger(logger)
	return p
}

// SetLogger replaces the poller's logger. Nil disables logging.
func (p *Poller) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	p.logger.Store(l)
}

// Enqueue adds j to the next Process call.
func (p *Poller) Enqueue(j *Job) {
	p.queue.Push(j)
}

// Len returns the number of jobs waiting.
func (p *Poller) Len() int { return p.queue.Len() }

// Finished returns the total number of jobs finished by p.
func (p *Poller) Finished() uint64 { return p.finished.Load() }

// Process finishes every queued job that has passed Poll and TryConfirm
// and requeues the rest for the next call. It returns the number of jobs
// finished.
func (p *Poller) Process() int {
	log := p.logger.Load()
	n := 0
	for _, j := range p.queue.Drain() {
		if !j.Poll() || !j.TryConfirm() {
			p.queue.Push(j)
			continue
		}
		if !j.Finish() {
			continue
		}
		n++
		res, _ := j.Result()
		switch {
		case res.Err != nil:
			log.Warn("job: failed", "name", j.Name(), "err", res.Err)
		case res.Cancelled:
			log.Debug("job: cancelled", "name", j.Name())
		default:
			log.Debug("job: confirmed", "name", j.Name())
		}
	}
	p.finished.Add(uint64(n))
	return n
}

// CancelAll cancels every queued job. They still finish through Process.
func (p *Poller) CancelAll() {
	for _, j := range p.queue.Drain() {
		j.Cancel()
		p.queue.Push(j)
	}
}

// Abandon closes every queued job without finishing it. Their callbacks
// never run. It is the last step of a shutdown that could not wait for
// outstanding fences, and returns the number of jobs dropped.
func (p *Poller) Abandon() int {
	jobs := p.queue.Drain()
	for _, j := range jobs {
		j.Cancel()
		j.Close()
		p.logger.Load().Warn("job: abandoned", "name", j.Name())
	}
	return len(jobs)
}
