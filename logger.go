package rhi

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// engines are the open engines that SetLogger propagates to.
var (
	enginesMu sync.Mutex
	engines   = make(map[*Engine]struct{})
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for rhi, its sub-packages and every open
// Engine. By default, rhi produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the default
// silent behavior.
//
// Log levels used by rhi:
//   - [slog.LevelDebug]: resource transitions, job completion
//   - [slog.LevelInfo]: engine start and driver selection
//   - [slog.LevelWarn]: failed initialization, cache misuse, failed jobs
//   - [slog.LevelError]: driver errors caught by the debug error check
//
// Example:
//
//	rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	enginesMu.Lock()
	open := make([]*Engine, 0, len(engines))
	for e := range engines {
		open = append(open, e)
	}
	enginesMu.Unlock()
	for _, e := range open {
		e.SetLogger(l)
	}
}

// Logger returns the current logger used by rhi.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by subsystems that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to every target that accepts a logger.
func propagateLogger(l *slog.Logger, targets ...any) {
	for _, t := range targets {
		if ls, ok := t.(loggerSetter); ok {
			ls.SetLogger(l)
		}
	}
}

func trackEngine(e *Engine) {
	enginesMu.Lock()
	engines[e] = struct{}{}
	enginesMu.Unlock()
}

func untrackEngine(e *Engine) {
	enginesMu.Lock()
	delete(engines, e)
	enginesMu.Unlock()
}
