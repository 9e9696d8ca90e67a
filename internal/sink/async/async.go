package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async sink closed")

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity. Default: 1024.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner sink's Write fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Write return immediately (dropping the entry) when the
// buffer is full, instead of blocking.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithDrainTimeout bounds how long Close waits for buffered entries.
// Default: 5s.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) { a.drainTimeout = d }
}

// Async decouples the store's append path from slow sinks. Entries go into a
// buffered channel that a background goroutine drains into the wrapped sink.
// Errors from the inner sink go to errFunc, never back to the caller.
type Async struct {
	inner        sink.Sink
	ch           chan model.Entry
	done         chan struct{}
	errFunc      func(error)
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// New wraps a sink in an async channel-based writer. The drain goroutine
// starts immediately.
func New(inner sink.Sink, opts ...Option) *Async {
	a := &Async{
		inner:        inner,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
		errFunc:      func(err error) { slog.Warn("async sink write error", "error", err) },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan model.Entry, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Write queues the entry. By default it blocks while the buffer is full, until
// ctx is done. With WithDropOnFull it returns nil and the entry is lost.
func (a *Async) Write(ctx context.Context, entry model.Entry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	if a.dropOnFull {
		select {
		case a.ch <- entry:
		default:
			slog.Warn("async sink buffer full, dropping entry",
				"timestamp", entry.Request.Timestamp, "attack_class", entry.Detection.AttackClass)
		}
		return nil
	}

	select {
	case a.ch <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries, waits for the drain goroutine (bounded by
// the drain timeout), then closes the inner sink. Safe to call twice.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-time.After(a.drainTimeout):
		slog.Warn("async sink drain timed out", "pending", len(a.ch))
	}
	return a.inner.Close()
}

func (a *Async) drain() {
	defer close(a.done)
	for entry := range a.ch {
		if err := a.inner.Write(context.Background(), entry); err != nil {
			a.errFunc(err)
		}
	}
}
