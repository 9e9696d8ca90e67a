// Package file exports committed entries as NDJSON to a local file with
// optional size-based rotation.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
)

const (
	defaultBufSize = 64 * 1024 // 64KB
	maxRotated     = 10
)

func init() {
	sink.Register("file", fromConfig)
}

// fromConfig builds a file sink. Endpoint is the output path; Extra keys:
// max_size (bytes, rotation threshold) and format=summary.
func fromConfig(cfg sink.Config) (sink.Sink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("file sink: endpoint (output path) is required")
	}
	var opts []Option
	if v := cfg.Extra["max_size"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("file sink: invalid max_size %q", v)
		}
		opts = append(opts, WithMaxSize(n))
	}
	if cfg.Extra["format"] == "summary" {
		opts = append(opts, WithSummary())
	}
	return New(cfg.Endpoint, opts...)
}

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// WithSummary writes sink.Summary lines instead of full entries.
func WithSummary() Option {
	return func(o *Output) { o.summary = true }
}

// Output writes NDJSON to a file with buffered I/O and optional rotation.
// Lines sit in the buffer until it fills, the file rotates, or Close.
type Output struct {
	w       *bufio.Writer
	f       *os.File
	mu      sync.Mutex
	path    string
	summary bool
	maxSize int64 // 0 = no rotation
	written int64
	bufSize int
}

// New creates a file output appending NDJSON to path.
func New(path string, opts ...Option) (*Output, error) {
	o := &Output{
		path:    path,
		bufSize: defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.openFile(); err != nil {
		return nil, err
	}
	return o, nil
}

// Write appends entry as one line.
func (o *Output) Write(_ context.Context, entry model.Entry) error {
	var v any = entry
	if o.summary {
		v = sink.Summarize(entry)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("file sink: marshal: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.maxSize > 0 && o.written > 0 && o.written+int64(len(data)) > o.maxSize {
		if err := o.rotate(); err != nil {
			return fmt.Errorf("file sink: rotate: %w", err)
		}
	}

	n, err := o.w.Write(data)
	o.written += int64(n)
	if err != nil {
		return fmt.Errorf("file sink: write: %w", err)
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return fmt.Errorf("file sink: flush: %w", err)
	}
	return o.f.Close()
}

func (o *Output) openFile() error {
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("file sink: open %s: %w", o.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file sink: stat %s: %w", o.path, err)
	}
	o.f = f
	o.w = bufio.NewWriterSize(f, o.bufSize)
	o.written = info.Size()
	return nil
}

// rotate closes the current file and shifts it to {path}.1, moving older
// files up to {path}.10. The oldest is overwritten.
func (o *Output) rotate() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}

	for i := maxRotated - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", o.path, i)
		to := fmt.Sprintf("%s.%d", o.path, i+1)
		if err := os.Rename(from, to); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.Rename(o.path, o.path+".1"); err != nil {
		return err
	}

	o.written = 0
	return o.openFile()
}
