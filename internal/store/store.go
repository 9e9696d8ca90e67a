// Package store is a durable, append-only log of WAF entries backed by a
// single file.
//
// Appends serialize through one writer lock. Snapshots never take that lock:
// they read the file directly and only ever see committed data, because the
// JSON format replaces the file with an atomic rename and the journal format
// ignores a trailing line that has not been completely written.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
)

// Format selects the on-disk layout.
type Format string

const (
	// FormatJSON stores one JSON array, compatible with log files written by earlier versions.
	FormatJSON Format = "json"
	// FormatJournal stores newline-delimited JSON with O(1) appends.
	FormatJournal Format = "ndjson"
)

// ParseFormat converts a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatJournal:
		return Format(s), nil
	case "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown store format %q (want json or ndjson)", s)
}

type backend interface {
	open() (int, error)
	append(e model.Entry) error
	snapshot() ([]model.Entry, error)
	close() error
}

// Option configures a Store.
type Option func(*Store)

// WithFormat selects the on-disk layout. Default: FormatJSON.
func WithFormat(f Format) Option {
	return func(s *Store) { s.format = f }
}

// WithSink forwards every committed entry to snk. Sink errors are logged and
// do not fail the append.
func WithSink(snk sink.Sink) Option {
	return func(s *Store) { s.sink = snk }
}

// Store is safe for concurrent use.
type Store struct {
	path   string
	format Format
	sink   sink.Sink

	mu      sync.Mutex // serializes appends and Close
	backend backend
	count   int
	closed  bool
}

// Open opens the log at path, creating an empty one if the file does not
// exist. An existing file that cannot be decoded fails with ErrCorrupt; it is
// never replaced.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, format: FormatJSON}
	for _, opt := range opts {
		opt(s)
	}

	switch s.format {
	case FormatJSON:
		s.backend = &jsonFile{path: path}
	case FormatJournal:
		s.backend = &journal{path: path}
	default:
		return nil, fmt.Errorf("store: unknown format %q", s.format)
	}

	n, err := s.backend.open()
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	s.count = n
	slog.Info("log store opened", "path", path, "format", s.format, "entries", n)
	return s, nil
}

// Append validates e and adds it to the end of the log. On return without
// error the entry is durable and will appear last in every later Snapshot.
func (s *Store) Append(e model.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	e = e.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store: %w: store closed", ErrAppendFailed)
	}
	if err := s.backend.append(e); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	s.count++

	// Delivered under the lock so sinks see commit order.
	if s.sink != nil {
		if err := s.sink.Write(context.Background(), e); err != nil {
			slog.Warn("sink write failed", "error", err)
		}
	}
	return nil
}

// Snapshot returns every committed entry in append order. The result is never
// nil.
func (s *Store) Snapshot() ([]model.Entry, error) {
	entries, err := s.backend.snapshot()
	if err != nil {
		return nil, fmt.Errorf("store: snapshot: %w", err)
	}
	return entries, nil
}

// Len returns the number of entries committed through this Store, including
// those present when it was opened.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the backing file and closes the sink. Later appends fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.backend.close(); err != nil {
		errs = append(errs, err)
	}
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
