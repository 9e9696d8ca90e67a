package store

import "errors"

var (
	// ErrUnavailable means the backing file could not be read or opened.
	ErrUnavailable = errors.New("store unavailable")

	// ErrCorrupt means the backing file exists but does not decode as a
	// log of entries.
	ErrCorrupt = errors.New("store corrupt")

	// ErrAppendFailed means an append did not commit. The previously
	// committed entries are intact.
	ErrAppendFailed = errors.New("append failed")
)
