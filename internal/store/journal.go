package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/crimson-sun/waflog/internal/model"
)

// journal keeps the log as newline-delimited JSON, one entry per line, and
// appends with O_APPEND plus fsync. A final line without a newline is kept
// when it decodes as a whole entry, since files written by other tools often
// omit the last newline. Anything else after the last newline is the remains
// of an interrupted append and is not part of the log.
type journal struct {
	path string
	f    *os.File
	size int64 // bytes of committed lines
}

func (j *journal) open() (int, error) {
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrUnavailable, j.path, err)
	}

	data, _, err := readFile(j.path)
	if err != nil {
		f.Close()
		return 0, err
	}
	entries, committed, err := decodeLines(data)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("%w: %s: %w", ErrCorrupt, j.path, err)
	}

	if committed > 0 && data[committed-1] != '\n' {
		// Terminate the unterminated last entry so the next append starts
		// on its own line.
		if err := terminate(f); err != nil {
			f.Close()
			return 0, fmt.Errorf("%w: terminate last line of %s: %w", ErrUnavailable, j.path, err)
		}
		committed++
	} else if torn := int64(len(data)) - committed; torn > 0 {
		if err := f.Truncate(committed); err != nil {
			f.Close()
			return 0, fmt.Errorf("%w: truncate torn tail of %s: %w", ErrUnavailable, j.path, err)
		}
		slog.Warn("discarded incomplete journal line", "path", j.path, "bytes", torn)
	}

	j.f = f
	j.size = committed
	return len(entries), nil
}

func terminate(f *os.File) error {
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return err
	}
	return f.Sync()
}

func (j *journal) append(e model.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrAppendFailed, err)
	}
	data = append(data, '\n')

	if _, err := j.f.Write(data); err != nil {
		return j.rollback(fmt.Errorf("write %s: %w", j.path, err))
	}
	if err := j.f.Sync(); err != nil {
		return j.rollback(fmt.Errorf("sync %s: %w", j.path, err))
	}
	j.size += int64(len(data))
	return nil
}

// rollback cuts the file back to the last committed line after a failed
// append.
func (j *journal) rollback(cause error) error {
	if err := j.f.Truncate(j.size); err != nil {
		cause = errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return fmt.Errorf("%w: %w", ErrAppendFailed, cause)
}

func (j *journal) snapshot() ([]model.Entry, error) {
	data, _, err := readFile(j.path)
	if err != nil {
		return nil, err
	}
	entries, _, err := decodeLines(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, j.path, err)
	}
	return entries, nil
}

func (j *journal) close() error {
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// decodeLines decodes every line and returns the byte length of the
// committed prefix. Blank lines are skipped. An unterminated last line is
// committed only if it decodes; otherwise it is left out of the prefix.
func decodeLines(data []byte) ([]model.Entry, int64, error) {
	entries := []model.Entry{}
	var offset int64
	lineNo := 0
	for {
		i := bytes.IndexByte(data[offset:], '\n')
		if i < 0 {
			tail := bytes.TrimSpace(data[offset:])
			var e model.Entry
			if len(tail) == 0 || json.Unmarshal(tail, &e) != nil {
				return entries, offset, nil
			}
			return append(entries, e), int64(len(data)), nil
		}
		line := bytes.TrimSpace(data[offset : offset+int64(i)])
		offset += int64(i) + 1
		lineNo++
		if len(line) == 0 {
			continue
		}
		var e model.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
}
