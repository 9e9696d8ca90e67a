package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/crimson-sun/waflog/internal/model"
)

// fileStamp identifies one version of the backing file: which file sits at
// the path, plus its size and modification time. The identity catches a
// replacement by rename that keeps size and mtime; an in-place rewrite of
// equal size within the filesystem's mtime granularity still goes unseen.
type fileStamp struct {
	info os.FileInfo
	size int64
	mod  time.Time
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{info: info, size: info.Size(), mod: info.ModTime()}
}

// matches reports whether info describes the version s was taken from.
func (s fileStamp) matches(info os.FileInfo) bool {
	return s.info != nil && os.SameFile(s.info, info) &&
		s.size == info.Size() && s.mod.Equal(info.ModTime())
}

// jsonFile keeps the log as one indented JSON array. Each append rewrites the
// array through atomicWriteFile. The writer caches the committed collection
// and only re-decodes the file when its stamp changed underneath it.
type jsonFile struct {
	path  string
	cache []model.Entry
	stamp fileStamp
}

func (j *jsonFile) open() (int, error) {
	removeStaleTemps(j.path)

	info, err := os.Stat(j.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := atomicWriteFile(j.path, []byte("[]\n"), 0644); err != nil {
			return 0, fmt.Errorf("%w: create %s: %w", ErrUnavailable, j.path, err)
		}
		slog.Info("log file not found, created empty", "path", j.path)
		return 0, j.refresh()
	}
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %w", ErrUnavailable, j.path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrUnavailable, j.path)
	}

	if err := j.refresh(); err != nil {
		return 0, err
	}
	return len(j.cache), nil
}

// refresh reloads the cache and stamp from disk.
func (j *jsonFile) refresh() error {
	data, info, err := readFile(j.path)
	if err != nil {
		return err
	}
	entries, err := decodeArray(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, j.path, err)
	}
	j.cache = entries
	j.stamp = stampOf(info)
	return nil
}

func (j *jsonFile) append(e model.Entry) error {
	info, err := os.Stat(j.path)
	if err != nil {
		return fmt.Errorf("%w: %w: stat %s: %w", ErrAppendFailed, ErrUnavailable, j.path, err)
	}
	if !j.stamp.matches(info) {
		slog.Debug("log file changed on disk, reloading", "path", j.path)
		if err := j.refresh(); err != nil {
			return fmt.Errorf("%w: %w", ErrAppendFailed, err)
		}
	}

	next := append(slices.Clip(j.cache), e)
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrAppendFailed, err)
	}
	data = append(data, '\n')
	if err := atomicWriteFile(j.path, data, 0644); err != nil {
		return fmt.Errorf("%w: %w", ErrAppendFailed, err)
	}

	j.cache = next
	if info, err := os.Stat(j.path); err == nil {
		j.stamp = stampOf(info)
	} else {
		// Force a reload on the next append.
		j.stamp = fileStamp{}
	}
	return nil
}

func (j *jsonFile) snapshot() ([]model.Entry, error) {
	data, _, err := readFile(j.path)
	if err != nil {
		return nil, err
	}
	entries, err := decodeArray(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, j.path, err)
	}
	return entries, nil
}

func (j *jsonFile) close() error {
	return nil
}

// readFile reads the whole file through one handle so the returned info
// describes the same version as the data.
func readFile(path string) ([]byte, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: stat %s: %w", ErrUnavailable, path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, path, err)
	}
	return buf.Bytes(), info, nil
}

// decodeArray decodes a JSON array of entries. A blank file is an empty log;
// anything other than an array, including null, is rejected.
func decodeArray(data []byte) ([]model.Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []model.Entry{}, nil
	}
	if data[0] != '[' {
		return nil, errors.New("expected a JSON array")
	}
	entries := []model.Entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
