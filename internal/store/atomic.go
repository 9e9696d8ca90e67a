package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// rename is swapped out by tests to simulate a crash before the rename.
var rename = os.Rename

const tempSuffix = ".tmp.*"

// atomicWriteFile writes data to a temporary file in the same directory,
// syncs it and renames it over path. Readers see either the old or the new
// contents, never a mix.
func atomicWriteFile(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempSuffix)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if success {
			return
		}
		tmp.Close()
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.Join(err, fmt.Errorf("removing temp file: %w", rmErr))
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	success = true

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry for a completed rename. Not every
// platform supports syncing a directory, so failures are only logged.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		slog.Debug("directory sync failed", "dir", dir, "error", err)
	}
}

// removeStaleTemps deletes temp files left behind by an interrupted write.
func removeStaleTemps(path string) {
	matches, err := filepath.Glob(path + tempSuffix)
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			slog.Warn("could not remove stale temp file", "path", m, "error", err)
			continue
		}
		slog.Info("removed stale temp file", "path", m)
	}
}
