package jsonfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path so that a concurrent reader observes
// either the previous content or the new content in full, never a partial
// write. The temp file is created in the target's own directory so the final
// rename stays on one filesystem and is atomic. Parent directories are
// created as needed. Every failure is reported as [*AccessError] with the
// underlying cause attached.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &AccessError{Path: path, Err: fmt.Errorf("failed to create directory: %w", err)}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &AccessError{Path: path, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		return &AccessError{Path: path, Err: errors.Join(fmt.Errorf("failed to write temp file: %w", err), tmp.Close(), os.Remove(tmpPath))}
	}
	if err := tmp.Close(); err != nil {
		return &AccessError{Path: path, Err: errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &AccessError{Path: path, Err: errors.Join(fmt.Errorf("failed to replace file: %w", err), os.Remove(tmpPath))}
	}
	return nil
}

// CopyFileAtomic copies src over dst with the same all-or-nothing guarantee
// as [WriteFileAtomic]: the content is streamed into a temp file in dst's
// directory, then renamed over dst. On failure the temp file is removed
// best-effort, a cleanup fault being joined to the original error.
func CopyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &AccessError{Path: src, Err: err}
	}
	defer func() { _ = in.Close() }()
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &AccessError{Path: dst, Err: fmt.Errorf("failed to create directory: %w", err)}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return &AccessError{Path: dst, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		return &AccessError{Path: dst, Err: errors.Join(fmt.Errorf("failed to copy %q: %w", src, err), tmp.Close(), os.Remove(tmpPath))}
	}
	if err := tmp.Close(); err != nil {
		return &AccessError{Path: dst, Err: errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return &AccessError{Path: dst, Err: errors.Join(fmt.Errorf("failed to replace file: %w", err), os.Remove(tmpPath))}
	}
	return nil
}
