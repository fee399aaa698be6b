package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Options configures a [File]. The zero value gives the standard behavior:
// load on construction, eager validation of the recovery material, and
// save-on-exit in [File.Use].
type Options struct {
	// Default is the JSON value written to the file when it is missing or
	// corrupt. It is captured as a deep copy at construction, so later
	// mutation of the caller's value never changes what recovery writes.
	// nil is a valid default: the file then recovers to JSON null.
	Default any
	// DefaultPath is the path of a JSON file used as recovery material
	// instead of Default. When set it takes precedence over Default.
	DefaultPath string
	// Settings overrides [DefaultSettings] for this file.
	Settings *Settings
	// Lenient skips the eager validation of the recovery material and lets
	// the initial load fail on problems the material would otherwise repair.
	// Configuration errors then surface on the first reload that needs the
	// default instead of at construction.
	Lenient bool
	// SkipLoad suppresses the initial load. The value is nil until the first
	// Reload.
	SkipLoad bool
	// DisableAutoSave stops [File.Use] from saving on successful return.
	DisableAutoSave bool
}

// File pairs one JSON file on disk with its in-memory value.
//
// After any successful Reload or Save the file on disk and the in-memory
// value are consistent representations of the same document, modulo in-memory
// mutations not yet saved.
type File struct {
	path        string // absolute, immutable
	settings    Settings
	defaultData any    // deep copy, never aliased with caller structures
	defaultPath string // overrides defaultData when non-empty
	autoSave    bool

	mu    sync.Mutex
	value any
}

// New creates a File for path, resolving it to an absolute path, and unless
// opts.SkipLoad is set loads it from disk, creating or repairing the file
// from the recovery material as needed. It either returns a fully loaded,
// consistent File or an error; never a partially constructed one.
//
// Unless opts.Lenient is set, unusable recovery material fails construction
// immediately with [*InvalidDefaultError] (or [*AccessError] for an
// unreadable default file) rather than lazily on a later reload.
func New(path string, opts *Options) (*File, error) {
	if opts == nil {
		opts = &Options{}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &AccessError{Path: path, Err: err}
	}
	f := &File{
		path:     abs,
		settings: DefaultSettings,
		autoSave: !opts.DisableAutoSave,
	}
	if opts.Settings != nil {
		f.settings = *opts.Settings
	}
	if opts.DefaultPath != "" {
		if !opts.Lenient {
			raw, err := os.ReadFile(opts.DefaultPath)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				return nil, &InvalidDefaultError{Path: opts.DefaultPath, Err: err}
			case err != nil:
				return nil, &AccessError{Path: opts.DefaultPath, Err: err}
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, &InvalidDefaultError{Path: opts.DefaultPath, Err: err}
			}
		}
		f.defaultPath = opts.DefaultPath
	} else {
		if !opts.Lenient {
			if _, err := Marshal(opts.Default, f.settings); err != nil {
				return nil, &InvalidDefaultError{Path: abs, Err: err}
			}
		}
		// Captured regardless of validity; a lenient File defers the
		// problem to the first reload that needs the default.
		f.defaultData = deepCopy(opts.Default)
	}
	if !opts.SkipLoad {
		if err := f.Reload(!opts.Lenient); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Path returns the absolute path of the backing file.
func (f *File) Path() string {
	return f.path
}

// Value returns the current in-memory document. The returned value is shared,
// not a copy: mutations made to it are what the next Save persists.
func (f *File) Value() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Set replaces the in-memory document. It does not touch the disk; call
// [File.Save] to persist.
func (f *File) Set(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
}

// Reload reads the file from disk, creating or repairing it from the
// recovery material when it is missing or does not parse.
//
// With repair true, a parse fault rewrites the file from the default and
// re-reads it exactly once; should the retry fail too, the file is replaced
// with an empty object so Reload always terminates in a loaded state. With
// repair false, a parse fault returns [*ParseError], or
// [*InvalidDefaultError] when a default file is configured (the copied
// default, not the target, is then the likely culprit), and the file is left
// untouched.
//
// I/O faults always return [*AccessError], regardless of repair.
func (f *File) Reload(repair bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloadLocked(repair)
}

func (f *File) reloadLocked(repair bool) error {
	if _, err := os.Stat(f.path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return &AccessError{Path: f.path, Err: err}
		}
		if err := f.materializeDefault(repair); err != nil {
			return err
		}
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return &AccessError{Path: f.path, Err: err}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		if !repair {
			if f.defaultPath != "" {
				return &InvalidDefaultError{Path: f.defaultPath, Err: err}
			}
			return &ParseError{Path: f.path, Err: err}
		}
		slog.Warn("Recovering corrupt JSON file", "path", f.path, "err", err)
		if err := f.materializeDefault(repair); err != nil {
			return err
		}
		// Single retry, never recurses further.
		raw, err = os.ReadFile(f.path)
		if err != nil {
			return &AccessError{Path: f.path, Err: err}
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			// The default itself is invalid. Fall back to an empty object so
			// a repairing reload always ends in a loaded state.
			slog.Warn("Recovery failed, falling back to empty object", "path", f.path, "err", err)
			if err := WriteFileAtomic(f.path, []byte("{}")); err != nil {
				return err
			}
			v = map[string]any{}
		}
	}
	f.value = v
	return nil
}

// materializeDefault writes the recovery material over the target file. Only
// called with f.mu held; performs at most one write and never recurses into
// reload.
func (f *File) materializeDefault(repair bool) error {
	if f.defaultPath != "" {
		if _, err := os.Stat(f.defaultPath); err == nil {
			return CopyFileAtomic(f.defaultPath, f.path)
		}
		if !repair {
			return &InvalidDefaultError{Path: f.defaultPath, Err: fs.ErrNotExist}
		}
		return WriteFileAtomic(f.path, []byte("{}"))
	}
	data, err := Marshal(f.defaultData, f.settings)
	if err != nil {
		if !repair {
			return &InvalidDefaultError{Path: f.path, Err: err}
		}
		return WriteFileAtomic(f.path, []byte("{}"))
	}
	return WriteFileAtomic(f.path, data)
}

// Save serializes the current value under the instance settings and writes it
// atomically, creating parent directories as needed.
func (f *File) Save() error {
	return f.SaveWith(f.settings)
}

// SaveWith is [File.Save] with one-off serialization settings; the instance
// settings are left unchanged.
func (f *File) SaveWith(s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := Marshal(f.value, s)
	if err != nil {
		return fmt.Errorf("cannot serialize value for %q: %w", f.path, err)
	}
	return WriteFileAtomic(f.path, data)
}

// Use invokes fn with the file and, when auto-save is enabled and fn returned
// nil, saves afterwards. An error from fn is returned unchanged and
// suppresses the save, so a failed scope never persists partial edits.
//
// fn may call any File method; the lock is not held across fn.
func (f *File) Use(fn func(*File) error) error {
	if err := fn(f); err != nil {
		return err
	}
	if f.autoSave {
		return f.Save()
	}
	return nil
}

// deepCopy structurally clones the generic JSON container types. Scalars are
// immutable and returned as-is, as is any non-JSON type, which stays opaque
// until serialization rejects it.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	default:
		return v
	}
}
