package jsonfile

import (
	"errors"
	"path/filepath"
	"sync"
)

// Pool deduplicates [File] instances by absolute path so every caller sharing
// a path shares one in-memory document and one lock. It is safe for
// concurrent use. Construct with [NewPool]; there is no hidden package-level
// pool, so tests can use a fresh one without cross-test leakage.
type Pool struct {
	mu    sync.Mutex
	files map[string]*poolEntry
}

// poolEntry serializes construction per path. Holding only the entry lock
// during New keeps a slow construction (say, copying a large default file)
// from blocking Load for unrelated paths.
type poolEntry struct {
	mu      sync.Mutex
	file    *File // nil until constructed
	dropped bool  // construction failed, entry removed from the pool
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{files: map[string]*poolEntry{}}
}

// Load returns the shared File for path, constructing one with opts on first
// access. Paths are canonicalized to absolute form, so differently spelled
// paths to the same file share one instance. opts only applies when the
// construction actually happens; a failed construction is not cached.
//
// Concurrent Loads of the same path serialize on that path alone; the
// construction I/O never blocks Loads for other paths.
func (p *Pool) Load(path string, opts *Options) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &AccessError{Path: path, Err: err}
	}
	for {
		p.mu.Lock()
		e, ok := p.files[abs]
		if !ok {
			e = &poolEntry{}
			p.files[abs] = e
		}
		p.mu.Unlock()

		e.mu.Lock()
		if e.file != nil {
			e.mu.Unlock()
			return e.file, nil
		}
		if e.dropped {
			// A concurrent construction failed while we waited; start over
			// with a fresh entry.
			e.mu.Unlock()
			continue
		}
		f, err := New(abs, opts)
		if err != nil {
			e.dropped = true
			e.mu.Unlock()
			p.mu.Lock()
			if p.files[abs] == e {
				delete(p.files, abs)
			}
			p.mu.Unlock()
			return nil, err
		}
		e.file = f
		e.mu.Unlock()
		return f, nil
	}
}

// Len returns the number of cached files.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}

// Sync saves every file in the pool. A failure on one file does not prevent
// attempts on the others; all failures are returned joined.
func (p *Pool) Sync() error {
	var errs []error
	for _, f := range p.snapshot() {
		if err := f.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset drops every cached File without saving. Primarily for test isolation
// and process-wide state resets.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.files)
}

// Close saves every file as [Pool.Sync], then drops them all. The files are
// dropped even when some saves fail.
func (p *Pool) Close() error {
	err := p.Sync()
	p.Reset()
	return err
}

// snapshot copies the file list so Sync does not hold the pool lock across
// individual saves. Waits for in-flight constructions so a freshly loaded
// file is not skipped.
func (p *Pool) snapshot() []*File {
	p.mu.Lock()
	entries := make([]*poolEntry, 0, len(p.files))
	for _, e := range p.files {
		entries = append(entries, e)
	}
	p.mu.Unlock()
	files := make([]*File, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.file != nil {
			files = append(files, e.file)
		}
		e.mu.Unlock()
	}
	return files
}
