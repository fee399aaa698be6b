package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file whenever it changes on disk, until ctx is canceled.
// The parent directory is watched rather than the file itself so the watch
// survives the rename performed by an atomic write. onChange, when not nil,
// runs after every successful reload; note that this process's own saves also
// trigger one, since the rename touches the watched path (that reload is a
// harmless read-back of what was just written).
//
// Setup failures are reported as [*AccessError]. Reload faults are logged and
// the watch keeps running; the in-memory value is left as it was.
func (f *File) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return &AccessError{Path: f.path, Err: fmt.Errorf("failed to create watcher: %w", err)}
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return &AccessError{Path: f.path, Err: errors.Join(fmt.Errorf("failed to watch directory: %w", err), w.Close())}
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != f.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
					if err := f.Reload(true); err != nil {
						slog.WarnContext(ctx, "Failed to reload after file change", "path", f.path, "err", err)
						continue
					}
					if onChange != nil {
						onChange()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching file", "path", f.path, "err", err)
			}
		}
	}()
	return nil
}
