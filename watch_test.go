package jsonfile

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestWatch(t *testing.T) {
	t.Run("external change triggers reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.json")
		f, err := New(path, &Options{Default: map[string]any{"v": 1.0}})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		changed := make(chan struct{}, 16)
		if err := f.Watch(ctx, func() { changed <- struct{}{} }); err != nil {
			t.Fatalf("Watch failed: %v", err)
		}
		// Simulate another process replacing the file atomically.
		if err := WriteFileAtomic(path, []byte(`{"v": 2}`)); err != nil {
			t.Fatal(err)
		}
		deadline := time.After(5 * time.Second)
		want := map[string]any{"v": 2.0}
		for {
			select {
			case <-changed:
				if got := f.Value(); reflect.DeepEqual(got, want) {
					return
				}
			case <-deadline:
				t.Fatalf("no reload observed; Value() = %v, want %v", f.Value(), want)
			}
		}
	})
	t.Run("corrupt change keeps running and repairs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.json")
		f, err := New(path, &Options{Default: map[string]any{"ok": true}})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		changed := make(chan struct{}, 16)
		if err := f.Watch(ctx, func() { changed <- struct{}{} }); err != nil {
			t.Fatalf("Watch failed: %v", err)
		}
		// A watcher reload runs with repair enabled, so scribbling garbage
		// over the file ends with the default restored.
		if err := WriteFileAtomic(path, []byte("{ invalid json")); err != nil {
			t.Fatal(err)
		}
		deadline := time.After(5 * time.Second)
		want := map[string]any{"ok": true}
		for {
			select {
			case <-changed:
				if got := f.Value(); reflect.DeepEqual(got, want) {
					return
				}
			case <-deadline:
				t.Fatalf("no repair observed; Value() = %v, want %v", f.Value(), want)
			}
		}
	})
	t.Run("missing parent directory reports AccessError", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gone", "doc.json")
		f, err := New(path, &Options{SkipLoad: true})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var aerr *AccessError
		if err := f.Watch(ctx, nil); !errors.As(err, &aerr) {
			t.Fatalf("Watch error = %v, want *AccessError", err)
		}
	})
	t.Run("cancel stops the watcher", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doc.json")
		f, err := New(path, &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		if err := f.Watch(ctx, nil); err != nil {
			t.Fatalf("Watch failed: %v", err)
		}
		cancel()
		// Nothing to assert beyond not panicking or leaking; give the
		// goroutine a moment to wind down.
		time.Sleep(50 * time.Millisecond)
	})
}
