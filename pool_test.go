package jsonfile

import (
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestPool(t *testing.T) {
	t.Run("same path yields same instance", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		f1, err := p.Load(filepath.Join(dir, "doc.json"), &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		// Spelled differently but pointing at the same file.
		f2, err := p.Load(filepath.Join(dir, ".", "doc.json"), &Options{Default: map[string]any{"ignored": true}})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if f1 != f2 {
			t.Error("Load returned distinct instances for one path")
		}
		if p.Len() != 1 {
			t.Errorf("Len() = %d, want 1", p.Len())
		}
	})
	t.Run("failed construction is not cached", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		path := filepath.Join(dir, "doc.json")
		_, err := p.Load(path, &Options{DefaultPath: filepath.Join(dir, "nope.json")})
		var derr *InvalidDefaultError
		if !errors.As(err, &derr) {
			t.Fatalf("Load error = %v, want *InvalidDefaultError", err)
		}
		if p.Len() != 0 {
			t.Errorf("Len() = %d, want 0 after failed Load", p.Len())
		}
		if _, err := p.Load(path, &Options{Default: map[string]any{}}); err != nil {
			t.Fatalf("Load with valid options failed: %v", err)
		}
	})
	t.Run("Sync saves every file", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		a, err := p.Load(filepath.Join(dir, "a.json"), &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatal(err)
		}
		b, err := p.Load(filepath.Join(dir, "b.json"), &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatal(err)
		}
		a.Set(map[string]any{"doc": "a"})
		b.Set(map[string]any{"doc": "b"})
		if err := p.Sync(); err != nil {
			t.Fatalf("Sync failed: %v", err)
		}
		if got := readJSON(t, a.Path()); !reflect.DeepEqual(got, map[string]any{"doc": "a"}) {
			t.Errorf("a = %v", got)
		}
		if got := readJSON(t, b.Path()); !reflect.DeepEqual(got, map[string]any{"doc": "b"}) {
			t.Errorf("b = %v", got)
		}
	})
	t.Run("Sync keeps going past a failing file", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		bad, err := p.Load(filepath.Join(dir, "bad.json"), &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatal(err)
		}
		good, err := p.Load(filepath.Join(dir, "good.json"), &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatal(err)
		}
		bad.Set(map[string]any{"x": make(chan int)})
		good.Set(map[string]any{"saved": true})
		if err := p.Sync(); err == nil {
			t.Fatal("Sync should report the failing file")
		}
		if got := readJSON(t, good.Path()); !reflect.DeepEqual(got, map[string]any{"saved": true}) {
			t.Errorf("good = %v, want saved despite sibling failure", got)
		}
	})
	t.Run("Reset drops instances without saving", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		path := filepath.Join(dir, "doc.json")
		f, err := p.Load(path, &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatal(err)
		}
		f.Set(map[string]any{"unsaved": true})
		p.Reset()
		if p.Len() != 0 {
			t.Errorf("Len() = %d, want 0 after Reset", p.Len())
		}
		f2, err := p.Load(path, &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatal(err)
		}
		if f2 == f {
			t.Error("Load after Reset returned the dropped instance")
		}
		if got := f2.Value(); !reflect.DeepEqual(got, map[string]any{}) {
			t.Errorf("Value() = %v, want on-disk content, not the unsaved edit", got)
		}
	})
	t.Run("Close saves then drops", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		path := filepath.Join(dir, "doc.json")
		f, err := p.Load(path, &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatal(err)
		}
		f.Set(map[string]any{"flushed": true})
		if err := p.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if p.Len() != 0 {
			t.Errorf("Len() = %d, want 0 after Close", p.Len())
		}
		if got := readJSON(t, path); !reflect.DeepEqual(got, map[string]any{"flushed": true}) {
			t.Errorf("file content = %v, want flushed edit", got)
		}
	})
	t.Run("concurrent failures then success", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		path := filepath.Join(dir, "doc.json")
		missing := filepath.Join(dir, "nope.json")
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := p.Load(path, &Options{DefaultPath: missing}); err == nil {
					t.Error("Load with missing default should fail")
				}
			}()
		}
		wg.Wait()
		if p.Len() != 0 {
			t.Errorf("Len() = %d, want 0 after failed Loads", p.Len())
		}
		f, err := p.Load(path, &Options{Default: map[string]any{}})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if p.Len() != 1 {
			t.Errorf("Len() = %d, want 1", p.Len())
		}
		again, err := p.Load(path, nil)
		if err != nil {
			t.Fatal(err)
		}
		if again != f {
			t.Error("Load returned distinct instances for one path")
		}
	})
	t.Run("concurrent Load of distinct paths", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				path := filepath.Join(dir, string(rune('a'+i))+".json")
				if _, err := p.Load(path, &Options{Default: map[string]any{}}); err != nil {
					t.Errorf("Load failed: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if p.Len() != 8 {
			t.Errorf("Len() = %d, want 8", p.Len())
		}
	})
	t.Run("concurrent Load", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPool()
		path := filepath.Join(dir, "doc.json")
		var wg sync.WaitGroup
		files := make([]*File, 8)
		for i := range files {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f, err := p.Load(path, &Options{Default: map[string]any{}})
				if err != nil {
					t.Errorf("Load failed: %v", err)
					return
				}
				files[i] = f
			}(i)
		}
		wg.Wait()
		for _, f := range files[1:] {
			if f != files[0] {
				t.Fatal("concurrent Loads returned distinct instances")
			}
		}
	})
}
