package staging_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"repack/internal/logging"
	"repack/internal/services"
	"repack/internal/staging"
)

func TestAcquireCreatesUniqueLockedAreas(t *testing.T) {
	root := filepath.Join(t.TempDir(), "staging")
	m := staging.NewManager(root, logging.NewNop())

	first, err := m.Acquire(context.Background(), "archive.zip")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second, err := m.Acquire(context.Background(), "archive.zip")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if first.Path == second.Path {
		t.Fatal("expected distinct areas for the same key")
	}
	if !strings.HasPrefix(filepath.Base(first.Path), "archive-zip-") {
		t.Fatalf("unexpected area name %q", filepath.Base(first.Path))
	}
	if info, err := os.Stat(first.Content); err != nil || !info.IsDir() {
		t.Fatalf("content directory missing: %v", err)
	}

	dirs, err := staging.ListDirectories(root)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 areas, got %d", len(dirs))
	}
	for _, d := range dirs {
		if !d.Active {
			t.Fatalf("expected %s to be reported active", d.Name)
		}
	}

	for _, area := range []*staging.Area{first, second} {
		if err := area.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected empty staging root, found %d entries", len(entries))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := staging.NewManager(t.TempDir(), nil)
	area, err := m.Acquire(context.Background(), "x")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := os.WriteFile(filepath.Join(area.Content, "f"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := area.Release(); err != nil {
			t.Fatalf("Release #%d: %v", i, err)
		}
	}
	if _, err := os.Stat(area.Path); !os.IsNotExist(err) {
		t.Fatal("area should be gone")
	}
	var nilArea *staging.Area
	if err := nilArea.Release(); err != nil {
		t.Fatalf("nil Release: %v", err)
	}
}

func TestReleaseReportsRemoveFailureOnce(t *testing.T) {
	calls := 0
	m := staging.NewManager(t.TempDir(), nil, staging.WithRemoveFunc(func(string) error {
		calls++
		return errors.New("device busy")
	}))
	area, err := m.Acquire(context.Background(), "x")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	for i := 0; i < 2; i++ {
		err := area.Release()
		if !errors.Is(err, services.ErrIO) {
			t.Fatalf("Release #%d: expected io failure, got %v", i, err)
		}
		if !strings.Contains(err.Error(), "device busy") {
			t.Fatalf("Release #%d: unexpected message %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("remove called %d times, want 1", calls)
	}
	if _, err := os.Stat(area.Path); err != nil {
		t.Fatalf("area should remain on disk: %v", err)
	}
}

func TestAcquireConcurrentSameKey(t *testing.T) {
	m := staging.NewManager(t.TempDir(), nil)
	const workers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = map[string]struct{}{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			area, err := m.Acquire(context.Background(), "same.tar")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			paths[area.Path] = struct{}{}
			mu.Unlock()
			_ = area.Release()
		}()
	}
	wg.Wait()
	if len(paths) != workers {
		t.Fatalf("expected %d distinct areas, got %d", workers, len(paths))
	}
}

func TestAcquireFailsWhenRootUnusable(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := staging.NewManager(filepath.Join(blocker, "staging"), nil)
	_, err := m.Acquire(context.Background(), "job")
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io failure, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "io failure: staging:") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
