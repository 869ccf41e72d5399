package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"repack/internal/config"
	"repack/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 0); !result.Passed {
		t.Fatalf("expected pass without minimum, got %s", result.Detail)
	}
	result := CheckFreeSpace("space", dir, 1<<62)
	if result.Passed {
		t.Fatal("expected failure for an impossible minimum")
	}
	if !strings.Contains(result.Detail, "need") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 0); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestRunAll(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.UploadDir = filepath.Join(base, "uploads")
	cfg.Paths.OutputDir = filepath.Join(base, "outputs")
	cfg.Limits.MinFreeBytes = 0
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	results := RunAll(&cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected output directory checks to fail, got %#v", failed)
	}
	for _, r := range failed {
		if !strings.HasPrefix(r.Name, "Output") {
			t.Fatalf("unexpected failure %#v", r)
		}
	}
	if RunAll(nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestCheckSystemDepsConfiguredBinary(t *testing.T) {
	cfg := config.Default()
	cfg.Conversion.SevenZipBinary = filepath.Join(t.TempDir(), "no-such-7z")
	statuses := CheckSystemDeps(&cfg)
	if len(statuses) != 1 || statuses[0].Available {
		t.Fatalf("unexpected statuses %#v", statuses)
	}
}

func TestCheckSystemDepsFindsSevenZipOnPath(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("7zz"))
	statuses := CheckSystemDeps(cfg)
	if len(statuses) != 1 || !statuses[0].Available {
		t.Fatalf("expected stub 7zz to be found, got %#v", statuses)
	}
	wantDir := filepath.Join(testsupport.BaseDir(cfg), "bin")
	if filepath.Dir(statuses[0].Path) != wantDir {
		t.Fatalf("path = %s, want inside %s", statuses[0].Path, wantDir)
	}
}
