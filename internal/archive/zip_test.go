package archive_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"repack/internal/archive"
	"repack/internal/services"
)

type zipItem struct {
	name string
	body string
	mode fs.FileMode
}

func buildZip(t *testing.T, items ...zipItem) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for _, item := range items {
		hdr := &zip.FileHeader{Name: item.name, Method: zip.Deflate}
		if item.mode != 0 {
			hdr.SetMode(item.mode)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := w.Write([]byte(item.body)); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestZipRoundTrip(t *testing.T) {
	src := sampleTree(t)
	codec := archive.NewZip(archive.Options{})
	out := filepath.Join(t.TempDir(), "out.zip")

	if err := codec.Pack(context.Background(), src, out); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	dst := t.TempDir()
	if err := codec.Extract(context.Background(), out, dst); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	assertSameTree(t, readTree(t, src), readTree(t, dst))
}

func TestZipPackOrdersEntriesWithoutStagingPrefix(t *testing.T) {
	src := sampleTree(t)
	out := filepath.Join(t.TempDir(), "out.zip")
	if err := archive.NewZip(archive.Options{}).Pack(context.Background(), src, out); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	r, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	want := []string{"a.txt", "empty/", "sub/", "sub/b.txt", "sub/deep/", "sub/deep/c", "z-last.bin"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("entries = %v, want %v", names, want)
	}
}

func TestZipPackRefusesExistingOutput(t *testing.T) {
	src := sampleTree(t)
	out := filepath.Join(t.TempDir(), "out.zip")
	if err := os.WriteFile(out, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := archive.NewZip(archive.Options{}).Pack(context.Background(), src, out)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io failure, got %v", err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "keep" {
		t.Fatalf("existing output clobbered: %q", data)
	}
}

func TestZipExtractRejectsEscapingEntries(t *testing.T) {
	tests := []struct {
		name string
		item zipItem
	}{
		{"parent traversal", zipItem{name: "../evil.txt", body: "x"}},
		{"nested traversal", zipItem{name: "ok/../../evil.txt", body: "x"}},
		{"absolute", zipItem{name: "/tmp/evil.txt", body: "x"}},
		{"backslash traversal", zipItem{name: `..\evil.txt`, body: "x"}},
		{"symlink outside", zipItem{name: "link", body: "../../outside", mode: fs.ModeSymlink | 0o777}},
		{"absolute symlink", zipItem{name: "link", body: "/etc/passwd", mode: fs.ModeSymlink | 0o777}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := buildZip(t, zipItem{name: "fine.txt", body: "ok"}, tt.item)
			parent := t.TempDir()
			dst := filepath.Join(parent, "content")
			if err := os.Mkdir(dst, 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}

			err := archive.NewZip(archive.Options{}).Extract(context.Background(), src, dst)
			if !errors.Is(err, services.ErrCorrupt) {
				t.Fatalf("expected corrupt archive error, got %v", err)
			}
			if !strings.Contains(err.Error(), "escapes the staging directory") {
				t.Fatalf("unexpected message: %v", err)
			}
			if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("file written outside staging directory")
			}
		})
	}
}

func TestZipExtractRejectsChainedSymlinks(t *testing.T) {
	src := buildZip(t,
		zipItem{name: "a/l", body: "..", mode: fs.ModeSymlink | 0o777},
		zipItem{name: "a/l/a/l/z", body: "../../..", mode: fs.ModeSymlink | 0o777},
	)
	parent := t.TempDir()
	dst := filepath.Join(parent, "content")
	if err := os.Mkdir(dst, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err := archive.NewZip(archive.Options{}).Extract(context.Background(), src, dst)
	if !errors.Is(err, services.ErrCorrupt) {
		t.Fatalf("expected corrupt archive error, got %v", err)
	}
	if !strings.Contains(err.Error(), "corrupt archive: extraction:") {
		t.Fatalf("unexpected message: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dst, "z")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("escaping link left in staging directory")
	}
}

func TestZipExtractKeepsInternalSymlink(t *testing.T) {
	src := buildZip(t,
		zipItem{name: "data/a.txt", body: "alpha"},
		zipItem{name: "data/link", body: "a.txt", mode: fs.ModeSymlink | 0o777},
	)
	dst := t.TempDir()
	if err := archive.NewZip(archive.Options{}).Extract(context.Background(), src, dst); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	target, err := os.Readlink(filepath.Join(dst, "data", "link"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != "a.txt" {
		t.Fatalf("link target = %q", target)
	}
}

func TestZipExtractEnforcesLimits(t *testing.T) {
	tests := []struct {
		name   string
		limits archive.Limits
	}{
		{"entries", archive.Limits{MaxEntries: 1}},
		{"entry bytes", archive.Limits{MaxEntryBytes: 4}},
		{"total bytes", archive.Limits{MaxTotalBytes: 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := buildZip(t, zipItem{name: "a.txt", body: "0123456789"}, zipItem{name: "b.txt", body: "0123456789"})
			err := archive.NewZip(archive.Options{Limits: tt.limits}).Extract(context.Background(), src, t.TempDir())
			if !errors.Is(err, services.ErrCorrupt) {
				t.Fatalf("expected corrupt archive error, got %v", err)
			}
			if !strings.Contains(err.Error(), "extraction limit") {
				t.Fatalf("expected limit message, got %v", err)
			}
		})
	}
}

func TestZipExtractClassifiesBadInput(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.zip")
	if err := os.WriteFile(garbage, []byte("definitely not a zip archive"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	codec := archive.NewZip(archive.Options{})

	if err := codec.Extract(context.Background(), garbage, t.TempDir()); !errors.Is(err, services.ErrCorrupt) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
	if err := codec.Extract(context.Background(), filepath.Join(dir, "missing.zip"), t.TempDir()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
