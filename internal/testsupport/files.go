package testsupport

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"repack/internal/archive"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteTree creates files below root from a slash-separated name to content map.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

// ReadFiles returns the regular files below root keyed by slash-separated
// relative name. Directories are implied by the names.
func ReadFiles(t testing.TB, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return out
}

// BuildArchive packs files into dst with codec.
func BuildArchive(t testing.TB, codec archive.Codec, dst string, files map[string]string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), "fixture")
	WriteTree(t, src, files)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", dst, err)
	}
	if err := codec.Pack(context.Background(), src, dst); err != nil {
		t.Fatalf("pack fixture %s: %v", dst, err)
	}
}

// ExtractArchive unpacks src with codec into a fresh directory and returns
// its files.
func ExtractArchive(t testing.TB, codec archive.Codec, src string) map[string]string {
	t.Helper()
	dst := filepath.Join(t.TempDir(), "extracted")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := codec.Extract(context.Background(), src, dst); err != nil {
		t.Fatalf("extract %s: %v", src, err)
	}
	return ReadFiles(t, dst)
}

// AssertFiles fails the test unless got holds exactly the files in want.
func AssertFiles(t testing.TB, want, got map[string]string) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("file set mismatch:\nwant %v\ngot  %v", want, got)
	}
	for name, content := range want {
		actual, ok := got[name]
		if !ok {
			t.Fatalf("missing %q in %v", name, got)
		}
		if actual != content {
			t.Fatalf("%q = %q, want %q", name, actual, content)
		}
	}
}

// AssertEmptyDir fails the test if dir holds any entries. A missing directory
// counts as empty.
func AssertEmptyDir(t testing.TB, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}
