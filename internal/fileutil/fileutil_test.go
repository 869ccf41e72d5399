package fileutil_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"repack/internal/fileutil"
)

func TestCleanFilename(t *testing.T) {
	tests := map[string]string{
		"archive.zip":             "archive.zip",
		"../../etc/passwd":        "passwd",
		`C:\Users\me\Backup.7z`:   "Backup.7z",
		"café résumé.tar.gz":      "cafe resume.tar.gz",
		"weird<>:name?.zip":       "weird___name_.zip",
		"":                        "file",
		"...":                     "file",
		"-rf.tar":                 "rf.tar",
		"  spaced name .zip  ":    "spaced name .zip",
	}
	for input, want := range tests {
		if got := fileutil.CleanFilename(input); got != want {
			t.Fatalf("CleanFilename(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCleanFilenameTruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("a", 300) + ".tar"
	got := fileutil.CleanFilename(long)
	if len(got) != 200 || !strings.HasSuffix(got, ".tar") {
		t.Fatalf("unexpected truncation %q (%d bytes)", got, len(got))
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Photos.zip", "my-photos-zip"},
		{"../x", "x"},
		{"", "file"},
		{strings.Repeat("ab", 40), strings.Repeat("ab", 16)},
	}
	for _, tt := range tests {
		if got := fileutil.Slug(tt.in, 32, "job"); got != tt.want {
			t.Fatalf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum, size, err := fileutil.Digest(path)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	// BLAKE3 of the empty input.
	const want = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	if sum != want || size != 0 {
		t.Fatalf("Digest = %s/%d, want %s/0", sum, size, want)
	}

	if _, _, err := fileutil.Digest(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
