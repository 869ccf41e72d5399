package formats_test

import (
	"errors"
	"strings"
	"testing"

	"repack/internal/deps"
	"repack/internal/formats"
	"repack/internal/services"
)

func TestResolveIsCaseInsensitive(t *testing.T) {
	reg := formats.NewRegistry(formats.Capabilities{SevenZipBinary: "/usr/bin/7zz"})
	tests := map[string]string{
		"ZIP":     "zip",
		".zip":    "zip",
		"Tar.GZ":  "tar.gz",
		"tgz":     "tar.gz",
		" .TZST ": "tar.zst",
		"tlz4":    "tar.lz4",
		"7Z":      "7z",
	}
	for input, want := range tests {
		desc, err := reg.Resolve(input)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", input, err)
		}
		if desc.Token != want {
			t.Fatalf("Resolve(%q) = %q, want %q", input, desc.Token, want)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	reg := formats.NewRegistry(formats.Capabilities{})
	_, err := reg.Resolve("rar")
	if !errors.Is(err, services.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "unsupported format: resolve: rar:") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestResolvePathPrefersLongestSuffix(t *testing.T) {
	reg := formats.NewRegistry(formats.Capabilities{})
	tests := []struct {
		path  string
		token string
		base  string
	}{
		{"/uploads/archive.zip", "zip", "archive"},
		{"/uploads/Backup.TAR.GZ", "tar.gz", "Backup"},
		{"data.tgz", "tar.gz", "data"},
		{"logs.gz", "gz", "logs"},
		{"old.tar.bz2", "tar.bz2", "old"},
		{"my.photos.tar.zst", "tar.zst", "my.photos"},
		{"x.7z", "7z", "x"},
	}
	for _, tt := range tests {
		desc, base, err := reg.ResolvePath(tt.path)
		if err != nil {
			t.Fatalf("ResolvePath(%q): %v", tt.path, err)
		}
		if desc.Token != tt.token || base != tt.base {
			t.Fatalf("ResolvePath(%q) = %q, %q; want %q, %q", tt.path, desc.Token, base, tt.token, tt.base)
		}
	}

	if _, _, err := reg.ResolvePath("movie.rar"); !errors.Is(err, services.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format for .rar, got %v", err)
	}
	if _, _, err := reg.ResolvePath("README"); !errors.Is(err, services.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format without extension, got %v", err)
	}
}

func TestSevenZipKnownButUnavailable(t *testing.T) {
	status := deps.Status{Name: "7-Zip", Available: false, Detail: "none of 7zz, 7z, 7za found in PATH"}
	reg := formats.NewRegistry(formats.CapabilitiesFrom(status))

	desc, err := reg.Resolve("7z")
	if err != nil {
		t.Fatalf("Resolve should succeed for a known format: %v", err)
	}
	if desc.Availability != formats.MissingDependency {
		t.Fatalf("availability = %s", desc.Availability)
	}
	if _, err := reg.Codec(desc); !errors.Is(err, services.ErrDependencyUnavailable) {
		t.Fatalf("expected dependency unavailable from Codec, got %v", err)
	}
	for _, check := range []func() error{desc.CheckSource, desc.CheckTarget} {
		if err := check(); !errors.Is(err, services.ErrDependencyUnavailable) {
			t.Fatalf("expected dependency unavailable, got %v", err)
		}
	}
}

func TestSevenZipAvailableWithBinary(t *testing.T) {
	reg := formats.NewRegistry(formats.CapabilitiesFrom(deps.Status{Available: true, Path: "/usr/bin/7zz"}))
	desc, err := reg.Resolve("7z")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	codec, err := reg.Codec(desc)
	if err != nil {
		t.Fatalf("Codec: %v", err)
	}
	if codec.Name() != "7z" {
		t.Fatalf("codec name = %q", codec.Name())
	}
}

func TestDirectionChecks(t *testing.T) {
	reg := formats.NewRegistry(formats.Capabilities{})
	bz2, err := reg.Resolve("tar.bz2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := bz2.CheckSource(); err != nil {
		t.Fatalf("tar.bz2 should be readable: %v", err)
	}
	if err := bz2.CheckTarget(); !errors.Is(err, services.ErrUnsupportedFormat) {
		t.Fatalf("tar.bz2 should not be writable, got %v", err)
	}
}

func TestDescriptorsStableOrder(t *testing.T) {
	reg := formats.NewRegistry(formats.Capabilities{})
	var tokens []string
	for _, d := range reg.Descriptors() {
		tokens = append(tokens, d.Token)
	}
	want := "zip,7z,tar,tar.gz,tar.zst,tar.lz4,tar.bz2,gz"
	if got := strings.Join(tokens, ","); got != want {
		t.Fatalf("descriptors = %s, want %s", got, want)
	}
}

func TestEveryAvailableFormatHasCodec(t *testing.T) {
	reg := formats.NewRegistry(formats.Capabilities{SevenZipBinary: "7zz"})
	for _, desc := range reg.Descriptors() {
		codec, err := reg.Codec(desc)
		if err != nil {
			t.Fatalf("Codec(%s): %v", desc.Token, err)
		}
		if codec.Name() != desc.Token {
			t.Fatalf("codec for %s reports %q", desc.Token, codec.Name())
		}
	}
}
