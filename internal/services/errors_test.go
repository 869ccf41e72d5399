package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"repack/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrCorrupt, "extraction", "zip", "read entry", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrCorrupt) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"corrupt archive", "extraction", "zip", "read entry", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerFallsBackToIO(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "conversion failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrUnsupportedFormat, "resolve", "source", ".rar", nil), "unsupported_format"},
		{services.Wrap(services.ErrDependencyUnavailable, "packing", "7z", "", nil), "dependency_unavailable"},
		{services.Wrap(services.ErrNotFound, "resolve", "source", "", nil), "not_found"},
		{services.Wrap(services.ErrIO, "staging", "acquire", "", errors.New("denied")), "io"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrCorrupt, "extraction", "tar", "", nil)), "corrupt"},
		{errors.New("plain"), "internal"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if services.IsTagged(errors.New("plain")) {
		t.Fatal("plain error should not be tagged")
	}
	if !services.IsTagged(services.Wrap(services.ErrIO, "x", "", "", nil)) {
		t.Fatal("wrapped error should be tagged")
	}
}
