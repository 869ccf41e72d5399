package fileutil

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxNameBytes = 200

// CleanFilename reduces an uploaded file name to a safe base name: directory
// parts are dropped, accents are folded to their base letters, and characters
// other than letters, digits, space, dot, dash and underscore become "_".
// The extension is preserved. An unusable name yields "file".
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		name = ""
	}

	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err == nil {
		name = folded
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x80 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	cleaned := strings.Trim(b.String(), " .")
	cleaned = strings.TrimLeft(cleaned, "-")
	if strings.Trim(cleaned, "_") == "" {
		return "file"
	}
	return truncateKeepingExt(cleaned, maxNameBytes)
}

func truncateKeepingExt(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) >= limit {
		return name[:limit]
	}
	return name[:limit-len(ext)] + ext
}

// Slug turns name into a short token suitable for directory names: lower case,
// [a-z0-9-] only, at most limit bytes. An empty result yields fallback.
func Slug(name string, limit int, fallback string) string {
	clean := strings.ToLower(CleanFilename(name))
	var b strings.Builder
	lastDash := false
	for _, r := range clean {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash && b.Len() > 0 {
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if limit > 0 && len(slug) > limit {
		slug = strings.TrimRight(slug[:limit], "-")
	}
	if slug == "" {
		return fallback
	}
	return slug
}
