package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"repack/internal/archive"
	"repack/internal/config"
	"repack/internal/services"
)

const maxRenameAttempts = 1000

// partialPath returns the hidden file packers write into before commit.
func partialPath(outputDir, filename, jobID string) string {
	token := jobID
	if len(token) > 8 {
		token = token[:8]
	}
	return filepath.Join(outputDir, fmt.Sprintf(".%s.%s.partial", filename, token))
}

// commitOutput moves the finished partial file to its final name according to
// policy and returns the final path. The partial file never survives.
func commitOutput(partial, outputDir, filename, policy, format string) (string, error) {
	final := filepath.Join(outputDir, filename)
	switch policy {
	case config.CollisionFail:
		err := linkNoClobber(partial, final)
		if errors.Is(err, fs.ErrExist) {
			_ = os.Remove(partial)
			return "", services.Wrap(services.ErrIO, archive.StagePacking, format, fmt.Sprintf("output %s already exists", filename), nil)
		}
		if err != nil {
			_ = os.Remove(partial)
			return "", services.Wrap(services.ErrIO, archive.StagePacking, format, "commit output", err)
		}
		return final, nil
	case config.CollisionRename:
		for i := 0; i < maxRenameAttempts; i++ {
			candidate := final
			if i > 0 {
				candidate = filepath.Join(outputDir, numberedName(filename, i))
			}
			err := linkNoClobber(partial, candidate)
			if err == nil {
				return candidate, nil
			}
			if !errors.Is(err, fs.ErrExist) {
				_ = os.Remove(partial)
				return "", services.Wrap(services.ErrIO, archive.StagePacking, format, "commit output", err)
			}
		}
		_ = os.Remove(partial)
		return "", services.Wrap(services.ErrIO, archive.StagePacking, format, fmt.Sprintf("no free name for %s", filename), nil)
	default:
		if err := os.Rename(partial, final); err != nil {
			_ = os.Remove(partial)
			return "", services.Wrap(services.ErrIO, archive.StagePacking, format, "commit output", err)
		}
		return final, nil
	}
}

// linkNoClobber publishes src at dst only if dst does not exist, then drops src.
func linkNoClobber(src, dst string) error {
	if err := os.Link(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// numberedName turns "archive.tar.gz" into "archive (2).tar.gz".
func numberedName(filename string, n int) string {
	stem, ext := splitCompoundExt(filename)
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}

func splitCompoundExt(filename string) (string, string) {
	lower := strings.ToLower(filename)
	for _, compound := range []string{".tar.gz", ".tar.zst", ".tar.lz4", ".tar.bz2"} {
		if strings.HasSuffix(lower, compound) && len(filename) > len(compound) {
			return filename[:len(filename)-len(compound)], filename[len(filename)-len(compound):]
		}
	}
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext), ext
}
