package archive

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"
)

const maxLinkTarget = 4096

// writeFile creates target with perm and streams r into it under budget b.
func writeFile(target string, perm fs.FileMode, modified time.Time, r io.Reader, b *budget) error {
	if err := clearTarget(target); err != nil {
		return err
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm.Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := b.copy(file, r); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if !modified.IsZero() {
		_ = os.Chtimes(target, modified, modified)
	}
	return nil
}

func readLinkTarget(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxLinkTarget+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxLinkTarget {
		return "", errors.New("symlink target too long")
	}
	return string(data), nil
}

// createPartial opens dst for a new archive. dst must not exist.
func createPartial(dst string) (*os.File, error) {
	return os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}
