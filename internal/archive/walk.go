package archive

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"repack/internal/logging"
)

// entry is one item of a staged tree, named relative to the tree root with
// forward slashes.
type entry struct {
	name   string
	path   string
	info   fs.FileInfo
	target string
}

func (e entry) isDir() bool     { return e.info.IsDir() }
func (e entry) isSymlink() bool { return e.info.Mode()&fs.ModeSymlink != 0 }

// collectEntries walks root without following links and returns its entries
// in lexical name order. Sockets, devices and pipes are skipped with a
// warning. The root itself is not included.
func collectEntries(ctx context.Context, root string, logger *slog.Logger) ([]entry, error) {
	var entries []entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		e := entry{name: filepath.ToSlash(rel), path: path, info: info}
		switch mode := info.Mode(); {
		case mode.IsDir(), mode.IsRegular():
		case mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			e.target = target
		default:
			logging.WarnWithContext(logger, "skipping special file", "special_file_skipped",
				logging.String("entry", e.name),
				logging.String("mode", mode.String()),
				logging.String(logging.FieldErrorHint, "only files, directories and symlinks are packed"),
				logging.String(logging.FieldImpact, "entry missing from output archive"),
			)
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}
