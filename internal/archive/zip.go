package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"repack/internal/logging"
	"repack/internal/services"
)

// Zip reads and writes ZIP archives in-process.
type Zip struct {
	opts   Options
	logger *slog.Logger
}

// NewZip returns a ZIP codec.
func NewZip(opts Options) *Zip {
	return &Zip{opts: opts, logger: opts.logger("zip")}
}

func (z *Zip) Name() string { return "zip" }

// Extract unpacks every entry of src below dst, preserving relative paths.
func (z *Zip) Extract(ctx context.Context, src, dst string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return extractErr(services.ErrNotFound, z.Name(), "open source", err)
		}
		return extractErr(services.ErrCorrupt, z.Name(), "not a readable zip archive", err)
	}
	defer reader.Close()

	b := newBudget(z.Name(), z.opts.Limits)
	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return extractErr(services.ErrIO, z.Name(), "cancelled", err)
		}
		if err := z.extractEntry(dst, f, b); err != nil {
			return err
		}
	}
	return verifyLinks(dst, z.Name())
}

func (z *Zip) extractEntry(dst string, f *zip.File, b *budget) error {
	target, ok, err := entryPath(dst, f.Name)
	if err != nil {
		return escapeErr(z.Name(), f.Name)
	}
	if !ok {
		return nil
	}
	if err := b.admit(int64(f.UncompressedSize64)); err != nil {
		return err
	}

	mode := f.Mode()
	switch {
	case mode.IsDir():
		if err := prepareParent(dst, target); err != nil {
			return z.writeErr(f.Name, b, err)
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return z.writeErr(f.Name, b, err)
		}
	case mode&fs.ModeSymlink != 0:
		rc, err := f.Open()
		if err != nil {
			return extractErr(services.ErrCorrupt, z.Name(), fmt.Sprintf("open entry %q", f.Name), err)
		}
		linkTarget, err := readLinkTarget(rc)
		rc.Close()
		if err != nil {
			return extractErr(services.ErrCorrupt, z.Name(), fmt.Sprintf("read link %q", f.Name), err)
		}
		if !linkInside(dst, target, linkTarget) {
			return escapeErr(z.Name(), f.Name)
		}
		if err := prepareParent(dst, target); err != nil {
			return z.writeErr(f.Name, b, err)
		}
		if err := clearTarget(target); err != nil {
			return z.writeErr(f.Name, b, err)
		}
		if err := os.Symlink(linkTarget, target); err != nil {
			return z.writeErr(f.Name, b, err)
		}
	case mode.IsRegular():
		if err := prepareParent(dst, target); err != nil {
			return z.writeErr(f.Name, b, err)
		}
		rc, err := f.Open()
		if err != nil {
			return extractErr(services.ErrCorrupt, z.Name(), fmt.Sprintf("open entry %q", f.Name), err)
		}
		err = writeFile(target, mode, f.Modified, rc, b)
		rc.Close()
		if err != nil {
			return z.writeErr(f.Name, b, err)
		}
	default:
		logging.WarnWithContext(z.logger, "skipping special zip entry", "special_entry_skipped",
			logging.String("entry", f.Name),
			logging.String("mode", mode.String()),
			logging.String(logging.FieldErrorHint, "devices and pipes are not extracted"),
			logging.String(logging.FieldImpact, "entry missing from output archive"),
		)
	}
	return nil
}

func (z *Zip) writeErr(name string, b *budget, err error) error {
	return classifyWriteErr(z.Name(), name, b, err)
}

// Pack writes the tree below srcDir to dst with entries in lexical order.
func (z *Zip) Pack(ctx context.Context, srcDir, dst string) (err error) {
	entries, err := collectEntries(ctx, srcDir, z.logger)
	if err != nil {
		return packErr(services.ErrIO, z.Name(), "scan staged tree", err)
	}

	out, err := createPartial(dst)
	if err != nil {
		return packErr(services.ErrIO, z.Name(), "create output", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	zw := zip.NewWriter(out)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return packErr(services.ErrIO, z.Name(), "cancelled", err)
		}
		if err := z.writeEntry(zw, e); err != nil {
			return packErr(services.ErrIO, z.Name(), fmt.Sprintf("write entry %q", e.name), err)
		}
	}
	if err := zw.Close(); err != nil {
		return packErr(services.ErrIO, z.Name(), "finalize archive", err)
	}
	if err := out.Close(); err != nil {
		return packErr(services.ErrIO, z.Name(), "close output", err)
	}
	return nil
}

func (z *Zip) writeEntry(zw *zip.Writer, e entry) error {
	hdr, err := zip.FileInfoHeader(e.info)
	if err != nil {
		return err
	}
	hdr.Name = e.name
	switch {
	case e.isDir():
		hdr.Name += "/"
		hdr.Method = zip.Store
		hdr.UncompressedSize64 = 0
		_, err = zw.CreateHeader(hdr)
		return err
	case e.isSymlink():
		hdr.Method = zip.Store
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, filepath.ToSlash(e.target))
		return err
	default:
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(e.path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	}
}

// classifyWriteErr maps a failure while materializing an entry onto a marker.
func classifyWriteErr(format, name string, b *budget, err error) error {
	switch {
	case errors.Is(err, errEscapes):
		return escapeErr(format, name)
	case errors.Is(err, errEntryTooLarge):
		return b.overflowErr()
	default:
		return extractErr(services.ErrIO, format, fmt.Sprintf("write entry %q", name), err)
	}
}
