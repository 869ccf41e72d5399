package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"repack/internal/logging"
	"repack/internal/services"
)

// Compression identifies the stream wrapped around a tar archive.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
	CompressionBzip2
	CompressionXZ
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXZ:
		return "xz"
	default:
		return "none"
	}
}

var magics = []struct {
	prefix []byte
	kind   Compression
}{
	{[]byte{0x1f, 0x8b}, CompressionGzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, CompressionZstd},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, CompressionLZ4},
	{[]byte("BZh"), CompressionBzip2},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, CompressionXZ},
}

// DetectCompression inspects the leading bytes of a stream.
func DetectCompression(head []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.kind
		}
	}
	return CompressionNone
}

// Tar reads tar archives with any supported compression and writes them with
// the compression it was constructed with.
type Tar struct {
	name   string
	pack   Compression
	opts   Options
	logger *slog.Logger
}

// NewTar returns a tar codec reported as name that packs with compression.
// Bzip2 and xz cannot be written.
func NewTar(name string, compression Compression, opts Options) *Tar {
	return &Tar{name: name, pack: compression, opts: opts, logger: opts.logger(name)}
}

func (t *Tar) Name() string { return t.name }

// Extract detects the compression of src by magic bytes and unpacks it.
func (t *Tar) Extract(ctx context.Context, src, dst string) error {
	file, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return extractErr(services.ErrNotFound, t.name, "open source", err)
		}
		return extractErr(services.ErrIO, t.name, "open source", err)
	}
	defer file.Close()

	buffered := bufio.NewReader(file)
	head, err := buffered.Peek(6)
	if err != nil && !errors.Is(err, io.EOF) {
		return extractErr(services.ErrIO, t.name, "read header", err)
	}

	stream, closeStream, err := t.decompressor(buffered, DetectCompression(head))
	if err != nil {
		return err
	}
	defer closeStream()

	tr := tar.NewReader(stream)
	b := newBudget(t.name, t.opts.Limits)
	for {
		if err := ctx.Err(); err != nil {
			return extractErr(services.ErrIO, t.name, "cancelled", err)
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return verifyLinks(dst, t.name)
		}
		if err != nil {
			return extractErr(services.ErrCorrupt, t.name, "read tar header", err)
		}
		if err := t.extractEntry(dst, hdr, tr, b); err != nil {
			return err
		}
	}
}

func (t *Tar) decompressor(r io.Reader, kind Compression) (io.Reader, func(), error) {
	noop := func() {}
	switch kind {
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, noop, extractErr(services.ErrCorrupt, t.name, "open gzip stream", err)
		}
		return gz, func() { _ = gz.Close() }, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, noop, extractErr(services.ErrCorrupt, t.name, "open zstd stream", err)
		}
		return zr, zr.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), noop, nil
	case CompressionBzip2:
		return bzip2.NewReader(r), noop, nil
	case CompressionXZ:
		return nil, noop, extractErr(services.ErrUnsupportedFormat, t.name, "xz compression is not supported", nil)
	default:
		return r, noop, nil
	}
}

func (t *Tar) extractEntry(dst string, hdr *tar.Header, r io.Reader, b *budget) error {
	switch hdr.Typeflag {
	case tar.TypeXGlobalHeader, tar.TypeXHeader, tar.TypeGNULongName, tar.TypeGNULongLink:
		return nil
	}

	target, ok, err := entryPath(dst, hdr.Name)
	if err != nil {
		return escapeErr(t.name, hdr.Name)
	}
	if !ok {
		return nil
	}
	if err := b.admit(hdr.Size); err != nil {
		return err
	}

	fail := func(err error) error { return classifyWriteErr(t.name, hdr.Name, b, err) }

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := prepareParent(dst, target); err != nil {
			return fail(err)
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fail(err)
		}
	case tar.TypeReg:
		if err := prepareParent(dst, target); err != nil {
			return fail(err)
		}
		if err := writeFile(target, fs.FileMode(hdr.Mode), hdr.ModTime, r, b); err != nil {
			if isTruncated(err) {
				return extractErr(services.ErrCorrupt, t.name, fmt.Sprintf("truncated entry %q", hdr.Name), err)
			}
			return fail(err)
		}
	case tar.TypeSymlink:
		if !linkInside(dst, target, hdr.Linkname) {
			return escapeErr(t.name, hdr.Name)
		}
		if err := prepareParent(dst, target); err != nil {
			return fail(err)
		}
		if err := clearTarget(target); err != nil {
			return fail(err)
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fail(err)
		}
	case tar.TypeLink:
		source, ok, err := entryPath(dst, hdr.Linkname)
		if err != nil || !ok {
			return escapeErr(t.name, hdr.Name)
		}
		if err := prepareParent(dst, target); err != nil {
			return fail(err)
		}
		if err := prepareParent(dst, source); err != nil {
			return fail(err)
		}
		if err := clearTarget(target); err != nil {
			return fail(err)
		}
		if err := os.Link(source, target); err != nil {
			return extractErr(services.ErrCorrupt, t.name, fmt.Sprintf("hard link %q to %q", hdr.Name, hdr.Linkname), err)
		}
	default:
		logging.WarnWithContext(t.logger, "skipping special tar entry", "special_entry_skipped",
			logging.String("entry", hdr.Name),
			logging.String("type", string(hdr.Typeflag)),
			logging.String(logging.FieldErrorHint, "devices and pipes are not extracted"),
			logging.String(logging.FieldImpact, "entry missing from output archive"),
		)
	}
	return nil
}

func isTruncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, tar.ErrHeader)
}

// Pack writes the tree below srcDir as a tar stream compressed with the codec's
// compression. Entry names are relative to srcDir.
func (t *Tar) Pack(ctx context.Context, srcDir, dst string) (err error) {
	if !CanPack(t.pack) {
		return packErr(services.ErrUnsupportedFormat, t.name, t.pack.String()+" compression cannot be written", nil)
	}
	entries, err := collectEntries(ctx, srcDir, t.logger)
	if err != nil {
		return packErr(services.ErrIO, t.name, "scan staged tree", err)
	}

	out, err := createPartial(dst)
	if err != nil {
		return packErr(services.ErrIO, t.name, "create output", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	stream, err := t.compressor(out)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(stream)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return packErr(services.ErrIO, t.name, "cancelled", err)
		}
		if err := writeTarEntry(tw, e); err != nil {
			return packErr(services.ErrIO, t.name, fmt.Sprintf("write entry %q", e.name), err)
		}
	}
	if err := tw.Close(); err != nil {
		return packErr(services.ErrIO, t.name, "finalize tar", err)
	}
	if err := stream.Close(); err != nil {
		return packErr(services.ErrIO, t.name, "finalize compression", err)
	}
	if err := out.Close(); err != nil {
		return packErr(services.ErrIO, t.name, "close output", err)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (t *Tar) compressor(w io.Writer) (io.WriteCloser, error) {
	switch t.pack {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, packErr(services.ErrIO, t.name, "open zstd stream", err)
		}
		return zw, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, packErr(services.ErrUnsupportedFormat, t.name, t.pack.String()+" compression cannot be written", nil)
	}
}

func writeTarEntry(tw *tar.Writer, e entry) error {
	hdr, err := tar.FileInfoHeader(e.info, e.target)
	if err != nil {
		return err
	}
	hdr.Name = e.name
	if e.isDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !e.info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// CanPack reports whether compression has a writer.
func CanPack(c Compression) bool {
	switch c {
	case CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4:
		return true
	default:
		return false
	}
}
