package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"repack/internal/services"
)

// SevenZip drives an external 7-Zip binary (7zz, 7z or 7za).
type SevenZip struct {
	binary string
	opts   Options
	exec   Executor
	logger *slog.Logger
}

// SevenZipOption configures the 7z codec.
type SevenZipOption func(*SevenZip)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(e Executor) SevenZipOption {
	return func(s *SevenZip) {
		if e != nil {
			s.exec = e
		}
	}
}

// NewSevenZip returns a 7z codec that runs binary. An empty binary yields a
// codec that reports the dependency as unavailable.
func NewSevenZip(binary string, opts Options, options ...SevenZipOption) *SevenZip {
	s := &SevenZip{
		binary: strings.TrimSpace(binary),
		opts:   opts,
		exec:   commandExecutor{},
		logger: opts.logger("7z"),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *SevenZip) Name() string { return "7z" }

type sevenZipEntry struct {
	path    string
	size    int64
	folder  bool
	symlink bool
}

// Extract lists src, validates every entry path and the declared sizes, then
// lets 7-Zip unpack into dst. Links produced by the tool are re-checked.
func (s *SevenZip) Extract(ctx context.Context, src, dst string) error {
	if s.binary == "" {
		return extractErr(services.ErrDependencyUnavailable, s.Name(), "7-Zip binary not available", nil)
	}
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return extractErr(services.ErrIO, s.Name(), "resolve source", err)
	}
	if _, err := os.Stat(absSrc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return extractErr(services.ErrNotFound, s.Name(), "open source", err)
		}
		return extractErr(services.ErrIO, s.Name(), "open source", err)
	}

	var lines []string
	listArgs := []string{"l", "-slt", "-sccUTF-8", absSrc}
	if err := s.exec.Run(ctx, "", s.binary, listArgs, func(line string) { lines = append(lines, line) }); err != nil {
		return extractErr(services.ErrCorrupt, s.Name(), "list archive", err)
	}

	b := newBudget(s.Name(), s.opts.Limits)
	for _, e := range parseSltListing(lines) {
		if _, _, err := entryPath(dst, e.path); err != nil {
			return escapeErr(s.Name(), e.path)
		}
		if err := b.admit(e.size); err != nil {
			return err
		}
		if !e.folder {
			if err := b.charge(e.size); err != nil {
				return err
			}
		}
	}

	extractArgs := []string{"x", "-y", "-bd", "-sccUTF-8", "-o" + dst, absSrc}
	if err := s.exec.Run(ctx, "", s.binary, extractArgs, nil); err != nil {
		if ctx.Err() != nil {
			return extractErr(services.ErrIO, s.Name(), "cancelled", ctx.Err())
		}
		return extractErr(services.ErrCorrupt, s.Name(), "extract archive", err)
	}

	return s.verifyTree(dst)
}

// verifyTree rejects links 7-Zip restored that point outside dst and enforces
// the byte limit against what actually landed on disk.
func (s *SevenZip) verifyTree(dst string) error {
	actual := newBudget(s.Name(), s.opts.Limits)
	return filepath.WalkDir(dst, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return extractErr(services.ErrIO, s.Name(), "scan extracted tree", err)
		}
		if path == dst {
			return nil
		}
		rel, _ := filepath.Rel(dst, path)
		info, err := d.Info()
		if err != nil {
			return extractErr(services.ErrIO, s.Name(), "scan extracted tree", err)
		}
		switch mode := info.Mode(); {
		case mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return extractErr(services.ErrIO, s.Name(), "read link", err)
			}
			if !linkInside(dst, path, target) {
				return escapeErr(s.Name(), filepath.ToSlash(rel))
			}
		case mode.IsRegular():
			if s.opts.Limits.MaxEntryBytes > 0 && info.Size() > s.opts.Limits.MaxEntryBytes {
				return actual.limitErr(fmt.Sprintf("entry of %d bytes exceeds %d", info.Size(), s.opts.Limits.MaxEntryBytes))
			}
			return actual.charge(info.Size())
		}
		return nil
	})
}

// parseSltListing reads the technical listing printed by `7z l -slt`. Entry
// blocks follow the "----------" separator and are separated by blank lines.
func parseSltListing(lines []string) []sevenZipEntry {
	var (
		entries []sevenZipEntry
		current sevenZipEntry
		started bool
		hasPath bool
	)
	flush := func() {
		if hasPath {
			entries = append(entries, current)
		}
		current = sevenZipEntry{}
		hasPath = false
	}
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if !started {
			if strings.TrimSpace(line) == "----------" {
				started = true
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, " = ")
		if !ok {
			key, value, ok = strings.Cut(line, " =")
			if !ok {
				continue
			}
		}
		switch strings.TrimSpace(key) {
		case "Path":
			if hasPath {
				flush()
			}
			current.path = value
			hasPath = true
		case "Size":
			if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
				current.size = n
			}
		case "Folder":
			current.folder = strings.TrimSpace(value) == "+"
		case "Attributes":
			attrs := strings.TrimSpace(value)
			if strings.HasPrefix(attrs, "D") {
				current.folder = true
			}
			if i := strings.LastIndex(attrs, " "); i >= 0 && strings.HasPrefix(attrs[i+1:], "l") {
				current.symlink = true
			}
		}
	}
	flush()
	return entries
}

// Pack hands 7-Zip a sorted list file naming every staged entry relative to
// srcDir. An empty tree produces the canonical empty 7z archive.
func (s *SevenZip) Pack(ctx context.Context, srcDir, dst string) error {
	if s.binary == "" {
		return packErr(services.ErrDependencyUnavailable, s.Name(), "7-Zip binary not available", nil)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return packErr(services.ErrIO, s.Name(), "resolve output", err)
	}
	entries, err := collectEntries(ctx, srcDir, s.logger)
	if err != nil {
		return packErr(services.ErrIO, s.Name(), "scan staged tree", err)
	}
	if len(entries) == 0 {
		if err := writeEmptySevenZip(absDst); err != nil {
			return packErr(services.ErrIO, s.Name(), "write empty archive", err)
		}
		return nil
	}

	var list bytes.Buffer
	for _, e := range entries {
		if strings.ContainsAny(e.name, "\r\n") {
			return packErr(services.ErrIO, s.Name(), fmt.Sprintf("entry %q cannot be listed", e.name), nil)
		}
		list.WriteString(e.name)
		list.WriteByte('\n')
	}
	listPath := absDst + ".lst"
	if err := os.WriteFile(listPath, list.Bytes(), 0o600); err != nil {
		return packErr(services.ErrIO, s.Name(), "write list file", err)
	}
	defer os.Remove(listPath)

	args := []string{"a", "-t7z", "-bd", "-y", "-snl", "-sccUTF-8", "-scsUTF-8", absDst, "@" + listPath}
	if err := s.exec.Run(ctx, srcDir, s.binary, args, nil); err != nil {
		_ = os.Remove(absDst)
		return packErr(services.ErrIO, s.Name(), "create archive", err)
	}
	if _, err := os.Stat(absDst); err != nil {
		return packErr(services.ErrIO, s.Name(), "7-Zip produced no output", err)
	}
	return nil
}

var sevenZipSignature = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

// writeEmptySevenZip writes a signature header with no next header, which is
// how 7-Zip itself stores an archive without entries.
func writeEmptySevenZip(dst string) error {
	startHeader := make([]byte, 20)
	buf := make([]byte, 0, 32)
	buf = append(buf, sevenZipSignature...)
	buf = append(buf, 0, 4)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(startHeader))
	buf = append(buf, startHeader...)

	out, err := createPartial(dst)
	if err != nil {
		return err
	}
	if _, err := out.Write(buf); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
