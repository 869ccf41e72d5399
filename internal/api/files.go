package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"repack/internal/fileutil"
	"repack/internal/logging"
)

const maxJSONBody = 1 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := s.cfg.Limits.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart/form-data upload")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		if err != nil {
			s.uploadFailed(w, r, err)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		resp, err := s.storeUpload(part.FileName(), part)
		_ = part.Close()
		if err != nil {
			s.uploadFailed(w, r, err)
			return
		}
		s.log(r).Info("upload stored",
			logging.String("filename", resp.Filename),
			logging.Int64("size", resp.Size),
			logging.String(logging.FieldEventType, "upload_stored"),
		)
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
}

func (s *Server) uploadFailed(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	logging.WarnWithContext(s.log(r), "upload failed", "upload_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check upload_dir permissions and free space"),
		logging.String(logging.FieldImpact, "file not stored"),
	)
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

// storeUpload writes body under the upload directory using a cleaned name.
// The file appears under its final name only once fully written.
func (s *Server) storeUpload(original string, body io.Reader) (UploadResponse, error) {
	name := fileutil.CleanFilename(filepath.Base(filepath.ToSlash(original)))
	dir := s.cfg.Paths.UploadDir

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return UploadResponse{}, fmt.Errorf("create upload file: %w", err)
	}
	size, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return UploadResponse{}, copyErr
		}
		return UploadResponse{}, closeErr
	}
	target := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return UploadResponse{}, fmt.Errorf("store upload: %w", err)
	}

	kind, ext, format := s.classify(name)
	return UploadResponse{
		Filename:     name,
		OriginalName: original,
		Path:         target,
		Type:         kind,
		Size:         size,
		Extension:    ext,
		Format:       format,
	}, nil
}

// classify reports "archive" and the matched suffix for registry formats.
func (s *Server) classify(name string) (kind, ext, format string) {
	desc, base, err := s.registry.ResolvePath(name)
	if err != nil {
		return "unknown", strings.ToLower(filepath.Ext(name)), ""
	}
	return "archive", strings.ToLower(name[len(base):]), desc.Token
}

// safeName reduces a client supplied name to a plain file name, rejecting
// hidden and empty names.
func safeName(name string) (string, bool) {
	base := filepath.Base(filepath.ToSlash(strings.TrimSpace(name)))
	if base == "." || base == "/" || base == ".." || strings.HasPrefix(base, ".") {
		return "", false
	}
	return base, true
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, ok := safeName(r.PathValue("filename"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}
	f, err := os.Open(filepath.Join(s.cfg.Paths.OutputDir, name))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	var req DownloadAllRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Filenames) == 0 {
		s.writeError(w, http.StatusBadRequest, "File list empty")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "downloads.zip"}))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(req.Filenames))
	for _, raw := range req.Filenames {
		name, ok := safeName(raw)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if err := addZipFile(zw, filepath.Join(s.cfg.Paths.OutputDir, name), name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			s.log(r).Error("download bundle aborted", logging.String("filename", name), logging.Error(err))
			return
		}
	}
	if err := zw.Close(); err != nil {
		s.log(r).Error("download bundle close failed", logging.Error(err))
	}
}

func addZipFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return os.ErrNotExist
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}
