package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"repack/internal/convert"
	"repack/internal/history"
	"repack/internal/logging"
	"repack/internal/preflight"
	"repack/internal/services"
	"repack/internal/staging"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notFound := convert.Failure("not_found", "File not found: "+req.FilePath)
	name, ok := safeName(req.FilePath)
	if !ok {
		s.writeJSON(w, http.StatusOK, notFound)
		return
	}
	source := filepath.Join(s.cfg.Paths.UploadDir, name)
	if info, err := os.Stat(source); err != nil || !info.Mode().IsRegular() {
		s.writeJSON(w, http.StatusOK, notFound)
		return
	}

	if minFree := s.cfg.Limits.MinFreeBytes; minFree > 0 {
		if check := preflight.CheckFreeSpace("staging", s.cfg.Paths.StagingDir, minFree); !check.Passed {
			err := services.Wrap(services.ErrIO, staging.StageStaging, "", "insufficient free space: "+check.Detail, nil)
			s.writeJSON(w, http.StatusOK, convert.Failure(services.Kind(err), err.Error()))
			return
		}
	}

	result, err := s.pool.Submit(r.Context(), convert.Job{
		SourcePath:   source,
		OutputDir:    s.cfg.Paths.OutputDir,
		TargetFormat: req.TargetFormat,
	})
	if err != nil {
		if errors.Is(err, convert.ErrPoolClosed) {
			s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		s.log(r).Info("client left before conversion finished", logging.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	descs := s.registry.Descriptors()
	out := make([]Format, 0, len(descs))
	for _, d := range descs {
		out = append(out, FromDescriptor(d))
	}
	s.writeJSON(w, http.StatusOK, FormatsResponse{Formats: out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	depStatus := make([]DependencyStatus, 0, len(s.dependencies))
	for _, d := range s.dependencies {
		depStatus = append(depStatus, FromDependency(d))
	}
	payload := StatusResponse{
		Pool:         s.pool.Stats(),
		Dependencies: depStatus,
		Checks:       preflight.RunAll(s.cfg),
		Staging:      summarizeStaging(s.cfg.Paths.StagingDir),
	}
	if s.history != nil {
		if sum, err := s.history.Summarize(r.Context()); err == nil {
			payload.History = &sum
		} else {
			s.log(r).Warn("history summary failed", logging.Error(err))
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func summarizeStaging(dir string) StagingSummary {
	var sum StagingSummary
	dirs, err := staging.ListDirectories(dir)
	if err != nil {
		return sum
	}
	for _, d := range dirs {
		sum.Areas++
		if d.Active {
			sum.Active++
		}
		sum.Bytes += d.Size
	}
	sum.Size = humanize.IBytes(uint64(sum.Bytes))
	return sum
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, HistoryResponse{Items: []history.Record{}})
		return
	}
	query := r.URL.Query()
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}
	failed := query.Get("failed") == "1" || strings.EqualFold(query.Get("failed"), "true")

	items, err := s.history.List(r.Context(), history.ListOptions{Limit: limit, FailedOnly: failed})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []history.Record{}
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{Items: items})
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	jobID := r.PathValue("job_id")
	rec, err := s.history.Get(r.Context(), jobID)
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
