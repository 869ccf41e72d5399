package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"repack/internal/config"
	"repack/internal/convert"
	"repack/internal/deps"
	"repack/internal/formats"
	"repack/internal/history"
	"repack/internal/logging"
)

// Submitter runs conversions off the request goroutine. *convert.Pool
// satisfies it.
type Submitter interface {
	Submit(ctx context.Context, job convert.Job) (convert.Result, error)
	Stats() convert.Stats
}

// HistoryReader is the read side of the history store.
type HistoryReader interface {
	List(ctx context.Context, opts history.ListOptions) ([]history.Record, error)
	Get(ctx context.Context, jobID string) (history.Record, error)
	Summarize(ctx context.Context) (history.Summary, error)
}

// Options wires the server's collaborators. History and Metrics are optional.
type Options struct {
	Config       *config.Config
	Registry     *formats.Registry
	Pool         Submitter
	History      HistoryReader
	Metrics      http.Handler
	Dependencies []deps.Status
	Logger       *slog.Logger
}

// Server is the HTTP front end for uploads, conversions and downloads.
type Server struct {
	cfg          *config.Config
	registry     *formats.Registry
	pool         Submitter
	history      HistoryReader
	dependencies []deps.Status
	logger       *slog.Logger

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Registry == nil || opts.Pool == nil {
		return nil, errors.New("api server requires config, registry and pool")
	}
	s := &Server{
		cfg:          opts.Config,
		registry:     opts.Registry,
		pool:         opts.Pool,
		history:      opts.History,
		dependencies: opts.Dependencies,
		logger:       logging.NewComponentLogger(opts.Logger, "api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/convert", s.handleConvert)
	mux.HandleFunc("GET /api/download/{filename}", s.handleDownload)
	mux.HandleFunc("POST /api/download-all", s.handleDownloadAll)
	mux.HandleFunc("GET /api/formats", s.handleFormats)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/{job_id}", s.handleHistoryItem)
	mux.HandleFunc("GET /health", s.handleHealth)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	s.handler = corsMiddleware(requestIDMiddleware(authMiddleware(opts.Config.Paths.APIToken, mux)))
	return s, nil
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured bind address and serves until ctx is done
// or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.cfg.Paths.APIToken != ""),
	)
	return nil
}

// Addr reports the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) log(r *http.Request) *slog.Logger {
	return logging.WithContext(r.Context(), s.logger)
}
