// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"codeflow/config"
	"codeflow/internal/domain"
	"codeflow/internal/port"
)

// Analyzer runs one analysis for a repository name.
type Analyzer interface {
	Analyze(ctx context.Context, repoName string) (*domain.Analysis, error)
}

// ErrorResponse is the body of every non-200 response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type Server struct {
	analyzer Analyzer
	history  port.HistoryStore
	health   *Health
	cfg      config.ServerConfig
	logger   *slog.Logger
}

// New creates a server. history may be nil when history is disabled.
func New(
	analyzer Analyzer,
	history port.HistoryStore,
	health *Health,
	cfg config.ServerConfig,
	logger *slog.Logger,
) *Server {
	if health == nil {
		health = NewHealth("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		analyzer: analyzer,
		history:  history,
		health:   health,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handler returns the routed handler with logging and recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /analyze/{repo_name}", s.handleAnalyze)
	mux.HandleFunc("GET /analyses", s.handleRepos)
	mux.HandleFunc("GET /analyses/{repo_name}", s.handleHistory)
	mux.HandleFunc("GET /analyses/{repo_name}/{id}", s.handleRecord)
	s.health.register(mux)

	return s.recoverMiddleware(s.loggingMiddleware(mux))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout.Std(),
		WriteTimeout: s.cfg.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.cfg.Addr)
		errCh <- server.ListenAndServe()
	}()
	s.health.SetReady(true)

	select {
	case err := <-errCh:
		s.health.SetReady(false)
		s.health.SetLive(false)
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.health.SetReady(false)
	s.logger.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Std())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	repo := r.PathValue("repo_name")

	analysis, err := s.analyzer.Analyze(r.Context(), repo)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("analysis failed", "repo", repo, "error", err)
		} else {
			s.logger.Info("analysis rejected", "repo", repo, "status", status, "error", err)
		}
		writeError(w, status, detailFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(analysis.Raw)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "History is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit: "+v)
			return
		}
		limit = n
	}

	repo := r.PathValue("repo_name")
	records, err := s.history.List(repo, limit)
	if err != nil {
		s.logger.Error("failed to list history", "repo", repo, "error", err)
		writeError(w, http.StatusInternalServerError, detailFor(err))
		return
	}
	if records == nil {
		records = []domain.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "History is disabled")
		return
	}

	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid analysis id: "+r.PathValue("id"))
		return
	}

	repo := r.PathValue("repo_name")
	rec, err := s.history.Get(repo, id)
	if err != nil {
		if errors.Is(err, domain.ErrAnalysisNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Analysis %d not found for %s", id, repo))
			return
		}
		s.logger.Error("failed to read history", "repo", repo, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, detailFor(err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "History is disabled")
		return
	}

	repos, err := s.history.Repos()
	if err != nil {
		s.logger.Error("failed to list repositories", "error", err)
		writeError(w, http.StatusInternalServerError, detailFor(err))
		return
	}
	if repos == nil {
		repos = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"repositories": repos})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRepositoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoContent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(err error) string {
	var notFound *domain.RepositoryNotFoundError
	var format *domain.ResponseFormatError

	switch {
	case errors.As(err, &notFound):
		return "Repository not found on " + notFound.Path
	case errors.Is(err, domain.ErrNoContent):
		return "No valid files found in the repository"
	case errors.As(err, &format):
		return "Invalid response format: " + format.Detail
	default:
		return "Internal error: " + err.Error()
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic serving request", "path", r.URL.Path, "panic", p)
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("Internal error: %v", p))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
