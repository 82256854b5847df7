// Package server exposes the prediction pipeline as a small JSON API for
// an external dashboard.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /v1/models
//	GET  /v1/models/{id}/importance
//	POST /v1/predict
//	GET  /v1/predictions?limit=N
//	GET  /v1/predictions/{id}
//
// The prediction history routes are only mounted when a store is given.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YuminosukeSato/tumorscope/audit"
	"github.com/YuminosukeSato/tumorscope/pipeline"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
)

const (
	// DefaultHistoryLimit is used when /v1/predictions has no limit.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps the limit query parameter.
	MaxHistoryLimit = 500

	maxBodyBytes = 1 << 20
)

// Options configures a Server.
type Options struct {
	// Store serves the prediction history. Nil disables those routes.
	Store audit.Store
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   log.Logger
}

// Server routes HTTP requests to a pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	store    audit.Store
	logger   log.Logger
	mux      *http.ServeMux
}

// New creates a server for p.
func New(p *pipeline.Pipeline, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		pipeline: p,
		store:    opts.Store,
		logger:   opts.Logger.With(log.ComponentKey, "server"),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /v1/models", s.handleModels)
	s.mux.HandleFunc("GET /v1/models/{id}/importance", s.handleImportance)
	s.mux.HandleFunc("POST /v1/predict", s.handlePredict)
	if s.store != nil {
		s.mux.HandleFunc("GET /v1/predictions", s.handleHistory)
		s.mux.HandleFunc("GET /v1/predictions/{id}", s.handleRecord)
	}
	return s
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Config holds the listener settings for Run.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown http server")
	}
	s.logger.Info("http server stopped")
	return nil
}

type predictRequest struct {
	Model    string             `json:"model"`
	Features map[string]float64 `json:"features"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"models": s.pipeline.Models()})
}

func (s *Server) handleImportance(w http.ResponseWriter, r *http.Request) {
	g, err := s.pipeline.GlobalImportance(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, errors.NewValidationError("body", err.Error(), nil))
		return
	}
	if req.Model == "" {
		s.writeError(w, r, errors.NewValidationError("model", "must not be empty", req.Model))
		return
	}

	rep, err := s.pipeline.Run(r.Context(), req.Model, req.Features)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxHistoryLimit {
			s.writeError(w, r, errors.NewValidationError("limit", "must be an integer in [1, 500]", v))
			return
		}
		limit = n
	}
	recs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]audit.Record{"records": recs})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, r, errors.NewValidationError("id", "must be an integer", r.PathValue("id")))
		return
	}
	rec, err := s.store.Get(r.Context(), audit.RecordID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
