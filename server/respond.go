package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/YuminosukeSato/tumorscope/audit"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
	"github.com/YuminosukeSato/tumorscope/pkg/log"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	if errors.Is(err, audit.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	switch errors.Kind(err) {
	case "model_not_found":
		return http.StatusNotFound
	case "schema_mismatch", "dimension_mismatch":
		return http.StatusUnprocessableEntity
	case "validation":
		return http.StatusBadRequest
	case "storage_write":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	kind := errors.Kind(err)
	if errors.Is(err, audit.ErrRecordNotFound) {
		kind = "record_not_found"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", err, log.HTTPPathKey, r.URL.Path, log.ErrorKindKey, kind)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			log.HTTPMethodKey, r.Method,
			log.HTTPPathKey, r.URL.Path,
			log.HTTPStatusKey, rec.status,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	})
}
