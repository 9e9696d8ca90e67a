// Package server exposes the log store over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crimson-sun/waflog/internal/generator"
	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/store"
)

// maxBodyBytes caps request bodies accepted by POST /api/logs.
const maxBodyBytes = 1 << 20

// LogStore is the subset of *store.Store the handlers use.
type LogStore interface {
	Append(e model.Entry) error
	Snapshot() ([]model.Entry, error)
	Len() int
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageResponse acknowledges a write that has no other result.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Entries int    `json:"entries"`
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the allowed origins. "*" or an empty entry allows all.
// Default: all origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// Server routes API requests to the store and the generator.
type Server struct {
	store       LogStore
	gen         *generator.Generator
	corsOrigins []string
}

// New creates a Server.
func New(st LogStore, gen *generator.Generator, opts ...Option) *Server {
	s := &Server{store: st, gen: gen, corsOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in CORS, request-ID and access
// log middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter().StrictSlash(true)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/logs", s.handleListLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleAppendLog).Methods(http.MethodPost)
	api.HandleFunc("/simulate-log", s.handleSimulateLog).Methods(http.MethodPost)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	var h http.Handler = r
	h = accessLog(h)
	h = requestID(h)
	h = newCORSMiddleware(s.corsOrigins)(h)
	return h
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Snapshot()
	if err != nil {
		msg := "Failed to read logs"
		switch {
		case errors.Is(err, fs.ErrNotExist):
			msg = "Log file not found"
		case errors.Is(err, store.ErrCorrupt):
			msg = "Failed to parse log file"
		}
		slog.Error("reading logs failed", "error", err, "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: msg, Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSimulateLog(w http.ResponseWriter, r *http.Request) {
	if _, err := generator.Emit(s.gen, s.store, 0); err != nil {
		slog.Error("simulated append failed", "error", err, "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to add log entry", Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Log entry added"})
}

func (s *Server) handleAppendLog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var e model.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large", Details: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Details: err.Error()})
		return
	}

	if err := s.store.Append(e); err != nil {
		if errors.Is(err, model.ErrInvalidEntry) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: err.Error()})
			return
		}
		slog.Error("append failed", "error", err, "request_id", RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to append entry", Details: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, e.Normalize())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Entries: s.store.Len()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}
