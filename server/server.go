// Package server exposes the service over HTTP: JSON for rules, instances and windows,
// text/calendar for iCalendar import and export.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/server/auth"
	"github.com/cyp0633/smartdate/service"
	"github.com/cyp0633/smartdate/storage"
)

const (
	headerContentType = "Content-Type"

	mimeTypeJSON     = "application/json; charset=utf-8"
	mimeTypeCalendar = "text/calendar; charset=utf-8"

	// invalidValueMessage is the only message shown for missing rules and entities.
	invalidValueMessage = "invalid value received"

	// maxBodyBytes limits request bodies, calendar imports included.
	maxBodyBytes = 4 << 20
)

// Config configures a Server
type Config struct {
	// Authenticator guards every path except /health. Nil disables authentication.
	Authenticator auth.Authenticator
	Realm         string
	Logger        *slog.Logger
	// Now is the reference instant for windows when the request gives none. Nil means time.Now.
	Now func() time.Time
}

// Server is the HTTP front of a service.Service
type Server struct {
	svc    *service.Service
	mux    *http.ServeMux
	auth   auth.Authenticator
	realm  string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a server and registers its routes
func New(svc *service.Service, config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &Server{
		svc:    svc,
		mux:    http.NewServeMux(),
		auth:   config.Authenticator,
		realm:  config.Realm,
		logger: config.Logger,
		now:    config.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler with logging and, when configured, authentication.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.auth != nil {
		h = auth.Middleware(s.auth, s.realm, "/health")(h)
	}
	return s.logRequests(h)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /rules", s.handleListRules)
	s.mux.HandleFunc("POST /rules/import", s.handleImport)
	s.mux.HandleFunc("GET /rules/{id}", s.handleGetRule)
	s.mux.HandleFunc("PUT /rules/{id}", s.handlePutRule)
	s.mux.HandleFunc("DELETE /rules/{id}", s.handleDeleteRule)

	s.mux.HandleFunc("GET /rules/{id}/instances", s.handleInstances)
	s.mux.HandleFunc("GET /rules/{id}/window", s.handleWindow)
	s.mux.HandleFunc("GET /rules/{id}/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("POST /rules/{id}/apply", s.handleApply)

	s.mux.HandleFunc("PUT /rules/{id}/instances/{index}", s.handlePutInstance)
	s.mux.HandleFunc("DELETE /rules/{id}/instances/{index}", s.handleRemoveInstance)
	s.mux.HandleFunc("POST /rules/{id}/instances/{index}/restore", s.handleRestoreInstance)
}

// statusRecorder captures the response status for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started),
			"remote_addr", r.RemoteAddr)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, mimeTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// handleError maps service and storage errors to responses. Missing records never reveal
// which record was missing.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var ruleErr *recurrence.InvalidRuleError

	switch {
	case storage.IsNotFound(err), errors.Is(err, service.ErrMissingParentEntity):
		s.logger.Info("invalid value received", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusNotFound, invalidValueMessage)
	case errors.As(err, &ruleErr),
		errors.Is(err, service.ErrInvalidOverride),
		storage.IsType(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrIndexOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case storage.IsType(err, storage.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(headerContentType, "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
