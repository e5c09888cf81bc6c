// Package api serves the recorder's status surface over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/uirecorder/internal/config"
	"github.com/gyaneshwarpardhi/uirecorder/internal/journal"
	"github.com/gyaneshwarpardhi/uirecorder/internal/pattern"
	"github.com/gyaneshwarpardhi/uirecorder/internal/recorder"
	"github.com/gyaneshwarpardhi/uirecorder/internal/script"
)

// Session is the live view of a recording session.
type Session interface {
	Status() recorder.Status
}

type live struct {
	session Session
	script  *script.Buffer
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	current  atomic.Pointer[live]
	patterns pattern.Table
	journal  *journal.Store
	loader   *config.Loader
	mux      *http.ServeMux
	served   http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithJournal exposes journaled sessions under /v1/journal.
func WithJournal(s *journal.Store) Option {
	return func(h *Handler) { h.journal = s }
}

// WithLoader enables POST /v1/config/reload.
func WithLoader(l *config.Loader) Option {
	return func(h *Handler) { h.loader = l }
}

// New creates a Handler and registers all routes.
func New(patterns pattern.Table, opts ...Option) *Handler {
	h := &Handler{patterns: patterns, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.HandleFunc("GET /v1/session", h.getSession)
	h.mux.HandleFunc("GET /v1/script", h.getScript)
	h.mux.HandleFunc("GET /v1/patterns", h.listPatterns)
	h.mux.HandleFunc("GET /v1/journal/sessions", h.listJournal)
	h.mux.HandleFunc("GET /v1/journal/sessions/{id}", h.getJournal)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	h.served = loggingMiddleware(h.mux)
	return h
}

// Attach makes s the session reported by the status routes. buf holds its
// script; either may be replaced by a later Attach.
func (h *Handler) Attach(s Session, buf *script.Buffer) {
	h.current.Store(&live{session: s, script: buf})
}

// ServeHTTP serves requests through the logging middleware.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.served.ServeHTTP(w, r)
}

// GET /healthz: liveness probe, always 200.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 200 only while a session is recording.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	cur := h.current.Load()
	if cur == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no_session"})
		return
	}
	st := cur.session.Status()
	status := http.StatusOK
	if st.State != recorder.StateRecording.String() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": st.State})
}

// GET /v1/session
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	cur := h.current.Load()
	if cur == nil {
		writeError(w, http.StatusNotFound, "no session attached")
		return
	}
	writeJSON(w, http.StatusOK, cur.session.Status())
}

// GET /v1/script: the live script; ?format=text returns it as plain text.
func (h *Handler) getScript(w http.ResponseWriter, r *http.Request) {
	cur := h.current.Load()
	if cur == nil || cur.script == nil {
		writeError(w, http.StatusNotFound, "no session attached")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(cur.script.String()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": cur.session.Status().SessionID,
		"fragments":  cur.script.Fragments(),
	})
}

type patternView struct {
	Name      string   `json:"name"`
	Hook      string   `json:"hook"`
	Events    []string `json:"events"`
	Handler   string   `json:"handler"`
	AbsorbRun bool     `json:"absorb_run,omitempty"`
}

// GET /v1/patterns: the table in evaluation order.
func (h *Handler) listPatterns(w http.ResponseWriter, r *http.Request) {
	out := make([]patternView, 0, len(h.patterns))
	for _, p := range h.patterns {
		v := patternView{Name: p.Name, Hook: p.Hook.String(), Events: []string{}, Handler: p.Handler, AbsorbRun: p.AbsorbRun}
		for _, s := range p.Events {
			v.Events = append(v.Events, s.String())
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": out})
}

// GET /v1/journal/sessions
func (h *Handler) listJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	sessions, err := h.journal.Sessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GET /v1/journal/sessions/{id}
func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	id := r.PathValue("id")
	sess, err := h.journal.Session(r.Context(), id)
	if err != nil {
		writeError(w, journalStatus(err), err.Error())
		return
	}
	frags, err := h.journal.Script(r.Context(), id)
	if err != nil {
		writeError(w, journalStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "fragments": frags})
}

func journalStatus(err error) int {
	if errors.Is(err, journal.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// POST /v1/config/reload: re-read the config file. Settings apply to the
// next session; the live one keeps its snapshot.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "no config file loaded")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":  true,
		"log_level": cfg.Logging.Level,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start))
	})
}
