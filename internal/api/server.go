package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MikeSquared-Agency/guardian/internal/alert"
	"github.com/MikeSquared-Agency/guardian/internal/dispatch"
	"github.com/MikeSquared-Agency/guardian/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	manager    *session.Manager
	dispatcher *dispatch.Dispatcher
	router     chi.Router
	port       int
}

func NewServer(m *session.Manager, d *dispatch.Dispatcher, port int) *Server {
	srv := &Server{
		manager:    m,
		dispatcher: d,
		port:       port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Post("/alerts/{alertID}/cancel", srv.handleCancelAlert)
		r.Get("/sessions/{sessionID}", srv.handleGetSession)
		r.Get("/sessions/{sessionID}/alerts", srv.handleSessionAlerts)
	})

	srv.router = r
	return srv
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("starting HTTP API", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"service":       "guardian",
		"live_sessions": s.manager.LiveCount(),
		"buffer_size":   s.dispatcher.BufferLen(),
	})
}

// handleCancelAlert is the user cancel action. The response is success or a
// "not cancellable" failure — never a partial state.
func (s *Server) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	err := s.manager.Cancel(alertID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"alert_id": alertID, "status": "cancelled"})
	case errors.Is(err, session.ErrAlertNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
	case errors.Is(err, alert.ErrNotCancellable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "not cancellable"})
	default:
		slog.Error("cancel alert failed", "alert_id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	snap, err := s.manager.Snapshot(sessionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSessionAlerts(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	views, err := s.manager.Alerts(sessionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
