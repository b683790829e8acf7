// Package httpapi exposes the read-only map snapshot and the operator
// control operations over HTTP for the dispatch UI.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"github.com/cadlive/livemap/internal/engine"
	"github.com/cadlive/livemap/internal/signage"
	"github.com/cadlive/livemap/internal/supervisor"
	"github.com/cadlive/livemap/pkg/core"
)

// Server wires the engine and supervisor into an HTTP handler.
type Server struct {
	engine *engine.Engine
	sup    *supervisor.Supervisor
	logger *slog.Logger
}

func New(eng *engine.Engine, sup *supervisor.Supervisor, logger *slog.Logger) *Server {
	return &Server{engine: eng, sup: sup, logger: logger}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", s.handleHealthcheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/map/snapshot", s.handleSnapshot)
		r.Post("/signage/{id}", s.handleSignEdit)
		r.Post("/calls", s.handleSetCalls)

		r.Route("/connection", func(r chi.Router) {
			r.Post("/select", s.handleSelect)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
		})
	})

	return r
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	State    core.ConnectionState `json:"state"`
	Endpoint string               `json:"endpoint"`
	Error    string               `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sup.Status()
	resp := statusResponse{State: st.State, Endpoint: st.Endpoint}
	if st.LastErr != nil {
		resp.Error = st.LastErr.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleSignEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cfg core.SignConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid sign configuration payload")
		return
	}

	if err := s.engine.EditSign(id, cfg); err != nil {
		switch {
		case errors.Is(err, signage.ErrUnknownSign):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, signage.ErrNotEditable):
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.logger.Error("Sign edit failed", "sign", id, "error", err)
			s.writeError(w, http.StatusBadGateway, "edit could not be sent")
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

func (s *Server) handleSetCalls(w http.ResponseWriter, r *http.Request) {
	var calls []core.CallMarker
	if err := json.NewDecoder(r.Body).Decode(&calls); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid calls payload")
		return
	}

	s.engine.SetCalls(calls)
	s.writeJSON(w, http.StatusOK, map[string]int{"calls": len(calls)})
}

type selectRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "missing endpoint url")
		return
	}

	if err := s.sup.SelectEndpoint(req.URL); err != nil {
		s.writeConnectionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"endpoint": req.URL})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Connect(); err != nil {
		s.writeConnectionError(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.sup.Disconnect()
	s.handleStatus(w, r)
}

// writeConnectionError maps supervisor error classes onto status codes:
// configuration problems are the caller's to fix, connection problems
// point at the selected endpoint.
func (s *Server) writeConnectionError(w http.ResponseWriter, err error) {
	var cfgErr *supervisor.ConfigurationError
	var connErr *supervisor.ConnectionError
	switch {
	case errors.As(err, &cfgErr):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &connErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
