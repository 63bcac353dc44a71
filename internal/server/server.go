// Package server serves a read-only JSON reporting API over the ledger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ldi/hourbook/internal/billing"
	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
)

type Server struct {
	engine *billing.Engine
	log    *slog.Logger
	server *http.Server
}

// NewServer creates a reporting server. A nil logger uses slog.Default.
func NewServer(engine *billing.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, log: logger}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/closures", s.handleClosures)
	mux.HandleFunc("GET /api/closures/{id}", s.handleClosure)
	return mux
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.log.Info("serving reporting API", "addr", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type apiError struct {
	Error string `json:"error"`
}

func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("owner")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "owner query parameter is required"})
		return "", false
	}
	return id, true
}

func taskFilter(r *http.Request) (db.TaskFilter, error) {
	q := r.URL.Query()
	var filter db.TaskFilter

	if s := q.Get("status"); s != "" {
		status := models.TaskStatus(s)
		if status != models.TaskStatusPending && status != models.TaskStatusCompleted {
			return filter, errors.New("invalid status " + strconv.Quote(s))
		}
		filter.Status = &status
	}
	if c := q.Get("client_id"); c != "" {
		filter.ClientID = &c
	}

	month, year := q.Get("month"), q.Get("year")
	if month == "" && year == "" {
		return filter, nil
	}
	m, err1 := strconv.Atoi(month)
	y, err2 := strconv.Atoi(year)
	p := models.Period{Month: m, Year: y}
	if err1 != nil || err2 != nil || !p.Valid() {
		return filter, errors.New("month and year must together name a valid period")
	}
	filter.Period = &p
	return filter, nil
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	filter, err := taskFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	tasks, err := s.engine.ListTasks(r.Context(), ownerID, filter)
	s.respond(w, r, tasks, err)
}

func (s *Server) handleClosures(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	closures, err := s.engine.ListClosures(r.Context(), ownerID)
	s.respond(w, r, closures, err)
}

func (s *Server) handleClosure(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	summary, err := s.engine.GetClosureSummary(r.Context(), ownerID, r.PathValue("id"))
	s.respond(w, r, summary, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, data)
		return
	}
	if !billing.IsDomainError(err) {
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}

	status := http.StatusBadRequest
	switch {
	case errors.Is(err, billing.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, billing.ErrConflict):
		status = http.StatusConflict
	}
	writeJSON(w, status, apiError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
