// Package server exposes estimated district boundaries and run history over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
	"github.com/the-scouts/incognita-sub000/internal/export"
	"github.com/the-scouts/incognita-sub000/internal/model"
	"github.com/the-scouts/incognita-sub000/internal/store"
)

// RunReader is the read side of the run history.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Server routes HTTP requests to the district and run stores. Runs may be
// nil when no history is kept.
type Server struct {
	districts store.DistrictSource
	runs      RunReader
	log       *zap.Logger
}

// New creates a Server.
func New(districts store.DistrictSource, runs RunReader) *Server {
	return &Server{districts: districts, runs: runs, log: zap.L().With(zap.String("component", "server"))}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/districts", s.listDistricts)
	r.Get("/districts/{id}", s.getDistrict)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Get("/{id}", s.getRun)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listDistricts(w http.ResponseWriter, r *http.Request) {
	districts, err := s.districts.ListDistricts(r.Context())
	if err != nil {
		s.fail(w, "list districts", err)
		return
	}
	s.writeDistricts(w, districts)
}

func (s *Server) getDistrict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	districts, err := s.districts.ListDistricts(r.Context())
	if err != nil {
		s.fail(w, "list districts", err)
		return
	}
	for _, d := range districts {
		if d.ID == id {
			s.writeDistricts(w, []boundary.District{d})
			return
		}
	}
	writeError(w, http.StatusNotFound, "district not found")
}

func (s *Server) writeDistricts(w http.ResponseWriter, districts []boundary.District) {
	fc, err := export.FeatureCollection(districts)
	if err != nil {
		s.fail(w, "encode districts", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		s.log.Warn("server: write districts", zap.Error(err))
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run history is not enabled")
		return
	}
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.fail(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	s.log.Error("server: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("server: invalid integer %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
