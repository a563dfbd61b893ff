// Package httpapi exposes session control, chart images and live events over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/TelemFlow/internal/app/series"
	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// Status is the session summary served by GET /api/session.
type Status struct {
	State     string        `json:"state"`
	SessionID string        `json:"session_id,omitempty"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	RecordLog string        `json:"record_log,omitempty"`
	Samples   uint64        `json:"samples"`
	LastEvent *domain.Event `json:"last_event,omitempty"`
}

// ViewImage is the latest chart of one view.
type ViewImage struct {
	Metric      string
	ContentType string
	RenderedAt  time.Time
	Data        []byte
}

// Backend is what the API drives. Views are 0-based here and 1-based on the wire.
type Backend interface {
	Status() Status
	StartSession(ctx context.Context) error
	StopSession(ctx context.Context) error
	Views() []string
	SelectMetric(ctx context.Context, view int, metric string) error
	ViewImage(view int) (ViewImage, bool)
	Series(metric string) []series.Point
	Subscribe(buffer int) (<-chan domain.Event, func())
}

type Server struct {
	backend  Backend
	obs      ports.Observability
	gatherer prometheus.Gatherer
	router   *mux.Router
}

func NewServer(backend Backend, gatherer prometheus.Gatherer, obs ports.Observability) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		backend:  backend,
		obs:      obs,
		gatherer: gatherer,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/session/start", s.startSession).Methods(http.MethodPost)
	api.HandleFunc("/session/stop", s.stopSession).Methods(http.MethodPost)
	api.HandleFunc("/views", s.getViews).Methods(http.MethodGet)
	api.HandleFunc("/views/{index:[0-9]+}/metric/{metric}", s.selectMetric).Methods(http.MethodPut)
	api.HandleFunc("/views/{index:[0-9]+}/image", s.getViewImage).Methods(http.MethodGet)
	api.HandleFunc("/series/{metric}", s.getSeries).Methods(http.MethodGet)
	api.HandleFunc("/events", s.streamEvents).Methods(http.MethodGet)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.StartSession(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.StopSession(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.backend.Status())
}

type viewSelection struct {
	View   int    `json:"view"`
	Metric string `json:"metric"`
}

func (s *Server) getViews(w http.ResponseWriter, _ *http.Request) {
	views := s.backend.Views()
	out := make([]viewSelection, len(views))
	for i, m := range views {
		out[i] = viewSelection{View: i + 1, Metric: m}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) selectMetric(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, ok := s.viewIndex(w, vars["index"])
	if !ok {
		return
	}
	metric := vars["metric"]
	if !domain.IsKnownMetric(metric) {
		http.Error(w, "unknown metric", http.StatusNotFound)
		return
	}
	if err := s.backend.SelectMetric(r.Context(), view, metric); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewSelection{View: view + 1, Metric: metric})
}

func (s *Server) getViewImage(w http.ResponseWriter, r *http.Request) {
	view, ok := s.viewIndex(w, mux.Vars(r)["index"])
	if !ok {
		return
	}
	img, ok := s.backend.ViewImage(view)
	if !ok {
		http.Error(w, "view not rendered yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Telem-Metric", img.Metric)
	w.Header().Set("Last-Modified", img.RenderedAt.UTC().Format(http.TimeFormat))
	_, _ = w.Write(img.Data)
}

type seriesResponse struct {
	Metric string         `json:"metric"`
	Points []series.Point `json:"points"`
}

func (s *Server) getSeries(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]
	if !domain.IsKnownMetric(metric) {
		http.Error(w, "unknown metric", http.StatusNotFound)
		return
	}
	pts := s.backend.Series(metric)
	if pts == nil {
		pts = []series.Point{}
	}
	s.writeJSON(w, http.StatusOK, seriesResponse{Metric: metric, Points: pts})
}

func (s *Server) viewIndex(w http.ResponseWriter, raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(s.backend.Views()) {
		http.Error(w, "view not found", http.StatusNotFound)
		return 0, false
	}
	return n - 1, true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && s.obs != nil {
		s.obs.LogError("http_encode_failed", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrStopTimeout), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		code = http.StatusRequestTimeout
	}
	if s.obs != nil {
		s.obs.LogError("http_request_failed", err, ports.Field{Key: "status", Value: code})
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}
