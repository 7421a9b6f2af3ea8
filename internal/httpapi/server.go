// Package httpapi serves the monitor's status, history and live events over
// HTTP.
package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
	apimw "github.com/hamed0406/netvigil/internal/httpapi/middleware"
	"github.com/hamed0406/netvigil/internal/metrics"
	"github.com/hamed0406/netvigil/internal/pathtrace"
	"github.com/hamed0406/netvigil/internal/repo"
	"github.com/hamed0406/netvigil/internal/report"
	"github.com/hamed0406/netvigil/internal/tracker"
)

const defaultWindow = "24h"

// StatusSource is the read side of the tracker.
type StatusSource interface {
	Snapshot() tracker.Snapshot
	LastDiagnosis() *domain.PathTrace
}

type Store interface {
	repo.OutageStore
	repo.TraceStore
}

type Server struct {
	Logger  *zap.Logger
	Status  StatusSource
	Store   Store
	Tracer  tracker.Diagnoser
	Metrics *metrics.Metrics
	Hub     *Hub
	Clock   clock.Clock
}

func NewServer(l *zap.Logger, status StatusSource, store Store, tracer tracker.Diagnoser, m *metrics.Metrics, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub(l)
	}
	return &Server{Logger: l, Status: status, Store: store, Tracer: tracer, Metrics: m, Hub: hub, Clock: clock.New()}
}

// Router wires public read routes and the admin trace route. Zero rpm
// disables the corresponding rate limit; no origins means any origin.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.RequireAny(keys))
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/outages", s.handleOutages)
		r.Get("/api/outages/{id}", s.handleOutage)
		r.Get("/api/outages/{id}/traces", s.handleOutageTraces)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/events", s.handleEvents(s.upgrader(allowedOrigins)))
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(admRPM, admBurst))
		r.Use(apimw.RequireAdmin(keys))
		r.Post("/api/trace", s.handleTrace)
	})

	return r
}

type statusResponse struct {
	tracker.Snapshot
	LastDiagnosis *domain.PathTrace `json:"last_diagnosis,omitempty"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Snapshot:      s.Status.Snapshot(),
		LastDiagnosis: s.Status.LastDiagnosis(),
		GeneratedAt:   s.Clock.Now().UTC(),
	})
}

func (s *Server) window(r *http.Request, param string) (time.Time, time.Time, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		raw = defaultWindow
	}
	d, err := report.ParsePeriod(raw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	now := s.Clock.Now().UTC()
	return now.Add(-d), now, nil
}

func (s *Server) handleOutages(w http.ResponseWriter, r *http.Request) {
	since, until, err := s.window(r, "last")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outs, err := s.Store.Outages(r.Context(), since, until)
	if err != nil {
		s.Logger.Error("list_outages_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if outs == nil {
		outs = []domain.Outage{}
	}
	writeJSON(w, http.StatusOK, outs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	since, until, err := s.window(r, "period")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outs, err := s.Store.Outages(r.Context(), since, until)
	if err != nil {
		s.Logger.Error("stats_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats error")
		return
	}
	writeJSON(w, http.StatusOK, domain.ComputeStats(outs, since, until))
}

func outageID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleOutage(w http.ResponseWriter, r *http.Request) {
	id, ok := outageID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad outage id")
		return
	}
	o, err := s.Store.Outage(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.Logger.Error("get_outage_failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup error")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleOutageTraces(w http.ResponseWriter, r *http.Request) {
	id, ok := outageID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad outage id")
		return
	}
	if _, err := s.Store.Outage(r.Context(), id); errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	trs, err := s.Store.TracesForOutage(r.Context(), id)
	if err != nil {
		s.Logger.Error("list_traces_failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if trs == nil {
		trs = []domain.PathTrace{}
	}
	writeJSON(w, http.StatusOK, trs)
}

type tracePayload struct {
	Target string `json:"target"`
}

// handleTrace runs a standalone diagnosis. The request blocks until the
// trace finishes, which can take max_hops * hop_timeout.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	if s.Tracer == nil {
		writeError(w, http.StatusServiceUnavailable, "diagnosis disabled")
		return
	}
	var p tracePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	target := strings.TrimSpace(p.Target)
	if target == "" {
		target = s.Status.Snapshot().Primary
	}
	if !pathtrace.ValidTarget(target) {
		writeError(w, http.StatusBadRequest, "bad target")
		return
	}

	tr := s.Tracer.Trace(r.Context(), target)
	tr.Trigger = domain.TriggerManual
	if _, err := s.Store.InsertTrace(r.Context(), &tr); err != nil {
		s.Logger.Warn("store_trace_failed", zap.Error(err))
	}
	if s.Metrics != nil {
		s.Metrics.ObserveTrace(tr)
	}
	s.Logger.Info("manual_trace",
		zap.String("target", target),
		zap.Int("hops", len(tr.Hops)),
		zap.Bool("reached", tr.ReachedTarget),
		zap.String("error", tr.Error),
	)
	writeJSON(w, http.StatusOK, tr)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
