package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether a dependency is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// AlertReader exposes the stored catalog and its alert history.
type AlertReader interface {
	Stations(ctx context.Context) ([]domain.Station, error)
	AlertHistory(ctx context.Context, st domain.Station) ([]domain.AlertRecord, error)
}

// Server exposes health, readiness, metrics and the current alert state.
type Server struct {
	httpServer *http.Server
	alerts     AlertReader
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /alerts and /stations/{key}/history routes. /readyz fails while any of
// the checkers does.
func NewServer(addr string, alerts AlertReader, logger *slog.Logger, checkers ...ReadinessChecker) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		alerts: alerts,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(checkers))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /alerts", s.handleAlerts)
	mux.HandleFunc("GET /stations/{key}/history", s.handleHistory)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checkers []ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		var errs []error
		for _, c := range checkers {
			if err := c.CheckReadiness(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type stationAlert struct {
	Key         string           `json:"key"`
	StationCode string           `json:"station_code,omitempty"`
	ReachID     int64            `json:"reach_id"`
	Name        string           `json:"name,omitempty"`
	Alert       domain.AlertCode `json:"alert_code"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	stations, err := s.alerts.Stations(r.Context())
	if err != nil {
		s.internalError(w, "list stations", err)
		return
	}
	out := make([]stationAlert, 0, len(stations))
	for _, st := range stations {
		out = append(out, stationAlert{
			Key:         st.Key(),
			StationCode: st.Code,
			ReachID:     st.ReachID,
			Name:        st.Name,
			Alert:       st.Alert,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	stations, err := s.alerts.Stations(r.Context())
	if err != nil {
		s.internalError(w, "list stations", err)
		return
	}
	for _, st := range stations {
		if st.Key() != key {
			continue
		}
		history, err := s.alerts.AlertHistory(r.Context(), st)
		if err != nil {
			s.internalError(w, "alert history", err)
			return
		}
		if history == nil {
			history = []domain.AlertRecord{}
		}
		writeJSON(w, http.StatusOK, history)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown station " + key})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("http request failed", "op", op, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
