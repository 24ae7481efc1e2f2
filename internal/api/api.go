// Package api is the thin admin/HTTP surface of §4.7: performance and
// fleet-state reads, plus the liveness/readiness/metrics endpoints every
// service in this fleet carries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rahullalw/smart-ev-analytics/internal/analytics"
	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/health"
	"github.com/rahullalw/smart-ev-analytics/internal/session"
)

const (
	performancePrefix = "/analytics/performance/"
	fleetStatesPath   = "/analytics/vehicles/states"
	sessionStartPath  = "/sessions/start"
	sessionEndPath    = "/sessions/end"
	healthPath        = "/health"
	readinessPath     = "/health/readiness"
	metricsPath       = "/metrics"
)

// FleetReader backs GET /analytics/vehicles/states.
type FleetReader interface {
	FleetSnapshot(ctx context.Context, limit int) ([]domain.FleetRow, error)
}

// Aggregator backs GET /analytics/performance/{vehicleId}.
type Aggregator interface {
	PerformanceDefaultWindow(ctx context.Context, vehicleID string) (domain.PerformanceMetrics, error)
}

// SessionService backs the operator session endpoints. spec.md §6 notes
// these are "operator APIs not specified" beyond start/end/lookup — this is
// the thin HTTP shape around internal/session.Service's same operations.
type SessionService interface {
	Start(ctx context.Context, vehicleID, meterID string) error
	End(ctx context.Context, vehicleID string) error
}

// Router is the manual ServeHTTP dispatcher every service in this fleet
// uses instead of pulling in a web framework.
type Router struct {
	aggregator  Aggregator
	fleet       FleetReader
	sessions    SessionService
	dbHealth    *health.Checker
	queueHealth *health.Checker
	logger      *slog.Logger
}

func New(aggregator Aggregator, fleet FleetReader, sessions SessionService, dbHealth, queueHealth *health.Checker, logger *slog.Logger) *Router {
	return &Router{aggregator: aggregator, fleet: fleet, sessions: sessions, dbHealth: dbHealth, queueHealth: queueHealth, logger: logger}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch {
	case req.URL.Path == healthPath:
		rt.handleHealth(w, req)
	case req.URL.Path == readinessPath:
		rt.handleReadiness(w, req)
	case req.URL.Path == metricsPath:
		promhttp.Handler().ServeHTTP(w, req)
	case strings.HasPrefix(req.URL.Path, performancePrefix) && req.Method == http.MethodGet:
		rt.handlePerformance(w, req)
	case req.URL.Path == fleetStatesPath && req.Method == http.MethodGet:
		rt.handleFleetStates(w, req)
	case req.URL.Path == sessionStartPath && req.Method == http.MethodPost:
		rt.handleSessionStart(w, req)
	case req.URL.Path == sessionEndPath && req.Method == http.MethodPost:
		rt.handleSessionEnd(w, req)
	default:
		http.Error(w, "Not Found", http.StatusNotFound)
	}
}

func (rt *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleReadiness(w http.ResponseWriter, req *http.Request) {
	dbOK := rt.dbHealth == nil || rt.dbHealth.IsHealthy()
	queueOK := rt.queueHealth == nil || rt.queueHealth.IsHealthy()

	status := http.StatusOK
	if !dbOK || !queueOK {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]bool{"database": dbOK, "queue": queueOK})
}

func (rt *Router) handlePerformance(w http.ResponseWriter, req *http.Request) {
	vehicleID := strings.TrimPrefix(req.URL.Path, performancePrefix)
	if vehicleID == "" {
		http.Error(w, "vehicleId is required", http.StatusBadRequest)
		return
	}

	metrics, err := rt.aggregator.PerformanceDefaultWindow(req.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, analytics.ErrNoData) {
			http.Error(w, "no data for vehicle in window", http.StatusNotFound)
			return
		}
		rt.logger.Error("performance query failed", "vehicle_id", vehicleID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (rt *Router) handleFleetStates(w http.ResponseWriter, req *http.Request) {
	limit := 100
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	rows, err := rt.fleet.FleetSnapshot(req.Context(), limit)
	if err != nil {
		rt.logger.Error("fleet snapshot query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

type sessionStartRequest struct {
	VehicleID string `json:"vehicleId"`
	MeterID   string `json:"meterId"`
}

func (rt *Router) handleSessionStart(w http.ResponseWriter, req *http.Request) {
	var body sessionStartRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.VehicleID == "" || body.MeterID == "" {
		http.Error(w, "vehicleId and meterId are required", http.StatusBadRequest)
		return
	}

	if err := rt.sessions.Start(req.Context(), body.VehicleID, body.MeterID); err != nil {
		if errors.Is(err, session.ErrConflict) {
			http.Error(w, "vehicle already has an active session", http.StatusConflict)
			return
		}
		rt.logger.Error("session start failed", "vehicle_id", body.VehicleID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

type sessionEndRequest struct {
	VehicleID string `json:"vehicleId"`
}

func (rt *Router) handleSessionEnd(w http.ResponseWriter, req *http.Request) {
	var body sessionEndRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.VehicleID == "" {
		http.Error(w, "vehicleId is required", http.StatusBadRequest)
		return
	}

	if err := rt.sessions.End(req.Context(), body.VehicleID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "vehicle has no active session", http.StatusNotFound)
			return
		}
		rt.logger.Error("session end failed", "vehicle_id", body.VehicleID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Server wraps http.Server with the timeouts every service in this fleet
// configures explicitly rather than relying on net/http's zero-value
// (unbounded) defaults.
type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{httpServer: &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  20 * time.Minute,
	}}
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
