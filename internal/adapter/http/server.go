// Package http exposes the webhook receiver, the sensor query API, and the
// operational endpoints.
package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/lorawan-telemetry-service/internal/domain"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/ingest"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxWebhookBody bounds webhook request bodies; uplink events are a few KB.
const maxWebhookBody = 1 << 20

// Periods accepted by the statistics endpoint.
var statisticsPeriods = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Ingestor accepts one parsed uplink event and reports the outcome.
type Ingestor interface {
	Ingest(ctx context.Context, event domain.UplinkEvent) (ingest.Result, error)
	CheckReadiness(ctx context.Context) error
}

// ReadingStore is the read-side surface the query endpoints need.
type ReadingStore interface {
	FindLatest(ctx context.Context, deviceID string) (domain.SensorReading, bool, error)
	FindRange(ctx context.Context, deviceID string, start, end time.Time, limit, offset int) ([]domain.SensorReading, int, error)
	FindRecent(ctx context.Context, deviceID string, limit int) ([]domain.SensorReading, error)
}

// Server exposes the webhook, query, health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	ingestor   Ingestor
	store      ReadingStore
	logger     *slog.Logger
}

// NewServer creates the HTTP server with all service routes.
func NewServer(addr string, ingestor Ingestor, store ReadingStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ingestor: ingestor,
		store:    store,
		logger:   logger,
	}

	mux.HandleFunc("POST /ttn", s.handleWebhook)
	mux.HandleFunc("GET /api/sensor/latest", s.handleLatest)
	mux.HandleFunc("GET /api/sensor/readings", s.handleReadings)
	mux.HandleFunc("GET /api/sensor/statistics", s.handleStatistics)
	mux.HandleFunc("GET /api/sensor/quality", s.handleQuality)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

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

// webhookResponse is the acknowledgment returned to the network server.
type webhookResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	UniqueID string `json:"unique_id,omitempty"`
}

// handleWebhook accepts one uplink delivery. Only an unreadable body earns a
// 400 and only a persistence failure earns a 500; data-quality problems are
// logged by the ingestor and acknowledged with 200 so the network server
// does not retry events we have already recorded.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Success: false, Message: "unreadable request body"})
		return
	}

	event, err := domain.ParseUplinkEvent(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Success: false, Message: "invalid JSON payload"})
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), event)
	if err != nil {
		s.logger.Error("uplink ingest failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Success: false, Message: "failed to store reading"})
		return
	}

	msg := "duplicate uplink suppressed"
	if result.Created {
		msg = "reading stored"
	}
	writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: msg, UniqueID: result.UniqueID})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	reading, found, err := s.store.FindLatest(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("latest reading query failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no readings for device")
		return
	}

	writeJSON(w, http.StatusOK, reading)
}

// readingsResponse is the paginated range-query envelope.
type readingsResponse struct {
	Total int                    `json:"total"`
	Limit int                    `json:"limit"`
	Skip  int                    `json:"skip"`
	Data  []domain.SensorReading `json:"data"`
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	limit, err := parseIntParam(q.Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	skip, err := parseIntParam(q.Get("skip"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid skip")
		return
	}

	start, err := parseTimeParam(q.Get("start_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date, want RFC 3339")
		return
	}
	end, err := parseTimeParam(q.Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date, want RFC 3339")
		return
	}

	readings, total, err := s.store.FindRange(r.Context(), deviceID, start, end, limit, skip)
	if err != nil {
		s.logger.Error("readings range query failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if readings == nil {
		readings = []domain.SensorReading{}
	}
	writeJSON(w, http.StatusOK, readingsResponse{Total: total, Limit: limit, Skip: skip, Data: readings})
}

// statisticsResponse wraps the aggregate with its query parameters.
type statisticsResponse struct {
	DeviceID   string            `json:"device_id"`
	Period     string            `json:"period"`
	Statistics domain.Statistics `json:"statistics"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	period := q.Get("period")
	if period == "" {
		period = "24h"
	}
	window, ok := statisticsPeriods[period]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid period, want one of 1h, 24h, 7d, 30d")
		return
	}

	now := time.Now().UTC()
	readings, _, err := s.store.FindRange(r.Context(), deviceID, now.Add(-window), now, 0, 0)
	if err != nil {
		s.logger.Error("statistics query failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	stats, ok := domain.ComputeStatistics(readings, window)
	if !ok {
		writeError(w, http.StatusNotFound, "no data in window")
		return
	}

	writeJSON(w, http.StatusOK, statisticsResponse{DeviceID: deviceID, Period: period, Statistics: stats})
}

// qualityResponse wraps the classification with its device.
type qualityResponse struct {
	DeviceID string               `json:"device_id"`
	Quality  domain.SignalQuality `json:"quality"`
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	limit, err := parseIntParam(q.Get("limit"), domain.DefaultQualitySampleSize, 1, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	readings, err := s.store.FindRecent(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("quality query failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	quality, ok := domain.ClassifySignal(readings)
	if !ok {
		writeError(w, http.StatusNotFound, "no readings for device")
		return
	}

	writeJSON(w, http.StatusOK, qualityResponse{DeviceID: deviceID, Quality: quality})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ingestor.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func parseIntParam(raw string, fallback, minVal, maxVal int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < minVal {
		return 0, strconv.ErrSyntax
	}
	if v > maxVal {
		return maxVal, nil
	}
	return v, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}
