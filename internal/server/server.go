// Package server exposes worker health, Prometheus metrics and the written
// daily models over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"mlb_daily/ingestion/internal/builder"
	"mlb_daily/ingestion/internal/calendar"
	"mlb_daily/ingestion/internal/scheduler"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger is a dependency whose health is reported by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Trigger starts an out-of-schedule build
type Trigger interface {
	RunOnce(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	outputDir string
	checks    map[string]Pinger
	trigger   Trigger
	logger    zerolog.Logger
	started   time.Time
}

// NewHandler creates a handler serving models from outputDir
func NewHandler(outputDir string, checks map[string]Pinger, trigger Trigger, logger zerolog.Logger) *Handler {
	return &Handler{
		outputDir: outputDir,
		checks:    checks,
		trigger:   trigger,
		logger:    logger,
		started:   time.Now(),
	}
}

// Router builds the chi router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/models", func(r chi.Router) {
		r.Get("/{date}", h.GetModel)
		r.Get("/{date}/summary", h.GetModelSummary)
	})
	if h.trigger != nil {
		r.Post("/builds", h.TriggerBuild)
	}
	return r
}

// HealthCheck reports the status of every registered dependency
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	status := http.StatusOK
	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":       state,
		"dependencies": deps,
		"uptime_s":     int(time.Since(h.started).Seconds()),
		"timestamp":    time.Now().UTC(),
	})
}

// GetModel serves the model written for a date (YYYY-MM-DD or YYYYMMDD)
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	path, ok := h.modelPath(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetModelSummary returns the summary, freshness and warnings of a model
func (h *Handler) GetModelSummary(w http.ResponseWriter, r *http.Request) {
	path, ok := h.modelPath(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	m, err := builder.ReadModel(path)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":       m.RunID,
		"date":         m.Date,
		"generated_at": m.GeneratedAt,
		"summary":      m.Summary,
		"freshness":    m.Freshness,
		"warnings":     m.Warnings,
	})
}

// TriggerBuild runs a build now; 409 when one is already running
func (h *Handler) TriggerBuild(w http.ResponseWriter, r *http.Request) {
	err := h.trigger.RunOnce(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		respondError(w, http.StatusConflict, "build already running")
	case err != nil && !errors.Is(err, builder.ErrUpstreamUnreachable):
		h.logger.Error().Err(err).Msg("Triggered build failed")
		respondError(w, http.StatusInternalServerError, "build failed")
	default:
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "built"})
	}
}

func (h *Handler) modelPath(w http.ResponseWriter, raw string) (string, bool) {
	date := raw
	if len(raw) == 8 {
		date = raw[:4] + "-" + raw[4:6] + "-" + raw[6:]
	}
	if _, err := calendar.ParseDate(date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or YYYYMMDD")
		return "", false
	}
	return builder.OutputPath(h.outputDir, date), true
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, os.ErrNotExist) {
		respondError(w, http.StatusNotFound, "no model for that date")
		return
	}
	h.logger.Error().Err(err).Msg("Failed to read model")
	respondError(w, http.StatusInternalServerError, "failed to read model")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
		"code":    status,
	})
}
