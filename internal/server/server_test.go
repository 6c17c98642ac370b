package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mlb_daily/ingestion/internal/builder"
	"mlb_daily/ingestion/internal/models"
	"mlb_daily/ingestion/internal/scheduler"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triggerFunc func(ctx context.Context) error

func (f triggerFunc) RunOnce(ctx context.Context) error { return f(ctx) }

func writeSample(t *testing.T, dir string) {
	t.Helper()
	m := &models.CanonicalDailyModel{
		Version:     models.ModelVersion,
		Sport:       models.Sport,
		RunID:       "run-1",
		Date:        "2025-08-25",
		UserDate:    "2025-08-25",
		Timezone:    "Asia/Tokyo",
		GeneratedAt: time.Date(2025, 8, 25, 0, 30, 0, 0, time.UTC),
		Warnings:    []string{"schedule unavailable"},
		Games:       []models.GameBlock{},
	}
	m.Summary = models.NewSummary(m.Games)
	_, err := builder.WriteModel(dir, m)
	require.NoError(t, err)
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetModel(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir)
	r := NewHandler(dir, nil, nil, zerolog.Nop()).Router()

	for _, date := range []string{"2025-08-25", "20250825"} {
		rec := get(t, r, http.MethodGet, "/models/"+date)
		require.Equal(t, http.StatusOK, rec.Code, date)
		var m models.CanonicalDailyModel
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		assert.Equal(t, "run-1", m.RunID)
	}

	assert.Equal(t, http.StatusNotFound, get(t, r, http.MethodGet, "/models/2025-08-26").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, http.MethodGet, "/models/yesterday").Code)
}

func TestGetModelSummary(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir)
	r := NewHandler(dir, nil, nil, zerolog.Nop()).Router()

	rec := get(t, r, http.MethodGet, "/models/20250825/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RunID    string         `json:"run_id"`
		Summary  models.Summary `json:"summary"`
		Warnings []string       `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, 0, body.Summary.GameCount)
	assert.Equal(t, []string{"schedule unavailable"}, body.Warnings)
}

func TestHealthCheck(t *testing.T) {
	healthy := map[string]Pinger{"cache": PingFunc(func(context.Context) error { return nil })}
	rec := get(t, NewHandler(t.TempDir(), healthy, nil, zerolog.Nop()).Router(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	broken := map[string]Pinger{"cache": PingFunc(func(context.Context) error { return errors.New("refused") })}
	rec = get(t, NewHandler(t.TempDir(), broken, nil, zerolog.Nop()).Router(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache":"unhealthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, NewHandler(t.TempDir(), nil, nil, zerolog.Nop()).Router(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTriggerBuild(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"built", nil, http.StatusAccepted},
		{"schedule down still writes", builder.ErrUpstreamUnreachable, http.StatusAccepted},
		{"busy", scheduler.ErrBusy, http.StatusConflict},
		{"failed", builder.ErrOutputIO, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig := triggerFunc(func(context.Context) error { return tt.err })
			r := NewHandler(t.TempDir(), nil, trig, zerolog.Nop()).Router()
			assert.Equal(t, tt.want, get(t, r, http.MethodPost, "/builds").Code)
		})
	}

	r := NewHandler(t.TempDir(), nil, nil, zerolog.Nop()).Router()
	assert.Equal(t, http.StatusNotFound, get(t, r, http.MethodPost, "/builds").Code, "no route without a trigger")
}
