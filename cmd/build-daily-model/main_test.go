package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"mlb_daily/ingestion/internal/builder"
	"mlb_daily/ingestion/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{fmt.Errorf("%w: bad zone", config.ErrInvalid), exitInvalid},
		{fmt.Errorf("%w: bad date", builder.ErrInvalidRequest), exitInvalid},
		{fmt.Errorf("%w: schedule", builder.ErrUpstreamUnreachable), exitUnreachable},
		{fmt.Errorf("%w: disk full", builder.ErrOutputIO), exitOutputIO},
		{errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

// isolate points every upstream and directory at the test
func isolate(t *testing.T, upstream string) string {
	t.Helper()
	out := t.TempDir()
	t.Setenv("STATS_API_BASE_URL", upstream+"/api/v1")
	t.Setenv("STATCAST_BASE_URL", upstream)
	t.Setenv("HTTP_RETRIES", "0")
	t.Setenv("HTTP_BACKOFF_BASE_S", "0")
	t.Setenv("OUTPUT_DIR", filepath.Join(out, "from-env"))
	t.Setenv("CACHE_DIR", filepath.Join(out, "cache"))
	t.Setenv("CACHE_BACKEND", "fs")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CONFIG_FILE", "")
	return out
}

func execute(args ...string) (string, error) {
	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRun_UnreachableStillWritesModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	out := isolate(t, srv.URL)

	stdout, err := execute("--date", "2025-08-25", "--timezone", "America/New_York", "--out", out)
	assert.Equal(t, exitUnreachable, exitCode(err))

	path := strings.TrimSpace(stdout)
	assert.Equal(t, filepath.Join(out, "mlb_daily_20250825.json"), path, "--out beats OUTPUT_DIR")
	m, readErr := builder.ReadModel(path)
	require.NoError(t, readErr)
	assert.Empty(t, m.Games)
	assert.False(t, m.Freshness.FourOfFour)
}

func TestRun_InvalidArguments(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	isolate(t, srv.URL)

	cases := [][]string{
		{"--date", "25/08/2025"},
		{"--timezone", "Moon/Base"},
		{"--forget", "odds"},
		{"--no-such-flag"},
		{"extra-arg"},
	}
	for _, args := range cases {
		stdout, err := execute(args...)
		assert.Equal(t, exitInvalid, exitCode(err), "%v: %v", args, err)
		assert.Empty(t, stdout, "%v", args)
	}
}
