package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mlb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Tokyo", cfg.UserTimezone)
	assert.Equal(t, "America/New_York", cfg.LeagueTimezone)
	assert.Equal(t, 9, cfg.CutoffHour)
	assert.Equal(t, BackendFS, cfg.CacheBackend)
	assert.Equal(t, "models", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, time.Second, cfg.HTTPBackoffBase())
	assert.Equal(t, 10*time.Minute, cfg.RunDeadline)
	assert.Equal(t, "vl", cfg.SplitCodeLeft)
	assert.Equal(t, "vr", cfg.SplitCodeRight)
	assert.Empty(t, cfg.TTLOverrides())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFile_EnvironmentBeatsFile(t *testing.T) {
	path := writeYAML(t, `
user_timezone: America/Chicago
cutoff_hour: 6
concurrency: 2
run_deadline: 90s
cache_ttls:
  schedule: 10m
  statcast_all_teams: 1h
split_codes:
  left: vsl
  right: vsr
`)
	t.Setenv("CONCURRENCY", "4")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "America/Chicago", cfg.UserTimezone)
	assert.Equal(t, 6, cfg.CutoffHour)
	assert.Equal(t, 4, cfg.Concurrency, "environment wins over file")
	assert.Equal(t, 90*time.Second, cfg.RunDeadline)
	assert.Equal(t, "vsl", cfg.SplitCodeLeft)
	assert.Equal(t, map[string]time.Duration{
		"schedule":           10 * time.Minute,
		"statcast_all_teams": time.Hour,
	}, cfg.TTLOverrides())
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoad_ConfigFileFromEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeYAML(t, "output_dir: out/daily\n"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "out/daily", cfg.OutputDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown zone", map[string]string{"USER_TIMEZONE": "Mars/Olympus"}},
		{"bad target date", map[string]string{"TARGET_DATE": "2025/08/25"}},
		{"cutoff out of range", map[string]string{"CUTOFF_HOUR": "24"}},
		{"unknown ttl kind", map[string]string{"CACHE_TTLS": "odds:1h"}},
		{"unknown backend", map[string]string{"CACHE_BACKEND": "memcached"}},
		{"postgres without password", map[string]string{"CACHE_BACKEND": "postgres"}},
		{"closer policy", map[string]string{"CLOSER_POLICY": "committee"}},
		{"zero concurrency", map[string]string{"CONCURRENCY": "0"}},
		{"same split codes", map[string]string{"SPLIT_CODE_LEFT": "vr"}},
		{"not a number", map[string]string{"CUTOFF_HOUR": "nine"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadFile_Unreadable(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = LoadFile(writeYAML(t, "cutoff_hour: [1, 2]\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRedisAddr(t *testing.T) {
	cfg := &Config{RedisHost: "cache", RedisPort: 6380}
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
}
