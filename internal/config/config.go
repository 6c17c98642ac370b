package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/calendar"
	"mlb_daily/ingestion/internal/models"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that cannot be used
var ErrInvalid = errors.New("invalid configuration")

// Cache backends
const (
	BackendFS       = "fs"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Target
	TargetDate     string `envconfig:"TARGET_DATE" default:""`
	UserTimezone   string `envconfig:"USER_TIMEZONE" default:"Asia/Tokyo"`
	LeagueTimezone string `envconfig:"LEAGUE_TIMEZONE" default:"America/New_York"`
	CutoffHour     int    `envconfig:"CUTOFF_HOUR" default:"9"`
	Season         int    `envconfig:"SEASON" default:"0"`

	// Cache
	CacheDir     string `envconfig:"CACHE_DIR" default:".cache/mlb"`
	CacheTTLs    string `envconfig:"CACHE_TTLS" default:""`
	CacheBackend string `envconfig:"CACHE_BACKEND" default:"fs"`
	ForceRefresh bool   `envconfig:"FORCE_REFRESH" default:"false"`

	// Upstream HTTP
	StatsAPIBaseURL  string  `envconfig:"STATS_API_BASE_URL" default:"https://statsapi.mlb.com/api/v1"`
	StatcastBaseURL  string  `envconfig:"STATCAST_BASE_URL" default:"https://baseballsavant.mlb.com"`
	HTTPTimeoutS     float64 `envconfig:"HTTP_TIMEOUT_S" default:"15"`
	HTTPRetries      int     `envconfig:"HTTP_RETRIES" default:"3"`
	HTTPBackoffBaseS float64 `envconfig:"HTTP_BACKOFF_BASE_S" default:"1"`
	Concurrency      int     `envconfig:"CONCURRENCY" default:"8"`

	// Enrichment
	StatcastWindowDays int    `envconfig:"STATCAST_WINDOW_DAYS" default:"30"`
	SplitCodeLeft      string `envconfig:"SPLIT_CODE_LEFT" default:"vl"`
	SplitCodeRight     string `envconfig:"SPLIT_CODE_RIGHT" default:"vr"`
	CloserPolicy       string `envconfig:"CLOSER_POLICY" default:"season_saves"`

	// Run
	RunDeadline     time.Duration `envconfig:"RUN_DEADLINE" default:"10m"`
	OutputDir       string        `envconfig:"OUTPUT_DIR" default:"models"`
	MetricsTextfile string        `envconfig:"METRICS_TEXTFILE" default:""`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"mlb_daily"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"mlb_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" default:""`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Worker
	WorkerCron  string `envconfig:"WORKER_CRON" default:"30 9 * * *"`
	MetricsPort int    `envconfig:"METRICS_PORT" default:"9090"`

	// Application
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	ConfigFile string `envconfig:"CONFIG_FILE" default:""`
}

// Load loads configuration from environment variables and, when
// CONFIG_FILE is set, a YAML file underneath them.
// It first attempts to load from .env file if present.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit YAML path that takes priority over
// CONFIG_FILE. Precedence: defaults < file < environment.
func LoadFile(path string) (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to process environment config: %v", ErrInvalid, err)
	}

	if path == "" {
		path = cfg.ConfigFile
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !calendar.ValidZone(c.UserTimezone) {
		add("USER_TIMEZONE %q is not an IANA zone", c.UserTimezone)
	}
	if !calendar.ValidZone(c.LeagueTimezone) {
		add("LEAGUE_TIMEZONE %q is not an IANA zone", c.LeagueTimezone)
	}
	if c.TargetDate != "" {
		if _, err := calendar.ParseDate(c.TargetDate); err != nil {
			add("TARGET_DATE %q is not YYYY-MM-DD", c.TargetDate)
		}
	}
	if c.CutoffHour < 0 || c.CutoffHour > 23 {
		add("CUTOFF_HOUR %d outside 0-23", c.CutoffHour)
	}
	if c.Season != 0 && (c.Season < 1876 || c.Season > 2100) {
		add("SEASON %d is not a four-digit season", c.Season)
	}
	if _, err := cache.ParseTTLs(c.CacheTTLs); err != nil {
		add("CACHE_TTLS: %v", err)
	}
	switch c.CacheBackend {
	case BackendFS, BackendRedis:
	case BackendPostgres:
		if c.DatabasePassword == "" {
			add("DATABASE_PASSWORD is required for the postgres cache backend")
		}
	default:
		add("CACHE_BACKEND %q must be fs, redis or postgres", c.CacheBackend)
	}
	if c.CloserPolicy != models.CloserSeasonSaves && c.CloserPolicy != models.CloserRecentSaves {
		add("CLOSER_POLICY %q must be %s or %s", c.CloserPolicy, models.CloserSeasonSaves, models.CloserRecentSaves)
	}
	if c.Concurrency <= 0 {
		add("CONCURRENCY must be positive")
	}
	if c.HTTPRetries < 0 {
		add("HTTP_RETRIES must not be negative")
	}
	if c.HTTPTimeoutS <= 0 || c.HTTPBackoffBaseS < 0 {
		add("HTTP_TIMEOUT_S must be positive and HTTP_BACKOFF_BASE_S not negative")
	}
	if c.StatcastWindowDays <= 0 {
		add("STATCAST_WINDOW_DAYS must be positive")
	}
	if c.SplitCodeLeft == "" || c.SplitCodeRight == "" || c.SplitCodeLeft == c.SplitCodeRight {
		add("split codes must be two distinct values")
	}
	if c.OutputDir == "" {
		add("OUTPUT_DIR is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// TTLOverrides returns the parsed CACHE_TTLS
func (c *Config) TTLOverrides() map[string]time.Duration {
	ttls, err := cache.ParseTTLs(c.CacheTTLs)
	if err != nil {
		return nil
	}
	return ttls
}

// HTTPTimeout returns the per-request timeout
func (c *Config) HTTPTimeout() time.Duration {
	return seconds(c.HTTPTimeoutS)
}

// HTTPBackoffBase returns the first retry delay
func (c *Config) HTTPBackoffBase() time.Duration {
	return seconds(c.HTTPBackoffBaseS)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or exits with status 2 on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// fileConfig mirrors the YAML option names. Pointers distinguish "absent"
// from zero values.
type fileConfig struct {
	TargetDate         *string           `yaml:"target_date"`
	UserTimezone       *string           `yaml:"user_timezone"`
	LeagueTimezone     *string           `yaml:"league_timezone"`
	CutoffHour         *int              `yaml:"cutoff_hour"`
	Season             *int              `yaml:"season"`
	CacheDir           *string           `yaml:"cache_dir"`
	CacheTTLs          map[string]string `yaml:"cache_ttls"`
	CacheBackend       *string           `yaml:"cache_backend"`
	HTTPTimeoutS       *float64          `yaml:"http_timeout_s"`
	HTTPRetries        *int              `yaml:"http_retries"`
	HTTPBackoffBaseS   *float64          `yaml:"http_backoff_base_s"`
	Concurrency        *int              `yaml:"concurrency"`
	ForceRefresh       *bool             `yaml:"force_refresh"`
	RunDeadline        *string           `yaml:"run_deadline"`
	OutputDir          *string           `yaml:"output_dir"`
	StatcastWindowDays *int              `yaml:"statcast_window_days"`
	CloserPolicy       *string           `yaml:"closer_policy"`
	SplitCodes         *struct {
		Left  string `yaml:"left"`
		Right string `yaml:"right"`
	} `yaml:"split_codes"`
}

// applyFile overlays YAML values for every option whose environment
// variable is unset.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read config file: %v", ErrInvalid, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: parse config file %s: %v", ErrInvalid, path, err)
	}

	setString(&c.TargetDate, fc.TargetDate, "TARGET_DATE")
	setString(&c.UserTimezone, fc.UserTimezone, "USER_TIMEZONE")
	setString(&c.LeagueTimezone, fc.LeagueTimezone, "LEAGUE_TIMEZONE")
	setInt(&c.CutoffHour, fc.CutoffHour, "CUTOFF_HOUR")
	setInt(&c.Season, fc.Season, "SEASON")
	setString(&c.CacheDir, fc.CacheDir, "CACHE_DIR")
	setString(&c.CacheBackend, fc.CacheBackend, "CACHE_BACKEND")
	setFloat(&c.HTTPTimeoutS, fc.HTTPTimeoutS, "HTTP_TIMEOUT_S")
	setInt(&c.HTTPRetries, fc.HTTPRetries, "HTTP_RETRIES")
	setFloat(&c.HTTPBackoffBaseS, fc.HTTPBackoffBaseS, "HTTP_BACKOFF_BASE_S")
	setInt(&c.Concurrency, fc.Concurrency, "CONCURRENCY")
	setString(&c.OutputDir, fc.OutputDir, "OUTPUT_DIR")
	setInt(&c.StatcastWindowDays, fc.StatcastWindowDays, "STATCAST_WINDOW_DAYS")
	setString(&c.CloserPolicy, fc.CloserPolicy, "CLOSER_POLICY")

	if fc.ForceRefresh != nil && !envSet("FORCE_REFRESH") {
		c.ForceRefresh = *fc.ForceRefresh
	}
	if fc.RunDeadline != nil && !envSet("RUN_DEADLINE") {
		d, err := time.ParseDuration(*fc.RunDeadline)
		if err != nil {
			return fmt.Errorf("%w: run_deadline: %v", ErrInvalid, err)
		}
		c.RunDeadline = d
	}
	if len(fc.CacheTTLs) > 0 && !envSet("CACHE_TTLS") {
		kinds := make([]string, 0, len(fc.CacheTTLs))
		for kind := range fc.CacheTTLs {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		pairs := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			pairs = append(pairs, kind+":"+fc.CacheTTLs[kind])
		}
		c.CacheTTLs = strings.Join(pairs, ",")
	}
	if fc.SplitCodes != nil {
		if fc.SplitCodes.Left != "" && !envSet("SPLIT_CODE_LEFT") {
			c.SplitCodeLeft = fc.SplitCodes.Left
		}
		if fc.SplitCodes.Right != "" && !envSet("SPLIT_CODE_RIGHT") {
			c.SplitCodeRight = fc.SplitCodes.Right
		}
	}
	return nil
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

func setString(dst *string, v *string, env string) {
	if v != nil && !envSet(env) {
		*dst = *v
	}
}

func setInt(dst *int, v *int, env string) {
	if v != nil && !envSet(env) {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64, env string) {
	if v != nil && !envSet(env) {
		*dst = *v
	}
}
