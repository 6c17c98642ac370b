// Command build-daily-model builds the canonical MLB daily model for one
// date and writes it to <out>/mlb_daily_YYYYMMDD.json.
//
// Usage:
//
//	build-daily-model --date 2025-08-25 --timezone Asia/Tokyo --out models
//	build-daily-model --force-refresh
//	build-daily-model --forget schedule,bullpen
//
// Exit codes: 0 model written (possibly partial), 2 bad arguments or
// configuration, 3 upstream unreachable (an empty model is still written),
// 4 the model could not be written.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mlb_daily/ingestion/internal/app"
	"mlb_daily/ingestion/internal/builder"
	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInvalid     = 2
	exitUnreachable = 3
	exitOutputIO    = 4
)

type options struct {
	date         string
	timezone     string
	out          string
	configFile   string
	forceRefresh bool
	forget       []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build-daily-model:", err)
	}
	os.Exit(exitCode(err))
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "build-daily-model",
		Short: "Build the canonical MLB daily matchup model",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unexpected arguments %q", config.ErrInvalid, args)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts, stdout)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	})

	f := cmd.Flags()
	f.StringVar(&opts.date, "date", "", "Target date YYYY-MM-DD in the user's timezone (default: derived from now and the cutoff hour)")
	f.StringVar(&opts.timezone, "timezone", "", "IANA timezone of the user (default USER_TIMEZONE)")
	f.StringVar(&opts.out, "out", "", "Output directory (default OUTPUT_DIR)")
	f.BoolVar(&opts.forceRefresh, "force-refresh", false, "Treat every cache entry as expired")
	f.StringVar(&opts.configFile, "config", "", "YAML config file (default CONFIG_FILE)")
	f.StringSliceVar(&opts.forget, "forget", nil, "Cache kinds to drop before the run, e.g. schedule,bullpen")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts options, stdout io.Writer) error {
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return err
	}
	applyFlags(cfg, cmd, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogger(cfg)

	for _, kind := range opts.forget {
		if !cache.KnownKind(kind) {
			return fmt.Errorf("%w: unknown cache kind %q (known: %s)", config.ErrInvalid, kind, strings.Join(cache.Kinds(), ", "))
		}
	}

	rt, err := app.New(ctx, cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("%w: %v", builder.ErrOutputIO, err)
	}
	defer rt.Close()

	for _, kind := range opts.forget {
		if err := rt.Store.Forget(ctx, kind); err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("Failed to forget cache kind")
			continue
		}
		log.Info().Str("kind", kind).Msg("Cache kind forgotten")
	}

	res, buildErr := rt.Builder.Build(ctx, cfg.TargetDate, cfg.UserTimezone)
	if res != nil {
		fmt.Fprintln(stdout, res.Path)
	}

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("Failed to write metrics textfile")
		}
	}
	return buildErr
}

// applyFlags overlays explicitly set flags, the highest-precedence source
func applyFlags(cfg *config.Config, cmd *cobra.Command, opts options) {
	f := cmd.Flags()
	if f.Changed("date") {
		cfg.TargetDate = opts.date
	}
	if f.Changed("timezone") {
		cfg.UserTimezone = opts.timezone
	}
	if f.Changed("out") {
		cfg.OutputDir = opts.out
	}
	if f.Changed("force-refresh") {
		cfg.ForceRefresh = opts.forceRefresh
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalid), errors.Is(err, builder.ErrInvalidRequest):
		return exitInvalid
	case errors.Is(err, builder.ErrUpstreamUnreachable):
		return exitUnreachable
	case errors.Is(err, builder.ErrOutputIO):
		return exitOutputIO
	default:
		return exitFailure
	}
}

// setupLogger configures the global zerolog logger on stderr; stdout
// carries only the output path.
func setupLogger(cfg *config.Config) {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
}
