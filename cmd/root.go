package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "convaccel",
	Short: "Fixed-point iteration with linear damping and DIIS acceleration",
	Long: `convaccel drives self-consistent fixed-point iterations x -> F(x) to
convergence using linear damping or DIIS (Pulay) extrapolation, and can
persist, resume, tune, plot and serve those runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		handler, err := newLogHandler(logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = slog.New(handler)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogHandler builds the process-wide log handler. Logs go to stderr so
// command output on stdout stays machine-readable.
func newLogHandler(level, format string) (slog.Handler, error) {
	lvl := parseLevel(level)
	switch format {
	case "json":
		return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}), nil
	case "text":
		return tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.Kitchen}), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (use json or text)", format)
	}
}
