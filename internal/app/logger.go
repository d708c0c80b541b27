package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger writing to stdout. Every record carries
// the component (api, worker, ctl) and the environment.
func NewLogger(cfg *Config, component string) *slog.Logger {
	return NewLoggerTo(os.Stdout, cfg, component)
}

// NewLoggerTo is NewLogger with an explicit destination.
func NewLoggerTo(w io.Writer, cfg *Config, component string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	env := "development"
	format := "pretty"
	if cfg != nil {
		opts.Level = cfg.LogLevel()
		env = cfg.AppEnv
		format = cfg.LogFormat
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("component", component), slog.String("env", env))
}
