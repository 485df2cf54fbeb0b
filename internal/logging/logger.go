package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"cloudpico-tag/internal/config"
)

// New returns a colored tint logger for dev builds and a JSON logger
// otherwise. Both tag every record with the app name.
func New(w io.Writer, cfg config.Base, version string, appName string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}

// Discard drops every record. Handy for tests and quiet tools.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
