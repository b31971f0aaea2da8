// Package log builds the process logger: tint for local runs, JSON
// elsewhere, both wrapped in ContextHandler.
package log

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

func New(w io.Writer, env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(NewContextHandler(inner))
}
