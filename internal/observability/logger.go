package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the JSON logger used across the service. Records pick up
// trace/span ids from the context when tracing is on.
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler))
}
