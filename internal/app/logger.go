package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. JSON output is for aggregated
// environments; anything else gets the human-readable text handler.
// Every record carries the service name so the tracker's two binaries
// are distinguishable in shared log streams.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "quorum"))
}
