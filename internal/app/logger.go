package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production always logs JSON;
// elsewhere LOG_FORMAT picks between JSON and a readable text handler.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
}
