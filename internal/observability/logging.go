package observability

import (
	"log/slog"
	"os"

	"github.com/couchcryptid/lorawan-telemetry-service/internal/config"
)

// NewLogger builds the process-wide slog logger from configuration.
// LOG_FORMAT selects json (default) or text; LOG_LEVEL falls back to info
// on unrecognized values rather than failing startup.
func NewLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
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
