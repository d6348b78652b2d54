package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const EnvLogLevel = "NOSTRBOT_LOG_LEVEL"

// LevelTrace sits below debug and is used for per-frame diagnostics.
const LevelTrace = slog.LevelDebug - 4

// levelOff is above every level that is ever logged.
const levelOff = slog.Level(100)

// NewLogger builds a text logger at the given level. An empty level falls
// back to NOSTRBOT_LOG_LEVEL, then info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, ok := ParseLevel(level)
	if !ok {
		lvl, _ = ParseLevel(os.Getenv(EnvLogLevel))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func ParseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return slog.LevelInfo, false
	case "trace":
		return LevelTrace, true
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "disabled", "off", "none":
		return levelOff, true
	default:
		return slog.LevelInfo, false
	}
}
