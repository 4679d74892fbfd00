package cli

import (
	"io"
	"log/slog"
	"strings"

	"keyrelay/internal/domain"
)

// NewLogger builds the process logger from infra: a JSON or text handler on w
// at the configured level. Unknown levels fall back to info.
func NewLogger(infra domain.InfraConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(infra.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(infra.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
