package logger

import (
	"log/slog"
	"strings"

	"github.com/shuldan/eventbus/pkg/errors"
)

const (
	levelTrace    = slog.LevelDebug - 4
	levelCritical = slog.LevelError + 4
)

var newLoggerCode = errors.WithPrefix("LOGGER")

var ErrUnknownLevel = newLoggerCode().New("unknown log level {{.level}}")

func getLevelName(level slog.Level) string {
	switch level {
	case levelTrace:
		return "TRACE"
	case levelCritical:
		return "CRITICAL"
	}
	return level.String()
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return levelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical", "fatal":
		return levelCritical, nil
	}
	return slog.LevelInfo, ErrUnknownLevel.WithDetail("level", s)
}
