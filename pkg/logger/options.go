package logger

import (
	"io"
	"log/slog"
)

type Option func(*config)

type replaceFunc = func(groups []string, a slog.Attr) slog.Attr

type config struct {
	level       slog.Level
	json        bool
	addSource   bool
	writer      io.Writer
	replaceAttr replaceFunc
	wantColor   bool
}

// WithReplaceAttr installs f, discarding any earlier replacement.
func WithReplaceAttr(f replaceFunc) Option {
	return func(c *config) {
		c.replaceAttr = f
	}
}

func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

func WithJSON() Option {
	return func(c *config) {
		c.json = true
	}
}

func WithText() Option {
	return func(c *config) {
		c.json = false
	}
}

func WithSource() Option {
	return func(c *config) {
		c.addSource = true
	}
}

// WithWriter sets the output; nil discards everything.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w == nil {
			w = io.Discard
		}
		c.writer = w
	}
}

// WithColor colourises text output when the writer is a terminal.
func WithColor() Option {
	return func(c *config) {
		c.wantColor = true
	}
}

// WithLevelNames renames levels in the output. Levels missing from names
// fall back to TRACE/CRITICAL aware defaults.
func WithLevelNames(names map[slog.Leveler]string) Option {
	return func(c *config) {
		c.replaceAttr = chain(c.replaceAttr, renameLevel(func(level slog.Level) string {
			if label, ok := names[level]; ok {
				return label
			}
			return getLevelName(level)
		}))
	}
}

func WithDefaultReplaceAttr() Option {
	return func(c *config) {
		c.replaceAttr = chain(c.replaceAttr, renameLevel(getLevelName))
	}
}

func renameLevel(name func(slog.Level) string) replaceFunc {
	return func(_ []string, a slog.Attr) slog.Attr {
		if a.Key != slog.LevelKey {
			return a
		}
		if level, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, name(level))
		}
		return a
	}
}

// chain runs prev before next. An attribute dropped by prev stays dropped.
func chain(prev, next replaceFunc) replaceFunc {
	if prev == nil {
		return next
	}
	return func(groups []string, a slog.Attr) slog.Attr {
		a = prev(groups, a)
		if a.Equal(slog.Attr{}) {
			return a
		}
		return next(groups, a)
	}
}
