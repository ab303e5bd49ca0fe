package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"
)

// textHandler writes one line per record: LEVEL message key="value" ...
// Keys inside groups are dotted. Lines are written with a single Write
// shared by all handlers derived from the same root.
type textHandler struct {
	mu          *sync.Mutex
	writer      io.Writer
	attrs       []slog.Attr
	groups      []string
	isColored   bool
	replaceAttr replaceFunc
	level       slog.Level
}

func newTextHandler(writer io.Writer, isColored bool, replaceAttr replaceFunc, level slog.Level) slog.Handler {
	return &textHandler{
		mu:          &sync.Mutex{},
		writer:      writer,
		isColored:   isColored,
		replaceAttr: replaceAttr,
		level:       level,
	}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	levelStr := getLevelName(r.Level)
	if h.replaceAttr != nil {
		levelStr = h.replaceAttr(h.groups, slog.String(slog.LevelKey, levelStr)).Value.String()
	}
	if h.isColored && isTerminal(h.writer) {
		levelStr = colorize(levelStr, r.Level)
	}
	buf.WriteString(levelStr)
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	prefix := h.groupPrefix()
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, prefix, a)
		return true
	})
	for _, a := range h.attrs {
		h.appendAttr(&buf, "", a)
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *textHandler) groupPrefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *textHandler) appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	if h.replaceAttr != nil {
		a = h.replaceAttr(h.groups, a)
	}
	if a.Key == "" || a.Equal(slog.Attr{}) {
		return
	}

	buf.WriteByte(' ')
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(strconv.Quote(a.Value.String()))
}

func (h *textHandler) clone() *textHandler {
	c := *h
	return &c
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := h.groupPrefix()
	c := h.clone()
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return c
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(append(make([]string, 0, len(h.groups)+1), h.groups...), name)
	return c
}

const (
	ansiReset  = "\033[0m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiAlarm  = "\033[41m\033[37m"
)

func colorize(levelStr string, level slog.Level) string {
	var color string
	switch {
	case level == levelCritical:
		color = ansiAlarm
	case level == slog.LevelDebug:
		color = ansiBlue
	case level < slog.LevelInfo:
		color = ansiCyan
	case level < slog.LevelWarn:
		color = ansiGreen
	case level < slog.LevelError:
		color = ansiYellow
	default:
		color = ansiRed
	}
	return color + levelStr + ansiReset
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
