package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// PrettyHandler renders records as
//
//	15:04:05.000 INFO  message key=value key="two words"
//
// with ANSI colors. Handlers derived via WithAttrs/WithGroup share the writer lock.
type PrettyHandler struct {
	opts   slog.HandlerOptions
	w      io.Writer
	mu     *sync.Mutex
	prefix string
	attrs  []slog.Attr
}

// NewPrettyHandler creates a PrettyHandler writing to w.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled reports whether level is at or above the configured minimum.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle writes a single formatted line.
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.Grow(256)

	sb.WriteString(ansiGray)
	sb.WriteString(r.Time.Format("15:04:05.000"))
	sb.WriteString(ansiReset)
	sb.WriteByte(' ')

	sb.WriteString(levelColor(r.Level))
	sb.WriteString(ansiBold)
	fmt.Fprintf(&sb, "%-5s", r.Level.String())
	sb.WriteString(ansiReset)
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		sb.WriteString(ansiCyan)
		for _, a := range h.attrs {
			sb.WriteByte(' ')
			writeAttr(&sb, "", a)
		}
		r.Attrs(func(a slog.Attr) bool {
			sb.WriteByte(' ')
			writeAttr(&sb, h.prefix, a)
			return true
		})
		sb.WriteString(ansiReset)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// WithAttrs returns a handler that prefixes every record with attrs.
// Attributes are qualified by the group active at the time of the call.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

// WithGroup returns a handler that qualifies subsequent keys with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for i, ga := range a.Value.Group() {
			if i > 0 {
				sb.WriteByte(' ')
			}
			writeAttr(sb, p, ga)
		}
		return
	}

	sb.WriteString(prefix)
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	switch a.Value.Kind() {
	case slog.KindTime:
		sb.WriteString(a.Value.Time().Format(time.RFC3339))
	case slog.KindString:
		writeString(sb, a.Value.String())
	default:
		writeString(sb, fmt.Sprint(a.Value.Any()))
	}
}

func writeString(sb *strings.Builder, s string) {
	if needsQuoting(s) {
		sb.WriteString(strconv.Quote(s))
		return
	}
	sb.WriteString(s)
}

func needsQuoting(s string) bool {
	for _, c := range s {
		if c == ' ' || c == '=' || c == '"' || c < 0x20 {
			return true
		}
	}
	return false
}
