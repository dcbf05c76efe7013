package core

import (
	"context"
	"strconv"

	"golang.org/x/exp/slog"
)

// DebugHandler is a slog.Handler that formats records as single
// "[LEVEL] msg key=value" lines and hands them to a DebugWriter.
// It avoids fmt so it stays small on TinyGo.
type DebugHandler struct {
	write DebugWriter
	level slog.Leveler
	attrs string
	group string
}

// NewDebugHandler creates a handler writing through w. A nil w writes
// through the global debug writer set with SetDebugWriter.
func NewDebugHandler(w DebugWriter, level slog.Leveler) *DebugHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &DebugHandler{write: w, level: level}
}

// NewDebugLogger is shorthand for slog.New(NewDebugHandler(w, level))
func NewDebugLogger(w DebugWriter, level slog.Leveler) *slog.Logger {
	return slog.New(NewDebugHandler(w, level))
}

func (h *DebugHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *DebugHandler) Handle(_ context.Context, r slog.Record) error {
	line := "[" + r.Level.String() + "] " + r.Message + h.attrs
	r.Attrs(func(a slog.Attr) bool {
		line += formatAttr(h.group, a)
		return true
	})

	w := h.write
	if w == nil {
		w = debugPrintln
	}
	w(line)
	return nil
}

func (h *DebugHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	for _, a := range attrs {
		h2.attrs += formatAttr(h.group, a)
	}
	return &h2
}

func (h *DebugHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = h.group + name + "."
	return &h2
}

func formatAttr(group string, a slog.Attr) string {
	v := a.Value.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindInt64:
		s = Itoa(v.Int64())
	case slog.KindUint64:
		s = Itoa(v.Uint64())
	case slog.KindBool:
		s = strconv.FormatBool(v.Bool())
	case slog.KindGroup:
		out := ""
		for _, ga := range v.Group() {
			out += formatAttr(group+a.Key+".", ga)
		}
		return out
	default:
		s = v.String()
	}
	return " " + group + a.Key + "=" + s
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

var nopLogger = slog.New(discardHandler{})

// NopLogger returns a logger that drops everything
func NopLogger() *slog.Logger {
	return nopLogger
}

// LoggerOrNop returns l, or NopLogger when l is nil
func LoggerOrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return nopLogger
	}
	return l
}
