package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// MaxValueLen is the longest string value written unchanged, in runes.
	MaxValueLen = 256

	// MaxListItems is the number of list elements written before the rest
	// is summarized.
	MaxListItems = 10

	// MaskValue replaces values under sensitive keys.
	MaskValue = "***REDACTED***"
)

// sensitiveKeywords mark attribute keys whose values are never logged.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "api_key", "apikey",
}

// Handler wraps an slog.Handler and bounds or masks attribute values
// before passing records on.
type Handler struct {
	handler slog.Handler
}

// NewHandler creates a Handler wrapping h.
// If h is nil, slog.Default().Handler() is used.
func NewHandler(h slog.Handler) *Handler {
	if h == nil {
		h = slog.Default().Handler()
	}
	return &Handler{handler: h}
}

// Enabled delegates to the underlying handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle rewrites the record's attributes and passes it on.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(rewriteAttr(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

// WithAttrs returns a handler with the rewritten attributes added.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	rewritten := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		rewritten[i] = rewriteAttr(a)
	}
	return &Handler{handler: h.handler.WithAttrs(rewritten)}
}

// WithGroup returns a handler with the given group name.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{handler: h.handler.WithGroup(name)}
}

func rewriteAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		rewritten := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			rewritten[i] = rewriteAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(rewritten...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, truncate(redactURL(a.Value.String())))
	case slog.KindAny:
		if list, ok := a.Value.Any().([]string); ok {
			return slog.String(a.Key, summarizeList(list))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// redactURL hides the password of an absolute URL with user info.
func redactURL(s string) string {
	if !strings.Contains(s, "://") || !strings.Contains(s, "@") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	return u.Redacted()
}

// truncate cuts s to MaxValueLen runes.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxValueLen {
		return s
	}
	runes := []rune(s)
	return fmt.Sprintf("%s...(%d more)", string(runes[:MaxValueLen]), len(runes)-MaxValueLen)
}

// summarizeList renders the first MaxListItems elements and a count of
// the rest.
func summarizeList(list []string) string {
	if len(list) <= MaxListItems {
		return "[" + strings.Join(list, " ") + "]"
	}
	return fmt.Sprintf("[%s ...] (+%d more)", strings.Join(list[:MaxListItems], " "), len(list)-MaxListItems)
}

// NewLogger creates a logger writing to w.
//
// verbose lowers the level from Warn to Debug. jsonFormat selects the JSON
// handler instead of the text handler.
func NewLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if jsonFormat {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewHandler(base))
}
