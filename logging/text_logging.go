package logging

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

var globalLevel = &slog.LevelVar{}

// SetLevel changes the level every TextHandler filters at.
func SetLevel(level slog.Level) {
	globalLevel.Set(level)
}

// TextHandler writes compact log lines for terminals. Every line carries an
// instance ID so output from one component can be grepped out of the
// interleaved whole. Loggers adopt an ID with slog.With("instanceID", ...).
type TextHandler struct {
	instanceID string
	attrs      []slog.Attr
	mu         *sync.Mutex // serializes writes to os.Stderr
}

func NewTextHandler() *TextHandler {
	return &TextHandler{
		instanceID: "root",
		mu:         &sync.Mutex{},
	}
}

func (h *TextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= globalLevel.Level()
}

func (h *TextHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = time.Now().AppendFormat(buf, "2006/01/02 15:04:05")
	buf = append(buf, ' ')
	buf = append(buf, r.Level.String()...)
	buf = append(buf, " ["...)
	buf = append(buf, h.instanceID...)
	buf = append(buf, "] "...)
	buf = append(buf, r.Message...)

	for _, a := range h.attrs {
		buf = appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := os.Stderr.Write(buf)
	return err
}

// WithAttrs returns a handler carrying attrs on every line. The instanceID
// attr becomes the line prefix instead of rendering as a key.
func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &TextHandler{
		instanceID: h.instanceID,
		attrs:      slices.Clone(h.attrs),
		mu:         h.mu,
	}
	for _, a := range attrs {
		if a.Key == "instanceID" {
			next.instanceID = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, a)
	}
	return next
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	panic("groups not supported")
}

func appendAttr(buf []byte, a slog.Attr) []byte {
	buf = append(buf, ' ')
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	s := a.Value.String()
	if needsQuoting(s) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

// Quote values a space-delimited grep couldn't keep together.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsFunc(s, func(r rune) bool {
		return r == ' ' || r == '=' || r == '"' || !unicode.IsPrint(r)
	})
}
