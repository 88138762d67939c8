// Package logging renders slog records as operator-facing console lines:
//
//	[PULSAR] message received bytes=118
//	[HTTP] forward failed status=500
//
// The prefix comes from the "tag" attribute. Untagged warnings and errors get
// [ATTENTION] and [ERREUR]. Remaining attributes are rendered key=value by an
// inner slog.TextHandler.
package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
)

const TagKey = "tag"

const (
	TagPulsar    = "PULSAR"
	TagHTTP      = "HTTP"
	TagNATS      = "NATS"
	TagAttention = "ATTENTION"
	TagError     = "ERREUR"
)

type Handler struct {
	out   io.Writer
	mu    *sync.Mutex
	buf   *bytes.Buffer
	inner slog.Handler
	tag   string
}

func NewHandler(w io.Writer, opts *slog.HandlerOptions) *Handler {
	var level slog.Leveler
	if opts != nil {
		level = opts.Level
	}
	buf := &bytes.Buffer{}
	return &Handler{
		out: w,
		mu:  &sync.Mutex{},
		buf: buf,
		inner: slog.NewTextHandler(buf, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if len(groups) == 0 {
					switch a.Key {
					case slog.TimeKey, slog.LevelKey, slog.MessageKey:
						return slog.Attr{}
					}
				}
				return a
			},
		}),
	}
}

// New returns a logger writing tagged lines to w.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewHandler(w, &slog.HandlerOptions{Level: level}))
}

// Tag returns a child logger whose lines are prefixed with [tag].
func Tag(l *slog.Logger, tag string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(TagKey, tag)
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	tag := h.tag
	rest := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TagKey {
			tag = a.Value.String()
		} else {
			rest = append(rest, a)
		}
		return true
	})
	if tag == "" {
		switch {
		case r.Level >= slog.LevelError:
			tag = TagError
		case r.Level >= slog.LevelWarn:
			tag = TagAttention
		}
	}

	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	nr.AddAttrs(rest...)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Reset()
	if err := h.inner.Handle(ctx, nr); err != nil {
		return err
	}
	attrs := bytes.TrimSpace(h.buf.Bytes())

	var line bytes.Buffer
	if tag != "" {
		line.WriteString("[" + tag + "] ")
	}
	line.WriteString(r.Message)
	if len(attrs) > 0 {
		line.WriteByte(' ')
		line.Write(attrs)
	}
	line.WriteByte('\n')
	_, err := h.out.Write(line.Bytes())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	rest := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Key == TagKey {
			c.tag = a.Value.String()
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) > 0 {
		c.inner = h.inner.WithAttrs(rest)
	}
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	c := *h
	c.inner = h.inner.WithGroup(name)
	return &c
}
