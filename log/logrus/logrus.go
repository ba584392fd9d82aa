// Package logrus routes gpucache logging into a logrus.Entry.
package logrus

import (
	"context"
	"log/slog"

	"github.com/sirupsen/logrus"
)

var _ slog.Handler = Handler{}

// Handler is a slog.Handler writing to a logrus.Entry. Groups become dotted
// key prefixes.
type Handler struct {
	E      *logrus.Entry
	prefix string
}

// New returns a slog.Logger backed by l.
func New(l *logrus.Logger) *slog.Logger {
	return slog.New(Handler{E: logrus.NewEntry(l)})
}

func (h Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.E.Logger.IsLevelEnabled(logrusLevel(level))
}

func (h Handler) Handle(_ context.Context, r slog.Record) error {
	f := make(logrus.Fields, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		addField(f, h.prefix, a)
		return true
	})
	h.E.WithFields(f).Log(logrusLevel(r.Level), r.Message)
	return nil
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	f := make(logrus.Fields, len(attrs))
	for _, a := range attrs {
		addField(f, h.prefix, a)
	}
	return Handler{E: h.E.WithFields(f), prefix: h.prefix}
}

func (h Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return Handler{E: h.E, prefix: h.prefix + name + "."}
}

func addField(f logrus.Fields, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			addField(f, p, ga)
		}
		return
	}
	if a.Key != "" {
		f[prefix+a.Key] = v.Any()
	}
}

func logrusLevel(l slog.Level) logrus.Level {
	switch {
	case l >= slog.LevelError:
		return logrus.ErrorLevel
	case l >= slog.LevelWarn:
		return logrus.WarnLevel
	case l >= slog.LevelInfo:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}
