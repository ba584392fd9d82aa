// Package zap routes gpucache logging into a zap.Logger.
//
//	gpucache.SetLogger(gpuzap.New(zapLogger))
package zap

import (
	"context"
	"log/slog"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ slog.Handler = (*Handler)(nil)

// Handler is a slog.Handler writing to a zap.Logger. Groups become dotted
// key prefixes.
type Handler struct {
	L      *zap.Logger
	fields []zap.Field
	prefix string
}

// NewHandler returns a Handler on l.
func NewHandler(l *zap.Logger) *Handler {
	return &Handler{L: l}
}

// New returns a slog.Logger backed by l.
func New(l *zap.Logger) *slog.Logger {
	return slog.New(NewHandler(l))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.L.Core().Enabled(zapLevel(level))
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ce := h.L.Check(zapLevel(r.Level), r.Message)
	if ce == nil {
		return nil
	}
	fields := slices.Clip(h.fields)
	r.Attrs(func(a slog.Attr) bool {
		fields = zf(fields, h.prefix, a)
		return true
	})
	ce.Write(fields...)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := slices.Clip(h.fields)
	for _, a := range attrs {
		fields = zf(fields, h.prefix, a)
	}
	return &Handler{L: h.L, fields: fields, prefix: h.prefix}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{L: h.L, fields: h.fields, prefix: h.prefix + name + "."}
}

func zf(out []zap.Field, prefix string, a slog.Attr) []zap.Field {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, g := range v.Group() {
			out = zf(out, p, g)
		}
		return out
	}
	if a.Key == "" {
		return out
	}
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		return append(out, zap.String(key, v.String()))
	case slog.KindInt64:
		return append(out, zap.Int64(key, v.Int64()))
	case slog.KindUint64:
		return append(out, zap.Uint64(key, v.Uint64()))
	case slog.KindBool:
		return append(out, zap.Bool(key, v.Bool()))
	case slog.KindDuration:
		return append(out, zap.Duration(key, v.Duration()))
	default:
		return append(out, zap.Any(key, v.Any()))
	}
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
