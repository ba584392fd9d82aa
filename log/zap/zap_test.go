package zap

import (
	"log/slog"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHandlerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core))

	l.Debug("dropped")
	l.With("cache", "descriptor").WithGroup("pool").Info("grown", "generation", 2, "max_sets", uint64(512))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Message != "grown" || e.Level != zapcore.InfoLevel {
		t.Errorf("entry = %q at %v", e.Message, e.Level)
	}
	ctx := e.ContextMap()
	if ctx["cache"] != "descriptor" {
		t.Errorf("cache = %v", ctx["cache"])
	}
	if ctx["pool.generation"] != int64(2) {
		t.Errorf("pool.generation = %v (%T)", ctx["pool.generation"], ctx["pool.generation"])
	}
	if ctx["pool.max_sets"] != uint64(512) {
		t.Errorf("pool.max_sets = %v", ctx["pool.max_sets"])
	}
}

func TestZapLevel(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want zapcore.Level
	}{
		{slog.LevelDebug, zapcore.DebugLevel},
		{slog.LevelInfo, zapcore.InfoLevel},
		{slog.LevelWarn, zapcore.WarnLevel},
		{slog.LevelError, zapcore.ErrorLevel},
		{slog.LevelError + 4, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		if got := zapLevel(tt.in); got != tt.want {
			t.Errorf("zapLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHandlerGroupAttr(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Warn("extinct pools", slog.Group("pool", slog.Int("count", 5)))

	ctx := logs.All()[0].ContextMap()
	if ctx["pool.count"] != int64(5) {
		t.Errorf("pool.count = %v", ctx["pool.count"])
	}
}
