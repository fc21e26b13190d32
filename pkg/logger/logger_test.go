package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerWithTrace(t *testing.T) {
	InitTrace("web3-radar", "test")
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	NewLoggerWithTrace(context.Background(), base).Info("no span")
	ctx, span := StartSpan(context.Background(), "test", "op")
	NewLoggerWithTrace(ctx, base).Info("with span")
	span.End()

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["trace_id"]; ok {
		t.Errorf("trace_id should be absent without span")
	}
	if id, ok := entries[1].ContextMap()["trace_id"]; !ok || id == "" {
		t.Errorf("trace_id missing with span")
	}
}

func TestNewLoggerWithDir(t *testing.T) {
	l := NewLoggerWithDir(t.TempDir(), "unit")
	SetLogLevel("debug")
	l.Debug("debug after level change")
	SetLogLevel("bogus")
	_ = l.Sync()
}
