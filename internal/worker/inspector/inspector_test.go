package inspector

import (
	"context"
	"sync"
	"testing"
	"time"

	"web3-radar/pkg/elasticsearch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memorySink struct {
	mu        sync.Mutex
	summaries []*Summary
}

func (m *memorySink) Write(_ context.Context, s *Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
}

func TestNilSessionIsSafe(t *testing.T) {
	var i *Inspector
	s := i.NewSession("e1")
	assert.Nil(t, s)
	s.SetToken("ethereum", "0xt")
	s.RecordRule(RuleRecord{Rule: "large_transfer"})
	s.RecordSkip("stablecoin")
	s.SetSnapshot("k", 1)
	s.Finish(context.Background(), 0, "none", nil)

	assert.Nil(t, New().NewSession("e1"), "no sinks means no session")
}

func TestSessionFinishWritesOnce(t *testing.T) {
	sink := &memorySink{}
	s := New(sink).NewSession("e1")
	require.NotNil(t, s)

	s.SetToken("ethereum", "0xt")
	s.RecordRule(RuleRecord{Rule: "large_transfer", Triggered: true, Score: 20})
	s.RecordRule(RuleRecord{Rule: "dex_swap_spike", Guarded: true, Reason: "missing required input: baseline.avgSwapUsd"})
	s.SetSnapshot("amount_usd", 60000.0)
	s.Finish(context.Background(), 19, "none", []string{"large_transfer"})
	s.Finish(context.Background(), 99, "alert", nil)

	require.Len(t, sink.summaries, 1)
	got := sink.summaries[0]
	assert.Equal(t, "e1", got.EventID)
	assert.Equal(t, 19.0, got.Score)
	assert.Len(t, got.Rules, 2)
	assert.Equal(t, []string{"large_transfer"}, got.Triggered)
	assert.Equal(t, 60000.0, got.Snapshot["amount_usd"])
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	sink.Write(context.Background(), &Summary{EventID: "e1", Rules: []RuleRecord{{Rule: "lp_add", Reason: "not an lp_add event"}}})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "rule evaluation summary", entry.Message)
	assert.Equal(t, "e1", entry.ContextMap()["event_id"])
	assert.Contains(t, entry.ContextMap()["rule.lp_add"], "not an lp_add event")
}

type fakeBulk struct {
	mu  sync.Mutex
	ops []elasticsearch.BulkOperation
}

func (f *fakeBulk) BulkWrite(_ context.Context, ops []elasticsearch.BulkOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, ops...)
	return nil
}

func TestESSink(t *testing.T) {
	bulk := &fakeBulk{}
	sink := NewESSink(context.Background(), zap.NewNop(), bulk, "radar_rule_debug")
	sink.Write(context.Background(), &Summary{EventID: "e1", StartedAt: time.Unix(1, 0), Tier: "candidate", Score: 72})
	sink.Close()

	require.Len(t, bulk.ops, 1)
	op := bulk.ops[0]
	assert.Equal(t, "index", op.Action)
	assert.Equal(t, "radar_rule_debug", op.Index)
	assert.Equal(t, "e1_1000000000", op.ID)
	assert.Equal(t, 72.0, op.Document["score"])
	assert.Equal(t, "candidate", op.Document["tier"])
}
