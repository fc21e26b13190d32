package inspector

import (
	"context"
	"fmt"
	"time"

	"web3-radar/internal/worker/writer"
	"web3-radar/pkg/elasticsearch"

	"go.uber.org/zap"
)

// LogSink 以 debug 级别输出摘要
type LogSink struct {
	tl *zap.Logger
}

func NewLogSink(tl *zap.Logger) *LogSink {
	return &LogSink{tl: tl}
}

func (l *LogSink) Write(_ context.Context, s *Summary) {
	if ce := l.tl.Check(zap.DebugLevel, "rule evaluation summary"); ce != nil {
		fields := []zap.Field{
			zap.String("event_id", s.EventID),
			zap.String("chain", s.Chain),
			zap.String("token", s.Token),
			zap.Float64("score", s.Score),
			zap.String("tier", s.Tier),
			zap.Strings("triggered", s.Triggered),
			zap.Strings("skips", s.Skips),
			zap.Int64("duration_ms", s.DurationMs),
		}
		for _, r := range s.Rules {
			fields = append(fields, zap.String("rule."+r.Rule, fmt.Sprintf("triggered=%t score=%g reason=%s", r.Triggered, r.Score, r.Reason)))
		}
		ce.Write(fields...)
	}
}

// BulkClient elasticsearch 批量写入
type BulkClient interface {
	BulkWrite(ctx context.Context, operations []elasticsearch.BulkOperation) error
}

// esSummaryWriter 实现 writer.BatchWriter[*Summary]
type esSummaryWriter struct {
	client BulkClient
	index  string
}

func (w *esSummaryWriter) BWrite(ctx context.Context, batch []*Summary) error {
	operations := make([]elasticsearch.BulkOperation, 0, len(batch))
	for _, s := range batch {
		operations = append(operations, elasticsearch.BulkOperation{
			Action:   "index",
			Index:    w.index,
			ID:       fmt.Sprintf("%s_%d", s.EventID, s.StartedAt.UnixNano()),
			Document: summaryDoc(s),
		})
	}
	return w.client.BulkWrite(ctx, operations)
}

func (w *esSummaryWriter) Close() error {
	return nil
}

func summaryDoc(s *Summary) map[string]interface{} {
	rules := make([]map[string]interface{}, 0, len(s.Rules))
	for _, r := range s.Rules {
		rules = append(rules, map[string]interface{}{
			"rule":      r.Rule,
			"triggered": r.Triggered,
			"score":     r.Score,
			"reason":    r.Reason,
			"guarded":   r.Guarded,
			"evidence":  r.Evidence,
		})
	}
	return map[string]interface{}{
		"event_id":    s.EventID,
		"chain":       s.Chain,
		"token":       s.Token,
		"started_at":  s.StartedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms": s.DurationMs,
		"skips":       s.Skips,
		"rules":       rules,
		"snapshot":    s.Snapshot,
		"score":       s.Score,
		"tier":        s.Tier,
		"triggered":   s.Triggered,
	}
}

// ESSink 经 AsyncBatchWriter 批量写入 elasticsearch
type ESSink struct {
	w *writer.AsyncBatchWriter[*Summary]
}

func NewESSink(ctx context.Context, tl *zap.Logger, client BulkClient, index string) *ESSink {
	w := writer.NewAsyncBatchWriter[*Summary](tl, &esSummaryWriter{client: client, index: index}, 200, time.Second, "inspector_es_writer", 1)
	w.Start(ctx)
	return &ESSink{w: w}
}

func (e *ESSink) Write(_ context.Context, s *Summary) {
	e.w.Submit(s)
}

func (e *ESSink) Close() {
	e.w.Close()
}
