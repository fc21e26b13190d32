package handler

import (
	"context"

	"web3-radar/internal/worker/detector"
	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/queue"

	"go.uber.org/zap"
)

// Evaluator 规则评估
type Evaluator interface {
	Evaluate(ctx context.Context, eventID string) (*detector.Outcome, error)
}

// EvaluateHandler 消费 evaluate_rules
type EvaluateHandler struct {
	tl     *zap.Logger
	engine Evaluator
}

func NewEvaluateHandler(logger *zap.Logger, engine Evaluator) *EvaluateHandler {
	return &EvaluateHandler{tl: logger, engine: engine}
}

func (h *EvaluateHandler) Handle(ctx context.Context, job queue.Job) error {
	var payload model.EvaluateRulesPayload
	if err := job.Decode(&payload); err != nil {
		h.tl.Error("drop malformed evaluate_rules job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	if payload.EventID == "" {
		h.tl.Warn("drop evaluate_rules job without event_id", zap.String("job_id", job.ID))
		return nil
	}

	out, err := h.engine.Evaluate(ctx, payload.EventID)
	if err != nil {
		h.tl.Warn("evaluate rules failed",
			zap.String("event_id", payload.EventID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))
		return err
	}
	if out.Skipped() {
		h.tl.Debug("evaluation skipped", zap.String("event_id", payload.EventID), zap.String("reason", out.SkipReason))
		return nil
	}
	h.tl.Debug("evaluation completed",
		zap.String("event_id", payload.EventID),
		zap.Float64("score", out.Score),
		zap.Stringer("tier", out.Tier),
		zap.Int("alerts", out.AlertsCreated))
	return nil
}
