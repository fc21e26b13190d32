package handler

import (
	"context"

	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/queue"
	"web3-radar/internal/worker/service"

	"go.uber.org/zap"
)

// PriceFinder 按合约查价格
type PriceFinder interface {
	PriceOf(ctx context.Context, chain, contract string) (float64, bool)
}

// NormalizeHandler 消费外部推送的原始 transfer
type NormalizeHandler struct {
	tl         *zap.Logger
	normalizer *service.Normalizer
	prices     PriceFinder
	producer   queue.Producer
}

func NewNormalizeHandler(logger *zap.Logger, normalizer *service.Normalizer, prices PriceFinder, producer queue.Producer) *NormalizeHandler {
	return &NormalizeHandler{
		tl:         logger,
		normalizer: normalizer,
		prices:     prices,
		producer:   producer,
	}
}

func (h *NormalizeHandler) Handle(ctx context.Context, job queue.Job) error {
	var payload model.NormalizeEventPayload
	if err := job.Decode(&payload); err != nil {
		h.tl.Error("drop malformed normalize_event job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	event, err := h.normalizer.Normalize(payload.Transfer)
	if err != nil {
		h.tl.Warn("invalid transfer rejected", zap.String("tx_hash", payload.Transfer.TxHash), zap.Error(err))
		return nil
	}

	if payload.PriceUsd != nil && *payload.PriceUsd > 0 {
		service.Enrich(event, *payload.PriceUsd)
	} else if h.prices != nil {
		if price, ok := h.prices.PriceOf(ctx, event.Chain, event.TokenContract); ok {
			service.Enrich(event, price)
		}
	}

	inserted, err := h.normalizer.Ingest(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		h.tl.Debug("event already stored, re-enqueue evaluation", zap.String("event_id", event.EventID))
	}
	return h.producer.Enqueue(ctx, model.JOB_EVALUATE_RULES, model.EvaluateRulesPayload{EventID: event.EventID})
}
