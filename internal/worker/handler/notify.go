package handler

import (
	"context"
	"errors"
	"time"

	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/monitor"
	"web3-radar/internal/worker/queue"

	"go.uber.org/zap"
)

// Notifier 消息发送
type Notifier interface {
	Enabled() bool
	SendWithRetry(ctx context.Context, chatID, text string, maxRetries int) error
}

// NotifyHandler 消费 send_notification，发送结果回写 alert 状态
type NotifyHandler struct {
	tl         *zap.Logger
	alerts     dao.AlertDAO
	notifier   Notifier
	maxRetries int
	now        func() time.Time
}

func NewNotifyHandler(logger *zap.Logger, alerts dao.AlertDAO, notifier Notifier, maxRetries int) *NotifyHandler {
	return &NotifyHandler{
		tl:         logger,
		alerts:     alerts,
		notifier:   notifier,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

func (h *NotifyHandler) Handle(ctx context.Context, job queue.Job) error {
	var payload model.SendNotificationPayload
	if err := job.Decode(&payload); err != nil {
		h.tl.Error("drop malformed send_notification job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	tl := h.tl.With(zap.String("alert_id", payload.AlertID), zap.String("chat_id", payload.ChatID))

	existing, err := h.alerts.GetByAlertID(ctx, payload.AlertID)
	switch {
	case err == nil && existing.Status == model.ALERT_STATUS_SENT:
		tl.Debug("alert already delivered")
		return nil
	case err != nil && !errors.Is(err, dao.ErrNotFound):
		return err
	}

	if h.notifier == nil || !h.notifier.Enabled() {
		monitor.AlertsDispatched.WithLabelValues("disabled").Inc()
		tl.Warn("telegram not configured, alert left pending")
		return nil
	}

	// 重试在 sender 内完成，队列不再重投
	if err := h.notifier.SendWithRetry(ctx, payload.ChatID, payload.Message, h.maxRetries); err != nil {
		monitor.AlertsDispatched.WithLabelValues(model.ALERT_STATUS_FAILED).Inc()
		tl.Error("deliver alert failed", zap.Error(err))
		if markErr := h.alerts.MarkStatus(ctx, payload.AlertID, model.ALERT_STATUS_FAILED, h.now()); markErr != nil {
			tl.Warn("mark alert failed status error", zap.Error(markErr))
		}
		return nil
	}

	monitor.AlertsDispatched.WithLabelValues(model.ALERT_STATUS_SENT).Inc()
	if err := h.alerts.MarkStatus(ctx, payload.AlertID, model.ALERT_STATUS_SENT, h.now()); err != nil {
		tl.Warn("mark alert sent status error", zap.Error(err))
	}
	return nil
}
