// Package alert 告警投递：分数门槛 + 冷却，落库后投递 send_notification
package alert

import (
	"context"
	"fmt"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao"
	"web3-radar/internal/worker/model"
	"web3-radar/internal/worker/monitor"
	"web3-radar/internal/worker/queue"
	"web3-radar/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Input 单个用户的告警
type Input struct {
	UserID   int64
	CoinID   int64
	ChatID   string
	SignalID *int64
	EventID  *string
	Score    float64
	Message  string
}

// Dispatcher 决定是否告警并创建告警
type Dispatcher interface {
	ShouldSendAlert(ctx context.Context, userID, coinID int64, score float64) bool
	CreateAlert(ctx context.Context, in Input) error
}

type dispatcher struct {
	tl       *zap.Logger
	alerts   dao.AlertDAO
	producer queue.Producer
	cooldown Cooldown
	conf     config.AlertConfig
	now      func() time.Time
}

// NewDispatcher cooldown 为 nil 时只检查分数
func NewDispatcher(tl *zap.Logger, alerts dao.AlertDAO, producer queue.Producer, cooldown Cooldown, conf config.AlertConfig) Dispatcher {
	return &dispatcher{
		tl:       tl,
		alerts:   alerts,
		producer: producer,
		cooldown: cooldown,
		conf:     conf,
		now:      time.Now,
	}
}

func (d *dispatcher) ShouldSendAlert(ctx context.Context, userID, coinID int64, score float64) bool {
	if score < d.conf.MinScore {
		monitor.AlertsDispatched.WithLabelValues("below_min_score").Inc()
		return false
	}
	if d.cooldown == nil || d.conf.Cooldown() <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ok, err := d.cooldown.Acquire(ctx, utils.AlertCooldownKey(userID, coinID), d.conf.Cooldown())
	if err != nil {
		// 冷却存储不可用时放行
		d.tl.Warn("alert cooldown check failed",
			zap.Int64("user_id", userID),
			zap.Int64("coin_id", coinID),
			zap.Error(err))
		return true
	}
	if !ok {
		monitor.AlertsDispatched.WithLabelValues("cooldown").Inc()
	}
	return ok
}

func (d *dispatcher) CreateAlert(ctx context.Context, in Input) error {
	a := &model.Alert{
		AlertID:   uuid.NewString(),
		UserID:    in.UserID,
		CoinID:    in.CoinID,
		SignalID:  in.SignalID,
		EventID:   in.EventID,
		ChatID:    in.ChatID,
		Score:     in.Score,
		Message:   in.Message,
		Status:    model.ALERT_STATUS_PENDING,
		CreatedAt: d.now(),
	}
	if err := d.alerts.Create(ctx, a); err != nil {
		monitor.AlertsDispatched.WithLabelValues("persist_error").Inc()
		return fmt.Errorf("create alert for user %d: %w", in.UserID, err)
	}

	if in.ChatID == "" {
		monitor.AlertsDispatched.WithLabelValues("no_chat").Inc()
		d.tl.Info("alert stored without chat id", zap.String("alert_id", a.AlertID), zap.Int64("user_id", in.UserID))
		return nil
	}

	err := d.producer.Enqueue(ctx, model.JOB_SEND_NOTIFICATION, model.SendNotificationPayload{
		AlertID: a.AlertID,
		ChatID:  in.ChatID,
		Message: in.Message,
	})
	if err != nil {
		monitor.AlertsDispatched.WithLabelValues("enqueue_error").Inc()
		return fmt.Errorf("enqueue notification %s: %w", a.AlertID, err)
	}
	monitor.AlertsDispatched.WithLabelValues("queued").Inc()
	return nil
}
