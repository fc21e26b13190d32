package job

import (
	"context"
	"time"

	"web3-radar/internal/worker/config"
	"web3-radar/internal/worker/dao"

	"go.uber.org/zap"
)

const alertCleanupBatch = 1000

// AlertCleanup 定时清理已投递的历史告警，事件和信号不清理
type AlertCleanup struct {
	cfg    config.AlertConfig
	alerts dao.AlertDAO
	tl     *zap.Logger
	now    func() time.Time
}

// NewAlertCleanup 创建告警清理任务
func NewAlertCleanup(cfg config.AlertConfig, alerts dao.AlertDAO, logger *zap.Logger) *AlertCleanup {
	return &AlertCleanup{
		cfg:    cfg,
		alerts: alerts,
		tl:     logger,
		now:    time.Now,
	}
}

// Run 执行清理任务，分批删除直到没有可删的记录
func (j *AlertCleanup) Run(ctx context.Context) error {
	cutoff := j.now().AddDate(0, 0, -j.cfg.RetentionDays)
	j.tl.Info("Deleting delivered alerts older than retention",
		zap.Int("retention_days", j.cfg.RetentionDays),
		zap.String("cutoff_time", cutoff.Format("2006-01-02 15:04:05")))

	var total int64
	for {
		deleted, err := j.alerts.DeleteDeliveredBefore(ctx, cutoff, alertCleanupBatch)
		if err != nil {
			j.tl.Warn("Failed to cleanup delivered alerts",
				zap.Error(err),
				zap.Int64("deleted_rows", total))
			return err
		}
		total += deleted
		if deleted < alertCleanupBatch || ctx.Err() != nil {
			break
		}
	}

	j.tl.Info("Alert cleanup completed successfully", zap.Int64("deleted_rows", total))
	return nil
}
