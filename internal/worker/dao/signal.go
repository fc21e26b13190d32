package dao

import (
	"context"
	"time"

	"web3-radar/internal/worker/model"
)

// SignalKind 信号表
type SignalKind string

const (
	SignalAccumulation SignalKind = "accumulation"
	SignalMarket       SignalKind = "market"
)

// SignalDAO 定义信号数据访问接口，信号只追加，只允许标记误报
type SignalDAO interface {
	CreateAccumulation(ctx context.Context, signal *model.AccumulationSignal) error

	CreateMarket(ctx context.Context, signal *model.MarketSignal) error

	// HasRecentAccumulation since 之后是否已有 amount_usd >= minUsd 的累积信号
	HasRecentAccumulation(ctx context.Context, coinID int64, minUsd float64, since time.Time) (bool, error)

	// ExistsForEvent 该事件是否已生成过累积信号
	ExistsForEvent(ctx context.Context, eventID string) (bool, error)

	// MarkFalsePositive 标记误报，不存在时返回 ErrNotFound
	MarkFalsePositive(ctx context.Context, kind SignalKind, id int64, by, note string) error
}

// CursorDAO 定义 (coin, chain) 拉取进度数据访问接口
type CursorDAO interface {
	// Get 第二个返回值表示是否存在
	Get(ctx context.Context, coinID int64, chain string) (uint64, bool, error)

	// Advance 仅当 block 严格大于已存值时写入，返回是否写入
	Advance(ctx context.Context, coinID int64, chain string, block uint64) (bool, error)
}

// SettingsDAO token 级阈值覆盖
type SettingsDAO interface {
	// GetByCoin 没有覆盖时返回 nil, nil
	GetByCoin(ctx context.Context, coinID int64) (*model.TokenSettings, error)
}

// WatchlistDAO 关注列表（只读）
type WatchlistDAO interface {
	WatchersOf(ctx context.Context, coinID int64) ([]*model.WatchlistEntry, error)
}

// AlertDAO 告警投递记录
type AlertDAO interface {
	Create(ctx context.Context, alert *model.Alert) error

	GetByAlertID(ctx context.Context, alertID string) (*model.Alert, error)

	// MarkStatus 更新投递状态，sent 时写入 sent_at
	MarkStatus(ctx context.Context, alertID, status string, at time.Time) error

	// DeleteDeliveredBefore 删除 before 之前已投递的告警，limit 为单批数量
	DeleteDeliveredBefore(ctx context.Context, before time.Time, limit int) (int64, error)
}
