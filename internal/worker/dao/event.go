package dao

import (
	"context"
	"time"

	"web3-radar/internal/worker/model"
)

// Baseline 某 token 在时间窗口内的历史统计
type Baseline struct {
	AvgTransferUsd float64
	TransferCount  int64
	AvgSwapUsd     float64
	SwapCount      int64
	LastPrice      float64 // 最近一笔事件的隐含价格，0 表示未知
}

// EventDAO 定义标准化事件数据访问接口
type EventDAO interface {
	// GetByEventID 不存在时返回 ErrNotFound
	GetByEventID(ctx context.Context, eventID string) (*model.NormalizedEvent, error)

	// Create 插入事件，event_id 冲突返回 ErrDuplicateKey
	Create(ctx context.Context, event *model.NormalizedEvent) error

	// BackfillAmountUsd 仅当 amount_usd 为空或 0 时回填
	BackfillAmountUsd(ctx context.Context, eventID string, amountUsd float64) (bool, error)

	// GetBaseline 统计 [since, before) 内的 transfer/swap 均值与最近价格
	GetBaseline(ctx context.Context, chain, contract string, since, before time.Time) (*Baseline, error)

	// CountLargeRecipients [since, until] 内收到大额 transfer 的不同地址数
	CountLargeRecipients(ctx context.Context, chain, contract string, minUsd float64, since, until time.Time) (int, error)

	// SumSwapUsd [since, until] 内 swap 总额
	SumSwapUsd(ctx context.Context, chain, contract string, since, until time.Time) (float64, error)
}
