package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// SignalSource 信号来源
type SignalSource string

const (
	SourceRuleEngine    SignalSource = "rule_engine"
	SourceWalletScanner SignalSource = "wallet_scanner"
)

// MarketSignalType 市场信号类型
type MarketSignalType string

const (
	SignalVolumeSpike  MarketSignalType = "VOLUME_SPIKE"
	SignalPriceAnomaly MarketSignalType = "PRICE_ANOMALY"
	SignalTrending     MarketSignalType = "TRENDING"
	SignalDexActivity  MarketSignalType = "DEX_ACTIVITY"
)

// FalsePositiveAudit 误报标记字段
type FalsePositiveAudit struct {
	FalsePositive bool       `gorm:"column:false_positive;default:false" json:"false_positive"`
	MarkedBy      *string    `gorm:"column:marked_by;type:varchar(64)" json:"marked_by,omitempty"`
	MarkedAt      *time.Time `gorm:"column:marked_at" json:"marked_at,omitempty"`
	MarkNote      *string    `gorm:"column:mark_note;type:text" json:"mark_note,omitempty"`
}

// AccumulationSignal 累积信号，append-only
type AccumulationSignal struct {
	ID               int64          `gorm:"column:id;primaryKey;autoIncrement:true" json:"id"`
	CoinID           int64          `gorm:"column:coin_id;not null;index:idx_acc_coin_time,priority:1" json:"coin_id"`
	EventID          *string        `gorm:"column:event_id;type:varchar(191);index" json:"event_id,omitempty"`
	Wallet           *string        `gorm:"column:wallet;type:varchar(128)" json:"wallet,omitempty"`
	Source           SignalSource   `gorm:"column:source;type:varchar(32);not null" json:"source"`
	AmountUnits      float64        `gorm:"column:amount_units" json:"amount_units"`
	AmountUsd        float64        `gorm:"column:amount_usd" json:"amount_usd"`
	SupplyPercentage *float64       `gorm:"column:supply_percentage" json:"supply_percentage,omitempty"`
	LiquidityRatio   *float64       `gorm:"column:liquidity_ratio" json:"liquidity_ratio,omitempty"`
	Score            float64        `gorm:"column:score;not null" json:"score"`
	TriggeredRules   pq.StringArray `gorm:"column:triggered_rules;type:text[]" json:"triggered_rules"`
	Details          datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	FalsePositiveAudit
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_acc_coin_time,priority:2" json:"created_at"`
}

func (*AccumulationSignal) TableName() string {
	return "accumulation_signals"
}

// MarketSignal 告警级别的市场信号
type MarketSignal struct {
	ID         int64            `gorm:"column:id;primaryKey;autoIncrement:true" json:"id"`
	CoinID     int64            `gorm:"column:coin_id;not null;index" json:"coin_id"`
	EventID    *string          `gorm:"column:event_id;type:varchar(191)" json:"event_id,omitempty"`
	SignalType MarketSignalType `gorm:"column:signal_type;type:varchar(32);not null" json:"signal_type"`
	Score      float64          `gorm:"column:score;not null" json:"score"`
	Details    datatypes.JSON   `gorm:"column:details" json:"details,omitempty"`
	FalsePositiveAudit
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (*MarketSignal) TableName() string {
	return "market_signals"
}

// IngestionCursor 每个 (coin, chain) 已处理到的区块
type IngestionCursor struct {
	CoinID    int64     `gorm:"column:coin_id;primaryKey"`
	Chain     string    `gorm:"column:chain;type:varchar(32);primaryKey"`
	LastBlock uint64    `gorm:"column:last_block;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (*IngestionCursor) TableName() string {
	return "ingestion_cursors"
}
