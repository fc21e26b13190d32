package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventType 标准化事件类型
type EventType string

const (
	EventTransfer    EventType = "transfer"
	EventSwap        EventType = "swap"
	EventLPAdd       EventType = "lp_add"
	EventPriceUpdate EventType = "price_update"
)

// ParseEventType 未知类型按 transfer 处理
func ParseEventType(s string) EventType {
	switch EventType(s) {
	case EventSwap, EventLPAdd, EventPriceUpdate:
		return EventType(s)
	default:
		return EventTransfer
	}
}

// NormalizedEvent 标准化后的链上事件，创建后只允许回填 amount_usd
type NormalizedEvent struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement:true" json:"id"`
	EventID       string         `gorm:"column:event_id;type:varchar(191);uniqueIndex;not null" json:"event_id"`
	Provider      string         `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	Chain         string         `gorm:"column:chain;type:varchar(32);not null;index:idx_event_token_time,priority:1" json:"chain"`
	Type          EventType      `gorm:"column:type;type:varchar(16);not null" json:"type"`
	TxHash        string         `gorm:"column:tx_hash;type:varchar(128);not null" json:"tx_hash"`
	Timestamp     time.Time      `gorm:"column:timestamp;not null;index:idx_event_token_time,priority:3" json:"timestamp"`
	BlockNumber   uint64         `gorm:"column:block_number;not null" json:"block_number"`
	TokenContract string         `gorm:"column:token_contract;type:varchar(128);not null;index:idx_event_token_time,priority:2" json:"token_contract"`
	TokenSymbol   string         `gorm:"column:token_symbol;type:varchar(64)" json:"token_symbol"`
	TokenDecimals int            `gorm:"column:token_decimals" json:"token_decimals"`
	FromAddress   string         `gorm:"column:from_address;type:varchar(128)" json:"from_address"`
	ToAddress     string         `gorm:"column:to_address;type:varchar(128)" json:"to_address"`
	Amount        float64        `gorm:"column:amount" json:"amount"`
	AmountUsd     *float64       `gorm:"column:amount_usd" json:"amount_usd,omitempty"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	RawData       datatypes.JSON `gorm:"column:raw_data" json:"raw_data,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (*NormalizedEvent) TableName() string {
	return "normalized_events"
}

// UsdValue amount_usd 为空时返回 0
func (e *NormalizedEvent) UsdValue() float64 {
	if e == nil || e.AmountUsd == nil {
		return 0
	}
	return *e.AmountUsd
}
