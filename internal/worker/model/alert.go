package model

import (
	"time"
)

const (
	ALERT_STATUS_PENDING = "pending"
	ALERT_STATUS_SENT    = "sent"
	ALERT_STATUS_FAILED  = "failed"
)

// Alert 待投递的用户告警
type Alert struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement:true" json:"id"`
	AlertID   string     `gorm:"column:alert_id;type:varchar(64);uniqueIndex;not null" json:"alert_id"` // uuid
	UserID    int64      `gorm:"column:user_id;not null;index" json:"user_id"`
	CoinID    int64      `gorm:"column:coin_id;not null" json:"coin_id"`
	SignalID  *int64     `gorm:"column:signal_id" json:"signal_id,omitempty"`
	EventID   *string    `gorm:"column:event_id;type:varchar(191)" json:"event_id,omitempty"`
	ChatID    string     `gorm:"column:chat_id;type:varchar(64)" json:"chat_id"`
	Score     float64    `gorm:"column:score" json:"score"`
	Message   string     `gorm:"column:message;type:text" json:"message"`
	Status    string     `gorm:"column:status;type:varchar(16);not null;default:pending" json:"status"` // pending, sent, failed
	SentAt    *time.Time `gorm:"column:sent_at" json:"sent_at,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (*Alert) TableName() string {
	return "alerts"
}
