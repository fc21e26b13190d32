package model

import "web3-radar/pkg/provider"

const (
	JOB_NORMALIZE_EVENT   = "normalize_event"
	JOB_EVALUATE_RULES    = "evaluate_rules"
	JOB_SEND_NOTIFICATION = "send_notification"
)

// NormalizeEventPayload 外部推送的原始 transfer
type NormalizeEventPayload struct {
	Transfer provider.Transfer `json:"transfer"`
	PriceUsd *float64          `json:"price_usd,omitempty"`
}

// EvaluateRulesPayload 规则评估任务
type EvaluateRulesPayload struct {
	EventID string `json:"event_id"`
}

// SendNotificationPayload 告警投递任务
type SendNotificationPayload struct {
	AlertID string `json:"alert_id"`
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

func (p NormalizeEventPayload) JobKey() string {
	return p.Transfer.TxHash
}

func (p EvaluateRulesPayload) JobKey() string {
	return p.EventID
}

func (p SendNotificationPayload) JobKey() string {
	return p.ChatID
}
