package model

import (
	"time"
)

// WebhookEvent 已通过签名校验的 Stripe 事件，只做审计，不做去重
type WebhookEvent struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	ProviderEventID string     `gorm:"size:191;not null;index" json:"provider_event_id"`
	EventType       string     `gorm:"size:100;not null;index" json:"event_type"`
	Payload         string     `gorm:"type:text;not null" json:"-"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
