package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEvent records an externally delivered event id so replays become
// no-ops. The unique index on (provider, event_id) makes the insert an atomic
// insert-if-absent under concurrent deliveries.
type WebhookEvent struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	Provider  string    `gorm:"type:varchar(20);not null;uniqueIndex:ux_webhook_events_provider_event,priority:1" json:"provider"`
	EventID   string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_provider_event,priority:2" json:"event_id"`
	EventType string    `gorm:"type:varchar(100);not null" json:"event_type"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
