package db_models

import (
	"gorm.io/datatypes"
)

// WebhookEvent stores every inbound gateway notification exactly as
// received. ExternalEventID is the dedup key; rows are retained forever so
// unprocessed events can be replayed after a crash.
type WebhookEvent struct {
	BaseModel
	ExternalEventID string `gorm:"size:128;uniqueIndex;not null"`
	EventType       string `gorm:"size:64;index;not null"`

	Payload datatypes.JSON `gorm:"type:jsonb;not null"`

	Processed       bool   `gorm:"index;default:false"`
	ProcessingError string `gorm:"size:1024"`

	ReceivedAt  int64 `gorm:"not null"`
	ProcessedAt *int64
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
