package model

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessorEvent 已验签的支付处理方回调事件，按事件 ID 去重
type ProcessorEvent struct {
	ID              int64             `gorm:"primaryKey" json:"id"`
	EventID         string            `gorm:"size:191;not null;uniqueIndex" json:"event_id"`
	EventType       string            `gorm:"size:100;not null;index" json:"event_type"`
	Source          string            `gorm:"size:50" json:"source"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
	ProcessingError string            `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (ProcessorEvent) TableName() string {
	return "processor_events"
}
