package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DeviceEvent is an audit row for session lifecycle and trigger activity.
type DeviceEvent struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserId    uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	EventType string         `gorm:"type:varchar(64);index" json:"event_type"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (DeviceEvent) TableName() string {
	return "device_events"
}
