package model

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog records one relationship or group mutation for auditing.
type ActivityLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID int64          `gorm:"index:idx_activity_profile" json:"profile_id"`
	Action    string         `gorm:"size:32;not null" json:"action"`
	Detail    datatypes.JSON `json:"detail"`
	TraceID   string         `gorm:"size:36" json:"trace_id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
