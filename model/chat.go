package model

import "time"

// ChatMessage is one persisted group chat message. Rows are append-only and
// never mutated; retention is handled outside this service.
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID   int64     `gorm:"index:idx_chat_group_time;not null" json:"group_id"`
	ProfileID int64     `gorm:"not null" json:"profile_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_chat_group_time" json:"created_at"`
}
