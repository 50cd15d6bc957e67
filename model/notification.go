package model

import "time"

// Notification types.
const (
	NotifyFriendRequest = "friend_request"
	NotifyGroupInvite   = "group_invite"
	NotifyAuth          = "authentication"
)

// Notification is a profile-scoped message created as a side effect of
// relationship and group operations. Only the read flag is ever mutated.
type Notification struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID int64     `gorm:"index:idx_notification_profile;not null" json:"profile_id"`
	Type      string    `gorm:"size:16;not null" json:"type"`
	Content   string    `gorm:"type:text" json:"content"`
	Read      bool      `gorm:"default:false" json:"read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
