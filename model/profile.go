package model

import "time"

// Profile is the public identity acting in friendships, groups and chat.
type Profile struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"uniqueIndex;not null" json:"account_id"`
	FirstName string    `gorm:"size:64" json:"first_name"`
	LastName  string    `gorm:"size:64" json:"last_name"`
	Location  string    `gorm:"size:128" json:"location"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
