package model

import "time"

// StatusProfile is a profile's transient presence state. A profile with no
// recorded activity has no row at all.
type StatusProfile struct {
	ProfileID    int64     `gorm:"primaryKey" json:"profile_id"`
	IsOnline     bool      `gorm:"default:false" json:"is_online"`
	IsBusy       bool      `gorm:"default:false" json:"is_busy"`
	DoNotDisturb bool      `gorm:"default:false" json:"do_not_disturb"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
