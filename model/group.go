package model

import "time"

// Group visibility types.
const (
	GroupPublic  = "public"
	GroupPrivate = "private"
	GroupSecret  = "secret"
)

// Membership roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Group is a named community with exactly one creator. Each group has a
// chat room keyed by its ID.
type Group struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	GroupType   string    `gorm:"size:10;not null;default:'public'" json:"group_type"`
	CreatorID   int64     `gorm:"not null" json:"creator_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GroupMembership ties a profile to a group with a role. The composite
// primary key makes a duplicate (profile, group) pair impossible.
type GroupMembership struct {
	GroupID   int64     `gorm:"primaryKey" json:"group_id"`
	ProfileID int64     `gorm:"primaryKey;index:idx_profile_group" json:"profile_id"`
	Role      string    `gorm:"size:8;not null;default:'user'" json:"role"`
	JoinedAt  time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
