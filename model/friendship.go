package model

import (
	"time"

	"gorm.io/gorm"
)

// Friendship statuses. "requested" is directional: ProfileOne is the
// requester and only ProfileTwo may accept. "friends" is symmetric.
// "blocked" records ProfileOne as the blocker.
const (
	FriendshipRequested = "requested"
	FriendshipFriends   = "friends"
	FriendshipBlocked   = "blocked"
)

// Friendship is a directed relationship edge between two profiles.
// PairLoID/PairHiID hold the pair normalized (lo < hi) under a unique
// index, so the database itself enforces "at most one active edge per
// unordered pair" and concurrent inserts for the same pair cannot both
// commit.
type Friendship struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileOneID int64     `gorm:"index:idx_friendship_one;not null" json:"profile_one_id"`
	ProfileTwoID int64     `gorm:"index:idx_friendship_two;not null" json:"profile_two_id"`
	PairLoID     int64     `gorm:"uniqueIndex:uniq_friendship_pair;not null" json:"-"`
	PairHiID     int64     `gorm:"uniqueIndex:uniq_friendship_pair;not null" json:"-"`
	Status       string    `gorm:"size:16;not null;default:'requested'" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate fills the normalized pair columns from the directed endpoints.
func (f *Friendship) BeforeCreate(*gorm.DB) error {
	f.PairLoID, f.PairHiID = f.ProfileOneID, f.ProfileTwoID
	if f.PairLoID > f.PairHiID {
		f.PairLoID, f.PairHiID = f.PairHiID, f.PairLoID
	}
	return nil
}
