package chat

import (
	"context"
	"strings"
	"time"

	"github.com/Danya2kk/diplomTMS/errs"
	"github.com/Danya2kk/diplomTMS/model"
	"gorm.io/gorm"
)

// DefaultMaxMessageLen bounds message content when config does not override it.
const DefaultMaxMessageLen = 2000

// Store persists chat messages and serves the history replayed on connect.
type Store struct {
	db     *gorm.DB
	maxLen int
}

// NewStore creates a Store. maxLen <= 0 selects DefaultMaxMessageLen.
func NewStore(db *gorm.DB, maxLen int) *Store {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLen
	}
	return &Store{db: db, maxLen: maxLen}
}

// Append validates and persists one message. Content is trimmed; empty or
// oversized content is rejected before touching the database.
func (st *Store) Append(ctx context.Context, groupID, profileID int64, content string) (*model.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.E(errs.ErrMalformedInput, "empty message")
	}
	if len(content) > st.maxLen {
		return nil, errs.E(errs.ErrMalformedInput, "message exceeds %d bytes", st.maxLen)
	}
	msg := &model.ChatMessage{
		GroupID:   groupID,
		ProfileID: profileID,
		Content:   content,
	}
	if err := st.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// HistoryEntry is one replayed message joined with its sender's name.
type HistoryEntry struct {
	Content   string    `json:"content"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Frame converts the entry to the wire format.
func (e HistoryEntry) Frame() *Frame {
	return &Frame{Message: e.Content, Username: e.FirstName, LastName: e.LastName}
}

// ListForDay returns the group's messages created on the given calendar day
// (server-local time), oldest first.
func (st *Store) ListForDay(ctx context.Context, groupID int64, day time.Time) ([]HistoryEntry, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var entries []HistoryEntry
	err := st.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Select("chat_messages.content, profiles.first_name, profiles.last_name, chat_messages.created_at").
		Joins("JOIN profiles ON profiles.id = chat_messages.profile_id").
		Where("chat_messages.group_id = ?", groupID).
		Where("chat_messages.created_at >= ? AND chat_messages.created_at < ?", start, end).
		Order("chat_messages.created_at").
		Scan(&entries).Error
	return entries, err
}
