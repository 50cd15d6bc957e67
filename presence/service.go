// Package presence tracks transient profile status (online/busy/do-not-disturb)
// and delivers profile-scoped notifications.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Danya2kk/diplomTMS/cache"
	"github.com/Danya2kk/diplomTMS/errs"
	"github.com/Danya2kk/diplomTMS/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service exposes presence state and the notification feed.
type Service struct {
	db     *gorm.DB
	pubsub cache.PubSub
	logger *zap.Logger
}

// New creates a presence Service.
func New(db *gorm.DB, pubsub cache.PubSub, logger *zap.Logger) *Service {
	return &Service{db: db, pubsub: pubsub, logger: logger}
}

// ChannelFor returns the pub/sub channel carrying a profile's notifications.
func ChannelFor(profileID int64) string {
	return fmt.Sprintf("notify:%d", profileID)
}

// SetStatus sets one presence flag. field must be "is_busy" or "do_not_disturb";
// the online flag is owned by the chat connection lifecycle (SetOnline).
func (s *Service) SetStatus(ctx context.Context, profileID int64, field string, value bool) error {
	if field != "is_busy" && field != "do_not_disturb" {
		return errs.E(errs.ErrMalformedInput, "unknown status field %q", field)
	}
	return s.upsert(ctx, profileID, field, value)
}

// SetOnline records whether the profile currently holds a live chat connection.
func (s *Service) SetOnline(ctx context.Context, profileID int64, online bool) error {
	return s.upsert(ctx, profileID, "is_online", online)
}

func (s *Service) upsert(ctx context.Context, profileID int64, column string, value bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var status model.StatusProfile
		err := tx.Where("profile_id = ?", profileID).First(&status).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = model.StatusProfile{ProfileID: profileID}
			if err := tx.Create(&status).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		return tx.Model(&model.StatusProfile{}).
			Where("profile_id = ?", profileID).
			Update(column, value).Error
	})
}

// GetStatus returns the profile's presence row, or nil if the profile has no
// recorded activity yet.
func (s *Service) GetStatus(ctx context.Context, profileID int64) (*model.StatusProfile, error) {
	var status model.StatusProfile
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// IsOnline reports whether the profile has a live chat connection.
func (s *Service) IsOnline(ctx context.Context, profileID int64) bool {
	status, err := s.GetStatus(ctx, profileID)
	return err == nil && status != nil && status.IsOnline
}

// DoNotDisturb reports whether the profile refuses invites.
func (s *Service) DoNotDisturb(ctx context.Context, profileID int64) (bool, error) {
	status, err := s.GetStatus(ctx, profileID)
	if err != nil {
		return false, err
	}
	return status != nil && status.DoNotDisturb, nil
}

// Notify appends a notification for the profile and pushes it to the
// profile's pub/sub channel. The push is best-effort; the row is the record.
func (s *Service) Notify(ctx context.Context, profileID int64, typ, content string) (*model.Notification, error) {
	n := &model.Notification{ProfileID: profileID, Type: typ, Content: content}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	payload, err := json.Marshal(n)
	if err == nil {
		if pubErr := s.pubsub.Publish(ctx, ChannelFor(profileID), string(payload)); pubErr != nil {
			s.logger.Warn("notification push failed",
				zap.Int64("profile_id", profileID),
				zap.Error(pubErr))
		}
	}
	return n, nil
}

// MarkRead flips the read flag. Only the owning profile may do so.
func (s *Service) MarkRead(ctx context.Context, actorID, notificationID int64) error {
	var n model.Notification
	err := s.db.WithContext(ctx).First(&n, notificationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.E(errs.ErrNotFound, "notification not found")
	}
	if err != nil {
		return err
	}
	if n.ProfileID != actorID {
		return errs.E(errs.ErrForbidden, "notification does not belong to you")
	}
	return s.db.WithContext(ctx).Model(&n).Update("read", true).Error
}

// List returns the profile's notifications, newest first.
func (s *Service) List(ctx context.Context, profileID int64) ([]model.Notification, error) {
	var out []model.Notification
	err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// SweepStaleOnline clears online flags whose row has not been touched within
// maxIdle. Run periodically from the scheduler so a crashed connection cannot
// leave a profile online forever.
func (s *Service) SweepStaleOnline(ctx context.Context, maxIdle time.Duration) error {
	res := s.db.WithContext(ctx).
		Model(&model.StatusProfile{}).
		Where("is_online = ? AND updated_at < ?", true, time.Now().Add(-maxIdle)).
		Update("is_online", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("cleared stale online flags", zap.Int64("count", res.RowsAffected))
	}
	return nil
}
