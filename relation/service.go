// Package relation owns the friendship edge store and its state machine:
//
//	(none) → requested → friends
//	any state → blocked (by either side) → (none) on unblock
//
// Every mutation is transactional so the "at most one active edge per
// unordered pair" invariant holds under concurrent calls.
package relation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Danya2kk/diplomTMS/activity"
	"github.com/Danya2kk/diplomTMS/cache"
	"github.com/Danya2kk/diplomTMS/errs"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/Danya2kk/diplomTMS/presence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the relationship store plus its side effects (notifications,
// cache invalidation, activity log).
type Service struct {
	db       *gorm.DB
	cache    cache.Cache
	notify   *presence.Service
	activity *activity.Service
	logger   *zap.Logger
}

// New creates a relation Service.
func New(db *gorm.DB, c cache.Cache, notify *presence.Service, act *activity.Service, logger *zap.Logger) *Service {
	return &Service{db: db, cache: c, notify: notify, activity: act, logger: logger}
}

// pairCond matches edges between two profiles in either direction.
const pairCond = "(profile_one_id = ? AND profile_two_id = ?) OR (profile_one_id = ? AND profile_two_id = ?)"

// SendRequest creates a requested edge from actor to target.
func (s *Service) SendRequest(ctx context.Context, actorID, targetID int64) (*model.Friendship, error) {
	if actorID == targetID {
		return nil, errs.E(errs.ErrMalformedInput, "cannot send a friend request to yourself")
	}
	if err := s.profileExists(ctx, targetID); err != nil {
		return nil, err
	}

	edge := &model.Friendship{
		ProfileOneID: actorID,
		ProfileTwoID: targetID,
		Status:       model.FriendshipRequested,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var blocked int64
		if err := tx.Model(&model.Friendship{}).
			Where(pairCond, actorID, targetID, targetID, actorID).
			Where("status = ?", model.FriendshipBlocked).
			Count(&blocked).Error; err != nil {
			return err
		}
		if blocked > 0 {
			return errs.E(errs.ErrBlocked, "cannot send a request to this profile")
		}
		var count int64
		if err := tx.Model(&model.Friendship{}).
			Where(pairCond, actorID, targetID, targetID, actorID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errs.E(errs.ErrConflict, "already friends or already requested")
		}
		// The unique pair index is the real arbiter: two requests racing
		// past the count both reach the insert, only one commits.
		if err := tx.Create(edge).Error; err != nil {
			if isUniqueViolation(err) {
				return errs.E(errs.ErrConflict, "already friends or already requested")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, "friend_request_sent", actorID, targetID)
	if _, nerr := s.notify.Notify(ctx, targetID, model.NotifyFriendRequest,
		fmt.Sprintf("You received a friend request from profile %d", actorID)); nerr != nil {
		s.logger.Warn("friend request notification failed", zap.Error(nerr))
	}
	return edge, nil
}

// Accept transitions a requested edge to friends. Only the recipient
// (ProfileTwo) may accept, no matter what state the edge is in.
func (s *Service) Accept(ctx context.Context, actorID, edgeID int64) (*model.Friendship, error) {
	var edge model.Friendship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&edge, edgeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.E(errs.ErrNotFound, "friend request not found")
			}
			return err
		}
		if edge.ProfileTwoID != actorID {
			return errs.E(errs.ErrForbidden, "only the recipient may accept")
		}
		if edge.Status != model.FriendshipRequested {
			return errs.E(errs.ErrInvalidState, "cannot accept: request not pending")
		}
		edge.Status = model.FriendshipFriends
		return tx.Model(&model.Friendship{}).
			Where("id = ?", edge.ID).
			Update("status", model.FriendshipFriends).Error
	})
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, "friend_request_accepted", actorID, edge.ProfileOneID)
	return &edge, nil
}

// Deny deletes a pending request. Either endpoint may deny.
func (s *Service) Deny(ctx context.Context, actorID, edgeID int64) error {
	var other int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var edge model.Friendship
		if err := tx.First(&edge, edgeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.E(errs.ErrNotFound, "friend request not found")
			}
			return err
		}
		if edge.ProfileOneID != actorID && edge.ProfileTwoID != actorID {
			return errs.E(errs.ErrForbidden, "you cannot deny this request")
		}
		if edge.Status != model.FriendshipRequested {
			return errs.E(errs.ErrInvalidState, "cannot deny: request not pending")
		}
		other = edge.ProfileOneID
		if other == actorID {
			other = edge.ProfileTwoID
		}
		return tx.Delete(&edge).Error
	})
	if err != nil {
		return err
	}
	s.afterMutation(ctx, "friend_request_denied", actorID, other)
	return nil
}

// Unfriend deletes the friends edge between actor and target.
func (s *Service) Unfriend(ctx context.Context, actorID, targetID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where(pairCond, actorID, targetID, targetID, actorID).
			Where("status = ?", model.FriendshipFriends).
			Delete(&model.Friendship{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.E(errs.ErrNotFound, "friendship does not exist or already removed")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.afterMutation(ctx, "friend_removed", actorID, targetID)
	return nil
}

// Block replaces whatever edge exists between the pair with a blocked edge
// owned by the actor. Re-blocking an already-blocked pair is a no-op in effect.
func (s *Service) Block(ctx context.Context, actorID, targetID int64) (*model.Friendship, error) {
	if actorID == targetID {
		return nil, errs.E(errs.ErrMalformedInput, "cannot block yourself")
	}
	if err := s.profileExists(ctx, targetID); err != nil {
		return nil, err
	}

	edge := &model.Friendship{
		ProfileOneID: actorID,
		ProfileTwoID: targetID,
		Status:       model.FriendshipBlocked,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(pairCond, actorID, targetID, targetID, actorID).
			Delete(&model.Friendship{}).Error; err != nil {
			return err
		}
		if err := tx.Create(edge).Error; err != nil {
			if isUniqueViolation(err) {
				return errs.E(errs.ErrConflict, "pair already blocked")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, "profile_blocked", actorID, targetID)
	return edge, nil
}

// Unblock removes a blocked edge. Only the blocker (ProfileOne of the
// blocked edge) may unblock; the blocked party gets Forbidden, not a
// silent not-found.
func (s *Service) Unblock(ctx context.Context, actorID, targetID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var edge model.Friendship
		err := tx.Where(pairCond, actorID, targetID, targetID, actorID).
			Where("status = ?", model.FriendshipBlocked).
			First(&edge).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.E(errs.ErrNotFound, "profile is not in your block list")
		}
		if err != nil {
			return err
		}
		if edge.ProfileOneID != actorID {
			return errs.E(errs.ErrForbidden, "only the blocker may unblock")
		}
		return tx.Delete(&edge).Error
	})
	if err != nil {
		return err
	}
	s.afterMutation(ctx, "profile_unblocked", actorID, targetID)
	return nil
}

// FindEdge returns the edge between two profiles in any of the given
// statuses, order-independent. Returns ErrNotFound when no edge matches.
func (s *Service) FindEdge(ctx context.Context, a, b int64, statuses ...string) (*model.Friendship, error) {
	q := s.db.WithContext(ctx).Where(pairCond, a, b, b, a)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var edge model.Friendship
	err := q.First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.ErrNotFound, "no such relationship")
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// ListFriends returns the profiles the given profile is friends with.
// "friends" is symmetric, so both edge directions count.
func (s *Service) ListFriends(ctx context.Context, profileID int64) ([]model.Profile, error) {
	var edges []model.Friendship
	if err := s.db.WithContext(ctx).
		Where("(profile_one_id = ? OR profile_two_id = ?) AND status = ?",
			profileID, profileID, model.FriendshipFriends).
		Find(&edges).Error; err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(edges))
	for _, e := range edges {
		if e.ProfileOneID == profileID {
			ids = append(ids, e.ProfileTwoID)
		} else {
			ids = append(ids, e.ProfileOneID)
		}
	}
	if len(ids) == 0 {
		return []model.Profile{}, nil
	}
	var friends []model.Profile
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&friends).Error
	return friends, err
}

// ListIncoming returns pending requests where the profile is the recipient.
func (s *Service) ListIncoming(ctx context.Context, profileID int64) ([]model.Friendship, error) {
	var edges []model.Friendship
	err := s.db.WithContext(ctx).
		Where("profile_two_id = ? AND status = ?", profileID, model.FriendshipRequested).
		Order("created_at DESC").
		Find(&edges).Error
	return edges, err
}

func (s *Service) profileExists(ctx context.Context, profileID int64) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Profile{}).
		Where("id = ?", profileID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errs.E(errs.ErrNotFound, "profile does not exist")
	}
	return nil
}

// afterMutation records the activity and invalidates the cached friend views
// of both profiles involved.
func (s *Service) afterMutation(ctx context.Context, action string, actorID, otherID int64) {
	s.activity.Log(activity.Entry{
		ProfileID: actorID,
		Action:    action,
		Detail:    map[string]int64{"other_profile_id": otherID},
	})

	var usernames []string
	if err := s.db.WithContext(ctx).Model(&model.Account{}).
		Joins("JOIN profiles ON profiles.account_id = accounts.id").
		Where("profiles.id IN ?", []int64{actorID, otherID}).
		Pluck("accounts.username", &usernames).Error; err != nil {
		s.logger.Warn("friend view invalidation lookup failed", zap.Error(err))
		return
	}
	keys := make([]string, 0, len(usernames))
	for _, u := range usernames {
		keys = append(keys, "friends:"+u)
	}
	if len(keys) > 0 {
		if err := s.cache.Del(ctx, keys...); err != nil {
			s.logger.Warn("friend view invalidation failed", zap.Error(err))
		}
	}
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
