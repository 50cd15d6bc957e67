// Package group owns groups and their memberships: create, invite, join,
// leave, kick, update, delete, plus the cached listing/detail views those
// mutations invalidate.
package group

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

// Service wraps the membership store with authorization checks and side
// effects (notifications, cache invalidation, activity log).
type Service struct {
	db       *gorm.DB
	cache    cache.Cache
	notify   *presence.Service
	activity *activity.Service
	logger   *zap.Logger
}

// New creates a group Service.
func New(db *gorm.DB, c cache.Cache, notify *presence.Service, act *activity.Service, logger *zap.Logger) *Service {
	return &Service{db: db, cache: c, notify: notify, activity: act, logger: logger}
}

// JoinResult reports whether Join created a membership or found one.
type JoinResult struct {
	Membership    model.GroupMembership
	AlreadyMember bool
}

// Create makes a group and enrolls the creator as admin, atomically.
// Group names are globally unique (exact match).
func (s *Service) Create(ctx context.Context, creatorID int64, name, groupType, description string) (*model.Group, error) {
	switch groupType {
	case model.GroupPublic, model.GroupPrivate, model.GroupSecret:
	default:
		return nil, errs.E(errs.ErrMalformedInput, "unknown group type %q", groupType)
	}

	g := &model.Group{
		Name:        name,
		Description: description,
		GroupType:   groupType,
		CreatorID:   creatorID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			if isUniqueViolation(err) {
				return errs.E(errs.ErrConflict, "group name already taken")
			}
			return err
		}
		return tx.Create(&model.GroupMembership{
			GroupID:   g.ID,
			ProfileID: creatorID,
			Role:      model.RoleAdmin,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, creatorID, g.ID, "group_created")
	return g, nil
}

// Invite enrolls a profile looked up by username. The inviter must be an
// admin member. Inviting an existing member reports success without change;
// a target with do-not-disturb set refuses the invite.
func (s *Service) Invite(ctx context.Context, inviterID int64, targetUsername string, groupID int64) (*JoinResult, error) {
	g, err := s.get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, inviterID, groupID); err != nil {
		return nil, err
	}

	var target model.Profile
	err = s.db.WithContext(ctx).
		Joins("JOIN accounts ON accounts.id = profiles.account_id").
		Where("accounts.username = ?", targetUsername).
		First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.ErrNotFound, "no such profile %q", targetUsername)
	}
	if err != nil {
		return nil, err
	}

	// Membership first: inviting an existing member is the idempotent
	// success case even when the target has do-not-disturb set.
	var existing model.GroupMembership
	err = s.db.WithContext(ctx).
		Where("group_id = ? AND profile_id = ?", groupID, target.ID).
		First(&existing).Error
	if err == nil {
		return &JoinResult{Membership: existing, AlreadyMember: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	dnd, err := s.notify.DoNotDisturb(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if dnd {
		return nil, errs.E(errs.ErrBlocked, "profile does not accept invites right now")
	}

	res, err := s.enroll(ctx, target.ID, groupID)
	if err != nil {
		return nil, err
	}
	if !res.AlreadyMember {
		s.afterMutation(ctx, inviterID, groupID, "group_invite_sent")
		if _, nerr := s.notify.Notify(ctx, target.ID, model.NotifyGroupInvite,
			fmt.Sprintf("You have been invited to the group %q", g.Name)); nerr != nil {
			s.logger.Warn("group invite notification failed", zap.Error(nerr))
		}
	}
	return res, nil
}

// Join enrolls the profile itself. Idempotent: joining twice reports
// already-member instead of erroring.
func (s *Service) Join(ctx context.Context, profileID, groupID int64) (*JoinResult, error) {
	if _, err := s.get(ctx, groupID); err != nil {
		return nil, err
	}
	res, err := s.enroll(ctx, profileID, groupID)
	if err != nil {
		return nil, err
	}
	if !res.AlreadyMember {
		s.afterMutation(ctx, profileID, groupID, "group_joined")
	}
	return res, nil
}

// enroll inserts a user-role membership, treating a duplicate as
// already-member. The unique (profile, group) key arbitrates concurrent calls.
func (s *Service) enroll(ctx context.Context, profileID, groupID int64) (*JoinResult, error) {
	m := model.GroupMembership{GroupID: groupID, ProfileID: profileID, Role: model.RoleUser}
	err := s.db.WithContext(ctx).Create(&m).Error
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		var existing model.GroupMembership
		if ferr := s.db.WithContext(ctx).
			Where("group_id = ? AND profile_id = ?", groupID, profileID).
			First(&existing).Error; ferr != nil {
			return nil, ferr
		}
		return &JoinResult{Membership: existing, AlreadyMember: true}, nil
	}
	return &JoinResult{Membership: m}, nil
}

// Leave removes the caller's own membership.
func (s *Service) Leave(ctx context.Context, profileID, groupID int64) error {
	res := s.db.WithContext(ctx).
		Where("group_id = ? AND profile_id = ?", groupID, profileID).
		Delete(&model.GroupMembership{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.E(errs.ErrNotFound, "not a member of this group")
	}
	s.afterMutation(ctx, profileID, groupID, "group_left")
	return nil
}

// Kick removes another member. The actor must be an admin member.
func (s *Service) Kick(ctx context.Context, actorID, targetID, groupID int64) error {
	if err := s.requireAdmin(ctx, actorID, groupID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("group_id = ? AND profile_id = ?", groupID, targetID).
		Delete(&model.GroupMembership{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.E(errs.ErrNotFound, "profile is not a member of this group")
	}
	s.afterMutation(ctx, actorID, groupID, "group_member_kicked")
	return nil
}

// Update changes the description and/or type. Creator only. Nil fields are
// left untouched, so a request naming only one of them cannot clobber the
// other.
func (s *Service) Update(ctx context.Context, actorID, groupID int64, description, groupType *string) (*model.Group, error) {
	g, err := s.get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != actorID {
		return nil, errs.E(errs.ErrForbidden, "only the creator may update the group")
	}
	updates := map[string]interface{}{}
	if description != nil {
		updates["description"] = *description
	}
	if groupType != nil {
		switch *groupType {
		case model.GroupPublic, model.GroupPrivate, model.GroupSecret:
			updates["group_type"] = *groupType
		default:
			return nil, errs.E(errs.ErrMalformedInput, "unknown group type %q", *groupType)
		}
	}
	if len(updates) == 0 {
		return g, nil
	}
	if err := s.db.WithContext(ctx).Model(g).Updates(updates).Error; err != nil {
		return nil, err
	}
	s.afterMutation(ctx, actorID, groupID, "group_updated")
	return g, nil
}

// Delete removes the group and all its memberships, atomically. Creator only.
func (s *Service) Delete(ctx context.Context, actorID, groupID int64) error {
	g, err := s.get(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID != actorID {
		return errs.E(errs.ErrForbidden, "only the creator may delete the group")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&model.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Group{}, groupID).Error
	})
	if err != nil {
		return err
	}
	s.afterMutation(ctx, actorID, groupID, "group_deleted")
	return nil
}

// Get returns the group.
func (s *Service) Get(ctx context.Context, groupID int64) (*model.Group, error) {
	return s.get(ctx, groupID)
}

// Members returns all memberships of a group ordered by join time.
func (s *Service) Members(ctx context.Context, groupID int64) ([]model.GroupMembership, error) {
	var members []model.GroupMembership
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at").
		Find(&members).Error
	return members, err
}

// List returns groups visible to the viewer: all public/private groups plus
// the secret groups the viewer belongs to.
func (s *Service) List(ctx context.Context, viewerID int64) ([]model.Group, error) {
	var groups []model.Group
	err := s.db.WithContext(ctx).
		Where("group_type <> ?", model.GroupSecret).
		Or("id IN (?)", s.db.Model(&model.GroupMembership{}).
			Select("group_id").
			Where("profile_id = ?", viewerID)).
		Order("name").
		Find(&groups).Error
	return groups, err
}

// IsMember reports whether the profile belongs to the group.
func (s *Service) IsMember(ctx context.Context, profileID, groupID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.GroupMembership{}).
		Where("group_id = ? AND profile_id = ?", groupID, profileID).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) get(ctx context.Context, groupID int64) (*model.Group, error) {
	var g model.Group
	err := s.db.WithContext(ctx).First(&g, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.E(errs.ErrNotFound, "group not found")
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Service) requireAdmin(ctx context.Context, profileID, groupID int64) error {
	var m model.GroupMembership
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND profile_id = ?", groupID, profileID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.E(errs.ErrForbidden, "not a member of this group")
	}
	if err != nil {
		return err
	}
	if m.Role != model.RoleAdmin {
		return errs.E(errs.ErrForbidden, "admin role required")
	}
	return nil
}

// afterMutation records the activity and invalidates the cached views keyed
// by the group and the actor's listings.
func (s *Service) afterMutation(ctx context.Context, actorID, groupID int64, action string) {
	s.activity.Log(activity.Entry{
		ProfileID: actorID,
		Action:    action,
		Detail:    map[string]int64{"group_id": groupID},
	})

	keys := []string{fmt.Sprintf("group_detail:%d", groupID)}
	var username string
	if err := s.db.WithContext(ctx).Model(&model.Account{}).
		Joins("JOIN profiles ON profiles.account_id = accounts.id").
		Where("profiles.id = ?", actorID).
		Pluck("accounts.username", &username).Error; err == nil && username != "" {
		keys = append(keys, "friends:"+username)
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("group view invalidation failed",
			zap.Int64("group_id", groupID), zap.Error(err))
	}
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
