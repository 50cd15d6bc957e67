package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Danya2kk/diplomTMS/cache"
	mw "github.com/Danya2kk/diplomTMS/middleware"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/Danya2kk/diplomTMS/presence"
	"github.com/Danya2kk/diplomTMS/relation"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const friendsViewTTL = 5 * time.Minute

// FriendshipHandler handles friendship REST endpoints.
type FriendshipHandler struct {
	db       *gorm.DB
	svc      *relation.Service
	presence *presence.Service
	cache    cache.Cache
}

// NewFriendshipHandler creates a new FriendshipHandler.
func NewFriendshipHandler(db *gorm.DB, svc *relation.Service, pres *presence.Service, c cache.Cache) *FriendshipHandler {
	return &FriendshipHandler{db: db, svc: svc, presence: pres, cache: c}
}

// friendView is one row of the friends listing.
type friendView struct {
	ProfileID int64  `json:"profile_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Online    bool   `json:"online"`
}

// ListFriends handles GET /api/friends. The view is cached per username and
// invalidated by every friendship mutation; the online flag is computed per
// request so a cached view never pins stale presence.
func (h *FriendshipHandler) ListFriends(c *gin.Context) {
	p, acc, err := h.profileAndUsername(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	key := "friends:" + acc
	var views []friendView
	if cached, cerr := h.cache.Get(ctx, key); cerr == nil {
		if json.Unmarshal([]byte(cached), &views) == nil {
			h.respondFriends(c, views)
			return
		}
	}

	friends, err := h.svc.ListFriends(c.Request.Context(), p.ID)
	if err != nil {
		writeErr(c, err)
		return
	}
	views = make([]friendView, len(friends))
	for i, f := range friends {
		views[i] = friendView{ProfileID: f.ID, FirstName: f.FirstName, LastName: f.LastName}
	}
	if data, merr := json.Marshal(views); merr == nil {
		_ = h.cache.Set(ctx, key, string(data), friendsViewTTL)
	}
	h.respondFriends(c, views)
}

func (h *FriendshipHandler) respondFriends(c *gin.Context, views []friendView) {
	for i := range views {
		views[i].Online = h.presence.IsOnline(c.Request.Context(), views[i].ProfileID)
	}
	c.JSON(http.StatusOK, gin.H{"friends": views})
}

// ListRequests handles GET /api/friends/requests (incoming, pending).
func (h *FriendshipHandler) ListRequests(c *gin.Context) {
	p, err := h.profile(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	incoming, err := h.svc.ListIncoming(c.Request.Context(), p.ID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": incoming})
}

// SendRequest handles POST /api/friends/request.
func (h *FriendshipHandler) SendRequest(c *gin.Context) {
	p, err := h.profile(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	var req struct {
		TargetProfileID int64 `json:"target_profile_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	edge, err := h.svc.SendRequest(c.Request.Context(), p.ID, req.TargetProfileID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": edge})
}

// Accept handles POST /api/friends/accept/:id.
func (h *FriendshipHandler) Accept(c *gin.Context) {
	p, edgeID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	edge, err := h.svc.Accept(c.Request.Context(), p.ID, edgeID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friendship": edge})
}

// Deny handles POST /api/friends/deny/:id.
func (h *FriendshipHandler) Deny(c *gin.Context) {
	p, edgeID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	if err := h.svc.Deny(c.Request.Context(), p.ID, edgeID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "denied"})
}

// Unfriend handles DELETE /api/friends/:id where :id is the other profile.
func (h *FriendshipHandler) Unfriend(c *gin.Context) {
	p, targetID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	if err := h.svc.Unfriend(c.Request.Context(), p.ID, targetID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// Block handles POST /api/friends/block/:id where :id is the other profile.
func (h *FriendshipHandler) Block(c *gin.Context) {
	p, targetID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	edge, err := h.svc.Block(c.Request.Context(), p.ID, targetID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friendship": edge})
}

// Unblock handles POST /api/friends/unblock/:id where :id is the other profile.
func (h *FriendshipHandler) Unblock(c *gin.Context) {
	p, targetID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	if err := h.svc.Unblock(c.Request.Context(), p.ID, targetID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unblocked"})
}

func (h *FriendshipHandler) profile(c *gin.Context) (*model.Profile, error) {
	p, err := getProfileForAccount(h.db, mw.GetAccountID(c))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (h *FriendshipHandler) profileAndUsername(c *gin.Context) (*model.Profile, string, error) {
	accountID := mw.GetAccountID(c)
	p, err := getProfileForAccount(h.db, accountID)
	if err != nil {
		return nil, "", err
	}
	var username string
	if err := h.db.Model(&model.Account{}).
		Where("id = ?", accountID).
		Pluck("username", &username).Error; err != nil {
		return nil, "", err
	}
	return p, username, nil
}

func (h *FriendshipHandler) profileAndID(c *gin.Context) (*model.Profile, int64, error) {
	p, err := h.profile(c)
	if err != nil {
		return nil, 0, err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, 0, errInvalidID
	}
	return p, id, nil
}
