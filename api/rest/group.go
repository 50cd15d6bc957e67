package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Danya2kk/diplomTMS/cache"
	"github.com/Danya2kk/diplomTMS/group"
	mw "github.com/Danya2kk/diplomTMS/middleware"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const groupViewTTL = 5 * time.Minute

// GroupHandler handles group REST endpoints.
type GroupHandler struct {
	db    *gorm.DB
	svc   *group.Service
	cache cache.Cache
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(db *gorm.DB, svc *group.Service, c cache.Cache) *GroupHandler {
	return &GroupHandler{db: db, svc: svc, cache: c}
}

// groupDetail is the cached detail view: the group plus its member roster.
type groupDetail struct {
	Group   model.Group             `json:"group"`
	Members []model.GroupMembership `json:"members"`
}

// Create handles POST /api/groups.
func (h *GroupHandler) Create(c *gin.Context) {
	p, err := getProfileForAccount(h.db, mw.GetAccountID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	var req struct {
		Name        string `json:"name" binding:"required,min=2,max=64"`
		GroupType   string `json:"group_type" binding:"required"`
		Description string `json:"description" binding:"max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := h.svc.Create(c.Request.Context(), p.ID, req.Name, req.GroupType, req.Description)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": g})
}

// List handles GET /api/groups. Secret groups the viewer does not belong to
// are omitted, so the view cannot be cached across viewers.
func (h *GroupHandler) List(c *gin.Context) {
	p, err := getProfileForAccount(h.db, mw.GetAccountID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	groups, err := h.svc.List(c.Request.Context(), p.ID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// Get handles GET /api/groups/:id. The detail view is cached per group and
// invalidated by every group mutation. Members see secret groups; everyone
// else gets not-found for them.
func (h *GroupHandler) Get(c *gin.Context) {
	p, groupID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	key := fmt.Sprintf("group_detail:%d", groupID)
	var detail groupDetail
	cached, cerr := h.cache.Get(ctx, key)
	if cerr == nil && json.Unmarshal([]byte(cached), &detail) == nil {
		if err := h.authorizeDetail(c, p.ID, &detail); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
		return
	}

	g, err := h.svc.Get(c.Request.Context(), groupID)
	if err != nil {
		writeErr(c, err)
		return
	}
	members, err := h.svc.Members(c.Request.Context(), groupID)
	if err != nil {
		writeErr(c, err)
		return
	}
	detail = groupDetail{Group: *g, Members: members}
	if data, merr := json.Marshal(detail); merr == nil {
		_ = h.cache.Set(ctx, key, string(data), groupViewTTL)
	}
	if err := h.authorizeDetail(c, p.ID, &detail); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// authorizeDetail hides secret groups from non-members. It answers not-found
// rather than forbidden so the group's existence is not revealed.
func (h *GroupHandler) authorizeDetail(c *gin.Context, profileID int64, detail *groupDetail) error {
	if detail.Group.GroupType != model.GroupSecret {
		return nil
	}
	for _, m := range detail.Members {
		if m.ProfileID == profileID {
			return nil
		}
	}
	return errNotFoundGroup
}

// Update handles PUT /api/groups/:id.
func (h *GroupHandler) Update(c *gin.Context) {
	p, groupID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	var req struct {
		Description *string `json:"description" binding:"omitempty,max=512"`
		GroupType   *string `json:"group_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := h.svc.Update(c.Request.Context(), p.ID, groupID, req.Description, req.GroupType)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": g})
}

// Delete handles DELETE /api/groups/:id.
func (h *GroupHandler) Delete(c *gin.Context) {
	p, groupID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), p.ID, groupID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Invite handles POST /api/groups/:id/invite.
func (h *GroupHandler) Invite(c *gin.Context) {
	p, groupID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	var req struct {
		Username string `json:"username" binding:"required,min=2,max=32"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Invite(c.Request.Context(), p.ID, req.Username, groupID)
	if err != nil {
		writeErr(c, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyMember {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"membership": res.Membership, "already_member": res.AlreadyMember})
}

// Join handles POST /api/groups/:id/join.
func (h *GroupHandler) Join(c *gin.Context) {
	p, groupID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	res, err := h.svc.Join(c.Request.Context(), p.ID, groupID)
	if err != nil {
		writeErr(c, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyMember {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"membership": res.Membership, "already_member": res.AlreadyMember})
}

// Leave handles POST /api/groups/:id/leave.
func (h *GroupHandler) Leave(c *gin.Context) {
	p, groupID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	if err := h.svc.Leave(c.Request.Context(), p.ID, groupID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left"})
}

// Kick handles POST /api/groups/:id/kick/:profile_id.
func (h *GroupHandler) Kick(c *gin.Context) {
	p, groupID, err := h.profileAndID(c)
	if err != nil {
		writeErr(c, err)
		return
	}
	targetID, err := strconv.ParseInt(c.Param("profile_id"), 10, 64)
	if err != nil {
		writeErr(c, errInvalidID)
		return
	}
	if err := h.svc.Kick(c.Request.Context(), p.ID, targetID, groupID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "kicked"})
}

func (h *GroupHandler) profileAndID(c *gin.Context) (*model.Profile, int64, error) {
	p, err := getProfileForAccount(h.db, mw.GetAccountID(c))
	if err != nil {
		return nil, 0, err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, 0, errInvalidID
	}
	return p, id, nil
}
