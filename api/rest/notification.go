package rest

import (
	"net/http"
	"strconv"

	mw "github.com/Danya2kk/diplomTMS/middleware"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/Danya2kk/diplomTMS/presence"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NotificationHandler handles notification and presence REST endpoints.
type NotificationHandler struct {
	db  *gorm.DB
	svc *presence.Service
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(db *gorm.DB, svc *presence.Service) *NotificationHandler {
	return &NotificationHandler{db: db, svc: svc}
}

// List handles GET /api/notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	p, err := getProfileForAccount(h.db, mw.GetAccountID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	notes, err := h.svc.List(c.Request.Context(), p.ID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

// MarkRead handles POST /api/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	p, err := getProfileForAccount(h.db, mw.GetAccountID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeErr(c, errInvalidID)
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), p.ID, id); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "read"})
}

// GetStatus handles GET /api/status.
func (h *NotificationHandler) GetStatus(c *gin.Context) {
	p, err := getProfileForAccount(h.db, mw.GetAccountID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	st, err := h.svc.GetStatus(c.Request.Context(), p.ID)
	if err != nil {
		writeErr(c, err)
		return
	}
	if st == nil {
		st = &model.StatusProfile{ProfileID: p.ID}
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

// SetStatus handles PUT /api/status. Only the busy and do-not-disturb flags
// are client-settable; the online flag tracks WebSocket connections.
func (h *NotificationHandler) SetStatus(c *gin.Context) {
	p, err := getProfileForAccount(h.db, mw.GetAccountID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	var req struct {
		Field string `json:"field" binding:"required"`
		Value bool   `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SetStatus(c.Request.Context(), p.ID, req.Field, req.Value); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}
