// Package sse streams notifications to browsers over Server-Sent Events.
// Each connected client subscribes to its own pub/sub channel; notification
// rows are persisted independently, so a dropped stream loses nothing.
package sse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Danya2kk/diplomTMS/cache"
	"github.com/Danya2kk/diplomTMS/config"
	mw "github.com/Danya2kk/diplomTMS/middleware"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/Danya2kk/diplomTMS/presence"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const keepAliveInterval = 30 * time.Second

// Handler streams notification events for the authenticated profile.
type Handler struct {
	db     *gorm.DB
	cache  cache.Cache
	sec    config.SecurityConfig
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, ps cache.PubSub, logger *zap.Logger) *Handler {
	return &Handler{db: db, cache: c, sec: sec, pubsub: ps, logger: logger}
}

// ServeNotifications handles GET /sse/notifications?token=<jwt>.
// EventSource cannot set headers, so the token travels as a query parameter
// like the WebSocket endpoint's.
func (h *Handler) ServeNotifications(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	exists, err := h.cache.Exists(ctx, "session:"+tokenStr)
	cancel()
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	var profile model.Profile
	err = h.db.Where("account_id = ?", claims.AccountID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no profile for this account"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	msgs, unsubscribe, err := h.pubsub.Subscribe(c.Request.Context(), presence.ChannelFor(profile.ID))
	if err != nil {
		h.logger.Error("sse subscribe failed",
			zap.Int64("profile_id", profile.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	h.logger.Info("sse stream opened", zap.Int64("profile_id", profile.ID))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return false
			}
			c.SSEvent("notification", msg.Payload)
			return true
		case <-keepAlive.C:
			// Comment line keeps proxies from closing the idle stream.
			_, err := w.Write([]byte(": keep-alive\n\n"))
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.logger.Info("sse stream closed", zap.Int64("profile_id", profile.ID))
}
