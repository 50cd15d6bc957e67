// Package ws exposes the realtime chat endpoint: one WebSocket connection
// per (client, room), replaying today's history on connect and fanning live
// messages out through the chat registry.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Danya2kk/diplomTMS/cache"
	"github.com/Danya2kk/diplomTMS/chat"
	"github.com/Danya2kk/diplomTMS/config"
	mw "github.com/Danya2kk/diplomTMS/middleware"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/Danya2kk/diplomTMS/presence"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler is the Gin handler for GET /ws/chat/:room.
type Handler struct {
	db       *gorm.DB
	cache    cache.Cache
	sec      config.SecurityConfig
	chatCfg  config.ChatConfig
	registry *chat.Registry
	store    *chat.Store
	presence *presence.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	db *gorm.DB,
	c cache.Cache,
	sec config.SecurityConfig,
	chatCfg config.ChatConfig,
	registry *chat.Registry,
	store *chat.Store,
	pres *presence.Service,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		db:       db,
		cache:    c,
		sec:      sec,
		chatCfg:  chatCfg,
		registry: registry,
		store:    store,
		presence: pres,
		logger:   logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeChat handles GET /ws/chat/:room?token=<jwt>. The room name is the
// group id; history and persistence are keyed by it.
func (h *Handler) ServeChat(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	// Validate JWT.
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// Validate session cache.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	room := c.Param("room")
	groupID, err := strconv.ParseInt(room, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
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

	// Upgrade to WebSocket.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := chat.NewSession(profile.ID, profile.FirstName, profile.LastName,
		room, conn, h.chatCfg.SendBuf, h.logger)
	sess.TraceID = c.GetString("trace_id")

	if err := h.presence.SetOnline(context.Background(), profile.ID, true); err != nil {
		h.logger.Warn("presence set online failed",
			zap.Int64("profile_id", profile.ID), zap.Error(err))
	}

	// Register first, replay second: a message broadcast during the replay
	// may arrive twice, never zero times.
	h.registry.Join(room, sess)
	h.replayHistory(sess, groupID)

	h.logger.Info("chat session connected",
		zap.Int64("profile_id", profile.ID),
		zap.String("room", room))

	h.readPump(sess, groupID)
}

// replayHistory sends today's messages for the room to this session only.
func (h *Handler) replayHistory(s *chat.Session, groupID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := h.store.ListForDay(ctx, groupID, time.Now())
	if err != nil {
		h.logger.Error("history replay failed",
			zap.Int64("group_id", groupID), zap.Error(err))
		return
	}
	for _, e := range entries {
		s.Send(e.Frame())
	}
}

// readPump reads inbound frames until the connection closes. A malformed or
// unpersistable message is logged and skipped; only transport errors end the
// loop.
func (h *Handler) readPump(s *chat.Session, groupID int64) {
	defer h.handleDisconnect(s)

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("profile_id", s.ProfileID),
					zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()

		var in chat.Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			h.logger.Warn("malformed chat frame",
				zap.Int64("profile_id", s.ProfileID),
				zap.String("room", s.Room))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		msg, err := h.store.Append(ctx, groupID, s.ProfileID, in.Message)
		cancel()
		if err != nil {
			// Persist-before-broadcast: an unsaved message is never fanned out.
			h.logger.Warn("chat message rejected",
				zap.Int64("profile_id", s.ProfileID),
				zap.String("room", s.Room),
				zap.Error(err))
			continue
		}

		h.registry.Broadcast(s.Room, &chat.Frame{
			Message:  msg.Content,
			Username: s.FirstName,
			LastName: s.LastName,
		})
	}
}

// handleDisconnect cleans up after the connection closes.
func (h *Handler) handleDisconnect(s *chat.Session) {
	s.Close()
	h.registry.Leave(s.Room, s)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.SetOnline(ctx, s.ProfileID, false); err != nil {
		h.logger.Warn("presence set offline failed",
			zap.Int64("profile_id", s.ProfileID), zap.Error(err))
	}

	h.logger.Info("chat session disconnected",
		zap.Int64("profile_id", s.ProfileID),
		zap.String("room", s.Room))
}
