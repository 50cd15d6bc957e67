package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Danya2kk/diplomTMS/activity"
	apirest "github.com/Danya2kk/diplomTMS/api/rest"
	"github.com/Danya2kk/diplomTMS/api/sse"
	apows "github.com/Danya2kk/diplomTMS/api/ws"
	"github.com/Danya2kk/diplomTMS/cache"
	"github.com/Danya2kk/diplomTMS/chat"
	"github.com/Danya2kk/diplomTMS/config"
	dbadapter "github.com/Danya2kk/diplomTMS/db"
	"github.com/Danya2kk/diplomTMS/group"
	mw "github.com/Danya2kk/diplomTMS/middleware"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/Danya2kk/diplomTMS/presence"
	"github.com/Danya2kk/diplomTMS/relation"
	"github.com/Danya2kk/diplomTMS/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// staleOnlineAfter is how long a profile's presence row may sit untouched
// before the sweeper clears a leaked online flag (crashed process, lost
// disconnect).
const staleOnlineAfter = 10 * time.Minute

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Activity log ----
	activitySvc := activity.New(db, logger)
	defer activitySvc.Stop(context.Background())

	// ---- Domain services ----
	presenceSvc := presence.New(db, pubsub, logger)
	relationSvc := relation.New(db, c, presenceSvc, activitySvc, logger)
	groupSvc := group.New(db, c, presenceSvc, activitySvc, logger)

	registry := chat.NewRegistry(logger)
	store := chat.NewStore(db, cfg.Chat.MaxMessageLen)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("presence_sweep", 5*time.Minute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := presenceSvc.SweepStaleOnline(ctx, staleOnlineAfter); err != nil {
			logger.Warn("presence sweep failed", zap.Error(err))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	friendH := apirest.NewFriendshipHandler(db, relationSvc, presenceSvc, c)
	groupH := apirest.NewGroupHandler(db, groupSvc, c)
	noteH := apirest.NewNotificationHandler(db, presenceSvc)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		friendsG := api.Group("/friends")
		friendsG.Use(mw.Auth(cfg.Security, c))
		friendsG.GET("", friendH.ListFriends)
		friendsG.GET("/requests", friendH.ListRequests)
		friendsG.POST("/request", friendH.SendRequest)
		friendsG.POST("/accept/:id", friendH.Accept)
		friendsG.POST("/deny/:id", friendH.Deny)
		friendsG.DELETE("/:id", friendH.Unfriend)
		friendsG.POST("/block/:id", friendH.Block)
		friendsG.POST("/unblock/:id", friendH.Unblock)

		groupsG := api.Group("/groups")
		groupsG.Use(mw.Auth(cfg.Security, c))
		groupsG.POST("", groupH.Create)
		groupsG.GET("", groupH.List)
		groupsG.GET("/:id", groupH.Get)
		groupsG.PUT("/:id", groupH.Update)
		groupsG.DELETE("/:id", groupH.Delete)
		groupsG.POST("/:id/invite", groupH.Invite)
		groupsG.POST("/:id/join", groupH.Join)
		groupsG.POST("/:id/leave", groupH.Leave)
		groupsG.POST("/:id/kick/:profile_id", groupH.Kick)

		notesG := api.Group("")
		notesG.Use(mw.Auth(cfg.Security, c))
		notesG.GET("/notifications", noteH.List)
		notesG.POST("/notifications/:id/read", noteH.MarkRead)
		notesG.GET("/status", noteH.GetStatus)
		notesG.PUT("/status", noteH.SetStatus)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(db, c, cfg.Security, cfg.Chat, registry, store, presenceSvc, logger)
	r.GET("/ws/chat/:room", wsH.ServeChat)

	// ---- SSE ----
	sseH := sse.NewHandler(db, c, cfg.Security, pubsub, logger)
	r.GET("/sse/notifications", sseH.ServeNotifications)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
