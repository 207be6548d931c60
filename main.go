package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/HuynhDucPhu2502/Flickr/internal/config"
	"github.com/HuynhDucPhu2502/Flickr/internal/database"
	"github.com/HuynhDucPhu2502/Flickr/internal/handlers"
	"github.com/HuynhDucPhu2502/Flickr/internal/live"
	"github.com/HuynhDucPhu2502/Flickr/internal/logger"
	"github.com/HuynhDucPhu2502/Flickr/internal/middleware"
	"github.com/HuynhDucPhu2502/Flickr/internal/redis"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
	"github.com/HuynhDucPhu2502/Flickr/internal/websocket"
)

func main() {
	// .env is optional; containerized deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg)
	log := logger.L()

	gin.SetMode(cfg.GinMode)

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}

	redisClient, err := redis.Initialize(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	bus := live.NewBus(redisClient)

	storage, err := services.NewStorageService(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize object storage")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := storage.EnsureBucket(ctx); err != nil {
		log.WithError(err).Warn("could not ensure storage bucket; uploads may fail")
	}
	cancel()

	feed := services.NewFeedService(db, cfg.FeedWindow, cfg.FeedLimit)
	swipes := services.NewSwipeEngine(db)
	chat := services.NewChatService(db, bus)
	calls := services.NewCallService(db, bus, cfg.CallStaleAfter)

	hub := websocket.NewHub(chat, calls)
	go hub.Run()

	authHandler := handlers.NewAuthHandler(db, cfg)
	profileHandler := handlers.NewProfileHandler(db, cfg, storage)
	feedHandler := handlers.NewFeedHandler(feed)
	swipeHandler := handlers.NewSwipeHandler(swipes, chat, logger.Component("swipe"))
	chatHandler := handlers.NewChatHandler(chat)
	callHandler := handlers.NewCallHandler(calls, chat, cfg)

	router := setupRoutes(cfg, authHandler, profileHandler, feedHandler, swipeHandler, chatHandler, callHandler, hub)

	log.WithField("port", cfg.Port).Info("server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func setupRoutes(cfg *config.Config, authHandler *handlers.AuthHandler, profileHandler *handlers.ProfileHandler,
	feedHandler *handlers.FeedHandler, swipeHandler *handlers.SwipeHandler,
	chatHandler *handlers.ChatHandler, callHandler *handlers.CallHandler, hub *websocket.Hub) *gin.Engine {

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		authed := v1.Group("")
		authed.Use(middleware.AuthRequired(cfg.JWTSecret))
		{
			me := authed.Group("/me")
			{
				me.GET("", profileHandler.GetMe)
				me.PUT("", profileHandler.UpdateMe)
				me.POST("/username", profileHandler.ClaimUsername)
				me.GET("/photos", profileHandler.ListPhotos)
				me.POST("/photos", profileHandler.UploadPhoto)
				me.DELETE("/photos/:id", profileHandler.DeletePhoto)
			}
			authed.GET("/usernames/check", profileHandler.CheckUsername)
			authed.GET("/profiles/:uid", profileHandler.GetProfile)

			authed.GET("/feed", feedHandler.Candidates)

			swipes := authed.Group("/swipes")
			{
				swipes.POST("/like", swipeHandler.Like)
				swipes.POST("/pass", swipeHandler.Pass)
			}

			threads := authed.Group("/threads")
			{
				threads.GET("", chatHandler.ListThreads)
				threads.GET("/:id/messages", chatHandler.ListMessages)
				threads.POST("/:id/messages", chatHandler.SendMessage)
				threads.POST("/:id/read", chatHandler.MarkRead)

				threads.GET("/:id/call", callHandler.GetSession)
				threads.POST("/:id/call/offer", callHandler.Offer)
				threads.POST("/:id/call/answer", callHandler.Answer)
				threads.POST("/:id/call/candidates", callHandler.AddCandidate)
				threads.GET("/:id/call/candidates", callHandler.ListCandidates)
				threads.POST("/:id/call/end", callHandler.End)
			}

			authed.GET("/calls/ice-servers", callHandler.ICEServers)

			authed.GET("/ws", func(c *gin.Context) {
				websocket.HandleWebSocket(hub, c)
			})
		}
	}

	return router
}
