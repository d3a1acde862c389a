package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mousti0113/class-social-media-sub001/internal/config"
	"github.com/mousti0113/class-social-media-sub001/internal/handler"
	"github.com/mousti0113/class-social-media-sub001/internal/limiter"
	"github.com/mousti0113/class-social-media-sub001/internal/middleware"
	"github.com/mousti0113/class-social-media-sub001/internal/repository"
	"github.com/mousti0113/class-social-media-sub001/internal/service"
	"github.com/mousti0113/class-social-media-sub001/internal/ws"
	"github.com/mousti0113/class-social-media-sub001/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Общий пул корзин rate limiting: один на HTTP и realtime-канал
	limiterStore := limiter.NewStore(appLogger)

	// Реестр realtime-подключений
	hub := ws.NewHub(appLogger)

	// Репозитории и сервисы
	repos := repository.NewRepositories(dbPool, rdb, appLogger)
	services := service.NewServices(repos, limiterStore, hub, cfg, appLogger)

	// Конвейер входящих кадров: аутентификация строго раньше rate limiting
	chain := ws.NewChain(appLogger,
		ws.NewAuthInterceptor(services.Auth, appLogger),
		ws.NewRateLimitInterceptor(services.RateLimit, appLogger),
	)

	// Middleware и handlers
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)
	handlers := handler.NewHandlers(services, hub, chain, cfg, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	// Фоновые задачи: вытеснение простаивающих корзин и чистка зеркала presence
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go runBackgroundTasks(cleanupCtx, limiterStore, services.Presence, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func runBackgroundTasks(
	ctx context.Context,
	limiterStore *limiter.Store,
	presence service.PresenceService,
	cfg *config.Config,
	log logger.Logger,
) {
	limiterTicker := time.NewTicker(time.Minute)
	defer limiterTicker.Stop()

	presenceTicker := time.NewTicker(cfg.Presence.CleanupInterval)
	defer presenceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-limiterTicker.C:
			limiterStore.Cleanup()
		case <-presenceTicker.C:
			presence.CleanupInactive(ctx)
		}
	}
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Публичные endpoints: лимит по связке ip+session
		public := v1.Group("/auth")
		{
			public.POST("/login", rateLimitMiddleware.Limit(), handlers.Auth.Login)
			public.POST("/refresh", rateLimitMiddleware.Limit(), handlers.Auth.RefreshToken)
			public.POST("/logout", handlers.Auth.Logout)
		}

		// Защищённые endpoints: аутентификация раньше rate limiting,
		// чтобы лимит считался по пользователю
		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth(), rateLimitMiddleware.Limit())
		{
			messages := protected.Group("/messages")
			{
				messages.POST("", handlers.Message.Send)
				messages.GET("/unread", handlers.Message.UnreadCount)
				messages.POST("/typing", handlers.Message.SetTyping)
				messages.GET("/typing/:username", handlers.Message.GetTyping)
				messages.GET("/:username", handlers.Message.ListConversation)
				messages.POST("/:username/read", handlers.Message.MarkConversationRead)
			}

			posts := protected.Group("/posts")
			{
				posts.POST("", handlers.Post.Create)
				posts.DELETE("/:id", handlers.Post.Delete)
				posts.POST("/:id/like", handlers.Post.Like)
				posts.POST("/:id/comments", handlers.Post.AddComment)
			}

			presence := protected.Group("/presence")
			{
				presence.GET("/online", handlers.Presence.OnlineUsers)
				presence.GET("/sessions", handlers.Presence.ActiveSessions)
				presence.GET("/:username", handlers.Presence.UserStatus)
			}

			notifications := protected.Group("/notifications")
			{
				notifications.GET("", handlers.Notification.ListRecent)
				notifications.GET("/unread", handlers.Notification.UnreadCount)
				notifications.POST("/read", handlers.Notification.MarkAllRead)
			}
		}

		// Admin endpoints: только technical_admin, без общего лимита
		admin := v1.Group("/admin")
		admin.Use(authMiddleware.RequireAuth(), authMiddleware.RequireAdmin())
		{
			admin.POST("/ratelimit/reset", handlers.Admin.ResetRateLimit)
			admin.GET("/ratelimit/tokens", handlers.Admin.RateLimitTokens)
			admin.GET("/ratelimit/stats", handlers.Admin.RateLimitStats)
			admin.POST("/announcements", handlers.Admin.Announce)
			admin.GET("/connections", handlers.Admin.Connections)
		}
	}

	// Realtime-канал: аутентификация внутри протокола (CONNECT-кадр)
	router.GET("/ws", handlers.WebSocket.Handle)

	return router
}
