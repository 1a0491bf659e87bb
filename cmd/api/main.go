package main

import (
	"context"
	"time"

	"chirp-dm/config"
	"chirp-dm/internal/handler"
	"chirp-dm/internal/redis"
	"chirp-dm/internal/repository"
	"chirp-dm/internal/server"
	"chirp-dm/internal/services"
	"chirp-dm/internal/storage"
	"chirp-dm/internal/websocket"
	"chirp-dm/pkg/database"
	"chirp-dm/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	appLogger := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		appLogger.Logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		appLogger.Logger.Fatal("schema migration failed", zap.Error(err))
	}

	// Redis backs only best-effort features, so an outage at boot is logged
	// and the process keeps going.
	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redis.Ping(ctx, redisClient); err != nil {
		appLogger.Warnf("redis unavailable, rate limits and last-seen are degraded: %v", err)
	}

	presence := redis.NewPresenceStore(redisClient, time.Duration(cfg.PresenceTTLHour)*time.Hour)
	if err := presence.Reset(ctx); err != nil {
		appLogger.Warnf("reset presence set: %v", err)
	}
	limiter := redis.NewRateLimiter(redisClient, redis.RateLimitConfig{
		MessageLimit:  cfg.MessageRate,
		MessageWindow: time.Minute,
	})
	publisher := redis.NewPublisher(redisClient)

	authService := services.NewAuthService(cfg)
	messaging := services.NewMessagingService(
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		repository.NewUserRepository(db),
		appLogger,
	)

	hub := websocket.NewHub(messaging, websocket.HubOptions{
		Presence:  presence,
		Publisher: publisher,
		Limiter:   limiter,
	}, appLogger)
	messaging.SetNotifier(hub)
	go hub.Run(ctx)

	handlers := &server.Handlers{
		Conversation: handler.NewConversationHandler(messaging, hub),
		Message:      handler.NewMessageHandler(messaging),
		Presence:     handler.NewPresenceHandler(hub, presence, appLogger),
		WebSocket:    websocket.NewHandler(authService, hub),
	}

	if cfg.S3Bucket != "" {
		presigner, err := storage.NewPresigner(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			PresignTTL: time.Duration(cfg.S3PresignMin) * time.Minute,
		})
		if err != nil {
			appLogger.Logger.Fatal("s3 presigner setup failed", zap.Error(err))
		}
		handlers.Attachment = handler.NewAttachmentHandler(services.NewAttachmentService(presigner))
	} else {
		appLogger.Infof("S3_BUCKET not set, attachment uploads disabled")
	}

	srv := server.New(cfg, appLogger)
	srv.SetupRoutes(handlers, server.Dependencies{
		Identity: authService,
		Limiter:  limiter,
		Health: map[string]server.HealthCheck{
			"postgres": func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
			"redis":    func(ctx context.Context) error { return redis.Ping(ctx, redisClient) },
		},
	})
	srv.OnShutdown(hub.Stop)

	if err := srv.Start(); err != nil {
		appLogger.Errorf("server shutdown: %v", err)
	}
}
