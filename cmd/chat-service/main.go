package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatcore-backend/internal/database"
	chatHandler "chatcore-backend/internal/handler/http/chat"
	conversationHandler "chatcore-backend/internal/handler/http/conversation"
	storageHandler "chatcore-backend/internal/handler/http/storage"
	userHandler "chatcore-backend/internal/handler/http/user"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/repository"
	"chatcore-backend/internal/repository/blob"
	"chatcore-backend/internal/repository/cockroach"
	"chatcore-backend/internal/repository/memory"
	redisRepo "chatcore-backend/internal/repository/redis"
	"chatcore-backend/internal/router"
	chatService "chatcore-backend/internal/service/chat"
	conversationService "chatcore-backend/internal/service/conversation"
	deliveryService "chatcore-backend/internal/service/delivery"
	storageService "chatcore-backend/internal/service/storage"
	userService "chatcore-backend/internal/service/user"
	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/constants"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
)

// repositories is the persistence set selected by STORE_DRIVER
type repositories struct {
	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	receipts      repository.ReceiptRepository
}

// healthChecker is satisfied by every backing service that can be pinged
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 3. Initialize metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]healthChecker{}

	// 4. Persistence
	var repos repositories
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.NewDB(ctx, cfg.Database, appMetrics)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if cfg.Store.ApplySchema {
			if err := db.ApplySchema(ctx); err != nil {
				logger.Fatal("Failed to apply schema", zap.Error(err))
			}
		}
		db.StartStatsReporter(ctx, appMetrics, 15*time.Second)
		checks["database"] = db

		repos = repositories{
			users:         cockroach.NewUserRepository(db.Pool),
			conversations: cockroach.NewConversationRepository(db.Pool),
			messages:      cockroach.NewMessageRepository(db.Pool),
			receipts:      cockroach.NewReceiptRepository(db.Pool),
		}
		logger.Info("Connected to database",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database))
	case config.StoreDriverMemory:
		store := memory.NewStore()
		repos = repositories{
			users:         memory.NewUserRepository(store),
			conversations: memory.NewConversationRepository(store),
			messages:      memory.NewMessageRepository(store),
			receipts:      memory.NewReceiptRepository(store),
		}
		logger.Warn("Using in-memory store; data is lost on restart")
	}

	// 5. Redis: presence cache and rate limit counters. Failures degrade, never block startup.
	var presence repository.PresenceCache
	var windowCounter middleware.WindowCounter
	if cfg.Redis.Enabled {
		redisClient := database.NewRedisClient(cfg.Redis, appMetrics)
		defer redisClient.Close()

		if err := redisClient.HealthCheck(ctx); err != nil {
			logger.Warn("Redis unavailable at startup, running degraded", zap.Error(err))
		}
		redisClient.StartHealthCheck(ctx, constants.RedisHealthCheckInterval)
		checks["redis"] = redisClient

		presence = redisRepo.NewPresenceRepository(redisClient)
		windowCounter = redisClient
	} else {
		metrics.RecordRedisAvailable(false)
	}

	// 6. Blob store
	var blobs repository.BlobStore
	switch cfg.Store.BlobDriver {
	case config.BlobDriverMinIO:
		minioStore, err := blob.NewMinioStore(ctx, cfg.MinIO)
		if err != nil {
			logger.Fatal("Failed to initialize MinIO", zap.Error(err))
		}
		checks["minio"] = minioStore
		blobs = minioStore
		logger.Info("Connected to MinIO",
			zap.String("endpoint", cfg.MinIO.Endpoint),
			zap.String("bucket", cfg.MinIO.Bucket))
	case config.BlobDriverMemory:
		blobs = blob.NewMemoryStore()
		logger.Warn("Using in-memory blob store; files are lost on restart")
	}

	// 7. Services
	userSvc := userService.NewService(repos.users, presence)
	conversationSvc := conversationService.NewService(repos.conversations, repos.users, repos.messages)
	deliverySvc := deliveryService.NewService(repos.receipts, repos.messages)
	storageSvc := storageService.NewService(blobs, cfg.Server.MaxUploadBytes)
	chatSvc := chatService.NewService(repos.messages, repos.conversations, repos.users, deliverySvc, conversationSvc)

	// 8. Router
	var rateLimiter *middleware.RateLimiter
	if cfg.Server.RateLimitPerMinute > 0 {
		rateLimiter = middleware.NewRateLimiter(windowCounter, cfg.Server.RateLimitPerMinute, time.Minute)
	}

	engine := router.New(router.Handlers{
		User:         userHandler.NewHandler(userSvc),
		Conversation: conversationHandler.NewHandler(conversationSvc, chatSvc, deliverySvc),
		Chat:         chatHandler.NewHandler(chatSvc, deliverySvc),
		Storage:      storageHandler.NewHandler(storageSvc, conversationSvc, chatSvc),
	}, router.Options{
		Metrics:        appMetrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimiter:    rateLimiter,
		Health:         healthHandler(cfg.Server.ServiceName, checks),
	})

	// 9. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Chat service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("blobs", cfg.Store.BlobDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("Server exited")
}

// healthHandler reports liveness plus the state of each backing service.
// Redis being down is reported but never makes the service unhealthy.
func healthHandler(service string, checks map[string]healthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		deps := gin.H{}
		for name, check := range checks {
			if err := check.HealthCheck(c.Request.Context()); err != nil {
				deps[name] = err.Error()
				if name != "redis" {
					status = "unhealthy"
				}
				continue
			}
			deps[name] = "ok"
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":       status,
			"service":      service,
			"dependencies": deps,
			"time":         time.Now().UTC(),
		})
	}
}
