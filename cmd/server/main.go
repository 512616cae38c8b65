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

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/catalog"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/upload"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "storefront"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	if cfg.Server.Env == "production" && cfg.Auth.JWTSecret == config.DefaultJWTSecret {
		logger.Warn("JWT_SECRET is not set, tokens are signed with the development default")
	}

	// Money leaves the API as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	checks := map[string]api.ReadinessCheck{"database": db.Ping}

	var counter service.StockCounter
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, stock checks use the database only", zap.Error(err))
	} else {
		defer redisClient.Close()
		counter = redisClient
		checks["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	static, err := catalog.LoadStatic()
	if err != nil {
		logger.Fatal("Failed to load static catalog", zap.Error(err))
	}

	images, err := upload.NewStorage(cfg.Upload.Dir, cfg.Upload.URLPrefix, cfg.Upload.MaxBytes)
	if err != nil {
		logger.Fatal("Failed to prepare upload storage", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	builtInAdmin := service.BuiltInAdmin{Email: cfg.Auth.AdminEmail, Password: cfg.Auth.AdminPassword}

	inventoryClient := service.NewInventoryClient(counter, db)
	services := api.Services{
		Auth:     service.NewAuthService(db, tokens, builtInAdmin),
		Products: service.NewProductService(db, static, images, inventoryClient, eventPublisher),
		Users:    service.NewUserService(db),
		Orders:   service.NewOrderService(db, inventoryClient, eventPublisher),
		Stats:    service.NewStatsService(db, db, db),
	}
	stockSyncHandler := service.NewStockSyncHandler(db, db, inventoryClient)

	ctx := context.Background()
	if err := inventoryClient.SyncInventoryToRedis(ctx); err != nil {
		logger.Error("Failed to sync inventory to Redis", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	stockSyncConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	stockSyncWorker := worker.NewStockSyncWorker(stockSyncConsumer, stockSyncHandler)
	go func() {
		if err := stockSyncWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Stock sync worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Upload.MaxBytes
	handler := api.NewHandler(services, checks, images.Dir(), images.Prefix())
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := stockSyncWorker.Stop(); err != nil {
		logger.Error("Failed to stop stock sync worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
