package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"promptrelay/internal/api"
	"promptrelay/internal/config"
	"promptrelay/internal/logging"
	"promptrelay/internal/redis"
	"promptrelay/internal/service/ai"
	"promptrelay/internal/service/chat"
	"promptrelay/internal/service/history"
	"promptrelay/internal/storage"
	"promptrelay/internal/worker"
)

func main() {
	// a missing .env is fine, the real environment still applies
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("PROMPTRELAY_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Database)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	var storeOpts []history.Option
	var routerOpts []chat.Option
	rdb, err := redis.NewRedisClient(cfg.Redis)
	switch {
	case errors.Is(err, redis.ErrDisabled):
		logger.Info("redis cache disabled")
	case err != nil:
		logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
	default:
		defer rdb.Close()
		storeOpts = append(storeOpts, history.WithCache(rdb))
		routerOpts = append(routerOpts, chat.WithModelCache(rdb))
	}

	store := history.NewStore(db, logger, storeOpts...)
	store.StartRetentionCleaner(ctx, time.Duration(cfg.BasicConfig.RetentionInterval)*time.Minute, cfg.BasicConfig.RetentionDays)

	registry := ai.NewRegistry(ctx, cfg.Providers, logger)
	if len(registry.Configured()) == 0 {
		logger.Warn("no providers configured; every generation will report not configured")
	}

	dispatcher := worker.NewDispatcher(worker.Config{
		MinWorkers:  cfg.Worker.MinWorkers,
		MaxWorkers:  cfg.Worker.MaxWorkers,
		QueueSize:   cfg.Worker.QueueSize,
		IdleTimeout: time.Duration(cfg.Worker.IdleTimeoutSecs) * time.Second,
	}, logger)
	defer dispatcher.Stop()
	routerOpts = append(routerOpts, chat.WithDispatcher(dispatcher))

	chatRouter := chat.NewRouter(registry, store, logger, routerOpts...)
	handlers := api.NewHandler(chatRouter, store, cfg.BasicConfig.DefaultProvider, logger)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(logger))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.Strings("providers", registry.Configured()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
