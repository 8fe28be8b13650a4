package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"smart-task-manager/internal/cache"
	"smart-task-manager/internal/config"
	"smart-task-manager/internal/database"
	"smart-task-manager/internal/handlers"
	"smart-task-manager/internal/services"
	"smart-task-manager/internal/worker"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var logger *zap.Logger
	var err error
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolConfig := database.DefaultPoolConfig()
	poolConfig.DSN = cfg.GetDatabaseDSN()
	db, err := database.NewDatabasePool(poolConfig)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	logger.Info("database ready")

	redisCache := cache.NewRedisCache(&cache.CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer redisCache.Close()

	if err := redisCache.Health(); err != nil {
		logger.Warn("redis unavailable at startup, continuing degraded", zap.Error(err))
	}

	authService := services.NewAuthService(cfg.Auth)
	taskService := services.NewCachedTaskService(services.NewTaskService(), redisCache)

	jobWorker := worker.NewWorker(worker.WorkerConfig{
		RedisClient: redisCache.Client(),
		Logger:      logger,
		Queues:      cfg.Worker.Queues,
	})
	worker.RegisterDefaultHandlers(jobWorker, db, logger)
	jobWorker.Start(cfg.Worker.Concurrency)
	defer jobWorker.Stop()

	scheduler := worker.NewScheduler(worker.NewJobQueue(redisCache.Client()), db, logger)
	scheduler.Start()
	defer scheduler.Stop()

	router := handlers.NewRouter(cfg, db, redisCache, authService, taskService, logger)

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
