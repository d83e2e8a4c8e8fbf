package main

import (
	"context"
	"errors"
	"freelynx/backend/internal/api/handler"
	"freelynx/backend/internal/auth"
	"freelynx/backend/internal/chathub"
	"freelynx/backend/internal/config"
	"freelynx/backend/internal/events"
	"freelynx/backend/internal/logging"
	"freelynx/backend/internal/storage"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config, logger *slog.Logger) (*gorm.DB, *redis.Client, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, err
	}

	if err := storage.Migrate(db); err != nil {
		return nil, nil, err
	}

	logger.Info("database and redis connections established, migrations complete")
	return db, rdb, nil
}

func newSink(cfg *config.Config, logger *slog.Logger) events.Sink {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("no kafka brokers configured, message events disabled")
		return events.NopSink{}
	}
	logger.Info("publishing message events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	return events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
}

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("freelynx-chat", cfg.LogLevel)
	logger.Info("starting chat backend", "addr", cfg.HTTPAddr)

	db, rdb, err := setupDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise dependencies", "err", err)
		os.Exit(1)
	}
	s := storage.NewStorageService(db, rdb, logger)

	// Presence is process-scoped: whatever the mirror holds from a previous
	// run is stale.
	if err := s.ClearOnlineUsers(context.Background()); err != nil {
		logger.Warn("failed to reset presence mirror", "err", err)
	}

	sink := newSink(cfg, logger)
	defer sink.Close()

	hub := chathub.NewManagerService(s, sink, logger)
	h := handler.NewHandler(hub, s, auth.NewService(cfg.JWT.Secret, cfg.JWT.TTL), logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(logger), handler.CORS(cfg.CORSOrigins))
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	// Upgraded connections are hijacked and not covered by server.Shutdown.
	if err := hub.Shutdown(ctx); err != nil {
		logger.Warn("websocket connections still open at shutdown", "connections", hub.Connections(), "err", err)
	}
}
