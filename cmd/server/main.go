package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/api"
	"github.com/david/recovery-match/internal/auth"
	"github.com/david/recovery-match/internal/config"
	"github.com/david/recovery-match/internal/db"
	"github.com/david/recovery-match/internal/events"
	"github.com/david/recovery-match/internal/logger"
	"github.com/david/recovery-match/internal/matching"
)

func main() {
	configFile := flag.String("config", "", "config file (default is recovery-match.yaml in current directory)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(viper.New(), *configFile)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		log.Fatalf("creating a logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	var publisher events.Publisher = events.LogPublisher{Logger: logger}
	if cfg.RabbitMQURL != "" {
		mq, err := events.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer mq.Close()
		publisher = mq
		logger.Info("publishing funded events to rabbitmq", zap.String("queue", events.FundedQueue))
	}

	authService, err := auth.NewService(pool, cfg.JWTSecret, logger)
	if err != nil {
		logger.Fatal("failed to init auth", zap.Error(err))
	}

	store := db.NewStore(pool)
	matches := matching.NewService(store, store, publisher, logger)

	srv, err := api.NewServer(store, matches, authService, logger, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		AdminSecret: cfg.AdminSecret,
		JobTimeout:  cfg.JobTimeout,
	})
	if err != nil {
		logger.Fatal("failed to init server", zap.Error(err))
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
