package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rechtstreeks/internal/config"
	"rechtstreeks/internal/events"
	"rechtstreeks/internal/logging"
	"rechtstreeks/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.NewFromConfig(cfg, "event-handler")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer store.Close()

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	intake := &events.DocumentIntake{Store: store, Logger: logger}
	source := events.NewMinioUploadEventSource(blob.Client(), cfg.MinioBucket)

	logger.Info("listening for object-created events", zap.String("bucket", cfg.MinioBucket))
	err = source.Run(ctx, func(parent context.Context, event events.UploadEvent) error {
		handleCtx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()
		return intake.Handle(handleCtx, event)
	})
	if err != nil {
		logger.Fatal("event-handler stopped with error", zap.Error(err))
	}
}
