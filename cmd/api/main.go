package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"rechtstreeks/internal/api"
	"rechtstreeks/internal/config"
	"rechtstreeks/internal/logging"
	"rechtstreeks/internal/notify"
	"rechtstreeks/internal/render"
	"rechtstreeks/internal/storage"
	"rechtstreeks/internal/summons"
	appTemporal "rechtstreeks/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.NewFromConfig(cfg, "api")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Fatal("postgres ping", zap.Error(err))
	}

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	dispatcher := &appTemporal.Dispatcher{
		Client:           temporalClient,
		TaskQueue:        cfg.TemporalTaskQueue,
		WorkflowIDPrefix: cfg.WorkflowIDPrefix,
		Timeout:          cfg.GenerationTimeout(),
	}
	svc := summons.NewService(store, dispatcher, render.NewRenderer(cfg.PDFRendererURL), blob, logger.Named("summons"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := notify.NewHub(logger.Named("notify"))
	listener, err := storage.NewSectionListener(cfg.PostgresDSN, logger.Named("listener"))
	if err != nil {
		logger.Fatal("listen for section events", zap.Error(err))
	}
	go func() {
		if err := listener.Run(ctx, hub); err != nil {
			logger.Error("section listener stopped", zap.Error(err))
		}
	}()

	h := api.NewHandler(cfg, store, svc, blob, hub, logger.Named("http"))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
