package main

import (
	"context"
	"log"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"rechtstreeks/internal/config"
	"rechtstreeks/internal/logging"
	"rechtstreeks/internal/openai"
	"rechtstreeks/internal/storage"
	"rechtstreeks/internal/summons"
	appTemporal "rechtstreeks/internal/temporal"
)

const reaperGrace = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.NewFromConfig(cfg, "worker")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer store.Close()

	llm := openai.NewHTTPClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	activities := &appTemporal.Activities{
		Store:          store,
		LLM:            llm,
		OpenAIModel:    cfg.OpenAIModel,
		OpenAITimeout:  time.Duration(cfg.OpenAITimeoutSec) * time.Second,
		OpenAIMaxRetry: 3,
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.SectionGenerationWorkflow, workflow.RegisterOptions{Name: appTemporal.SectionGenerationWorkflowName})
	w.RegisterActivity(activities.GenerateSectionTextActivity)
	w.RegisterActivity(activities.CompleteGenerationActivity)
	w.RegisterActivity(activities.FailGenerationActivity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reaper := &summons.Reaper{
		Store:    store,
		Timeout:  cfg.GenerationTimeout(),
		Grace:    reaperGrace,
		Interval: cfg.ReaperInterval(),
		Logger:   logger.Named("reaper"),
	}
	go func() {
		if err := reaper.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("reaper stopped", zap.Error(err))
		}
	}()

	logger.Info("worker running", zap.String("task_queue", cfg.TemporalTaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
}
