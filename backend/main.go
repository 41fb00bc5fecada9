package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/amandeep2102/vision-chat/backend/api"
	"github.com/amandeep2102/vision-chat/backend/cache"
	"github.com/amandeep2102/vision-chat/backend/config"
	"github.com/amandeep2102/vision-chat/backend/inference"
	"github.com/amandeep2102/vision-chat/backend/logger"
	"github.com/amandeep2102/vision-chat/backend/processor"
	"github.com/amandeep2102/vision-chat/backend/service"
	"github.com/amandeep2102/vision-chat/backend/worker"
)

func main() {
	if err := runMain(); err != nil {
		slog.Error("server stopped", logger.Err(err))
		os.Exit(1)
	}
}

func runMain() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	pool := worker.NewPool(cfg.InferenceWorkers, cfg.InferenceQueueSize)
	pool.Start()
	defer pool.Stop()

	group, err := setupServices(cfg, pool)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Infof("starting %s (%s backend at %s)", cfg.ModelName, cfg.ModelBackend, cfg.ModelBaseURL)
	return group.Run(ctx)
}

func setupServices(cfg *config.Config, pool *worker.Pool) (service.Group, error) {
	store := cache.NewImageStore(
		cache.WithTTL(cfg.ImageTTL),
		cache.WithSweepInterval(cfg.ImageSweepInterval),
	)
	resolver := processor.NewResolver(store,
		processor.WithFetchTimeout(cfg.ImageFetchTimeout),
		processor.WithMaxImageBytes(cfg.MaxImageBytes),
	)
	normalizer := processor.NewNormalizer(resolver, cfg.MaxImageDimension)

	pipeline, prober, err := newPipeline(cfg)
	if err != nil {
		return nil, err
	}
	invoker := inference.NewInvoker(pipeline, pool, inference.GenerationParams{
		MaxNewTokens: cfg.MaxNewTokens,
		DoSample:     cfg.DoSample,
		Temperature:  cfg.Temperature,
	})

	server, err := api.NewServer(api.ServerConfig{
		Addr:          cfg.HTTPAddr,
		ModelName:     cfg.ModelName,
		MaxImageBytes: cfg.MaxImageBytes,
		Store:         store,
		Normalizer:    normalizer,
		Invoker:       invoker,
		Pool:          pool,
	})
	if err != nil {
		return nil, fmt.Errorf("creating http server: %w", err)
	}

	return service.Group{
		server,
		store,
		inference.NewReadinessProbe(prober, cfg.ModelProbeInterval),
	}, nil
}

type probedPipeline interface {
	inference.Pipeline
	inference.Prober
}

func newPipeline(cfg *config.Config) (inference.Pipeline, inference.Prober, error) {
	// Generation has no deadline; the client must not impose one either.
	httpClient := &http.Client{}

	var p probedPipeline
	switch cfg.ModelBackend {
	case config.BackendOllama:
		p = inference.NewOllamaPipeline(cfg.ModelBaseURL, cfg.ModelPath, httpClient)
	case config.BackendOpenAI:
		p = inference.NewOpenAIPipeline(cfg.ModelBaseURL, cfg.ModelAPIKey, cfg.ModelPath, httpClient)
	default:
		return nil, nil, fmt.Errorf("unknown model backend %q", cfg.ModelBackend)
	}
	return p, p, nil
}
