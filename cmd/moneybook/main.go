package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"moneybook/internal/amqp"
	"moneybook/internal/cache"
	"moneybook/internal/cli"
	"moneybook/internal/config"
	apphttp "moneybook/internal/http"
	"moneybook/internal/log"
	"moneybook/internal/ports"
	"moneybook/internal/services"
	"moneybook/internal/worker"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	res := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()

	// Events are optional; without a broker the API runs standalone.
	var events ports.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			defer client.Close()
			events = client
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	cacheManager := cache.NewManager(logger)
	var listCache cache.Cache[services.Listing]
	if cfg.ListCacheEnabled() {
		lru := cache.NewLRUCache[services.Listing](cfg.ListCacheSize, cfg.ListCacheTTL)
		cacheManager.Register(lru)
		listCache = lru
	} else if cfg.DataBackend == "postgres" {
		logger.Info("List cache disabled, postgres may be shared with other instances")
	}

	svc := services.NewTransactionService(res.Store, res.Blobs, res.Store, services.Options{
		Events:    events,
		ListCache: listCache,
		Logger:    logger,
	})

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ServeImages:        res.ServeImages,
		Logger:             logger,
	}, svc, res.Identity, res.Blobs)

	janitor := worker.NewBlobJanitor(res.Store, res.Blobs, cfg.JanitorBatchSize, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting moneybook server",
			"port", cfg.Port,
			"data_backend", cfg.DataBackend,
			"blob_backend", cfg.BlobBackend,
			"events_enabled", events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		return nil
	})

	g.Go(func() error {
		return janitor.Run(gctx, cfg.JanitorSchedule)
	})

	if listCache != nil {
		g.Go(func() error {
			return cacheManager.Run(gctx, cfg.ListCacheTTL)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
