package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"livesale-backend/config"
	"livesale-backend/internal/allocator"
	"livesale-backend/internal/api"
	"livesale-backend/internal/aws"
	"livesale-backend/internal/db"
	"livesale-backend/internal/events"
	"livesale-backend/internal/ingest"
	"livesale-backend/internal/notification"
	"livesale-backend/internal/store"
	"livesale-backend/internal/telemetry"
)

func newServeCommand(opts *rootOptions, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Run the HTTP API, comment pollers and event sinks",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.ConfigPath, logger)
		},
	}
}

func loadConfig(path string, logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	logger.Printf("configuration loaded successfully from %s", path)
	return cfg, nil
}

func runServe(parent context.Context, configPath string, logger *log.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)

	var sinks []events.Sink
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		sinks = append(sinks, notification.NewPushSink(appStore, webpushOptions))
	} else {
		logger.Println("VAPID keys not configured; operator push alerts disabled")
	}
	if cfg.SQS.Enabled {
		client, err := aws.NewSQSClient(ctx, cfg.SQS)
		if err != nil {
			return fmt.Errorf("failed to create SQS client: %w", err)
		}
		sinks = append(sinks, aws.NewPublisher(client, cfg.SQS.QueueURL))
		logger.Printf("forwarding events to %s", cfg.SQS.QueueURL)
	}

	bus := events.NewBus(cfg.Events.QueueSize, cfg.Events.Workers, sinks...)
	bus.Start(ctx)

	alloc := allocator.New(appStore, bus, cfg.Allocator.KeywordCacheTTL)
	limiter := rate.NewLimiter(rate.Limit(cfg.Ingest.RequestsPerSecond), cfg.Ingest.Burst)
	pollers := ingest.NewRegistry(alloc, cfg.Ingest.Interval, limiter)

	handler := api.NewHandler(appStore, alloc, pollers, cfg.Ingest, webpushOptions)
	router := api.NewRouter(handler, time.Duration(cfg.Server.RequestTimeoutSeconds)*time.Second)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server ListenAndServe: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}
	pollers.StopAll()
	cancel()
	bus.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracer shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
	return runErr
}
