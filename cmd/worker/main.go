// Package main provides the entrypoint for the Pushbucket worker: the
// pubsub-triggered fan-out and the deferred-redelivery scheduler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/bucket"
	"github.com/pushbucket/pushbucket/internal/database"
	"github.com/pushbucket/pushbucket/internal/device"
	"github.com/pushbucket/pushbucket/internal/message"
	"github.com/pushbucket/pushbucket/internal/notification"
	"github.com/pushbucket/pushbucket/internal/push"
	"github.com/pushbucket/pushbucket/internal/push/apns"
	"github.com/pushbucket/pushbucket/internal/push/fcm"
	"github.com/pushbucket/pushbucket/internal/push/relay"
	"github.com/pushbucket/pushbucket/internal/push/webpush"
	"github.com/pushbucket/pushbucket/internal/realtime"
	"github.com/pushbucket/pushbucket/internal/redelivery"
	"github.com/pushbucket/pushbucket/internal/settings"
	"github.com/pushbucket/pushbucket/internal/snooze"
	"github.com/pushbucket/pushbucket/internal/telemetry"
	"github.com/pushbucket/pushbucket/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pushbucket-worker"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Pushbucket worker")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	if projectID == "" {
		log.Fatal().Msg("PUBSUB_PROJECT_ID is required")
	}

	subscriptionName := os.Getenv("PUBSUB_DISPATCH_SUBSCRIPTION")
	if subscriptionName == "" {
		subscriptionName = "message-dispatch-sub"
	}

	realtimeTopic := os.Getenv("PUBSUB_REALTIME_TOPIC")
	if realtimeTopic == "" {
		realtimeTopic = "notification-events"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := telemetry.NewDispatchMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dispatch metrics")
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Repositories
	messageRepo := message.NewPostgresRepository(pool)
	notificationRepo := notification.NewPostgresRepository(pool)
	deviceRepo := device.NewPostgresRepository(pool)
	bucketRepo := bucket.NewPostgresRepository(pool)
	muteRepo := snooze.NewPostgresRepository(pool)
	redeliveryRepo := redelivery.NewPostgresRepository(pool)

	settingsService := settings.NewService(settings.ServiceConfig{
		Repository: settings.NewPostgresRepository(pool),
		Logger:     log,
	})

	// Realtime event publisher
	publisher, err := realtime.NewPubSubPublisher(ctx, realtime.PubSubConfig{
		ProjectID: projectID,
		TopicName: realtimeTopic,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize realtime publisher")
	}
	defer publisher.Close() //nolint:errcheck // best effort on shutdown

	adapters := buildAdapters(ctx, log)

	// Dispatch orchestrator
	orchestrator := push.NewOrchestrator(push.OrchestratorConfig{
		Notifications: notificationRepo,
		Devices:       deviceRepo,
		Permissions:   bucketRepo,
		Mutes:         muteRepo,
		Settings:      settingsService,
		Adapters:      adapters,
		Relay:         relay.NewClient(relay.ClientConfig{Logger: log}),
		Publisher:     publisher,
		Metrics:       metrics,
		Logger:        log,
	})

	// Deferred-redelivery scheduler
	scheduler := redelivery.NewScheduler(redelivery.SchedulerConfig{
		Records:       redeliveryRepo,
		Messages:      messageRepo,
		Notifications: notificationRepo,
		Devices:       deviceRepo,
		Dispatcher:    orchestrator,
		Metrics:       metrics,
		Logger:        log,
	})
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start redelivery scheduler")
	}
	defer scheduler.Stop()

	// Pub/Sub dispatch trigger
	pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        projectID,
		SubscriptionName: subscriptionName,
		Messages:         messageRepo,
		Dispatcher:       orchestrator,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pubsub handler")
	}
	defer pubsubHandler.Close() //nolint:errcheck // best effort on shutdown

	go func() {
		if err := pubsubHandler.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("pubsub handler error")
		}
	}()

	// Health check endpoint for the container platform
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// buildAdapters initializes the provider adapters configured via environment.
// Platforms without credentials are simply absent from the result.
func buildAdapters(ctx context.Context, log zerolog.Logger) []push.Adapter {
	var adapters []push.Adapter

	if authKeyPath := os.Getenv("APNS_AUTH_KEY_PATH"); authKeyPath != "" {
		apnsAdapter, err := apns.New(apns.Config{
			AuthKeyPath: authKeyPath,
			KeyID:       os.Getenv("APNS_KEY_ID"),
			TeamID:      os.Getenv("APNS_TEAM_ID"),
			Topic:       os.Getenv("APNS_TOPIC"),
			Production:  os.Getenv("APNS_PRODUCTION") == "true",
			Logger:      log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize APNs adapter")
		} else {
			adapters = append(adapters, apnsAdapter)
			log.Info().Msg("APNs adapter initialized")
		}
	} else {
		log.Warn().Msg("APNs not configured - iOS deliveries unavailable")
	}

	if credsFile := os.Getenv("FIREBASE_CREDENTIALS_FILE"); credsFile != "" {
		fcmAdapter, err := fcm.New(ctx, fcm.Config{
			CredentialsFile: credsFile,
			Logger:          log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize FCM adapter")
		} else {
			adapters = append(adapters, fcmAdapter)
			log.Info().Msg("FCM adapter initialized")
		}
	} else {
		log.Warn().Msg("FCM not configured - Android deliveries unavailable")
	}

	subscriber := os.Getenv("WEBPUSH_SUBSCRIBER")
	if subscriber == "" {
		subscriber = "mailto:ops@pushbucket.io"
	}
	adapters = append(adapters, webpush.New(webpush.Config{
		Subscriber: subscriber,
		Logger:     log,
	}))
	log.Info().Msg("web push adapter initialized")

	return adapters
}
