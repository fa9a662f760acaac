// Package main provides the entrypoint for the Pushbucket API server: the
// passthrough receiving endpoint plus operational endpoints.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/api"
	"github.com/pushbucket/pushbucket/internal/database"
	"github.com/pushbucket/pushbucket/internal/push"
	"github.com/pushbucket/pushbucket/internal/push/apns"
	"github.com/pushbucket/pushbucket/internal/push/fcm"
	"github.com/pushbucket/pushbucket/internal/push/webpush"
	"github.com/pushbucket/pushbucket/internal/settings"
	"github.com/pushbucket/pushbucket/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pushbucket-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Pushbucket API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
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
	ctx := context.Background()
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
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
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize settings service
	settingsService := settings.NewService(settings.ServiceConfig{
		Repository: settings.NewPostgresRepository(pool),
		Logger:     log,
	})

	// The relay token peers authenticate with. The environment overrides the
	// stored server setting.
	relayToken := os.Getenv("PUSH_RELAY_TOKEN")
	if relayToken == "" {
		relayToken = settingsService.StringSetting(ctx, settings.ServerKeyPassthroughToken, "")
	}
	if relayToken == "" {
		log.Warn().Msg("no relay token configured - relayed deliveries will be rejected")
	}

	adapters := buildAdapters(ctx, log)

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:    Version,
		BuildTime:  BuildTime,
		Logger:     log,
		RelayToken: relayToken,
		Adapters:   adapters,
		DB:         pool,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
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
