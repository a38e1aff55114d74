package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/auth"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/bootstrap"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/config"
	httpHandlers "github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/http"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/logger"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/mqtt"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/observability"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger.Init(config.LogLevel(), config.Development())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel := observability.New()
	app, err := bootstrap.Build(ctx, tel)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	httpApp := httpHandlers.NewApp(config.MaxBodyBytes(), tel)
	httpHandlers.Register(httpApp, app.Services, deviceAuthenticator(app.DB))

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", config.APIAddr()).Msg("api listening")
		serveErr <- httpApp.Listen(config.APIAddr())
	}()

	var sub *mqtt.Subscriber
	if config.MQTTEnabled() {
		sub = mqtt.NewSubscriber(bootstrap.MQTTConfig("api"), app.Services.Ingest, tel)
		sub.Start()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-serveErr:
		log.Error().Err(err).Msg("server exit")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout())
	defer cancel()

	if err := httpApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if sub != nil {
		if err := sub.Drain(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("mqtt drain")
		}
	}
	if err := app.Close(); err != nil {
		log.Error().Err(err).Msg("close resources")
	}
	log.Info().Msg("api stopped")
}

func deviceAuthenticator(db *sqlx.DB) auth.DeviceAuthenticator {
	if config.DeviceAuthMode() == "database" && db != nil {
		return auth.NewDeviceTable(db)
	}
	if config.IngestAPIKey() == "dev-api-key-change-me" {
		log.Warn().Msg("INGEST_API_KEY is the development default")
	}
	return auth.StaticKey{Key: config.IngestAPIKey()}
}
