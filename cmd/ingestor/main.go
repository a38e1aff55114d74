package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

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

	sub := mqtt.NewSubscriber(bootstrap.MQTTConfig("ingestor"), app.Services.Ingest, tel)
	sub.Start()

	telemetryApp := httpHandlers.NewApp(config.MaxBodyBytes(), tel)
	httpHandlers.RegisterTelemetry(telemetryApp, tel)
	go func() {
		if err := telemetryApp.Listen(config.TelemetryAddr()); err != nil {
			log.Error().Err(err).Msg("telemetry server exit")
		}
	}()

	log.Info().Str("topic", config.MQTTTopic()).Str("telemetry_addr", config.TelemetryAddr()).Msg("ingestor running")
	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout())
	defer cancel()

	if err := sub.Drain(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mqtt drain")
	}
	if err := telemetryApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown")
	}
	if err := app.Close(); err != nil {
		log.Error().Err(err).Msg("close resources")
	}
	log.Info().Msg("ingestor stopped")
}
