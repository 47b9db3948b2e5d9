package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.Server.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect infrastructure")
	}
	defer infra.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := setupServices(ctx, cfg, infra, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}

	// Start turn scheduler in background
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := services.Orchestrator.RunScheduler(ctx); err != nil {
			log.Error().Err(err).Msg("turn scheduler failed")
		}
	}()

	if n, err := services.Orchestrator.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("failed to recover game sessions")
	} else if n > 0 {
		log.Info().Int("sessions", n).Msg("resumed game sessions")
	}

	go services.Connections.Start(ctx)
	go services.Limiter.RunSweeper(time.Minute, ctx.Done())
	if services.Consumer != nil {
		go func() {
			if err := services.Consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("JetStream event consumer failed")
			}
		}()
	}

	server := setupServer(cfg, services, NewHealthChecker(infra, services), reg)
	go func() {
		log.Info().Str("addr", server.Addr).Str("store", cfg.Store).Msg("pidr server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("turn scheduler did not stop in time")
	}
	log.Info().Msg("shutdown complete")
}
