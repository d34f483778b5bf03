// relay-edge hosts the websocket edges (relay ingress and subscriber
// egress) without a per-event pipeline. Edges scale independently; the
// per-event engine instances consume the streams the edges feed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/api"
	"github.com/paddockcloud/lt-engine/internal/bus"
	"github.com/paddockcloud/lt-engine/internal/config"
	"github.com/paddockcloud/lt-engine/internal/controllog"
	"github.com/paddockcloud/lt-engine/internal/database"
	"github.com/paddockcloud/lt-engine/internal/hub"
	"github.com/paddockcloud/lt-engine/internal/metrics"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("relay-edge starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	busLog := log.With().Str("component", "bus").Logger()
	busClient, err := bus.Connect(ctx, bus.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Log:      busLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to bus")
	}
	defer busClient.Close()

	var logSource hub.ControlLogSource
	if cfg.ControlLogPath != "" {
		logs := controllog.NewProvider(cfg.ControlLogPath, log)
		if err := logs.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start control log provider")
		}
		defer logs.Stop()
		logSource = logs
	}

	prometheus.MustRegister(metrics.NewCollector(db.Pool, nil))

	auth := hub.NewAuthorizer(busClient, db)
	relayHub := hub.NewRelayHub(busClient, db, auth, log)
	defer relayHub.Close()
	statusHub := hub.NewStatusHub(busClient, auth, logSource, log)

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Handlers{
		Health:    api.NewHealthHandler(db, busClient, nil, version, startTime),
		RelayHub:  relayHub,
		StatusHub: statusHub,
	}, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("relay-edge stopped")
}
