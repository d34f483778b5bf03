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
	"github.com/paddockcloud/lt-engine/internal/archive"
	"github.com/paddockcloud/lt-engine/internal/bus"
	"github.com/paddockcloud/lt-engine/internal/config"
	"github.com/paddockcloud/lt-engine/internal/controllog"
	"github.com/paddockcloud/lt-engine/internal/database"
	"github.com/paddockcloud/lt-engine/internal/hub"
	"github.com/paddockcloud/lt-engine/internal/metrics"
	"github.com/paddockcloud/lt-engine/internal/pipeline"
	"github.com/paddockcloud/lt-engine/internal/publish"
	"github.com/paddockcloud/lt-engine/internal/registry"
	"github.com/paddockcloud/lt-engine/internal/state"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.IntVar(&overrides.EventID, "event-id", 0, "event this instance owns")
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
	log.Info().Str("version", version).Int("event_id", cfg.EventID).Msg("lt-engine starting")

	if cfg.EventID == 0 {
		log.Fatal().Msg("event_id is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	// Bus
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

	// Session state and supporting services
	store := state.NewStore(state.NewSessionState(cfg.EventID, 0))
	reg := registry.New(busClient, log)

	var logs *controllog.Provider
	if cfg.ControlLogPath != "" {
		logs = controllog.NewProvider(cfg.ControlLogPath, log)
		if err := logs.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start control log provider")
		}
		defer logs.Stop()
	}

	archiver, err := archive.New(cfg.Archive, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure archiver")
	}
	if archiver != nil {
		if err := archiver.HeadBucket(ctx); err != nil {
			log.Fatal().Err(err).Msg("archive bucket unreachable")
		}
	}

	// Hubs
	auth := hub.NewAuthorizer(busClient, db)
	relayHub := hub.NewRelayHub(busClient, db, auth, log)
	defer relayHub.Close()
	var logSource hub.ControlLogSource
	if logs != nil {
		logSource = logs
	}
	statusHub := hub.NewStatusHub(busClient, auth, logSource, log)

	// Publisher and pipeline
	pub := publish.New(cfg.EventID, cfg.FullRefreshInterval, busClient, statusHub, store, log)
	pub.Start(ctx)
	defer pub.Stop()

	hostname, _ := os.Hostname()
	opts := pipeline.Options{
		EventID:    cfg.EventID,
		Consumer:   hostname,
		Endpoint:   cfg.Endpoint(),
		StaleAfter: cfg.StaleAfter,
		Bus:        busClient,
		DB:         db,
		State:      store,
		Publisher:  pub,
		Registry:   reg,
		InCar:      statusHub,
		Archiver:   archiver,
		Log:        log,
	}
	if logs != nil {
		opts.ControlLogs = logs
	}
	engine := pipeline.New(opts)
	prometheus.MustRegister(metrics.NewCollector(db.Pool, engine))

	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- engine.Run(ctx)
	}()

	// HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Handlers{
		Health:       api.NewHealthHandler(db, busClient, engine, version, startTime),
		SessionState: api.NewSessionStateHandler(cfg.EventID, store, reg, db),
		RelayHub:     relayHub,
		StatusHub:    statusHub,
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
	case err := <-pipelineErr:
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("pipeline error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("lt-engine stopped")
}
