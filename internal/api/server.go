package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/config"
	"github.com/paddockcloud/lt-engine/internal/metrics"
)

// Handlers collects the route targets the server mounts. Nil entries
// leave their routes unregistered, so the engine and the relay edge can
// share one server.
type Handlers struct {
	Health       *HealthHandler
	SessionState *SessionStateHandler
	RelayHub     http.Handler
	StatusHub    http.Handler
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, h Handlers, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	if h.Health != nil {
		r.Get("/api/v1/health", h.Health.ServeHTTP)
	}
	r.Handle("/metrics", promhttp.Handler())

	// Websocket endpoints authenticate per client inside the hubs.
	if h.RelayHub != nil {
		r.Handle("/ws/relay", h.RelayHub)
	}
	if h.StatusHub != nil {
		r.Handle("/ws/status", h.StatusHub)
	}

	if h.SessionState != nil {
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))
			r.Get("/api/v1/events/{eventID}/session-state", h.SessionState.GetCurrentState)
			r.Get("/api/v1/events/{eventID}/results", h.SessionState.ListResults)
			r.Get("/api/v1/events/{eventID}/results/{sessionID}", h.SessionState.GetResult)
			r.Get("/api/v1/events/{eventID}/sessions/{sessionID}/laps/{car}", h.SessionState.GetCarLaps)
		})

		// Peer-to-peer snapshot fetch, msgpack body.
		r.Get("/internal/v1/events/{eventID}/session-state", h.SessionState.GetSnapshotMsgpack)
	}

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

// WaitForShutdown blocks until ctx is done, then drains with a grace
// period.
func (s *Server) WaitForShutdown(ctx context.Context) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
