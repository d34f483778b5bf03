// Package registry maps live events to the process that owns their
// session state. The owner registers its addressable endpoint in the
// shared KV; other services resolve it to forward snapshot requests.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/bus"
)

const (
	endpointTTL       = 7 * 24 * time.Hour
	heartbeatInterval = time.Minute
)

// ErrNoEndpoint means no process currently owns the event.
var ErrNoEndpoint = errors.New("registry: no endpoint registered")

type Registry struct {
	bus *bus.Client
	log zerolog.Logger
}

func New(b *bus.Client, log zerolog.Logger) *Registry {
	return &Registry{bus: b, log: log.With().Str("component", "registry").Logger()}
}

// Register claims ownership of an event, refreshes the claim every
// minute until ctx is cancelled, and re-registers after a bus
// reconnect.
func (r *Registry) Register(ctx context.Context, eventID int, endpoint string) error {
	if err := r.set(ctx, eventID, endpoint); err != nil {
		return err
	}

	r.bus.OnReconnect(func() {
		if err := r.set(context.Background(), eventID, endpoint); err != nil {
			r.log.Warn().Err(err).Int("event_id", eventID).Msg("endpoint re-register failed")
		}
	})

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.set(ctx, eventID, endpoint); err != nil {
					r.log.Warn().Err(err).Int("event_id", eventID).Msg("endpoint refresh failed")
				}
			}
		}
	}()

	r.log.Info().Int("event_id", eventID).Str("endpoint", endpoint).Msg("endpoint registered")
	return nil
}

func (r *Registry) set(ctx context.Context, eventID int, endpoint string) error {
	return r.bus.Set(ctx, bus.EventEndpoint(eventID), endpoint, endpointTTL)
}

// Resolve returns the base URL of the process owning an event. Bare
// host:port endpoints get an http scheme.
func (r *Registry) Resolve(ctx context.Context, eventID int) (string, error) {
	endpoint, err := r.bus.Get(ctx, bus.EventEndpoint(eventID))
	if err != nil {
		if errors.Is(err, bus.ErrNotFound) {
			return "", ErrNoEndpoint
		}
		return "", err
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return endpoint, nil
}

// Unregister releases the claim (best effort, used on shutdown).
func (r *Registry) Unregister(ctx context.Context, eventID int) {
	if err := r.bus.Del(ctx, bus.EventEndpoint(eventID)); err != nil {
		r.log.Warn().Err(err).Int("event_id", eventID).Msg("endpoint unregister failed")
	}
}
