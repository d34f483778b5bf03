// Package publish fans session updates out to subscribers: immediate
// patch pushes after each pipeline pass and a paced full-state refresh
// loop.
package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/bus"
	"github.com/paddockcloud/lt-engine/internal/hub"
	"github.com/paddockcloud/lt-engine/internal/metrics"
	"github.com/paddockcloud/lt-engine/internal/state"
)

const (
	payloadTTL = time.Minute

	// Per-connection pacing bounds for the full-refresh fan-out.
	minSpacing = 2 * time.Millisecond
	maxSpacing = 50 * time.Millisecond
)

// Publisher owns the egress side of one event's pipeline.
type Publisher struct {
	eventID  int
	interval time.Duration

	bus   *bus.Client
	hub   *hub.StatusHub
	store *state.Store
	log   zerolog.Logger

	unsubscribe func()
}

func New(eventID int, interval time.Duration, b *bus.Client, h *hub.StatusHub, store *state.Store, log zerolog.Logger) *Publisher {
	return &Publisher{
		eventID:  eventID,
		interval: interval,
		bus:      b,
		hub:      h,
		store:    store,
		log:      log.With().Str("component", "publisher").Int("event_id", eventID).Logger(),
	}
}

// PublishPatches pushes one pipeline pass's patches to both subscriber
// groups as a single ordered batch per connection.
func (p *Publisher) PublishPatches(sessionPatch *state.SessionStatePatch, carPatches []*state.CarPositionPatch) {
	if sessionPatch == nil && len(carPatches) == 0 {
		return
	}

	for _, g := range []hub.Group{hub.GroupLegacy, hub.GroupV2} {
		if sessionPatch != nil {
			p.hub.SendToGroup(p.eventID, g, "ReceiveSessionPatch", sessionPatch)
		}
		if len(carPatches) > 0 {
			p.hub.SendToGroup(p.eventID, g, "ReceiveCarPatches", carPatches)
		}
		metrics.PatchesPublishedTotal.WithLabelValues(string(g)).Inc()
	}
}

// SendReset asks every subscriber to drop local state and wait for the
// next full refresh.
func (p *Publisher) SendReset() {
	for _, g := range []hub.Group{hub.GroupLegacy, hub.GroupV2} {
		p.hub.SendToGroup(p.eventID, g, "ReceiveReset")
	}
	p.log.Info().Msg("reset sent to subscribers")
}

// Start runs the full-refresh loop and answers targeted full-status
// requests until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	p.unsubscribe = p.bus.Subscribe(ctx, bus.ChannelFullStatus, func(payload string) {
		p.onFullStatusRequest(ctx, payload)
	})

	go p.refreshLoop(ctx)
}

func (p *Publisher) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

func (p *Publisher) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	skipNext := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if skipNext {
				skipNext = false
				metrics.FullRefreshSkippedTotal.Inc()
				continue
			}
			start := time.Now()
			p.fullRefresh(ctx)
			// An overrun eats the next tick's budget.
			skipNext = time.Since(start) > p.interval
		}
	}
}

// fullRefresh encodes the snapshot once and sends it to every
// subscriber of the event, spaced so N sends spread across the
// interval.
func (p *Publisher) fullRefresh(ctx context.Context) {
	encoded, err := p.encodeSnapshot()
	if err != nil {
		p.log.Error().Err(err).Msg("snapshot encode failed")
		return
	}

	if err := p.bus.Set(ctx, bus.EventPayload(p.eventID), encoded, payloadTTL); err != nil {
		p.log.Warn().Err(err).Msg("payload cache write failed")
	}

	members, err := p.bus.HGetAll(ctx, bus.StatusEventConnections(p.eventID))
	if err != nil {
		p.log.Warn().Err(err).Msg("subscriber enumeration failed")
		return
	}
	if len(members) == 0 {
		metrics.FullRefreshesTotal.Inc()
		return
	}

	spacing := refreshSpacing(p.interval, len(members))
	for connID := range members {
		// Connections homed on another edge instance are skipped; their
		// hub answers the send_full_status channel instead.
		p.hub.SendToConnection(connID, "ReceiveMessage", encoded)
		select {
		case <-ctx.Done():
			return
		case <-time.After(spacing):
		}
	}
	metrics.FullRefreshesTotal.Inc()
}

// refreshSpacing spreads n sends across the refresh interval, clamped
// so a huge subscriber count cannot starve the loop and a tiny one
// cannot burst.
func refreshSpacing(interval time.Duration, n int) time.Duration {
	spacing := interval / time.Duration(n)
	if spacing < minSpacing {
		spacing = minSpacing
	}
	if spacing > maxSpacing {
		spacing = maxSpacing
	}
	return spacing
}

func (p *Publisher) onFullStatusRequest(ctx context.Context, payload string) {
	var req struct {
		EventID      int    `json:"eventId"`
		ConnectionID string `json:"connectionId"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		p.log.Warn().Err(err).Msg("malformed full-status request")
		return
	}
	if req.EventID != p.eventID {
		return
	}

	encoded, err := p.encodeSnapshot()
	if err != nil {
		p.log.Error().Err(err).Msg("snapshot encode failed")
		return
	}
	p.hub.SendToConnection(req.ConnectionID, "ReceiveMessage", encoded)
}

func (p *Publisher) encodeSnapshot() (string, error) {
	snapshot := p.store.Snapshot()
	return state.EncodePayload(state.ToPayload(snapshot))
}

// NotifyConfigChanged appends a configuration-change marker to the
// event stream, retried with exponential backoff.
func (p *Publisher) NotifyConfigChanged(ctx context.Context, sessionID int) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)

	return backoff.Retry(func() error {
		_, err := p.bus.Append(ctx, bus.EventStream(p.eventID),
			bus.FieldTag(bus.TypeConfigChanged, p.eventID, sessionID), "{}")
		return err
	}, policy)
}

// RequestRelayReset asks the relay hub to make relays re-send a full
// snapshot.
func (p *Publisher) RequestRelayReset(ctx context.Context) {
	req, _ := json.Marshal(map[string]int{"eventId": p.eventID})
	if err := p.bus.Publish(ctx, bus.ChannelRelayReset, string(req), true); err != nil {
		p.log.Warn().Err(err).Msg("relay reset publish failed")
	}
	metrics.RelayResetsTotal.Inc()
}
