package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/bus"
	"github.com/paddockcloud/lt-engine/internal/database"
	"github.com/paddockcloud/lt-engine/internal/metrics"
	"github.com/paddockcloud/lt-engine/internal/protocol/x2"
	"github.com/paddockcloud/lt-engine/internal/state"
)

// passingChunkSize bounds one stream entry; relays may send arbitrarily
// large batches after a reconnect.
const passingChunkSize = 25

// RelayStore is the persistence surface the relay hub writes through.
type RelayStore interface {
	EventOrganization(ctx context.Context, eventID int) (int, bool, error)
	InsertSessionIfMissing(ctx context.Context, eventID, sessionID int, name string) error
	UpsertCompetitor(ctx context.Context, m database.CompetitorMetadata) error
	InsertPassings(ctx context.Context, eventID, sessionID int, passings []x2.Passing) error
	ReplaceLoops(ctx context.Context, eventID int, loops []x2.Loop) error
}

// RelayHub accepts authenticated timing relays and turns their method
// calls into per-event stream entries.
type RelayHub struct {
	bus  *bus.Client
	db   RelayStore
	auth *Authorizer
	log  zerolog.Logger

	upgrader websocket.Upgrader

	// groups tracks which connections joined which event, so repeat
	// joins from chatty relays stay idempotent.
	groupsMu sync.Mutex
	groups   map[int]map[string]*Conn

	unsubscribe func()
}

func NewRelayHub(b *bus.Client, db RelayStore, auth *Authorizer, log zerolog.Logger) *RelayHub {
	h := &RelayHub{
		bus:    b,
		db:     db,
		auth:   auth,
		log:    log.With().Str("component", "relay-hub").Logger(),
		groups: make(map[int]map[string]*Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	h.unsubscribe = b.Subscribe(context.Background(), bus.ChannelRelayReset, h.onResetRequest)
	return h
}

func (h *RelayHub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

// ServeHTTP upgrades a relay connection and runs its read loop.
func (h *RelayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID, orgID, err := h.auth.Authorize(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("relay upgrade failed")
		return
	}

	conn := newConn(ws, uuid.NewString(), clientID, orgID)
	h.onConnect(r.Context(), conn)
	metrics.RelayConnections.Inc()

	go conn.pingLoop()
	go func() {
		conn.readLoop(func(inv Invocation) { h.dispatch(conn, inv) })
		h.onDisconnect(conn)
		metrics.RelayConnections.Dec()
	}()
}

func (h *RelayHub) onConnect(ctx context.Context, c *Conn) {
	record, _ := json.Marshal(map[string]any{
		"connectionId": c.ID,
		"clientId":     c.ClientID,
		"connectedAt":  time.Now().UTC(),
	})
	if err := h.bus.HSet(ctx, bus.KeyRelayEventConnections,
		bus.RelayConnectionField(c.ID), string(record)); err != nil {
		h.log.Warn().Err(err).Msg("relay connection record write failed")
	}
	h.log.Info().Str("connection_id", c.ID).Str("client_id", c.ClientID).Msg("relay connected")
}

func (h *RelayHub) onDisconnect(c *Conn) {
	h.groupsMu.Lock()
	for eventID, conns := range h.groups {
		if _, ok := conns[c.ID]; ok {
			delete(conns, c.ID)
			if len(conns) == 0 {
				delete(h.groups, eventID)
			}
		}
	}
	h.groupsMu.Unlock()

	h.bus.HDel(bus.KeyRelayEventConnections, bus.RelayConnectionField(c.ID))
	h.log.Info().Str("connection_id", c.ID).Msg("relay disconnected")
}

// joinEventGroup is idempotent; relays re-join on every heartbeat.
func (h *RelayHub) joinEventGroup(eventID int, c *Conn) {
	h.groupsMu.Lock()
	defer h.groupsMu.Unlock()
	conns, ok := h.groups[eventID]
	if !ok {
		conns = make(map[string]*Conn)
		h.groups[eventID] = conns
	}
	conns[c.ID] = c
}

// onResetRequest forwards a pipeline reset to every relay feeding the
// event so they re-send a full snapshot.
func (h *RelayHub) onResetRequest(payload string) {
	var req struct {
		EventID int `json:"eventId"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		h.log.Warn().Err(err).Msg("malformed reset request")
		return
	}

	h.groupsMu.Lock()
	conns := make([]*Conn, 0, len(h.groups[req.EventID]))
	for _, c := range h.groups[req.EventID] {
		conns = append(conns, c)
	}
	h.groupsMu.Unlock()

	for _, c := range conns {
		if err := c.Send("ReceiveReset"); err != nil {
			h.log.Warn().Err(err).Str("connection_id", c.ID).Msg("reset send failed")
		}
	}
	h.log.Info().Int("event_id", req.EventID).Int("relays", len(conns)).Msg("relay reset forwarded")
}

func (h *RelayHub) dispatch(c *Conn, inv Invocation) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch inv.Target {
	case "SendHeartbeat":
		err = h.sendHeartbeat(ctx, c, inv)
	case "SendRMonitor":
		err = h.sendRMonitor(ctx, c, inv)
	case "SendSessionChange":
		err = h.sendSessionChange(ctx, c, inv)
	case "SendPassings":
		err = h.sendPassings(ctx, c, inv)
	case "SendLoopChange":
		err = h.sendLoopChange(ctx, c, inv)
	case "SendFlags":
		err = h.sendFlags(ctx, c, inv)
	case "SendCompetitorMetadata":
		err = h.sendCompetitorMetadata(ctx, c, inv)
	default:
		h.log.Warn().Str("target", inv.Target).Msg("unknown relay method")
		return
	}
	if err != nil {
		h.log.Warn().Err(err).
			Str("target", inv.Target).
			Str("connection_id", c.ID).
			Msg("relay method failed")
	}
}

// authorizeEvent rejects calls for events the connected organization
// does not own.
func (h *RelayHub) authorizeEvent(ctx context.Context, c *Conn, eventID int) error {
	orgID, ok, err := h.db.EventOrganization(ctx, eventID)
	if err != nil {
		return err
	}
	if !ok || orgID != c.OrgID {
		return errUnauthorized
	}
	return nil
}

func (h *RelayHub) sendHeartbeat(ctx context.Context, c *Conn, inv Invocation) error {
	var eventID int
	if err := decodeArgs(inv, &eventID); err != nil {
		return err
	}
	if err := h.authorizeEvent(ctx, c, eventID); err != nil {
		return err
	}
	h.joinEventGroup(eventID, c)

	record, _ := json.Marshal(map[string]any{
		"eventId":      eventID,
		"connectionId": c.ID,
		"orgId":        c.OrgID,
		"timestamp":    time.Now().UTC(),
	})
	return h.bus.HSet(ctx, bus.KeyRelayEventConnections,
		bus.RelayHeartbeatField(eventID), string(record))
}

func (h *RelayHub) sendRMonitor(ctx context.Context, c *Conn, inv Invocation) error {
	var (
		eventID, sessionID int
		command            string
	)
	if err := decodeArgs(inv, &eventID, &sessionID, &command); err != nil {
		return err
	}
	if err := h.authorizeEvent(ctx, c, eventID); err != nil {
		return err
	}
	h.joinEventGroup(eventID, c)

	_, err := h.bus.Append(ctx, bus.EventStream(eventID),
		bus.FieldTag(bus.TypeRMonitor, eventID, sessionID), command)
	return err
}

func (h *RelayHub) sendSessionChange(ctx context.Context, c *Conn, inv Invocation) error {
	var (
		eventID, sessionID int
		name               string
		tzOffset           float64
	)
	if err := decodeArgs(inv, &eventID, &sessionID, &name, &tzOffset); err != nil {
		return err
	}
	if err := h.authorizeEvent(ctx, c, eventID); err != nil {
		return err
	}

	if err := h.db.InsertSessionIfMissing(ctx, eventID, sessionID, name); err != nil {
		h.log.Warn().Err(err).Int("event_id", eventID).Msg("session insert failed")
	}

	payload, _ := json.Marshal(map[string]any{
		"sessionName":    name,
		"timeZoneOffset": tzOffset,
	})
	_, err := h.bus.Append(ctx, bus.EventStream(eventID),
		bus.FieldTag(bus.TypeSessionChanged, eventID, sessionID), string(payload))
	return err
}

func (h *RelayHub) sendPassings(ctx context.Context, c *Conn, inv Invocation) error {
	var (
		eventID, sessionID int
		passings           []x2.Passing
	)
	if err := decodeArgs(inv, &eventID, &sessionID, &passings); err != nil {
		return err
	}
	if err := h.authorizeEvent(ctx, c, eventID); err != nil {
		return err
	}

	if err := h.db.InsertPassings(ctx, eventID, sessionID, passings); err != nil {
		h.log.Warn().Err(err).Int("event_id", eventID).Msg("passing persist failed")
	}

	for start := 0; start < len(passings); start += passingChunkSize {
		end := start + passingChunkSize
		if end > len(passings) {
			end = len(passings)
		}
		chunk, err := json.Marshal(passings[start:end])
		if err != nil {
			return err
		}
		if _, err := h.bus.Append(ctx, bus.EventStream(eventID),
			bus.FieldTag(bus.TypePassings, eventID, sessionID), string(chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (h *RelayHub) sendLoopChange(ctx context.Context, c *Conn, inv Invocation) error {
	var (
		eventID int
		loops   []x2.Loop
	)
	if err := decodeArgs(inv, &eventID, &loops); err != nil {
		return err
	}
	if err := h.authorizeEvent(ctx, c, eventID); err != nil {
		return err
	}

	if err := h.db.ReplaceLoops(ctx, eventID, loops); err != nil {
		h.log.Warn().Err(err).Int("event_id", eventID).Msg("loop persist failed")
	}

	payload, err := json.Marshal(loops)
	if err != nil {
		return err
	}
	_, err = h.bus.Append(ctx, bus.EventStream(eventID),
		bus.FieldTag(bus.TypeLoops, eventID, 0), string(payload))
	return err
}

func (h *RelayHub) sendFlags(ctx context.Context, c *Conn, inv Invocation) error {
	var (
		eventID, sessionID int
		flags              []state.FlagDuration
	)
	if err := decodeArgs(inv, &eventID, &sessionID, &flags); err != nil {
		return err
	}
	if err := h.authorizeEvent(ctx, c, eventID); err != nil {
		return err
	}

	payload, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	_, err = h.bus.Append(ctx, bus.EventStream(eventID),
		bus.FieldTag(bus.TypeFlags, eventID, sessionID), string(payload))
	return err
}

func (h *RelayHub) sendCompetitorMetadata(ctx context.Context, c *Conn, inv Invocation) error {
	var (
		eventID     int
		competitors []database.CompetitorMetadata
	)
	if err := decodeArgs(inv, &eventID, &competitors); err != nil {
		return err
	}
	if err := h.authorizeEvent(ctx, c, eventID); err != nil {
		return err
	}

	for _, m := range competitors {
		m.EventID = eventID
		if err := h.db.UpsertCompetitor(ctx, m); err != nil {
			h.log.Warn().Err(err).Str("car", m.CarNumber).Msg("competitor persist failed")
			continue
		}
		cached, _ := json.Marshal(m)
		if err := h.bus.Set(ctx, bus.CompetitorMetadataKey(m.CarNumber, eventID),
			string(cached), time.Hour); err != nil {
			h.log.Warn().Err(err).Str("car", m.CarNumber).Msg("competitor cache write failed")
		}
	}

	payload, err := json.Marshal(competitors)
	if err != nil {
		return err
	}
	_, err = h.bus.Append(ctx, bus.EventStream(eventID),
		bus.FieldTag(bus.TypeCompetitors, eventID, 0), string(payload))
	return err
}
