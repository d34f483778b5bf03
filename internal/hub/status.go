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
	"github.com/paddockcloud/lt-engine/internal/controllog"
	"github.com/paddockcloud/lt-engine/internal/metrics"
)

// Group names a fan-out audience within an event. Legacy and V2 groups
// coexist; both receive every pipeline pass.
type Group string

const (
	GroupLegacy Group = "legacy"
	GroupV2     Group = "v2"
)

// carGroup keys the per-car subscription maps.
type carGroup struct {
	eventID int
	car     string
}

// ControlLogSource supplies current control-log entries for the
// subscribe-time snapshot.
type ControlLogSource interface {
	Entries(eventID int) []controllog.Entry
}

// StatusHub serves spectator clients: event subscriptions, control-log
// feeds, and in-car driver feeds. Connection membership lives both
// locally (for delivery) and in the shared KV (for enumeration by the
// owning pipeline's publisher).
type StatusHub struct {
	bus  *bus.Client
	auth *Authorizer
	logs ControlLogSource
	log  zerolog.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Conn
	// events maps eventID -> group -> connID set.
	events map[int]map[Group]map[string]*Conn
	// controlLogs and carControlLogs map subscription scope -> connID set.
	controlLogs    map[int]map[string]*Conn
	carControlLogs map[carGroup]map[string]*Conn
	// inCar maps (event, car) -> group -> connID set.
	inCar map[carGroup]map[Group]map[string]*Conn
}

func NewStatusHub(b *bus.Client, auth *Authorizer, logs ControlLogSource, log zerolog.Logger) *StatusHub {
	return &StatusHub{
		bus:            b,
		auth:           auth,
		logs:           logs,
		log:            log.With().Str("component", "status-hub").Logger(),
		conns:          make(map[string]*Conn),
		events:         make(map[int]map[Group]map[string]*Conn),
		controlLogs:    make(map[int]map[string]*Conn),
		carControlLogs: make(map[carGroup]map[string]*Conn),
		inCar:          make(map[carGroup]map[Group]map[string]*Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades a subscriber connection and runs its read loop.
func (h *StatusHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID, orgID, err := h.auth.Authorize(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("status upgrade failed")
		return
	}

	conn := newConn(ws, uuid.NewString(), clientID, orgID)
	h.onConnect(r.Context(), conn)
	metrics.StatusConnections.Inc()

	go conn.pingLoop()
	go func() {
		conn.readLoop(func(inv Invocation) { h.dispatch(conn, inv) })
		h.onDisconnect(conn)
		metrics.StatusConnections.Dec()
	}()
}

func (h *StatusHub) onConnect(ctx context.Context, c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	h.writeConnectionRecord(ctx, c, 0)
	h.log.Info().Str("connection_id", c.ID).Str("client_id", c.ClientID).Msg("subscriber connected")
}

func (h *StatusHub) writeConnectionRecord(ctx context.Context, c *Conn, subscribedEventID int) {
	record, _ := json.Marshal(map[string]any{
		"connectionId":      c.ID,
		"clientId":          c.ClientID,
		"subscribedEventId": subscribedEventID,
	})
	if err := h.bus.HSet(ctx, bus.KeyStatusConnections, c.ID, string(record)); err != nil {
		h.log.Warn().Err(err).Msg("status connection record write failed")
	}
}

func (h *StatusHub) onDisconnect(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	var staleEvents []int
	for eventID, groups := range h.events {
		for g, conns := range groups {
			if _, ok := conns[c.ID]; ok {
				delete(conns, c.ID)
				if len(conns) == 0 {
					delete(groups, g)
				}
				staleEvents = append(staleEvents, eventID)
			}
		}
		if len(groups) == 0 {
			delete(h.events, eventID)
		}
	}
	for eventID, conns := range h.controlLogs {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.controlLogs, eventID)
		}
	}
	for key, conns := range h.carControlLogs {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.carControlLogs, key)
		}
	}
	for key, groups := range h.inCar {
		for g, conns := range groups {
			if _, ok := conns[c.ID]; ok {
				delete(conns, c.ID)
				metrics.InCarConnections.Dec()
				if len(conns) == 0 {
					delete(groups, g)
				}
			}
		}
		if len(groups) == 0 {
			delete(h.inCar, key)
		}
	}
	h.mu.Unlock()

	h.bus.HDel(bus.KeyStatusConnections, c.ID)
	for _, eventID := range staleEvents {
		h.bus.HDel(bus.StatusEventConnections(eventID), c.ID)
	}
	h.log.Info().Str("connection_id", c.ID).Msg("subscriber disconnected")
}

func (h *StatusHub) dispatch(c *Conn, inv Invocation) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch inv.Target {
	case "SubscribeToEvent":
		err = h.subscribeEvent(ctx, c, inv, GroupLegacy)
	case "SubscribeToEventV2":
		err = h.subscribeEvent(ctx, c, inv, GroupV2)
	case "UnsubscribeFromEvent":
		err = h.unsubscribeEvent(ctx, c, inv, GroupLegacy)
	case "UnsubscribeFromEventV2":
		err = h.unsubscribeEvent(ctx, c, inv, GroupV2)
	case "SubscribeToControlLogs":
		err = h.subscribeControlLogs(c, inv)
	case "UnsubscribeFromControlLogs":
		err = h.unsubscribeControlLogs(c, inv)
	case "SubscribeToCarControlLogs":
		err = h.subscribeCarControlLogs(c, inv)
	case "UnsubscribeFromCarControlLogs":
		err = h.unsubscribeCarControlLogs(c, inv)
	case "SubscribeToInCarDriverEvent":
		err = h.subscribeInCar(c, inv, GroupLegacy)
	case "SubscribeToInCarDriverEventV2":
		err = h.subscribeInCar(c, inv, GroupV2)
	case "UnsubscribeFromInCarDriverEvent":
		err = h.unsubscribeInCar(c, inv, GroupLegacy)
	case "UnsubscribeFromInCarDriverEventV2":
		err = h.unsubscribeInCar(c, inv, GroupV2)
	default:
		h.log.Warn().Str("target", inv.Target).Msg("unknown subscriber method")
		return
	}
	if err != nil {
		h.log.Warn().Err(err).
			Str("target", inv.Target).
			Str("connection_id", c.ID).
			Msg("subscriber method failed")
	}
}

func (h *StatusHub) subscribeEvent(ctx context.Context, c *Conn, inv Invocation, g Group) error {
	var eventID int
	if err := decodeArgs(inv, &eventID); err != nil {
		return err
	}

	h.mu.Lock()
	groups, ok := h.events[eventID]
	if !ok {
		groups = make(map[Group]map[string]*Conn)
		h.events[eventID] = groups
	}
	conns, ok := groups[g]
	if !ok {
		conns = make(map[string]*Conn)
		groups[g] = conns
	}
	conns[c.ID] = c
	h.mu.Unlock()

	record, _ := json.Marshal(map[string]any{
		"connectionId": c.ID,
		"group":        string(g),
	})
	if err := h.bus.HSet(ctx, bus.StatusEventConnections(eventID), c.ID, string(record)); err != nil {
		h.log.Warn().Err(err).Int("event_id", eventID).Msg("subscriber record write failed")
	}
	h.writeConnectionRecord(ctx, c, eventID)

	// The owning pipeline answers with an initial snapshot for this
	// connection.
	request, _ := json.Marshal(map[string]any{
		"eventId":      eventID,
		"connectionId": c.ID,
	})
	return h.bus.Publish(ctx, bus.ChannelFullStatus, string(request), false)
}

func (h *StatusHub) unsubscribeEvent(ctx context.Context, c *Conn, inv Invocation, g Group) error {
	var eventID int
	if err := decodeArgs(inv, &eventID); err != nil {
		return err
	}

	h.mu.Lock()
	stillMember := false
	if groups, ok := h.events[eventID]; ok {
		if conns, ok := groups[g]; ok {
			delete(conns, c.ID)
			if len(conns) == 0 {
				delete(groups, g)
			}
		}
		for _, conns := range groups {
			if _, ok := conns[c.ID]; ok {
				stillMember = true
			}
		}
		if len(groups) == 0 {
			delete(h.events, eventID)
		}
	}
	h.mu.Unlock()

	if !stillMember {
		h.bus.HDel(bus.StatusEventConnections(eventID), c.ID)
		h.writeConnectionRecord(ctx, c, 0)
	}
	return nil
}

func (h *StatusHub) subscribeControlLogs(c *Conn, inv Invocation) error {
	var eventID int
	if err := decodeArgs(inv, &eventID); err != nil {
		return err
	}

	h.mu.Lock()
	conns, ok := h.controlLogs[eventID]
	if !ok {
		conns = make(map[string]*Conn)
		h.controlLogs[eventID] = conns
	}
	conns[c.ID] = c
	h.mu.Unlock()

	if h.logs != nil {
		return c.Send("ReceiveControlLog", controllog.CarControlLogs{
			EventID: eventID,
			Entries: h.logs.Entries(eventID),
		})
	}
	return nil
}

func (h *StatusHub) unsubscribeControlLogs(c *Conn, inv Invocation) error {
	var eventID int
	if err := decodeArgs(inv, &eventID); err != nil {
		return err
	}
	h.mu.Lock()
	if conns, ok := h.controlLogs[eventID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.controlLogs, eventID)
		}
	}
	h.mu.Unlock()
	return nil
}

func (h *StatusHub) subscribeCarControlLogs(c *Conn, inv Invocation) error {
	var (
		eventID int
		car     string
	)
	if err := decodeArgs(inv, &eventID, &car); err != nil {
		return err
	}

	key := carGroup{eventID: eventID, car: car}
	h.mu.Lock()
	conns, ok := h.carControlLogs[key]
	if !ok {
		conns = make(map[string]*Conn)
		h.carControlLogs[key] = conns
	}
	conns[c.ID] = c
	h.mu.Unlock()

	if h.logs != nil {
		return c.Send("ReceiveControlLog", controllog.CarControlLogs{
			EventID:   eventID,
			CarNumber: car,
			Entries:   controllog.ForCar(h.logs.Entries(eventID), car),
		})
	}
	return nil
}

func (h *StatusHub) unsubscribeCarControlLogs(c *Conn, inv Invocation) error {
	var (
		eventID int
		car     string
	)
	if err := decodeArgs(inv, &eventID, &car); err != nil {
		return err
	}
	key := carGroup{eventID: eventID, car: car}
	h.mu.Lock()
	if conns, ok := h.carControlLogs[key]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.carControlLogs, key)
		}
	}
	h.mu.Unlock()
	return nil
}

func (h *StatusHub) subscribeInCar(c *Conn, inv Invocation, g Group) error {
	var (
		eventID int
		car     string
	)
	if err := decodeArgs(inv, &eventID, &car); err != nil {
		return err
	}

	key := carGroup{eventID: eventID, car: car}
	h.mu.Lock()
	groups, ok := h.inCar[key]
	if !ok {
		groups = make(map[Group]map[string]*Conn)
		h.inCar[key] = groups
	}
	conns, ok := groups[g]
	if !ok {
		conns = make(map[string]*Conn)
		groups[g] = conns
	}
	if _, ok := conns[c.ID]; !ok {
		conns[c.ID] = c
		metrics.InCarConnections.Inc()
	}
	h.mu.Unlock()
	return nil
}

func (h *StatusHub) unsubscribeInCar(c *Conn, inv Invocation, g Group) error {
	var (
		eventID int
		car     string
	)
	if err := decodeArgs(inv, &eventID, &car); err != nil {
		return err
	}
	key := carGroup{eventID: eventID, car: car}
	h.mu.Lock()
	if groups, ok := h.inCar[key]; ok {
		if conns, ok := groups[g]; ok {
			if _, ok := conns[c.ID]; ok {
				delete(conns, c.ID)
				metrics.InCarConnections.Dec()
			}
			if len(conns) == 0 {
				delete(groups, g)
			}
		}
		if len(groups) == 0 {
			delete(h.inCar, key)
		}
	}
	h.mu.Unlock()
	return nil
}

// SendToGroup fans one invocation to every member of an event group.
// The envelope is marshaled once.
func (h *StatusHub) SendToGroup(eventID int, g Group, target string, args ...any) {
	data, err := marshalInvocation(target, args...)
	if err != nil {
		h.log.Warn().Err(err).Str("target", target).Msg("invocation marshal failed")
		return
	}

	for _, c := range h.groupMembers(eventID, g) {
		if err := c.SendRaw(data); err != nil {
			h.log.Debug().Err(err).Str("connection_id", c.ID).Msg("group send failed")
			c.Close()
		}
	}
}

// SendToConnection delivers one invocation to a single local
// connection. Returns false when the connection lives elsewhere.
func (h *StatusHub) SendToConnection(connID, target string, args ...any) bool {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := c.Send(target, args...); err != nil {
		h.log.Debug().Err(err).Str("connection_id", connID).Msg("targeted send failed")
		c.Close()
	}
	return true
}

// SendControlLog fans a control-log update to the event's log group and
// the matching per-car groups.
func (h *StatusHub) SendControlLog(eventID int, logs controllog.CarControlLogs) {
	h.mu.RLock()
	conns := make([]*Conn, 0)
	for _, c := range h.controlLogs[eventID] {
		conns = append(conns, c)
	}
	if logs.CarNumber != "" {
		for _, c := range h.carControlLogs[carGroup{eventID: eventID, car: logs.CarNumber}] {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send("ReceiveControlLog", logs); err != nil {
			c.Close()
		}
	}
}

// SendInCarUpdate delivers the in-car driver payload for one car to
// both in-car groups.
func (h *StatusHub) SendInCarUpdate(eventID int, car string, payload any) {
	key := carGroup{eventID: eventID, car: car}
	h.mu.RLock()
	conns := make([]*Conn, 0)
	for _, group := range h.inCar[key] {
		for _, c := range group {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send("ReceiveInCarUpdateV2", payload); err != nil {
			c.Close()
		}
	}
}

func (h *StatusHub) groupMembers(eventID int, g Group) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.events[eventID][g]
	out := make([]*Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

func marshalInvocation(target string, args ...any) ([]byte, error) {
	inv := Invocation{Target: target, Arguments: make([]json.RawMessage, 0, len(args))}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		inv.Arguments = append(inv.Arguments, raw)
	}
	return json.Marshal(inv)
}
