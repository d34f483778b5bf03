// Package hub hosts the two realtime websocket endpoints: the relay
// hub fed by track-side timing relays and the status hub serving
// spectator clients. Both speak a JSON invocation envelope
// {"target": string, "arguments": [...]} in each direction.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Invocation is the wire envelope for both directions.
type Invocation struct {
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// Conn wraps one websocket connection. Writes are serialized through a
// mutex so invocations never interleave.
type Conn struct {
	ID       string
	ClientID string
	OrgID    int

	ws *websocket.Conn
	mu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, id, clientID string, orgID int) *Conn {
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &Conn{
		ID:       id,
		ClientID: clientID,
		OrgID:    orgID,
		ws:       ws,
		closed:   make(chan struct{}),
	}
}

// Send marshals each argument and writes one invocation.
func (c *Conn) Send(target string, args ...any) error {
	inv := Invocation{Target: target, Arguments: make([]json.RawMessage, 0, len(args))}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		inv.Arguments = append(inv.Arguments, raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(inv)
}

// SendRaw writes a pre-built invocation. Used by fan-out paths that
// marshal the arguments once for many connections.
func (c *Conn) SendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// Close shuts the connection down once; concurrent callers are safe.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// Done is closed when the connection has been torn down.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// readLoop delivers inbound invocations to handle until the peer goes
// away. It runs on the connection's own goroutine.
func (c *Conn) readLoop(handle func(Invocation)) {
	defer c.Close()
	for {
		var inv Invocation
		if err := c.ws.ReadJSON(&inv); err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		handle(inv)
	}
}

// pingLoop keeps the connection alive until it closes.
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.Close()
				return
			}
		}
	}
}

// decodeArgs unmarshals positional invocation arguments into the given
// pointers. Extra arguments are ignored; missing ones are an error.
func decodeArgs(inv Invocation, dests ...any) error {
	if len(inv.Arguments) < len(dests) {
		return errTooFewArgs
	}
	for i, d := range dests {
		if err := json.Unmarshal(inv.Arguments[i], d); err != nil {
			return err
		}
	}
	return nil
}
