package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Entry is one stream record: a server-assigned id plus a single
// field/value pair carrying the serialized protocol payload.
type Entry struct {
	ID      string
	Field   string
	Payload string
}

// Client wraps the Redis connection used for the per-event status
// streams, the pub/sub control channels, and the connection/endpoint
// registries. One Client is shared per process.
type Client struct {
	rdb *redis.Client
	log zerolog.Logger

	groupMu sync.Mutex
	groups  map[string]bool // "stream/group" → created

	subMu       sync.Mutex
	subs        map[string]*subscription
	onReconnect []func()
}

type subscription struct {
	pubsub  *redis.PubSub
	channel string
	cancel  context.CancelFunc
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Log      zerolog.Logger
}

func Connect(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{
		log:    opts.Log,
		groups: make(map[string]bool),
		subs:   make(map[string]*subscription),
	}

	c.rdb = redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			// Fires for every new pool connection, possibly mid-command on
			// the caller's goroutine; hook dispatch must not block the dial
			// or take client locks here.
			go c.handleReconnect()
			return nil
		},
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.rdb.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	opts.Log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("bus connected")
	return c, nil
}

// OnReconnect registers a hook invoked whenever the underlying
// connection is re-established. Used to refresh endpoint registrations
// and republish resets.
func (c *Client) OnReconnect(fn func()) {
	c.subMu.Lock()
	c.onReconnect = append(c.onReconnect, fn)
	c.subMu.Unlock()
}

func (c *Client) handleReconnect() {
	c.subMu.Lock()
	hooks := make([]func(), len(c.onReconnect))
	copy(hooks, c.onReconnect)
	c.subMu.Unlock()

	// The created-groups cache stays intact: groups survive reconnects,
	// and ReadGroup recreates any that vanished on NOGROUP.

	for _, fn := range hooks {
		go fn()
	}
}

// Append adds one entry to a stream with a server-assigned id.
func (c *Client) Append(ctx context.Context, streamKey, field, payload string) (string, error) {
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{field: payload},
	}).Result()
}

// EnsureGroup creates the consumer group (and the stream, if missing)
// idempotently. Creation is guarded by a local mutex so concurrent
// readers do not race between check and create.
func (c *Client) EnsureGroup(ctx context.Context, streamKey, group string) error {
	key := streamKey + "/" + group
	c.groupMu.Lock()
	defer c.groupMu.Unlock()
	if c.groups[key] {
		return nil
	}
	err := c.rdb.XGroupCreateMkStream(ctx, streamKey, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	c.groups[key] = true
	return nil
}

// ReadGroup reads up to count new entries for a consumer group, blocking
// up to block when the stream is empty. Missing groups are created
// transparently.
func (c *Client) ReadGroup(ctx context.Context, streamKey, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	if err := c.EnsureGroup(ctx, streamKey, group); err != nil {
		return nil, err
	}

	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{streamKey, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if strings.Contains(err.Error(), "NOGROUP") {
			// Stream or group vanished (e.g. bus flush); recreate and retry once.
			c.groupMu.Lock()
			delete(c.groups, streamKey+"/"+group)
			c.groupMu.Unlock()
			if err := c.EnsureGroup(ctx, streamKey, group); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}

	return flatten(res), nil
}

// Pending reads this consumer's unacknowledged entries from the oldest
// id forward. Called once on startup so a restarted owner re-applies
// everything it had read but not acked (at-least-once).
func (c *Client) Pending(ctx context.Context, streamKey, group, consumer string, count int64) ([]Entry, error) {
	if err := c.EnsureGroup(ctx, streamKey, group); err != nil {
		return nil, err
	}
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{streamKey, "0"},
		Count:    count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flatten(res), nil
}

func flatten(res []redis.XStream) []Entry {
	var entries []Entry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			for field, v := range msg.Values {
				payload, _ := v.(string)
				entries = append(entries, Entry{ID: msg.ID, Field: field, Payload: payload})
			}
		}
	}
	return entries
}

// Ack acknowledges one processed entry.
func (c *Client) Ack(ctx context.Context, streamKey, group, id string) error {
	return c.rdb.XAck(ctx, streamKey, group, id).Err()
}

// Publish sends a payload on a literal channel. With fireAndForget the
// result is discarded and errors are only logged.
func (c *Client) Publish(ctx context.Context, channel, payload string, fireAndForget bool) error {
	if fireAndForget {
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.rdb.Publish(bg, channel, payload).Err(); err != nil {
				c.log.Warn().Err(err).Str("channel", channel).Msg("fire-and-forget publish failed")
			}
		}()
		return nil
	}
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe registers a handler for a literal channel and returns an
// unsubscribe function. go-redis transparently resubscribes the PubSub
// after reconnect; the receive loop survives transient errors.
func (c *Client) Subscribe(ctx context.Context, channel string, handler func(payload string)) func() {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := c.rdb.Subscribe(subCtx, channel)

	sub := &subscription{pubsub: pubsub, channel: channel, cancel: cancel}
	c.subMu.Lock()
	c.subs[channel] = sub
	c.subMu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			}
		}
	}()

	return func() {
		cancel()
		if err := pubsub.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			c.log.Warn().Err(err).Str("channel", channel).Msg("pubsub close failed")
		}
		c.subMu.Lock()
		delete(c.subs, channel)
		c.subMu.Unlock()
	}
}

// ----- KV and hash primitives for the registries -----

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	return c.rdb.HSet(ctx, key, field, value).Err()
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

// HDel removes hash fields fire-and-forget: registry cleanup must not
// block disconnect paths.
func (c *Client) HDel(key string, fields ...string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.rdb.HDel(ctx, key, fields...).Err(); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("hash delete failed")
		}
	}()
}

// ErrNotFound is returned for missing keys and hash fields.
var ErrNotFound = errors.New("bus: key not found")

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	c.subMu.Lock()
	for _, sub := range c.subs {
		sub.cancel()
		_ = sub.pubsub.Close()
	}
	c.subs = make(map[string]*subscription)
	c.subMu.Unlock()
	c.log.Info().Msg("closing bus client")
	return c.rdb.Close()
}
