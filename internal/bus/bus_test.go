package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := Connect(context.Background(), Options{Addr: mr.Addr(), Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEnsureGroupColdStart(t *testing.T) {
	c := testClient(t)
	c.OnReconnect(func() {})

	// Group creation can dial fresh pool connections; the connect hook
	// must not block the command that triggered the dial.
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.EnsureGroup(context.Background(), EventStream(7), "engine")
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("EnsureGroup never returned")
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ensure group: %v", err)
		}
	}

	entries, err := c.ReadGroup(context.Background(), EventStream(7), "engine", "worker-1", 1, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read after ensure: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("fresh group returned entries: %+v", entries)
	}
}

func TestStreamReadAck(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	stream := EventStream(42)

	field := FieldTag(TypeRMonitor, 42, 3)
	if _, err := c.Append(ctx, stream, field, `$F,14,"00:12:45","13:34:23","00:09:47","Green"`); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := c.ReadGroup(ctx, stream, "engine", "worker-1", 10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Field != field {
		t.Errorf("field = %q, want %q", entries[0].Field, field)
	}

	// Unacked entries replay on a restart-style pending read.
	pending, err := c.Pending(ctx, stream, "engine", "worker-1", 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != entries[0].ID {
		t.Fatalf("pending = %+v, want the unacked entry", pending)
	}

	if err := c.Ack(ctx, stream, "engine", entries[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	pending, err = c.Pending(ctx, stream, "engine", "worker-1", 10)
	if err != nil {
		t.Fatalf("pending after ack: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after ack = %+v, want none", pending)
	}
}

func TestEnsureGroupIdempotent(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.EnsureGroup(ctx, EventStream(42), "engine"); err != nil {
			t.Fatalf("ensure group (call %d): %v", i+1, err)
		}
	}
}

func TestReadGroupEmpty(t *testing.T) {
	c := testClient(t)
	entries, err := c.ReadGroup(context.Background(), EventStream(42), "engine", "worker-1", 10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %+v, want none", entries)
	}
}

func TestKeyValue(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("get missing = %v, want ErrNotFound", err)
	}
	if err := c.Set(ctx, EventEndpoint(42), "http://engine-1:8080", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := c.Get(ctx, EventEndpoint(42))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "http://engine-1:8080" {
		t.Errorf("value = %q", v)
	}
	if err := c.Del(ctx, EventEndpoint(42)); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := c.Get(ctx, EventEndpoint(42)); err != ErrNotFound {
		t.Errorf("get after del = %v, want ErrNotFound", err)
	}
}

func TestHashes(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	key := StatusEventConnections(42)

	if err := c.HSet(ctx, key, "conn-1", `{"group":"v2"}`); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if err := c.HSet(ctx, key, "conn-2", `{"group":"legacy"}`); err != nil {
		t.Fatalf("hset: %v", err)
	}

	v, err := c.HGet(ctx, key, "conn-1")
	if err != nil || v != `{"group":"v2"}` {
		t.Errorf("hget = %q, %v", v, err)
	}
	if _, err := c.HGet(ctx, key, "conn-9"); err != ErrNotFound {
		t.Errorf("hget missing = %v, want ErrNotFound", err)
	}

	all, err := c.HGetAll(ctx, key)
	if err != nil || len(all) != 2 {
		t.Fatalf("hgetall = %v, %v", all, err)
	}

	c.HDel(key, "conn-1")
	deadline := time.Now().Add(time.Second)
	for {
		all, err = c.HGetAll(ctx, key)
		if err != nil {
			t.Fatalf("hgetall: %v", err)
		}
		if len(all) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("hdel never applied, hash = %v", all)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPubSub(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	unsub := c.Subscribe(ctx, ChannelFullStatus, func(payload string) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	})
	defer unsub()

	time.Sleep(50 * time.Millisecond)
	if err := c.Publish(ctx, ChannelFullStatus, `{"eventId":42}`, false); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never received the message")
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	if got[0] != `{"eventId":42}` {
		t.Errorf("payload = %q", got[0])
	}
	mu.Unlock()
}

func TestFieldTag(t *testing.T) {
	tag := FieldTag(TypeMultiloop, 42, 7)
	if tag != "multiloop-42-7" {
		t.Errorf("tag = %q", tag)
	}

	msgType, eventID, sessionID, err := ParseFieldTag(tag)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msgType != TypeMultiloop || eventID != 42 || sessionID != 7 {
		t.Errorf("parsed = %s %d %d", msgType, eventID, sessionID)
	}

	for _, bad := range []string{"", "rmon-42", "rmon-x-1", "rmon-1-y", "a-b-c-d"} {
		if _, _, _, err := ParseFieldTag(bad); err == nil {
			t.Errorf("ParseFieldTag(%q) should fail", bad)
		}
	}
}
