package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/bus"
)

func TestDecodeArgs(t *testing.T) {
	inv := Invocation{
		Target: "Subscribe",
		Arguments: []json.RawMessage{
			json.RawMessage(`42`),
			json.RawMessage(`"extra"`),
		},
	}

	var eventID int
	if err := decodeArgs(inv, &eventID); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if eventID != 42 {
		t.Errorf("eventID = %d", eventID)
	}

	var s string
	if err := decodeArgs(inv, &eventID, &s, &s); !errors.Is(err, errTooFewArgs) {
		t.Errorf("err = %v, want errTooFewArgs", err)
	}

	bad := Invocation{Arguments: []json.RawMessage{json.RawMessage(`"not a number"`)}}
	if err := decodeArgs(bad, &eventID); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestMarshalInvocation(t *testing.T) {
	raw, err := marshalInvocation("ReceiveSessionPatch", map[string]int{"lapsToGo": 12})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var inv Invocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if inv.Target != "ReceiveSessionPatch" || len(inv.Arguments) != 1 {
		t.Errorf("invocation = %+v", inv)
	}
	var arg map[string]int
	if err := json.Unmarshal(inv.Arguments[0], &arg); err != nil || arg["lapsToGo"] != 12 {
		t.Errorf("argument = %s", inv.Arguments[0])
	}
}

type fakeOrgResolver struct {
	orgs  map[string]int
	calls int
}

func (f *fakeOrgResolver) OrganizationForClient(_ context.Context, clientID string) (int, bool, error) {
	f.calls++
	orgID, ok := f.orgs[clientID]
	return orgID, ok, nil
}

func newTestAuthorizer(t *testing.T, db OrgResolver) (*Authorizer, *bus.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := bus.Connect(context.Background(), bus.Options{Addr: mr.Addr(), Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return NewAuthorizer(c, db), c
}

func TestAuthorize(t *testing.T) {
	t.Run("header_token_resolves_via_db", func(t *testing.T) {
		db := &fakeOrgResolver{orgs: map[string]int{"client-abc": 7}}
		a, c := newTestAuthorizer(t, db)

		r := httptest.NewRequest("GET", "/ws/status", nil)
		r.Header.Set("Authorization", "Bearer client-abc")

		clientID, orgID, err := a.Authorize(r)
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if clientID != "client-abc" || orgID != 7 {
			t.Errorf("resolved = %q org %d", clientID, orgID)
		}

		// The hit is written back to the shared KV.
		deadline := time.Now().Add(time.Second)
		for {
			if v, err := c.Get(context.Background(), bus.ClientIDKey("client-abc")); err == nil && v == "7" {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("KV write-back never happened")
			}
			time.Sleep(10 * time.Millisecond)
		}

		// Second call is served from the in-process cache.
		if _, _, err := a.Authorize(r); err != nil {
			t.Fatalf("authorize again: %v", err)
		}
		if db.calls != 1 {
			t.Errorf("db lookups = %d, want 1", db.calls)
		}
	})

	t.Run("query_param_fallback", func(t *testing.T) {
		db := &fakeOrgResolver{orgs: map[string]int{"client-abc": 7}}
		a, _ := newTestAuthorizer(t, db)

		r := httptest.NewRequest("GET", "/ws/status?access_token=client-abc", nil)
		clientID, orgID, err := a.Authorize(r)
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if clientID != "client-abc" || orgID != 7 {
			t.Errorf("resolved = %q org %d", clientID, orgID)
		}
	})

	t.Run("kv_hit_skips_db", func(t *testing.T) {
		db := &fakeOrgResolver{}
		a, c := newTestAuthorizer(t, db)
		if err := c.Set(context.Background(), bus.ClientIDKey("client-xyz"), "9", time.Hour); err != nil {
			t.Fatalf("seed kv: %v", err)
		}

		r := httptest.NewRequest("GET", "/ws/status", nil)
		r.Header.Set("Authorization", "Bearer client-xyz")
		_, orgID, err := a.Authorize(r)
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if orgID != 9 || db.calls != 0 {
			t.Errorf("org = %d, db calls = %d", orgID, db.calls)
		}
	})

	t.Run("missing_token", func(t *testing.T) {
		a, _ := newTestAuthorizer(t, &fakeOrgResolver{})
		r := httptest.NewRequest("GET", "/ws/status", nil)
		if _, _, err := a.Authorize(r); !errors.Is(err, errUnauthorized) {
			t.Errorf("err = %v, want errUnauthorized", err)
		}
	})

	t.Run("unknown_client", func(t *testing.T) {
		a, _ := newTestAuthorizer(t, &fakeOrgResolver{})
		r := httptest.NewRequest("GET", "/ws/status", nil)
		r.Header.Set("Authorization", "Bearer nobody")
		if _, _, err := a.Authorize(r); !errors.Is(err, errUnauthorized) {
			t.Errorf("err = %v, want errUnauthorized", err)
		}
	})
}
