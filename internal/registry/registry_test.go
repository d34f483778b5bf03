package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/bus"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := bus.Connect(context.Background(), bus.Options{Addr: mr.Addr(), Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return New(c, zerolog.Nop())
}

func TestRegisterResolve(t *testing.T) {
	r := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Register(ctx, 42, "engine-1:8080"); err != nil {
		t.Fatalf("register: %v", err)
	}

	endpoint, err := r.Resolve(ctx, 42)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if endpoint != "http://engine-1:8080" {
		t.Errorf("endpoint = %q, want http scheme prefixed", endpoint)
	}
}

func TestResolveKeepsScheme(t *testing.T) {
	r := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Register(ctx, 42, "https://engine-1.example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}
	endpoint, err := r.Resolve(ctx, 42)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if endpoint != "https://engine-1.example.com" {
		t.Errorf("endpoint = %q, scheme should be preserved", endpoint)
	}
}

func TestResolveUnregistered(t *testing.T) {
	r := testRegistry(t)
	if _, err := r.Resolve(context.Background(), 99); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("err = %v, want ErrNoEndpoint", err)
	}
}

func TestUnregister(t *testing.T) {
	r := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Register(ctx, 42, "engine-1:8080"); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Unregister(ctx, 42)
	if _, err := r.Resolve(ctx, 42); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("err after unregister = %v, want ErrNoEndpoint", err)
	}
}
