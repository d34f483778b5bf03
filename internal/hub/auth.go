package hub

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/paddockcloud/lt-engine/internal/bus"
)

var (
	errTooFewArgs   = errors.New("hub: too few invocation arguments")
	errUnauthorized = errors.New("hub: unauthorized")
)

// OrgResolver is the persistence lookup behind the client cache.
type OrgResolver interface {
	OrganizationForClient(ctx context.Context, clientID string) (int, bool, error)
}

// Authorizer resolves bearer client ids to owning organizations. The
// shared KV is checked first, then the database; hits are written back
// to both the KV and a small in-process cache.
type Authorizer struct {
	bus   *bus.Client
	db    OrgResolver
	cache *lru.LRU[string, int]
	group singleflight.Group
}

func NewAuthorizer(b *bus.Client, db OrgResolver) *Authorizer {
	return &Authorizer{
		bus:   b,
		db:    db,
		cache: lru.NewLRU[string, int](256, nil, 5*time.Minute),
	}
}

// Authorize extracts the bearer client id from a request and resolves
// its organization.
func (a *Authorizer) Authorize(r *http.Request) (clientID string, orgID int, err error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		// Browsers cannot set headers on websocket dials.
		auth = "Bearer " + r.URL.Query().Get("access_token")
	}
	clientID = strings.TrimPrefix(auth, "Bearer ")
	if clientID == "" {
		return "", 0, errUnauthorized
	}

	orgID, err = a.resolve(r.Context(), clientID)
	if err != nil {
		return "", 0, err
	}
	return clientID, orgID, nil
}

func (a *Authorizer) resolve(ctx context.Context, clientID string) (int, error) {
	if orgID, ok := a.cache.Get(clientID); ok {
		return orgID, nil
	}

	v, err, _ := a.group.Do(clientID, func() (any, error) {
		if raw, err := a.bus.Get(ctx, bus.ClientIDKey(clientID)); err == nil {
			if orgID, err := strconv.Atoi(raw); err == nil {
				a.cache.Add(clientID, orgID)
				return orgID, nil
			}
		}

		orgID, ok, err := a.db.OrganizationForClient(ctx, clientID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errUnauthorized
		}

		a.cache.Add(clientID, orgID)
		_ = a.bus.Set(ctx, bus.ClientIDKey(clientID), strconv.Itoa(orgID), time.Hour)
		return orgID, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
