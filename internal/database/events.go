package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// UpsertEvent records an event and its owning organization.
func (db *DB) UpsertEvent(ctx context.Context, eventID, organizationID int, name, trackName string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO events (id, organization_id, name, track_name)
		VALUES ($1, NULLIF($2, 0), $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET
			organization_id = COALESCE(NULLIF($2, 0), events.organization_id),
			name            = CASE WHEN $3 <> '' THEN $3 ELSE events.name END,
			track_name      = CASE WHEN $4 <> '' THEN $4 ELSE events.track_name END`,
		eventID, organizationID, name, trackName)
	return err
}

// EventOrganization returns the organization owning an event, or false
// when the event is unknown or unowned.
func (db *DB) EventOrganization(ctx context.Context, eventID int) (int, bool, error) {
	var orgID *int
	err := db.Pool.QueryRow(ctx,
		`SELECT organization_id FROM events WHERE id = $1`,
		eventID).Scan(&orgID)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if orgID == nil {
		return 0, false, nil
	}
	return *orgID, true, nil
}

// OrganizationForClient resolves the organization an API client belongs
// to, or false for an unknown client.
func (db *DB) OrganizationForClient(ctx context.Context, clientID string) (int, bool, error) {
	var orgID int
	err := db.Pool.QueryRow(ctx,
		`SELECT organization_id FROM api_clients WHERE client_id = $1`,
		clientID).Scan(&orgID)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return orgID, true, nil
}

// FindOrCreateOrganization resolves an organization by name, creating
// it on first sight.
func (db *DB) FindOrCreateOrganization(ctx context.Context, name string) (int, error) {
	var id int
	err := db.Pool.QueryRow(ctx,
		`SELECT id FROM organizations WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNoRows(err) {
		return 0, err
	}
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`,
		name).Scan(&id)
	return id, err
}
