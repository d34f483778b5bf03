package database

import (
	"context"
	"time"
)

// InsertSessionIfMissing records a session the first time it is seen
// and marks every other session of the event as no longer live.
func (db *DB) InsertSessionIfMissing(ctx context.Context, eventID, sessionID int, name string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO sessions (event_id, session_id, name, is_live)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (event_id, session_id)
		DO UPDATE SET is_live = true, name = EXCLUDED.name`,
		eventID, sessionID, name)
	if err != nil {
		return err
	}

	_, err = db.Pool.Exec(ctx, `
		UPDATE sessions SET is_live = false
		WHERE event_id = $1 AND session_id <> $2 AND is_live`,
		eventID, sessionID)
	return err
}

// EndSession closes out a live session.
func (db *DB) EndSession(ctx context.Context, eventID, sessionID int, endedAt time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE sessions SET is_live = false, ended_at = $3
		WHERE event_id = $1 AND session_id = $2`,
		eventID, sessionID, endedAt)
	return err
}

// LiveSession returns the currently live session id for an event, or
// false when none is live.
func (db *DB) LiveSession(ctx context.Context, eventID int) (int, bool, error) {
	var sessionID int
	err := db.Pool.QueryRow(ctx, `
		SELECT session_id FROM sessions
		WHERE event_id = $1 AND is_live
		ORDER BY started_at DESC LIMIT 1`,
		eventID).Scan(&sessionID)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return sessionID, true, nil
}
