package database

import (
	"context"
	"encoding/json"

	"github.com/paddockcloud/lt-engine/internal/state"
)

// ArchiveSessionResult stores the final encoded payload and the raw
// snapshot for a session that has ended. Re-archiving replaces the
// prior row.
func (db *DB) ArchiveSessionResult(ctx context.Context, s *state.SessionState, payload string) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO session_results (event_id, session_id, payload, state, archived_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (event_id, session_id)
		DO UPDATE SET payload = EXCLUDED.payload, state = EXCLUDED.state, archived_at = now()`,
		s.EventID, s.SessionID, payload, blob)
	return err
}

// SessionResult returns the archived payload for a session, or false
// when none has been archived.
func (db *DB) SessionResult(ctx context.Context, eventID, sessionID int) (string, bool, error) {
	var payload string
	err := db.Pool.QueryRow(ctx, `
		SELECT payload FROM session_results
		WHERE event_id = $1 AND session_id = $2`,
		eventID, sessionID).Scan(&payload)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return payload, true, nil
}

// SessionResults lists the archived sessions for an event.
func (db *DB) SessionResults(ctx context.Context, eventID int) ([]int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT session_id FROM session_results
		WHERE event_id = $1 ORDER BY session_id`,
		eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
