package database

import (
	"context"

	"github.com/paddockcloud/lt-engine/internal/state"
)

// InsertFlagDuration records one flag interval. An open interval is
// written with a null end time and finalized when the flag closes.
func (db *DB) InsertFlagDuration(ctx context.Context, eventID, sessionID int, d state.FlagDuration) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO flag_log (event_id, session_id, flag, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, session_id, flag, start_time)
		DO UPDATE SET end_time = EXCLUDED.end_time`,
		eventID, sessionID, d.Flag, d.StartTime, d.EndTime)
	return err
}

// FlagDurations returns the recorded flag history for a session.
func (db *DB) FlagDurations(ctx context.Context, eventID, sessionID int) ([]state.FlagDuration, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT flag, start_time, end_time
		FROM flag_log
		WHERE event_id = $1 AND session_id = $2
		ORDER BY start_time`,
		eventID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []state.FlagDuration
	for rows.Next() {
		var d state.FlagDuration
		if err := rows.Scan(&d.Flag, &d.StartTime, &d.EndTime); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
