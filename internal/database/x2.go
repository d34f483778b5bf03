package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/paddockcloud/lt-engine/internal/protocol/x2"
)

// InsertPassings stores a batch of transponder passings.
func (db *DB) InsertPassings(ctx context.Context, eventID, sessionID int, passings []x2.Passing) error {
	if len(passings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range passings {
		batch.Queue(`
			INSERT INTO x2_passings
				(event_id, session_id, transponder_id, loop_id,
				 loop_name, is_in_pit, is_resend, passed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			eventID, sessionID, p.TransponderID, p.LoopID,
			p.LoopName, p.IsInPit, p.IsResend, p.Timestamp)
	}
	return db.Pool.SendBatch(ctx, batch).Close()
}

// ReplaceLoops rewrites the loop topology for an event.
func (db *DB) ReplaceLoops(ctx context.Context, eventID int, loops []x2.Loop) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM x2_loops WHERE event_id = $1`, eventID); err != nil {
		return err
	}
	for _, l := range loops {
		if _, err := tx.Exec(ctx, `
			INSERT INTO x2_loops
				(event_id, loop_id, name, is_in_pit, is_pit_startfin,
				 loop_order, latitude, longitude)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			eventID, l.ID, l.Name, l.IsInPit, l.IsPitStartFin,
			l.Order, l.Latitude, l.Longitude); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Loops returns the stored loop topology for an event.
func (db *DB) Loops(ctx context.Context, eventID int) ([]x2.Loop, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT loop_id, name, is_in_pit, is_pit_startfin, loop_order, latitude, longitude
		FROM x2_loops WHERE event_id = $1 ORDER BY loop_order`,
		eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []x2.Loop
	for rows.Next() {
		var l x2.Loop
		if err := rows.Scan(&l.ID, &l.Name, &l.IsInPit, &l.IsPitStartFin,
			&l.Order, &l.Latitude, &l.Longitude); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
