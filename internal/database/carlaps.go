package database

import (
	"context"

	"github.com/paddockcloud/lt-engine/internal/state"
)

// InsertCarLap snapshots a car record at lap completion.
func (db *DB) InsertCarLap(ctx context.Context, car state.CarPosition) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO car_lap_logs
			(event_id, session_id, car_number, lap, lap_time_ms, position, flag, pitted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		car.EventID, car.SessionID, car.Number, car.LastLapCompleted,
		car.LastLapTimeMs, car.OverallPosition, car.TrackFlag, car.LapIncludedPit)
	return err
}

// CarLap is one recorded lap snapshot.
type CarLap struct {
	Lap       int    `json:"lap"`
	LapTimeMs int64  `json:"lapTime"`
	Position  int    `json:"position"`
	Flag      string `json:"flag,omitempty"`
	Pitted    bool   `json:"pitted"`
}

// CarLaps returns the lap history for one car in a session.
func (db *DB) CarLaps(ctx context.Context, eventID, sessionID int, carNumber string) ([]CarLap, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT lap, lap_time_ms, position, flag, pitted
		FROM car_lap_logs
		WHERE event_id = $1 AND session_id = $2 AND car_number = $3
		ORDER BY lap`,
		eventID, sessionID, carNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CarLap
	for rows.Next() {
		var l CarLap
		if err := rows.Scan(&l.Lap, &l.LapTimeMs, &l.Position, &l.Flag, &l.Pitted); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
