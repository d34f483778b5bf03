package database

import (
	"context"
	"fmt"
)

// InitSchema creates the tables on first run. Each statement is
// idempotent so restarts against an existing database are safe.
func (db *DB) InitSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	db.log.Info().Int("statements", len(schemaStatements)).Msg("schema ready")
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id          SERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS api_clients (
		client_id        TEXT PRIMARY KEY,
		organization_id  INTEGER NOT NULL REFERENCES organizations(id),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id               INTEGER PRIMARY KEY,
		organization_id  INTEGER REFERENCES organizations(id),
		name             TEXT NOT NULL DEFAULT '',
		track_name       TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		event_id    INTEGER NOT NULL,
		session_id  INTEGER NOT NULL,
		name        TEXT NOT NULL DEFAULT '',
		is_live     BOOLEAN NOT NULL DEFAULT true,
		started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		ended_at    TIMESTAMPTZ,
		PRIMARY KEY (event_id, session_id)
	)`,

	`CREATE TABLE IF NOT EXISTS competitor_metadata (
		event_id       INTEGER NOT NULL,
		car_number     TEXT NOT NULL,
		reg_number     TEXT NOT NULL DEFAULT '',
		transponder_id INTEGER NOT NULL DEFAULT 0,
		first_name     TEXT NOT NULL DEFAULT '',
		last_name      TEXT NOT NULL DEFAULT '',
		nationality    TEXT NOT NULL DEFAULT '',
		class          TEXT NOT NULL DEFAULT '',
		additional     TEXT NOT NULL DEFAULT '',
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (event_id, car_number)
	)`,

	`CREATE TABLE IF NOT EXISTS car_lap_logs (
		id            BIGSERIAL PRIMARY KEY,
		event_id      INTEGER NOT NULL,
		session_id    INTEGER NOT NULL,
		car_number    TEXT NOT NULL,
		lap           INTEGER NOT NULL,
		lap_time_ms   BIGINT NOT NULL DEFAULT 0,
		position      INTEGER NOT NULL DEFAULT 0,
		flag          TEXT NOT NULL DEFAULT '',
		pitted        BOOLEAN NOT NULL DEFAULT false,
		recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_car_lap_logs_session
		ON car_lap_logs (event_id, session_id, car_number)`,

	`CREATE TABLE IF NOT EXISTS flag_log (
		event_id    INTEGER NOT NULL,
		session_id  INTEGER NOT NULL,
		flag        TEXT NOT NULL,
		start_time  TIMESTAMPTZ NOT NULL,
		end_time    TIMESTAMPTZ,
		PRIMARY KEY (event_id, session_id, flag, start_time)
	)`,

	`CREATE TABLE IF NOT EXISTS session_results (
		event_id    INTEGER NOT NULL,
		session_id  INTEGER NOT NULL,
		payload     TEXT NOT NULL,
		state       JSONB,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (event_id, session_id)
	)`,

	`CREATE TABLE IF NOT EXISTS x2_passings (
		id             BIGSERIAL PRIMARY KEY,
		event_id       INTEGER NOT NULL,
		session_id     INTEGER NOT NULL,
		transponder_id INTEGER NOT NULL,
		loop_id        INTEGER NOT NULL,
		loop_name      TEXT NOT NULL DEFAULT '',
		is_in_pit      BOOLEAN NOT NULL DEFAULT false,
		is_resend      BOOLEAN NOT NULL DEFAULT false,
		passed_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_x2_passings_session
		ON x2_passings (event_id, session_id, transponder_id)`,

	`CREATE TABLE IF NOT EXISTS x2_loops (
		event_id       INTEGER NOT NULL,
		loop_id        INTEGER NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		is_in_pit      BOOLEAN NOT NULL DEFAULT false,
		is_pit_startfin BOOLEAN NOT NULL DEFAULT false,
		loop_order     DOUBLE PRECISION NOT NULL DEFAULT 0,
		latitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (event_id, loop_id)
	)`,
}
