package database

import (
	"context"
)

// CompetitorMetadata is one roster row keyed by event and car number.
type CompetitorMetadata struct {
	EventID       int    `json:"eventId"`
	CarNumber     string `json:"carNumber"`
	RegNumber     string `json:"regNumber,omitempty"`
	TransponderID int    `json:"transponderId,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Nationality   string `json:"nationality,omitempty"`
	Class         string `json:"class,omitempty"`
	Additional    string `json:"additional,omitempty"`
}

// UpsertCompetitor stores roster metadata, last update wins.
func (db *DB) UpsertCompetitor(ctx context.Context, m CompetitorMetadata) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO competitor_metadata
			(event_id, car_number, reg_number, transponder_id,
			 first_name, last_name, nationality, class, additional, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (event_id, car_number)
		DO UPDATE SET
			reg_number     = EXCLUDED.reg_number,
			transponder_id = EXCLUDED.transponder_id,
			first_name     = EXCLUDED.first_name,
			last_name      = EXCLUDED.last_name,
			nationality    = EXCLUDED.nationality,
			class          = EXCLUDED.class,
			additional     = EXCLUDED.additional,
			updated_at     = now()`,
		m.EventID, m.CarNumber, m.RegNumber, m.TransponderID,
		m.FirstName, m.LastName, m.Nationality, m.Class, m.Additional)
	return err
}

// Competitors returns the full roster for an event.
func (db *DB) Competitors(ctx context.Context, eventID int) ([]CompetitorMetadata, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT event_id, car_number, reg_number, transponder_id,
		       first_name, last_name, nationality, class, additional
		FROM competitor_metadata
		WHERE event_id = $1
		ORDER BY car_number`,
		eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CompetitorMetadata
	for rows.Next() {
		var m CompetitorMetadata
		if err := rows.Scan(&m.EventID, &m.CarNumber, &m.RegNumber, &m.TransponderID,
			&m.FirstName, &m.LastName, &m.Nationality, &m.Class, &m.Additional); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
