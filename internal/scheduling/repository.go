package scheduling

import (
	"context"
	"time"

	"fieldops_backend/platform/db"
)

// Repository reads the appointment calendar.
type Repository struct{}

// NewRepository creates a Repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Upcoming lists requested or confirmed appointments starting in [from, to),
// earliest first, joined with their property's address and coordinates.
func (r *Repository) Upcoming(ctx context.Context, q db.DBTX, from, to time.Time, limit int) ([]Candidate, error) {
	rows, err := q.Query(ctx, `
    SELECT a.id, a.type, a.status, a.start_at, a.duration_minutes, a.travel_buffer_minutes,
        p.address_line1, p.city, p.state, p.postal_code, p.lat, p.lng
    FROM appointments a
    JOIN properties p ON p.id = a.property_id
    WHERE a.status IN ('requested', 'confirmed')
      AND a.start_at >= $1 AND a.start_at < $2
    ORDER BY a.start_at
    LIMIT $3
  `, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var line1, city, state, postal string
		if err := rows.Scan(&c.AppointmentID, &c.Type, &c.Status, &c.StartAt, &c.DurationMinutes,
			&c.TravelBufferMinutes, &line1, &city, &state, &postal, &c.Lat, &c.Lng); err != nil {
			return nil, err
		}
		c.Address = line1 + ", " + city + ", " + state + " " + postal
		out = append(out, c)
	}
	return out, rows.Err()
}
