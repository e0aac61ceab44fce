package appointments

import (
	"context"
	"time"

	"fieldops_backend/platform/db"

	"github.com/google/uuid"
)

const appointmentColumns = `id, contact_id, property_id, lead_id, type, start_at, duration_minutes,
    travel_buffer_minutes, status, reschedule_token, calendar_event_id, notes, created_at, updated_at`

// Repository is the Postgres store for appointments.
type Repository struct{}

// NewRepository creates a Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func scanAppointment(row interface{ Scan(dest ...any) error }) (Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ContactID, &a.PropertyID, &a.LeadID, &a.Type, &a.StartAt, &a.DurationMinutes,
		&a.TravelBufferMinutes, &a.Status, &a.RescheduleToken, &a.CalendarEventID, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return Appointment{}, ErrNotFound
	}
	return a, err
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (r *Repository) Insert(ctx context.Context, q db.DBTX, a Appointment) error {
	_, err := q.Exec(ctx, `
    INSERT INTO appointments (id, contact_id, property_id, lead_id, type, start_at, duration_minutes,
        travel_buffer_minutes, status, reschedule_token, notes)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
  `, a.ID, a.ContactID, a.PropertyID, a.LeadID, a.Type, a.StartAt, a.DurationMinutes,
		a.TravelBufferMinutes, a.Status, a.RescheduleToken, a.Notes)
	return err
}

func (r *Repository) GetByID(ctx context.Context, q db.DBTX, id uuid.UUID, forUpdate bool) (Appointment, error) {
	return scanAppointment(q.QueryRow(ctx, `
    SELECT `+appointmentColumns+`
    FROM appointments
    WHERE id = $1`+lockClause(forUpdate), id))
}

func (r *Repository) GetByToken(ctx context.Context, q db.DBTX, token string, forUpdate bool) (Appointment, error) {
	return scanAppointment(q.QueryRow(ctx, `
    SELECT `+appointmentColumns+`
    FROM appointments
    WHERE reschedule_token = $1`+lockClause(forUpdate), token))
}

func (r *Repository) UpdateStatus(ctx context.Context, q db.DBTX, id uuid.UUID, status, notes string) error {
	_, err := q.Exec(ctx, `
    UPDATE appointments
    SET status = $2,
        notes = CASE WHEN $3 = '' THEN notes ELSE $3 END,
        updated_at = now()
    WHERE id = $1
  `, id, status, notes)
	return err
}

func (r *Repository) UpdateTiming(ctx context.Context, q db.DBTX, id uuid.UUID, startAt *time.Time, durationMinutes int, status string) error {
	_, err := q.Exec(ctx, `
    UPDATE appointments
    SET start_at = $2, duration_minutes = $3, status = $4, calendar_event_id = NULL, updated_at = now()
    WHERE id = $1
  `, id, startAt, durationMinutes, status)
	return err
}

// Cancel sets the canceled status and clears the calendar reference.
func (r *Repository) Cancel(ctx context.Context, q db.DBTX, id uuid.UUID, notes string) error {
	_, err := q.Exec(ctx, `
    UPDATE appointments
    SET status = 'canceled',
        calendar_event_id = NULL,
        notes = CASE WHEN $2 = '' THEN notes ELSE $2 END,
        updated_at = now()
    WHERE id = $1
  `, id, notes)
	return err
}

// DetachQuotes nulls every quote's job reference to the appointment.
func (r *Repository) DetachQuotes(ctx context.Context, q db.DBTX, id uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
    UPDATE quotes
    SET job_appointment_id = NULL, updated_at = now()
    WHERE job_appointment_id = $1
  `, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetCalendarEvent attaches an external calendar id unless the appointment
// was canceled in the meantime.
func (r *Repository) SetCalendarEvent(ctx context.Context, q db.DBTX, id uuid.UUID, externalID string) (bool, error) {
	tag, err := q.Exec(ctx, `
    UPDATE appointments
    SET calendar_event_id = $2, updated_at = now()
    WHERE id = $1 AND status <> 'canceled'
  `, id, externalID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
