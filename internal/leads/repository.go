package leads

import (
	"context"

	"fieldops_backend/platform/db"

	"github.com/google/uuid"
)

const leadColumns = `id, contact_id, property_id, services, notes, status,
    COALESCE(utm_source, ''), COALESCE(utm_medium, ''), COALESCE(utm_campaign, ''), COALESCE(referrer, ''),
    form_snapshot, created_at, updated_at`

// Repository is the Postgres store for leads.
type Repository struct{}

// NewRepository creates a Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func scanLead(row interface{ Scan(dest ...any) error }) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.ContactID, &l.PropertyID, &l.Services, &l.Notes, &l.Status,
		&l.Attribution.UTMSource, &l.Attribution.UTMMedium, &l.Attribution.UTMCampaign, &l.Attribution.Referrer,
		&l.FormSnapshot, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Insert stores a new lead.
func (r *Repository) Insert(ctx context.Context, q db.DBTX, l Lead) error {
	snapshot := l.FormSnapshot
	if len(snapshot) == 0 {
		snapshot = []byte("{}")
	}
	_, err := q.Exec(ctx, `
    INSERT INTO leads (id, contact_id, property_id, services, notes, status,
        utm_source, utm_medium, utm_campaign, referrer, form_snapshot)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
  `, l.ID, l.ContactID, l.PropertyID, l.Services, l.Notes, l.Status,
		nullable(l.Attribution.UTMSource), nullable(l.Attribution.UTMMedium),
		nullable(l.Attribution.UTMCampaign), nullable(l.Attribution.Referrer), snapshot)
	return err
}

// GetByID loads a lead.
func (r *Repository) GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (Lead, error) {
	l, err := scanLead(q.QueryRow(ctx, `
    SELECT `+leadColumns+`
    FROM leads
    WHERE id = $1
  `, id))
	if db.IsNoRows(err) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

// UpdateStatus sets the lead status.
func (r *Repository) UpdateStatus(ctx context.Context, q db.DBTX, id uuid.UUID, status string) error {
	tag, err := q.Exec(ctx, `
    UPDATE leads
    SET status = $2, updated_at = now()
    WHERE id = $1
  `, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestForContact returns the most recent lead for a contact.
func (r *Repository) LatestForContact(ctx context.Context, q db.DBTX, contactID uuid.UUID) (Lead, error) {
	l, err := scanLead(q.QueryRow(ctx, `
    SELECT `+leadColumns+`
    FROM leads
    WHERE contact_id = $1
    ORDER BY created_at DESC
    LIMIT 1
  `, contactID))
	if db.IsNoRows(err) {
		return Lead{}, ErrNotFound
	}
	return l, err
}
