package contacts

import (
	"context"

	"fieldops_backend/platform/db"

	"github.com/google/uuid"
)

const contactColumns = `id, first_name, last_name, email, phone_raw, phone_e164, source, created_at, updated_at`

const propertyColumns = `id, contact_id, address_line1, address_line2, city, state, postal_code,
    lat::float8, lng::float8, gated, created_at, updated_at`

// Repository is the Postgres store for contacts, properties and CRM stages.
type Repository struct{}

// NewRepository creates a Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func scanContact(row interface{ Scan(dest ...any) error }) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneRaw, &c.PhoneE164, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanProperty(row interface{ Scan(dest ...any) error }) (Property, error) {
	var p Property
	err := row.Scan(&p.ID, &p.ContactID, &p.AddressLine1, &p.AddressLine2, &p.City, &p.State, &p.PostalCode,
		&p.Lat, &p.Lng, &p.Gated, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) FindContactByEmail(ctx context.Context, q db.DBTX, email string) (Contact, error) {
	c, err := scanContact(q.QueryRow(ctx, `
    SELECT `+contactColumns+`
    FROM contacts
    WHERE lower(email) = lower($1)
  `, email))
	if db.IsNoRows(err) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *Repository) FindContactByPhone(ctx context.Context, q db.DBTX, e164 string) (Contact, error) {
	c, err := scanContact(q.QueryRow(ctx, `
    SELECT `+contactColumns+`
    FROM contacts
    WHERE phone_e164 = $1
  `, e164))
	if db.IsNoRows(err) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *Repository) GetContact(ctx context.Context, q db.DBTX, id uuid.UUID) (Contact, error) {
	c, err := scanContact(q.QueryRow(ctx, `
    SELECT `+contactColumns+`
    FROM contacts
    WHERE id = $1
  `, id))
	if db.IsNoRows(err) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *Repository) InsertContact(ctx context.Context, q db.DBTX, c Contact) (Contact, error) {
	return scanContact(q.QueryRow(ctx, `
    INSERT INTO contacts (id, first_name, last_name, email, phone_raw, phone_e164, source)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING `+contactColumns+`
  `, c.ID, c.FirstName, c.LastName, c.Email, c.PhoneRaw, c.PhoneE164, c.Source))
}

// UpdateContact refreshes name and phone. Email is only written when the row
// has none, so an existing address is never replaced.
func (r *Repository) UpdateContact(ctx context.Context, q db.DBTX, c Contact) (Contact, error) {
	updated, err := scanContact(q.QueryRow(ctx, `
    UPDATE contacts
    SET first_name = $2,
        last_name = $3,
        email = COALESCE(email, $4),
        phone_raw = COALESCE($5, phone_raw),
        phone_e164 = COALESCE($6, phone_e164),
        updated_at = now()
    WHERE id = $1
    RETURNING `+contactColumns+`
  `, c.ID, c.FirstName, c.LastName, c.Email, c.PhoneRaw, c.PhoneE164))
	if db.IsNoRows(err) {
		return Contact{}, ErrNotFound
	}
	return updated, err
}

// ClaimProperty inserts the address or, when the address tuple already
// exists, re-points it at p.ContactID and refreshes city and gated. Address
// fields of an existing row are left untouched; coordinates are only
// backfilled.
func (r *Repository) ClaimProperty(ctx context.Context, q db.DBTX, p Property) (Property, error) {
	return scanProperty(q.QueryRow(ctx, `
    INSERT INTO properties (id, contact_id, address_line1, address_line2, city, state, postal_code, lat, lng, gated)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    ON CONFLICT (address_line1, postal_code, state) DO UPDATE
    SET contact_id = EXCLUDED.contact_id,
        city = EXCLUDED.city,
        gated = EXCLUDED.gated,
        lat = COALESCE(properties.lat, EXCLUDED.lat),
        lng = COALESCE(properties.lng, EXCLUDED.lng),
        updated_at = now()
    RETURNING `+propertyColumns+`
  `, p.ID, p.ContactID, p.AddressLine1, p.AddressLine2, p.City, p.State, p.PostalCode, p.Lat, p.Lng, p.Gated))
}

func (r *Repository) GetProperty(ctx context.Context, q db.DBTX, id uuid.UUID) (Property, error) {
	p, err := scanProperty(q.QueryRow(ctx, `
    SELECT `+propertyColumns+`
    FROM properties
    WHERE id = $1
  `, id))
	if db.IsNoRows(err) {
		return Property{}, ErrNotFound
	}
	return p, err
}

// UpsertStage writes the contact's current CRM stage.
func (r *Repository) UpsertStage(ctx context.Context, q db.DBTX, contactID uuid.UUID, stage string) error {
	_, err := q.Exec(ctx, `
    INSERT INTO crm_stages (contact_id, stage)
    VALUES ($1, $2)
    ON CONFLICT (contact_id) DO UPDATE
    SET stage = EXCLUDED.stage, updated_at = now()
  `, contactID, stage)
	return err
}
