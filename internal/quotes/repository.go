package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fieldops_backend/platform/db"

	"github.com/google/uuid"
)

const quoteColumns = `id, contact_id, property_id, lead_id, status, services, add_ons, zone_id,
    services_total_cents, add_ons_total_cents, travel_fee_cents, discount_cents, subtotal_cents, total_cents,
    deposit_rate::float8, deposit_due_cents, balance_due_cents, line_items, share_token, expires_at, sent_at,
    decision_at, decision_notes, job_appointment_id, created_at, updated_at`

// Repository is the Postgres store for quotes.
type Repository struct{}

// NewRepository creates a Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func scanQuote(row interface{ Scan(dest ...any) error }) (Quote, error) {
	var q Quote
	var lineItems []byte
	err := row.Scan(&q.ID, &q.ContactID, &q.PropertyID, &q.LeadID, &q.Status, &q.Services, &q.AddOns, &q.ZoneID,
		&q.ServicesTotalCents, &q.AddOnsTotalCents, &q.TravelFeeCents, &q.DiscountCents, &q.SubtotalCents, &q.TotalCents,
		&q.DepositRate, &q.DepositDueCents, &q.BalanceDueCents, &lineItems, &q.ShareToken, &q.ExpiresAt, &q.SentAt,
		&q.DecisionAt, &q.DecisionNotes, &q.JobAppointmentID, &q.CreatedAt, &q.UpdatedAt)
	if db.IsNoRows(err) {
		return Quote{}, ErrNotFound
	}
	if err != nil {
		return Quote{}, err
	}
	if err := json.Unmarshal(lineItems, &q.LineItems); err != nil {
		return Quote{}, fmt.Errorf("decode line items: %w", err)
	}
	return q, nil
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (r *Repository) Insert(ctx context.Context, q db.DBTX, quote Quote) error {
	lineItems, err := json.Marshal(quote.LineItems)
	if err != nil {
		return fmt.Errorf("encode line items: %w", err)
	}
	addOns := quote.AddOns
	if addOns == nil {
		addOns = []string{}
	}
	_, err = q.Exec(ctx, `
    INSERT INTO quotes (id, contact_id, property_id, lead_id, status, services, add_ons, zone_id,
        services_total_cents, add_ons_total_cents, travel_fee_cents, discount_cents, subtotal_cents, total_cents,
        deposit_rate, deposit_due_cents, balance_due_cents, line_items, share_token, expires_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
  `, quote.ID, quote.ContactID, quote.PropertyID, quote.LeadID, quote.Status, quote.Services, addOns, quote.ZoneID,
		quote.ServicesTotalCents, quote.AddOnsTotalCents, quote.TravelFeeCents, quote.DiscountCents, quote.SubtotalCents,
		quote.TotalCents, quote.DepositRate, quote.DepositDueCents, quote.BalanceDueCents, lineItems, quote.ShareToken,
		quote.ExpiresAt)
	return err
}

func (r *Repository) GetByID(ctx context.Context, q db.DBTX, id uuid.UUID, forUpdate bool) (Quote, error) {
	return scanQuote(q.QueryRow(ctx, `
    SELECT `+quoteColumns+`
    FROM quotes
    WHERE id = $1`+lockClause(forUpdate), id))
}

func (r *Repository) GetByShareToken(ctx context.Context, q db.DBTX, token string, forUpdate bool) (Quote, error) {
	return scanQuote(q.QueryRow(ctx, `
    SELECT `+quoteColumns+`
    FROM quotes
    WHERE share_token = $1`+lockClause(forUpdate), token))
}

func (r *Repository) MarkSent(ctx context.Context, q db.DBTX, id uuid.UUID, sentAt time.Time) error {
	_, err := q.Exec(ctx, `
    UPDATE quotes
    SET status = 'sent', sent_at = $2, updated_at = now()
    WHERE id = $1
  `, id, sentAt)
	return err
}

// RecordDecision sets the decision once; a row that already has one is not
// touched and false is returned.
func (r *Repository) RecordDecision(ctx context.Context, q db.DBTX, id uuid.UUID, status string, at time.Time, notes *string) (bool, error) {
	tag, err := q.Exec(ctx, `
    UPDATE quotes
    SET status = $2, decision_at = $3, decision_notes = $4, updated_at = now()
    WHERE id = $1 AND decision_at IS NULL
  `, id, status, at, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) SetJobAppointment(ctx context.Context, q db.DBTX, id, appointmentID uuid.UUID) error {
	_, err := q.Exec(ctx, `
    UPDATE quotes
    SET job_appointment_id = $2, updated_at = now()
    WHERE id = $1
  `, id, appointmentID)
	return err
}
