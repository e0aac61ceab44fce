package contacts

import (
	"context"
	"errors"
	"math"
	"strings"

	"fieldops_backend/platform/apperr"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the persistence the Directory needs.
type Store interface {
	FindContactByEmail(ctx context.Context, q db.DBTX, email string) (Contact, error)
	FindContactByPhone(ctx context.Context, q db.DBTX, e164 string) (Contact, error)
	InsertContact(ctx context.Context, q db.DBTX, c Contact) (Contact, error)
	UpdateContact(ctx context.Context, q db.DBTX, c Contact) (Contact, error)
	ClaimProperty(ctx context.Context, q db.DBTX, p Property) (Property, error)
}

// Directory resolves submissions to existing or new contacts and properties.
type Directory struct {
	store  Store
	region string
}

// NewDirectory creates a Directory that parses phones in region.
func NewDirectory(store Store, region string) *Directory {
	if region == "" {
		region = phone.DefaultRegion
	}
	return &Directory{store: store, region: region}
}

// UpsertContact matches by email first, then by normalized phone, and
// inserts when neither matches. A match refreshes name and phone and only
// backfills a missing email.
func (d *Directory) UpsertContact(ctx context.Context, q db.DBTX, id Identity) (Contact, error) {
	const op = "contacts.UpsertContact"

	candidate, err := d.normalizeIdentity(id)
	if err != nil {
		return Contact{}, err
	}

	existing, err := d.match(ctx, q, candidate)
	switch {
	case err == nil:
		candidate.ID = existing.ID
		if candidate.FirstName == "" {
			candidate.FirstName = existing.FirstName
			candidate.LastName = existing.LastName
		}
		updated, err := d.store.UpdateContact(ctx, q, candidate)
		if err != nil {
			return Contact{}, translate(op, err)
		}
		return updated, nil
	case errors.Is(err, ErrNotFound):
		candidate.ID = uuid.New()
		inserted, err := d.store.InsertContact(ctx, q, candidate)
		if err != nil {
			return Contact{}, translate(op, err)
		}
		return inserted, nil
	default:
		return Contact{}, translate(op, err)
	}
}

// CheckIdentity reports the validation error UpsertContact would return for
// id, without touching the store.
func (d *Directory) CheckIdentity(id Identity) error {
	_, err := d.normalizeIdentity(id)
	return err
}

func (d *Directory) match(ctx context.Context, q db.DBTX, c Contact) (Contact, error) {
	if c.Email != nil {
		found, err := d.store.FindContactByEmail(ctx, q, *c.Email)
		if !errors.Is(err, ErrNotFound) {
			return found, err
		}
	}
	if c.PhoneE164 != nil {
		return d.store.FindContactByPhone(ctx, q, *c.PhoneE164)
	}
	return Contact{}, ErrNotFound
}

func (d *Directory) normalizeIdentity(id Identity) (Contact, error) {
	c := Contact{
		FirstName: strings.TrimSpace(id.FirstName),
		LastName:  strings.TrimSpace(id.LastName),
		Source:    strings.TrimSpace(id.Source),
	}
	if c.Source == "" {
		c.Source = "web"
	}

	if email := strings.ToLower(strings.TrimSpace(id.Email)); email != "" {
		c.Email = &email
	}

	if raw := strings.TrimSpace(id.Phone); raw != "" {
		e164, err := phone.NormalizeE164(raw, d.region)
		if err != nil {
			return Contact{}, apperr.Wrap(apperr.KindValidation, "phone number could not be parsed", err).
				WithReason(apperr.ReasonInvalidPhone)
		}
		c.PhoneRaw = &raw
		c.PhoneE164 = &e164
	}

	if c.Email == nil && c.PhoneE164 == nil {
		return Contact{}, apperr.Validation("an email address or phone number is required")
	}
	return c, nil
}

// UpsertProperty claims the address for contactID.
func (d *Directory) UpsertProperty(ctx context.Context, q db.DBTX, contactID uuid.UUID, addr Address) (Property, error) {
	p, err := NormalizeAddress(addr)
	if err != nil {
		return Property{}, err
	}
	p.ID = uuid.New()
	p.ContactID = contactID

	claimed, err := d.store.ClaimProperty(ctx, q, p)
	if err != nil {
		return Property{}, translate("contacts.UpsertProperty", err)
	}
	return claimed, nil
}

// NormalizeAddress trims fields, upper-cases the state and rounds
// coordinates to six decimals.
func NormalizeAddress(addr Address) (Property, error) {
	p := Property{
		AddressLine1: collapseSpaces(addr.Line1),
		City:         collapseSpaces(addr.City),
		State:        strings.ToUpper(strings.TrimSpace(addr.State)),
		PostalCode:   strings.TrimSpace(addr.PostalCode),
		Gated:        addr.Gated,
	}
	if line2 := collapseSpaces(addr.Line2); line2 != "" {
		p.AddressLine2 = &line2
	}
	if p.AddressLine1 == "" || p.City == "" || p.PostalCode == "" || len(p.State) != 2 {
		return Property{}, apperr.Validation("address line 1, city, 2-letter state and postal code are required").
			WithReason(apperr.ReasonAddressRequired)
	}
	if addr.Lat != nil && addr.Lng != nil {
		lat, lng := round6(*addr.Lat), round6(*addr.Lng)
		if lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 {
			p.Lat, p.Lng = &lat, &lng
		}
	}
	return p, nil
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func translate(op string, err error) error {
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConflict, "a matching record was created concurrently", err).
			WithReason(apperr.ReasonDuplicate).WithOp(op)
	}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return apperr.Wrap(apperr.KindInternal, "contact directory failure", err).WithOp(op)
}
