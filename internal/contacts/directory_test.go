package contacts

import (
	"context"
	"testing"

	"fieldops_backend/platform/apperr"
	"fieldops_backend/platform/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	contacts   map[uuid.UUID]Contact
	properties map[string]Property
}

func newMemoryStore() *memoryStore {
	return &memoryStore{contacts: map[uuid.UUID]Contact{}, properties: map[string]Property{}}
}

func (m *memoryStore) FindContactByEmail(_ context.Context, _ db.DBTX, email string) (Contact, error) {
	for _, c := range m.contacts {
		if c.Email != nil && *c.Email == email {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

func (m *memoryStore) FindContactByPhone(_ context.Context, _ db.DBTX, e164 string) (Contact, error) {
	for _, c := range m.contacts {
		if c.PhoneE164 != nil && *c.PhoneE164 == e164 {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

func (m *memoryStore) InsertContact(_ context.Context, _ db.DBTX, c Contact) (Contact, error) {
	m.contacts[c.ID] = c
	return c, nil
}

func (m *memoryStore) UpdateContact(_ context.Context, _ db.DBTX, c Contact) (Contact, error) {
	existing := m.contacts[c.ID]
	existing.FirstName, existing.LastName = c.FirstName, c.LastName
	if existing.Email == nil {
		existing.Email = c.Email
	}
	if c.PhoneE164 != nil {
		existing.PhoneRaw, existing.PhoneE164 = c.PhoneRaw, c.PhoneE164
	}
	m.contacts[c.ID] = existing
	return existing, nil
}

func (m *memoryStore) ClaimProperty(_ context.Context, _ db.DBTX, p Property) (Property, error) {
	key := p.AddressLine1 + "|" + p.PostalCode + "|" + p.State
	if existing, ok := m.properties[key]; ok {
		existing.ContactID, existing.City, existing.Gated = p.ContactID, p.City, p.Gated
		m.properties[key] = existing
		return existing, nil
	}
	m.properties[key] = p
	return p, nil
}

func TestUpsertContact_InsertsThenMatchesByEmail(t *testing.T) {
	store := newMemoryStore()
	dir := NewDirectory(store, "US")
	ctx := context.Background()

	first, err := dir.UpsertContact(ctx, nil, Identity{FirstName: "Ada", Email: "Ada@Example.com", Phone: "(202) 555-0143"})
	require.NoError(t, err)

	second, err := dir.UpsertContact(ctx, nil, Identity{FirstName: "Ada", LastName: "L", Email: "ada@example.com", Phone: "202-555-0199"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.contacts, 1)
	require.NotNil(t, second.PhoneE164)
	assert.Equal(t, "+12025550199", *second.PhoneE164)
	assert.Equal(t, "ada@example.com", *second.Email)
	assert.Equal(t, "L", second.LastName)
}

func TestUpsertContact_EmailIsSticky(t *testing.T) {
	store := newMemoryStore()
	dir := NewDirectory(store, "US")
	ctx := context.Background()

	first, err := dir.UpsertContact(ctx, nil, Identity{FirstName: "Bo", Email: "bo@example.com", Phone: "2025550143"})
	require.NoError(t, err)

	second, err := dir.UpsertContact(ctx, nil, Identity{FirstName: "Bo", Email: "other@example.com", Phone: "2025550143"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "bo@example.com", *second.Email)
}

func TestUpsertContact_BackfillsMissingEmail(t *testing.T) {
	store := newMemoryStore()
	dir := NewDirectory(store, "US")
	ctx := context.Background()

	first, err := dir.UpsertContact(ctx, nil, Identity{FirstName: "Cy", Phone: "2025550143"})
	require.NoError(t, err)
	assert.Nil(t, first.Email)

	second, err := dir.UpsertContact(ctx, nil, Identity{FirstName: "Cy", Email: "cy@example.com", Phone: "2025550143"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Email)
	assert.Equal(t, "cy@example.com", *second.Email)
}

func TestUpsertContact_InvalidPhone(t *testing.T) {
	dir := NewDirectory(newMemoryStore(), "US")

	_, err := dir.UpsertContact(context.Background(), nil, Identity{FirstName: "Di", Phone: "not a phone"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, apperr.ReasonInvalidPhone, apperr.ReasonOf(err))
}

func TestCheckIdentity_DoesNotTouchStore(t *testing.T) {
	store := newMemoryStore()
	dir := NewDirectory(store, "US")

	err := dir.CheckIdentity(Identity{FirstName: "Di", Phone: "not a phone"})
	assert.Equal(t, apperr.ReasonInvalidPhone, apperr.ReasonOf(err))
	assert.Error(t, dir.CheckIdentity(Identity{FirstName: "Di"}))
	assert.NoError(t, dir.CheckIdentity(Identity{Email: "di@example.com"}))
	assert.Empty(t, store.contacts)
}

func TestUpsertProperty_ClaimReassignsOwner(t *testing.T) {
	store := newMemoryStore()
	dir := NewDirectory(store, "US")
	ctx := context.Background()
	ownerA, ownerB := uuid.New(), uuid.New()

	lat, lng := 38.8976763, -77.0365298
	first, err := dir.UpsertProperty(ctx, nil, ownerA, Address{Line1: "1600  Penn Ave", City: "Washington", State: "dc", PostalCode: "20500", Lat: &lat, Lng: &lng})
	require.NoError(t, err)
	assert.Equal(t, "DC", first.State)
	assert.Equal(t, "1600 Penn Ave", first.AddressLine1)
	assert.Equal(t, 38.897676, *first.Lat)

	second, err := dir.UpsertProperty(ctx, nil, ownerB, Address{Line1: "1600 Penn Ave", City: "Wash.", State: "DC", PostalCode: "20500", Gated: true})
	require.NoError(t, err)

	assert.Len(t, store.properties, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, ownerB, second.ContactID)
	assert.Equal(t, "Wash.", second.City)
	assert.True(t, second.Gated)
}

func TestNormalizeAddress_RequiresFields(t *testing.T) {
	_, err := NormalizeAddress(Address{Line1: " ", City: "X", State: "NY", PostalCode: "1"})
	require.Error(t, err)
	assert.Equal(t, apperr.ReasonAddressRequired, apperr.ReasonOf(err))

	_, err = NormalizeAddress(Address{Line1: "1 Main", City: "X", State: "New York", PostalCode: "1"})
	require.Error(t, err)
}
