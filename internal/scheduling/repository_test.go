package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Upcoming(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	from := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	to := from.Add(Horizon)
	id := uuid.New()
	lat, lng := 40.01, -75.0

	mock.ExpectQuery(`FROM appointments a\s+JOIN properties p ON p.id = a.property_id\s+WHERE a.status IN \('requested', 'confirmed'\)`).
		WithArgs(from, to, MaxCandidates).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "type", "status", "start_at", "duration_minutes", "travel_buffer_minutes",
			"address_line1", "city", "state", "postal_code", "lat", "lng",
		}).
			AddRow(id, "estimate", "confirmed", from.Add(48*time.Hour), 60, 30, "9 Oak Ave", "Media", "PA", "19063", &lat, &lng).
			AddRow(uuid.New(), "job", "requested", from.Add(72*time.Hour), 120, 0, "3 Elm St", "Media", "PA", "19063", nil, nil))

	got, err := NewRepository().Upcoming(context.Background(), mock, from, to, MaxCandidates)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, id, got[0].AppointmentID)
	assert.Equal(t, "9 Oak Ave, Media, PA 19063", got[0].Address)
	require.NotNil(t, got[0].Lat)
	assert.Equal(t, 40.01, *got[0].Lat)
	assert.Nil(t, got[1].Lat)
	require.NoError(t, mock.ExpectationsWereMet())
}
