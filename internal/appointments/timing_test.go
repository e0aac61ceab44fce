package appointments

import (
	"testing"
	"time"

	"fieldops_backend/platform/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTimingResolver(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	r := NewDefaultTimingResolver(loc)

	got, err := r.ResolveTiming("2026-06-02", "afternoon")
	require.NoError(t, err)
	require.NotNil(t, got.StartAt)
	assert.Equal(t, time.Date(2026, 6, 2, 14, 0, 0, 0, loc), *got.StartAt)
	assert.Equal(t, DefaultEstimateMinutes, got.DurationMinutes)

	got, err = r.ResolveTiming("2026-06-02", "")
	require.NoError(t, err)
	assert.Nil(t, got.StartAt)

	got, err = r.ResolveTiming("", "morning")
	require.NoError(t, err)
	assert.Nil(t, got.StartAt)

	_, err = r.ResolveTiming("06/02/2026", "morning")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = r.ResolveTiming("2026-06-02", "midnight")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{StatusRequested, StatusConfirmed},
		{StatusConfirmed, StatusCompleted},
		{StatusRequested, StatusCanceled},
		{StatusConfirmed, StatusCanceled},
		{StatusConfirmed, StatusNoShow},
		{StatusNoShow, StatusRequested},
	}
	for _, pair := range allowed {
		assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}

	denied := [][2]string{
		{StatusRequested, StatusCompleted},
		{StatusRequested, StatusNoShow},
		{StatusCompleted, StatusCanceled},
		{StatusCanceled, StatusRequested},
		{StatusNoShow, StatusConfirmed},
		{StatusConfirmed, StatusRequested},
	}
	for _, pair := range denied {
		assert.False(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
	}
}
