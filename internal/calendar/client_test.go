package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldops_backend/platform/config"
	"fieldops_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{CalendarBaseURL: srv.URL, CalendarToken: "secret", CalendarTimeout: time.Second}
	return NewClient(cfg, logger.Nop())
}

func TestCreateEvent(t *testing.T) {
	var got Event
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-42"}`))
	})

	start := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)
	id, err := client.CreateEvent(context.Background(), Event{Title: "Estimate", StartAt: start, EndAt: start.Add(time.Hour), Reference: "appt-1"})
	require.NoError(t, err)
	assert.Equal(t, "evt-42", id)
	assert.Equal(t, "appt-1", got.Reference)
}

func TestCreateEvent_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := client.CreateEvent(context.Background(), Event{Title: "Estimate"})
	assert.Error(t, err)
}

func TestDeleteEvent_MissingIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/events/evt-1", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, client.DeleteEvent(context.Background(), "evt-1"))
}

func TestDisabledClientIsNoop(t *testing.T) {
	client := NewClient(&config.Config{}, logger.Nop())
	assert.False(t, client.Enabled())

	id, err := client.CreateEvent(context.Background(), Event{Title: "x"})
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.NoError(t, client.DeleteEvent(context.Background(), "evt-1"))
}
