package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldops_backend/platform/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing(t *testing.T) {
	var got Conversion
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hook", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(&config.Config{ConversionPingURL: srv.URL + "/hook"})
	conv := Conversion{LeadID: uuid.New(), UTMSource: "google", OccurredAt: time.Now().UTC()}
	require.NoError(t, client.Ping(context.Background(), conv))
	assert.Equal(t, conv.LeadID, got.LeadID)
	assert.Equal(t, "google", got.UTMSource)
}

func TestPing_Disabled(t *testing.T) {
	client := NewClient(&config.Config{})
	assert.NoError(t, client.Ping(context.Background(), Conversion{LeadID: uuid.New()}))
}
