package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlearn/fedclient/internal/core/models"
)

func TestStatusServer(t *testing.T) {
	service := startTestService(t, "http://localhost:0")
	require.NoError(t, service.Track(context.Background(), models.InteractionRecord{
		InteractionType: models.InteractionChatbot,
		Topic:           "defer",
	}))

	statusServer := NewStatusServer("localhost:0", service)
	handler := statusServer.server.Handler

	t.Run("status endpoint returns the orchestrator snapshot", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var snapshot StatusSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
		assert.True(t, snapshot.Initialized)
		assert.Equal(t, 1, snapshot.BufferedSamples)
		assert.NotEmpty(t, snapshot.SessionID)
	})

	t.Run("data summary endpoint returns buffer details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/summary", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var summary models.TrainingDataSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.Equal(t, 1, summary.TotalSamples)
		assert.Equal(t, 1, summary.Distribution.TopicCounts["defer"])
	})

	t.Run("metrics endpoint serves prometheus text", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "fedclient_")
	})

	t.Run("writes are rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
