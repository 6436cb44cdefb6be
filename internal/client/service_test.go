package client

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlearn/fedclient/internal/config"
	"github.com/pathlearn/fedclient/internal/core/models"
)

func testClientConfig() config.ClientConfig {
	return config.ClientConfig{
		ModelType:     "recommendation",
		MaxBufferSize: 100,
		Training: config.TrainingConfig{
			Epochs:          2,
			BatchSize:       4,
			ValidationSplit: 0.2,
			MinSamples:      10,
		},
	}
}

// newTestService wires a service against the given API base URL. The
// channel has no token, so it never connects; tests drive events through
// Emit.
func newTestService(t *testing.T, apiURL string) *Service {
	t.Helper()
	store := openTestStore(t)
	api := NewAPIClient(apiURL, staticToken("token"))
	federated := NewFederatedClient(api, store, testClientConfig())
	channel := NewRealtimeChannel("ws://localhost:0", staticToken(""), testWSConfig())
	return NewService(federated, channel)
}

func startTestService(t *testing.T, apiURL string) *Service {
	t.Helper()
	service := newTestService(t, apiURL)
	require.NoError(t, service.Start())
	t.Cleanup(func() { _ = service.Stop(context.Background()) })
	return service
}

func emitJSON(channel *RealtimeChannel, event EventType, payload interface{}) {
	data, _ := json.Marshal(payload)
	channel.Emit(event, data)
}

func TestServiceLifecycle(t *testing.T) {
	t.Run("start assigns a session id", func(t *testing.T) {
		service := startTestService(t, "http://localhost:0")

		assert.Regexp(t, regexp.MustCompile(`^session_\d+_[0-9a-z]{9}$`), service.SessionID())
		assert.True(t, service.Status().Initialized)
	})

	t.Run("start is idempotent", func(t *testing.T) {
		service := startTestService(t, "http://localhost:0")

		session := service.SessionID()
		require.NoError(t, service.Start())
		assert.Equal(t, session, service.SessionID())
	})

	t.Run("stop unsubscribes handlers and ends the session", func(t *testing.T) {
		service := newTestService(t, "http://localhost:0")
		require.NoError(t, service.Start())
		require.NoError(t, service.Stop(context.Background()))

		assert.Empty(t, service.SessionID())
		assert.False(t, service.Status().Initialized)

		// Events after stop no longer produce notifications
		emitJSON(service.Channel(), EventNotification, map[string]string{
			"type": "info", "title": "late", "message": "ignored",
		})
		assert.Empty(t, service.Notifications())
	})
}

func TestServiceNotifications(t *testing.T) {
	t.Run("server notifications land newest first and stay bounded", func(t *testing.T) {
		service := startTestService(t, "http://localhost:0")

		for i := 0; i < maxNotifications+5; i++ {
			emitJSON(service.Channel(), EventNotification, map[string]string{
				"type":    "info",
				"title":   fmt.Sprintf("note %d", i),
				"message": "hello",
			})
		}

		notifications := service.Notifications()
		require.Len(t, notifications, maxNotifications)
		assert.Equal(t, fmt.Sprintf("note %d", maxNotifications+4), notifications[0].Title)
	})

	t.Run("dismiss removes one, clear removes all", func(t *testing.T) {
		service := startTestService(t, "http://localhost:0")

		emitJSON(service.Channel(), EventNotification, map[string]string{"title": "a", "message": "x"})
		emitJSON(service.Channel(), EventNotification, map[string]string{"title": "b", "message": "y"})

		notifications := service.Notifications()
		require.Len(t, notifications, 2)

		service.DismissNotification(notifications[0].ID)
		remaining := service.Notifications()
		require.Len(t, remaining, 1)
		assert.Equal(t, "a", remaining[0].Title)

		service.ClearNotifications()
		assert.Empty(t, service.Notifications())
	})

	t.Run("untyped server notifications default to info", func(t *testing.T) {
		service := startTestService(t, "http://localhost:0")

		emitJSON(service.Channel(), EventNotification, map[string]string{"title": "t", "message": "m"})
		notifications := service.Notifications()
		require.Len(t, notifications, 1)
		assert.Equal(t, models.NotificationInfo, notifications[0].Type)
	})

	t.Run("round events produce notifications", func(t *testing.T) {
		service := startTestService(t, "http://localhost:0")

		emitJSON(service.Channel(), EventTrainingRoundStarted, models.RoundEvent{RoundNumber: 4})
		notifications := service.Notifications()
		require.Len(t, notifications, 1)
		assert.Equal(t, "Training round started", notifications[0].Title)
	})
}

func TestServiceTrainingHistory(t *testing.T) {
	service := startTestService(t, "http://localhost:0")

	emitJSON(service.Channel(), EventUpdateAccepted, models.UpdateDecision{QualityScore: 0.91})
	emitJSON(service.Channel(), EventUpdateRejected, models.UpdateDecision{Reason: "stale weights"})

	history := service.TrainingHistory()
	require.Len(t, history, 2)
	// Newest first
	assert.Equal(t, "rejected", history[0].Status)
	assert.Equal(t, "stale weights", history[0].Reason)
	assert.Equal(t, "accepted", history[1].Status)
	assert.InDelta(t, 0.91, history[1].QualityScore, 1e-9)

	t.Run("history stays bounded", func(t *testing.T) {
		for i := 0; i < maxHistoryEntries+10; i++ {
			emitJSON(service.Channel(), EventUpdateAccepted, models.UpdateDecision{QualityScore: float64(i)})
		}
		assert.Len(t, service.TrainingHistory(), maxHistoryEntries)
	})
}

func TestServiceAutoDownload(t *testing.T) {
	metadata := serverModelMetadata()
	server := modelServer(t, metadata, serverWeights(t, metadata))

	service := startTestService(t, server.URL)
	require.False(t, service.Federated().ModelManager().HasModel())

	emitJSON(service.Channel(), EventModelReady, models.ModelEvent{ModelID: metadata.ModelID})

	require.Eventually(t, service.Federated().ModelManager().HasModel, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "model_v3", service.Federated().ModelManager().Metadata().ModelID)

	// The download outcome surfaces as a notification
	require.Eventually(t, func() bool {
		return len(service.Notifications()) > 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServiceTrain(t *testing.T) {
	t.Run("failed workflow surfaces as an error notification", func(t *testing.T) {
		service := startTestService(t, "http://localhost:0")

		// No buffered data: the workflow fails on insufficient samples
		result := service.Train(context.Background(), ParticipateOptions{})
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)

		notifications := service.Notifications()
		require.NotEmpty(t, notifications)
		assert.Equal(t, models.NotificationError, notifications[0].Type)
		assert.Equal(t, "Training failed", notifications[0].Title)
	})

	t.Run("tracked interactions carry the session id", func(t *testing.T) {
		service := startTestService(t, "http://localhost:0")

		require.NoError(t, service.Track(context.Background(), models.InteractionRecord{
			InteractionType: models.InteractionChatbot,
			Topic:           "interfaces",
		}))

		records := service.Federated().Buffer().Records()
		require.Len(t, records, 1)
		assert.Equal(t, service.SessionID(), records[0].SessionID)
	})
}

func TestServiceStatus(t *testing.T) {
	service := startTestService(t, "http://localhost:0")

	require.NoError(t, service.Track(context.Background(), models.InteractionRecord{
		InteractionType: models.InteractionQuiz,
	}))

	status := service.Status()
	assert.True(t, status.Initialized)
	assert.False(t, status.Connected)
	assert.Equal(t, StateIdle, status.State)
	assert.False(t, status.IsTraining)
	assert.Equal(t, 1, status.BufferedSamples)
	assert.NotEmpty(t, status.SessionID)
}
