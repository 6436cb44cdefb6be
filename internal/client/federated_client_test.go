package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/core/models"
)

func TestSubmitModelUpdate(t *testing.T) {
	t.Run("fails without a model", func(t *testing.T) {
		store := openTestStore(t)
		federated := NewFederatedClient(NewAPIClient("http://localhost:0", staticToken("token")), store, testClientConfig())

		_, err := federated.SubmitModelUpdate(context.Background(), models.TrainingMetrics{})
		assert.ErrorIs(t, err, errs.ErrNoModel)
	})

	t.Run("posts base64 weights with device info and distribution", func(t *testing.T) {
		received := make(chan models.ModelUpdatePayload, 1)
		mux := http.NewServeMux()
		mux.HandleFunc("/federated/update/submit", func(w http.ResponseWriter, r *http.Request) {
			var payload models.ModelUpdatePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			received <- payload
			require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"status": "accepted"}))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		store := openTestStore(t)
		federated := NewFederatedClient(NewAPIClient(server.URL, staticToken("token")), store, testClientConfig())
		federated.ModelManager().CreateDefaultModel()

		require.NoError(t, federated.AddInteraction(context.Background(), models.InteractionRecord{
			InteractionType: models.InteractionChatbot,
			Topic:           "testing",
		}))

		metrics := models.TrainingMetrics{LocalEpochs: 2, SamplesUsed: 1, TrainingLoss: 0.3}
		ack, err := federated.SubmitModelUpdate(context.Background(), metrics)
		require.NoError(t, err)
		assert.Equal(t, "accepted", ack["status"])

		payload := <-received
		assert.Equal(t, "local_default", payload.ModelID)
		assert.Equal(t, "weights", payload.Metadata.UpdateType)
		assert.Equal(t, "none", payload.Metadata.Compression)
		assert.Equal(t, metrics, payload.Metrics)

		// The weight blob decodes back into ordered tensor records
		decoded, err := base64.StdEncoding.DecodeString(payload.Weights)
		require.NoError(t, err)
		var weights []models.WeightRecord
		require.NoError(t, json.Unmarshal(decoded, &weights))
		require.Len(t, weights, 6)
		assert.Equal(t, []int{10, 32}, weights[0].Shape)

		assert.NotEmpty(t, payload.DeviceInfo.DeviceID)
		assert.NotEmpty(t, payload.DeviceInfo.UserAgent)
		assert.NotEmpty(t, payload.DeviceInfo.Cores)
		assert.Equal(t, 1, payload.DataDistribution.TotalSamples)
		assert.Equal(t, 1, payload.DataDistribution.TopicCounts["testing"])
	})
}

func TestParticipateInTraining(t *testing.T) {
	t.Run("failures come back as structured results", func(t *testing.T) {
		store := openTestStore(t)
		federated := NewFederatedClient(NewAPIClient("http://localhost:0", staticToken("token")), store, testClientConfig())

		result := federated.ParticipateInTraining(context.Background(), ParticipateOptions{})
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
		assert.Nil(t, result.TrainingMetrics)
		assert.Equal(t, StateIdle, federated.State())
	})

	t.Run("full workflow trains and submits", func(t *testing.T) {
		metadata := serverModelMetadata()
		weights := serverWeights(t, metadata)

		mux := http.NewServeMux()
		mux.HandleFunc("/federated/model/recommendation/latest", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewEncoder(w).Encode(metadata))
		})
		mux.HandleFunc("/federated/model/"+metadata.ModelID+"/weights", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewEncoder(w).Encode(weights))
		})
		mux.HandleFunc("/federated/interaction/record", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		submissions := make(chan models.ModelUpdatePayload, 1)
		mux.HandleFunc("/federated/update/submit", func(w http.ResponseWriter, r *http.Request) {
			var payload models.ModelUpdatePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			submissions <- payload
			require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"status": "received"}))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		store := openTestStore(t)
		federated := NewFederatedClient(NewAPIClient(server.URL, staticToken("token")), store, testClientConfig())

		for i := 0; i < 12; i++ {
			require.NoError(t, federated.AddInteraction(context.Background(), models.InteractionRecord{
				InteractionType: models.InteractionChatbot,
				Topic:           "maps",
				Completed:       i%2 == 0,
			}))
		}

		result := federated.ParticipateInTraining(context.Background(), ParticipateOptions{
			DownloadLatest: true,
			Train:          TrainOptions{Epochs: 2, BatchSize: 4},
		})
		require.True(t, result.Success, "workflow failed: %s", result.Error)
		require.NotNil(t, result.TrainingMetrics)
		assert.Equal(t, 12, result.TrainingMetrics.SamplesUsed)

		payload := <-submissions
		assert.Equal(t, "model_v3", payload.ModelID)
		assert.Equal(t, 12, payload.DataDistribution.TotalSamples)
	})
}

func TestFederatedClientInitialize(t *testing.T) {
	store := openTestStore(t)
	cfg := testClientConfig()

	first := NewFederatedClient(NewAPIClient("http://localhost:0", staticToken("token")), store, cfg)
	require.NoError(t, first.AddInteraction(context.Background(), models.InteractionRecord{
		InteractionType: models.InteractionRoadmap,
		Topic:           "errors",
	}))

	second := NewFederatedClient(NewAPIClient("http://localhost:0", staticToken("token")), store, cfg)
	require.NoError(t, second.Initialize())

	summary := second.GetTrainingDataSummary()
	assert.Equal(t, 1, summary.TotalSamples)

	require.NoError(t, second.ClearLocalData())
	assert.Zero(t, second.GetTrainingDataSummary().TotalSamples)
}
