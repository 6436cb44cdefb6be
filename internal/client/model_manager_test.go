package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/core/models"
	"github.com/pathlearn/fedclient/internal/features"
	"github.com/pathlearn/fedclient/internal/training"
)

func staticToken(token string) TokenProvider {
	return func() (string, error) { return token, nil }
}

func serverModelMetadata() models.ModelMetadata {
	return models.ModelMetadata{
		ModelID:   "model_v3",
		Version:   3,
		ModelType: "recommendation",
		Architecture: models.Architecture{
			InputShape: []int{features.Dim},
			Layers: []models.LayerSpec{
				{Type: models.LayerDense, Units: 12, Activation: "relu"},
				{Type: models.LayerDense, Units: 8, Activation: "sigmoid"},
			},
		},
	}
}

// modelServer serves one model's metadata and weights the way the
// coordinator does.
func modelServer(t *testing.T, metadata models.ModelMetadata, weights []models.WeightRecord) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/federated/model/recommendation/latest", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(metadata))
	})
	mux.HandleFunc("/federated/model/"+metadata.ModelID+"/weights", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(weights))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func serverWeights(t *testing.T, metadata models.ModelMetadata) []models.WeightRecord {
	t.Helper()
	network, err := training.Build(metadata.Architecture, metadata.Hyperparameters)
	require.NoError(t, err)

	tensors := network.Weights()
	records := make([]models.WeightRecord, len(tensors))
	for i, tensor := range tensors {
		records[i] = models.WeightRecord{Data: tensor.Data, Shape: tensor.Shape, Dtype: tensor.Dtype}
	}
	return records
}

func TestDownloadLatestModel(t *testing.T) {
	t.Run("downloads and reconstructs the global model", func(t *testing.T) {
		metadata := serverModelMetadata()
		weights := serverWeights(t, metadata)
		server := modelServer(t, metadata, weights)

		store := openTestStore(t)
		api := NewAPIClient(server.URL, staticToken("token"))
		manager := NewModelManager(api, store, NewTrainingDataBuffer(store, 100, 10))

		got, err := manager.DownloadLatestModel(context.Background(), "recommendation")
		require.NoError(t, err)
		assert.Equal(t, "model_v3", got.ModelID)
		assert.Equal(t, 3, got.Version)
		assert.True(t, manager.HasModel())

		// Reconstruction restored the served weights exactly
		serialized, err := manager.SerializeWeights()
		require.NoError(t, err)
		require.Len(t, serialized, len(weights))
		for i := range weights {
			assert.Equal(t, weights[i].Shape, serialized[i].Shape)
			assert.InDeltaSlice(t, weights[i].Data, serialized[i].Data, 1e-12)
		}
	})

	t.Run("metadata survives restart via the local store", func(t *testing.T) {
		metadata := serverModelMetadata()
		server := modelServer(t, metadata, serverWeights(t, metadata))

		store := openTestStore(t)
		api := NewAPIClient(server.URL, staticToken("token"))
		manager := NewModelManager(api, store, NewTrainingDataBuffer(store, 100, 10))

		_, err := manager.DownloadLatestModel(context.Background(), "recommendation")
		require.NoError(t, err)

		restarted := NewModelManager(api, store, NewTrainingDataBuffer(store, 100, 10))
		require.NoError(t, restarted.Initialize())
		require.NotNil(t, restarted.Metadata())
		assert.Equal(t, "model_v3", restarted.Metadata().ModelID)
		// Only metadata survives; the network is rebuilt on demand
		assert.False(t, restarted.HasModel())
	})

	t.Run("failed download falls back to default model but reports the error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		store := openTestStore(t)
		api := NewAPIClient(server.URL, staticToken("token"))
		manager := NewModelManager(api, store, NewTrainingDataBuffer(store, 100, 10))

		got, err := manager.DownloadLatestModel(context.Background(), "recommendation")
		assert.Error(t, err)
		assert.Nil(t, got)

		// The fallback leaves a usable local model behind
		assert.True(t, manager.HasModel())
		require.NotNil(t, manager.Metadata())
		assert.Equal(t, "local_default", manager.Metadata().ModelID)
	})

	t.Run("rejects model whose input shape disagrees with the extractor", func(t *testing.T) {
		metadata := serverModelMetadata()
		metadata.Architecture.InputShape = []int{features.Dim + 5}
		server := modelServer(t, metadata, nil)

		store := openTestStore(t)
		api := NewAPIClient(server.URL, staticToken("token"))
		manager := NewModelManager(api, store, NewTrainingDataBuffer(store, 100, 10))

		_, err := manager.DownloadLatestModel(context.Background(), "recommendation")
		assert.ErrorIs(t, err, errs.ErrShapeMismatch)
	})

	t.Run("missing token fails with auth error", func(t *testing.T) {
		store := openTestStore(t)
		api := NewAPIClient("http://localhost:0", staticToken(""))
		manager := NewModelManager(api, store, NewTrainingDataBuffer(store, 100, 10))

		_, err := manager.DownloadLatestModel(context.Background(), "recommendation")
		assert.ErrorIs(t, err, errs.ErrAuthRequired)
	})
}

// blockingDataset parks PrepareTrainingDataset until released, to hold a
// training run in flight.
type blockingDataset struct {
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDataset) PrepareTrainingDataset() ([][]float64, [][]float64, error) {
	close(d.entered)
	<-d.release
	return nil, nil, errs.ErrInsufficientData
}

func (d *blockingDataset) Size() int { return 0 }

func TestTrainLocalModel(t *testing.T) {
	fillBuffer := func(t *testing.T, buffer *TrainingDataBuffer, count int) {
		t.Helper()
		for i := 0; i < count; i++ {
			require.NoError(t, buffer.Add(models.InteractionRecord{
				InteractionType: models.InteractionChatbot,
				Topic:           "goroutines",
				Completed:       i%2 == 0,
				TimeSpent:       float64(60 * i),
			}))
		}
	}

	t.Run("trains on the buffered dataset", func(t *testing.T) {
		store := openTestStore(t)
		buffer := NewTrainingDataBuffer(store, 100, 10)
		fillBuffer(t, buffer, 12)

		manager := NewModelManager(NewAPIClient("http://localhost:0", staticToken("token")), store, buffer)
		manager.CreateDefaultModel()

		var progress []models.TrainingProgress
		metrics, err := manager.TrainLocalModel(context.Background(), TrainOptions{
			Epochs:    2,
			BatchSize: 4,
			OnProgress: func(p models.TrainingProgress) {
				progress = append(progress, p)
			},
		})
		require.NoError(t, err)

		assert.Equal(t, 2, metrics.LocalEpochs)
		assert.Equal(t, 12, metrics.SamplesUsed)
		assert.NotNil(t, metrics.ValidationLoss)
		assert.NotNil(t, metrics.ValidationAccuracy)

		require.Len(t, progress, 2)
		assert.Equal(t, 1, progress[0].Epoch)
		assert.Equal(t, 2, progress[0].TotalEpochs)
	})

	t.Run("insufficient data fails before touching the model", func(t *testing.T) {
		store := openTestStore(t)
		buffer := NewTrainingDataBuffer(store, 100, 10)
		fillBuffer(t, buffer, 5)

		manager := NewModelManager(NewAPIClient("http://localhost:0", staticToken("token")), store, buffer)
		manager.CreateDefaultModel()

		_, err := manager.TrainLocalModel(context.Background(), TrainOptions{Epochs: 1})
		assert.ErrorIs(t, err, errs.ErrInsufficientData)
	})

	t.Run("concurrent training is rejected, not queued", func(t *testing.T) {
		store := openTestStore(t)
		dataset := &blockingDataset{
			entered: make(chan struct{}),
			release: make(chan struct{}),
		}

		manager := NewModelManager(NewAPIClient("http://localhost:0", staticToken("token")), store, dataset)
		manager.CreateDefaultModel()

		errCh := make(chan error, 1)
		go func() {
			_, err := manager.TrainLocalModel(context.Background(), TrainOptions{Epochs: 1})
			errCh <- err
		}()

		<-dataset.entered
		assert.True(t, manager.IsTraining())

		_, err := manager.TrainLocalModel(context.Background(), TrainOptions{Epochs: 1})
		assert.ErrorIs(t, err, errs.ErrAlreadyTraining)

		close(dataset.release)
		assert.ErrorIs(t, <-errCh, errs.ErrInsufficientData)
		assert.False(t, manager.IsTraining())
	})
}

func TestSerializeWeights(t *testing.T) {
	t.Run("fails when no model is loaded", func(t *testing.T) {
		store := openTestStore(t)
		manager := NewModelManager(NewAPIClient("http://localhost:0", staticToken("token")), store, NewTrainingDataBuffer(store, 100, 10))

		_, err := manager.SerializeWeights()
		assert.ErrorIs(t, err, errs.ErrNoModel)
	})

	t.Run("default model serializes in layer order", func(t *testing.T) {
		store := openTestStore(t)
		manager := NewModelManager(NewAPIClient("http://localhost:0", staticToken("token")), store, NewTrainingDataBuffer(store, 100, 10))
		manager.CreateDefaultModel()

		records, err := manager.SerializeWeights()
		require.NoError(t, err)
		require.Len(t, records, 6)
		assert.Equal(t, []int{features.Dim, 32}, records[0].Shape)
		assert.Equal(t, []int{32}, records[1].Shape)
		assert.Equal(t, []int{8}, records[5].Shape)
	})
}
