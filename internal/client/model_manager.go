package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/core/models"
	"github.com/pathlearn/fedclient/internal/features"
	"github.com/pathlearn/fedclient/internal/storage/localstore"
	"github.com/pathlearn/fedclient/internal/training"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// DatasetProvider produces the training dataset from buffered interactions.
type DatasetProvider interface {
	PrepareTrainingDataset() (xs, ys [][]float64, err error)
	Size() int
}

// TrainOptions configures one local training run. Zero values fall back to
// the defaults below.
type TrainOptions struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	OnProgress      func(models.TrainingProgress)
}

const (
	defaultEpochs          = 5
	defaultBatchSize       = 32
	defaultValidationSplit = 0.2
)

// ModelManager owns the local model's lifecycle: download, default
// fallback, training, prediction, and weight (de)serialization. The
// network reference is volatile: it is replaced wholesale on every
// download, so callers must not hold it across suspension points.
type ModelManager struct {
	api   *APIClient
	store *localstore.Store
	data  DatasetProvider

	mu         sync.Mutex
	network    *training.Network
	metadata   *models.ModelMetadata
	isTraining bool
}

func NewModelManager(api *APIClient, store *localstore.Store, data DatasetProvider) *ModelManager {
	return &ModelManager{
		api:   api,
		store: store,
		data:  data,
	}
}

// Initialize loads cached model metadata from the local store. The network
// itself is rebuilt on demand; only metadata survives restarts.
func (m *ModelManager) Initialize() error {
	var cached models.ModelMetadata
	found, err := m.store.Get(localstore.KeyModelMetadata, &cached)
	if err != nil {
		return err
	}
	if found {
		m.mu.Lock()
		m.metadata = &cached
		m.mu.Unlock()
	}
	return nil
}

// DownloadLatestModel fetches metadata and weights of the latest global
// model and rebuilds the local network from them. On any failure it falls
// back to a default model when no local model exists yet, but still
// returns the original error so callers can tell a degraded load from a
// clean one.
func (m *ModelManager) DownloadLatestModel(ctx context.Context, modelType string) (*models.ModelMetadata, error) {
	log := logger.WithComponent("model_manager")

	metadata, weights, err := m.fetchModel(ctx, modelType)
	if err != nil {
		log.Error().Err(err).Str("model_type", modelType).Msg("Model download failed")
		m.mu.Lock()
		if m.network == nil {
			m.createDefaultLocked()
			log.Warn().Msg("Created default local model after failed download")
		}
		m.mu.Unlock()
		return nil, err
	}

	network, err := buildNetwork(*metadata, weights)
	if err != nil {
		log.Error().Err(err).Str("model_id", metadata.ModelID).Msg("Model reconstruction failed")
		m.mu.Lock()
		if m.network == nil {
			m.createDefaultLocked()
			log.Warn().Msg("Created default local model after failed reconstruction")
		}
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.network = network
	m.metadata = metadata
	m.mu.Unlock()

	if err := m.store.Set(localstore.KeyModelMetadata, metadata); err != nil {
		log.Error().Err(err).Msg("Failed to cache model metadata")
	}

	log.Info().
		Str("model_id", metadata.ModelID).
		Int("version", metadata.Version).
		Msg("Downloaded global model")
	return metadata, nil
}

func (m *ModelManager) fetchModel(ctx context.Context, modelType string) (*models.ModelMetadata, []models.WeightRecord, error) {
	metadata, err := m.api.GetLatestModel(ctx, modelType)
	if err != nil {
		return nil, nil, err
	}
	weights, err := m.api.GetModelWeights(ctx, metadata.ModelID)
	if err != nil {
		return nil, nil, err
	}
	return metadata, weights, nil
}

// buildNetwork reconstructs a network from metadata and assigns the
// decoded weight tensors in layer order.
func buildNetwork(metadata models.ModelMetadata, weights []models.WeightRecord) (*training.Network, error) {
	if len(metadata.Architecture.InputShape) > 0 &&
		metadata.Architecture.InputShape[0] != features.Dim {
		return nil, fmt.Errorf("%w: server model expects %d inputs, extractor produces %d",
			errs.ErrShapeMismatch, metadata.Architecture.InputShape[0], features.Dim)
	}

	network, err := training.Build(metadata.Architecture, metadata.Hyperparameters)
	if err != nil {
		return nil, err
	}

	tensors := make([]training.Tensor, 0, len(weights))
	for i, w := range weights {
		if len(w.Data) == 0 || len(w.Shape) == 0 {
			return nil, fmt.Errorf("weight record %d is empty", i)
		}
		tensors = append(tensors, training.Tensor{Data: w.Data, Shape: w.Shape, Dtype: w.Dtype})
	}
	if err := network.SetWeights(tensors); err != nil {
		return nil, err
	}
	return network, nil
}

// DefaultArchitecture is the fixed fallback network shape used when no
// global model can be downloaded.
func DefaultArchitecture() models.Architecture {
	return models.Architecture{
		InputShape: []int{features.Dim},
		Layers: []models.LayerSpec{
			{Type: models.LayerDense, Units: 32, Activation: "relu"},
			{Type: models.LayerDropout, Config: map[string]interface{}{"rate": 0.2}},
			{Type: models.LayerDense, Units: 16, Activation: "relu"},
			{Type: models.LayerDense, Units: 8, Activation: "sigmoid"},
		},
	}
}

// CreateDefaultModel builds the fixed fallback network with placeholder
// metadata. It performs no I/O and always succeeds.
func (m *ModelManager) CreateDefaultModel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createDefaultLocked()
}

func (m *ModelManager) createDefaultLocked() {
	network, err := training.Build(DefaultArchitecture(), models.Hyperparameters{})
	if err != nil {
		// The default architecture is fixed and known-valid.
		panic(fmt.Sprintf("default model construction failed: %v", err))
	}
	m.network = network
	m.metadata = &models.ModelMetadata{
		ModelID:      "local_default",
		Version:      0,
		ModelType:    "recommendation",
		Architecture: DefaultArchitecture(),
	}
}

// TrainLocalModel runs one local training cycle over the buffered dataset.
// A second call while one is in flight fails with ErrAlreadyTraining; it
// is rejected outright, not queued.
func (m *ModelManager) TrainLocalModel(ctx context.Context, opts TrainOptions) (*models.TrainingMetrics, error) {
	log := logger.WithComponent("model_manager")

	m.mu.Lock()
	if m.isTraining {
		m.mu.Unlock()
		return nil, errs.ErrAlreadyTraining
	}
	m.isTraining = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isTraining = false
		m.mu.Unlock()
	}()

	if err := m.ensureModel(ctx); err != nil {
		return nil, err
	}

	xs, ys, err := m.data.PrepareTrainingDataset()
	if err != nil {
		return nil, err
	}

	epochs := opts.Epochs
	if epochs <= 0 {
		epochs = defaultEpochs
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	split := opts.ValidationSplit
	if split == 0 {
		split = defaultValidationSplit
	}

	log.Info().
		Int("samples", len(xs)).
		Int("epochs", epochs).
		Int("batch_size", batchSize).
		Msg("Starting local training")

	m.mu.Lock()
	network := m.network
	m.mu.Unlock()

	history, err := network.Fit(xs, ys, training.FitOptions{
		Epochs:          epochs,
		BatchSize:       batchSize,
		ValidationSplit: split,
		Shuffle:         true,
		OnEpochEnd: func(epoch int, loss, accuracy float64) {
			log.Debug().
				Int("epoch", epoch).
				Int("total_epochs", epochs).
				Float64("loss", loss).
				Float64("accuracy", accuracy).
				Msg("Epoch completed")
			if opts.OnProgress != nil {
				opts.OnProgress(models.TrainingProgress{
					Epoch:       epoch,
					TotalEpochs: epochs,
					Loss:        loss,
					Accuracy:    accuracy,
				})
			}
		},
	})
	if err != nil {
		return nil, err
	}

	metrics := &models.TrainingMetrics{
		LocalEpochs:      epochs,
		SamplesUsed:      m.data.Size(),
		TrainingLoss:     history.Loss[len(history.Loss)-1],
		TrainingAccuracy: history.Accuracy[len(history.Accuracy)-1],
	}
	if len(history.ValLoss) > 0 {
		valLoss := history.ValLoss[len(history.ValLoss)-1]
		valAcc := history.ValAccuracy[len(history.ValAccuracy)-1]
		metrics.ValidationLoss = &valLoss
		metrics.ValidationAccuracy = &valAcc
	}

	log.Info().
		Float64("loss", metrics.TrainingLoss).
		Float64("accuracy", metrics.TrainingAccuracy).
		Msg("Local training completed")
	return metrics, nil
}

// Predict runs inference for one feature vector, downloading a model
// first when none is loaded.
func (m *ModelManager) Predict(ctx context.Context, featureVector []float64) ([]float64, error) {
	if err := m.ensureModel(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	network := m.network
	m.mu.Unlock()
	return network.Predict(featureVector)
}

// ensureModel lazily downloads a model when none is loaded. A download
// failure is tolerated when the default-model fallback produced a usable
// network.
func (m *ModelManager) ensureModel(ctx context.Context) error {
	m.mu.Lock()
	loaded := m.network != nil
	modelType := "recommendation"
	if m.metadata != nil && m.metadata.ModelType != "" {
		modelType = m.metadata.ModelType
	}
	m.mu.Unlock()
	if loaded {
		return nil
	}

	_, err := m.DownloadLatestModel(ctx, modelType)
	if err == nil {
		return nil
	}

	m.mu.Lock()
	haveFallback := m.network != nil
	m.mu.Unlock()
	if haveFallback {
		log := logger.WithComponent("model_manager")
		log.Warn().Err(err).
			Msg("Proceeding with default model after failed download")
		return nil
	}
	return err
}

// SerializeWeights exports the current model's parameters in layer order.
// The order must match what the receiving end replays on load; a mismatch
// silently corrupts the model.
func (m *ModelManager) SerializeWeights() ([]models.WeightRecord, error) {
	m.mu.Lock()
	network := m.network
	m.mu.Unlock()
	if network == nil {
		return nil, errs.ErrNoModel
	}

	tensors := network.Weights()
	records := make([]models.WeightRecord, len(tensors))
	for i, t := range tensors {
		records[i] = models.WeightRecord{Data: t.Data, Shape: t.Shape, Dtype: t.Dtype}
	}
	return records, nil
}

// Metadata returns the current model metadata, or nil when none is loaded.
func (m *ModelManager) Metadata() *models.ModelMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadata
}

// HasModel reports whether a local network is currently loaded.
func (m *ModelManager) HasModel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.network != nil
}

// IsTraining reports whether a training run is in flight.
func (m *ModelManager) IsTraining() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isTraining
}
