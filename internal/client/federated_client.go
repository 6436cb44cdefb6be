package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pathlearn/fedclient/internal/config"
	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/core/models"
	"github.com/pathlearn/fedclient/internal/storage/localstore"
	"github.com/pathlearn/fedclient/internal/telemetry"
	"github.com/pathlearn/fedclient/pkg/device"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// WorkflowState is the federated client's coarse lifecycle state.
type WorkflowState string

const (
	StateIdle        WorkflowState = "idle"
	StateDownloading WorkflowState = "downloading"
	StateTraining    WorkflowState = "training"
	StateSubmitting  WorkflowState = "submitting"
)

// ParticipateOptions configures one end-to-end training workflow.
type ParticipateOptions struct {
	DownloadLatest bool
	Train          TrainOptions
}

// FederatedClient orchestrates the download → train → submit workflow on
// top of the model manager and the training data buffer. Workflow
// failures come back as structured results, never as panics or bare
// errors, so the caller always gets a terminal outcome.
type FederatedClient struct {
	api       *APIClient
	buffer    *TrainingDataBuffer
	manager   *ModelManager
	modelType string

	mu    sync.Mutex
	state WorkflowState
}

func NewFederatedClient(api *APIClient, store *localstore.Store, cfg config.ClientConfig) *FederatedClient {
	buffer := NewTrainingDataBuffer(store, cfg.MaxBufferSize, cfg.Training.MinSamples)
	return &FederatedClient{
		api:       api,
		buffer:    buffer,
		manager:   NewModelManager(api, store, buffer),
		modelType: cfg.ModelType,
		state:     StateIdle,
	}
}

// Initialize restores persisted state: the training buffer and cached
// model metadata.
func (f *FederatedClient) Initialize() error {
	if err := f.buffer.Load(); err != nil {
		return err
	}
	telemetry.UpdateBufferSize(f.buffer.Size())
	return f.manager.Initialize()
}

// AddInteraction appends a record to the buffer and mirrors it to the
// server for central tracking. Mirroring failures are logged only; the
// locally buffered record is what training uses.
func (f *FederatedClient) AddInteraction(ctx context.Context, record models.InteractionRecord) error {
	log := logger.WithComponent("federated")

	if err := f.buffer.Add(record); err != nil {
		return err
	}
	telemetry.UpdateBufferSize(f.buffer.Size())

	if err := f.api.RecordInteraction(ctx, record); err != nil {
		log.Debug().Err(err).Msg("Server-side interaction mirror failed")
	}
	return nil
}

// DownloadLatestModel fetches the newest global model. Errors propagate
// even when the default-model fallback ran, so callers can distinguish
// degraded-but-operable from fully succeeded.
func (f *FederatedClient) DownloadLatestModel(ctx context.Context) (*models.ModelMetadata, error) {
	f.setState(StateDownloading)
	defer f.setState(StateIdle)
	return f.manager.DownloadLatestModel(ctx, f.modelType)
}

// ParticipateInTraining runs the full workflow: ensure a model, train
// locally, submit the update. Every failure path yields a structured
// result; this method never returns an error.
func (f *FederatedClient) ParticipateInTraining(ctx context.Context, opts ParticipateOptions) models.TrainingResult {
	log := logger.WithComponent("federated")
	started := time.Now()

	ctx, span := telemetry.Tracer().Start(ctx, "participate_in_training")
	defer span.End()

	fail := func(stage string, err error) models.TrainingResult {
		log.Error().Err(err).Str("stage", stage).Msg("Training workflow failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		telemetry.RecordTraining("failed", time.Since(started))
		f.setState(StateIdle)
		return models.TrainingResult{Success: false, Error: err.Error()}
	}

	if !f.manager.HasModel() || opts.DownloadLatest {
		f.setState(StateDownloading)
		if _, err := f.manager.DownloadLatestModel(ctx, f.modelType); err != nil {
			if !f.manager.HasModel() {
				return fail("download", err)
			}
			log.Warn().Err(err).Msg("Continuing with fallback model after failed download")
		}
	}

	f.setState(StateTraining)
	metrics, err := f.manager.TrainLocalModel(ctx, opts.Train)
	if err != nil {
		return fail("train", err)
	}

	f.setState(StateSubmitting)
	submitResult, err := f.SubmitModelUpdate(ctx, *metrics)
	if err != nil {
		return fail("submit", err)
	}

	span.SetAttributes(
		attribute.Int("samples_used", metrics.SamplesUsed),
		attribute.Float64("training_loss", metrics.TrainingLoss),
	)
	telemetry.RecordTraining("completed", time.Since(started))
	f.setState(StateIdle)

	return models.TrainingResult{
		Success:         true,
		TrainingMetrics: metrics,
		SubmitResult:    submitResult,
	}
}

// SubmitModelUpdate serializes the current weights and posts them with
// device diagnostics and the buffer's distribution snapshot. Network
// failures propagate; retry policy, if any, belongs to the caller.
func (f *FederatedClient) SubmitModelUpdate(ctx context.Context, metrics models.TrainingMetrics) (map[string]interface{}, error) {
	log := logger.WithComponent("federated")

	metadata := f.manager.Metadata()
	if metadata == nil {
		return nil, errs.ErrNoModel
	}

	weights, err := f.manager.SerializeWeights()
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(weights)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize weights: %w", err)
	}

	payload := models.ModelUpdatePayload{
		ModelID: metadata.ModelID,
		Weights: base64.StdEncoding.EncodeToString(encoded),
		Metadata: models.UpdateMetadata{
			Format:      "weight-records",
			Compression: "none",
			UpdateType:  "weights",
		},
		Metrics:          metrics,
		DeviceInfo:       device.Info(),
		DataDistribution: f.buffer.GetDataDistribution(),
	}

	ack, err := f.api.SubmitUpdate(ctx, payload)
	if err != nil {
		telemetry.RecordSubmission("failed")
		return nil, err
	}
	telemetry.RecordSubmission("accepted")

	log.Info().
		Str("model_id", metadata.ModelID).
		Int("weight_tensors", len(weights)).
		Msg("Model update submitted")
	return ack, nil
}

// Predict runs inference for one interaction's feature vector.
func (f *FederatedClient) Predict(ctx context.Context, featureVector []float64) ([]float64, error) {
	return f.manager.Predict(ctx, featureVector)
}

// GetTrainingDataSummary describes the buffered data.
func (f *FederatedClient) GetTrainingDataSummary() models.TrainingDataSummary {
	return f.buffer.Summary()
}

// ClearLocalData empties the training buffer and its persisted copy.
func (f *FederatedClient) ClearLocalData() error {
	if err := f.buffer.Clear(); err != nil {
		return err
	}
	telemetry.UpdateBufferSize(0)
	return nil
}

// Buffer exposes the training data buffer.
func (f *FederatedClient) Buffer() *TrainingDataBuffer {
	return f.buffer
}

// ModelManager exposes the model manager.
func (f *FederatedClient) ModelManager() *ModelManager {
	return f.manager
}

// State returns the current workflow state.
func (f *FederatedClient) State() WorkflowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FederatedClient) setState(state WorkflowState) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}
