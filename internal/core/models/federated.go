package models

// LayerType identifies a layer in a model architecture description.
type LayerType string

const (
	LayerDense   LayerType = "dense"
	LayerDropout LayerType = "dropout"
)

// LayerSpec describes one layer of the network. Order within the
// architecture is significant: layers must be replayed in the same order to
// reconstruct the network.
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Units      int                    `json:"units,omitempty"`
	Activation string                 `json:"activation,omitempty"`
	Config     map[string]interface{} `json:"config,omitempty"`
}

// Architecture is the ordered layer list plus the input shape of the first
// layer.
type Architecture struct {
	Layers     []LayerSpec `json:"layers"`
	InputShape []int       `json:"inputShape"`
}

// Hyperparameters drive model compilation. Zero values fall back to the
// client defaults (adam, 0.001, meanSquaredError, accuracy).
type Hyperparameters struct {
	Optimizer    string   `json:"optimizer,omitempty"`
	LearningRate float64  `json:"learningRate,omitempty"`
	Loss         string   `json:"loss,omitempty"`
	Metrics      []string `json:"metrics,omitempty"`
}

// ModelMetadata is the server-provided description of a global model.
// It is immutable once received and replaced wholesale on each download.
type ModelMetadata struct {
	ModelID              string          `json:"modelId"`
	Version              int             `json:"version"`
	ModelType            string          `json:"modelType"`
	Architecture         Architecture    `json:"architecture"`
	Hyperparameters      Hyperparameters `json:"hyperparameters"`
	TrainingRound        int             `json:"trainingRound,omitempty"`
	ParticipatingClients int             `json:"participatingClients,omitempty"`
}

// WeightRecord is one serialized weight tensor. Records are ordered; the
// order produced by serialization must match the order expected on load or
// the model is silently corrupted.
type WeightRecord struct {
	Data  []float64 `json:"data"`
	Shape []int     `json:"shape"`
	Dtype string    `json:"dtype"`
}

// TrainingMetrics summarizes one completed local training run. Transient;
// passed directly into the submission payload, never persisted.
type TrainingMetrics struct {
	LocalEpochs        int      `json:"localEpochs"`
	SamplesUsed        int      `json:"samplesUsed"`
	TrainingLoss       float64  `json:"trainingLoss"`
	TrainingAccuracy   float64  `json:"trainingAccuracy"`
	ValidationLoss     *float64 `json:"validationLoss,omitempty"`
	ValidationAccuracy *float64 `json:"validationAccuracy,omitempty"`
}

// UpdateMetadata describes the encoding of a submitted weight payload.
type UpdateMetadata struct {
	Format      string `json:"format"`
	Compression string `json:"compression"`
	UpdateType  string `json:"updateType"`
}

// DeviceInfo carries best-effort device diagnostics. Fields the platform
// cannot report are "unknown", never an error.
type DeviceInfo struct {
	DeviceID  string `json:"deviceId"`
	UserAgent string `json:"userAgent"`
	Memory    string `json:"memory"`
	Cores     string `json:"cores"`
}

// DataDistribution is a derived snapshot of the training buffer contents.
type DataDistribution struct {
	TopicCounts      map[string]int `json:"topicCounts"`
	InteractionTypes map[string]int `json:"interactionTypes"`
	TotalSamples     int            `json:"totalSamples"`
}

// ModelUpdatePayload is the full submission body for one weight update.
// Constructed fresh per submission and never persisted.
type ModelUpdatePayload struct {
	ModelID          string           `json:"modelId"`
	Weights          string           `json:"weights"`
	Metadata         UpdateMetadata   `json:"metadata"`
	Metrics          TrainingMetrics  `json:"metrics"`
	DeviceInfo       DeviceInfo       `json:"deviceInfo"`
	DataDistribution DataDistribution `json:"dataDistribution"`
}

// TrainingResult is the terminal value of a participate-in-training
// workflow. Failures are reported here, not thrown past the orchestration
// boundary.
type TrainingResult struct {
	Success         bool             `json:"success"`
	TrainingMetrics *TrainingMetrics `json:"trainingMetrics,omitempty"`
	SubmitResult    interface{}      `json:"submitResult,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// TrainingProgress is reported after each local training epoch.
type TrainingProgress struct {
	Epoch       int     `json:"epoch"`
	TotalEpochs int     `json:"totalEpochs"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
}

// TrainingDataSummary describes the current buffer without exposing it.
type TrainingDataSummary struct {
	TotalSamples int              `json:"totalSamples"`
	Distribution DataDistribution `json:"distribution"`
	OldestSample int64            `json:"oldestSample,omitempty"`
	NewestSample int64            `json:"newestSample,omitempty"`
}
