package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/core/models"
	"github.com/pathlearn/fedclient/internal/features"
	"github.com/pathlearn/fedclient/internal/storage/localstore"
	"github.com/pathlearn/fedclient/pkg/logger"
)

const labelWidth = 8

// TrainingDataBuffer is a bounded, append-only window over the most recent
// interaction records. Insertion order is significant. The full buffer is
// persisted on every mutation; the write amplification is an accepted
// simplicity/durability tradeoff.
type TrainingDataBuffer struct {
	store      *localstore.Store
	maxSize    int
	minSamples int

	mu      sync.Mutex
	records []models.InteractionRecord
}

func NewTrainingDataBuffer(store *localstore.Store, maxSize, minSamples int) *TrainingDataBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if minSamples <= 0 {
		minSamples = 10
	}
	return &TrainingDataBuffer{
		store:      store,
		maxSize:    maxSize,
		minSamples: minSamples,
	}
}

// Load restores the persisted buffer. Called once at initialization.
func (b *TrainingDataBuffer) Load() error {
	var records []models.InteractionRecord
	found, err := b.store.Get(localstore.KeyTrainingData, &records)
	if err != nil {
		return err
	}
	if found {
		b.mu.Lock()
		b.records = records
		b.mu.Unlock()
		log := logger.WithComponent("buffer")
		log.Debug().
			Int("count", len(records)).
			Msg("Restored training data buffer")
	}
	return nil
}

// Add appends a record, stamping it with the capture time, evicts the
// oldest entries past the size bound, and persists the result.
func (b *TrainingDataBuffer) Add(record models.InteractionRecord) error {
	record.Timestamp = time.Now().UnixMilli()
	if record.Difficulty == "" {
		record.Difficulty = models.DifficultyIntermediate
	}

	b.mu.Lock()
	b.records = append(b.records, record)
	if len(b.records) > b.maxSize {
		b.records = b.records[len(b.records)-b.maxSize:]
	}
	snapshot := append([]models.InteractionRecord(nil), b.records...)
	b.mu.Unlock()

	return b.store.Set(localstore.KeyTrainingData, snapshot)
}

// PrepareTrainingDataset maps every buffered record to a feature row and
// an 8-wide label row where index 0 flags completion. The label scheme is
// a deliberate binary-success proxy, kept as the wire contract.
func (b *TrainingDataBuffer) PrepareTrainingDataset() ([][]float64, [][]float64, error) {
	b.mu.Lock()
	records := append([]models.InteractionRecord(nil), b.records...)
	b.mu.Unlock()

	if len(records) < b.minSamples {
		return nil, nil, fmt.Errorf("%w: have %d samples, need %d",
			errs.ErrInsufficientData, len(records), b.minSamples)
	}

	xs := make([][]float64, len(records))
	ys := make([][]float64, len(records))
	for i, record := range records {
		xs[i] = features.Extract(record)
		label := make([]float64, labelWidth)
		if record.Completed {
			label[0] = 1
		}
		ys[i] = label
	}
	return xs, ys, nil
}

// GetDataDistribution aggregates record counts by topic and interaction
// type. Purely derived; no side effects.
func (b *TrainingDataBuffer) GetDataDistribution() models.DataDistribution {
	b.mu.Lock()
	defer b.mu.Unlock()

	dist := models.DataDistribution{
		TopicCounts:      make(map[string]int),
		InteractionTypes: make(map[string]int),
		TotalSamples:     len(b.records),
	}
	for _, record := range b.records {
		if record.Topic != "" {
			dist.TopicCounts[record.Topic]++
		}
		dist.InteractionTypes[string(record.InteractionType)]++
	}
	return dist
}

// Summary describes the buffer without exposing its contents.
func (b *TrainingDataBuffer) Summary() models.TrainingDataSummary {
	dist := b.GetDataDistribution()

	b.mu.Lock()
	defer b.mu.Unlock()
	summary := models.TrainingDataSummary{
		TotalSamples: len(b.records),
		Distribution: dist,
	}
	if len(b.records) > 0 {
		summary.OldestSample = b.records[0].Timestamp
		summary.NewestSample = b.records[len(b.records)-1].Timestamp
	}
	return summary
}

// Clear empties the buffer and removes the persisted copy.
func (b *TrainingDataBuffer) Clear() error {
	b.mu.Lock()
	b.records = nil
	b.mu.Unlock()
	return b.store.Remove(localstore.KeyTrainingData)
}

// Size returns the current record count.
func (b *TrainingDataBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Records returns a copy of the buffered records in insertion order.
func (b *TrainingDataBuffer) Records() []models.InteractionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.InteractionRecord(nil), b.records...)
}
