package client

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/core/models"
	"github.com/pathlearn/fedclient/internal/features"
	"github.com/pathlearn/fedclient/internal/storage/localstore"
)

func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTrainingDataBuffer(t *testing.T) {
	t.Run("add stamps timestamp and default difficulty", func(t *testing.T) {
		buffer := NewTrainingDataBuffer(openTestStore(t), 10, 5)

		require.NoError(t, buffer.Add(models.InteractionRecord{
			InteractionType: models.InteractionChatbot,
			Topic:           "pointers",
		}))

		records := buffer.Records()
		require.Len(t, records, 1)
		assert.NotZero(t, records[0].Timestamp)
		assert.Equal(t, models.DifficultyIntermediate, records[0].Difficulty)
	})

	t.Run("evicts oldest past the size bound", func(t *testing.T) {
		buffer := NewTrainingDataBuffer(openTestStore(t), 5, 2)

		topics := []string{"a", "b", "c", "d", "e", "f", "g"}
		for _, topic := range topics {
			require.NoError(t, buffer.Add(models.InteractionRecord{
				InteractionType: models.InteractionChatbot,
				Topic:           topic,
			}))
		}

		assert.Equal(t, 5, buffer.Size())
		records := buffer.Records()
		assert.Equal(t, "c", records[0].Topic)
		assert.Equal(t, "g", records[4].Topic)
	})

	t.Run("holds exactly the capacity after one overflow", func(t *testing.T) {
		store := openTestStore(t)
		buffer := NewTrainingDataBuffer(store, 500, 10)

		for i := 1; i <= 501; i++ {
			require.NoError(t, buffer.Add(models.InteractionRecord{
				InteractionType: models.InteractionChatbot,
				Topic:           "t" + strconv.Itoa(i),
			}))
		}

		require.Equal(t, 500, buffer.Size())
		records := buffer.Records()
		assert.Equal(t, "t2", records[0].Topic)
		assert.Equal(t, "t501", records[499].Topic)

		// The persisted copy matches the in-memory window
		restored := NewTrainingDataBuffer(store, 500, 10)
		require.NoError(t, restored.Load())
		assert.Equal(t, 500, restored.Size())
	})

	t.Run("persists across load", func(t *testing.T) {
		store := openTestStore(t)

		buffer := NewTrainingDataBuffer(store, 10, 5)
		require.NoError(t, buffer.Add(models.InteractionRecord{
			InteractionType: models.InteractionQuiz,
			Topic:           "slices",
			Completed:       true,
		}))

		restored := NewTrainingDataBuffer(store, 10, 5)
		require.NoError(t, restored.Load())
		records := restored.Records()
		require.Len(t, records, 1)
		assert.Equal(t, "slices", records[0].Topic)
		assert.True(t, records[0].Completed)
	})

	t.Run("load with empty store is a no-op", func(t *testing.T) {
		buffer := NewTrainingDataBuffer(openTestStore(t), 10, 5)
		require.NoError(t, buffer.Load())
		assert.Zero(t, buffer.Size())
	})
}

func TestPrepareTrainingDataset(t *testing.T) {
	t.Run("below minimum sample count fails", func(t *testing.T) {
		buffer := NewTrainingDataBuffer(openTestStore(t), 100, 10)

		for i := 0; i < 9; i++ {
			require.NoError(t, buffer.Add(models.InteractionRecord{
				InteractionType: models.InteractionChatbot,
			}))
		}

		_, _, err := buffer.PrepareTrainingDataset()
		assert.ErrorIs(t, err, errs.ErrInsufficientData)
	})

	t.Run("at minimum sample count succeeds", func(t *testing.T) {
		buffer := NewTrainingDataBuffer(openTestStore(t), 100, 10)

		for i := 0; i < 10; i++ {
			require.NoError(t, buffer.Add(models.InteractionRecord{
				InteractionType: models.InteractionChatbot,
				Completed:       i%2 == 0,
			}))
		}

		xs, ys, err := buffer.PrepareTrainingDataset()
		require.NoError(t, err)
		require.Len(t, xs, 10)
		require.Len(t, ys, 10)

		for i := range xs {
			assert.Len(t, xs[i], features.Dim)
			assert.Len(t, ys[i], 8)
			// Label index 0 mirrors the completion flag
			if i%2 == 0 {
				assert.Equal(t, 1.0, ys[i][0])
			} else {
				assert.Equal(t, 0.0, ys[i][0])
			}
			for _, v := range ys[i][1:] {
				assert.Equal(t, 0.0, v)
			}
		}
	})
}

func TestGetDataDistribution(t *testing.T) {
	buffer := NewTrainingDataBuffer(openTestStore(t), 100, 5)

	add := func(kind models.InteractionType, topic string) {
		require.NoError(t, buffer.Add(models.InteractionRecord{InteractionType: kind, Topic: topic}))
	}
	add(models.InteractionChatbot, "go")
	add(models.InteractionChatbot, "go")
	add(models.InteractionRoadmap, "rust")
	add(models.InteractionQuiz, "")

	dist := buffer.GetDataDistribution()
	assert.Equal(t, 4, dist.TotalSamples)
	assert.Equal(t, 2, dist.TopicCounts["go"])
	assert.Equal(t, 1, dist.TopicCounts["rust"])
	assert.Equal(t, 2, dist.InteractionTypes["chatbot"])
	assert.Equal(t, 1, dist.InteractionTypes["quiz"])
	// Empty topics are not counted
	assert.NotContains(t, dist.TopicCounts, "")
}

func TestBufferSummaryAndClear(t *testing.T) {
	store := openTestStore(t)
	buffer := NewTrainingDataBuffer(store, 100, 5)

	require.NoError(t, buffer.Add(models.InteractionRecord{InteractionType: models.InteractionChatbot}))
	require.NoError(t, buffer.Add(models.InteractionRecord{InteractionType: models.InteractionRoadmap}))

	summary := buffer.Summary()
	assert.Equal(t, 2, summary.TotalSamples)
	assert.NotZero(t, summary.OldestSample)
	assert.GreaterOrEqual(t, summary.NewestSample, summary.OldestSample)

	require.NoError(t, buffer.Clear())
	assert.Zero(t, buffer.Size())

	// The persisted copy is gone too
	restored := NewTrainingDataBuffer(store, 100, 5)
	require.NoError(t, restored.Load())
	assert.Zero(t, restored.Size())

	summary = restored.Summary()
	assert.Zero(t, summary.OldestSample)
}
