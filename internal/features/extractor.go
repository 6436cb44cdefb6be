// Package features maps interaction records to fixed-length numeric
// feature vectors used for training and inference.
package features

import (
	"time"

	"github.com/pathlearn/fedclient/internal/core/models"
)

// Dim is the arity of every extracted feature vector. It must stay
// consistent with the input shape of any model the client trains.
const Dim = 10

// Extract encodes a single interaction record into a Dim-length vector.
// It is pure and total: missing optional fields take documented defaults
// (absent timeSpent counts as 0, absent score as 0, absent completed as
// false). Every entry is in [0,1].
//
// Layout, in order:
//
//	0-2  one-hot of interaction type in {chatbot, roadmap, checklist}
//	3-5  one-hot of difficulty in {beginner, intermediate, advanced}
//	6    timeSpent clipped to a 1 hour cap, scaled to [0,1]
//	7    completed flag
//	8    score scaled from [0,100]
//	9    local hour of day scaled from [0,23]
func Extract(record models.InteractionRecord) []float64 {
	features := make([]float64, Dim)

	switch record.InteractionType {
	case models.InteractionChatbot:
		features[0] = 1
	case models.InteractionRoadmap:
		features[1] = 1
	case models.InteractionChecklist:
		features[2] = 1
	}

	switch record.Difficulty {
	case models.DifficultyBeginner:
		features[3] = 1
	case models.DifficultyIntermediate:
		features[4] = 1
	case models.DifficultyAdvanced:
		features[5] = 1
	}

	timeSpent := record.TimeSpent / 3600
	if timeSpent > 1 {
		timeSpent = 1
	}
	if timeSpent < 0 {
		timeSpent = 0
	}
	features[6] = timeSpent

	if record.Completed {
		features[7] = 1
	}

	if record.Score != nil {
		features[8] = *record.Score / 100
	}

	hour := time.UnixMilli(record.Timestamp).Local().Hour()
	features[9] = float64(hour) / 24

	return features
}
