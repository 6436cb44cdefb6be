package cli

import (
	"context"
	"time"

	"github.com/pathlearn/fedclient/internal/client"
	"github.com/pathlearn/fedclient/internal/core/models"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// RunTrain runs one participate-in-training workflow and exits.
func RunTrain(configPath string, downloadLatest bool, epochs int) {
	log := logger.WithComponent("cli")

	a, err := buildApp(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build client")
	}
	defer a.Close()

	if err := a.service.Federated().Initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize federated client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	opts := client.ParticipateOptions{
		DownloadLatest: downloadLatest,
		Train: client.TrainOptions{
			Epochs:          a.cfg.Client.Training.Epochs,
			BatchSize:       a.cfg.Client.Training.BatchSize,
			ValidationSplit: a.cfg.Client.Training.ValidationSplit,
			OnProgress: func(p models.TrainingProgress) {
				log.Info().
					Int("epoch", p.Epoch).
					Int("total_epochs", p.TotalEpochs).
					Float64("loss", p.Loss).
					Float64("accuracy", p.Accuracy).
					Msg("Epoch finished")
			},
		},
	}
	if epochs > 0 {
		opts.Train.Epochs = epochs
	}

	result := a.service.Federated().ParticipateInTraining(ctx, opts)
	if !result.Success {
		log.Fatal().Str("error", result.Error).Msg("Training workflow failed")
	}

	log.Info().
		Int("samples_used", result.TrainingMetrics.SamplesUsed).
		Float64("training_loss", result.TrainingMetrics.TrainingLoss).
		Msg("Training workflow completed")
}
