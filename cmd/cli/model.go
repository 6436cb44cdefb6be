package cli

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/pathlearn/fedclient/pkg/logger"
)

// RunModelDownload fetches the latest global model and caches it.
func RunModelDownload(configPath string) {
	log := logger.WithComponent("cli")

	a, err := buildApp(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build client")
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	metadata, err := a.service.Federated().DownloadLatestModel(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to download model")
	}

	log.Info().
		Str("model_id", metadata.ModelID).
		Int("version", metadata.Version).
		Msg("Model downloaded")
}

// RunModelInfo prints the cached model metadata as JSON.
func RunModelInfo(configPath string) {
	log := logger.WithComponent("cli")

	a, err := buildApp(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build client")
	}
	defer a.Close()

	if err := a.service.Federated().ModelManager().Initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load model metadata")
	}

	metadata := a.service.Federated().ModelManager().Metadata()
	if metadata == nil {
		log.Fatal().Msg("No model cached; run 'fedclient model download' first")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(metadata); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode metadata")
	}
}
