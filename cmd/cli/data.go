package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pathlearn/fedclient/pkg/logger"
)

// RunDataSummary prints the buffered training data summary as JSON.
func RunDataSummary(configPath string) {
	log := logger.WithComponent("cli")

	a, err := buildApp(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build client")
	}
	defer a.Close()

	if err := a.service.Federated().Buffer().Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load training data")
	}

	summary := a.service.Federated().GetTrainingDataSummary()
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode summary")
	}
}

// RunDataClear removes every buffered interaction.
func RunDataClear(configPath string) {
	log := logger.WithComponent("cli")

	a, err := buildApp(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build client")
	}
	defer a.Close()

	if err := a.service.Federated().ClearLocalData(); err != nil {
		log.Fatal().Err(err).Msg("Failed to clear training data")
	}
	fmt.Println("Training data cleared")
}
